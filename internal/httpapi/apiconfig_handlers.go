package httpapi

import (
	"net/http"

	"promptdesk.dev/internal/apiconfig"
	"promptdesk.dev/internal/audit"
)

type saveAPIConfigRequest struct {
	UserID    string `json:"userId"`
	APIKey    string `json:"api_key"`
	Model     string `json:"model"`
	MaxTokens int    `json:"max_tokens"`
}

func (a *API) handleAPIConfig(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		caller, ok := a.activeCaller(w, r)
		if !ok {
			return
		}
		view, err := a.apiconfig.Get(r.Context(), caller, r.URL.Query().Get("userId"))
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"config": view})
	case http.MethodPost:
		caller, ok := a.activeCaller(w, r)
		if !ok {
			return
		}
		var req saveAPIConfigRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		view, err := a.apiconfig.Save(r.Context(), caller, apiconfig.SaveInput{
			UserID:    req.UserID,
			APIKey:    req.APIKey,
			Model:     req.Model,
			MaxTokens: req.MaxTokens,
		})
		if err != nil {
			handleError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "api_config.save", map[string]any{
			"user_id_target": view.UserID,
			"model":          view.Model,
		})
		writeJSON(w, http.StatusOK, map[string]any{"message": "API configuration saved", "config": view})
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}
