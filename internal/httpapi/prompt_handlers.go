package httpapi

import (
	"net/http"
	"strconv"

	"promptdesk.dev/internal/audit"
	"promptdesk.dev/internal/prompts"
)

type createPromptRequest struct {
	Name          string `json:"name"`
	Description   string `json:"description"`
	Template      string `json:"template"`
	Category      string `json:"category"`
	OutputFormat  string `json:"output_format"`
	IsFavorite    bool   `json:"is_favorite"`
	IsAdminPrompt bool   `json:"is_admin_prompt"`
}

type updatePromptRequest struct {
	Name          *string `json:"name"`
	Description   *string `json:"description"`
	Template      *string `json:"template"`
	Category      *string `json:"category"`
	OutputFormat  *string `json:"output_format"`
	IsFavorite    *bool   `json:"is_favorite"`
	IsAdminPrompt *bool   `json:"is_admin_prompt"`
}

func (a *API) handlePromptsCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.listPrompts(w, r)
	case http.MethodPost:
		a.createPrompt(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handlePromptResource(w http.ResponseWriter, r *http.Request) {
	id, ok := resourceID(r.URL.Path, a.gate.APIPrefix+"/prompts/")
	if !ok {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	switch r.Method {
	case http.MethodGet:
		a.getPrompt(w, r, id)
	case http.MethodPut:
		a.updatePrompt(w, r, id)
	case http.MethodDelete:
		a.deletePrompt(w, r, id)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut, http.MethodDelete)
	}
}

func (a *API) listPrompts(w http.ResponseWriter, r *http.Request) {
	caller, ok := a.activeCaller(w, r)
	if !ok {
		return
	}
	sharedOnly := false
	if raw := r.URL.Query().Get("adminOnly"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "adminOnly must be a boolean")
			return
		}
		sharedOnly = v
	}
	items, err := a.prompts.List(r.Context(), caller, sharedOnly)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"prompts": nonNil(items)})
}

func (a *API) createPrompt(w http.ResponseWriter, r *http.Request) {
	caller, ok := a.activeCaller(w, r)
	if !ok {
		return
	}
	var req createPromptRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	p, err := a.prompts.Create(r.Context(), caller, prompts.CreateInput{
		Name:          req.Name,
		Description:   req.Description,
		Template:      req.Template,
		Category:      req.Category,
		OutputFormat:  req.OutputFormat,
		IsFavorite:    req.IsFavorite,
		IsAdminPrompt: req.IsAdminPrompt,
	})
	if err != nil {
		handleError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "prompts.create", map[string]any{
		"prompt_id": p.ID,
		"shared":    p.IsAdminPrompt,
	})
	w.Header().Set("Location", a.gate.APIPrefix+"/prompts/"+p.ID)
	writeJSON(w, http.StatusCreated, map[string]any{"prompt": p})
}

func (a *API) getPrompt(w http.ResponseWriter, r *http.Request, id string) {
	caller, ok := a.activeCaller(w, r)
	if !ok {
		return
	}
	p, err := a.prompts.Get(r.Context(), caller, id)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"prompt": p})
}

func (a *API) updatePrompt(w http.ResponseWriter, r *http.Request, id string) {
	caller, ok := a.activeCaller(w, r)
	if !ok {
		return
	}
	var req updatePromptRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	p, err := a.prompts.Update(r.Context(), caller, id, prompts.Update{
		Name:          req.Name,
		Description:   req.Description,
		Template:      req.Template,
		Category:      req.Category,
		OutputFormat:  req.OutputFormat,
		IsFavorite:    req.IsFavorite,
		IsAdminPrompt: req.IsAdminPrompt,
	})
	if err != nil {
		handleError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "prompts.update", map[string]any{"prompt_id": p.ID})
	writeJSON(w, http.StatusOK, map[string]any{"prompt": p})
}

func (a *API) deletePrompt(w http.ResponseWriter, r *http.Request, id string) {
	caller, ok := a.activeCaller(w, r)
	if !ok {
		return
	}
	if err := a.prompts.Delete(r.Context(), caller, id); err != nil {
		handleError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "prompts.delete", map[string]any{"prompt_id": id})
	writeJSON(w, http.StatusOK, messageResponse{Message: "Prompt deleted", Success: true})
}
