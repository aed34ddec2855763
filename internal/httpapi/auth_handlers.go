package httpapi

import (
	"errors"
	"net/http"

	"promptdesk.dev/internal/audit"
	"promptdesk.dev/internal/auth"
	"promptdesk.dev/internal/obs"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type promoteRequest struct {
	Email string `json:"email"`
}

type userEnvelope struct {
	Message string        `json:"message,omitempty"`
	User    *auth.Account `json:"user"`
}

type messageResponse struct {
	Message string `json:"message"`
	Success bool   `json:"success"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	res, err := a.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidCredentials):
			obs.ObserveLogin("invalid")
			_ = audit.LogEvent(r.Context(), "auth.login_failed", map[string]any{"email": req.Email})
		case errors.Is(err, auth.ErrValidation):
			obs.ObserveLogin("rejected")
		default:
			obs.ObserveLogin("error")
		}
		handleError(w, r, err)
		return
	}
	obs.ObserveLogin("success")

	a.setSessionCookies(w, res.Bearer, res.Account.Role)
	_ = audit.LogEvent(r.Context(), "auth.login", map[string]any{
		"account_id": res.Account.ID,
		"role":       string(res.Account.Role),
		"expires_at": res.ExpiresAt,
	})
	writeJSON(w, http.StatusOK, userEnvelope{Message: "Login successful", User: &res.Account})
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	acc, err := a.auth.Register(r.Context(), auth.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
	})
	if err != nil {
		handleError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.register", map[string]any{
		"account_id": acc.ID,
	})
	writeJSON(w, http.StatusOK, messageResponse{
		Message: "Registration successful. An administrator must approve the account before it can be used.",
		Success: true,
	})
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if err := a.auth.Logout(r.Context(), a.sessionBearer(r)); err != nil {
		// the cookies still go; the record expires on its own
		obs.Logger().WarnContext(r.Context(), "logout failed to revoke session",
			"request_id", RequestIDFromContext(r.Context()), "error", err.Error())
	}
	a.clearSessionCookies(w)
	if id, ok := auth.AccountIDFromContext(r.Context()); ok {
		_ = audit.LogEvent(r.Context(), "auth.logout", map[string]any{"account_id": id})
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Logged out", Success: true})
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	caller, ok := a.caller(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, userEnvelope{User: caller})
}

func (a *API) handleAdmins(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		caller, ok := a.caller(w, r)
		if !ok {
			return
		}
		admins, err := a.accounts.ListAdmins(r.Context(), caller)
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"admins": nonNil(admins)})
	case http.MethodPost:
		caller, ok := a.caller(w, r)
		if !ok {
			return
		}
		var req promoteRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		acc, err := a.accounts.PromoteByEmail(r.Context(), caller, req.Email)
		if err != nil {
			handleError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "auth.admin.promote", map[string]any{
			"account_id": acc.ID,
		})
		writeJSON(w, http.StatusOK, userEnvelope{Message: "Account promoted to admin", User: &acc})
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
