package httpapi

import (
	"net/http"
	"strings"

	"promptdesk.dev/internal/audit"
	"promptdesk.dev/internal/auth"
)

type createUserRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
	Role     string `json:"role"`
}

type updateUserRequest struct {
	Name *string `json:"name"`
	Role *string `json:"role"`
}

type resetPasswordRequest struct {
	Password string `json:"password"`
}

type pagination struct {
	Total      int `json:"total"`
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	TotalPages int `json:"total_pages"`
}

type listUsersResponse struct {
	Users      []auth.AccountSummary `json:"users"`
	Pagination pagination            `json:"pagination"`
}

func (a *API) handleUsersCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.listUsers(w, r)
	case http.MethodPost:
		a.createUser(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleUserResource(w http.ResponseWriter, r *http.Request) {
	id, ok := resourceID(r.URL.Path, a.gate.APIPrefix+"/users/")
	if !ok {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	switch r.Method {
	case http.MethodGet:
		a.getUser(w, r, id)
	case http.MethodPut:
		a.updateUser(w, r, id)
	case http.MethodPatch:
		a.resetPassword(w, r, id)
	case http.MethodDelete:
		a.deleteUser(w, r, id)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut, http.MethodPatch, http.MethodDelete)
	}
}

func (a *API) listUsers(w http.ResponseWriter, r *http.Request) {
	caller, ok := a.activeCaller(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	page, err := parsePositiveInt("page", q.Get("page"), 1, 1, 1<<20)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	limit, err := parsePositiveInt("limit", q.Get("limit"), 10, 1, 100)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	res, err := a.accounts.List(r.Context(), caller, q.Get("search"), page, limit)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listUsersResponse{
		Users: nonNil(res.Items),
		Pagination: pagination{
			Total:      res.Total,
			Page:       res.Page,
			Limit:      res.Limit,
			TotalPages: res.TotalPages(),
		},
	})
}

func (a *API) createUser(w http.ResponseWriter, r *http.Request) {
	caller, ok := a.activeCaller(w, r)
	if !ok {
		return
	}
	var req createUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	acc, err := a.accounts.Create(r.Context(), caller, auth.CreateInput{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
		Role:     req.Role,
	})
	if err != nil {
		handleError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "users.create", map[string]any{
		"account_id": acc.ID,
		"role":       string(acc.Role),
	})
	w.Header().Set("Location", a.gate.APIPrefix+"/users/"+acc.ID)
	writeJSON(w, http.StatusCreated, userEnvelope{Message: "User created", User: &acc})
}

func (a *API) getUser(w http.ResponseWriter, r *http.Request, id string) {
	caller, ok := a.activeCaller(w, r)
	if !ok {
		return
	}
	acc, err := a.accounts.Get(r.Context(), caller, id)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, userEnvelope{User: &acc})
}

func (a *API) updateUser(w http.ResponseWriter, r *http.Request, id string) {
	caller, ok := a.activeCaller(w, r)
	if !ok {
		return
	}
	var req updateUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	acc, err := a.accounts.Update(r.Context(), caller, id, auth.Changes{Name: req.Name, Role: req.Role})
	if err != nil {
		handleError(w, r, err)
		return
	}
	fields := map[string]any{"account_id": acc.ID}
	if req.Role != nil {
		fields["role"] = string(acc.Role)
	}
	_ = audit.LogEvent(r.Context(), "users.update", fields)
	writeJSON(w, http.StatusOK, userEnvelope{Message: "User updated", User: &acc})
}

func (a *API) resetPassword(w http.ResponseWriter, r *http.Request, id string) {
	caller, ok := a.activeCaller(w, r)
	if !ok {
		return
	}
	var req resetPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.accounts.ResetPassword(r.Context(), caller, id, req.Password); err != nil {
		handleError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "users.password_reset", map[string]any{"account_id": id})
	writeJSON(w, http.StatusOK, messageResponse{Message: "Password updated", Success: true})
}

func (a *API) deleteUser(w http.ResponseWriter, r *http.Request, id string) {
	caller, ok := a.activeCaller(w, r)
	if !ok {
		return
	}
	if err := a.accounts.Delete(r.Context(), caller, id); err != nil {
		handleError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "users.delete", map[string]any{"account_id": id})
	writeJSON(w, http.StatusOK, messageResponse{Message: "User deleted", Success: true})
}

// resourceID extracts the single path segment after prefix.
func resourceID(path, prefix string) (string, bool) {
	id := strings.Trim(strings.TrimPrefix(path, prefix), "/")
	if id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
}
