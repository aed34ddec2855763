package httpapi

import (
	"net/http"

	"promptdesk.dev/internal/audit"
	"promptdesk.dev/internal/history"
)

type createResultRequest struct {
	PromptID string `json:"prompt_id"`
	Input    string `json:"input"`
	Output   string `json:"output"`
	Format   string `json:"format"`
}

type listResultsResponse struct {
	Results    []history.Result `json:"results"`
	Pagination pagination       `json:"pagination"`
}

func (a *API) handleResultsCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.listResults(w, r)
	case http.MethodPost:
		a.createResult(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleResultResource(w http.ResponseWriter, r *http.Request) {
	id, ok := resourceID(r.URL.Path, a.gate.APIPrefix+"/results/")
	if !ok {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	switch r.Method {
	case http.MethodGet:
		a.getResult(w, r, id)
	case http.MethodDelete:
		a.deleteResult(w, r, id)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodDelete)
	}
}

func (a *API) listResults(w http.ResponseWriter, r *http.Request) {
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
	limit, err := parsePositiveInt("limit", q.Get("limit"), history.DefaultPageSize, 1, history.MaxPageSize)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	res, err := a.history.List(r.Context(), caller, page, limit)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listResultsResponse{
		Results: nonNil(res.Items),
		Pagination: pagination{
			Total:      res.Total,
			Page:       res.Page,
			Limit:      res.Limit,
			TotalPages: res.TotalPages(),
		},
	})
}

func (a *API) createResult(w http.ResponseWriter, r *http.Request) {
	caller, ok := a.activeCaller(w, r)
	if !ok {
		return
	}
	var req createResultRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	res, err := a.history.Create(r.Context(), caller, history.CreateInput{
		PromptID: req.PromptID,
		Input:    req.Input,
		Output:   req.Output,
		Format:   req.Format,
	})
	if err != nil {
		handleError(w, r, err)
		return
	}
	w.Header().Set("Location", a.gate.APIPrefix+"/results/"+res.ID)
	writeJSON(w, http.StatusCreated, map[string]any{"result": res})
}

func (a *API) getResult(w http.ResponseWriter, r *http.Request, id string) {
	caller, ok := a.activeCaller(w, r)
	if !ok {
		return
	}
	res, err := a.history.Get(r.Context(), caller, id)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"result": res})
}

func (a *API) deleteResult(w http.ResponseWriter, r *http.Request, id string) {
	caller, ok := a.activeCaller(w, r)
	if !ok {
		return
	}
	if err := a.history.Delete(r.Context(), caller, id); err != nil {
		handleError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "results.delete", map[string]any{"result_id": id})
	writeJSON(w, http.StatusOK, messageResponse{Message: "Result deleted", Success: true})
}
