package httpapi

import (
	"net/http"

	"promptdesk.dev/internal/llm"
)

type processRequest struct {
	Input     string `json:"input"`
	Prompt    string `json:"prompt"`
	PromptID  string `json:"prompt_id"`
	Model     string `json:"model"`
	MaxTokens int    `json:"max_tokens"`
}

type processResponse struct {
	Output   string              `json:"output"`
	Demo     bool                `json:"demo"`
	Response llm.MessageResponse `json:"response"`
}

func (a *API) handleLLMProcess(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	caller, ok := a.activeCaller(w, r)
	if !ok {
		return
	}
	var req processRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	res, err := a.llm.Process(r.Context(), caller, llm.ProcessInput{
		Input:     req.Input,
		Prompt:    req.Prompt,
		PromptID:  req.PromptID,
		Model:     req.Model,
		MaxTokens: req.MaxTokens,
	})
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, processResponse{
		Output:   res.Response.Text(),
		Demo:     res.Demo,
		Response: res.Response,
	})
}

func (a *API) handleLLMModels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	caller, ok := a.activeCaller(w, r)
	if !ok {
		return
	}
	list, err := a.llm.Models(r.Context(), caller)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"models": nonNil(list.Data)})
}
