package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"promptdesk.dev/internal/apiconfig"
	"promptdesk.dev/internal/auth"
	"promptdesk.dev/internal/obs"
	"promptdesk.dev/internal/prompts"
)

// FallbackModel is listed next to the configured default when no key is stored.
const FallbackModel = "claude-3-5-sonnet-20240620"

const maxTokensCeiling = 64000

// Upstream is the subset of Client the service needs.
type Upstream interface {
	CreateMessage(ctx context.Context, apiKey string, req MessageRequest) (MessageResponse, error)
	ListModels(ctx context.Context, apiKey string) (ModelList, error)
}

// Service runs prompts for authenticated accounts using their stored key.
type Service struct {
	upstream Upstream
	configs  *apiconfig.Service
	prompts  *prompts.Service
	cache    ModelCache
	logger   *slog.Logger
}

func NewService(upstream Upstream, configs *apiconfig.Service, promptSvc *prompts.Service, cache ModelCache, logger *slog.Logger) (*Service, error) {
	if upstream == nil {
		return nil, errors.New("llm upstream is required")
	}
	if configs == nil {
		return nil, errors.New("api config service is required")
	}
	if promptSvc == nil {
		return nil, errors.New("prompt service is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{upstream: upstream, configs: configs, prompts: promptSvc, cache: cache, logger: logger}, nil
}

// ProcessInput is one processing request. Either Prompt (raw instruction
// text) or PromptID (stored template) must be set.
type ProcessInput struct {
	Input     string
	Prompt    string
	PromptID  string
	Model     string
	MaxTokens int
}

// ProcessResult is the upstream answer plus whether it was a demo reply.
type ProcessResult struct {
	Response MessageResponse
	Demo     bool
}

// Process sends input through the caller's prompt. Without a stored API
// key a canned demo response is returned instead of calling upstream.
func (s *Service) Process(ctx context.Context, caller *auth.Account, in ProcessInput) (ProcessResult, error) {
	if caller == nil {
		return ProcessResult{}, auth.ErrUnauthenticated
	}
	if strings.TrimSpace(in.Input) == "" {
		return ProcessResult{}, fmt.Errorf("%w: input is required", auth.ErrValidation)
	}
	if in.MaxTokens < 0 || in.MaxTokens > maxTokensCeiling {
		return ProcessResult{}, fmt.Errorf("%w: max tokens must be between 1 and %d", auth.ErrValidation, maxTokensCeiling)
	}

	content, err := s.buildContent(ctx, caller, in)
	if err != nil {
		return ProcessResult{}, err
	}

	cfg, hasKey, err := s.configs.Resolve(ctx, caller.ID)
	if err != nil {
		return ProcessResult{}, err
	}
	if !hasKey {
		return ProcessResult{Response: demoResponse(in), Demo: true}, nil
	}

	model := firstNonEmpty(strings.TrimSpace(in.Model), cfg.Model)
	maxTokens := in.MaxTokens
	if maxTokens == 0 {
		maxTokens = cfg.MaxTokens
	}

	start := time.Now()
	resp, err := s.upstream.CreateMessage(ctx, cfg.APIKey, MessageRequest{
		Model:     model,
		MaxTokens: maxTokens,
		Messages:  []Message{{Role: "user", Content: content}},
	})
	obs.ObserveLLM("messages", outcome(err), time.Since(start))
	if err != nil {
		s.logger.WarnContext(ctx, "llm call failed", "account_id", caller.ID, "model", model, "error", err)
		return ProcessResult{}, err
	}
	return ProcessResult{Response: resp}, nil
}

// Models lists upstream models for caller's key, using the cache when
// configured. Without a key the built-in defaults are returned.
func (s *Service) Models(ctx context.Context, caller *auth.Account) (ModelList, error) {
	if caller == nil {
		return ModelList{}, auth.ErrUnauthenticated
	}
	cfg, hasKey, err := s.configs.Resolve(ctx, caller.ID)
	if err != nil {
		return ModelList{}, err
	}
	if !hasKey {
		return s.defaultModels(), nil
	}

	if s.cache != nil {
		list, ok, err := s.cache.GetModels(ctx, cfg.APIKey)
		if err != nil {
			s.logger.WarnContext(ctx, "model cache read failed", "error", err)
		} else if ok {
			return list, nil
		}
	}

	start := time.Now()
	list, err := s.upstream.ListModels(ctx, cfg.APIKey)
	obs.ObserveLLM("models", outcome(err), time.Since(start))
	if err != nil {
		return ModelList{}, err
	}
	if s.cache != nil {
		if err := s.cache.SetModels(ctx, cfg.APIKey, list); err != nil {
			s.logger.WarnContext(ctx, "model cache write failed", "error", err)
		}
	}
	return list, nil
}

func (s *Service) buildContent(ctx context.Context, caller *auth.Account, in ProcessInput) (string, error) {
	if id := strings.TrimSpace(in.PromptID); id != "" {
		p, err := s.prompts.Get(ctx, caller, id)
		if err != nil {
			return "", err
		}
		return prompts.Render(p.Template, in.Input), nil
	}
	if strings.TrimSpace(in.Prompt) == "" {
		return "", fmt.Errorf("%w: prompt or prompt id is required", auth.ErrValidation)
	}
	return in.Prompt + "\n\n" + in.Input, nil
}

func (s *Service) defaultModels() ModelList {
	def := s.configs.Defaults().Model
	list := ModelList{Data: []Model{{ID: def, DisplayName: def + " (default)"}}}
	if def != FallbackModel {
		list.Data = append(list.Data, Model{ID: FallbackModel, DisplayName: "Claude 3.5 Sonnet", CreatedAt: "2024-06-20"})
	}
	return list
}

func demoResponse(in ProcessInput) MessageResponse {
	prompt := in.Prompt
	if prompt == "" {
		prompt = "prompt " + in.PromptID
	}
	text := "[Demo mode] No API key is configured, so this is a canned reply and no upstream call was made.\n\n" +
		"Input: " + in.Input + "\n\n" +
		"Prompt: " + prompt + "\n\n" +
		"Add an API key on the settings page to get real results."
	return MessageResponse{
		Type:    "message",
		Role:    "assistant",
		Content: []ContentBlock{{Type: "text", Text: text}},
	}
}

func outcome(err error) string {
	var upErr *UpstreamError
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrUpstreamTimeout):
		return "timeout"
	case errors.As(err, &upErr):
		return "upstream_error"
	default:
		return "error"
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
