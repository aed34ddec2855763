// Package history keeps the input/output pairs produced by running prompts.
package history

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"promptdesk.dev/internal/auth"
	"promptdesk.dev/internal/prompts"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 200

	placeholderName        = "Auto-generated prompt"
	placeholderDescription = "Created for a result whose prompt was not stored"
	placeholderCategory    = "Other"
)

// Result is one processed request.
type Result struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	PromptID  *string    `json:"prompt_id"`
	Input     string     `json:"input"`
	Output    string     `json:"output"`
	Format    string     `json:"format"`
	CreatedAt time.Time  `json:"created_at"`
	Prompt    *PromptRef `json:"prompt,omitempty"`
	User      *UserRef   `json:"user,omitempty"`
}

// PromptRef is the prompt summary embedded in listings.
type PromptRef struct {
	Name         string `json:"name"`
	Category     string `json:"category"`
	OutputFormat string `json:"output_format"`
}

// UserRef is the owner summary embedded in listings.
type UserRef struct {
	ID    string  `json:"id"`
	Email string  `json:"email"`
	Name  *string `json:"name"`
}

// Filter selects results, newest first. Empty UserID means every owner.
type Filter struct {
	UserID string
	Offset int
	Limit  int
}

// Store persists results. Reads populate Prompt and User when available.
type Store interface {
	CreateResult(ctx context.Context, r Result) (Result, error)
	GetResult(ctx context.Context, id string) (Result, error)
	ListResults(ctx context.Context, f Filter) ([]Result, int, error)
	DeleteResult(ctx context.Context, id string) error
}

// Page is one page of results.
type Page struct {
	Items []Result
	Total int
	Page  int
	Limit int
}

func (p Page) TotalPages() int {
	if p.Limit <= 0 {
		return 0
	}
	return (p.Total + p.Limit - 1) / p.Limit
}

type Service struct {
	store   Store
	prompts prompts.Store
}

func NewService(store Store, promptStore prompts.Store) (*Service, error) {
	if store == nil {
		return nil, errors.New("result store is required")
	}
	if promptStore == nil {
		return nil, errors.New("prompt store is required")
	}
	return &Service{store: store, prompts: promptStore}, nil
}

// List returns caller's results; admins see every account's.
func (s *Service) List(ctx context.Context, caller *auth.Account, page, limit int) (Page, error) {
	if caller == nil {
		return Page{}, auth.ErrUnauthenticated
	}
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	f := Filter{Offset: (page - 1) * limit, Limit: limit}
	if !auth.IsAdmin(caller) {
		f.UserID = caller.ID
	}
	items, total, err := s.store.ListResults(ctx, f)
	if err != nil {
		return Page{}, err
	}
	return Page{Items: items, Total: total, Page: page, Limit: limit}, nil
}

// CreateInput is the payload for recording a result.
type CreateInput struct {
	PromptID string
	Input    string
	Output   string
	Format   string
}

// Create records a result owned by caller. If the referenced prompt does
// not exist a private placeholder prompt is created for it; an existing
// prompt must be visible to caller.
func (s *Service) Create(ctx context.Context, caller *auth.Account, in CreateInput) (Result, error) {
	if caller == nil {
		return Result{}, auth.ErrUnauthenticated
	}
	promptID := strings.TrimSpace(in.PromptID)
	if promptID == "" || in.Input == "" || in.Output == "" {
		return Result{}, fmt.Errorf("%w: prompt id, input and output are required", auth.ErrValidation)
	}
	format := strings.ToLower(strings.TrimSpace(in.Format))
	if format == "" {
		format = prompts.FormatText
	}
	if format != prompts.FormatText && format != prompts.FormatHTML {
		return Result{}, fmt.Errorf("%w: format must be text or html", auth.ErrValidation)
	}

	p, err := s.prompts.GetPrompt(ctx, promptID)
	switch {
	case errors.Is(err, auth.ErrNotFound):
		desc := placeholderDescription
		p, err = s.prompts.CreatePrompt(ctx, prompts.Prompt{
			UserID:       caller.ID,
			Name:         placeholderName,
			Description:  &desc,
			Category:     placeholderCategory,
			OutputFormat: format,
		})
		if err != nil {
			return Result{}, fmt.Errorf("create placeholder prompt: %w", err)
		}
	case err != nil:
		return Result{}, err
	case !prompts.CanView(caller, p):
		return Result{}, auth.ErrForbidden
	}

	id := p.ID
	return s.store.CreateResult(ctx, Result{
		UserID:   caller.ID,
		PromptID: &id,
		Input:    in.Input,
		Output:   in.Output,
		Format:   format,
	})
}

// Get returns a result owned by caller, or any result for admins.
func (s *Service) Get(ctx context.Context, caller *auth.Account, id string) (Result, error) {
	if caller == nil {
		return Result{}, auth.ErrUnauthenticated
	}
	r, err := s.store.GetResult(ctx, id)
	if err != nil {
		return Result{}, err
	}
	if err := auth.RequireAdminOrOwner(caller, r.UserID); err != nil {
		return Result{}, err
	}
	return r, nil
}

// Delete removes a result owned by caller, or any result for admins.
func (s *Service) Delete(ctx context.Context, caller *auth.Account, id string) error {
	if _, err := s.Get(ctx, caller, id); err != nil {
		return err
	}
	return s.store.DeleteResult(ctx, id)
}
