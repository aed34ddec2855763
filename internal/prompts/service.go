package prompts

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"promptdesk.dev/internal/auth"
)

// Service applies visibility and ownership rules on top of a Store.
type Service struct {
	store Store
}

func NewService(store Store) (*Service, error) {
	if store == nil {
		return nil, errors.New("prompt store is required")
	}
	return &Service{store: store}, nil
}

// CanView reports whether caller may read p.
func CanView(caller *auth.Account, p Prompt) bool {
	if caller == nil {
		return false
	}
	return p.IsAdminPrompt || auth.IsAdminOrOwner(caller, p.UserID)
}

// List returns the prompts visible to caller. Admins see everything, or
// only shared prompts when sharedOnly is set; other accounts see their own
// prompts plus shared ones and may not ask for the shared-only view.
func (s *Service) List(ctx context.Context, caller *auth.Account, sharedOnly bool) ([]Prompt, error) {
	if caller == nil {
		return nil, auth.ErrUnauthenticated
	}
	var f Filter
	switch {
	case auth.IsAdmin(caller) && sharedOnly:
		f.SharedOnly = true
	case auth.IsAdmin(caller):
	case sharedOnly:
		return nil, fmt.Errorf("%w: shared prompt listing is admin only", auth.ErrForbidden)
	default:
		f.OwnerID = caller.ID
		f.IncludeShared = true
	}
	return s.store.ListPrompts(ctx, f)
}

// CreateInput is the payload for a new prompt.
type CreateInput struct {
	Name          string
	Description   string
	Template      string
	Category      string
	OutputFormat  string
	IsFavorite    bool
	IsAdminPrompt bool
}

// Create stores a prompt owned by caller. Only admins create shared prompts.
func (s *Service) Create(ctx context.Context, caller *auth.Account, in CreateInput) (Prompt, error) {
	if caller == nil {
		return Prompt{}, auth.ErrUnauthenticated
	}
	name := strings.TrimSpace(in.Name)
	if name == "" || strings.TrimSpace(in.Template) == "" {
		return Prompt{}, fmt.Errorf("%w: name and template are required", auth.ErrValidation)
	}
	if in.IsAdminPrompt && !auth.IsAdmin(caller) {
		return Prompt{}, fmt.Errorf("%w: only admins can create shared prompts", auth.ErrForbidden)
	}
	format, err := normalizeFormat(in.OutputFormat)
	if err != nil {
		return Prompt{}, err
	}
	category := strings.TrimSpace(in.Category)
	if category == "" {
		category = DefaultCategory
	}
	var desc *string
	if d := strings.TrimSpace(in.Description); d != "" {
		desc = &d
	}
	return s.store.CreatePrompt(ctx, Prompt{
		UserID:        caller.ID,
		Name:          name,
		Description:   desc,
		Template:      in.Template,
		Category:      category,
		OutputFormat:  format,
		IsFavorite:    in.IsFavorite,
		IsAdminPrompt: in.IsAdminPrompt,
	})
}

// Get returns a prompt that caller may view.
func (s *Service) Get(ctx context.Context, caller *auth.Account, id string) (Prompt, error) {
	if caller == nil {
		return Prompt{}, auth.ErrUnauthenticated
	}
	p, err := s.store.GetPrompt(ctx, id)
	if err != nil {
		return Prompt{}, err
	}
	if !CanView(caller, p) {
		return Prompt{}, auth.ErrForbidden
	}
	return p, nil
}

// Update changes a prompt owned by caller, or any prompt for admins.
// Only admins may toggle the shared flag.
func (s *Service) Update(ctx context.Context, caller *auth.Account, id string, upd Update) (Prompt, error) {
	if caller == nil {
		return Prompt{}, auth.ErrUnauthenticated
	}
	p, err := s.store.GetPrompt(ctx, id)
	if err != nil {
		return Prompt{}, err
	}
	if err := auth.RequireAdminOrOwner(caller, p.UserID); err != nil {
		return Prompt{}, err
	}
	if upd.IsAdminPrompt != nil && *upd.IsAdminPrompt != p.IsAdminPrompt && !auth.IsAdmin(caller) {
		return Prompt{}, fmt.Errorf("%w: only admins can change prompt sharing", auth.ErrForbidden)
	}
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return Prompt{}, fmt.Errorf("%w: name cannot be empty", auth.ErrValidation)
		}
		upd.Name = &name
	}
	if upd.Template != nil && strings.TrimSpace(*upd.Template) == "" {
		return Prompt{}, fmt.Errorf("%w: template cannot be empty", auth.ErrValidation)
	}
	if upd.OutputFormat != nil {
		format, err := normalizeFormat(*upd.OutputFormat)
		if err != nil {
			return Prompt{}, err
		}
		upd.OutputFormat = &format
	}
	if upd.Category != nil && strings.TrimSpace(*upd.Category) == "" {
		category := DefaultCategory
		upd.Category = &category
	}
	return s.store.UpdatePrompt(ctx, id, upd)
}

// Delete removes a prompt owned by caller, or any prompt for admins.
func (s *Service) Delete(ctx context.Context, caller *auth.Account, id string) error {
	if caller == nil {
		return auth.ErrUnauthenticated
	}
	p, err := s.store.GetPrompt(ctx, id)
	if err != nil {
		return err
	}
	if err := auth.RequireAdminOrOwner(caller, p.UserID); err != nil {
		return err
	}
	return s.store.DeletePrompt(ctx, id)
}

func normalizeFormat(raw string) (string, error) {
	switch f := strings.ToLower(strings.TrimSpace(raw)); f {
	case "":
		return FormatText, nil
	case FormatText, FormatHTML:
		return f, nil
	default:
		return "", fmt.Errorf("%w: output format must be text or html", auth.ErrValidation)
	}
}
