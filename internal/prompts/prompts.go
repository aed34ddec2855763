// Package prompts manages prompt templates. Shared prompts (is_admin_prompt)
// are visible to every account; all others are private to their owner.
package prompts

import (
	"context"
	"strings"
	"time"
)

const (
	FormatText = "text"
	FormatHTML = "html"

	DefaultCategory = "General"

	// InputPlaceholder is substituted with the user's text.
	InputPlaceholder = "{{input}}"
)

// Prompt is a reusable template.
type Prompt struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	Name          string    `json:"name"`
	Description   *string   `json:"description"`
	Template      string    `json:"template"`
	Category      string    `json:"category"`
	OutputFormat  string    `json:"output_format"`
	IsFavorite    bool      `json:"is_favorite"`
	IsAdminPrompt bool      `json:"is_admin_prompt"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Update is a partial change; nil fields are left untouched.
type Update struct {
	Name          *string
	Description   *string
	Template      *string
	Category      *string
	OutputFormat  *string
	IsFavorite    *bool
	IsAdminPrompt *bool
}

// Filter selects prompts for listing.
//   - zero value: everything
//   - SharedOnly: only shared prompts
//   - OwnerID: that owner's prompts, plus shared ones when IncludeShared
type Filter struct {
	OwnerID       string
	IncludeShared bool
	SharedOnly    bool
}

// Store persists prompts. Missing rows yield auth.ErrNotFound.
type Store interface {
	CreatePrompt(ctx context.Context, p Prompt) (Prompt, error)
	GetPrompt(ctx context.Context, id string) (Prompt, error)
	ListPrompts(ctx context.Context, f Filter) ([]Prompt, error)
	UpdatePrompt(ctx context.Context, id string, upd Update) (Prompt, error)
	DeletePrompt(ctx context.Context, id string) error
}

// Render substitutes input into the template. Templates without the
// placeholder get the input appended after a blank line.
func Render(template, input string) string {
	if template == "" {
		return input
	}
	if !strings.Contains(template, InputPlaceholder) {
		return template + "\n\n" + input
	}
	return strings.ReplaceAll(template, InputPlaceholder, input)
}
