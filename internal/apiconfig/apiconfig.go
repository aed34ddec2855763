// Package apiconfig stores each account's upstream LLM credentials and defaults.
package apiconfig

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"promptdesk.dev/internal/auth"
)

// Config is the stored per-account setting. One row per account.
type Config struct {
	UserID    string
	APIKey    string
	Model     string
	MaxTokens int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// View is what clients get back. The key itself never leaves the server.
type View struct {
	UserID    string `json:"user_id"`
	APIKey    string `json:"api_key"`
	HasAPIKey bool   `json:"has_api_key"`
	Model     string `json:"model"`
	MaxTokens int    `json:"max_tokens"`
}

// Store persists configs. GetConfig returns auth.ErrNotFound when unset;
// UpsertConfig inserts or replaces atomically.
type Store interface {
	GetConfig(ctx context.Context, userID string) (Config, error)
	UpsertConfig(ctx context.Context, cfg Config) (Config, error)
}

// Defaults are returned when an account has not saved a config yet.
type Defaults struct {
	Model     string
	MaxTokens int
}

type Service struct {
	store    Store
	accounts auth.AccountStore
	defaults Defaults
}

func NewService(store Store, accounts auth.AccountStore, defaults Defaults) (*Service, error) {
	if store == nil {
		return nil, errors.New("api config store is required")
	}
	if accounts == nil {
		return nil, errors.New("account store is required")
	}
	return &Service{store: store, accounts: accounts, defaults: defaults}, nil
}

// Defaults returns the server-wide model settings.
func (s *Service) Defaults() Defaults { return s.defaults }

// Get returns the masked config for userID. An empty userID means caller.
func (s *Service) Get(ctx context.Context, caller *auth.Account, userID string) (View, error) {
	if caller == nil {
		return View{}, auth.ErrUnauthenticated
	}
	if userID = strings.TrimSpace(userID); userID == "" {
		userID = caller.ID
	}
	if err := auth.RequireAdminOrOwner(caller, userID); err != nil {
		return View{}, err
	}
	cfg, err := s.store.GetConfig(ctx, userID)
	if errors.Is(err, auth.ErrNotFound) {
		return View{UserID: userID, Model: s.defaults.Model, MaxTokens: s.defaults.MaxTokens}, nil
	}
	if err != nil {
		return View{}, err
	}
	return View{
		UserID:    cfg.UserID,
		APIKey:    MaskKey(cfg.APIKey),
		HasAPIKey: cfg.APIKey != "",
		Model:     cfg.Model,
		MaxTokens: cfg.MaxTokens,
	}, nil
}

// SaveInput is the payload for storing a config.
type SaveInput struct {
	UserID    string
	APIKey    string
	Model     string
	MaxTokens int
}

// Save upserts the config of in.UserID (caller when empty).
func (s *Service) Save(ctx context.Context, caller *auth.Account, in SaveInput) (View, error) {
	if caller == nil {
		return View{}, auth.ErrUnauthenticated
	}
	userID := strings.TrimSpace(in.UserID)
	if userID == "" {
		userID = caller.ID
	}
	if err := auth.RequireAdminOrOwner(caller, userID); err != nil {
		return View{}, err
	}
	key := strings.TrimSpace(in.APIKey)
	model := strings.TrimSpace(in.Model)
	if key == "" || model == "" {
		return View{}, fmt.Errorf("%w: api key and model are required", auth.ErrValidation)
	}
	maxTokens := in.MaxTokens
	if maxTokens < 0 {
		return View{}, fmt.Errorf("%w: max tokens must be positive", auth.ErrValidation)
	}
	if maxTokens == 0 {
		maxTokens = s.defaults.MaxTokens
	}
	if _, err := s.accounts.GetAccount(ctx, userID); err != nil {
		return View{}, err
	}
	cfg, err := s.store.UpsertConfig(ctx, Config{
		UserID:    userID,
		APIKey:    key,
		Model:     model,
		MaxTokens: maxTokens,
	})
	if err != nil {
		return View{}, err
	}
	return View{
		UserID:    cfg.UserID,
		APIKey:    MaskKey(cfg.APIKey),
		HasAPIKey: true,
		Model:     cfg.Model,
		MaxTokens: cfg.MaxTokens,
	}, nil
}

// Resolve returns the raw config of userID for server-side use. ok is
// false when no key is stored.
func (s *Service) Resolve(ctx context.Context, userID string) (Config, bool, error) {
	cfg, err := s.store.GetConfig(ctx, userID)
	if errors.Is(err, auth.ErrNotFound) {
		return Config{UserID: userID, Model: s.defaults.Model, MaxTokens: s.defaults.MaxTokens}, false, nil
	}
	if err != nil {
		return Config{}, false, err
	}
	if cfg.Model == "" {
		cfg.Model = s.defaults.Model
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = s.defaults.MaxTokens
	}
	return cfg, cfg.APIKey != "", nil
}

// MaskKey keeps the first and last four characters of keys long enough to
// hide something; shorter keys are fully masked.
func MaskKey(key string) string {
	if key == "" {
		return ""
	}
	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}
	return key[:4] + "..." + key[len(key)-4:]
}
