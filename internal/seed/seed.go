// Package seed bootstraps a fresh installation: the configured admin
// account and the shared default prompts.
package seed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"promptdesk.dev/internal/auth"
	"promptdesk.dev/internal/prompts"
)

// SystemEmail owns the default prompts when no admin exists yet. Its
// password hash is unusable, so it can never log in.
const SystemEmail = "system@promptdesk.local"

const unusableHash = "!"

// Options carries the bootstrap admin credentials. An empty email or
// password skips the admin step.
type Options struct {
	AdminEmail    string
	AdminPassword string
	AdminName     string
}

// Report summarises a Run. Err joins every step failure.
type Report struct {
	AdminID        string
	AdminCreated   bool
	PromptOwnerID  string
	PromptsCreated int
	Err            error
}

type Seeder struct {
	accounts *auth.AccountService
	store    auth.AccountStore
	prompts  prompts.Store
	logger   *slog.Logger
}

func New(accounts *auth.AccountService, store auth.AccountStore, promptStore prompts.Store, logger *slog.Logger) *Seeder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Seeder{accounts: accounts, store: store, prompts: promptStore, logger: logger}
}

// Run executes every step. Failures are logged and collected in the report
// but never stop later steps.
func (s *Seeder) Run(ctx context.Context, opts Options) Report {
	var rep Report
	var errs []error

	if opts.AdminEmail != "" && opts.AdminPassword != "" {
		acc, changed, err := s.accounts.EnsureAdmin(ctx, opts.AdminEmail, opts.AdminPassword, opts.AdminName)
		if err != nil {
			s.logger.ErrorContext(ctx, "admin bootstrap failed", "email", opts.AdminEmail, "error", err)
			errs = append(errs, fmt.Errorf("admin bootstrap: %w", err))
		} else {
			rep.AdminID, rep.AdminCreated = acc.ID, changed
			if changed {
				s.logger.InfoContext(ctx, "admin account ready", "account_id", acc.ID, "email", acc.Email)
			}
		}
	}

	owner, err := s.promptOwner(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "resolve default prompt owner failed", "error", err)
		errs = append(errs, fmt.Errorf("prompt owner: %w", err))
		rep.Err = errors.Join(errs...)
		return rep
	}
	rep.PromptOwnerID = owner

	n, err := prompts.SeedDefaults(ctx, s.prompts, owner)
	rep.PromptsCreated = n
	if err != nil {
		s.logger.ErrorContext(ctx, "seed default prompts failed", "created", n, "error", err)
		errs = append(errs, fmt.Errorf("default prompts: %w", err))
	} else if n > 0 {
		s.logger.InfoContext(ctx, "default prompts seeded", "created", n, "owner_id", owner)
	}

	rep.Err = errors.Join(errs...)
	return rep
}

// promptOwner picks the oldest admin, falling back to the system account.
func (s *Seeder) promptOwner(ctx context.Context) (string, error) {
	admins, err := s.store.ListAccountsByRole(ctx, auth.RoleAdmin)
	if err != nil {
		return "", err
	}
	if len(admins) > 0 {
		return admins[0].ID, nil
	}

	sys, err := s.store.GetAccountByEmail(ctx, SystemEmail)
	if err == nil {
		return sys.ID, nil
	}
	if !errors.Is(err, auth.ErrNotFound) {
		return "", err
	}
	name := "System"
	sys, err = s.store.CreateAccount(ctx, auth.Account{
		Email:        SystemEmail,
		Name:         &name,
		Role:         auth.RoleUser,
		PasswordHash: unusableHash,
	})
	if err != nil {
		return "", fmt.Errorf("create system account: %w", err)
	}
	return sys.ID, nil
}
