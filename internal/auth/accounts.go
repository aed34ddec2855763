package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"promptdesk.dev/internal/events"
)

const (
	defaultPageSize = 10
	maxPageSize     = 100
)

// AccountService implements admin and self-service account management.
// Every method takes the authenticated caller and enforces the role and
// ownership rules itself.
type AccountService struct {
	store  AccountStore
	hasher *Hasher
	events events.Publisher
	logger *slog.Logger
	now    func() time.Time
}

func NewAccountService(store AccountStore, hasher *Hasher, pub events.Publisher, logger *slog.Logger) (*AccountService, error) {
	if store == nil {
		return nil, errors.New("account store is required")
	}
	if hasher == nil {
		hasher = NewHasher(0, 0)
	}
	if pub == nil {
		pub = events.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AccountService{
		store:  store,
		hasher: hasher,
		events: pub,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// AccountPage is one page of an admin listing.
type AccountPage struct {
	Items []AccountSummary
	Total int
	Page  int
	Limit int
}

// TotalPages rounds up.
func (p AccountPage) TotalPages() int {
	if p.Limit <= 0 {
		return 0
	}
	return (p.Total + p.Limit - 1) / p.Limit
}

// List returns accounts matching search, newest first. Admin only.
func (s *AccountService) List(ctx context.Context, caller *Account, search string, page, limit int) (AccountPage, error) {
	if err := RequireAdmin(caller); err != nil {
		return AccountPage{}, err
	}
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	items, total, err := s.store.ListAccounts(ctx, AccountFilter{
		Search: strings.TrimSpace(search),
		Offset: (page - 1) * limit,
		Limit:  limit,
	})
	if err != nil {
		return AccountPage{}, err
	}
	return AccountPage{Items: items, Total: total, Page: page, Limit: limit}, nil
}

// Get returns a single account to an admin or to its owner.
func (s *AccountService) Get(ctx context.Context, caller *Account, id string) (Account, error) {
	if err := RequireAdminOrOwner(caller, id); err != nil {
		return Account{}, err
	}
	return s.store.GetAccount(ctx, id)
}

// CreateInput is the admin account creation payload.
type CreateInput struct {
	Email    string
	Password string
	Name     string
	Role     string
}

// Create adds an account with an explicit role (default user). Admin only.
func (s *AccountService) Create(ctx context.Context, caller *Account, in CreateInput) (Account, error) {
	if err := RequireAdmin(caller); err != nil {
		return Account{}, err
	}
	email := strings.TrimSpace(in.Email)
	if email == "" || in.Password == "" {
		return Account{}, fmt.Errorf("%w: email and password are required", ErrValidation)
	}
	role := RoleUser
	if strings.TrimSpace(in.Role) != "" {
		parsed, err := ParseRole(in.Role)
		if err != nil {
			return Account{}, err
		}
		role = parsed
	}
	if _, err := s.store.GetAccountByEmail(ctx, email); err == nil {
		return Account{}, ErrDuplicateEmail
	} else if !errors.Is(err, ErrNotFound) {
		return Account{}, err
	}
	hash, err := s.hasher.Hash(ctx, in.Password)
	if err != nil {
		return Account{}, err
	}
	return s.store.CreateAccount(ctx, Account{
		Email:        email,
		Name:         optionalName(in.Name),
		Role:         role,
		PasswordHash: hash,
	})
}

// Changes is a partial profile update. Nil fields are left untouched.
type Changes struct {
	Name *string
	Role *string
}

// Update changes name and, for admins only, role.
func (s *AccountService) Update(ctx context.Context, caller *Account, id string, ch Changes) (Account, error) {
	if err := RequireAdminOrOwner(caller, id); err != nil {
		return Account{}, err
	}
	var upd AccountUpdate
	if ch.Name != nil {
		name := strings.TrimSpace(*ch.Name)
		upd.Name = &name
	}
	var newRole Role
	if ch.Role != nil {
		if !IsAdmin(caller) {
			return Account{}, fmt.Errorf("%w: only admins can change roles", ErrForbidden)
		}
		role, err := ParseRole(*ch.Role)
		if err != nil {
			return Account{}, err
		}
		newRole = role
		upd.Role = &newRole
	}

	before, err := s.store.GetAccount(ctx, id)
	if err != nil {
		return Account{}, err
	}
	if upd.Name == nil && upd.Role == nil {
		return before, nil
	}
	acc, err := s.store.UpdateAccount(ctx, id, upd)
	if err != nil {
		return Account{}, err
	}
	if upd.Role != nil && before.Role != acc.Role {
		s.publish(ctx, events.Event{
			Type:      events.AccountRoleChanged,
			AccountID: acc.ID,
			Email:     acc.Email,
			Role:      string(acc.Role),
			ActorID:   caller.ID,
		})
	}
	return acc, nil
}

// ResetPassword replaces the password of id. Admin or owner.
func (s *AccountService) ResetPassword(ctx context.Context, caller *Account, id, password string) error {
	if err := RequireAdminOrOwner(caller, id); err != nil {
		return err
	}
	if password == "" {
		return fmt.Errorf("%w: new password is required", ErrValidation)
	}
	hash, err := s.hasher.Hash(ctx, password)
	if err != nil {
		return err
	}
	_, err = s.store.UpdateAccount(ctx, id, AccountUpdate{PasswordHash: &hash})
	return err
}

// Delete removes an account and everything it owns. Admin only; an admin
// cannot delete their own account.
func (s *AccountService) Delete(ctx context.Context, caller *Account, id string) error {
	if err := RequireAdmin(caller); err != nil {
		return err
	}
	if caller.ID == id {
		return fmt.Errorf("%w: cannot delete your own account", ErrValidation)
	}
	acc, err := s.store.GetAccount(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteAccount(ctx, id); err != nil {
		return err
	}
	s.publish(ctx, events.Event{
		Type:      events.AccountDeleted,
		AccountID: acc.ID,
		Email:     acc.Email,
		ActorID:   caller.ID,
	})
	return nil
}

// ListAdmins returns every admin account. Admin only.
func (s *AccountService) ListAdmins(ctx context.Context, caller *Account) ([]Account, error) {
	if err := RequireAdmin(caller); err != nil {
		return nil, err
	}
	return s.store.ListAccountsByRole(ctx, RoleAdmin)
}

// PromoteByEmail grants the admin role to the account registered under email.
func (s *AccountService) PromoteByEmail(ctx context.Context, caller *Account, email string) (Account, error) {
	if err := RequireAdmin(caller); err != nil {
		return Account{}, err
	}
	email = strings.TrimSpace(email)
	if email == "" {
		return Account{}, fmt.Errorf("%w: email is required", ErrValidation)
	}
	acc, err := s.store.GetAccountByEmail(ctx, email)
	if err != nil {
		return Account{}, err
	}
	role := string(RoleAdmin)
	return s.Update(ctx, caller, acc.ID, Changes{Role: &role})
}

// EnsureAdmin creates email as an admin or promotes the existing account.
// It is used for bootstrap and never checks a caller.
func (s *AccountService) EnsureAdmin(ctx context.Context, email, password, name string) (Account, bool, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return Account{}, false, fmt.Errorf("%w: admin email and password are required", ErrValidation)
	}
	existing, err := s.store.GetAccountByEmail(ctx, email)
	switch {
	case err == nil:
		if existing.Role == RoleAdmin {
			return existing, false, nil
		}
		role := RoleAdmin
		acc, err := s.store.UpdateAccount(ctx, existing.ID, AccountUpdate{Role: &role})
		if err != nil {
			return Account{}, false, err
		}
		s.publish(ctx, events.Event{Type: events.AccountRoleChanged, AccountID: acc.ID, Email: acc.Email, Role: string(acc.Role)})
		return acc, true, nil
	case !errors.Is(err, ErrNotFound):
		return Account{}, false, err
	}

	hash, err := s.hasher.Hash(ctx, password)
	if err != nil {
		return Account{}, false, err
	}
	if strings.TrimSpace(name) == "" {
		name = "Administrator"
	}
	acc, err := s.store.CreateAccount(ctx, Account{
		Email:        email,
		Name:         optionalName(name),
		Role:         RoleAdmin,
		PasswordHash: hash,
	})
	if err != nil {
		return Account{}, false, err
	}
	return acc, true, nil
}

func (s *AccountService) publish(ctx context.Context, ev events.Event) {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = s.now()
	}
	if err := s.events.Publish(ctx, ev); err != nil {
		s.logger.WarnContext(ctx, "event publish failed", "event", ev.Type, "account_id", ev.AccountID, "error", err)
	}
}
