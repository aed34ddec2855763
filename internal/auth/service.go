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

// DefaultSessionTTL matches the default session cookie max-age.
const DefaultSessionTTL = 7 * 24 * time.Hour

// Service issues and resolves sessions.
type Service struct {
	accounts AccountStore
	sessions SessionStore
	hasher   *Hasher
	events   events.Publisher
	logger   *slog.Logger
	ttl      time.Duration
	now      func() time.Time
}

// Option configures Service.
type Option func(*Service)

// WithSessionTTL sets how long a freshly issued session stays valid.
func WithSessionTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithEvents sets the publisher used for registration events.
func WithEvents(p events.Publisher) Option {
	return func(s *Service) {
		if p != nil {
			s.events = p
		}
	}
}

// WithLogger sets the logger for non-fatal failures.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService wires the session issuer and authenticator.
func NewService(accounts AccountStore, sessions SessionStore, hasher *Hasher, opts ...Option) (*Service, error) {
	if accounts == nil {
		return nil, errors.New("account store is required")
	}
	if sessions == nil {
		return nil, errors.New("session store is required")
	}
	if hasher == nil {
		hasher = NewHasher(0, 0)
	}
	s := &Service{
		accounts: accounts,
		sessions: sessions,
		hasher:   hasher,
		events:   events.Nop{},
		logger:   slog.Default(),
		ttl:      DefaultSessionTTL,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// SessionTTL returns the lifetime of issued sessions.
func (s *Service) SessionTTL() time.Duration { return s.ttl }

// LoginResult is what a successful login hands to the transport layer.
type LoginResult struct {
	Account   Account
	Bearer    string
	ExpiresAt time.Time
}

// Login verifies credentials and issues a session. Unknown email and wrong
// password both yield ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, email, password string) (LoginResult, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return LoginResult{}, fmt.Errorf("%w: email and password are required", ErrValidation)
	}

	acc, err := s.accounts.GetAccountByEmail(ctx, email)
	switch {
	case errors.Is(err, ErrNotFound):
		// burn the same bcrypt time as a real comparison
		_ = s.hasher.Verify(ctx, "", password)
		return LoginResult{}, ErrInvalidCredentials
	case err != nil:
		return LoginResult{}, fmt.Errorf("lookup account: %w", err)
	}
	if err := s.hasher.Verify(ctx, acc.PasswordHash, password); err != nil {
		return LoginResult{}, err
	}

	bearer, token, err := newBearer(acc.ID)
	if err != nil {
		return LoginResult{}, fmt.Errorf("generate session token: %w", err)
	}
	now := s.now()
	sess := Session{
		ID:        sessionKey(token),
		AccountID: acc.ID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	if err := s.sessions.CreateSession(ctx, sess); err != nil {
		return LoginResult{}, fmt.Errorf("persist session: %w", err)
	}
	return LoginResult{Account: acc, Bearer: bearer, ExpiresAt: sess.ExpiresAt}, nil
}

// RegisterInput is the self-service registration payload.
type RegisterInput struct {
	Email    string
	Password string
	Name     string
}

// Register creates a pending account. It never issues a session.
func (s *Service) Register(ctx context.Context, in RegisterInput) (Account, error) {
	email := strings.TrimSpace(in.Email)
	if email == "" || in.Password == "" {
		return Account{}, fmt.Errorf("%w: email and password are required", ErrValidation)
	}
	if _, err := s.accounts.GetAccountByEmail(ctx, email); err == nil {
		return Account{}, ErrDuplicateEmail
	} else if !errors.Is(err, ErrNotFound) {
		return Account{}, fmt.Errorf("lookup account: %w", err)
	}

	hash, err := s.hasher.Hash(ctx, in.Password)
	if err != nil {
		return Account{}, err
	}
	acc, err := s.accounts.CreateAccount(ctx, Account{
		Email:        email,
		Name:         optionalName(in.Name),
		Role:         RolePending,
		PasswordHash: hash,
	})
	if err != nil {
		return Account{}, err
	}

	s.publish(ctx, events.Event{
		Type:      events.AccountRegistered,
		AccountID: acc.ID,
		Email:     acc.Email,
		Role:      string(acc.Role),
	})
	return acc, nil
}

// Logout revokes the server-side session behind bearer. It is idempotent
// and only fails on storage errors.
func (s *Service) Logout(ctx context.Context, bearer string) error {
	_, token, ok := splitBearer(bearer)
	if !ok {
		return nil
	}
	err := s.sessions.DeleteSession(ctx, sessionKey(token))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// Authenticate resolves a bearer to the live account. Missing, malformed,
// expired or orphaned sessions return (nil, nil); only storage failures
// return an error.
func (s *Service) Authenticate(ctx context.Context, bearer string) (*Identity, error) {
	if bearer == "" {
		return nil, nil
	}
	accountID, token, ok := splitBearer(bearer)
	if !ok {
		return nil, nil
	}

	sess, err := s.sessions.GetSession(ctx, sessionKey(token))
	switch {
	case errors.Is(err, ErrNotFound):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("lookup session: %w", err)
	}
	if sess.AccountID != accountID || !s.now().Before(sess.ExpiresAt) {
		return nil, nil
	}

	acc, err := s.accounts.GetAccount(ctx, accountID)
	switch {
	case errors.Is(err, ErrNotFound):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("lookup account: %w", err)
	}
	return &Identity{Account: acc, SessionID: sess.ID}, nil
}

func (s *Service) publish(ctx context.Context, ev events.Event) {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = s.now()
	}
	if err := s.events.Publish(ctx, ev); err != nil {
		s.logger.WarnContext(ctx, "event publish failed", "event", ev.Type, "account_id", ev.AccountID, "error", err)
	}
}

func optionalName(raw string) *string {
	name := strings.TrimSpace(raw)
	if name == "" {
		return nil
	}
	return &name
}
