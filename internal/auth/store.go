package auth

import "context"

// AccountStore persists accounts. Implementations return ErrNotFound for
// missing rows and ErrDuplicateEmail on unique email violations.
type AccountStore interface {
	CreateAccount(ctx context.Context, acc Account) (Account, error)
	GetAccount(ctx context.Context, id string) (Account, error)
	GetAccountByEmail(ctx context.Context, email string) (Account, error)
	ListAccounts(ctx context.Context, filter AccountFilter) ([]AccountSummary, int, error)
	ListAccountsByRole(ctx context.Context, role Role) ([]Account, error)
	UpdateAccount(ctx context.Context, id string, upd AccountUpdate) (Account, error)
	// DeleteAccount removes the account together with everything it owns.
	DeleteAccount(ctx context.Context, id string) error
}

// SessionStore persists server-side session records keyed by token hash.
type SessionStore interface {
	CreateSession(ctx context.Context, sess Session) error
	GetSession(ctx context.Context, id string) (Session, error)
	DeleteSession(ctx context.Context, id string) error
}
