package auth

import (
	"fmt"
	"strings"
	"time"
)

// Role is the coarse access level of an account.
type Role string

const (
	RolePending Role = "pending"
	RoleUser    Role = "user"
	RoleAdmin   Role = "admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RolePending, RoleUser, RoleAdmin:
		return true
	}
	return false
}

// ParseRole converts raw input into a Role.
func ParseRole(raw string) (Role, error) {
	role := Role(strings.ToLower(strings.TrimSpace(raw)))
	if !role.Valid() {
		return "", fmt.Errorf("%w: unknown role %q", ErrValidation, raw)
	}
	return role, nil
}

// Account is a registered human user.
type Account struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         *string   `json:"name"`
	Role         Role      `json:"role"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// AccountUpdate carries the fields a store update may touch. Nil means unchanged.
type AccountUpdate struct {
	Name         *string
	Role         *Role
	PasswordHash *string
}

// AccountSummary is an account with usage counters for admin listings.
type AccountSummary struct {
	Account
	PromptCount int `json:"prompt_count"`
	ResultCount int `json:"result_count"`
}

// AccountFilter narrows ListAccounts. Search matches email or name, case-insensitively.
type AccountFilter struct {
	Search string
	Offset int
	Limit  int
}

// Session is the server-side record behind a session cookie.
type Session struct {
	ID        string
	AccountID string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Identity is the result of a successful authentication.
type Identity struct {
	Account   Account
	SessionID string
}
