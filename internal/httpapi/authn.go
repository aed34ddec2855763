package httpapi

import (
	"net/http"
	"strings"

	"promptdesk.dev/internal/auth"
)

const (
	authHeader   = "Authorization"
	bearerScheme = "Bearer "
)

// sessionBearer reads the bearer from the session cookie, falling back to
// an Authorization header for non-browser clients.
func (a *API) sessionBearer(r *http.Request) string {
	if c, err := r.Cookie(a.cookies.SessionName); err == nil && c.Value != "" {
		return c.Value
	}
	return extractBearerToken(r.Header.Get(authHeader))
}

// withIdentity resolves the session once per API request and attaches the
// identity to the context. Anonymous requests pass through untouched.
func (a *API) withIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		bearer := a.sessionBearer(r)
		if bearer == "" {
			next.ServeHTTP(w, r)
			return
		}
		id, err := a.auth.Authenticate(r.Context(), bearer)
		if err != nil {
			handleError(w, r, err)
			return
		}
		if id == nil {
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.ContextWithIdentity(r.Context(), *id)))
	})
}

// caller returns the authenticated account or writes 401.
func (a *API) caller(w http.ResponseWriter, r *http.Request) (*auth.Account, bool) {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return nil, false
	}
	acc := id.Account
	return &acc, true
}

// activeCaller is caller plus a 403 for accounts still awaiting approval.
func (a *API) activeCaller(w http.ResponseWriter, r *http.Request) (*auth.Account, bool) {
	acc, ok := a.caller(w, r)
	if !ok {
		return nil, false
	}
	if acc.Role == auth.RolePending {
		writeError(w, r, http.StatusForbidden, "account is pending approval")
		return nil, false
	}
	return acc, true
}

func extractBearerToken(header string) string {
	header = strings.TrimSpace(header)
	if len(header) <= len(bearerScheme) || !strings.EqualFold(header[:len(bearerScheme)], bearerScheme) {
		return ""
	}
	return strings.TrimSpace(header[len(bearerScheme):])
}
