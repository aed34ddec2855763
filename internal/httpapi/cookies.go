package httpapi

import (
	"net/http"
	"time"

	"promptdesk.dev/internal/auth"
)

const (
	DefaultSessionCookie = "session-id"
	RoleCookieName       = "user-role"
	DefaultCookieMaxAge  = 7 * 24 * 60 * 60
)

// CookieConfig describes the session cookie pair.
type CookieConfig struct {
	SessionName string
	MaxAge      int // seconds
	Secure      bool
}

func (c CookieConfig) withDefaults() CookieConfig {
	if c.SessionName == "" {
		c.SessionName = DefaultSessionCookie
	}
	if c.MaxAge <= 0 {
		c.MaxAge = DefaultCookieMaxAge
	}
	return c
}

// setSessionCookies writes the HttpOnly bearer and the readable role marker.
func (a *API) setSessionCookies(w http.ResponseWriter, bearer string, role auth.Role) {
	c := a.cookies
	http.SetCookie(w, &http.Cookie{
		Name:     c.SessionName,
		Value:    bearer,
		Path:     "/",
		MaxAge:   c.MaxAge,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     RoleCookieName,
		Value:    string(role),
		Path:     "/",
		MaxAge:   c.MaxAge,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// clearSessionCookies expires both cookies immediately.
func (a *API) clearSessionCookies(w http.ResponseWriter) {
	c := a.cookies
	for _, name := range []string{c.SessionName, RoleCookieName} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			Expires:  time.Unix(0, 0),
			HttpOnly: name == c.SessionName,
			Secure:   c.Secure,
			SameSite: http.SameSiteLaxMode,
		})
	}
}
