package httpapi

import (
	"net/http"
	"net/url"
	"path"
	"strings"

	"promptdesk.dev/internal/auth"
	"promptdesk.dev/internal/obs"
)

const (
	DefaultLoginPath   = "/login"
	DefaultPendingPath = "/pending-approval"
	DefaultAPIPrefix   = "/api"
)

var staticExtensions = map[string]bool{
	".js": true, ".css": true, ".png": true, ".jpg": true,
	".jpeg": true, ".gif": true, ".ico": true, ".svg": true,
}

// GateConfig configures page admission.
type GateConfig struct {
	APIPrefix     string
	PublicPaths   []string
	LoginPath     string
	PendingPath   string
	SessionCookie string
	RoleCookie    string
}

func (c GateConfig) withDefaults() GateConfig {
	if c.APIPrefix == "" {
		c.APIPrefix = DefaultAPIPrefix
	}
	if c.PublicPaths == nil {
		c.PublicPaths = []string{"/login", "/register"}
	}
	if c.LoginPath == "" {
		c.LoginPath = DefaultLoginPath
	}
	if c.PendingPath == "" {
		c.PendingPath = DefaultPendingPath
	}
	if c.SessionCookie == "" {
		c.SessionCookie = DefaultSessionCookie
	}
	if c.RoleCookie == "" {
		c.RoleCookie = RoleCookieName
	}
	return c
}

// GateDecision is the outcome of Decide. Location is set for redirects.
type GateDecision struct {
	Reason   string
	Location string
}

// Redirect reports whether the request must be bounced.
func (d GateDecision) Redirect() bool { return d.Location != "" }

// Decide applies the admission rules in order. It only looks at cookie
// presence and the role marker; handlers authenticate for real.
func (c GateConfig) Decide(r *http.Request) GateDecision {
	c = c.withDefaults()
	p := r.URL.Path

	if underPrefix(p, c.APIPrefix) {
		return GateDecision{Reason: "api"}
	}
	if staticExtensions[strings.ToLower(path.Ext(p))] {
		return GateDecision{Reason: "static"}
	}
	for _, pub := range c.PublicPaths {
		if underPrefix(p, pub) {
			return GateDecision{Reason: "public"}
		}
	}
	if p == c.PendingPath {
		return GateDecision{Reason: "pending_page"}
	}

	if sc, err := r.Cookie(c.SessionCookie); err != nil || sc.Value == "" {
		q := url.Values{"redirect": {p}}
		return GateDecision{Reason: "login_redirect", Location: c.LoginPath + "?" + q.Encode()}
	}
	if rc, err := r.Cookie(c.RoleCookie); err == nil && rc.Value == string(auth.RolePending) {
		return GateDecision{Reason: "pending_redirect", Location: c.PendingPath}
	}
	return GateDecision{Reason: "pass"}
}

// Gate redirects page requests that lack a session, or whose role marker
// says pending, before they reach next.
func Gate(cfg GateConfig, next http.Handler) http.Handler {
	cfg = cfg.withDefaults()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d := cfg.Decide(r)
		obs.ObserveGate(d.Reason)
		if d.Redirect() {
			http.Redirect(w, r, d.Location, http.StatusTemporaryRedirect)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// underPrefix matches p itself or anything below it, never a sibling that
// merely shares the leading characters.
func underPrefix(p, prefix string) bool {
	prefix = strings.TrimSuffix(prefix, "/")
	if prefix == "" {
		return false
	}
	return p == prefix || strings.HasPrefix(p, prefix+"/")
}
