package httpapi

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"sort"
	"time"

	"promptdesk.dev/api/spec"
	"promptdesk.dev/internal/apiconfig"
	"promptdesk.dev/internal/auth"
	"promptdesk.dev/internal/history"
	"promptdesk.dev/internal/llm"
	"promptdesk.dev/internal/obs"
	"promptdesk.dev/internal/prompts"
)

const serviceName = "promptdesk"

// Pinger is anything readiness can probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// ReadyProbe is a simple readiness check (storage ping plus extras).
// Optional dependencies are reported as degraded but never fail readiness.
type ReadyProbe struct {
	DB       *sql.DB
	Extra    []Pinger
	Optional map[string]Pinger
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB != nil {
		if err := rp.DB.PingContext(ctx); err != nil {
			return err
		}
	}
	for _, p := range rp.Extra {
		if err := p.Ping(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Degraded returns the sorted names of optional dependencies that fail to ping.
func (rp ReadyProbe) Degraded(ctx context.Context) []string {
	var out []string
	for name, p := range rp.Optional {
		if err := p.Ping(ctx); err != nil {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

type degradedReporter interface {
	Degraded(ctx context.Context) []string
}

type readinessChecker interface {
	Check(ctx context.Context) error
}

// Deps are the services the HTTP layer dispatches to.
type Deps struct {
	Auth      *auth.Service
	Accounts  *auth.AccountService
	Prompts   *prompts.Service
	History   *history.Service
	APIConfig *apiconfig.Service
	LLM       *llm.Service

	Ready       readinessChecker
	Cookies     CookieConfig
	Gate        GateConfig
	CORSOrigins []string
	Version     string

	// LocalOrigins lets http://localhost and 127.0.0.1 through CORS.
	LocalOrigins bool
}

// API is the HTTP layer.
type API struct {
	mux        *http.ServeMux
	auth       *auth.Service
	accounts   *auth.AccountService
	prompts    *prompts.Service
	history    *history.Service
	apiconfig  *apiconfig.Service
	llm        *llm.Service
	readyProbe readinessChecker
	cookies    CookieConfig
	gate       GateConfig
	origins    []string
	local      bool
	version    string
}

func New(d Deps) (*API, error) {
	switch {
	case d.Auth == nil:
		return nil, errors.New("auth service is required")
	case d.Accounts == nil:
		return nil, errors.New("account service is required")
	case d.Prompts == nil, d.History == nil, d.APIConfig == nil, d.LLM == nil:
		return nil, errors.New("prompt, history, api config and llm services are required")
	}
	if d.Ready == nil {
		d.Ready = ReadyProbe{}
	}
	a := &API{
		mux:        http.NewServeMux(),
		auth:       d.Auth,
		accounts:   d.Accounts,
		prompts:    d.Prompts,
		history:    d.History,
		apiconfig:  d.APIConfig,
		llm:        d.LLM,
		readyProbe: d.Ready,
		cookies:    d.Cookies.withDefaults(),
		gate:       d.Gate,
		origins:    d.CORSOrigins,
		local:      d.LocalOrigins,
		version:    d.Version,
	}
	a.gate.SessionCookie = a.cookies.SessionName
	a.gate = a.gate.withDefaults()
	a.routes()
	return a, nil
}

func (a *API) routes() {
	api := a.gate.APIPrefix

	a.mux.HandleFunc(api+"/auth/login", a.handleLogin)
	a.mux.HandleFunc(api+"/auth/register", a.handleRegister)
	a.mux.HandleFunc(api+"/auth/logout", a.handleLogout)
	a.mux.HandleFunc(api+"/auth/me", a.handleMe)
	a.mux.HandleFunc(api+"/auth/admin", a.handleAdmins)

	a.mux.HandleFunc(api+"/users", a.handleUsersCollection)
	a.mux.HandleFunc(api+"/users/", a.handleUserResource)

	a.mux.HandleFunc(api+"/prompts", a.handlePromptsCollection)
	a.mux.HandleFunc(api+"/prompts/", a.handlePromptResource)

	a.mux.HandleFunc(api+"/results", a.handleResultsCollection)
	a.mux.HandleFunc(api+"/results/", a.handleResultResource)

	a.mux.HandleFunc(api+"/api-config", a.handleAPIConfig)

	a.mux.HandleFunc(api+"/llm/process", a.handleLLMProcess)
	a.mux.HandleFunc(api+"/llm/models", a.handleLLMModels)

	a.mux.HandleFunc(api+"/", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "resource not found")
	})

	a.registerPages()
}

// Handler returns the full middleware chain. Ops endpoints sit outside the
// page gate and outside session resolution.
func (a *API) Handler() http.Handler {
	root := http.NewServeMux()
	root.HandleFunc("/healthz", a.Healthz)
	root.HandleFunc("/readyz", a.Ready)
	root.Handle("/metrics", obs.Handler())
	root.HandleFunc("/openapi.yaml", a.OpenAPISpec)
	root.Handle("/", Gate(a.gate, a.withIdentity(a.mux)))

	var h http.Handler = root
	h = MaxBodyBytes(h, maxJSONBody)
	h = CORS(a.origins, a.local)(h)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.version,
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) OpenAPISpec(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/yaml; charset=utf-8")
	_, _ = w.Write(spec.OpenAPI)
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := a.readyProbe.Check(ctx); err != nil {
		obs.SetReady(false)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	obs.SetReady(true)
	body := map[string]any{"status": "ready"}
	if dr, ok := a.readyProbe.(degradedReporter); ok {
		if names := dr.Degraded(ctx); len(names) > 0 {
			body["degraded"] = names
		}
	}
	writeJSON(w, http.StatusOK, body)
}
