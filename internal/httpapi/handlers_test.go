package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"promptdesk.dev/internal/apiconfig"
	"promptdesk.dev/internal/auth"
	"promptdesk.dev/internal/events"
	"promptdesk.dev/internal/history"
	"promptdesk.dev/internal/llm"
	"promptdesk.dev/internal/prompts"
	"promptdesk.dev/internal/store/memory"
)

const (
	adminEmail    = "admin@x.com"
	adminPassword = "admin-pw"
	testAPIKey    = "sk-test-key-1234567890"
)

type testEnv struct {
	t        *testing.T
	baseURL  string
	store    *memory.Store
	accounts *auth.AccountService
	events   *events.Recorder
	adminID  string
}

type apiClient struct {
	baseURL string
	client  *http.Client
	t       *testing.T
}

type envOptions struct {
	upstreamURL   string
	llmTimeout    time.Duration
	secureCookies bool
}

func newTestAPI(t *testing.T) *testEnv {
	return newTestAPIWith(t, envOptions{})
}

func newTestAPIWith(t *testing.T, opts envOptions) *testEnv {
	t.Helper()

	store := memory.New()
	hasher := auth.NewHasher(bcrypt.MinCost, 4)
	rec := &events.Recorder{}

	authSvc, err := auth.NewService(store, store, hasher, auth.WithEvents(rec))
	if err != nil {
		t.Fatalf("auth service: %v", err)
	}
	accounts, err := auth.NewAccountService(store, hasher, rec, nil)
	if err != nil {
		t.Fatalf("account service: %v", err)
	}
	promptSvc, err := prompts.NewService(store)
	if err != nil {
		t.Fatalf("prompt service: %v", err)
	}
	historySvc, err := history.NewService(store, store)
	if err != nil {
		t.Fatalf("history service: %v", err)
	}
	configSvc, err := apiconfig.NewService(store, store, apiconfig.Defaults{Model: "claude-test", MaxTokens: 256})
	if err != nil {
		t.Fatalf("api config service: %v", err)
	}
	upstream := llm.NewClient(opts.upstreamURL, opts.llmTimeout)
	llmSvc, err := llm.NewService(upstream, configSvc, promptSvc, nil, nil)
	if err != nil {
		t.Fatalf("llm service: %v", err)
	}

	api, err := New(Deps{
		Auth:      authSvc,
		Accounts:  accounts,
		Prompts:   promptSvc,
		History:   historySvc,
		APIConfig: configSvc,
		LLM:       llmSvc,
		Ready:     ReadyProbe{Extra: []Pinger{store}},
		Cookies:   CookieConfig{Secure: opts.secureCookies},
		Version:   "test",
	})
	if err != nil {
		t.Fatalf("new api: %v", err)
	}

	admin, _, err := accounts.EnsureAdmin(context.Background(), adminEmail, adminPassword, "Admin")
	if err != nil {
		t.Fatalf("ensure admin: %v", err)
	}

	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)

	return &testEnv{
		t:        t,
		baseURL:  srv.URL,
		store:    store,
		accounts: accounts,
		events:   rec,
		adminID:  admin.ID,
	}
}

// client returns a fresh browser-like client with its own cookie jar that
// does not follow redirects.
func (e *testEnv) client() *apiClient {
	e.t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		e.t.Fatalf("cookie jar: %v", err)
	}
	return &apiClient{
		baseURL: e.baseURL,
		t:       e.t,
		client: &http.Client{
			Jar: jar,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

func (e *testEnv) adminClient() *apiClient {
	c := e.client()
	c.login(adminEmail, adminPassword)
	return c
}

// activeUser registers email, approves it as user and returns a logged-in client.
func (e *testEnv) activeUser(email string) (*apiClient, string) {
	e.t.Helper()
	c := e.client()
	resp := c.do(http.MethodPost, "/api/auth/register", map[string]any{"email": email, "password": "pw123"}, nil)
	expectStatus(e.t, resp, http.StatusOK)
	acc, err := e.store.GetAccountByEmail(context.Background(), email)
	if err != nil {
		e.t.Fatalf("lookup %s: %v", email, err)
	}
	role := auth.RoleUser
	if _, err := e.store.UpdateAccount(context.Background(), acc.ID, auth.AccountUpdate{Role: &role}); err != nil {
		e.t.Fatalf("approve %s: %v", email, err)
	}
	c.login(email, "pw123")
	return c, acc.ID
}

func (c *apiClient) do(method, path string, body any, headers map[string]string) *http.Response {
	c.t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			c.t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("do request: %v", err)
	}
	return resp
}

func (c *apiClient) get(path string) *http.Response {
	c.t.Helper()
	return c.do(http.MethodGet, path, nil, nil)
}

func (c *apiClient) login(email, password string) *http.Response {
	c.t.Helper()
	resp := c.do(http.MethodPost, "/api/auth/login", map[string]any{"email": email, "password": password}, nil)
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		c.t.Fatalf("login %s: status %d: %s", email, resp.StatusCode, body)
	}
	return resp
}

func decode[T any](t *testing.T, r *http.Response) T {
	t.Helper()
	defer r.Body.Close()
	var v T
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func expectStatus(t *testing.T, r *http.Response, want int) {
	t.Helper()
	if r.StatusCode != want {
		body, _ := io.ReadAll(r.Body)
		r.Body.Close()
		t.Fatalf("%s %s: expected %d, got %d: %s", r.Request.Method, r.Request.URL.Path, want, r.StatusCode, body)
	}
}

func cookieByName(cookies []*http.Cookie, name string) *http.Cookie {
	for _, c := range cookies {
		if c.Name == name {
			return c
		}
	}
	return nil
}

type meResponse struct {
	User struct {
		ID    string `json:"id"`
		Email string `json:"email"`
		Role  string `json:"role"`
	} `json:"user"`
}

func TestRegisterApproveLoginMeLogout(t *testing.T) {
	env := newTestAPI(t)
	admin := env.adminClient()
	user := env.client()

	resp := user.do(http.MethodPost, "/api/auth/register", map[string]any{
		"email": "a@x.com", "password": "pw123",
	}, nil)
	expectStatus(t, resp, http.StatusOK)
	if len(resp.Cookies()) != 0 {
		t.Fatalf("register must not set cookies, got %v", resp.Cookies())
	}
	reg := decode[messageResponse](t, resp)
	if !reg.Success {
		t.Fatalf("expected success flag")
	}

	acc, err := env.store.GetAccountByEmail(context.Background(), "a@x.com")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if acc.Role != auth.RolePending {
		t.Fatalf("new account role = %s, want pending", acc.Role)
	}

	resp = admin.do(http.MethodPut, "/api/users/"+acc.ID, map[string]any{"role": "user"}, nil)
	expectStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	resp = user.login("a@x.com", "pw123")
	session := cookieByName(resp.Cookies(), DefaultSessionCookie)
	role := cookieByName(resp.Cookies(), RoleCookieName)
	if session == nil || role == nil {
		t.Fatalf("expected session and role cookies, got %v", resp.Cookies())
	}
	if !session.HttpOnly || role.HttpOnly {
		t.Fatalf("session cookie must be HttpOnly and role cookie readable")
	}
	if role.Value != "user" {
		t.Fatalf("role cookie = %q", role.Value)
	}
	if !strings.HasPrefix(session.Value, acc.ID+"_") {
		t.Fatalf("bearer %q does not start with account id", session.Value)
	}
	if session.MaxAge != DefaultCookieMaxAge {
		t.Fatalf("session max-age = %d", session.MaxAge)
	}
	resp.Body.Close()

	resp = user.get("/api/auth/me")
	expectStatus(t, resp, http.StatusOK)
	me := decode[meResponse](t, resp)
	if me.User.ID != acc.ID || me.User.Email != "a@x.com" || me.User.Role != "user" {
		t.Fatalf("unexpected me payload: %+v", me.User)
	}

	resp = user.do(http.MethodPost, "/api/auth/logout", nil, nil)
	expectStatus(t, resp, http.StatusOK)
	if c := cookieByName(resp.Cookies(), DefaultSessionCookie); c == nil || c.MaxAge >= 0 {
		t.Fatalf("logout must expire the session cookie")
	}
	resp.Body.Close()

	resp = user.get("/api/auth/me")
	expectStatus(t, resp, http.StatusUnauthorized)
	resp.Body.Close()

	// the old bearer is revoked server-side, not just forgotten by the browser
	resp = env.client().do(http.MethodGet, "/api/auth/me", nil, map[string]string{
		"Authorization": "Bearer " + session.Value,
	})
	expectStatus(t, resp, http.StatusUnauthorized)
	resp.Body.Close()

	var types []string
	for _, ev := range env.events.Events() {
		types = append(types, ev.Type)
	}
	if strings.Join(types, ",") != "account.registered,account.role_changed" {
		t.Fatalf("unexpected events: %v", types)
	}
}

func TestSessionCookieAttributes(t *testing.T) {
	env := newTestAPIWith(t, envOptions{secureCookies: true})
	c := env.client()

	resp := c.login(adminEmail, adminPassword)
	resp.Body.Close()
	var bearer string
	for _, name := range []string{DefaultSessionCookie, RoleCookieName} {
		ck := cookieByName(resp.Cookies(), name)
		if ck == nil {
			t.Fatalf("login did not set %s", name)
		}
		if !ck.Secure || ck.SameSite != http.SameSiteLaxMode || ck.Path != "/" {
			t.Fatalf("%s: secure=%v samesite=%v path=%q", name, ck.Secure, ck.SameSite, ck.Path)
		}
		if ck.MaxAge != DefaultCookieMaxAge {
			t.Fatalf("%s: max-age = %d", name, ck.MaxAge)
		}
		if name == DefaultSessionCookie {
			bearer = ck.Value
		}
	}

	// the jar withholds Secure cookies over plain http
	resp = c.do(http.MethodPost, "/api/auth/logout", nil, map[string]string{"Authorization": "Bearer " + bearer})
	expectStatus(t, resp, http.StatusOK)
	resp.Body.Close()
	for _, name := range []string{DefaultSessionCookie, RoleCookieName} {
		ck := cookieByName(resp.Cookies(), name)
		if ck == nil || ck.MaxAge >= 0 || ck.Value != "" {
			t.Fatalf("logout must expire %s, got %+v", name, ck)
		}
		if !ck.Secure || ck.SameSite != http.SameSiteLaxMode {
			t.Fatalf("cleared %s lost its attributes: %+v", name, ck)
		}
	}
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	env := newTestAPI(t)
	c := env.client()

	unknown := c.do(http.MethodPost, "/api/auth/login", map[string]any{"email": "nobody@x.com", "password": "pw"}, nil)
	wrong := c.do(http.MethodPost, "/api/auth/login", map[string]any{"email": adminEmail, "password": "nope"}, nil)
	if unknown.StatusCode != http.StatusUnauthorized || wrong.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401/401, got %d/%d", unknown.StatusCode, wrong.StatusCode)
	}
	a := decode[map[string]any](t, unknown)
	b := decode[map[string]any](t, wrong)
	if a["error"] != b["error"] || a["error"] != "invalid email or password" {
		t.Fatalf("error messages differ: %v vs %v", a["error"], b["error"])
	}

	resp := c.do(http.MethodPost, "/api/auth/login", map[string]any{"email": adminEmail}, nil)
	expectStatus(t, resp, http.StatusBadRequest)
	resp.Body.Close()
}

func TestRegisterRejectsDuplicateAndMissingFields(t *testing.T) {
	env := newTestAPI(t)
	c := env.client()

	resp := c.do(http.MethodPost, "/api/auth/register", map[string]any{"email": adminEmail, "password": "x"}, nil)
	expectStatus(t, resp, http.StatusBadRequest)
	resp.Body.Close()

	resp = c.do(http.MethodPost, "/api/auth/register", map[string]any{"email": "b@x.com"}, nil)
	expectStatus(t, resp, http.StatusBadRequest)
	resp.Body.Close()

	resp = c.do(http.MethodPost, "/api/auth/register", map[string]any{"email": "b@x.com", "password": "x", "role": "admin"}, nil)
	expectStatus(t, resp, http.StatusBadRequest)
	resp.Body.Close()
}

func TestPendingAccountLogsInButIsHeldBack(t *testing.T) {
	env := newTestAPI(t)
	c := env.client()

	resp := c.do(http.MethodPost, "/api/auth/register", map[string]any{"email": "p@x.com", "password": "pw123"}, nil)
	expectStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	resp = c.login("p@x.com", "pw123")
	if role := cookieByName(resp.Cookies(), RoleCookieName); role == nil || role.Value != "pending" {
		t.Fatalf("expected pending role cookie, got %v", resp.Cookies())
	}
	resp.Body.Close()

	resp = c.get("/settings")
	expectStatus(t, resp, http.StatusTemporaryRedirect)
	if loc := resp.Header.Get("Location"); loc != DefaultPendingPath {
		t.Fatalf("redirect location = %q", loc)
	}
	resp.Body.Close()

	resp = c.get("/pending-approval")
	expectStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	resp = c.get("/api/auth/me")
	expectStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	resp = c.get("/api/prompts")
	expectStatus(t, resp, http.StatusForbidden)
	resp.Body.Close()
}

func TestForgedBearerIsRejected(t *testing.T) {
	env := newTestAPI(t)
	c := env.client()

	resp := c.do(http.MethodGet, "/api/auth/me", nil, map[string]string{
		"Authorization": "Bearer " + env.adminID + "_" + strings.Repeat("ab", 32),
	})
	expectStatus(t, resp, http.StatusUnauthorized)
	body := decode[map[string]any](t, resp)
	if body["request_id"] == "" || body["request_id"] == nil {
		t.Fatalf("expected request_id in error body")
	}
}

func TestRoleIsReadLiveOnEveryRequest(t *testing.T) {
	env := newTestAPI(t)
	admin := env.adminClient()
	user, userID := env.activeUser("live@x.com")

	resp := user.get("/api/users")
	expectStatus(t, resp, http.StatusForbidden)
	resp.Body.Close()

	resp = admin.do(http.MethodPut, "/api/users/"+userID, map[string]any{"role": "admin"}, nil)
	expectStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	// same session, no re-login: the new role applies immediately
	resp = user.get("/api/users?search=live")
	expectStatus(t, resp, http.StatusOK)
	list := decode[listUsersResponse](t, resp)
	if list.Pagination.Total != 1 || list.Users[0].Email != "live@x.com" {
		t.Fatalf("unexpected search result: %+v", list)
	}

	resp = admin.do(http.MethodPut, "/api/users/"+userID, map[string]any{"role": "pending"}, nil)
	expectStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	resp = user.get("/api/prompts")
	expectStatus(t, resp, http.StatusForbidden)
	resp.Body.Close()
}

func TestUserManagementRules(t *testing.T) {
	env := newTestAPI(t)
	admin := env.adminClient()
	user, userID := env.activeUser("u@x.com")

	resp := user.do(http.MethodPut, "/api/users/"+userID, map[string]any{"role": "admin"}, nil)
	expectStatus(t, resp, http.StatusForbidden)
	resp.Body.Close()

	resp = user.do(http.MethodPut, "/api/users/"+userID, map[string]any{"name": "Una"}, nil)
	expectStatus(t, resp, http.StatusOK)
	updated := decode[userEnvelope](t, resp)
	if updated.User == nil || updated.User.Name == nil || *updated.User.Name != "Una" {
		t.Fatalf("name not updated: %+v", updated.User)
	}

	resp = user.get("/api/users/" + env.adminID)
	expectStatus(t, resp, http.StatusForbidden)
	resp.Body.Close()

	resp = user.do(http.MethodPatch, "/api/users/"+userID, map[string]any{"password": "new-pw"}, nil)
	expectStatus(t, resp, http.StatusOK)
	resp.Body.Close()
	env.client().login("u@x.com", "new-pw").Body.Close()

	resp = admin.do(http.MethodDelete, "/api/users/"+env.adminID, nil, nil)
	expectStatus(t, resp, http.StatusBadRequest)
	resp.Body.Close()

	resp = admin.do(http.MethodPost, "/api/users", map[string]any{
		"email": "made@x.com", "password": "pw", "role": "admin",
	}, nil)
	expectStatus(t, resp, http.StatusCreated)
	created := decode[userEnvelope](t, resp)
	if created.User.Role != auth.RoleAdmin {
		t.Fatalf("created role = %s", created.User.Role)
	}

	resp = admin.get("/api/auth/admin")
	expectStatus(t, resp, http.StatusOK)
	admins := decode[map[string][]auth.Account](t, resp)
	if len(admins["admins"]) != 2 {
		t.Fatalf("expected 2 admins, got %d", len(admins["admins"]))
	}

	resp = user.get("/api/auth/admin")
	expectStatus(t, resp, http.StatusForbidden)
	resp.Body.Close()

	resp = admin.do(http.MethodDelete, "/api/users/"+userID, nil, nil)
	expectStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	// deleted account: its live session is dead
	resp = user.get("/api/auth/me")
	expectStatus(t, resp, http.StatusUnauthorized)
	resp.Body.Close()
}

func TestPromptVisibility(t *testing.T) {
	env := newTestAPI(t)
	admin := env.adminClient()
	alice, _ := env.activeUser("alice@x.com")
	bob, _ := env.activeUser("bob@x.com")

	resp := admin.do(http.MethodPost, "/api/prompts", map[string]any{
		"name": "Shared", "template": "Fix: {{input}}", "is_admin_prompt": true,
	}, nil)
	expectStatus(t, resp, http.StatusCreated)
	shared := decode[map[string]prompts.Prompt](t, resp)["prompt"]

	resp = alice.do(http.MethodPost, "/api/prompts", map[string]any{
		"name": "Mine", "template": "Summarise {{input}}", "output_format": "html",
	}, nil)
	expectStatus(t, resp, http.StatusCreated)
	private := decode[map[string]prompts.Prompt](t, resp)["prompt"]
	if private.Category != prompts.DefaultCategory || private.OutputFormat != prompts.FormatHTML {
		t.Fatalf("unexpected defaults: %+v", private)
	}

	resp = alice.do(http.MethodPost, "/api/prompts", map[string]any{
		"name": "Sneaky", "template": "x", "is_admin_prompt": true,
	}, nil)
	expectStatus(t, resp, http.StatusForbidden)
	resp.Body.Close()

	resp = bob.get("/api/prompts/" + private.ID)
	expectStatus(t, resp, http.StatusForbidden)
	resp.Body.Close()

	resp = bob.get("/api/prompts/" + shared.ID)
	expectStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	resp = bob.do(http.MethodPut, "/api/prompts/"+shared.ID, map[string]any{"name": "Mine now"}, nil)
	expectStatus(t, resp, http.StatusForbidden)
	resp.Body.Close()

	resp = bob.get("/api/prompts")
	expectStatus(t, resp, http.StatusOK)
	visible := decode[map[string][]prompts.Prompt](t, resp)["prompts"]
	if len(visible) != 1 || visible[0].ID != shared.ID {
		t.Fatalf("bob should only see the shared prompt, got %+v", visible)
	}

	resp = bob.get("/api/prompts?adminOnly=true")
	expectStatus(t, resp, http.StatusForbidden)
	resp.Body.Close()

	resp = admin.get("/api/prompts?adminOnly=true")
	expectStatus(t, resp, http.StatusOK)
	if got := decode[map[string][]prompts.Prompt](t, resp)["prompts"]; len(got) != 1 {
		t.Fatalf("admin shared listing = %d prompts", len(got))
	}

	resp = admin.do(http.MethodDelete, "/api/prompts/"+private.ID, nil, nil)
	expectStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	resp = alice.get("/api/prompts/" + private.ID)
	expectStatus(t, resp, http.StatusNotFound)
	resp.Body.Close()
}

func TestResultHistory(t *testing.T) {
	env := newTestAPI(t)
	admin := env.adminClient()
	alice, aliceID := env.activeUser("alice@x.com")
	bob, _ := env.activeUser("bob@x.com")

	resp := alice.do(http.MethodPost, "/api/results", map[string]any{
		"prompt_id": "does-not-exist", "input": "in", "output": "out",
	}, nil)
	expectStatus(t, resp, http.StatusCreated)
	res := decode[map[string]history.Result](t, resp)["result"]
	if res.UserID != aliceID || res.PromptID == nil || *res.PromptID == "does-not-exist" {
		t.Fatalf("expected a placeholder prompt, got %+v", res)
	}

	resp = alice.get("/api/results?limit=10")
	expectStatus(t, resp, http.StatusOK)
	page := decode[listResultsResponse](t, resp)
	if page.Pagination.Total != 1 || page.Results[0].Prompt == nil {
		t.Fatalf("unexpected page: %+v", page)
	}

	resp = bob.get("/api/results")
	expectStatus(t, resp, http.StatusOK)
	if got := decode[listResultsResponse](t, resp); got.Pagination.Total != 0 {
		t.Fatalf("bob sees %d results", got.Pagination.Total)
	}

	resp = bob.get("/api/results/" + res.ID)
	expectStatus(t, resp, http.StatusForbidden)
	resp.Body.Close()

	resp = admin.get("/api/results/" + res.ID)
	expectStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	resp = alice.get("/api/results?limit=1000")
	expectStatus(t, resp, http.StatusBadRequest)
	resp.Body.Close()

	resp = alice.do(http.MethodDelete, "/api/results/"+res.ID, nil, nil)
	expectStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	resp = alice.get("/api/results/" + res.ID)
	expectStatus(t, resp, http.StatusNotFound)
	resp.Body.Close()
}

func TestAPIConfigIsMaskedAndScoped(t *testing.T) {
	env := newTestAPI(t)
	admin := env.adminClient()
	alice, aliceID := env.activeUser("alice@x.com")
	bob, _ := env.activeUser("bob@x.com")

	resp := alice.get("/api/api-config")
	expectStatus(t, resp, http.StatusOK)
	def := decode[map[string]apiconfig.View](t, resp)["config"]
	if def.HasAPIKey || def.Model != "claude-test" || def.MaxTokens != 256 {
		t.Fatalf("unexpected defaults: %+v", def)
	}

	resp = alice.do(http.MethodPost, "/api/api-config", map[string]any{
		"api_key": testAPIKey, "model": "claude-x",
	}, nil)
	expectStatus(t, resp, http.StatusOK)
	saved := decode[map[string]any](t, resp)
	cfg := saved["config"].(map[string]any)
	if cfg["api_key"] != "sk-t...7890" || cfg["has_api_key"] != true {
		t.Fatalf("key not masked: %v", cfg)
	}

	resp = bob.get("/api/api-config?userId=" + aliceID)
	expectStatus(t, resp, http.StatusForbidden)
	resp.Body.Close()

	resp = bob.do(http.MethodPost, "/api/api-config", map[string]any{
		"userId": aliceID, "api_key": "stolen", "model": "m",
	}, nil)
	expectStatus(t, resp, http.StatusForbidden)
	resp.Body.Close()

	resp = admin.get("/api/api-config?userId=" + aliceID)
	expectStatus(t, resp, http.StatusOK)
	if got := decode[map[string]apiconfig.View](t, resp)["config"]; got.Model != "claude-x" {
		t.Fatalf("admin view = %+v", got)
	}
}

func newUpstream(t *testing.T, delay time.Duration) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-r.Context().Done():
				return
			}
		}
		if r.Header.Get("x-api-key") != testAPIKey {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`))
			return
		}
		switch r.URL.Path {
		case "/v1/messages":
			var req llm.MessageRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			writeJSON(w, http.StatusOK, llm.MessageResponse{
				ID:      "msg_1",
				Type:    "message",
				Role:    "assistant",
				Model:   req.Model,
				Content: []llm.ContentBlock{{Type: "text", Text: "echo: " + req.Messages[0].Content}},
			})
		case "/v1/models":
			writeJSON(w, http.StatusOK, llm.ModelList{Data: []llm.Model{{ID: "claude-x", DisplayName: "Claude X"}}})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestLLMProcess(t *testing.T) {
	upstream := newUpstream(t, 0)
	env := newTestAPIWith(t, envOptions{upstreamURL: upstream.URL, llmTimeout: 2 * time.Second})
	alice, _ := env.activeUser("alice@x.com")

	resp := alice.do(http.MethodPost, "/api/llm/process", map[string]any{"input": "hello", "prompt": "Translate"}, nil)
	expectStatus(t, resp, http.StatusOK)
	demo := decode[processResponse](t, resp)
	if !demo.Demo || !strings.Contains(demo.Output, "hello") {
		t.Fatalf("expected demo reply, got %+v", demo)
	}

	resp = alice.get("/api/llm/models")
	expectStatus(t, resp, http.StatusOK)
	if models := decode[map[string][]llm.Model](t, resp)["models"]; len(models) == 0 || models[0].ID != "claude-test" {
		t.Fatalf("unexpected default models: %+v", models)
	}

	resp = alice.do(http.MethodPost, "/api/api-config", map[string]any{"api_key": testAPIKey, "model": "claude-x"}, nil)
	expectStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	resp = alice.do(http.MethodPost, "/api/prompts", map[string]any{"name": "Fix", "template": "Fix this: {{input}}"}, nil)
	expectStatus(t, resp, http.StatusCreated)
	p := decode[map[string]prompts.Prompt](t, resp)["prompt"]

	resp = alice.do(http.MethodPost, "/api/llm/process", map[string]any{"input": "teh cat", "prompt_id": p.ID}, nil)
	expectStatus(t, resp, http.StatusOK)
	out := decode[processResponse](t, resp)
	if out.Demo || out.Output != "echo: Fix this: teh cat" || out.Response.Model != "claude-x" {
		t.Fatalf("unexpected process output: %+v", out)
	}

	resp = alice.get("/api/llm/models")
	expectStatus(t, resp, http.StatusOK)
	if models := decode[map[string][]llm.Model](t, resp)["models"]; len(models) != 1 || models[0].ID != "claude-x" {
		t.Fatalf("unexpected upstream models: %+v", models)
	}

	resp = alice.do(http.MethodPost, "/api/llm/process", map[string]any{"prompt": "x"}, nil)
	expectStatus(t, resp, http.StatusBadRequest)
	resp.Body.Close()
}

func TestLLMProcessUpstreamErrors(t *testing.T) {
	upstream := newUpstream(t, 0)
	env := newTestAPIWith(t, envOptions{upstreamURL: upstream.URL, llmTimeout: 2 * time.Second})
	alice, _ := env.activeUser("alice@x.com")

	resp := alice.do(http.MethodPost, "/api/api-config", map[string]any{"api_key": "sk-wrong-key-000", "model": "m"}, nil)
	expectStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	resp = alice.do(http.MethodPost, "/api/llm/process", map[string]any{"input": "hi", "prompt": "p"}, nil)
	expectStatus(t, resp, http.StatusUnauthorized)
	body := decode[map[string]any](t, resp)
	if body["error"] != "invalid x-api-key" {
		t.Fatalf("upstream message not passed through: %v", body)
	}
}

func TestLLMProcessTimeout(t *testing.T) {
	upstream := newUpstream(t, time.Second)
	env := newTestAPIWith(t, envOptions{upstreamURL: upstream.URL, llmTimeout: 50 * time.Millisecond})
	alice, _ := env.activeUser("alice@x.com")

	resp := alice.do(http.MethodPost, "/api/api-config", map[string]any{"api_key": testAPIKey, "model": "m"}, nil)
	expectStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	resp = alice.do(http.MethodPost, "/api/llm/process", map[string]any{"input": "hi", "prompt": "p"}, nil)
	expectStatus(t, resp, http.StatusGatewayTimeout)
	resp.Body.Close()
}

func TestDecodeRejectsUnknownFieldsAndTrailingData(t *testing.T) {
	env := newTestAPI(t)
	c := env.client()

	resp := c.do(http.MethodPost, "/api/auth/login", map[string]any{
		"email": adminEmail, "password": adminPassword, "remember": true,
	}, nil)
	expectStatus(t, resp, http.StatusBadRequest)
	resp.Body.Close()

	req, _ := http.NewRequest(http.MethodPost, env.baseURL+"/api/auth/login",
		strings.NewReader(`{"email":"a","password":"b"} {}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.client.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	expectStatus(t, resp, http.StatusBadRequest)
	if body := decode[map[string]any](t, resp); body["error"] != "unexpected data after JSON body" {
		t.Fatalf("unexpected error: %v", body["error"])
	}

	resp = c.do(http.MethodPost, "/api/auth/login", nil, nil)
	expectStatus(t, resp, http.StatusBadRequest)
	resp.Body.Close()
}

func TestOpsEndpointsBypassGate(t *testing.T) {
	env := newTestAPI(t)
	c := env.client()

	for _, path := range []string{"/healthz", "/readyz", "/metrics", "/openapi.yaml"} {
		resp := c.get(path)
		expectStatus(t, resp, http.StatusOK)
		resp.Body.Close()
	}

	resp := c.get("/")
	expectStatus(t, resp, http.StatusTemporaryRedirect)
	if loc := resp.Header.Get("Location"); loc != "/login?redirect=%2F" {
		t.Fatalf("unexpected redirect %q", loc)
	}
	resp.Body.Close()

	resp = c.get("/api/nope")
	expectStatus(t, resp, http.StatusNotFound)
	resp.Body.Close()

	resp = c.do(http.MethodDelete, "/api/auth/me", nil, nil)
	expectStatus(t, resp, http.StatusMethodNotAllowed)
	if resp.Header.Get("Allow") != http.MethodGet {
		t.Fatalf("unexpected Allow header %q", resp.Header.Get("Allow"))
	}
	resp.Body.Close()
}

func TestReadyReportsOptionalFailuresAsDegraded(t *testing.T) {
	down := PingFunc(func(context.Context) error { return errors.New("connection refused") })
	up := PingFunc(func(context.Context) error { return nil })

	a := &API{readyProbe: ReadyProbe{Optional: map[string]Pinger{"model_cache": down, "other": up}}}
	rr := httptest.NewRecorder()
	a.Ready(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("optional failure must not fail readiness, got %d", rr.Code)
	}
	var body struct {
		Status   string   `json:"status"`
		Degraded []string `json:"degraded"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "ready" || len(body.Degraded) != 1 || body.Degraded[0] != "model_cache" {
		t.Fatalf("unexpected body %+v", body)
	}

	a.readyProbe = ReadyProbe{Extra: []Pinger{down}, Optional: map[string]Pinger{"model_cache": up}}
	rr = httptest.NewRecorder()
	a.Ready(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("required failure must fail readiness, got %d", rr.Code)
	}
}

func TestPagesRenderBehindGate(t *testing.T) {
	env := newTestAPI(t)
	admin := env.adminClient()

	resp := env.client().get("/login")
	expectStatus(t, resp, http.StatusOK)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), `data-endpoint="/auth/login"`) {
		t.Fatalf("login page missing form")
	}

	resp = env.client().get("/assets/app.js")
	expectStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	resp = admin.get("/admin/users")
	expectStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	resp = admin.get("/no-such-page")
	expectStatus(t, resp, http.StatusNotFound)
	resp.Body.Close()
}
