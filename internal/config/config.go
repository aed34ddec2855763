// Package config loads runtime settings from the environment. Every value
// has a default so the service starts without any configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultSessionCookie  = "session-id"
	DefaultSessionExpiry  = 604800
	DefaultAPIPrefix      = "/api"
	DefaultModel          = "claude-3-7-sonnet-20250219"
	DefaultMaxTokens      = 4096
	DefaultLLMBaseURL     = "https://api.anthropic.com"
	DefaultLLMTimeout     = 60 * time.Second
	DefaultModelCacheTTL  = 10 * time.Minute
	DefaultBcryptCost     = 10
	DefaultMaxOpenConns   = 10
	DefaultHTTPAddr       = ":8080"
	DefaultGRPCAddr       = ":9090"
	defaultPublicPathsCSV = "/login,/register"
)

// Config holds runtime configuration sourced from env vars.
type Config struct {
	Env      string
	HTTPAddr string
	GRPCAddr string
	LogLevel string

	DatabaseURL    string
	MaxOpenConns   int
	MigrateOnStart bool

	SessionCookie string
	SessionMaxAge int // seconds
	PublicPaths   []string
	APIPrefix     string
	BcryptCost    int

	AdminEmail    string
	AdminPassword string
	AdminName     string

	DefaultModel     string
	DefaultMaxTokens int
	LLMBaseURL       string
	LLMTimeout       time.Duration

	RedisURL      string
	ModelCacheTTL time.Duration
	AMQPURL       string

	CORSOrigins []string
}

// Load reads configuration from the environment. Malformed numbers,
// durations and booleans are reported rather than silently defaulted.
func Load() (Config, error) {
	cfg := Config{
		Env:      strings.ToLower(fallback(os.Getenv("APP_ENV"), "development")),
		HTTPAddr: fallback(os.Getenv("HTTP_ADDR"), DefaultHTTPAddr),
		LogLevel: fallback(os.Getenv("LOG_LEVEL"), "info"),

		DatabaseURL: strings.TrimSpace(os.Getenv("DATABASE_URL")),

		SessionCookie: fallback(os.Getenv("COOKIE_NAME"), DefaultSessionCookie),
		PublicPaths:   parseCSV(fallback(os.Getenv("PUBLIC_PATHS"), defaultPublicPathsCSV)),
		APIPrefix:     normalizePrefix(fallback(os.Getenv("API_PATH_PREFIX"), DefaultAPIPrefix)),

		AdminEmail:    strings.TrimSpace(os.Getenv("ADMIN_EMAIL")),
		AdminPassword: os.Getenv("ADMIN_PASSWORD"),
		AdminName:     strings.TrimSpace(os.Getenv("ADMIN_NAME")),

		DefaultModel: fallback(os.Getenv("DEFAULT_MODEL"), DefaultModel),
		LLMBaseURL:   fallback(os.Getenv("LLM_BASE_URL"), DefaultLLMBaseURL),

		RedisURL: strings.TrimSpace(os.Getenv("REDIS_URL")),
		AMQPURL:  strings.TrimSpace(os.Getenv("AMQP_URL")),

		CORSOrigins: parseCSV(os.Getenv("CORS_ALLOWED_ORIGINS")),
	}

	// GRPC_ADDR may be set to empty on purpose to disable the listener.
	if v, ok := os.LookupEnv("GRPC_ADDR"); ok {
		cfg.GRPCAddr = strings.TrimSpace(v)
	} else {
		cfg.GRPCAddr = DefaultGRPCAddr
	}

	var err error
	if cfg.MaxOpenConns, err = intEnv("DB_MAX_OPEN_CONNS", DefaultMaxOpenConns); err != nil {
		return Config{}, err
	}
	if cfg.MigrateOnStart, err = boolEnv("MIGRATE_ON_START", true); err != nil {
		return Config{}, err
	}
	if cfg.SessionMaxAge, err = intEnv("SESSION_EXPIRY", DefaultSessionExpiry); err != nil {
		return Config{}, err
	}
	if cfg.BcryptCost, err = intEnv("BCRYPT_COST", DefaultBcryptCost); err != nil {
		return Config{}, err
	}
	if cfg.DefaultMaxTokens, err = intEnv("DEFAULT_MAX_TOKENS", DefaultMaxTokens); err != nil {
		return Config{}, err
	}
	if cfg.LLMTimeout, err = durationEnv("LLM_TIMEOUT", DefaultLLMTimeout); err != nil {
		return Config{}, err
	}
	if cfg.ModelCacheTTL, err = durationEnv("MODEL_CACHE_TTL", DefaultModelCacheTTL); err != nil {
		return Config{}, err
	}
	if len(cfg.PublicPaths) == 0 {
		cfg.PublicPaths = parseCSV(defaultPublicPathsCSV)
	}
	return cfg, nil
}

// Production reports whether cookies must be marked Secure.
func (c Config) Production() bool {
	return c.Env == "production" || c.Env == "prod"
}

// SessionTTL is SessionMaxAge as a duration.
func (c Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionMaxAge) * time.Second
}

// BootstrapAdmin reports whether an admin account should be ensured at start.
func (c Config) BootstrapAdmin() bool {
	return c.AdminEmail != "" && c.AdminPassword != ""
}

func fallback(value, def string) string {
	if strings.TrimSpace(value) == "" {
		return def
	}
	return strings.TrimSpace(value)
}

func parseCSV(input string) []string {
	var out []string
	for _, part := range strings.Split(input, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func normalizePrefix(p string) string {
	p = "/" + strings.Trim(p, "/")
	return p
}

func intEnv(key string, def int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer, got %q", key, raw)
	}
	return v, nil
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%s must be a positive duration like 30s, got %q", key, raw)
	}
	return d, nil
}

func boolEnv(key string, def bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean, got %q", key, raw)
	}
	return v, nil
}
