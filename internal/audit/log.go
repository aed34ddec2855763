// Package audit writes security-relevant events to the shared structured log.
package audit

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"

	"promptdesk.dev/internal/auth"
	"promptdesk.dev/internal/obs"
)

const redacted = "[redacted]"

// sensitiveKeys never reach the log with their value, whatever the caller passes.
var sensitiveKeys = []string{"password", "api_key", "apikey", "token", "bearer", "secret"}

type requestIDKey struct{}

// WithRequestID attaches the request identifier to the context for audit logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// RequestIDFromContext returns the request id attached by WithRequestID.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey{}).(string); ok {
		return v
	}
	return ""
}

// LogEvent writes one type=audit entry. The request id and the
// authenticated caller (id and role) are taken from ctx; fields are
// emitted under "fields" in key order with sensitive values redacted.
func LogEvent(ctx context.Context, event string, fields map[string]any) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("event name is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	attrs := []slog.Attr{
		slog.String("type", "audit"),
		slog.String("event", event),
	}
	if rid := RequestIDFromContext(ctx); rid != "" {
		attrs = append(attrs, slog.String("request_id", rid))
	}
	if id, ok := auth.IdentityFromContext(ctx); ok && id.Account.ID != "" {
		attrs = append(attrs,
			slog.String("user_id", id.Account.ID),
			slog.String("user_role", string(id.Account.Role)),
		)
	}

	if len(fields) > 0 {
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		group := make([]any, 0, len(keys))
		for _, k := range keys {
			v := fields[k]
			if isSensitive(k) {
				v = redacted
			}
			group = append(group, slog.Any(k, v))
		}
		attrs = append(attrs, slog.Group("fields", group...))
	}

	obs.Logger().LogAttrs(ctx, slog.LevelInfo, "audit", attrs...)
	return nil
}

func isSensitive(key string) bool {
	key = strings.ToLower(key)
	for _, s := range sensitiveKeys {
		if strings.Contains(key, s) {
			return true
		}
	}
	return false
}
