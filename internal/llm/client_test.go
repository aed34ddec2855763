package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestClientCreateMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" || r.Method != http.MethodPost {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("x-api-key"); got != "sk-test" {
			t.Errorf("x-api-key = %q", got)
		}
		if got := r.Header.Get("anthropic-version"); got != DefaultAPIVersion {
			t.Errorf("anthropic-version = %q", got)
		}
		var req MessageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		_ = json.NewEncoder(w).Encode(MessageResponse{
			Model:   req.Model,
			Content: []ContentBlock{{Type: "text", Text: "hi "}, {Type: "tool_use"}, {Type: "text", Text: req.Messages[0].Content}},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", time.Second)
	resp, err := c.CreateMessage(context.Background(), "sk-test", MessageRequest{
		Model:     "m",
		MaxTokens: 10,
		Messages:  []Message{{Role: "user", Content: "there"}},
	})
	if err != nil {
		t.Fatalf("CreateMessage: %v", err)
	}
	if resp.Text() != "hi there" || resp.Model != "m" {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestClientMapsUpstreamErrors(t *testing.T) {
	cases := []struct {
		name    string
		status  int
		body    string
		wantMsg string
	}{
		{"anthropic error body", http.StatusUnauthorized, `{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`, "invalid x-api-key"},
		{"plain body", http.StatusBadGateway, "bad gateway\n", "bad gateway"},
		{"empty body", http.StatusTooManyRequests, "", "empty response"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			_, err := NewClient(srv.URL, time.Second).ListModels(context.Background(), "k")
			var upErr *UpstreamError
			if !errors.As(err, &upErr) {
				t.Fatalf("expected UpstreamError, got %v", err)
			}
			if upErr.Status != tc.status || upErr.Message != tc.wantMsg {
				t.Fatalf("got %d %q", upErr.Status, upErr.Message)
			}
		})
	}
}

func TestClientTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	_, err := NewClient(srv.URL, 30*time.Millisecond).ListModels(context.Background(), "k")
	if !errors.Is(err, ErrUpstreamTimeout) {
		t.Fatalf("expected ErrUpstreamTimeout, got %v", err)
	}
}

func TestClientCanceledContextIsNotATimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewClient(srv.URL, time.Second).ListModels(ctx, "k")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestRedisModelCacheKeyHidesAPIKey(t *testing.T) {
	c := NewRedisModelCache(redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"}), 0)
	defer c.client.Close()

	key := c.key("sk-secret-value")
	if !strings.HasPrefix(key, "llm:models:") || strings.Contains(key, "secret") {
		t.Fatalf("unexpected cache key %q", key)
	}
	if key != c.key("sk-secret-value") || key == c.key("sk-other") {
		t.Fatalf("cache key must be stable and per key")
	}
	if c.ttl != 10*time.Minute {
		t.Fatalf("default ttl = %v", c.ttl)
	}
}
