// Package llm talks to the Anthropic Messages API on behalf of an account.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultBaseURL    = "https://api.anthropic.com"
	DefaultAPIVersion = "2023-06-01"
	DefaultTimeout    = 60 * time.Second

	maxErrorBody = 64 << 10
)

// ErrUpstreamTimeout means the upstream did not answer in time. Safe to retry.
var ErrUpstreamTimeout = errors.New("llm: upstream timeout")

// UpstreamError carries a non-2xx upstream answer.
type UpstreamError struct {
	Status  int
	Message string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("llm: upstream error (%d): %s", e.Status, e.Message)
}

// Message is one conversation turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// MessageRequest is the subset of the Messages API request we send.
type MessageRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	Messages  []Message `json:"messages"`
}

// ContentBlock is one piece of a response.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// Usage reports token accounting.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// MessageResponse is the Messages API response.
type MessageResponse struct {
	ID         string         `json:"id,omitempty"`
	Type       string         `json:"type,omitempty"`
	Role       string         `json:"role,omitempty"`
	Model      string         `json:"model,omitempty"`
	Content    []ContentBlock `json:"content"`
	StopReason string         `json:"stop_reason,omitempty"`
	Usage      *Usage         `json:"usage,omitempty"`
}

// Text concatenates all text blocks.
func (r MessageResponse) Text() string {
	var b strings.Builder
	for _, c := range r.Content {
		if c.Type == "text" {
			b.WriteString(c.Text)
		}
	}
	return b.String()
}

// Model describes one available upstream model.
type Model struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	CreatedAt   string `json:"created_at,omitempty"`
	Type        string `json:"type,omitempty"`
}

// ModelList is the models endpoint payload.
type ModelList struct {
	Data    []Model `json:"data"`
	HasMore bool    `json:"has_more,omitempty"`
	FirstID string  `json:"first_id,omitempty"`
	LastID  string  `json:"last_id,omitempty"`
}

// Client is a thin HTTP client for the upstream API.
type Client struct {
	baseURL    string
	apiVersion string
	http       *http.Client
}

// ClientOption configures Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying HTTP client (its Timeout is kept as is).
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithAPIVersion overrides the anthropic-version header.
func WithAPIVersion(v string) ClientOption {
	return func(c *Client) {
		if v != "" {
			c.apiVersion = v
		}
	}
}

// NewClient creates a client bounded by timeout per request.
func NewClient(baseURL string, timeout time.Duration, opts ...ClientOption) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiVersion: DefaultAPIVersion,
		http:       &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CreateMessage sends one request to /v1/messages.
func (c *Client) CreateMessage(ctx context.Context, apiKey string, req MessageRequest) (MessageResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return MessageResponse{}, fmt.Errorf("marshal request: %w", err)
	}
	var out MessageResponse
	if err := c.do(ctx, http.MethodPost, "/v1/messages", apiKey, body, &out); err != nil {
		return MessageResponse{}, err
	}
	return out, nil
}

// ListModels fetches /v1/models.
func (c *Client) ListModels(ctx context.Context, apiKey string) (ModelList, error) {
	var out ModelList
	if err := c.do(ctx, http.MethodGet, "/v1/models", apiKey, nil, &out); err != nil {
		return ModelList{}, err
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path, apiKey string, body []byte, dst any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", apiKey)
	req.Header.Set("anthropic-version", c.apiVersion)

	resp, err := c.http.Do(req)
	if err != nil {
		return mapTransportError(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &UpstreamError{Status: resp.StatusCode, Message: upstreamMessage(raw)}
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		if isTimeout(err) {
			return ErrUpstreamTimeout
		}
		return fmt.Errorf("decode upstream response: %w", err)
	}
	return nil
}

func mapTransportError(ctx context.Context, err error) error {
	// caller went away: not an upstream problem
	if errors.Is(ctx.Err(), context.Canceled) {
		return ctx.Err()
	}
	if isTimeout(err) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ErrUpstreamTimeout
	}
	return fmt.Errorf("llm: upstream unreachable: %w", err)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// upstreamMessage pulls error.message out of an Anthropic error body.
func upstreamMessage(raw []byte) string {
	var payload struct {
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(raw, &payload); err == nil && payload.Error.Message != "" {
		return payload.Error.Message
	}
	msg := strings.TrimSpace(string(raw))
	if msg == "" {
		return "empty response"
	}
	return msg
}
