// Package client is the Go SDK for the BookOn REST API. Besides typed calls it
// carries the list page and modal controllers the portals are built on.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DefaultTimeout bounds every request unless overridden.
const DefaultTimeout = 8 * time.Second

// TokenSource supplies the bearer token for each request.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a fixed bearer token.
type StaticToken string

// Token implements TokenSource.
func (t StaticToken) Token(context.Context) (string, error) { return string(t), nil }

// Client performs authenticated calls against one BookOn API base URL.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenSource
	timeout time.Duration
	logger  *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTimeout overrides the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithLogger attaches a logger for request tracing.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New builds a client for baseURL, e.g. "https://api.bookon.app/api/v1".
func New(baseURL string, tokens TokenSource, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{},
		tokens:  tokens,
		timeout: DefaultTimeout,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Pagination mirrors the envelope pagination block.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"pageSize"`
	TotalCount int `json:"totalCount"`
}

type envelope struct {
	Success    bool                   `json:"success"`
	Data       json.RawMessage        `json:"data"`
	Pagination *Pagination            `json:"pagination"`
	Meta       map[string]interface{} `json:"meta"`
	Error      *struct {
		Code    string            `json:"code"`
		Message string            `json:"message"`
		Status  int               `json:"status"`
		Fields  map[string]string `json:"fields"`
	} `json:"error"`
}

// do sends one request and decodes the envelope data into out when non-nil.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out interface{}) (*envelope, error) {
	if c.tokens == nil {
		return nil, &AuthError{Message: "no token source"}
	}
	token, err := c.tokens.Token(ctx)
	if err != nil || token == "" {
		return nil, &AuthError{Message: "missing token"}
	}

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(raw)
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("build %s %s: %w", method, path, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, c.transportError(ctx, reqCtx, method, path, err)
	}
	defer resp.Body.Close()
	c.logger.Debug("bookon request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)

	if resp.StatusCode == http.StatusNoContent {
		return &envelope{Success: true}, nil
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.transportError(ctx, reqCtx, method, path, err)
	}
	var env envelope
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil && resp.StatusCode < http.StatusBadRequest {
			return nil, &ServerError{Status: resp.StatusCode, Message: "malformed response"}
		}
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, statusError(resp.StatusCode, &env)
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return nil, &ServerError{Status: resp.StatusCode, Message: "malformed response"}
		}
	}
	return &env, nil
}

// transportError distinguishes our own timeout from caller cancellation and
// plain network failures.
func (c *Client) transportError(parent, reqCtx context.Context, method, path string, err error) error {
	if parent.Err() != nil {
		return parent.Err()
	}
	if errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
		return &TimeoutError{Method: method, Path: path}
	}
	return &NetworkError{Err: err}
}

func statusError(status int, env *envelope) error {
	var (
		code, message string
		fields        map[string]string
	)
	if env.Error != nil {
		code, message, fields = env.Error.Code, env.Error.Message, env.Error.Fields
	}
	// 403 means the session is valid but lacks the role, so it is not an AuthError.
	switch {
	case status == http.StatusUnauthorized:
		return &AuthError{Status: status, Message: message}
	case status == http.StatusBadRequest && len(fields) > 0:
		return &ValidationError{Message: message, Fields: fields}
	default:
		return &ServerError{Status: status, Code: code, Message: message}
	}
}

// PreviewAudience resolves how many parents an audience reaches.
func (c *Client) PreviewAudience(ctx context.Context, audienceType string, ids []string) (int, error) {
	var out struct {
		Count int `json:"count"`
	}
	body := map[string]interface{}{"audienceType": audienceType, "audienceIds": ids}
	if _, err := c.do(ctx, http.MethodPost, "/broadcasts/audience/preview", nil, body, &out); err != nil {
		return 0, err
	}
	return out.Count, nil
}
