// Package transport issues JSON requests against the relay API and
// classifies the outcome by status code. It never retries; callers own
// retry and backoff.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"grokrelay/internal/logging"
)

// ErrInvalidResponse is returned when a response body is not valid JSON,
// regardless of status code.
var ErrInvalidResponse = errors.New("invalid response format")

// APIError is a non-2xx response with a JSON body.
type APIError struct {
	Status int
	// Detail is the body's "error" field when present, else the whole body.
	Detail json.RawMessage
}

func (e *APIError) Error() string {
	return fmt.Sprintf("relay returned %d: %s", e.Status, e.Message())
}

// Message renders Detail as text. String details are unquoted and objects
// carrying a "message" key yield that message.
func (e *APIError) Message() string {
	var s string
	if err := json.Unmarshal(e.Detail, &s); err == nil {
		return s
	}
	var obj struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(e.Detail, &obj); err == nil && obj.Message != "" {
		return obj.Message
	}
	return string(e.Detail)
}

// Client is a JSON-over-HTTP client bound to one base URL.
type Client struct {
	baseURL string
	origin  string
	http    *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the per-request timeout of the default http.Client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// New creates a client. origin is sent as the Origin header on every request.
// The client has no cookie jar, so no ambient credentials are forwarded.
func New(baseURL, origin string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		origin:  origin,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the configured base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Request sends body (if non-nil) as a method request to endpoint and returns the parsed
// JSON response. An empty method means GET.
//
// Network failures are returned as the http.Client error value. A body that
// is not JSON yields ErrInvalidResponse. A non-2xx status yields *APIError.
func (c *Client) Request(ctx context.Context, method, endpoint string, body interface{}) (json.RawMessage, error) {
	if method == "" {
		method = http.MethodGet
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.origin != "" {
		req.Header.Set("Origin", c.origin)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	logging.TransportDebug("%s %s -> %d (%s)", method, endpoint, resp.StatusCode, time.Since(start))

	if !json.Valid(raw) {
		return nil, ErrInvalidResponse
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return json.RawMessage(raw), nil
	}

	detail := json.RawMessage(raw)
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(raw, &envelope); err == nil {
		if e, ok := envelope["error"]; ok && string(e) != "null" && string(e) != `""` {
			detail = e
		}
	}
	return nil, &APIError{Status: resp.StatusCode, Detail: detail}
}

// Call is Request plus decoding of the response into out (skipped when out is nil).
func (c *Client) Call(ctx context.Context, method, endpoint string, body, out interface{}) error {
	raw, err := c.Request(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	return nil
}
