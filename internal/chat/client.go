// Package chat is the user-facing side of the relay: it queues messages and
// waits for the bridge to post the page's reply.
package chat

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"grokrelay/internal/api"
	"grokrelay/internal/logging"
	"grokrelay/internal/transport"
)

// ErrNoResponse is returned when no reply arrives before the wait timeout.
var ErrNoResponse = errors.New("no response received within timeout")

// Defaults for WaitResponse.
const (
	DefaultWaitTimeout  = 300 * time.Second
	DefaultPollInterval = 500 * time.Millisecond
)

// Client talks to the relay on behalf of a human user.
type Client struct {
	t    *transport.Client
	poll time.Duration
}

// NewClient wraps a transport client.
func NewClient(t *transport.Client) *Client {
	return &Client{t: t, poll: DefaultPollInterval}
}

// WithPollInterval returns a copy polling every d.
func (c *Client) WithPollInterval(d time.Duration) *Client {
	cp := *c
	if d > 0 {
		cp.poll = d
	}
	return &cp
}

// Send queues a message on the relay.
func (c *Client) Send(ctx context.Context, message string) error {
	var ack api.ChatAck
	if err := c.t.Call(ctx, http.MethodPost, api.PathChat, api.ChatRequest{Message: message}, &ack); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	logging.Get(logging.CategoryChat).Debug("message queued: %s", ack.Message)
	return nil
}

// WaitResponse polls for the next unretrieved reply. Relay "not found"
// answers keep the wait going; transport failures end it. A timeout of
// zero selects DefaultWaitTimeout.
func (c *Client) WaitResponse(ctx context.Context, timeout time.Duration) (string, error) {
	if timeout <= 0 {
		timeout = DefaultWaitTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(c.poll)
	defer ticker.Stop()
	for {
		var latest api.LatestResponse
		err := c.t.Call(ctx, http.MethodGet, api.PathLatestResponse, nil, &latest)
		if err == nil {
			return latest.Response, nil
		}

		var apiErr *transport.APIError
		switch {
		case ctx.Err() != nil:
			// fall through to the deadline check below
		case errors.As(err, &apiErr):
			logging.Get(logging.CategoryChat).Debug("no reply yet: %s", apiErr.Message())
		default:
			return "", fmt.Errorf("get response: %w", err)
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return "", ErrNoResponse
			}
			return "", ctx.Err()
		case <-ticker.C:
		}
	}
}

// Ask sends message and waits for the reply.
func (c *Client) Ask(ctx context.Context, message string, timeout time.Duration) (string, error) {
	if err := c.Send(ctx, message); err != nil {
		return "", err
	}
	return c.WaitResponse(ctx, timeout)
}
