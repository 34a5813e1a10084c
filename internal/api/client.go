package api

import (
	"context"
	"fmt"
	"net/http"

	"grokrelay/internal/transport"
)

// Client is the bridge's view of the relay API.
type Client struct {
	t *transport.Client
}

// NewClient wraps a transport client.
func NewClient(t *transport.Client) *Client {
	return &Client{t: t}
}

// FetchPending asks the relay for the next pending message.
func (c *Client) FetchPending(ctx context.Context) (PendingMessage, bool, error) {
	var comp Completion
	if err := c.t.Call(ctx, http.MethodGet, PathLatestPending, nil, &comp); err != nil {
		return PendingMessage{}, false, fmt.Errorf("fetch pending: %w", err)
	}
	msg, ok := comp.Pending()
	return msg, ok, nil
}

// ReportReply posts a captured reply.
func (c *Client) ReportReply(ctx context.Context, reply string) error {
	if err := c.t.Call(ctx, http.MethodPost, PathCompletions, ReplyRequest{Response: reply}, nil); err != nil {
		return fmt.Errorf("report reply: %w", err)
	}
	return nil
}

// MarkProcessed marks the source message as handled.
func (c *Client) MarkProcessed(ctx context.Context, message string) error {
	if err := c.t.Call(ctx, http.MethodPost, PathMarkProcessed, MarkProcessedRequest{Message: message}, nil); err != nil {
		return fmt.Errorf("mark processed: %w", err)
	}
	return nil
}
