// Package api holds the relay wire types shared by the relay server, the
// bridge and the chat client, plus a typed client for the bridge side.
package api

// Relay endpoint paths (relative to /api/v1) and envelope constants.
const (
	PathChat             = "/chat"
	PathPending          = "/messages/pending"
	PathLatestPending    = "/chat/completions/latest"
	PathCompletions      = "/chat/completions"
	PathLatestResponse   = "/response/latest"
	PathMarkProcessed    = "/messages/mark-processed"
	DefaultModel         = "grok-1"
	ObjectChatCompletion = "chat.completion"
)

// Message is one chat turn inside a completion choice.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Choice is one entry of a completion's choice list.
type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason *string `json:"finish_reason"`
}

// Completion is the OpenAI-style envelope the relay answers with.
type Completion struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"`
	Created int64    `json:"created"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
}

// PendingMessage is the next user turn waiting to be injected into the page.
type PendingMessage struct {
	Content string
}

// Pending extracts the pending message from a completion, if any.
// Only the first choice is considered and empty content counts as none.
func (c *Completion) Pending() (PendingMessage, bool) {
	if c == nil || len(c.Choices) == 0 || c.Choices[0].Message.Content == "" {
		return PendingMessage{}, false
	}
	return PendingMessage{Content: c.Choices[0].Message.Content}, true
}

// ChatRequest is the body of POST /chat.
type ChatRequest struct {
	Message string `json:"message"`
}

// ChatAck answers a successful POST /chat.
type ChatAck struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// ReplyRequest is the body of POST /chat/completions.
type ReplyRequest struct {
	Response string `json:"response"`
}

// MarkProcessedRequest is the body of POST /messages/mark-processed.
type MarkProcessedRequest struct {
	Message string `json:"message"`
}

// LatestResponse answers GET /response/latest.
type LatestResponse struct {
	Response string `json:"response"`
}

// ErrorDetail is the structured error object used by the completion endpoints.
type ErrorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}
