package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"grokrelay/internal/api"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, opts Options) (*Server, *httptest.Server) {
	t.Helper()
	if opts.RateLimitDelay == 0 {
		opts.RateLimitDelay = time.Millisecond
	}
	s := New(opts)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts
}

func do(t *testing.T, ts *httptest.Server, method, path, contentType, body string) (int, map[string]interface{}) {
	t.Helper()
	req, err := http.NewRequest(method, ts.URL+BasePath+path, strings.NewReader(body))
	require.NoError(t, err)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func postJSON(t *testing.T, ts *httptest.Server, path string, v interface{}) (int, map[string]interface{}) {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(v))
	return do(t, ts, http.MethodPost, path, "application/json", buf.String())
}

func TestChat_QueueAndPop(t *testing.T) {
	_, ts := newTestServer(t, Options{})

	code, body := postJSON(t, ts, api.PathChat, api.ChatRequest{Message: "Hi"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "Message queued successfully", body["message"])

	code, body = do(t, ts, http.MethodGet, api.PathLatestPending, "", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "chat.completion", body["object"])
	assert.Equal(t, "grok-1", body["model"])
	assert.Regexp(t, `^chatcmpl-[0-9a-f]{8}$`, body["id"])

	choices := body["choices"].([]interface{})
	require.Len(t, choices, 1)
	choice := choices[0].(map[string]interface{})
	assert.Nil(t, choice["finish_reason"])
	assert.Contains(t, choice, "finish_reason")
	msg := choice["message"].(map[string]interface{})
	assert.Equal(t, "user", msg["role"])
	assert.Equal(t, "Hi", msg["content"])

	// Queue drained.
	_, body = do(t, ts, http.MethodGet, api.PathPending, "", "")
	assert.Empty(t, body["choices"])
	assert.NotNil(t, body["choices"])
}

func TestChat_FIFOAcrossBothPendingRoutes(t *testing.T) {
	_, ts := newTestServer(t, Options{})
	for _, m := range []string{"one", "two"} {
		code, _ := postJSON(t, ts, api.PathChat, api.ChatRequest{Message: m})
		require.Equal(t, http.StatusOK, code)
	}

	_, first := do(t, ts, http.MethodGet, api.PathPending, "", "")
	_, second := do(t, ts, http.MethodGet, api.PathLatestPending, "", "")
	content := func(b map[string]interface{}) string {
		c := b["choices"].([]interface{})[0].(map[string]interface{})
		return c["message"].(map[string]interface{})["content"].(string)
	}
	assert.Equal(t, "one", content(first))
	assert.Equal(t, "two", content(second))
}

func TestChat_Validation(t *testing.T) {
	_, ts := newTestServer(t, Options{})

	code, body := do(t, ts, http.MethodPost, api.PathChat, "text/plain", "Hi")
	assert.Equal(t, http.StatusUnsupportedMediaType, code)
	assert.Equal(t, "Content-Type must be application/json", body["error"])

	code, body = postJSON(t, ts, api.PathChat, map[string]string{})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Message is required", body["error"])

	code, _ = postJSON(t, ts, api.PathChat, api.ChatRequest{Message: "dup"})
	require.Equal(t, http.StatusOK, code)
	code, body = postJSON(t, ts, api.PathChat, api.ChatRequest{Message: "dup"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Message already processed", body["error"])
}

func TestMarkProcessed_BlocksResend(t *testing.T) {
	s, ts := newTestServer(t, Options{})

	code, body := postJSON(t, ts, api.PathMarkProcessed, api.MarkProcessedRequest{Message: "seen"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["success"])

	code, _ = postJSON(t, ts, api.PathChat, api.ChatRequest{Message: "seen"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Zero(t, s.Store().Pending())

	code, _ = postJSON(t, ts, api.PathMarkProcessed, map[string]string{})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestStoreReply_AndRetrieve(t *testing.T) {
	_, ts := newTestServer(t, Options{})

	code, body := postJSON(t, ts, api.PathCompletions, api.ReplyRequest{Response: "Hello back"})
	require.Equal(t, http.StatusOK, code)
	choice := body["choices"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "stop", choice["finish_reason"])
	msg := choice["message"].(map[string]interface{})
	assert.Equal(t, "assistant", msg["role"])
	assert.Equal(t, "Response stored successfully", msg["content"])

	code, body = do(t, ts, http.MethodGet, api.PathLatestResponse, "", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Hello back", body["response"])

	code, body = do(t, ts, http.MethodGet, api.PathLatestResponse, "", "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "No new responses available", body["error"])

	// Exhaustion cleared the storage.
	code, body = do(t, ts, http.MethodGet, api.PathLatestResponse, "", "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "No response available", body["error"])
}

func TestStoreReply_Validation(t *testing.T) {
	_, ts := newTestServer(t, Options{})

	code, body := do(t, ts, http.MethodPost, api.PathCompletions, "text/plain", "x")
	assert.Equal(t, http.StatusUnsupportedMediaType, code)
	errObj := body["error"].(map[string]interface{})
	assert.Equal(t, "invalid_request_error", errObj["type"])

	code, body = postJSON(t, ts, api.PathCompletions, map[string]string{"reply": "x"})
	assert.Equal(t, http.StatusBadRequest, code)
	errObj = body["error"].(map[string]interface{})
	assert.Equal(t, "Response is required", errObj["message"])

	// An empty reply is still a reply.
	code, _ = postJSON(t, ts, api.PathCompletions, api.ReplyRequest{Response: ""})
	assert.Equal(t, http.StatusOK, code)
}

func TestCORS(t *testing.T) {
	_, ts := newTestServer(t, Options{})

	req, err := http.NewRequest(http.MethodOptions, ts.URL+BasePath+api.PathChat, nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://grok.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "Content-Type")
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestRateLimit_DelaysRequests(t *testing.T) {
	_, ts := newTestServer(t, Options{RateLimitDelay: 60 * time.Millisecond})

	start := time.Now()
	for i := 0; i < 3; i++ {
		code, _ := do(t, ts, http.MethodGet, api.PathPending, "", "")
		require.Equal(t, http.StatusOK, code)
	}
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
}

func TestServe_ShutsDownOnCancel(t *testing.T) {
	s := New(Options{RateLimitDelay: time.Millisecond})
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + BasePath + api.PathPending)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
