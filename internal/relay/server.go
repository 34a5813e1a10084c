// Package relay implements the HTTP relay the bridge and chat clients talk
// to: a queue of pending user messages and a short-lived store of replies.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/http"
	"strings"
	"time"

	"grokrelay/internal/api"
	"grokrelay/internal/logging"

	"github.com/google/uuid"
	"github.com/rs/cors"
	"golang.org/x/time/rate"
)

// BasePath prefixes every relay route.
const BasePath = "/api/v1"

// Defaults.
const (
	DefaultMaxResponses   = 10
	DefaultRateLimitDelay = time.Second
	DefaultResponseTTL    = 5 * time.Minute
)

const maxBodyBytes = 1 << 20

// Options configures a Server.
type Options struct {
	MaxResponses   int
	RateLimitDelay time.Duration
	ResponseTTL    time.Duration
	Now            func() time.Time // nil = time.Now
}

// Server serves the relay API.
type Server struct {
	store   *Store
	limiter *rate.Limiter
	now     func() time.Time
	handler http.Handler
}

// New creates a relay server.
func New(opts Options) *Server {
	if opts.RateLimitDelay <= 0 {
		opts.RateLimitDelay = DefaultRateLimitDelay
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	s := &Server{
		store:   NewStore(opts.MaxResponses, opts.ResponseTTL, opts.Now),
		limiter: rate.NewLimiter(rate.Every(opts.RateLimitDelay), 1),
		now:     opts.Now,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST "+BasePath+api.PathChat, s.limited(s.handleChat))
	mux.HandleFunc("GET "+BasePath+api.PathPending, s.limited(s.handlePending))
	mux.HandleFunc("GET "+BasePath+api.PathLatestPending, s.limited(s.handlePending))
	mux.HandleFunc("POST "+BasePath+api.PathCompletions, s.handleStoreReply)
	mux.HandleFunc("GET "+BasePath+api.PathLatestResponse, s.handleLatestResponse)
	mux.HandleFunc("POST "+BasePath+api.PathMarkProcessed, s.handleMarkProcessed)

	s.handler = cors.AllowAll().Handler(logRequests(mux))
	return s
}

// Handler returns the HTTP handler with CORS applied.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Store exposes the server's state.
func (s *Server) Store() *Store {
	return s.store
}

// ListenAndServe serves on addr until ctx is done, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	logging.Relay("relay listening on %s", ln.Addr())

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			_ = srv.Close()
		}
		<-errCh
		logging.Relay("relay stopped")
		return nil
	}
}

// limited waits for the shared rate limiter before calling next. Requests
// are delayed, never rejected.
func (s *Server) limited(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.limiter.Wait(r.Context()); err != nil {
			return
		}
		next(w, r)
	}
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if !isJSON(r) {
		writeError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return
	}
	var body map[string]json.RawMessage
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var msg string
	if raw, ok := body["message"]; ok {
		_ = json.Unmarshal(raw, &msg)
	}
	if msg == "" {
		writeError(w, http.StatusBadRequest, "Message is required")
		return
	}
	if !s.store.Enqueue(msg) {
		writeError(w, http.StatusBadRequest, "Message already processed")
		return
	}
	logging.RelayDebug("queued message (%d chars, %d pending)", len(msg), s.store.Pending())
	writeJSON(w, http.StatusOK, api.ChatAck{Success: true, Message: "Message queued successfully"})
}

func (s *Server) handlePending(w http.ResponseWriter, r *http.Request) {
	comp := s.completion()
	if msg, ok := s.store.Pop(); ok {
		comp.Choices = append(comp.Choices, api.Choice{
			Index:   0,
			Message: api.Message{Role: "user", Content: msg},
		})
		logging.RelayDebug("handed out pending message %s", comp.ID)
	}
	writeJSON(w, http.StatusOK, comp)
}

func (s *Server) handleStoreReply(w http.ResponseWriter, r *http.Request) {
	if !isJSON(r) {
		writeAPIError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return
	}
	var body map[string]json.RawMessage
	if err := decodeBody(w, r, &body); err != nil {
		writeAPIError(w, http.StatusBadRequest, err.Error())
		return
	}
	raw, ok := body["response"]
	var reply string
	if !ok || json.Unmarshal(raw, &reply) != nil {
		writeAPIError(w, http.StatusBadRequest, "Response is required")
		return
	}
	s.store.AddReply(reply)
	logging.RelayDebug("stored reply (%d chars)", len(reply))

	stop := "stop"
	comp := s.completion()
	comp.Choices = append(comp.Choices, api.Choice{
		Index:        0,
		Message:      api.Message{Role: "assistant", Content: "Response stored successfully"},
		FinishReason: &stop,
	})
	writeJSON(w, http.StatusOK, comp)
}

func (s *Server) handleLatestResponse(w http.ResponseWriter, r *http.Request) {
	text, res := s.store.Latest()
	switch res {
	case LatestEmpty:
		writeError(w, http.StatusNotFound, "No response available")
	case LatestExhausted:
		writeError(w, http.StatusNotFound, "No new responses available")
	default:
		writeJSON(w, http.StatusOK, api.LatestResponse{Response: text})
	}
}

func (s *Server) handleMarkProcessed(w http.ResponseWriter, r *http.Request) {
	var req api.MarkProcessedRequest
	if err := decodeBody(w, r, &req); err != nil || req.Message == "" {
		writeError(w, http.StatusBadRequest, "Message is required")
		return
	}
	s.store.MarkProcessed(req.Message)
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) completion() api.Completion {
	return api.Completion{
		ID:      "chatcmpl-" + uuid.NewString()[:8],
		Object:  api.ObjectChatCompletion,
		Created: s.now().Unix(),
		Model:   api.DefaultModel,
		Choices: []api.Choice{},
	}
}

func isJSON(r *http.Request) bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return false
	}
	return mt == "application/json" || (strings.HasPrefix(mt, "application/") && strings.HasSuffix(mt, "+json"))
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Get(logging.CategoryRelay).Warn("write response: %v", err)
	}
}

// writeError answers with the flat {"error": "..."} shape.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeAPIError answers with the structured completion-endpoint error shape.
func writeAPIError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]api.ErrorDetail{
		"error": {Message: msg, Type: "invalid_request_error"},
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logging.RelayDebug("%s %s -> %d (%s)", r.Method, r.URL.Path, rec.status, time.Since(start))
	})
}
