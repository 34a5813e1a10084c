// Package observe scrapes the newest chat reply from the page once the
// page stops generating it.
package observe

import (
	"context"
	"strings"
	"sync"
	"time"
	"unicode"

	"grokrelay/internal/logging"
)

// Bubble is the state of the newest message node at one point in time.
type Bubble struct {
	// HasContainer reports whether the node sits inside the container the
	// generation markers are looked up in.
	HasContainer bool `json:"hasContainer"`
	Spinner      bool `json:"spinner"`
	Typing       bool `json:"typing"`
	ShareButton  bool `json:"shareButton"`
	// Texts holds the textContent of each text-bearing child, untrimmed.
	Texts []string `json:"texts"`
}

// Generating reports whether the reply is still being produced: a spinner,
// a typing indicator, or no share control all mean "not final yet".
func (b *Bubble) Generating() bool {
	if !b.HasContainer {
		return true
	}
	return b.Spinner || b.Typing || !b.ShareButton
}

// Text joins the non-empty trimmed child texts with newlines.
func (b *Bubble) Text() string {
	parts := make([]string, 0, len(b.Texts))
	for _, t := range b.Texts {
		if t = trimText(t); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, "\n")
}

// trimText strips what String.prototype.trim strips: Unicode white space
// plus the byte order mark.
func trimText(s string) string {
	return strings.TrimFunc(s, func(r rune) bool {
		return unicode.IsSpace(r) || r == '\uFEFF'
	})
}

// Source reports the newest message node, or nil when there are none.
type Source interface {
	LastBubble(ctx context.Context) (*Bubble, error)
}

// LastReply remembers the most recently captured reply. Zero value is unset.
type LastReply struct {
	mu   sync.Mutex
	text string
	set  bool
}

// Get returns the cached reply and whether one was stored.
func (c *LastReply) Get() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.text, c.set
}

// Set stores text as the most recent reply.
func (c *LastReply) Set(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.text, c.set = text, true
}

// claim stores text unless it equals the cached reply, reporting whether it did.
func (c *LastReply) claim(text string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.set && c.text == text {
		return false
	}
	c.text, c.set = text, true
	return true
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Sleep is the wall-clock Sleeper.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Defaults.
const (
	DefaultRetryDelay = 5 * time.Second
	DefaultMaxRetries = 10
)

// Options configures an Observer.
type Options struct {
	RetryDelay time.Duration
	MaxRetries int // extra attempts after the first check
	Sleep      Sleeper
}

// Observer polls a Source until a new, finished reply appears.
type Observer struct {
	src   Source
	cache *LastReply
	opts  Options
}

// New creates an observer. cache is shared with the caller so it outlives
// individual observations.
func New(src Source, cache *LastReply, opts Options) *Observer {
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = DefaultRetryDelay
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = DefaultMaxRetries
	}
	if opts.Sleep == nil {
		opts.Sleep = Sleep
	}
	if cache == nil {
		cache = &LastReply{}
	}
	return &Observer{src: src, cache: cache, opts: opts}
}

// Observe checks the page up to MaxRetries+1 times, RetryDelay apart. It
// returns the reply text once the newest message is finished, non-empty and
// different from the cached reply. A Source error gives up immediately.
func (o *Observer) Observe(ctx context.Context) (string, bool) {
	log := logging.Get(logging.CategoryObserve)

	for attempt := 0; ; attempt++ {
		bubble, err := o.src.LastBubble(ctx)
		if err != nil {
			log.Error("error getting last response: %v", err)
			return "", false
		}

		if bubble != nil && !bubble.Generating() {
			if text := bubble.Text(); text != "" && o.cache.claim(text) {
				log.Debug("reply captured on attempt %d (%d chars)", attempt+1, len(text))
				return text, true
			}
		}

		if attempt >= o.opts.MaxRetries {
			log.Debug("no new reply after %d checks", attempt+1)
			return "", false
		}
		if err := o.opts.Sleep(ctx, o.opts.RetryDelay); err != nil {
			log.Debug("observation cancelled: %v", err)
			return "", false
		}
	}
}
