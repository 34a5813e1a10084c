// Package bridge runs the poll loop that moves pending messages from the
// relay into the chat page and replies back out.
package bridge

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"grokrelay/internal/api"
	"grokrelay/internal/config"
	"grokrelay/internal/inject"
	"grokrelay/internal/logging"
	"grokrelay/internal/observe"

	"github.com/google/uuid"
)

// Relay is the subset of the relay API the loop uses.
type Relay interface {
	FetchPending(ctx context.Context) (api.PendingMessage, bool, error)
	ReportReply(ctx context.Context, reply string) error
	MarkProcessed(ctx context.Context, message string) error
}

// Submitter injects a message into the page.
type Submitter interface {
	Submit(ctx context.Context, text string) (bool, error)
}

// Observer waits for the page's reply.
type Observer interface {
	Observe(ctx context.Context) (string, bool)
}

// Schedule decides how ticks are armed.
type Schedule string

const (
	// ScheduleRearm arms the next tick only after the previous one returns.
	ScheduleRearm Schedule = config.ScheduleRearm
	// ScheduleFixed fires every interval; a slow tick may overlap the next.
	ScheduleFixed Schedule = config.ScheduleFixed
)

// DefaultPollInterval is the spacing between ticks.
const DefaultPollInterval = 2 * time.Second

// Stats counts tick outcomes.
type Stats struct {
	Ticks     int64
	Submitted int64
	Replies   int64
	Failures  int64
}

// Bridge is the poll loop orchestrator.
type Bridge struct {
	relay    Relay
	input    Submitter
	observer Observer
	interval time.Duration
	schedule Schedule
	cache    *observe.LastReply

	ticks, submitted, replies, failures atomic.Int64
}

// New creates a bridge.
func New(relay Relay, input Submitter, observer Observer, interval time.Duration, schedule Schedule) *Bridge {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if schedule != ScheduleFixed {
		schedule = ScheduleRearm
	}
	return &Bridge{
		relay:    relay,
		input:    input,
		observer: observer,
		interval: interval,
		schedule: schedule,
	}
}

// Options configures Assemble.
type Options struct {
	Interval   time.Duration
	Schedule   Schedule
	RetryDelay time.Duration
	MaxRetries int
	Sleep      observe.Sleeper // nil = wall clock
	Shim       inject.Shim     // nil = inject.ReactShim
}

// Assemble wires an injector and an observer around the page. The bridge
// owns the last-reply cache and hands it to the observer.
func Assemble(relay Relay, locator inject.Locator, source observe.Source, opts Options) *Bridge {
	cache := &observe.LastReply{}
	obs := observe.New(source, cache, observe.Options{
		RetryDelay: opts.RetryDelay,
		MaxRetries: opts.MaxRetries,
		Sleep:      opts.Sleep,
	})
	b := New(relay, inject.New(locator, opts.Shim), obs, opts.Interval, opts.Schedule)
	b.cache = cache
	return b
}

// LastReply returns the cache owned by an assembled bridge, nil otherwise.
func (b *Bridge) LastReply() *observe.LastReply {
	return b.cache
}

// Stats returns a snapshot of the counters.
func (b *Bridge) Stats() Stats {
	return Stats{
		Ticks:     b.ticks.Load(),
		Submitted: b.submitted.Load(),
		Replies:   b.replies.Load(),
		Failures:  b.failures.Load(),
	}
}

// Tick runs one fetch, submit, observe, report cycle. Steps are strictly
// sequential. It returns the first error; a missing control or a missing
// reply is not an error.
func (b *Bridge) Tick(ctx context.Context) error {
	b.ticks.Add(1)
	log := logging.Get(logging.CategoryBridge).With("tick", uuid.NewString()[:8])

	msg, ok, err := b.relay.FetchPending(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	log.Info("pending message received (%d chars)", len(msg.Content))

	submitted, err := b.input.Submit(ctx, msg.Content)
	if err != nil {
		return err
	}
	if !submitted {
		log.Warn("message not submitted, skipping tick")
		return nil
	}
	b.submitted.Add(1)

	reply, ok := b.observer.Observe(ctx)
	if !ok {
		log.Warn("no reply captured")
		return nil
	}

	if err := b.relay.ReportReply(ctx, reply); err != nil {
		return err
	}
	if err := b.relay.MarkProcessed(ctx, msg.Content); err != nil {
		return err
	}
	b.replies.Add(1)
	log.Info("reply reported (%d chars)", len(reply))
	return nil
}

// safeTick runs Tick and swallows its error after logging it.
func (b *Bridge) safeTick(ctx context.Context) {
	if err := b.Tick(ctx); err != nil {
		b.failures.Add(1)
		if ctx.Err() != nil {
			return
		}
		logging.Get(logging.CategoryBridge).Error("error processing message: %v", err)
	}
}

// Run ticks until ctx is done. Tick failures never stop the loop.
func (b *Bridge) Run(ctx context.Context) error {
	logging.Bridge("starting message listener (interval=%s schedule=%s)", b.interval, b.schedule)
	switch b.schedule {
	case ScheduleFixed:
		return b.runFixed(ctx)
	default:
		return b.runRearm(ctx)
	}
}

func (b *Bridge) runRearm(ctx context.Context) error {
	timer := time.NewTimer(b.interval)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			b.safeTick(ctx)
			timer.Reset(b.interval)
		}
	}
}

func (b *Bridge) runFixed(ctx context.Context) error {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	var wg sync.WaitGroup
	defer wg.Wait()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			wg.Add(1)
			go func() {
				defer wg.Done()
				b.safeTick(ctx)
			}()
		}
	}
}

// ParseSchedule maps a config string to a Schedule. It accepts exactly the
// names config.Validate accepts.
func ParseSchedule(s string) (Schedule, error) {
	if !config.IsValidSchedule(s) {
		return "", fmt.Errorf("unknown schedule %q (valid: %v)", s, config.ValidSchedules)
	}
	return Schedule(s), nil
}
