package bridge

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"grokrelay/internal/api"
	"grokrelay/internal/config"
	"grokrelay/internal/inject"
	"grokrelay/internal/observe"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// journal records calls across all fakes in order.
type journal struct {
	mu    sync.Mutex
	calls []string
}

func (j *journal) add(s string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.calls = append(j.calls, s)
}

func (j *journal) list() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.calls...)
}

type fakeRelay struct {
	j         *journal
	pending   []string
	fetchErr  error
	reportErr error
}

func (f *fakeRelay) FetchPending(context.Context) (api.PendingMessage, bool, error) {
	f.j.add("fetch")
	if f.fetchErr != nil {
		return api.PendingMessage{}, false, f.fetchErr
	}
	if len(f.pending) == 0 {
		return api.PendingMessage{}, false, nil
	}
	msg := f.pending[0]
	f.pending = f.pending[1:]
	return api.PendingMessage{Content: msg}, true, nil
}

func (f *fakeRelay) ReportReply(_ context.Context, reply string) error {
	f.j.add("report:" + reply)
	return f.reportErr
}

func (f *fakeRelay) MarkProcessed(_ context.Context, message string) error {
	f.j.add("mark:" + message)
	return nil
}

type fakeSubmitter struct {
	j   *journal
	ok  bool
	err error
}

func (f *fakeSubmitter) Submit(_ context.Context, text string) (bool, error) {
	f.j.add("submit:" + text)
	return f.ok, f.err
}

type fakeObserver struct {
	j     *journal
	reply string
	ok    bool
}

func (f *fakeObserver) Observe(context.Context) (string, bool) {
	f.j.add("observe")
	return f.reply, f.ok
}

func TestTick_EndToEnd(t *testing.T) {
	j := &journal{}
	b := New(
		&fakeRelay{j: j, pending: []string{"Hi"}},
		&fakeSubmitter{j: j, ok: true},
		&fakeObserver{j: j, reply: "Hello back", ok: true},
		time.Second, ScheduleRearm,
	)

	require.NoError(t, b.Tick(context.Background()))

	want := []string{"fetch", "submit:Hi", "observe", "report:Hello back", "mark:Hi"}
	if diff := cmp.Diff(want, j.list()); diff != "" {
		t.Errorf("call order mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, Stats{Ticks: 1, Submitted: 1, Replies: 1}, b.Stats())
}

func TestTick_NoPendingMessage(t *testing.T) {
	j := &journal{}
	b := New(&fakeRelay{j: j}, &fakeSubmitter{j: j, ok: true}, &fakeObserver{j: j}, time.Second, ScheduleRearm)

	require.NoError(t, b.Tick(context.Background()))
	assert.Equal(t, []string{"fetch"}, j.list())
}

func TestTick_SubmitFalseSkipsRest(t *testing.T) {
	j := &journal{}
	b := New(&fakeRelay{j: j, pending: []string{"Hi"}}, &fakeSubmitter{j: j, ok: false}, &fakeObserver{j: j, ok: true}, time.Second, ScheduleRearm)

	require.NoError(t, b.Tick(context.Background()))
	assert.Equal(t, []string{"fetch", "submit:Hi"}, j.list())
}

func TestTick_NoReplySendsNothing(t *testing.T) {
	j := &journal{}
	b := New(&fakeRelay{j: j, pending: []string{"Hi"}}, &fakeSubmitter{j: j, ok: true}, &fakeObserver{j: j, ok: false}, time.Second, ScheduleRearm)

	require.NoError(t, b.Tick(context.Background()))
	assert.Equal(t, []string{"fetch", "submit:Hi", "observe"}, j.list())
}

func TestTick_ReportFailureSkipsMark(t *testing.T) {
	j := &journal{}
	b := New(
		&fakeRelay{j: j, pending: []string{"Hi"}, reportErr: errors.New("relay down")},
		&fakeSubmitter{j: j, ok: true},
		&fakeObserver{j: j, reply: "r", ok: true},
		time.Second, ScheduleRearm,
	)

	assert.Error(t, b.Tick(context.Background()))
	assert.NotContains(t, j.list(), "mark:Hi")
}

func TestTick_SubmitErrorStopsTick(t *testing.T) {
	j := &journal{}
	b := New(&fakeRelay{j: j, pending: []string{"Hi"}}, &fakeSubmitter{j: j, err: errors.New("cdp")}, &fakeObserver{j: j, ok: true}, time.Second, ScheduleRearm)

	assert.Error(t, b.Tick(context.Background()))
	assert.Equal(t, []string{"fetch", "submit:Hi"}, j.list())
}

// slowRelay blocks inside FetchPending and tracks concurrent ticks.
type slowRelay struct {
	active, maxActive, fetches atomic.Int32
	hold                       time.Duration
	fail                       bool
}

func (s *slowRelay) FetchPending(ctx context.Context) (api.PendingMessage, bool, error) {
	n := s.active.Add(1)
	defer s.active.Add(-1)
	for {
		m := s.maxActive.Load()
		if n <= m || s.maxActive.CompareAndSwap(m, n) {
			break
		}
	}
	s.fetches.Add(1)
	select {
	case <-time.After(s.hold):
	case <-ctx.Done():
	}
	if s.fail {
		return api.PendingMessage{}, false, errors.New("relay unreachable")
	}
	return api.PendingMessage{}, false, nil
}

func (s *slowRelay) ReportReply(context.Context, string) error   { return nil }
func (s *slowRelay) MarkProcessed(context.Context, string) error { return nil }

func TestRun_RearmNeverOverlaps(t *testing.T) {
	relay := &slowRelay{hold: 30 * time.Millisecond, fail: true}
	b := New(relay, &fakeSubmitter{j: &journal{}}, &fakeObserver{j: &journal{}}, 5*time.Millisecond, ScheduleRearm)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	err := b.Run(ctx)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.EqualValues(t, 1, relay.maxActive.Load())
	assert.GreaterOrEqual(t, relay.fetches.Load(), int32(2), "failures must not stop the loop")
	assert.Equal(t, b.Stats().Ticks, b.Stats().Failures)
}

func TestRun_FixedMayOverlap(t *testing.T) {
	relay := &slowRelay{hold: 60 * time.Millisecond}
	b := New(relay, &fakeSubmitter{j: &journal{}}, &fakeObserver{j: &journal{}}, 10*time.Millisecond, ScheduleFixed)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_ = b.Run(ctx)

	assert.Greater(t, relay.maxActive.Load(), int32(1))
	// Run waits for in-flight ticks before returning.
	assert.EqualValues(t, 0, relay.active.Load())
}

// page is a fake chat page implementing both inject.Locator and observe.Source.
type page struct {
	j      *journal
	value  string
	bubble *observe.Bubble
}

func (p *page) Controls(context.Context) (inject.TextControl, inject.SubmitControl, error) {
	return p, p, nil
}

func (p *page) SetNativeValue(_ context.Context, v string) error {
	p.value = v
	return nil
}

func (p *page) Dispatch(context.Context, inject.Event) error        { return nil }
func (p *page) ResetValueTracker(context.Context) (bool, error)     { return true, nil }
func (p *page) LastBubble(context.Context) (*observe.Bubble, error) { return p.bubble, nil }

func (p *page) Activate(context.Context) error {
	p.j.add("submit:" + p.value)
	p.bubble = &observe.Bubble{HasContainer: true, ShareButton: true, Texts: []string{"Hello back"}}
	return nil
}

func TestAssemble_OwnsCacheAndDeduplicates(t *testing.T) {
	j := &journal{}
	relay := &fakeRelay{j: j, pending: []string{"Hi", "Hi again"}}
	p := &page{j: j}
	var sleeps int
	b := Assemble(relay, p, p, Options{
		Interval:   time.Second,
		RetryDelay: time.Second,
		MaxRetries: 2,
		Sleep: func(context.Context, time.Duration) error {
			sleeps++
			return nil
		},
	})

	require.NoError(t, b.Tick(context.Background()))
	cached, ok := b.LastReply().Get()
	require.True(t, ok)
	assert.Equal(t, "Hello back", cached)

	// Same reply text again: deduplicated, nothing reported.
	require.NoError(t, b.Tick(context.Background()))
	assert.Equal(t, 2, sleeps)

	want := []string{
		"fetch", "submit:Hi", "report:Hello back", "mark:Hi",
		"fetch", "submit:Hi again",
	}
	if diff := cmp.Diff(want, j.list()); diff != "" {
		t.Errorf("call order mismatch (-want +got):\n%s", diff)
	}
}

func TestParseSchedule(t *testing.T) {
	s, err := ParseSchedule("rearm")
	require.NoError(t, err)
	assert.Equal(t, ScheduleRearm, s)

	s, err = ParseSchedule("fixed")
	require.NoError(t, err)
	assert.Equal(t, ScheduleFixed, s)

	for _, bad := range []string{"", "cron", "Fixed", "REARM"} {
		_, err = ParseSchedule(bad)
		assert.Error(t, err, bad)
	}
}

func TestParseSchedule_AgreesWithConfigValidate(t *testing.T) {
	for _, name := range []string{"", "rearm", "fixed", "Fixed", "cron"} {
		cfg := config.DefaultConfig()
		cfg.Bridge.Schedule = name
		_, parseErr := ParseSchedule(name)
		assert.Equal(t, cfg.Validate() == nil, parseErr == nil, name)
	}
}
