package relay

import (
	"sync"
	"time"
)

// Store holds the relay's in-memory state: the FIFO of pending user
// messages, the set of messages already accepted, and the ring of replies.
type Store struct {
	maxResponses int
	ttl          time.Duration
	now          func() time.Time

	qmu       sync.Mutex
	queue     []string
	processed map[string]struct{}

	rmu       sync.Mutex
	responses []storedReply
	retrieved map[string]struct{}
}

type storedReply struct {
	text string
	at   time.Time
}

// NewStore creates a store keeping at most maxResponses replies for ttl.
// A nil now selects time.Now.
func NewStore(maxResponses int, ttl time.Duration, now func() time.Time) *Store {
	if maxResponses <= 0 {
		maxResponses = DefaultMaxResponses
	}
	if ttl <= 0 {
		ttl = DefaultResponseTTL
	}
	if now == nil {
		now = time.Now
	}
	return &Store{
		maxResponses: maxResponses,
		ttl:          ttl,
		now:          now,
		processed:    make(map[string]struct{}),
		retrieved:    make(map[string]struct{}),
	}
}

// Enqueue queues msg and remembers it. It returns false when msg was seen
// before.
func (s *Store) Enqueue(msg string) bool {
	s.qmu.Lock()
	defer s.qmu.Unlock()
	if _, seen := s.processed[msg]; seen {
		return false
	}
	s.queue = append(s.queue, msg)
	s.processed[msg] = struct{}{}
	return true
}

// Pop removes and returns the oldest pending message.
func (s *Store) Pop() (string, bool) {
	s.qmu.Lock()
	defer s.qmu.Unlock()
	if len(s.queue) == 0 {
		return "", false
	}
	msg := s.queue[0]
	s.queue = s.queue[1:]
	return msg, true
}

// MarkProcessed adds msg to the processed set without queueing it.
func (s *Store) MarkProcessed(msg string) {
	s.qmu.Lock()
	defer s.qmu.Unlock()
	s.processed[msg] = struct{}{}
}

// Pending returns the number of queued messages.
func (s *Store) Pending() int {
	s.qmu.Lock()
	defer s.qmu.Unlock()
	return len(s.queue)
}

// AddReply stores a reply, evicting the oldest beyond maxResponses.
func (s *Store) AddReply(text string) {
	s.rmu.Lock()
	defer s.rmu.Unlock()
	s.responses = append(s.responses, storedReply{text: text, at: s.now()})
	if over := len(s.responses) - s.maxResponses; over > 0 {
		s.responses = append([]storedReply(nil), s.responses[over:]...)
	}
}

// LatestResult classifies a Latest lookup.
type LatestResult int

const (
	LatestFound LatestResult = iota
	// LatestEmpty means no replies are stored.
	LatestEmpty
	// LatestExhausted means every stored reply was already handed out; the
	// store has been cleared.
	LatestExhausted
)

// Latest returns the newest reply not handed out yet and marks it retrieved.
// Replies older than the TTL are dropped first.
func (s *Store) Latest() (string, LatestResult) {
	s.rmu.Lock()
	defer s.rmu.Unlock()

	s.pruneLocked()
	if len(s.responses) == 0 {
		return "", LatestEmpty
	}
	for i := len(s.responses) - 1; i >= 0; i-- {
		text := s.responses[i].text
		if _, done := s.retrieved[text]; !done {
			s.retrieved[text] = struct{}{}
			return text, LatestFound
		}
	}

	s.responses = nil
	s.retrieved = make(map[string]struct{})
	return "", LatestExhausted
}

func (s *Store) pruneLocked() {
	cutoff := s.now().Add(-s.ttl)
	keep := s.responses[:0]
	for _, r := range s.responses {
		if r.at.After(cutoff) {
			keep = append(keep, r)
		}
	}
	s.responses = keep
}
