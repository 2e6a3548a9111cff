package session

import (
	"sync"
	"time"

	"lorekeeper/internal/reconcile"
)

type State string

const (
	StatePending  State = "pending"
	StateApproved State = "approved"
	StateRejected State = "rejected"
)

// Item is one queued recommendation. A failed apply leaves it pending with
// Failed set so it can be retried.
type Item struct {
	ID             string                   `json:"id"`
	Recommendation reconcile.Recommendation `json:"recommendation"`
	State          State                    `json:"state"`
	Failed         bool                     `json:"failed,omitempty"`
	Err            error                    `json:"-"`
	DecidedAt      time.Time                `json:"decided_at,omitzero"`
}

// Result reports the outcome of a single decision.
type Result struct {
	ItemID string `json:"item_id"`
	State  State  `json:"state"`
	Err    error  `json:"-"`
}

// Session is the review queue produced by one reconciliation run.
type Session struct {
	ID        string
	StoryID   string
	CreatedAt time.Time

	mu     sync.Mutex
	result *reconcile.Result
	items  []*Item
	lock   *StoryLock
	closed bool
}

func newSession(id, storyID string, createdAt time.Time, result *reconcile.Result, lock *StoryLock) *Session {
	s := &Session{
		ID:        id,
		StoryID:   storyID,
		CreatedAt: createdAt,
		result:    result,
		lock:      lock,
		items:     make([]*Item, 0, len(result.Recommendations)),
	}
	for _, rec := range result.Recommendations {
		s.items = append(s.items, &Item{ID: rec.ID, Recommendation: rec, State: StatePending})
	}
	return s
}

// Result is the reconciliation summary the session was opened with.
func (s *Session) Result() *reconcile.Result {
	return s.result
}

// Items returns a copy of every item in queue order.
func (s *Session) Items() []Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Item, 0, len(s.items))
	for _, item := range s.items {
		out = append(out, *item)
	}
	return out
}

// Pending returns a copy of the undecided items in queue order.
func (s *Session) Pending() []Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pendingLocked()
}

func (s *Session) pendingLocked() []Item {
	var out []Item
	if s.closed {
		return out
	}
	for _, item := range s.items {
		if item.State == StatePending {
			out = append(out, *item)
		}
	}
	return out
}

// Closed reports whether the queue has been drained, cancelled or replaced.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Session) findLocked(itemID string) (*Item, error) {
	for _, item := range s.items {
		if item.ID == itemID {
			if item.State != StatePending || s.closed {
				return nil, ErrItemDecided
			}
			return item, nil
		}
	}
	return nil, ErrItemNotFound
}

func (s *Session) drainedLocked() bool {
	for _, item := range s.items {
		if item.State == StatePending {
			return false
		}
	}
	return true
}

// closeLocked marks the session closed and hands back its lock, if any, for
// the caller to release or transfer.
func (s *Session) closeLocked() *StoryLock {
	s.closed = true
	lock := s.lock
	s.lock = nil
	return lock
}
