package session

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"lorekeeper/internal/extract"
	"lorekeeper/internal/reconcile"
	"lorekeeper/internal/store"
)

type Options struct {
	// LockDir holds per-story lock files. Empty keeps locking in-process.
	LockDir     string
	TokenLength int
	Thresholds  *reconcile.Thresholds
	Logger      *slog.Logger
}

// Manager owns the open sessions of one process. At most one session per
// story is open at a time.
type Manager struct {
	extractor extract.Extractor
	engine    *reconcile.Engine
	apply     *ApplyEngine
	locker    *Locker
	logger    *slog.Logger
	now       func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
	byStory  map[string]*Session
	starting map[string]bool
}

func NewManager(s store.Store, x extract.Extractor, opts Options) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		extractor: x,
		engine:    reconcile.NewEngine(s, reconcile.Options{Thresholds: opts.Thresholds, Logger: logger}),
		apply:     NewApplyEngine(s, logger),
		locker:    NewLocker(opts.LockDir, opts.TokenLength),
		logger:    logger,
		now:       time.Now,
		sessions:  make(map[string]*Session),
		byStory:   make(map[string]*Session),
		starting:  make(map[string]bool),
	}
}

// Start extracts candidates from text, reconciles them and opens a review
// session. A successful start replaces the story's previous session and
// discards whatever it still had pending. The store is not written.
//
// The story ID is trimmed and otherwise used as given, matching how the
// stores key records.
func (m *Manager) Start(ctx context.Context, storyID, text string) (*Session, error) {
	storyID = strings.TrimSpace(storyID)
	if storyID == "" {
		return nil, store.ErrEmptyStory
	}

	lock, prev, err := m.reserve(storyID)
	if err != nil {
		return nil, err
	}
	opened := false
	defer func() {
		if opened {
			return
		}
		m.mu.Lock()
		delete(m.starting, storyID)
		m.mu.Unlock()
		m.restoreLock(storyID, prev, lock)
	}()

	batch, err := m.extractor.Extract(ctx, storyID, text)
	if err != nil {
		return nil, err
	}
	result, err := m.engine.Run(ctx, storyID, batch)
	if err != nil {
		return nil, fmt.Errorf("reconcile story %q: %w", storyID, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.starting, storyID)

	if prev != nil {
		prev.mu.Lock()
		discarded := len(prev.pendingLocked())
		prev.closeLocked()
		prev.mu.Unlock()
		delete(m.sessions, prev.ID)
		if m.byStory[storyID] == prev {
			delete(m.byStory, storyID)
		}
		m.logger.Info("replaced session", "story", storyID, "session", prev.ID, "discarded", discarded)
	}

	sess := newSession(uuid.NewString(), storyID, m.now(), result, lock)
	m.sessions[sess.ID] = sess
	m.byStory[storyID] = sess
	opened = true

	if len(sess.items) == 0 {
		sess.mu.Lock()
		m.closeSessionLocked(sess)
		sess.mu.Unlock()
	}

	m.logger.Info("session opened",
		"story", storyID,
		"session", sess.ID,
		"pending", len(sess.items),
		"summary", result.Summary(),
	)
	return sess, nil
}

// reserve marks the story as starting and returns the lock the new session
// will hold. An open previous session hands over its lock; otherwise a fresh
// one is acquired, so extraction and matching always run under the lock.
func (m *Manager) reserve(storyID string) (*StoryLock, *Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.starting[storyID] {
		return nil, nil, ErrStoryLocked
	}
	prev := m.byStory[storyID]
	var lock *StoryLock
	if prev != nil {
		prev.mu.Lock()
		lock = prev.lock
		prev.lock = nil
		prev.mu.Unlock()
	}
	if lock == nil {
		acquired, err := m.locker.Acquire(storyID)
		if err != nil {
			return nil, nil, err
		}
		lock = acquired
	}
	m.starting[storyID] = true
	return lock, prev, nil
}

// restoreLock undoes reserve after a failed start: the lock goes back to a
// previous session that is still open and is released otherwise.
func (m *Manager) restoreLock(storyID string, prev *Session, lock *StoryLock) {
	if prev != nil {
		prev.mu.Lock()
		if !prev.closed && prev.lock == nil {
			prev.lock = lock
			prev.mu.Unlock()
			return
		}
		prev.mu.Unlock()
	}
	m.releaseLock(storyID, lock)
}

func (m *Manager) releaseLock(storyID string, lock *StoryLock) {
	if lock == nil {
		return
	}
	if err := lock.Release(); err != nil {
		m.logger.Warn("releasing story lock", "story", storyID, "error", err)
	}
}

// closeSessionLocked must be called with sess.mu held.
func (m *Manager) closeSessionLocked(sess *Session) {
	m.releaseLock(sess.StoryID, sess.closeLocked())
}

func (m *Manager) Get(sessionID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// Sessions lists open and drained sessions, oldest first.
func (m *Manager) Sessions() []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Session, 0, len(m.sessions))
	for _, sess := range m.sessions {
		out = append(out, sess)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (m *Manager) ListPending(sessionID string) ([]Item, error) {
	sess, err := m.Get(sessionID)
	if err != nil {
		return nil, err
	}
	return sess.Pending(), nil
}

// Approve commits one item. A store failure keeps the item pending, flagged
// as failed, and is returned both in the Result and as the error.
func (m *Manager) Approve(ctx context.Context, sessionID, itemID string) (Result, error) {
	sess, err := m.Get(sessionID)
	if err != nil {
		return Result{ItemID: itemID}, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	item, err := sess.findLocked(itemID)
	if err != nil {
		return Result{ItemID: itemID}, err
	}
	res := m.approveLocked(ctx, sess, item)
	if sess.drainedLocked() {
		m.closeSessionLocked(sess)
	}
	return res, res.Err
}

func (m *Manager) approveLocked(ctx context.Context, sess *Session, item *Item) Result {
	if err := m.apply.Apply(ctx, sess.StoryID, item.Recommendation); err != nil {
		item.Failed = true
		item.Err = err
		return Result{ItemID: item.ID, State: item.State, Err: err}
	}
	item.State = StateApproved
	item.Failed = false
	item.Err = nil
	item.DecidedAt = m.now()
	return Result{ItemID: item.ID, State: item.State}
}

// Reject discards one item without touching the store.
func (m *Manager) Reject(sessionID, itemID string) (Result, error) {
	sess, err := m.Get(sessionID)
	if err != nil {
		return Result{ItemID: itemID}, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	item, err := sess.findLocked(itemID)
	if err != nil {
		return Result{ItemID: itemID}, err
	}
	item.State = StateRejected
	item.Failed = false
	item.Err = nil
	item.DecidedAt = m.now()
	m.logger.Info("rejected recommendation",
		"story", sess.StoryID,
		"session", sess.ID,
		"item", item.ID,
		"kind", item.Recommendation.Kind,
		"key", item.Recommendation.Key,
	)
	if sess.drainedLocked() {
		m.closeSessionLocked(sess)
	}
	return Result{ItemID: item.ID, State: item.State}, nil
}

// ApplyAll approves every pending item in queue order. Failures are isolated
// per item and reported in the results.
func (m *Manager) ApplyAll(ctx context.Context, sessionID string) ([]Result, error) {
	sess, err := m.Get(sessionID)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	var results []Result
	if sess.closed {
		return results, nil
	}
	for _, item := range sess.items {
		if item.State != StatePending {
			continue
		}
		if err := ctx.Err(); err != nil {
			results = append(results, Result{ItemID: item.ID, State: item.State, Err: err})
			continue
		}
		results = append(results, m.approveLocked(ctx, sess, item))
	}
	if sess.drainedLocked() {
		m.closeSessionLocked(sess)
	}
	return results, nil
}

// Cancel discards the pending queue and forgets the session. Items already
// approved stay committed.
func (m *Manager) Cancel(sessionID string) error {
	m.mu.Lock()
	sess, ok := m.sessions[sessionID]
	if !ok {
		m.mu.Unlock()
		return ErrSessionNotFound
	}
	delete(m.sessions, sessionID)
	if m.byStory[sess.StoryID] == sess {
		delete(m.byStory, sess.StoryID)
	}
	m.mu.Unlock()

	sess.mu.Lock()
	discarded := len(sess.pendingLocked())
	m.closeSessionLocked(sess)
	sess.mu.Unlock()

	m.logger.Info("session cancelled", "story", sess.StoryID, "session", sess.ID, "discarded", discarded)
	return nil
}

// Close cancels every session and releases all story locks.
func (m *Manager) Close() {
	for _, sess := range m.Sessions() {
		_ = m.Cancel(sess.ID)
	}
}
