package session

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"

	"lorekeeper/internal/entity"
)

// Locker hands out exclusive per-story locks keyed on the exact story ID the
// stores use. Inside the process a map guards each story; across processes a
// lock file under dir does. An empty dir disables the file lock.
type Locker struct {
	dir         string
	tokenLength int

	mu   sync.Mutex
	held map[string]struct{}
}

func NewLocker(dir string, tokenLength int) *Locker {
	return &Locker{dir: dir, tokenLength: tokenLength, held: make(map[string]struct{})}
}

type StoryLock struct {
	locker *Locker
	story  string
	file   *flock.Flock
	once   sync.Once
}

// Acquire returns ErrStoryLocked without waiting when the story is held.
func (l *Locker) Acquire(storyID string) (*StoryLock, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[storyID]; ok {
		return nil, ErrStoryLocked
	}

	lock := &StoryLock{locker: l, story: storyID}
	if l.dir != "" {
		if err := os.MkdirAll(l.dir, 0o755); err != nil {
			return nil, fmt.Errorf("create lock dir: %w", err)
		}
		path := filepath.Join(l.dir, lockFileName(storyID, l.tokenLength))
		file := flock.New(path)
		ok, err := file.TryLock()
		if err != nil {
			return nil, fmt.Errorf("lock %s: %w", path, err)
		}
		if !ok {
			return nil, ErrStoryLocked
		}
		lock.file = file
	}
	l.held[storyID] = struct{}{}
	return lock, nil
}

// lockFileName keeps the readable token and adds a hash of the full ID, since
// distinct IDs such as "Book 1" and "Book_1" share a token.
func lockFileName(storyID string, tokenLength int) string {
	sum := sha256.Sum256([]byte(storyID))
	return entity.Token(storyID, tokenLength) + "_" + hex.EncodeToString(sum[:4]) + ".lock"
}

// Release is safe to call more than once.
func (s *StoryLock) Release() error {
	var err error
	s.once.Do(func() {
		s.locker.mu.Lock()
		delete(s.locker.held, s.story)
		s.locker.mu.Unlock()
		if s.file != nil {
			err = s.file.Unlock()
		}
	})
	return err
}
