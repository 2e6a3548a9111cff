package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lorekeeper/internal/entity"
	"lorekeeper/internal/extract"
	"lorekeeper/internal/extract/jsonfile"
	"lorekeeper/internal/store"
	"lorekeeper/internal/store/memory"
)

const story = "moonfall"

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestManager(t *testing.T, s store.Store, lockDir string) *Manager {
	t.Helper()
	m := NewManager(s, jsonfile.New(), Options{LockDir: lockDir, Logger: quietLogger()})
	t.Cleanup(m.Close)
	return m
}

// flakyStore fails writes for one key.
type flakyStore struct {
	*memory.Store
	failKey string
}

func (f *flakyStore) Upsert(ctx context.Context, storyID string, e entity.Entity) error {
	if entity.Key(e) == f.failKey {
		return store.NewWriteError(storyID, e, errors.New("disk full"))
	}
	return f.Store.Upsert(ctx, storyID, e)
}

func getCharacter(t *testing.T, s store.Store, key string) entity.Entity {
	t.Helper()
	got, err := s.Get(context.Background(), story, entity.KindCharacter, key)
	require.NoError(t, err)
	return got
}

func TestStartQueuesRecommendationsWithoutWriting(t *testing.T) {
	s := memory.New()
	m := newTestManager(t, s, t.TempDir())

	sess, err := m.Start(context.Background(), story, `{"characters": [{"name": "Mira"}, {"name": "Kael"}]}`)
	require.NoError(t, err)

	pending, err := m.ListPending(sess.ID)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "mira", pending[0].Recommendation.Key)
	assert.Equal(t, StatePending, pending[0].State)
	assert.Nil(t, getCharacter(t, s, "mira"))
}

func TestApproveWritesAndDecides(t *testing.T) {
	s := memory.New()
	require.NoError(t, s.Upsert(context.Background(), story, &entity.Character{Name: "Yunjae", Role: "mage", Personality: "calm"}))
	m := newTestManager(t, s, t.TempDir())

	sess, err := m.Start(context.Background(), story, `{"characters": [{"name": "Yunjae", "role": "mage", "personality": "reckless"}]}`)
	require.NoError(t, err)
	pending := sess.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, "field mismatch: personality", pending[0].Recommendation.Reason)

	res, err := m.Approve(context.Background(), sess.ID, pending[0].ID)
	require.NoError(t, err)
	assert.Equal(t, StateApproved, res.State)
	assert.Equal(t, &entity.Character{Name: "Yunjae", Role: "mage", Personality: "reckless"}, getCharacter(t, s, "yunjae"))

	_, err = m.Approve(context.Background(), sess.ID, pending[0].ID)
	assert.ErrorIs(t, err, ErrItemDecided)
	assert.True(t, sess.Closed())
}

func TestRejectDoesNotWrite(t *testing.T) {
	s := memory.New()
	m := newTestManager(t, s, t.TempDir())

	sess, err := m.Start(context.Background(), story, `{"characters": [{"name": "Mira"}, {"name": "Kael"}]}`)
	require.NoError(t, err)
	pending := sess.Pending()

	res, err := m.Reject(sess.ID, pending[0].ID)
	require.NoError(t, err)
	assert.Equal(t, StateRejected, res.State)
	assert.Nil(t, getCharacter(t, s, "mira"))

	_, err = m.Reject(sess.ID, pending[0].ID)
	assert.ErrorIs(t, err, ErrItemDecided)

	left, err := m.ListPending(sess.ID)
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, "kael", left[0].Recommendation.Key)
}

func TestUnknownSessionAndItem(t *testing.T) {
	m := newTestManager(t, memory.New(), "")

	_, err := m.ListPending("missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	sess, err := m.Start(context.Background(), story, `{"characters": [{"name": "Mira"}]}`)
	require.NoError(t, err)
	_, err = m.Approve(context.Background(), sess.ID, "missing")
	assert.ErrorIs(t, err, ErrItemNotFound)
}

func TestApplyAllIsolatesWriteFailures(t *testing.T) {
	s := &flakyStore{Store: memory.New(), failKey: "kael"}
	m := newTestManager(t, s, t.TempDir())

	sess, err := m.Start(context.Background(), story, `{"characters": [{"name": "Mira"}, {"name": "Kael"}, {"name": "Hana"}]}`)
	require.NoError(t, err)

	results, err := m.ApplyAll(context.Background(), sess.ID)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.NoError(t, results[0].Err)
	assert.Equal(t, StateApproved, results[0].State)
	var writeErr *store.WriteError
	require.ErrorAs(t, results[1].Err, &writeErr)
	assert.Equal(t, "kael", writeErr.Key)
	assert.Equal(t, StatePending, results[1].State)
	assert.NoError(t, results[2].Err)

	assert.NotNil(t, getCharacter(t, s, "mira"))
	assert.Nil(t, getCharacter(t, s, "kael"))
	assert.NotNil(t, getCharacter(t, s, "hana"))

	pending, err := m.ListPending(sess.ID)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.True(t, pending[0].Failed)
	assert.False(t, sess.Closed())

	s.failKey = ""
	res, err := m.Approve(context.Background(), sess.ID, pending[0].ID)
	require.NoError(t, err)
	assert.Equal(t, StateApproved, res.State)
	assert.True(t, sess.Closed())
}

func TestExtractionFailureLeavesStoreUntouched(t *testing.T) {
	s := memory.New()
	m := newTestManager(t, s, t.TempDir())

	_, err := m.Start(context.Background(), story, "not json at all")
	require.Error(t, err)
	assert.True(t, extract.IsPermanent(err))
	assert.Nil(t, getCharacter(t, s, "mira"))

	_, err = m.Start(context.Background(), story, `{"characters": [{"name": "Mira"}]}`)
	require.NoError(t, err, "lock must be released after a failed start")
}

func TestNewSessionReplacesPrevious(t *testing.T) {
	m := newTestManager(t, memory.New(), t.TempDir())

	first, err := m.Start(context.Background(), story, `{"characters": [{"name": "Mira"}]}`)
	require.NoError(t, err)
	second, err := m.Start(context.Background(), story, `{"characters": [{"name": "Kael"}]}`)
	require.NoError(t, err)

	assert.True(t, first.Closed())
	_, err = m.ListPending(first.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	pending, err := m.ListPending(second.ID)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "kael", pending[0].Recommendation.Key)
}

func TestStoryLockedAcrossManagers(t *testing.T) {
	s := memory.New()
	dir := t.TempDir()
	a := newTestManager(t, s, dir)
	b := newTestManager(t, s, dir)

	sess, err := a.Start(context.Background(), story, `{"characters": [{"name": "Mira"}]}`)
	require.NoError(t, err)

	_, err = b.Start(context.Background(), story, `{"characters": [{"name": "Kael"}]}`)
	assert.ErrorIs(t, err, ErrStoryLocked)

	_, err = b.Start(context.Background(), "another story", `{"characters": [{"name": "Kael"}]}`)
	require.NoError(t, err)

	require.NoError(t, a.Cancel(sess.ID))
	_, err = b.Start(context.Background(), story, `{"characters": [{"name": "Kael"}]}`)
	require.NoError(t, err)
}

func TestCancelKeepsApprovedItems(t *testing.T) {
	s := memory.New()
	m := newTestManager(t, s, t.TempDir())

	sess, err := m.Start(context.Background(), story, `{"characters": [{"name": "Mira"}, {"name": "Kael"}]}`)
	require.NoError(t, err)
	pending := sess.Pending()
	_, err = m.Approve(context.Background(), sess.ID, pending[0].ID)
	require.NoError(t, err)

	require.NoError(t, m.Cancel(sess.ID))
	assert.ErrorIs(t, m.Cancel(sess.ID), ErrSessionNotFound)

	assert.NotNil(t, getCharacter(t, s, "mira"))
	assert.Nil(t, getCharacter(t, s, "kael"))
}

func TestDrainedSessionReleasesLock(t *testing.T) {
	s := memory.New()
	dir := t.TempDir()
	a := newTestManager(t, s, dir)
	b := newTestManager(t, s, dir)

	sess, err := a.Start(context.Background(), story, `{"characters": [{"name": "Mira"}]}`)
	require.NoError(t, err)
	_, err = a.ApplyAll(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.True(t, sess.Closed())

	_, err = b.Start(context.Background(), story, `{"characters": [{"name": "Kael"}]}`)
	require.NoError(t, err)
}

func TestApprovedAddIsDuplicateOnRerun(t *testing.T) {
	s := memory.New()
	m := newTestManager(t, s, t.TempDir())
	payload := `{"world_elements": [{"title": "Silver Hollow", "description": "a valley"}]}`

	sess, err := m.Start(context.Background(), story, payload)
	require.NoError(t, err)
	_, err = m.ApplyAll(context.Background(), sess.ID)
	require.NoError(t, err)

	again, err := m.Start(context.Background(), story, payload)
	require.NoError(t, err)
	assert.Empty(t, again.Pending())
	assert.Equal(t, 1, again.Result().Duplicates)
	assert.True(t, again.Closed())
}

func TestStoriesDifferingInCaseAreSeparate(t *testing.T) {
	s := memory.New()
	m := newTestManager(t, s, t.TempDir())

	upper, err := m.Start(context.Background(), "Moonfall", `{"characters": [{"name": "Mira"}]}`)
	require.NoError(t, err)
	lower, err := m.Start(context.Background(), "moonfall", `{"characters": [{"name": "Kael"}]}`)
	require.NoError(t, err)

	assert.False(t, upper.Closed(), "a start for another story must not replace this session")
	require.Len(t, upper.Pending(), 1)
	require.Len(t, lower.Pending(), 1)

	_, err = m.ApplyAll(context.Background(), upper.ID)
	require.NoError(t, err)
	_, err = m.ApplyAll(context.Background(), lower.ID)
	require.NoError(t, err)

	got, err := s.Get(context.Background(), "Moonfall", entity.KindCharacter, "mira")
	require.NoError(t, err)
	assert.NotNil(t, got)
	got, err = s.Get(context.Background(), "Moonfall", entity.KindCharacter, "kael")
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.NotNil(t, getCharacter(t, s, "kael"))
}

func TestLockFilesDistinguishStoriesWithSameToken(t *testing.T) {
	dir := t.TempDir()
	l := NewLocker(dir, 0)

	spaced, err := l.Acquire("Book 1")
	require.NoError(t, err)
	defer spaced.Release()
	underscored, err := l.Acquire("Book_1")
	require.NoError(t, err)
	defer underscored.Release()

	_, err = NewLocker(dir, 0).Acquire("Book 1")
	assert.ErrorIs(t, err, ErrStoryLocked)
	assert.NotEqual(t, lockFileName("Book 1", 0), lockFileName("Book_1", 0))
}

func TestStartAfterDrainedSessionHoldsLock(t *testing.T) {
	dir := t.TempDir()
	var held []error
	x := extract.ExtractorFunc(func(ctx context.Context, storyID, text string) (*extract.Batch, error) {
		_, err := NewLocker(dir, 0).Acquire(storyID)
		held = append(held, err)
		return jsonfile.New().Extract(ctx, storyID, text)
	})
	m := NewManager(memory.New(), x, Options{LockDir: dir, Logger: quietLogger()})
	t.Cleanup(m.Close)

	first, err := m.Start(context.Background(), story, `{"characters": [{"name": "Mira"}]}`)
	require.NoError(t, err)
	_, err = m.ApplyAll(context.Background(), first.ID)
	require.NoError(t, err)
	require.True(t, first.Closed())

	_, err = m.Start(context.Background(), story, `{"characters": [{"name": "Kael"}]}`)
	require.NoError(t, err)

	require.Len(t, held, 2)
	for _, err := range held {
		assert.ErrorIs(t, err, ErrStoryLocked, "extraction must run under the story lock")
	}
}

func TestFailedAcquireKeepsPreviousSession(t *testing.T) {
	dir := t.TempDir()
	m := newTestManager(t, memory.New(), dir)

	first, err := m.Start(context.Background(), story, `{"characters": [{"name": "Mira"}]}`)
	require.NoError(t, err)
	_, err = m.ApplyAll(context.Background(), first.ID)
	require.NoError(t, err)

	other, err := NewLocker(dir, 0).Acquire(story)
	require.NoError(t, err)

	_, err = m.Start(context.Background(), story, `{"characters": [{"name": "Kael"}]}`)
	assert.ErrorIs(t, err, ErrStoryLocked)
	_, err = m.Get(first.ID)
	assert.NoError(t, err, "a refused start must not drop the previous session")

	require.NoError(t, other.Release())
	_, err = m.Start(context.Background(), story, `{"characters": [{"name": "Kael"}]}`)
	require.NoError(t, err)
	_, err = m.Get(first.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestFailedStartReturnsLockToOpenSession(t *testing.T) {
	s := memory.New()
	dir := t.TempDir()
	m := newTestManager(t, s, dir)

	first, err := m.Start(context.Background(), story, `{"characters": [{"name": "Mira"}]}`)
	require.NoError(t, err)
	_, err = m.Start(context.Background(), story, `not json`)
	require.Error(t, err)

	assert.False(t, first.Closed())
	_, err = NewLocker(dir, 0).Acquire(story)
	assert.ErrorIs(t, err, ErrStoryLocked, "the open session must still hold the lock")

	pending := first.Pending()
	require.Len(t, pending, 1)
	_, err = m.Approve(context.Background(), first.ID, pending[0].ID)
	require.NoError(t, err)
	assert.NotNil(t, getCharacter(t, s, "mira"))
}
