package memory

import (
	"context"
	"sort"
	"sync"

	"lorekeeper/internal/entity"
	"lorekeeper/internal/store"
)

var _ store.Store = (*Store)(nil)

type bucket struct {
	story string
	kind  entity.Kind
}

// Store keeps records in process memory. It backs tests and ephemeral runs.
type Store struct {
	mu      sync.RWMutex
	records map[bucket]map[string]entity.Entity
}

func New() *Store {
	return &Store{records: make(map[bucket]map[string]entity.Entity)}
}

func (s *Store) Close(ctx context.Context) error {
	return nil
}

func (s *Store) List(ctx context.Context, storyID string, kind entity.Kind) ([]entity.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := s.records[bucket{story: storyID, kind: kind}]
	keys := make([]string, 0, len(items))
	for key := range items {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	out := make([]entity.Entity, 0, len(keys))
	for _, key := range keys {
		out = append(out, entity.Clone(items[key]))
	}
	return out, nil
}

func (s *Store) Get(ctx context.Context, storyID string, kind entity.Kind, key string) (entity.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[bucket{story: storyID, kind: kind}][entity.NormalizeKey(key)]
	if !ok {
		return nil, nil
	}
	return entity.Clone(record), nil
}

func (s *Store) Upsert(ctx context.Context, storyID string, e entity.Entity) error {
	if err := store.CheckRecord(storyID, e); err != nil {
		return store.NewWriteError(storyID, e, err)
	}
	if err := ctx.Err(); err != nil {
		return store.NewWriteError(storyID, e, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	b := bucket{story: storyID, kind: e.Kind()}
	items, ok := s.records[b]
	if !ok {
		items = make(map[string]entity.Entity)
		s.records[b] = items
	}
	items[entity.Key(e)] = entity.Clone(e)
	return nil
}

func (s *Store) Delete(ctx context.Context, storyID string, kind entity.Kind, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := s.records[bucket{story: storyID, kind: kind}]
	normalized := entity.NormalizeKey(key)
	if _, ok := items[normalized]; !ok {
		return false, nil
	}
	delete(items, normalized)
	return true, nil
}

func (s *Store) Search(ctx context.Context, storyID, query string, kind entity.Kind) ([]store.SearchResult, error) {
	return store.SearchByListing(ctx, s, storyID, query, kind)
}
