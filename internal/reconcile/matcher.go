package reconcile

import (
	"context"
	"fmt"
	"log/slog"

	"lorekeeper/internal/entity"
	"lorekeeper/internal/store"
)

type Status string

const (
	StatusNew     Status = "new"
	StatusMatched Status = "matched"
)

// Match pairs a candidate with the stored record sharing its identity key,
// if there is one.
type Match struct {
	Candidate entity.Entity
	Key       string
	Status    Status
	Existing  entity.Entity
}

type Matcher struct {
	store  store.Store
	logger *slog.Logger
}

func NewMatcher(s store.Store, logger *slog.Logger) *Matcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Matcher{store: s, logger: logger}
}

// Match looks every candidate up by identity key. Candidates without an
// identity are dropped with a warning and counted in the second return value.
func (m *Matcher) Match(ctx context.Context, storyID string, candidates []entity.Entity) ([]Match, int, error) {
	matches := make([]Match, 0, len(candidates))
	dropped := 0
	for i, candidate := range candidates {
		if candidate == nil || !candidate.Kind().Valid() {
			m.logger.Warn("dropping malformed candidate", "story", storyID, "index", i, "reason", "unknown kind")
			dropped++
			continue
		}
		key := entity.Key(candidate)
		if key == "" {
			m.logger.Warn("dropping malformed candidate",
				"story", storyID,
				"index", i,
				"kind", candidate.Kind(),
				"reason", "missing identity",
			)
			dropped++
			continue
		}

		existing, err := m.store.Get(ctx, storyID, candidate.Kind(), key)
		if err != nil {
			return nil, dropped, fmt.Errorf("looking up %s %q: %w", candidate.Kind(), key, err)
		}
		match := Match{Candidate: candidate, Key: key, Status: StatusNew}
		if existing != nil {
			match.Status = StatusMatched
			match.Existing = existing
		}
		matches = append(matches, match)
	}
	return matches, dropped, nil
}
