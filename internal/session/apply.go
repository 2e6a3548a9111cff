package session

import (
	"context"
	"errors"
	"log/slog"

	"lorekeeper/internal/reconcile"
	"lorekeeper/internal/store"
)

// ApplyEngine commits approved recommendations. Add and Update both
// overwrite the whole record with the candidate.
type ApplyEngine struct {
	store  store.Store
	logger *slog.Logger
}

func NewApplyEngine(s store.Store, logger *slog.Logger) *ApplyEngine {
	if logger == nil {
		logger = slog.Default()
	}
	return &ApplyEngine{store: s, logger: logger}
}

// Apply returns a *store.WriteError when the write fails.
func (a *ApplyEngine) Apply(ctx context.Context, storyID string, rec reconcile.Recommendation) error {
	if err := a.store.Upsert(ctx, storyID, rec.Candidate); err != nil {
		var writeErr *store.WriteError
		if !errors.As(err, &writeErr) {
			err = store.NewWriteError(storyID, rec.Candidate, err)
		}
		a.logger.Error("apply failed",
			"story", storyID,
			"kind", rec.Kind,
			"key", rec.Key,
			"action", rec.Action,
			"error", err,
		)
		return err
	}
	a.logger.Info("applied recommendation",
		"story", storyID,
		"kind", rec.Kind,
		"key", rec.Key,
		"action", rec.Action,
	)
	return nil
}
