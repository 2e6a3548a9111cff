package extract

import (
	"context"
	"errors"
	"fmt"

	"lorekeeper/internal/entity"
)

// Extractor turns story text into candidate entities. Implementations must
// be free of side effects so that failed calls can be retried.
type Extractor interface {
	Extract(ctx context.Context, storyID, text string) (*Batch, error)
}

// ExtractorFunc adapts a plain function to Extractor.
type ExtractorFunc func(ctx context.Context, storyID, text string) (*Batch, error)

func (f ExtractorFunc) Extract(ctx context.Context, storyID, text string) (*Batch, error) {
	return f(ctx, storyID, text)
}

// Batch is the candidate payload of one extraction run.
type Batch struct {
	Characters    []entity.Character       `json:"characters"`
	WorldElements []entity.WorldElement    `json:"world_elements"`
	Events        []entity.TimelineEvent   `json:"events"`
	Scenes        []entity.StoryboardScene `json:"scenes"`
}

// Candidates flattens the batch in kind order, preserving input order within
// each kind.
func (b *Batch) Candidates() []entity.Entity {
	if b == nil {
		return nil
	}
	out := make([]entity.Entity, 0, b.Len())
	for i := range b.Characters {
		c := b.Characters[i]
		out = append(out, &c)
	}
	for i := range b.WorldElements {
		w := b.WorldElements[i]
		out = append(out, &w)
	}
	for i := range b.Events {
		e := b.Events[i]
		out = append(out, &e)
	}
	for i := range b.Scenes {
		s := b.Scenes[i]
		out = append(out, &s)
	}
	return out
}

func (b *Batch) Len() int {
	if b == nil {
		return 0
	}
	return len(b.Characters) + len(b.WorldElements) + len(b.Events) + len(b.Scenes)
}

// Error is returned once extraction has failed for good. The knowledge base
// is never touched before extraction succeeds.
type Error struct {
	Cause    error
	Attempts int
}

func (e *Error) Error() string {
	if e.Attempts > 1 {
		return fmt.Sprintf("extraction failed after %d attempts: %v", e.Attempts, e.Cause)
	}
	return fmt.Sprintf("extraction failed: %v", e.Cause)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

type permanentError struct {
	err error
}

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying (bad credentials, empty input).
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}
