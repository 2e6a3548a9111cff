package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"lorekeeper/internal/entity"
	"lorekeeper/internal/extract"
	"lorekeeper/internal/store"
)

// Result is the outcome of one reconciliation run.
type Result struct {
	StoryID         string           `json:"story_id"`
	Candidates      int              `json:"candidates"`
	Recommendations []Recommendation `json:"recommendations"`
	// Reports holds contradictions that have no recommendation to ride on.
	Reports    []Contradiction `json:"reports,omitempty"`
	Dropped    int             `json:"dropped"`
	Duplicates int             `json:"duplicates"`
}

func (r *Result) Count(action Action) int {
	n := 0
	for _, rec := range r.Recommendations {
		if rec.Action == action {
			n++
		}
	}
	return n
}

func (r *Result) Contradictions() int {
	n := len(r.Reports)
	for _, rec := range r.Recommendations {
		n += len(rec.Contradictions)
	}
	return n
}

// Summary renders the counts as a single line.
func (r *Result) Summary() string {
	parts := []string{
		fmt.Sprintf("%d candidates", r.Candidates),
		fmt.Sprintf("%d add", r.Count(ActionAdd)),
		fmt.Sprintf("%d update", r.Count(ActionUpdate)),
		fmt.Sprintf("%d duplicate", r.Duplicates),
	}
	if r.Dropped > 0 {
		parts = append(parts, fmt.Sprintf("%d dropped", r.Dropped))
	}
	parts = append(parts, fmt.Sprintf("%d contradictions", r.Contradictions()))
	return strings.Join(parts, ", ")
}

type Options struct {
	// Thresholds defaults to DefaultThresholds when nil. Zero values are
	// honoured.
	Thresholds *Thresholds
	Logger     *slog.Logger
}

// Engine runs Matcher, Classifier and Builder over one candidate batch. It
// only reads from the store.
type Engine struct {
	store      store.Store
	matcher    *Matcher
	classifier *Classifier
	builder    *Builder
	logger     *slog.Logger
}

func NewEngine(s store.Store, opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	thresholds := DefaultThresholds()
	if opts.Thresholds != nil {
		thresholds = *opts.Thresholds
	}
	return &Engine{
		store:      s,
		matcher:    NewMatcher(s, logger),
		classifier: NewClassifier(thresholds),
		builder:    NewBuilder(),
		logger:     logger,
	}
}

func (e *Engine) Classifier() *Classifier {
	return e.classifier
}

func (e *Engine) Run(ctx context.Context, storyID string, batch *extract.Batch) (*Result, error) {
	return e.Reconcile(ctx, storyID, batch.Candidates())
}

func (e *Engine) Reconcile(ctx context.Context, storyID string, candidates []entity.Entity) (*Result, error) {
	if strings.TrimSpace(storyID) == "" {
		return nil, store.ErrEmptyStory
	}

	matches, dropped, err := e.matcher.Match(ctx, storyID, candidates)
	if err != nil {
		return nil, fmt.Errorf("matching candidates: %w", err)
	}

	existing := make(map[entity.Kind][]entity.Entity)
	classifications := make([]Classification, 0, len(matches))
	for _, m := range matches {
		kind := m.Candidate.Kind()
		records, ok := existing[kind]
		if !ok {
			records, err = e.store.List(ctx, storyID, kind)
			if err != nil {
				return nil, fmt.Errorf("listing %s records: %w", kind, err)
			}
			existing[kind] = records
		}
		classifications = append(classifications, e.classifier.Classify(m, records))
	}

	recs, reports, duplicates := e.builder.Build(classifications)
	result := &Result{
		StoryID:         storyID,
		Candidates:      len(candidates),
		Recommendations: recs,
		Reports:         reports,
		Dropped:         dropped,
		Duplicates:      duplicates,
	}
	e.logger.Info("reconciliation complete", "story", storyID, "summary", result.Summary())
	return result, nil
}
