package reconcile

import (
	"strings"

	"github.com/google/uuid"

	"lorekeeper/internal/entity"
)

type Action string

const (
	ActionAdd    Action = "add"
	ActionUpdate Action = "update"
)

// Recommendation is one reviewable change. Nothing is written until it is
// approved.
type Recommendation struct {
	ID             string          `json:"id"`
	Action         Action          `json:"action"`
	Kind           entity.Kind     `json:"kind"`
	Key            string          `json:"key"`
	Candidate      entity.Entity   `json:"candidate"`
	Diff           Diff            `json:"diff,omitempty"`
	Reason         string          `json:"reason"`
	Contradictions []Contradiction `json:"contradictions,omitempty"`
}

type Builder struct {
	newID func() string
}

func NewBuilder() *Builder {
	return &Builder{newID: uuid.NewString}
}

// Build turns classifications into an ordered queue with at most one
// recommendation per kind, key and action. A later candidate for the same
// triple replaces the earlier content but keeps the earlier position.
// Contradictions of duplicates are returned as standalone reports.
func (b *Builder) Build(classifications []Classification) ([]Recommendation, []Contradiction, int) {
	type slot struct {
		kind   entity.Kind
		key    string
		action Action
	}

	var recs []Recommendation
	var reports []Contradiction
	duplicates := 0
	index := make(map[slot]int)

	for _, c := range classifications {
		if c.Verdict == VerdictDuplicate {
			duplicates++
			reports = append(reports, c.Contradictions...)
			continue
		}

		rec := Recommendation{
			Kind:           c.Candidate.Kind(),
			Key:            c.Key,
			Candidate:      entity.Clone(c.Candidate),
			Contradictions: c.Contradictions,
		}
		if c.Verdict == VerdictAdd {
			rec.Action = ActionAdd
			rec.Reason = "new " + rec.Kind.Label()
		} else {
			rec.Action = ActionUpdate
			rec.Diff = c.Diff
			rec.Reason = "field mismatch: " + strings.Join(c.Changed, ", ")
		}

		s := slot{kind: rec.Kind, key: rec.Key, action: rec.Action}
		if i, ok := index[s]; ok {
			rec.ID = recs[i].ID
			recs[i] = rec
			continue
		}
		rec.ID = b.newID()
		index[s] = len(recs)
		recs = append(recs, rec)
	}
	return recs, reports, duplicates
}
