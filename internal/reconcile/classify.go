package reconcile

import (
	"strings"

	"lorekeeper/internal/entity"
)

type Verdict string

const (
	VerdictAdd       Verdict = "add"
	VerdictUpdate    Verdict = "update"
	VerdictDuplicate Verdict = "duplicate"
)

type FieldChange struct {
	Old any `json:"old"`
	New any `json:"new"`
}

// Diff maps a comparable field name to its stored and candidate values.
type Diff map[string]FieldChange

// Thresholds are the strict lower bounds on shared description tokens
// before a contradiction is reported.
type Thresholds struct {
	WorldOverlap    int
	TimelineOverlap int
}

func DefaultThresholds() Thresholds {
	return Thresholds{WorldOverlap: 3, TimelineOverlap: 5}
}

type Classification struct {
	Match
	Verdict Verdict
	Diff    Diff
	// Changed lists the diff's field names in comparable-field order.
	Changed        []string
	Contradictions []Contradiction
}

type Classifier struct {
	thresholds Thresholds
}

func NewClassifier(thresholds Thresholds) *Classifier {
	return &Classifier{thresholds: thresholds}
}

func (c *Classifier) Thresholds() Thresholds {
	return c.thresholds
}

// Classify decides the verdict for m and collects contradictions against the
// existing records of the candidate's kind.
func (c *Classifier) Classify(m Match, existing []entity.Entity) Classification {
	result := Classification{Match: m, Verdict: VerdictAdd}
	if m.Status == StatusMatched && m.Existing != nil {
		result.Diff, result.Changed = DiffFields(m.Candidate, m.Existing)
		if len(result.Changed) == 0 {
			result.Verdict = VerdictDuplicate
		} else {
			result.Verdict = VerdictUpdate
		}
	}
	result.Contradictions = c.Contradictions(m.Candidate, existing)
	return result
}

// DiffFields compares the comparable fields of two records of the same kind.
// Strings are compared after trimming surrounding whitespace.
func DiffFields(candidate, existing entity.Entity) (Diff, []string) {
	diff := Diff{}
	var changed []string
	for _, field := range candidate.Fields() {
		old, _ := entity.FieldValue(existing, field.Name)
		if equalValues(field.Value, old) {
			continue
		}
		diff[field.Name] = FieldChange{Old: old, New: field.Value}
		changed = append(changed, field.Name)
	}
	return diff, changed
}

func equalValues(a, b any) bool {
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && strings.TrimSpace(av) == strings.TrimSpace(bv)
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	}
	return a == b
}
