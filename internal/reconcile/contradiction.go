package reconcile

import (
	"fmt"
	"strings"

	"lorekeeper/internal/entity"
)

type Rule string

const (
	RuleWorldOverlap  Rule = "world_description_overlap"
	RuleTimelineSlot  Rule = "timeline_date_collision"
	RuleCharacterRole Rule = "character_role_collision"
)

// Contradiction flags a candidate that conflicts with a stored record. It is
// informational and never changes the verdict.
type Contradiction struct {
	Kind         entity.Kind `json:"kind"`
	CandidateKey string      `json:"candidate_key"`
	ExistingKey  string      `json:"existing_key"`
	Rule         Rule        `json:"rule"`
	Detail       string      `json:"detail"`
	Overlap      int         `json:"overlap,omitempty"`
}

// Contradictions checks candidate against every record in existing.
func (c *Classifier) Contradictions(candidate entity.Entity, existing []entity.Entity) []Contradiction {
	var out []Contradiction
	for _, other := range existing {
		if found, ok := c.Compare(candidate, other); ok {
			out = append(out, found)
		}
	}
	return out
}

// Compare applies the kind's contradiction rule to one pair of records.
func (c *Classifier) Compare(candidate, other entity.Entity) (Contradiction, bool) {
	if candidate == nil || other == nil || candidate.Kind() != other.Kind() {
		return Contradiction{}, false
	}
	candidateKey := entity.Key(candidate)
	otherKey := entity.Key(other)
	base := Contradiction{Kind: candidate.Kind(), CandidateKey: candidateKey, ExistingKey: otherKey}

	switch cand := candidate.(type) {
	case *entity.WorldElement:
		ex, ok := other.(*entity.WorldElement)
		if !ok || candidateKey == otherKey {
			return Contradiction{}, false
		}
		overlap := entity.Overlap(cand.Description, ex.Description)
		if overlap <= c.thresholds.WorldOverlap {
			return Contradiction{}, false
		}
		base.Rule = RuleWorldOverlap
		base.Overlap = overlap
		base.Detail = fmt.Sprintf("description shares %d tokens with %q", overlap, ex.Title)
		return base, true

	case *entity.TimelineEvent:
		ex, ok := other.(*entity.TimelineEvent)
		date := strings.TrimSpace(cand.Date)
		if !ok || date == "" || !strings.EqualFold(date, strings.TrimSpace(ex.Date)) {
			return Contradiction{}, false
		}
		if strings.TrimSpace(cand.Description) == strings.TrimSpace(ex.Description) {
			return Contradiction{}, false
		}
		overlap := entity.Overlap(cand.Description, ex.Description)
		if overlap <= c.thresholds.TimelineOverlap {
			return Contradiction{}, false
		}
		base.Rule = RuleTimelineSlot
		base.Overlap = overlap
		base.Detail = fmt.Sprintf("date %q already holds a different description (%d shared tokens)", date, overlap)
		return base, true

	case *entity.Character:
		ex, ok := other.(*entity.Character)
		if !ok || candidateKey == otherKey {
			return Contradiction{}, false
		}
		role := entity.NormalizeKey(cand.Role)
		if role == "" || role != entity.NormalizeKey(ex.Role) {
			return Contradiction{}, false
		}
		base.Rule = RuleCharacterRole
		base.Detail = fmt.Sprintf("role %q is also held by %q", strings.TrimSpace(cand.Role), ex.Name)
		return base, true
	}
	return Contradiction{}, false
}
