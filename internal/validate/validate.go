package validate

import (
	"context"
	"fmt"
	"strings"

	"lorekeeper/internal/entity"
	"lorekeeper/internal/reconcile"
)

type Severity string

const (
	SeverityError Severity = "error"
	SeverityWarn  Severity = "warning"
)

const codeMissingField = "missing_field"

// Lister is the read side of store.Store.
type Lister interface {
	List(ctx context.Context, storyID string, kind entity.Kind) ([]entity.Entity, error)
}

type Issue struct {
	Severity Severity    `json:"severity"`
	Code     string      `json:"code"`
	Message  string      `json:"message"`
	Kind     entity.Kind `json:"kind"`
	Key      string      `json:"key"`
	Related  string      `json:"related,omitempty"`
}

type Report struct {
	StoryID string  `json:"story_id"`
	Records int     `json:"records"`
	Issues  []Issue `json:"issues"`
}

func (r *Report) Count(severity Severity) int {
	n := 0
	for _, issue := range r.Issues {
		if issue.Severity == severity {
			n++
		}
	}
	return n
}

// expected names the field each kind should carry for the contradiction
// rules to have anything to compare.
var expected = map[entity.Kind]string{
	entity.KindCharacter:     "role",
	entity.KindWorldElement:  "description",
	entity.KindTimelineEvent: "date",
}

// Run checks every stored record of a story against the others with the
// same rules reconciliation applies to candidates.
func Run(ctx context.Context, storyID string, records Lister, classifier *reconcile.Classifier) (*Report, error) {
	if strings.TrimSpace(storyID) == "" {
		return nil, fmt.Errorf("story id is required")
	}
	if records == nil {
		return nil, fmt.Errorf("store is required")
	}
	if classifier == nil {
		classifier = reconcile.NewClassifier(reconcile.DefaultThresholds())
	}

	report := &Report{StoryID: storyID, Issues: make([]Issue, 0)}
	for _, kind := range entity.Kinds {
		list, err := records.List(ctx, storyID, kind)
		if err != nil {
			return nil, fmt.Errorf("list %s records: %w", kind, err)
		}
		report.Records += len(list)
		report.Issues = append(report.Issues, missingFields(kind, list)...)
		report.Issues = append(report.Issues, contradictions(classifier, list)...)
	}
	return report, nil
}

func missingFields(kind entity.Kind, list []entity.Entity) []Issue {
	field, ok := expected[kind]
	if !ok {
		return nil
	}
	var issues []Issue
	for _, record := range list {
		value, _ := entity.FieldValue(record, field)
		if s, ok := value.(string); ok && strings.TrimSpace(s) != "" {
			continue
		}
		issues = append(issues, Issue{
			Severity: SeverityWarn,
			Code:     codeMissingField,
			Message:  fmt.Sprintf("%s has no %s", kind.Label(), field),
			Kind:     kind,
			Key:      entity.Key(record),
		})
	}
	return issues
}

// contradictions compares each unordered pair once; the rules are symmetric.
func contradictions(classifier *reconcile.Classifier, list []entity.Entity) []Issue {
	var issues []Issue
	for i := 0; i < len(list); i++ {
		for j := i + 1; j < len(list); j++ {
			found, ok := classifier.Compare(list[i], list[j])
			if !ok {
				continue
			}
			issues = append(issues, Issue{
				Severity: severityOf(found.Rule),
				Code:     string(found.Rule),
				Message:  found.Detail,
				Kind:     found.Kind,
				Key:      found.CandidateKey,
				Related:  found.ExistingKey,
			})
		}
	}
	return issues
}

// severityOf treats two events claiming the same date as the only hard error.
func severityOf(rule reconcile.Rule) Severity {
	if rule == reconcile.RuleTimelineSlot {
		return SeverityError
	}
	return SeverityWarn
}
