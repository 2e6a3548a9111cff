package validate

import (
	"context"
	"errors"
	"testing"

	"lorekeeper/internal/entity"
	"lorekeeper/internal/reconcile"
	"lorekeeper/internal/store/memory"
)

func seededStore(t *testing.T, records ...entity.Entity) *memory.Store {
	t.Helper()
	s := memory.New()
	for _, record := range records {
		if err := s.Upsert(context.Background(), "moonfall", record); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	return s
}

func findIssue(report *Report, code string) *Issue {
	for i := range report.Issues {
		if report.Issues[i].Code == code {
			return &report.Issues[i]
		}
	}
	return nil
}

func TestRun_CleanStory(t *testing.T) {
	s := seededStore(t,
		&entity.Character{Name: "Yunjae", Role: "mage"},
		&entity.Character{Name: "Hana", Role: "scout"},
		&entity.WorldElement{Title: "Silver Hollow", Description: "a drowned valley"},
		&entity.TimelineEvent{Title: "The Siege", Date: "302"},
	)

	report, err := Run(context.Background(), "moonfall", s, nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.Records != 4 {
		t.Fatalf("expected 4 records, got %d", report.Records)
	}
	if len(report.Issues) != 0 {
		t.Fatalf("expected no issues, got %#v", report.Issues)
	}
}

func TestRun_RoleCollision(t *testing.T) {
	s := seededStore(t,
		&entity.Character{Name: "Yunjae", Role: "mage"},
		&entity.Character{Name: "Hana", Role: "Mage"},
	)

	report, err := Run(context.Background(), "moonfall", s, nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(report.Issues) != 1 {
		t.Fatalf("expected one issue for the pair, got %d", len(report.Issues))
	}
	issue := findIssue(report, string(reconcile.RuleCharacterRole))
	if issue == nil {
		t.Fatalf("expected role collision, got %#v", report.Issues)
	}
	if issue.Severity != SeverityWarn {
		t.Fatalf("expected warning, got %s", issue.Severity)
	}
	if issue.Key != "hana" || issue.Related != "yunjae" {
		t.Fatalf("unexpected pair %q/%q", issue.Key, issue.Related)
	}
}

func TestRun_TimelineCollisionIsError(t *testing.T) {
	s := seededStore(t,
		&entity.TimelineEvent{Title: "Fall", Date: "302", Description: "the northern gate fell to the river clans at dawn"},
		&entity.TimelineEvent{Title: "Hold", Date: "302", Description: "the northern gate held against the river clans at dawn"},
	)

	report, err := Run(context.Background(), "moonfall", s, nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.Count(SeverityError) != 1 {
		t.Fatalf("expected 1 error, got %#v", report.Issues)
	}
}

func TestRun_WorldThresholdFromClassifier(t *testing.T) {
	s := seededStore(t,
		&entity.WorldElement{Title: "Old Mill", Description: "the old mill river"},
		&entity.WorldElement{Title: "North Mill", Description: "old mill river north"},
	)

	report, err := Run(context.Background(), "moonfall", s, nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if findIssue(report, string(reconcile.RuleWorldOverlap)) != nil {
		t.Fatalf("three shared tokens must not be flagged")
	}

	strict := reconcile.NewClassifier(reconcile.Thresholds{WorldOverlap: 2, TimelineOverlap: 5})
	report, err = Run(context.Background(), "moonfall", s, strict)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if findIssue(report, string(reconcile.RuleWorldOverlap)) == nil {
		t.Fatalf("expected overlap with lowered threshold")
	}
}

func TestRun_MissingFields(t *testing.T) {
	s := seededStore(t,
		&entity.Character{Name: "Yunjae"},
		&entity.StoryboardScene{Title: "Opening"},
	)

	report, err := Run(context.Background(), "moonfall", s, nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	issue := findIssue(report, codeMissingField)
	if issue == nil || issue.Key != "yunjae" {
		t.Fatalf("expected missing role for yunjae, got %#v", report.Issues)
	}
	if len(report.Issues) != 1 {
		t.Fatalf("scenes have no expected field, got %#v", report.Issues)
	}
}

type failingLister struct{}

func (failingLister) List(ctx context.Context, storyID string, kind entity.Kind) ([]entity.Entity, error) {
	return nil, errors.New("boom")
}

func TestRun_Errors(t *testing.T) {
	if _, err := Run(context.Background(), " ", seededStore(t), nil); err == nil {
		t.Fatalf("expected error for empty story")
	}
	if _, err := Run(context.Background(), "moonfall", nil, nil); err == nil {
		t.Fatalf("expected error for nil store")
	}
	if _, err := Run(context.Background(), "moonfall", failingLister{}, nil); err == nil {
		t.Fatalf("expected list error")
	}
}
