package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"lorekeeper/internal/config"
	"lorekeeper/internal/entity"
	"lorekeeper/internal/extract/jsonfile"
	"lorekeeper/internal/session"
	"lorekeeper/internal/store"
	"lorekeeper/internal/store/files"
	"lorekeeper/internal/store/memory"
)

func TestOpenStoreSelectsDriver(t *testing.T) {
	ctx := context.Background()

	cfg := config.Default()
	cfg.Store.Driver = "memory"
	db, err := openStore(ctx, cfg, nil)
	if err != nil {
		t.Fatalf("open memory: %v", err)
	}
	if _, ok := db.(*memory.Store); !ok {
		t.Fatalf("expected *memory.Store, got %T", db)
	}

	cfg.Store.Driver = "files"
	cfg.Store.Path = t.TempDir()
	db, err = openStore(ctx, cfg, nil)
	if err != nil {
		t.Fatalf("open files: %v", err)
	}
	if _, ok := db.(*files.Store); !ok {
		t.Fatalf("expected *files.Store, got %T", db)
	}

	cfg.Store.Driver = "dragon"
	if _, err := openStore(ctx, cfg, nil); err == nil {
		t.Fatalf("expected error for unknown driver")
	}
}

func TestNewExtractorRejectsUnknownProvider(t *testing.T) {
	cfg := config.Default()
	cfg.Extractor.Provider = "oracle"
	if _, err := newExtractor(cfg, nil); err == nil {
		t.Fatalf("expected error for unknown provider")
	}
	cfg.Extractor.Provider = "heuristic"
	if _, err := newExtractor(cfg, nil); err != nil {
		t.Fatalf("heuristic extractor: %v", err)
	}
}

func TestFieldSummarySkipsEmptyValues(t *testing.T) {
	got := fieldSummary(&entity.TimelineEvent{Title: "Siege", Date: "302", Explicit: true})
	if got != "date=302, explicit" {
		t.Fatalf("expected date and explicit flag, got %q", got)
	}
}

func TestRenderTablePadsShortRows(t *testing.T) {
	out := renderTable([]string{"Kind", "Name", "Fields"}, [][]string{{"character", "Yunjae"}})
	if !strings.Contains(out, "Yunjae") || !strings.Contains(out, "Fields") {
		t.Fatalf("expected header and row in table, got:\n%s", out)
	}
	if renderTable(nil, nil) != "" {
		t.Fatalf("expected empty output without headers")
	}
}

func TestRecordsSearchPrintsMatches(t *testing.T) {
	ctx := context.Background()
	db := memory.New()
	if err := db.Upsert(ctx, "moonfall", &entity.WorldElement{Title: "Silver Hollow", Description: "a valley of mist"}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := db.Upsert(ctx, "moonfall", &entity.Character{Name: "Mira", Role: "scout"}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	var buf bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&buf)
	if err := runRecordsSearch(ctx, cmd, db, "moonfall", "silver mist", ""); err != nil {
		t.Fatalf("search: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "Silver Hollow") || strings.Contains(out, "Mira") {
		t.Fatalf("expected only the world element, got:\n%s", out)
	}

	buf.Reset()
	if err := runRecordsSearch(ctx, cmd, db, "moonfall", "silver", entity.KindCharacter); err != nil {
		t.Fatalf("search: %v", err)
	}
	if !strings.Contains(buf.String(), "No matches found.") {
		t.Fatalf("expected no matches for character filter, got:\n%s", buf.String())
	}

	if err := runRecordsSearch(ctx, cmd, db, "moonfall", " ?! ", ""); !errors.Is(err, store.ErrEmptyQuery) {
		t.Fatalf("expected ErrEmptyQuery, got %v", err)
	}
}

// failOnceStore rejects the first write and accepts the rest.
type failOnceStore struct {
	*memory.Store
	failed bool
}

func (f *failOnceStore) Upsert(ctx context.Context, storyID string, e entity.Entity) error {
	if !f.failed {
		f.failed = true
		return store.NewWriteError(storyID, e, errors.New("disk full"))
	}
	return f.Store.Upsert(ctx, storyID, e)
}

func scriptedLines(lines ...string) func() (string, error) {
	return func() (string, error) {
		if len(lines) == 0 {
			return "", io.EOF
		}
		line := lines[0]
		lines = lines[1:]
		return line, nil
	}
}

func TestReviewRetriesFailedApprove(t *testing.T) {
	ctx := context.Background()
	db := &failOnceStore{Store: memory.New()}
	manager := session.NewManager(db, jsonfile.New(), session.Options{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	defer manager.Close()

	sess, err := manager.Start(ctx, "moonfall", `{"characters": [{"name": "Mira"}, {"name": "Kael"}]}`)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	var out bytes.Buffer
	if err := walkQueue(ctx, &out, scriptedLines("a", "a", "r"), manager, sess); err != nil {
		t.Fatalf("review: %v", err)
	}

	if !strings.Contains(out.String(), "failed:") {
		t.Fatalf("expected the failed write to be reported, got:\n%s", out.String())
	}
	mira, err := db.Get(ctx, "moonfall", entity.KindCharacter, "mira")
	if err != nil || mira == nil {
		t.Fatalf("expected mira written on retry, got %v, %v", mira, err)
	}
	kael, err := db.Get(ctx, "moonfall", entity.KindCharacter, "kael")
	if err != nil || kael != nil {
		t.Fatalf("expected kael rejected, got %v, %v", kael, err)
	}
	if !sess.Closed() || strings.Contains(out.String(), "discarded") {
		t.Fatalf("expected every item decided, got:\n%s", out.String())
	}
}

func TestThresholdsKeepExplicitZeros(t *testing.T) {
	cfg := config.Default()
	zero := 0
	cfg.Reconcile.WorldOverlapThreshold = &zero
	cfg.Reconcile.TimelineOverlapThreshold = &zero
	got := thresholds(cfg)
	if got.WorldOverlap != 0 || got.TimelineOverlap != 0 {
		t.Fatalf("expected zero thresholds, got %+v", got)
	}
}

func TestVersionStringIncludesBuildInfo(t *testing.T) {
	defer func(v, c, d string) { version, commit, date = v, c, d }(version, commit, date)

	version, commit, date = "v0.3.0", "", ""
	if got := versionString(); got != "v0.3.0" {
		t.Fatalf("expected bare version, got %q", got)
	}
	version, commit, date = "v0.3.0", "abc1234", "2026-10-17"
	if got := versionString(); got != "v0.3.0 (abc1234, 2026-10-17)" {
		t.Fatalf("expected version with commit and date, got %q", got)
	}

	var buf bytes.Buffer
	cmd := versionCmd()
	cmd.SetOut(&buf)
	cmd.SetArgs([]string{})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.HasPrefix(buf.String(), "lorekeeper v0.3.0 (abc1234") {
		t.Fatalf("expected version line, got %q", buf.String())
	}
}
