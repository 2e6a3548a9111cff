package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"lorekeeper/internal/ingest"
	"lorekeeper/internal/reconcile"
	"lorekeeper/internal/session"
)

type reconcileOptions struct {
	story  string
	yes    bool
	dryRun bool
}

func reconcileCmd(opts *rootOptions) *cobra.Command {
	ro := &reconcileOptions{}
	cmd := &cobra.Command{
		Use:   "reconcile <path>...",
		Short: "Extract records from chapter files and review the changes",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReconcile(cmd, opts, ro, args)
		},
	}
	cmd.Flags().StringVar(&ro.story, "story", "", "Story for files without frontmatter; other stories are skipped")
	cmd.Flags().BoolVarP(&ro.yes, "yes", "y", false, "Approve every recommendation without prompting")
	cmd.Flags().BoolVar(&ro.dryRun, "dry-run", false, "Show recommendations and discard them")
	return cmd
}

func runReconcile(cmd *cobra.Command, opts *rootOptions, ro *reconcileOptions, paths []string) error {
	ctx := context.Background()
	logger := slog.Default()

	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	loaded, err := ingest.Load(ctx, paths, ingest.Options{Story: ro.story, Exclude: cfg.Exclude})
	if err != nil {
		return err
	}
	for _, loadErr := range loaded.Errors {
		logger.Warn("skipping chapter file", "err", loadErr)
	}
	if len(loaded.Chapters) == 0 {
		return fmt.Errorf("no chapters found")
	}

	db, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close(ctx)

	manager, err := newManager(cfg, db, logger)
	if err != nil {
		return err
	}
	defer manager.Close()

	out := cmd.OutOrStdout()
	interactive := !ro.yes && !ro.dryRun && isatty.IsTerminal(os.Stdin.Fd())
	var failed bool
	for _, story := range loaded.Stories() {
		sess, err := manager.Start(ctx, story, loaded.Text(story))
		if err != nil {
			return fmt.Errorf("reconciling %s: %w", story, err)
		}
		printSession(out, sess)
		if sess.Closed() {
			continue
		}

		switch {
		case ro.yes:
			results, err := manager.ApplyAll(ctx, sess.ID)
			if err != nil {
				return err
			}
			if printResults(out, sess, results) > 0 {
				failed = true
			}
		case interactive:
			if err := review(ctx, out, manager, sess); err != nil {
				return err
			}
		default:
			if err := manager.Cancel(sess.ID); err != nil {
				return err
			}
			fmt.Fprintln(out, "Dry run: nothing written. Use --yes to apply.")
		}
	}
	if failed {
		return fmt.Errorf("some recommendations could not be applied")
	}
	return nil
}

func printSession(out io.Writer, sess *session.Session) {
	result := sess.Result()
	fmt.Fprintf(out, "Story %s (session %s)\n", sess.StoryID, sess.ID)
	fmt.Fprintln(out, result.Summary())

	items := sess.Items()
	if len(items) > 0 {
		rows := make([][]string, 0, len(items))
		for i, item := range items {
			rec := item.Recommendation
			rows = append(rows, []string{
				strconv.Itoa(i + 1),
				string(rec.Action),
				rec.Kind.Label(),
				rec.Candidate.Identity(),
				rec.Reason,
				strconv.Itoa(len(rec.Contradictions)),
			})
		}
		fmt.Fprintln(out, renderTable([]string{"#", "Action", "Kind", "Name", "Reason", "Conflicts"}, rows))
	}
	for _, report := range result.Reports {
		fmt.Fprintf(out, "  ! %s\n", describeContradiction(report))
	}
}

func printResults(out io.Writer, sess *session.Session, results []session.Result) int {
	failures := 0
	for _, res := range results {
		if res.Err != nil {
			failures++
			fmt.Fprintf(out, "  failed %s: %v\n", res.ItemID, res.Err)
		}
	}
	fmt.Fprintf(out, "Applied %d of %d recommendations for %s\n", len(results)-failures, len(results), sess.StoryID)
	return failures
}

func describeContradiction(c reconcile.Contradiction) string {
	return fmt.Sprintf("%s %q conflicts with %q: %s", c.Kind.Label(), c.CandidateKey, c.ExistingKey, c.Detail)
}
