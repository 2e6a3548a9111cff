package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"lorekeeper/internal/reconcile"
	"lorekeeper/internal/validate"
)

func validateCmd(opts *rootOptions) *cobra.Command {
	var storyID string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check stored records of a story for contradictions and gaps",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(storyID) == "" {
				return fmt.Errorf("--story is required")
			}
			return runValidate(cmd, opts, storyID)
		},
	}
	cmd.Flags().StringVar(&storyID, "story", "", "Story identifier")
	return cmd
}

func runValidate(cmd *cobra.Command, opts *rootOptions, storyID string) error {
	ctx := context.Background()
	logger := slog.Default()

	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	db, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close(ctx)

	report, err := validate.Run(ctx, storyID, db, reconcile.NewClassifier(thresholds(cfg)))
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	var errorIssues []validate.Issue
	var warnIssues []validate.Issue
	for _, issue := range report.Issues {
		switch issue.Severity {
		case validate.SeverityError:
			errorIssues = append(errorIssues, issue)
		case validate.SeverityWarn:
			warnIssues = append(warnIssues, issue)
		}
	}

	if len(errorIssues) == 0 && len(warnIssues) == 0 {
		fmt.Fprintf(out, "No issues found in %d records.\n", report.Records)
		return nil
	}

	if len(errorIssues) > 0 {
		fmt.Fprintf(out, "Errors (%d):\n", len(errorIssues))
		printIssues(out, errorIssues)
	}
	if len(warnIssues) > 0 {
		if len(errorIssues) > 0 {
			fmt.Fprintln(out, "")
		}
		fmt.Fprintf(out, "Warnings (%d):\n", len(warnIssues))
		printIssues(out, warnIssues)
	}

	if len(errorIssues) > 0 {
		return fmt.Errorf("validation found errors")
	}
	return nil
}

func printIssues(out io.Writer, issues []validate.Issue) {
	for _, issue := range issues {
		location := fmt.Sprintf("%s %q", issue.Kind, issue.Key)
		if issue.Related != "" {
			location = fmt.Sprintf("%s vs %q", location, issue.Related)
		}
		fmt.Fprintf(out, "  - %s: %s (%s)\n", location, issue.Message, issue.Code)
	}
}
