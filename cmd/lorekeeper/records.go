package main

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"lorekeeper/internal/entity"
	"lorekeeper/internal/store"
)

func recordsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "records",
		Short: "Inspect and edit stored records",
	}
	cmd.PersistentFlags().String("story", "", "Story identifier")
	cmd.AddCommand(recordsListCmd(opts))
	cmd.AddCommand(recordsShowCmd(opts))
	cmd.AddCommand(recordsSearchCmd(opts))
	cmd.AddCommand(recordsDeleteCmd(opts))
	return cmd
}

func recordsListCmd(opts *rootOptions) *cobra.Command {
	var kindFlag string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the records of a story",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			storyID, err := storyFlag(cmd)
			if err != nil {
				return err
			}
			kinds := entity.Kinds
			if kindFlag != "" {
				kind, err := entity.ParseKind(kindFlag)
				if err != nil {
					return err
				}
				kinds = []entity.Kind{kind}
			}
			return withStore(opts, func(ctx context.Context, db store.Store) error {
				return runRecordsList(ctx, cmd, db, storyID, kinds)
			})
		},
	}
	cmd.Flags().StringVar(&kindFlag, "kind", "", "Only list one kind (character, world, timeline, storyboard)")
	return cmd
}

func runRecordsList(ctx context.Context, cmd *cobra.Command, db store.Store, storyID string, kinds []entity.Kind) error {
	var rows [][]string
	for _, kind := range kinds {
		records, err := db.List(ctx, storyID, kind)
		if err != nil {
			return err
		}
		for _, record := range records {
			rows = append(rows, []string{string(kind), record.Identity(), fieldSummary(record)})
		}
	}
	out := cmd.OutOrStdout()
	if len(rows) == 0 {
		fmt.Fprintln(out, "No records found.")
		return nil
	}
	fmt.Fprintln(out, renderTable([]string{"Kind", "Name", "Fields"}, rows))
	return nil
}

func recordsSearchCmd(opts *rootOptions) *cobra.Command {
	var kindFlag string
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Find records whose names or text match the query words",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			storyID, err := storyFlag(cmd)
			if err != nil {
				return err
			}
			var kind entity.Kind
			if kindFlag != "" {
				if kind, err = entity.ParseKind(kindFlag); err != nil {
					return err
				}
			}
			query := strings.Join(args, " ")
			return withStore(opts, func(ctx context.Context, db store.Store) error {
				return runRecordsSearch(ctx, cmd, db, storyID, query, kind)
			})
		},
	}
	cmd.Flags().StringVar(&kindFlag, "kind", "", "Only search one kind (character, world, timeline, storyboard)")
	return cmd
}

func runRecordsSearch(ctx context.Context, cmd *cobra.Command, db store.Store, storyID, query string, kind entity.Kind) error {
	results, err := db.Search(ctx, storyID, query, kind)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(results) == 0 {
		fmt.Fprintln(out, "No matches found.")
		return nil
	}
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		rows = append(rows, []string{string(r.Kind), r.Name, strconv.Itoa(r.Score), strings.Join(r.Matched, ", ")})
	}
	fmt.Fprintln(out, renderTable([]string{"Kind", "Name", "Score", "Matched"}, rows))
	return nil
}

func recordsShowCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <kind> <name>",
		Short: "Print one record as JSON",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			storyID, err := storyFlag(cmd)
			if err != nil {
				return err
			}
			kind, err := entity.ParseKind(args[0])
			if err != nil {
				return err
			}
			return withStore(opts, func(ctx context.Context, db store.Store) error {
				record, err := db.Get(ctx, storyID, kind, args[1])
				if err != nil {
					return err
				}
				if record == nil {
					return fmt.Errorf("%s %q not found", kind, args[1])
				}
				data, err := entity.Encode(record)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return nil
			})
		},
	}
}

func recordsDeleteCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <kind> <name>",
		Short: "Delete one record",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			storyID, err := storyFlag(cmd)
			if err != nil {
				return err
			}
			kind, err := entity.ParseKind(args[0])
			if err != nil {
				return err
			}
			return withStore(opts, func(ctx context.Context, db store.Store) error {
				deleted, err := db.Delete(ctx, storyID, kind, args[1])
				if err != nil {
					return err
				}
				if !deleted {
					return fmt.Errorf("%s %q not found", kind, args[1])
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s %q\n", kind, args[1])
				return nil
			})
		},
	}
}

func storyFlag(cmd *cobra.Command) (string, error) {
	storyID, err := cmd.Flags().GetString("story")
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(storyID) == "" {
		return "", fmt.Errorf("--story is required")
	}
	return storyID, nil
}

func withStore(opts *rootOptions, fn func(ctx context.Context, db store.Store) error) error {
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
	return fn(ctx, db)
}

func fieldSummary(e entity.Entity) string {
	var parts []string
	for _, field := range e.Fields() {
		switch v := field.Value.(type) {
		case string:
			if v = strings.TrimSpace(v); v != "" {
				parts = append(parts, fmt.Sprintf("%s=%s", field.Name, truncate(v, 40)))
			}
		case bool:
			if v {
				parts = append(parts, field.Name)
			}
		}
	}
	return strings.Join(parts, ", ")
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-1]) + "…"
}
