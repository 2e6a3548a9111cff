package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"lorekeeper/internal/config"
)

func initCmd() *cobra.Command {
	var projectName string
	var driver string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Scaffold a new lorekeeper project",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(projectName) == "" {
				return fmt.Errorf("--name is required")
			}
			return runInit(cmd, projectName, driver)
		},
	}
	cmd.Flags().StringVar(&projectName, "name", "", "Project name")
	cmd.Flags().StringVar(&driver, "store", "files", "Store driver (memory, files, sqlite, postgres)")
	return cmd
}

func runInit(cmd *cobra.Command, projectName, driver string) error {
	configPath := config.DefaultPath
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("%s already exists", configPath)
	}

	var storeBlock string
	switch driver {
	case "files":
		storeBlock = "store:\n  driver: files\n  path: ./Database\n"
	case "sqlite":
		storeBlock = "store:\n  driver: sqlite\n  dsn: ./lorekeeper.db\n"
	case "postgres":
		storeBlock = "store:\n  driver: postgres\n  dsn: postgres://localhost:5432/lorekeeper\n"
	case "memory":
		storeBlock = "store:\n  driver: memory\n"
	default:
		return fmt.Errorf("unsupported store driver: %s", driver)
	}

	contents := fmt.Sprintf("project: %s\nversion: 1\n\n%s\nextractor:\n  provider: heuristic\n  timeout: 60s\n  max_retries: 3\n  initial_backoff: 1s\n  max_backoff: 30s\n  max_concurrent: 2\n\nreconcile:\n  world_overlap_threshold: 3\n  timeline_overlap_threshold: 5\n  key_max_length: 40\n\nlock_dir: ./.lorekeeper/locks\n\nexclude:\n  - ./assets/\n", projectName, storeBlock)
	if err := os.WriteFile(configPath, []byte(contents), 0o600); err != nil {
		return fmt.Errorf("writing %s: %w", configPath, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", configPath)
	return nil
}
