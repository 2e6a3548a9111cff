package main

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"lorekeeper/internal/config"
)

type rootOptions struct {
	configPath string
	verbose    bool
}

func main() {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "lorekeeper",
		Short:         "Reconcile story text against a per-story knowledge base",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return err
			}
			slog.SetDefault(newLogger(opts.verbose))
			return nil
		},
	}
	root.Version = versionString()
	root.SetVersionTemplate("{{.Version}}\n")
	root.PersistentFlags().StringVar(&opts.configPath, "config", config.DefaultPath, "Project config file")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Enable debug logging")

	root.AddCommand(initCmd())
	root.AddCommand(reconcileCmd(opts))
	root.AddCommand(recordsCmd(opts))
	root.AddCommand(validateCmd(opts))
	root.AddCommand(serveCmd(opts))
	root.AddCommand(versionCmd())
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// newLogger writes to stderr so stdout stays usable for reports and the
// MCP stdio transport.
func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
