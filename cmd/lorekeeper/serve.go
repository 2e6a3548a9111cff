package main

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"lorekeeper/internal/mcp"
	"lorekeeper/internal/reconcile"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

func serveCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server over stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts)
		},
	}
	return cmd
}

func runServe(opts *rootOptions) error {
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

	manager, err := newManager(cfg, db, logger)
	if err != nil {
		return err
	}
	defer manager.Close()

	server := mcp.NewServer(manager, db, reconcile.NewClassifier(thresholds(cfg)), version)
	return server.Run(ctx, &sdk.StdioTransport{})
}
