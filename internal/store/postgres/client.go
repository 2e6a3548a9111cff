package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"lorekeeper/internal/store"
)

var _ store.Store = (*Client)(nil)

type Client struct {
	pool        *pgxpool.Pool
	tokenLength int
	logger      *slog.Logger
}

type Options struct {
	// TokenLength caps the file-safe token stored beside each key.
	TokenLength int
	Logger      *slog.Logger
}

func New(ctx context.Context, dsn string, opts Options) (*Client, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("creating postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	client := &Client{pool: pool, tokenLength: opts.TokenLength, logger: logger}
	if err := client.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return client, nil
}

func (c *Client) Close(ctx context.Context) error {
	c.pool.Close()
	return nil
}
