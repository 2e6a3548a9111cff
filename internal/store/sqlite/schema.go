package sqlite

import (
	"context"
	"fmt"
)

func (c *Client) EnsureSchema(ctx context.Context) error {
	ddl := `
	CREATE TABLE IF NOT EXISTS records (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		story_id   TEXT NOT NULL,
		kind       TEXT NOT NULL,
		key        TEXT NOT NULL,
		token      TEXT NOT NULL,
		data       TEXT NOT NULL,
		updated_at TEXT DEFAULT (datetime('now')),
		CONSTRAINT uq_record_key UNIQUE (story_id, kind, key)
	);

	CREATE INDEX IF NOT EXISTS idx_records_story_kind ON records (story_id, kind);
	CREATE INDEX IF NOT EXISTS idx_records_token ON records (story_id, kind, token);
	`

	if _, err := c.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("ensuring schema: %w", err)
	}
	return nil
}
