package sqlite

import (
	"context"
	"encoding/json"
	"fmt"

	"lorekeeper/internal/entity"
	"lorekeeper/internal/store"
)

func (c *Client) List(ctx context.Context, storyID string, kind entity.Kind) ([]entity.Entity, error) {
	query := `
	SELECT data
	FROM records
	WHERE story_id = ? AND kind = ?
	ORDER BY key
	`

	rows, err := c.db.QueryContext(ctx, query, storyID, string(kind))
	if err != nil {
		return nil, fmt.Errorf("listing records: %w", err)
	}
	defer rows.Close()

	records := make([]entity.Entity, 0)
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scanning record: %w", err)
		}
		record, err := entity.Decode(kind, data)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating records: %w", err)
	}
	return records, nil
}

func (c *Client) Get(ctx context.Context, storyID string, kind entity.Kind, key string) (entity.Entity, error) {
	query := `
	SELECT data
	FROM records
	WHERE story_id = ? AND kind = ? AND key = ?
	`

	rows, err := c.db.QueryContext(ctx, query, storyID, string(kind), entity.NormalizeKey(key))
	if err != nil {
		return nil, fmt.Errorf("getting record: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("getting record: %w", err)
		}
		return nil, nil
	}
	var data []byte
	if err := rows.Scan(&data); err != nil {
		return nil, fmt.Errorf("scanning record: %w", err)
	}
	return entity.Decode(kind, data)
}

func (c *Client) Upsert(ctx context.Context, storyID string, e entity.Entity) error {
	if err := store.CheckRecord(storyID, e); err != nil {
		return store.NewWriteError(storyID, e, err)
	}
	key := entity.Key(e)

	data, err := json.Marshal(e)
	if err != nil {
		return store.NewWriteError(storyID, e, fmt.Errorf("marshaling record: %w", err))
	}

	query := `
	INSERT INTO records (story_id, kind, key, token, data, updated_at)
	VALUES (?, ?, ?, ?, ?, datetime('now'))
	ON CONFLICT (story_id, kind, key) DO UPDATE SET
		token = excluded.token,
		data = excluded.data,
		updated_at = excluded.updated_at
	WHERE records.data <> excluded.data
	`

	res, err := c.db.ExecContext(ctx, query,
		storyID,
		string(e.Kind()),
		key,
		entity.Token(key, c.tokenLength),
		string(data),
	)
	if err != nil {
		return store.NewWriteError(storyID, e, fmt.Errorf("upserting record: %w", err))
	}
	if affected, err := res.RowsAffected(); err == nil && affected > 0 {
		c.logger.Debug("record written", "story", storyID, "kind", e.Kind(), "key", key)
	}
	return nil
}

func (c *Client) Delete(ctx context.Context, storyID string, kind entity.Kind, key string) (bool, error) {
	query := `DELETE FROM records WHERE story_id = ? AND kind = ? AND key = ?`

	res, err := c.db.ExecContext(ctx, query, storyID, string(kind), entity.NormalizeKey(key))
	if err != nil {
		return false, fmt.Errorf("deleting record: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("deleting record: %w", err)
	}
	return affected > 0, nil
}
