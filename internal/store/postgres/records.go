package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"lorekeeper/internal/entity"
	"lorekeeper/internal/store"
)

func (c *Client) List(ctx context.Context, storyID string, kind entity.Kind) ([]entity.Entity, error) {
	query := `
SELECT data
FROM records
WHERE story_id = $1 AND kind = $2
ORDER BY key
`
	rows, err := c.pool.Query(ctx, query, storyID, string(kind))
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
WHERE story_id = $1 AND kind = $2 AND key = $3
`
	var data []byte
	err := c.pool.QueryRow(ctx, query, storyID, string(kind), entity.NormalizeKey(key)).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting record: %w", err)
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
VALUES ($1, $2, $3, $4, $5, now())
ON CONFLICT (story_id, kind, key) DO UPDATE SET
    token = EXCLUDED.token,
    data = EXCLUDED.data,
    updated_at = now()
WHERE records.data IS DISTINCT FROM EXCLUDED.data
`
	tag, err := c.pool.Exec(ctx, query, storyID, string(e.Kind()), key, entity.Token(key, c.tokenLength), data)
	if err != nil {
		return store.NewWriteError(storyID, e, fmt.Errorf("upserting record: %w", err))
	}
	if tag.RowsAffected() > 0 {
		c.logger.Debug("record written", "story", storyID, "kind", e.Kind(), "key", key)
	}
	return nil
}

func (c *Client) Delete(ctx context.Context, storyID string, kind entity.Kind, key string) (bool, error) {
	query := `DELETE FROM records WHERE story_id = $1 AND kind = $2 AND key = $3`
	tag, err := c.pool.Exec(ctx, query, storyID, string(kind), entity.NormalizeKey(key))
	if err != nil {
		return false, fmt.Errorf("deleting record: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
