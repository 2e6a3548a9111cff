package sqlite

import (
	"context"
	"fmt"
	"strings"

	"lorekeeper/internal/entity"
	"lorekeeper/internal/store"
)

// Search narrows candidates with LIKE on the stored JSON and ranks them with
// store.Score, which also discards matches on JSON field names.
func (c *Client) Search(ctx context.Context, storyID, query string, kind entity.Kind) ([]store.SearchResult, error) {
	terms := store.SearchTerms(query)
	if len(terms) == 0 {
		return nil, store.ErrEmptyQuery
	}

	likes := make([]string, 0, len(terms))
	args := []any{storyID, string(kind), string(kind)}
	for _, term := range terms {
		likes = append(likes, "lower(data) LIKE ?")
		args = append(args, "%"+term+"%")
	}

	sqlQuery := `
	SELECT kind, data
	FROM records
	WHERE story_id = ?
	  AND (? = '' OR kind = ?)
	  AND (` + strings.Join(likes, " OR ") + `)
	ORDER BY kind, key
	`

	rows, err := c.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("searching records: %w", err)
	}
	defer rows.Close()

	var records []entity.Entity
	for rows.Next() {
		var kindValue string
		var data []byte
		if err := rows.Scan(&kindValue, &data); err != nil {
			return nil, fmt.Errorf("scanning search result: %w", err)
		}
		record, err := entity.Decode(entity.Kind(kindValue), data)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating search results: %w", err)
	}

	return store.Rank(store.Collect(nil, terms, records)), nil
}
