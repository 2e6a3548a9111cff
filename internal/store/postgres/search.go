package postgres

import (
	"context"
	"fmt"
	"strings"

	"lorekeeper/internal/entity"
	"lorekeeper/internal/store"
)

// Search matches prefix terms against the string values of the stored JSON
// and ranks the hits with store.Score so every backend orders alike.
func (c *Client) Search(ctx context.Context, storyID, query string, kind entity.Kind) ([]store.SearchResult, error) {
	terms := store.SearchTerms(query)
	if len(terms) == 0 {
		return nil, store.ErrEmptyQuery
	}

	sql := `
SELECT kind, data
FROM records
WHERE story_id = $1
  AND ($2 = '' OR kind = $2)
  AND jsonb_to_tsvector('simple', data, '["string"]') @@ to_tsquery('simple', $3)
ORDER BY kind, key
`
	rows, err := c.pool.Query(ctx, sql, storyID, string(kind), tsQuery(terms))
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

// tsQuery ORs prefix matches of terms. Terms hold only letters and digits,
// so they need no quoting.
func tsQuery(terms []string) string {
	parts := make([]string, 0, len(terms))
	for _, term := range terms {
		parts = append(parts, term+":*")
	}
	return strings.Join(parts, " | ")
}
