package index

import (
	"database/sql"
	"fmt"
)

const defaultSearchLimit = 20

func searchLimit(n int) int {
	if n <= 0 || n > 200 {
		return defaultSearchLimit
	}
	return n
}

// scanHits reads (id, name, snippet) rows. An empty result is a non-nil slice.
func scanHits(rows *sql.Rows) ([]SearchResult, error) {
	defer rows.Close()
	hits := make([]SearchResult, 0)
	for rows.Next() {
		var h SearchResult
		if err := rows.Scan(&h.ID, &h.Name, &h.Snippet); err != nil {
			return nil, fmt.Errorf("index: scan hit: %w", err)
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("index: search rows: %w", err)
	}
	return hits, nil
}
