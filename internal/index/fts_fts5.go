//go:build sqlite_fts5

package index

import (
	"database/sql"
	"fmt"
	"strings"
)

const ftsSchemaSQL = `
CREATE VIRTUAL TABLE IF NOT EXISTS flows_fts USING fts5(
	flow_id UNINDEXED,
	name,
	description,
	body,
	tokenize = 'unicode61 remove_diacritics 2'
);
`

func initFTS(conn *sql.DB) error {
	if _, err := conn.Exec(ftsSchemaSQL); err != nil {
		return fmt.Errorf("create flows_fts: %w", err)
	}
	return nil
}

func ftsUpsert(tx *sql.Tx, f FlowRow, body string) error {
	if err := ftsDelete(tx, f.ID); err != nil {
		return err
	}
	_, err := tx.Exec(`INSERT INTO flows_fts (flow_id, name, description, body) VALUES (?, ?, ?, ?)`,
		f.ID, f.Name, f.Description, body)
	if err != nil {
		return fmt.Errorf("index: fts insert %s: %w", f.ID, err)
	}
	return nil
}

func ftsDelete(tx *sql.Tx, id string) error {
	if _, err := tx.Exec(`DELETE FROM flows_fts WHERE flow_id = ?`, id); err != nil {
		return fmt.Errorf("index: fts delete %s: %w", id, err)
	}
	return nil
}

// matchExpr quotes every term so FTS5 operators in user input are matched
// literally. Terms are implicitly ANDed.
func matchExpr(query string) string {
	terms := strings.Fields(query)
	for i, t := range terms {
		terms[i] = `"` + strings.ReplaceAll(t, `"`, `""`) + `"`
	}
	return strings.Join(terms, " ")
}

// Search ranks flows by bm25 and returns a highlighted body snippet.
func (db *DB) Search(query string, limit int) ([]SearchResult, error) {
	expr := matchExpr(query)
	if expr == "" {
		return []SearchResult{}, nil
	}
	rows, err := db.conn.Query(`
		SELECT flow_id, name, snippet(flows_fts, 3, '<b>', '</b>', '...', 32)
		FROM flows_fts
		WHERE flows_fts MATCH ?
		ORDER BY bm25(flows_fts)
		LIMIT ?`, expr, searchLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("index: fts search: %w", err)
	}
	return scanHits(rows)
}
