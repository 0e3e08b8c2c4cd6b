//go:build !sqlite_fts5

package index

import (
	"database/sql"
	"fmt"
	"strings"
)

// Without FTS5 the flows table itself is scanned, so there is nothing to
// maintain on writes.
func initFTS(*sql.DB) error                    { return nil }
func ftsUpsert(*sql.Tx, FlowRow, string) error { return nil }
func ftsDelete(*sql.Tx, string) error          { return nil }

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

const likeClause = `(name LIKE ? ESCAPE '\' OR description LIKE ? ESCAPE '\' OR body LIKE ? ESCAPE '\' OR node_types LIKE ? ESCAPE '\')`

// Search requires every term to appear in the name, description, body or
// node types. Newest flows come first.
func (db *DB) Search(query string, limit int) ([]SearchResult, error) {
	terms := strings.Fields(query)
	if len(terms) == 0 {
		return []SearchResult{}, nil
	}
	clauses := make([]string, len(terms))
	args := make([]any, 0, 4*len(terms)+1)
	for i, t := range terms {
		pattern := "%" + likeEscaper.Replace(t) + "%"
		clauses[i] = likeClause
		args = append(args, pattern, pattern, pattern, pattern)
	}
	args = append(args, searchLimit(limit))

	rows, err := db.conn.Query(`SELECT id, name, substr(body, 1, 200) FROM flows WHERE `+
		strings.Join(clauses, " AND ")+` ORDER BY updated_at DESC LIMIT ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("index: like search: %w", err)
	}
	return scanHits(rows)
}
