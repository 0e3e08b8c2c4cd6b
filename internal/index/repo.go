package index

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/starford/nodeflow/internal/apperr"
)

// FlowRow represents a row in the flows table.
type FlowRow struct {
	ID          string
	Path        string
	Name        string
	Description string
	Checksum    string
	NodeTypes   []string
	NodeCount   int
	UpdatedAt   time.Time
}

// SearchResult represents one search hit.
type SearchResult struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Snippet string `json:"snippet"`
}

// UpsertFlow inserts or replaces a flow, its FTS entry and its node types
// within a transaction.
func (db *DB) UpsertFlow(f FlowRow, body string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	if f.NodeTypes == nil {
		f.NodeTypes = []string{}
	}
	typesJSON, _ := json.Marshal(f.NodeTypes)
	if f.UpdatedAt.IsZero() {
		f.UpdatedAt = time.Now()
	}

	_, err = tx.Exec(`
		INSERT INTO flows (id, path, name, description, checksum, node_types, node_count, body, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			path        = excluded.path,
			name        = excluded.name,
			description = excluded.description,
			checksum    = excluded.checksum,
			node_types  = excluded.node_types,
			node_count  = excluded.node_count,
			body        = excluded.body,
			updated_at  = excluded.updated_at
	`, f.ID, f.Path, f.Name, f.Description, f.Checksum, string(typesJSON), f.NodeCount, body, f.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("index: upsert flow: %w", err)
	}

	if err := ftsUpsert(tx, f, body); err != nil {
		return err
	}

	if _, err := tx.Exec(`DELETE FROM flow_node_types WHERE flow_id = ?`, f.ID); err != nil {
		return fmt.Errorf("index: clear node types: %w", err)
	}
	if len(f.NodeTypes) > 0 {
		stmt, err := tx.Prepare(`INSERT OR IGNORE INTO flow_node_types (flow_id, node_type) VALUES (?, ?)`)
		if err != nil {
			return fmt.Errorf("index: prepare node type insert: %w", err)
		}
		defer stmt.Close()
		for _, t := range f.NodeTypes {
			if _, err := stmt.Exec(f.ID, t); err != nil {
				return fmt.Errorf("index: insert node type: %w", err)
			}
		}
	}

	return tx.Commit()
}

// DeleteFlow removes a flow, its FTS entry and its node types.
func (db *DB) DeleteFlow(id string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := ftsDelete(tx, id); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM flows WHERE id = ?`, id); err != nil {
		return fmt.Errorf("index: delete flow: %w", err)
	}
	return tx.Commit()
}

// GetChecksum returns the stored checksum for a flow, or "" if not indexed.
func (db *DB) GetChecksum(id string) (string, error) {
	var cs string
	err := db.conn.QueryRow(`SELECT checksum FROM flows WHERE id = ?`, id).Scan(&cs)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("index: get checksum: %w", err)
	}
	return cs, nil
}

// GetFlow returns one indexed flow, or apperr.ErrNotFound.
func (db *DB) GetFlow(id string) (*FlowRow, error) {
	row := db.conn.QueryRow(`
		SELECT id, path, name, description, checksum, node_types, node_count, updated_at
		FROM flows WHERE id = ?`, id)
	f, err := scanFlow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("index: flow %q: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("index: get flow: %w", err)
	}
	return f, nil
}

var sortColumns = map[string]string{
	"":           "updated_at DESC",
	"updated_at": "updated_at DESC",
	"name":       "name COLLATE NOCASE ASC",
	"node_count": "node_count DESC",
}

// ListFlows returns one page of flows and the total matching count.
// nodeType, when set, keeps only flows containing that node type.
func (db *DB) ListFlows(limit, offset int, nodeType, sort string) ([]FlowRow, int, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	order, ok := sortColumns[sort]
	if !ok {
		return nil, 0, fmt.Errorf("index: unknown sort %q: %w", sort, apperr.ErrInvalid)
	}

	where, args := "", []any{}
	if nodeType != "" {
		where = `WHERE id IN (SELECT flow_id FROM flow_node_types WHERE node_type = ?)`
		args = append(args, nodeType)
	}

	var total int
	if err := db.conn.QueryRow(`SELECT count(*) FROM flows `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("index: count flows: %w", err)
	}

	rows, err := db.conn.Query(`
		SELECT id, path, name, description, checksum, node_types, node_count, updated_at
		FROM flows `+where+` ORDER BY `+order+`, id LIMIT ? OFFSET ?`,
		append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("index: list flows: %w", err)
	}
	defer rows.Close()

	var out []FlowRow
	for rows.Next() {
		f, err := scanFlow(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *f)
	}
	return out, total, rows.Err()
}

// AllChecksums returns id → checksum for every indexed flow.
func (db *DB) AllChecksums() (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT id, checksum FROM flows`)
	if err != nil {
		return nil, fmt.Errorf("index: all checksums: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var id, cs string
		if err := rows.Scan(&id, &cs); err != nil {
			return nil, err
		}
		out[id] = cs
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanFlow(s scanner) (*FlowRow, error) {
	var (
		f     FlowRow
		types string
	)
	if err := s.Scan(&f.ID, &f.Path, &f.Name, &f.Description, &f.Checksum, &types, &f.NodeCount, &f.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(types), &f.NodeTypes); err != nil {
		return nil, fmt.Errorf("index: decode node types of %s: %w", f.ID, err)
	}
	return &f, nil
}
