// Package index keeps a SQLite view of the flows directory for listing and
// search, and stores the backend session cookies between runs.
package index

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// migrations run in order; PRAGMA user_version holds how many were applied.
// Append only.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS flows (
		id          TEXT PRIMARY KEY,
		path        TEXT NOT NULL DEFAULT '',
		name        TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		checksum    TEXT NOT NULL DEFAULT '',
		node_types  TEXT NOT NULL DEFAULT '[]',
		node_count  INTEGER NOT NULL DEFAULT 0,
		body        TEXT NOT NULL DEFAULT '',
		updated_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS flow_node_types (
		flow_id   TEXT NOT NULL REFERENCES flows(id) ON DELETE CASCADE,
		node_type TEXT NOT NULL,
		UNIQUE(flow_id, node_type)
	);
	CREATE INDEX IF NOT EXISTS idx_flow_node_types_type ON flow_node_types(node_type)`,
	`CREATE TABLE IF NOT EXISTS session_cookies (
		host    TEXT NOT NULL,
		name    TEXT NOT NULL,
		value   TEXT NOT NULL,
		expires DATETIME,
		PRIMARY KEY (host, name)
	)`,
	`CREATE TABLE session_cookies_v2 (
		host    TEXT NOT NULL,
		name    TEXT NOT NULL,
		path    TEXT NOT NULL DEFAULT '/',
		value   TEXT NOT NULL,
		expires DATETIME,
		PRIMARY KEY (host, name, path)
	);
	INSERT INTO session_cookies_v2 (host, name, path, value, expires)
		SELECT host, name, '/', value, expires FROM session_cookies;
	DROP TABLE session_cookies;
	ALTER TABLE session_cookies_v2 RENAME TO session_cookies`,
}

const dsnParams = "_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"

// DB is the flow index and cookie store.
type DB struct {
	conn *sql.DB
}

// Open opens or creates the database at path and brings its schema up to date.
func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite3", "file:"+path+"?"+dsnParams)
	if err != nil {
		return nil, fmt.Errorf("index: open %s: %w", path, err)
	}
	if err := setup(conn); err != nil {
		conn.Close()
		return nil, err
	}
	return &DB{conn: conn}, nil
}

func setup(conn *sql.DB) error {
	if err := conn.Ping(); err != nil {
		return fmt.Errorf("index: ping: %w", err)
	}
	if err := migrate(conn); err != nil {
		return err
	}
	if err := initFTS(conn); err != nil {
		return fmt.Errorf("index: fts: %w", err)
	}
	return nil
}

func migrate(conn *sql.DB) error {
	var applied int
	if err := conn.QueryRow(`PRAGMA user_version`).Scan(&applied); err != nil {
		return fmt.Errorf("index: read schema version: %w", err)
	}
	for v := applied; v < len(migrations); v++ {
		tx, err := conn.Begin()
		if err != nil {
			return fmt.Errorf("index: migrate: %w", err)
		}
		if _, err := tx.Exec(migrations[v]); err != nil {
			tx.Rollback() //nolint:errcheck
			return fmt.Errorf("index: migration %d: %w", v+1, err)
		}
		if _, err := tx.Exec(fmt.Sprintf(`PRAGMA user_version = %d`, v+1)); err != nil {
			tx.Rollback() //nolint:errcheck
			return fmt.Errorf("index: migration %d: set version: %w", v+1, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("index: migration %d: commit: %w", v+1, err)
		}
	}
	return nil
}

// Close closes the database.
func (db *DB) Close() error {
	return db.conn.Close()
}
