package index

import (
	"database/sql"
	"fmt"
	"net/http"
	"time"
)

// LoadCookies returns the unexpired session cookies stored for host with
// their path and expiry.
func (db *DB) LoadCookies(host string) ([]*http.Cookie, error) {
	rows, err := db.conn.Query(`SELECT name, path, value, expires FROM session_cookies WHERE host = ? ORDER BY name, path`, host)
	if err != nil {
		return nil, fmt.Errorf("index: load cookies: %w", err)
	}
	defer rows.Close()

	now := time.Now()
	var out []*http.Cookie
	for rows.Next() {
		var (
			ck      http.Cookie
			expires sql.NullTime
		)
		if err := rows.Scan(&ck.Name, &ck.Path, &ck.Value, &expires); err != nil {
			return nil, fmt.Errorf("index: scan cookie: %w", err)
		}
		if expires.Valid {
			if !expires.Time.After(now) {
				continue
			}
			ck.Expires = expires.Time
		}
		out = append(out, &ck)
	}
	return out, rows.Err()
}

// SaveCookies replaces the cookies stored for host. An empty slice clears
// them. Cookies are keyed by name and path; an empty path is stored as "/".
func (db *DB) SaveCookies(host string, cookies []*http.Cookie) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.Exec(`DELETE FROM session_cookies WHERE host = ?`, host); err != nil {
		return fmt.Errorf("index: clear cookies: %w", err)
	}
	for _, ck := range cookies {
		path := ck.Path
		if path == "" {
			path = "/"
		}
		var expires any
		if !ck.Expires.IsZero() {
			expires = ck.Expires.UTC()
		}
		if _, err := tx.Exec(`INSERT OR REPLACE INTO session_cookies (host, name, path, value, expires) VALUES (?, ?, ?, ?, ?)`,
			host, ck.Name, path, ck.Value, expires); err != nil {
			return fmt.Errorf("index: save cookie %s: %w", ck.Name, err)
		}
	}
	return tx.Commit()
}
