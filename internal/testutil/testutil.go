// Package testutil provides shared test helpers for setting up flow
// directories, index databases and flow services.
package testutil

import (
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/starford/nodeflow/internal/flowservice"
	"github.com/starford/nodeflow/internal/index"
	"github.com/starford/nodeflow/internal/storage"
)

// TestDB creates a temporary SQLite database that is automatically cleaned up.
func TestDB(t *testing.T) *index.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "nodeflow-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := index.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestFlows creates a temporary flows directory with a storage provider.
func TestFlows(t *testing.T) (string, *storage.FS) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return dir, store
}

// QuietLogger discards everything.
func QuietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// TestService returns a flow service over a fresh directory and database.
// A quiet logger is installed before opts are applied.
func TestService(t *testing.T, opts ...flowservice.Option) (*flowservice.Service, *index.DB) {
	t.Helper()
	_, store := TestFlows(t)
	db := TestDB(t)
	opts = append([]flowservice.Option{flowservice.WithLogger(QuietLogger())}, opts...)
	return flowservice.NewService(store, db, opts...), db
}
