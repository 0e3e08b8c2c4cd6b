package index

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/starford/nodeflow/internal/storage"
)

const watchedFlow = `name: Watched
nodes:
  - id: chatInputNode-1
    type: chatInputNode
    position: {x: 0, y: 0}
    data:
      message: hi
`

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) record(kind, id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, kind+":"+id)
}

func (r *recorder) has(ev string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Contains(r.events, ev)
}

type fixture struct {
	dir   string
	store *storage.FS
	db    *DB
	log   *slog.Logger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return &fixture{
		dir:   dir,
		store: store,
		db:    testDB(t),
		log:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func (f *fixture) put(t *testing.T, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(f.dir, name), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func (f *fixture) indexed(id string) bool {
	cs, _ := f.db.GetChecksum(id)
	return cs != ""
}

// watch runs Watch in the background and gives fsnotify time to register.
func (f *fixture) watch(t *testing.T, rec *recorder) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	var cb EventCallback
	if rec != nil {
		cb = rec.record
	}
	go func() {
		defer close(done)
		_ = Watch(ctx, f.db, f.store, f.log, cb)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	time.Sleep(100 * time.Millisecond)
}

func waitUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(25 * time.Millisecond)
	}
}

func TestSync(t *testing.T) {
	f := newFixture(t)
	f.put(t, "one.yaml", watchedFlow)
	f.put(t, "broken.yaml", "nodes: [\n")
	f.put(t, "notes.txt", "ignored")
	_ = f.db.UpsertFlow(FlowRow{ID: "stale", Checksum: "s"}, "")

	if err := Sync(f.db, f.store, f.log); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	row, err := f.db.GetFlow("one")
	if err != nil {
		t.Fatalf("GetFlow: %v", err)
	}
	if row.Name != "Watched" || row.NodeCount != 1 || row.Path != "one.yaml" {
		t.Errorf("row = %+v", row)
	}
	for _, id := range []string{"stale", "broken", "notes"} {
		if f.indexed(id) {
			t.Errorf("%s should not be indexed", id)
		}
	}
}

func TestSyncDir_ReportsChanges(t *testing.T) {
	f := newFixture(t)
	f.put(t, "keep.yaml", watchedFlow)
	f.put(t, "edit.yaml", watchedFlow)
	_ = Sync(f.db, f.store, f.log)
	f.put(t, "edit.yaml", watchedFlow+"description: changed\n")
	f.put(t, "fresh.yaml", watchedFlow)
	_ = os.Remove(filepath.Join(f.dir, "keep.yaml"))

	rec := &recorder{}
	if err := syncDir(f.db, f.store, f.log, rec.record); err != nil {
		t.Fatal(err)
	}
	want := []string{"updated:edit", "created:fresh", "deleted:keep"}
	for _, ev := range want {
		if !rec.has(ev) {
			t.Errorf("missing %s in %v", ev, rec.events)
		}
	}
	if len(rec.events) != len(want) {
		t.Errorf("events = %v, want %v", rec.events, want)
	}
}

func TestWatch_CreateThenRemove(t *testing.T) {
	f := newFixture(t)
	rec := &recorder{}
	f.watch(t, rec)

	f.put(t, "new.yaml", watchedFlow)
	waitUntil(t, "created:new", func() bool { return f.indexed("new") && rec.has("created:new") })

	_ = os.Remove(filepath.Join(f.dir, "new.yaml"))
	waitUntil(t, "deleted:new", func() bool { return !f.indexed("new") && rec.has("deleted:new") })
}

func TestWatch_RenameMovesEntry(t *testing.T) {
	f := newFixture(t)
	f.put(t, "old.yaml", watchedFlow)
	_ = Sync(f.db, f.store, f.log)
	f.watch(t, nil)

	_ = os.Rename(filepath.Join(f.dir, "old.yaml"), filepath.Join(f.dir, "renamed.yaml"))
	waitUntil(t, "rename", func() bool { return !f.indexed("old") && f.indexed("renamed") })
}

func TestWatch_AtomicWriteIsPickedUp(t *testing.T) {
	f := newFixture(t)
	f.watch(t, nil)

	if err := f.store.Write("saved.yaml", []byte(watchedFlow)); err != nil {
		t.Fatal(err)
	}
	waitUntil(t, "saved indexed", func() bool { return f.indexed("saved") })
}
