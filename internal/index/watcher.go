package index

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/nodeflow/internal/checksum"
	"github.com/starford/nodeflow/internal/storage"
)

// Event kinds passed to EventCallback.
const (
	EventCreated = "created"
	EventUpdated = "updated"
	EventDeleted = "deleted"
)

// EventCallback receives one of the Event* kinds and the flow id after the
// index has changed.
type EventCallback func(kind string, id string)

const reconcileDelay = 200 * time.Millisecond

type watcher struct {
	db     FlowIndex
	store  storage.Provider
	logger *slog.Logger
	notify EventCallback
}

// Watch keeps the index in step with the flows directory until ctx ends.
// cb may be nil.
//
// Renames, including temp files renamed over a document by editors and by
// our own atomic writes, are settled by a debounced full sync rather than
// per event, because fsnotify reports only the old name.
func Watch(ctx context.Context, db FlowIndex, store storage.Provider, logger *slog.Logger, cb EventCallback) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("index: watch: %w", err)
	}
	defer fw.Close()
	if err := fw.Add(store.Root()); err != nil {
		return fmt.Errorf("index: watch %s: %w", store.Root(), err)
	}

	if cb == nil {
		cb = func(string, string) {}
	}
	w := &watcher{db: db, store: store, logger: logger, notify: cb}

	settle := time.NewTimer(reconcileDelay)
	settle.Stop()
	defer settle.Stop()

	logger.Info("watcher: started", slog.String("root", store.Root()))
	for {
		select {
		case <-ctx.Done():
			logger.Info("watcher: stopped")
			return nil

		case <-settle.C:
			if err := syncDir(db, store, logger, cb); err != nil {
				logger.Warn("watcher: reconcile failed", slog.String("error", err.Error()))
			}

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if w.handle(ev) {
				settle.Reset(reconcileDelay)
			}

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", err.Error()))
		}
	}
}

// handle applies one event and reports whether a reconcile is needed.
func (w *watcher) handle(ev fsnotify.Event) bool {
	id, isFlow := storage.IDFromPath(ev.Name)
	switch {
	case !isFlow:
		return ev.Has(fsnotify.Rename)
	case ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write):
		w.index(id)
		return false
	case ev.Has(fsnotify.Remove):
		w.remove(id)
		return false
	case ev.Has(fsnotify.Rename):
		w.remove(id)
		return true
	}
	return false
}

func (w *watcher) index(id string) {
	data, err := w.store.Read(storage.FileName(id))
	if err != nil {
		w.logger.Warn("watcher: read failed", slog.String("id", id), slog.String("error", err.Error()))
		return
	}
	prev, _ := w.db.GetChecksum(id)
	if prev == checksum.Sum(data) {
		return // written by the service, already indexed
	}
	if err := IndexFile(w.db, id, data, time.Now()); err != nil {
		w.logger.Warn("watcher: index failed", slog.String("id", id), slog.String("error", err.Error()))
		return
	}
	kind := EventCreated
	if prev != "" {
		kind = EventUpdated
	}
	w.logger.Debug("watcher: indexed", slog.String("id", id), slog.String("op", kind))
	w.notify(kind, id)
}

func (w *watcher) remove(id string) {
	if prev, _ := w.db.GetChecksum(id); prev == "" {
		return
	}
	if err := w.db.DeleteFlow(id); err != nil {
		w.logger.Warn("watcher: delete failed", slog.String("id", id), slog.String("error", err.Error()))
		return
	}
	w.logger.Debug("watcher: deleted", slog.String("id", id))
	w.notify(EventDeleted, id)
}
