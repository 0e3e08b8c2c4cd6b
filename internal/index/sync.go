package index

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/starford/nodeflow/internal/checksum"
	"github.com/starford/nodeflow/internal/parser"
	"github.com/starford/nodeflow/internal/storage"
)

// Sync makes the index match the flows directory. Changed documents are
// re-parsed, documents gone from disk are dropped and documents that fail to
// parse are logged and skipped.
func Sync(db FlowIndex, store storage.Provider, logger *slog.Logger) error {
	return syncDir(db, store, logger, nil)
}

func syncDir(db FlowIndex, store storage.Provider, logger *slog.Logger, notify EventCallback) error {
	indexed, err := db.AllChecksums()
	if err != nil {
		return fmt.Errorf("index: sync: %w", err)
	}
	files, err := store.List()
	if err != nil {
		return fmt.Errorf("index: sync: %w", err)
	}
	emit := func(kind, id string) {
		if notify != nil {
			notify(kind, id)
		}
	}

	onDisk := make(map[string]bool, len(files))
	for _, f := range files {
		onDisk[f.ID] = true
		prev, known := indexed[f.ID]
		if known && prev == f.Checksum {
			continue
		}
		data, err := store.Read(f.Path)
		if err != nil {
			logger.Warn("sync: read failed", slog.String("path", f.Path), slog.String("error", err.Error()))
			continue
		}
		if err := IndexFile(db, f.ID, data, f.UpdatedAt); err != nil {
			logger.Warn("sync: skipping unparsable flow", slog.String("path", f.Path), slog.String("error", err.Error()))
			continue
		}
		kind := EventUpdated
		if !known {
			kind = EventCreated
		}
		logger.Debug("sync: indexed", slog.String("id", f.ID), slog.String("op", kind))
		emit(kind, f.ID)
	}

	for id := range indexed {
		if onDisk[id] {
			continue
		}
		if err := db.DeleteFlow(id); err != nil {
			logger.Warn("sync: delete failed", slog.String("id", id), slog.String("error", err.Error()))
			continue
		}
		logger.Debug("sync: removed", slog.String("id", id))
		emit(EventDeleted, id)
	}
	return nil
}

// IndexFile parses a flow document and upserts it under id. The file name
// decides the id; an id inside the document is ignored.
func IndexFile(db FlowIndex, id string, data []byte, updatedAt time.Time) error {
	doc, err := parser.Parse(data)
	if err != nil {
		return err
	}
	return db.UpsertFlow(FlowRow{
		ID:          id,
		Path:        storage.FileName(id),
		Name:        doc.Name,
		Description: doc.Description,
		Checksum:    checksum.Sum(data),
		NodeTypes:   doc.NodeTypes(),
		NodeCount:   len(doc.Nodes),
		UpdatedAt:   updatedAt,
	}, doc.SearchText())
}
