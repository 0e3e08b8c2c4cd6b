// Package storage keeps flow documents as YAML files in a flat directory.
package storage

import (
	"path/filepath"
	"strings"

	"github.com/starford/nodeflow/internal/models"
)

// Ext is the extension of flow documents.
const Ext = ".yaml"

// Provider is the interface for flow file operations. Names are relative
// to the flows directory.
type Provider interface {
	// List returns metadata for every flow document in the directory.
	List() ([]models.FlowFile, error)
	// Read returns the raw bytes of the named file.
	Read(name string) ([]byte, error)
	// Write atomically writes content to the named file.
	Write(name string, content []byte) error
	// Delete removes the named file.
	Delete(name string) error
	// Root returns the absolute directory path.
	Root() string
}

// FileName returns the document file name of a flow id.
func FileName(id string) string {
	return id + Ext
}

// IDFromPath returns the flow id of a document path, or false if the path
// is not a flow document.
func IDFromPath(p string) (string, bool) {
	base := filepath.Base(p)
	if !strings.HasSuffix(base, Ext) || strings.HasPrefix(base, ".") {
		return "", false
	}
	return strings.TrimSuffix(base, Ext), true
}
