package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/starford/nodeflow/internal/apperr"
	"github.com/starford/nodeflow/internal/checksum"
	"github.com/starford/nodeflow/internal/models"
)

const tmpPrefix = ".nodeflow-tmp-"

// FS stores flow documents in one directory. All file access goes through
// an os.Root, so no name can reach outside the directory.
type FS struct {
	dir  string
	root *os.Root
}

var _ Provider = (*FS)(nil)

// NewFS opens an existing directory.
func NewFS(dir string) (*FS, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}
	if info, err := os.Stat(abs); err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	} else if !info.IsDir() {
		return nil, fmt.Errorf("storage: %s is not a directory", abs)
	}
	root, err := os.OpenRoot(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}
	return &FS{dir: abs, root: root}, nil
}

func (f *FS) Root() string { return f.dir }

// Close releases the directory handle.
func (f *FS) Close() error { return f.root.Close() }

// checkName accepts plain file names only.
func checkName(name string) error {
	switch {
	case name == "", name == ".", name == "..":
	case strings.ContainsAny(name, `/\`), filepath.IsAbs(name):
	default:
		return nil
	}
	return fmt.Errorf("storage: bad file name %q: %w", name, apperr.ErrInvalid)
}

// List describes the flow documents in the directory, sorted by file name.
func (f *FS) List() ([]models.FlowFile, error) {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, fmt.Errorf("storage: list: %w", err)
	}
	files := make([]models.FlowFile, 0, len(entries))
	for _, e := range entries {
		id, ok := IDFromPath(e.Name())
		if !ok || !e.Type().IsRegular() {
			continue
		}
		ff, err := f.describe(id, e.Name())
		if errors.Is(err, os.ErrNotExist) {
			continue // removed while listing
		}
		if err != nil {
			return nil, err
		}
		files = append(files, ff)
	}
	return files, nil
}

func (f *FS) describe(id, name string) (models.FlowFile, error) {
	info, err := f.root.Stat(name)
	if err != nil {
		return models.FlowFile{}, fmt.Errorf("storage: stat %s: %w", name, err)
	}
	data, err := f.root.ReadFile(name)
	if err != nil {
		return models.FlowFile{}, fmt.Errorf("storage: read %s: %w", name, err)
	}
	return models.FlowFile{
		ID:        id,
		Path:      name,
		Checksum:  checksum.Sum(data),
		Size:      info.Size(),
		UpdatedAt: info.ModTime(),
	}, nil
}

func (f *FS) Read(name string) ([]byte, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	data, err := f.root.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", name, err)
	}
	return data, nil
}

// Write replaces name with content through a synced temp file and a
// rename, so readers never see a partial document.
func (f *FS) Write(name string, content []byte) error {
	if err := checkName(name); err != nil {
		return err
	}
	tmp := tmpPrefix + uuid.NewString()
	out, err := f.root.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("storage: write %s: %w", name, err)
	}
	_, err = out.Write(content)
	if err == nil {
		err = out.Sync()
	}
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = f.root.Rename(tmp, name)
	}
	if err != nil {
		_ = f.root.Remove(tmp)
		return fmt.Errorf("storage: write %s: %w", name, err)
	}
	return nil
}

func (f *FS) Delete(name string) error {
	if err := checkName(name); err != nil {
		return err
	}
	if err := f.root.Remove(name); err != nil {
		return fmt.Errorf("storage: delete %s: %w", name, err)
	}
	return nil
}
