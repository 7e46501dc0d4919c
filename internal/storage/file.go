package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// FileBackend stores each collection as <dir>/<key>.json
type FileBackend struct {
	fs  afero.Fs
	dir string
}

// NewFileBackend creates a backend rooted at dir on fs
func NewFileBackend(fs afero.Fs, dir string) *FileBackend {
	return &FileBackend{fs: fs, dir: dir}
}

func (f *FileBackend) path(key string) string {
	return filepath.Join(f.dir, key+".json")
}

func (f *FileBackend) Load(ctx context.Context, key string) ([]byte, error) {
	data, err := afero.ReadFile(f.fs, f.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable("read", key, err)
	}
	return data, nil
}

// Save writes to a temporary file and renames it over the target
func (f *FileBackend) Save(ctx context.Context, key string, data []byte) error {
	if err := f.fs.MkdirAll(f.dir, 0o755); err != nil {
		return unavailable("create directory for", key, err)
	}

	tmp := f.path(key) + ".tmp"
	if err := afero.WriteFile(f.fs, tmp, data, 0o644); err != nil {
		return unavailable("write", key, err)
	}
	if err := f.fs.Rename(tmp, f.path(key)); err != nil {
		_ = f.fs.Remove(tmp)
		return unavailable("rename", key, err)
	}
	return nil
}

func (f *FileBackend) Name() string { return "file" }

func (f *FileBackend) Close() error { return nil }
