// Package settings persists the companion settings blob, either as JSON
// files in a directory or in Redis.
package settings

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"voice-companion/internal/application"
)

// FileRepository stores each key as <dir>/<key>.json. Writes go through a
// temp file and rename so a crash never leaves a half-written blob.
type FileRepository struct {
	dir string
	mu  sync.Mutex
}

func NewFileRepository(dir string) *FileRepository {
	return &FileRepository{dir: dir}
}

func (r *FileRepository) Get(_ context.Context, key string) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := os.ReadFile(r.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, application.ErrSettingsNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading settings file: %w", err)
	}
	return data, nil
}

func (r *FileRepository) Put(_ context.Context, key string, data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := os.MkdirAll(r.dir, 0755); err != nil {
		return fmt.Errorf("creating settings dir: %w", err)
	}

	tmp, err := os.CreateTemp(r.dir, key+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing settings: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), r.path(key)); err != nil {
		return fmt.Errorf("replacing settings file: %w", err)
	}
	return nil
}

func (r *FileRepository) path(key string) string {
	return filepath.Join(r.dir, filepath.Base(key)+".json")
}
