package mealplan

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FilePersister keeps each key in its own JSON file under a directory.
type FilePersister struct {
	basePath string
}

// NewFilePersister creates a FilePersister and ensures the base directory exists.
func NewFilePersister(basePath string) (*FilePersister, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory %s: %w", basePath, err)
	}
	return &FilePersister{basePath: basePath}, nil
}

func (p *FilePersister) path(key string) string {
	name := strings.NewReplacer("/", "_", "\\", "_", ":", "-").Replace(key)
	return filepath.Join(p.basePath, name+".json")
}

// Load reads the file stored for key.
func (p *FilePersister) Load(_ context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(p.path(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil // Nothing stored yet
		}
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return data, nil
}

// Save replaces the file stored for key. The write goes to a temp file
// first so a crash never leaves a half-written plan behind.
func (p *FilePersister) Save(_ context.Context, key string, data []byte) error {
	target := p.path(key)

	tmp, err := os.CreateTemp(p.basePath, filepath.Base(target)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return fmt.Errorf("failed to replace %s: %w", key, err)
	}
	return nil
}
