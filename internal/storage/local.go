package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// LocalStorage writes assets under a root directory. Used for development
// and tests when no object store is configured.
type LocalStorage struct {
	Root string
}

// NewLocalStorage constructs a filesystem-backed asset store.
func NewLocalStorage(root string) *LocalStorage {
	return &LocalStorage{Root: root}
}

// Save writes the content under the root directory and returns the file path.
func (s *LocalStorage) Save(ctx context.Context, name string, r io.Reader) (string, error) {
	key := strings.TrimLeft(name, "/")
	if key == "" {
		return "", fmt.Errorf("local storage: empty key")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	path := filepath.Join(s.Root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("local storage mkdir: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("local storage create %s: %w", key, err)
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		return "", fmt.Errorf("local storage write %s: %w", key, err)
	}

	return path, nil
}
