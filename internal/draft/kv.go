package draft

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// MemoryKV is an in-memory KV for tests.
type MemoryKV struct {
	mu    sync.RWMutex
	items map[string]string

	// SetErr and GetErr force failures in tests.
	SetErr error
	GetErr error
}

// NewMemoryKV constructs an empty in-memory backend.
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{items: make(map[string]string)}
}

// Get returns the stored value for key.
func (m *MemoryKV) Get(key string) (string, bool, error) {
	if m.GetErr != nil {
		return "", false, m.GetErr
	}
	m.mu.RLock()
	value, ok := m.items[key]
	m.mu.RUnlock()
	return value, ok, nil
}

// Set stores the value under key.
func (m *MemoryKV) Set(key, value string) error {
	if m.SetErr != nil {
		return m.SetErr
	}
	m.mu.Lock()
	m.items[key] = value
	m.mu.Unlock()
	return nil
}

// Delete removes the key.
func (m *MemoryKV) Delete(key string) error {
	m.mu.Lock()
	delete(m.items, key)
	m.mu.Unlock()
	return nil
}

// Len reports the number of stored entries. Useful for tests.
func (m *MemoryKV) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}

// FileKV persists a single slot to a file on disk so the draft survives the
// process exiting for the external payment redirect.
type FileKV struct {
	path string
	mu   sync.Mutex
}

// NewFileKV stores values in files under the directory of the provided path;
// the slot key is ignored and the configured path used directly, since the
// store only ever holds one slot.
func NewFileKV(path string) *FileKV {
	return &FileKV{path: path}
}

// Get reads the slot file.
func (f *FileKV) Get(string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return string(data), true, nil
}

// Set writes the slot file, creating parent directories as needed.
func (f *FileKV) Set(_, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(f.path, []byte(value), 0o600)
}

// Delete removes the slot file if present.
func (f *FileKV) Delete(string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	err := os.Remove(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}
