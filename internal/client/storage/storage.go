// Package storage provides the durable key-value stores the client keeps its
// session, offline queue and cached collections in.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Store is a durable key-value store with JSON-encoded values.
//
// Get decodes the value stored under key into dest. A missing key reports
// found=false and leaves dest untouched, so callers keep their default.
type Store interface {
	Get(key string, dest any) (found bool, err error)
	Set(key string, value any) error
	Remove(key string) error
}

var (
	_ Store = (*FileStore)(nil)
	_ Store = (*MemoryStore)(nil)
)

// FileStore keeps every key in a single JSON document on disk. The document
// is loaded once and rewritten in full after each Set or Remove.
type FileStore struct {
	path    string
	mu      sync.Mutex
	entries map[string]json.RawMessage
}

// OpenFile loads the store at path, starting empty when the file does not exist.
func OpenFile(path string) (*FileStore, error) {
	fs := &FileStore{path: path, entries: make(map[string]json.RawMessage)}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fs, nil
		}
		return nil, fmt.Errorf("read store: %w", err)
	}
	if len(data) == 0 {
		return fs, nil
	}
	if err := json.Unmarshal(data, &fs.entries); err != nil {
		return nil, fmt.Errorf("decode store %s: %w", path, err)
	}
	return fs, nil
}

func (fs *FileStore) Get(key string, dest any) (bool, error) {
	fs.mu.Lock()
	raw, ok := fs.entries[key]
	fs.mu.Unlock()
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, fmt.Errorf("decode %q: %w", key, err)
	}
	return true, nil
}

func (fs *FileStore) Set(key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %q: %w", key, err)
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.entries[key] = raw
	return fs.save()
}

func (fs *FileStore) Remove(key string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if _, ok := fs.entries[key]; !ok {
		return nil
	}
	delete(fs.entries, key)
	return fs.save()
}

// save writes the document to a temp file and renames it over the old one.
// Callers hold fs.mu.
func (fs *FileStore) save() error {
	data, err := json.Marshal(fs.entries)
	if err != nil {
		return fmt.Errorf("encode store: %w", err)
	}
	dir := filepath.Dir(fs.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create store dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".store-*.json")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close store: %w", err)
	}
	if err := os.Rename(tmp.Name(), fs.path); err != nil {
		return fmt.Errorf("replace store: %w", err)
	}
	return nil
}

// MemoryStore is a Store that lives only as long as the process.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]json.RawMessage
}

// NewMemory returns an empty MemoryStore.
func NewMemory() *MemoryStore {
	return &MemoryStore{entries: make(map[string]json.RawMessage)}
}

func (ms *MemoryStore) Get(key string, dest any) (bool, error) {
	ms.mu.Lock()
	raw, ok := ms.entries[key]
	ms.mu.Unlock()
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, fmt.Errorf("decode %q: %w", key, err)
	}
	return true, nil
}

func (ms *MemoryStore) Set(key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %q: %w", key, err)
	}
	ms.mu.Lock()
	ms.entries[key] = raw
	ms.mu.Unlock()
	return nil
}

func (ms *MemoryStore) Remove(key string) error {
	ms.mu.Lock()
	delete(ms.entries, key)
	ms.mu.Unlock()
	return nil
}

// Has reports whether key is present.
func (ms *MemoryStore) Has(key string) bool {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	_, ok := ms.entries[key]
	return ok
}
