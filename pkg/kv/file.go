package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// Compile-time interface check.
var _ Store = (*FileStore)(nil)

// FileStore persists key/value pairs as a single JSON object in a local
// file. Writes are buffered in memory until [FileStore.Persist], which
// replaces the file atomically via a rename. Suitable for desktop save
// data and for development.
type FileStore struct {
	mu     sync.Mutex
	path   string
	values map[string]string
	loaded bool
}

// NewFileStore creates a FileStore backed by the file at path. The file is
// created on first Persist; a missing file reads as an empty store.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Get implements [Store.Get].
func (s *FileStore) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(); err != nil {
		return "", err
	}
	return s.values[key], nil
}

// Set implements [Store.Set]. The write is buffered until Persist.
func (s *FileStore) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(); err != nil {
		return err
	}
	s.values[key] = value
	return nil
}

// Delete implements [Store.Delete]. The removal is buffered until Persist.
func (s *FileStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(); err != nil {
		return err
	}
	delete(s.values, key)
	return nil
}

// Persist implements [Store.Persist]. The full map is written to a
// temporary file in the same directory and renamed over the target, so a
// crash mid-write never leaves a truncated save file behind.
func (s *FileStore) Persist(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(s.values, "", "  ")
	if err != nil {
		return fmt.Errorf("kv: marshal store: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("kv: create save directory %q: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("kv: create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("kv: write %q: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("kv: close %q: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("kv: rename %q: %w", s.path, err)
	}
	return nil
}

// ensureLoaded reads the backing file once. A missing file yields an empty
// map; a corrupt file is treated the same, with the parse error surfaced to
// the caller so it can be logged.
func (s *FileStore) ensureLoaded() error {
	if s.loaded {
		return nil
	}
	s.values = make(map[string]string)
	s.loaded = true

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("kv: read %q: %w", s.path, err)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, &s.values); err != nil {
		s.values = make(map[string]string)
		return fmt.Errorf("kv: parse %q: %w", s.path, err)
	}
	return nil
}
