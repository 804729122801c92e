package kv

import (
	"context"
	"maps"
	"sync"
)

// Compile-time assertion that MemStore satisfies the Store interface.
var _ Store = (*MemStore)(nil)

// MemStore is a thread-safe, in-memory implementation of [Store].
// It is suitable for tests and for running without save data.
// Persist is a no-op; values live only as long as the process.
type MemStore struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemStore returns an initialised [MemStore].
func NewMemStore() *MemStore {
	return &MemStore{values: make(map[string]string)}
}

// Get implements [Store.Get].
func (s *MemStore) Get(_ context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.values[key], nil
}

// Set implements [Store.Set].
func (s *MemStore) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.values == nil {
		s.values = make(map[string]string)
	}
	s.values[key] = value
	return nil
}

// Delete implements [Store.Delete].
func (s *MemStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	return nil
}

// Persist implements [Store.Persist]. It is a no-op for the memory store.
func (s *MemStore) Persist(context.Context) error {
	return nil
}

// Snapshot returns a copy of the current key/value map. Intended for tests
// and diagnostics.
func (s *MemStore) Snapshot() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.values))
	maps.Copy(out, s.values)
	return out
}
