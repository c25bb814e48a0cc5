package store

import (
	"context"
	"sort"
	"sync"
)

// InMemoryStore is a trivial in-process ResultStore guarded by an RWMutex.
// Data is copied on insert and retrieval so callers cannot mutate stored
// buffers. There is no eviction; later inserts for a key overwrite earlier
// ones.
type InMemoryStore struct {
	mu      sync.RWMutex
	results map[string][]byte
}

// NewInMemoryStore returns an empty in-memory result store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{results: make(map[string][]byte)}
}

// Find returns a copy of the bytes stored under key.
func (s *InMemoryStore) Find(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.results[key]
	if !ok {
		return nil, false, nil
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return cp, true, nil
}

// Insert stores (or overwrites) the bytes for key. The input slice is copied.
func (s *InMemoryStore) Insert(_ context.Context, key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	s.results[key] = cp
	return nil
}

// Delete removes key if present.
func (s *InMemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.results, key)
	return nil
}

// Keys returns the stored keys in sorted order.
func (s *InMemoryStore) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.results))
	for k := range s.results {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
