package registry

import (
	"context"
	"sync"
)

// MemoryStore keeps results in a map. Entries are lost on restart.
type MemoryStore struct {
	mu      sync.RWMutex
	results map[string]Result
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{results: make(map[string]Result)}
}

// Put implements Store.
func (s *MemoryStore) Put(_ context.Context, res Result) error {
	s.mu.Lock()
	s.results[res.ID] = res
	s.mu.Unlock()
	return nil
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, id string) (Result, error) {
	s.mu.RLock()
	res, ok := s.results[id]
	s.mu.RUnlock()
	if !ok {
		return Result{}, ErrNotFound
	}
	return res, nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.results[id]; !ok {
		return false, nil
	}
	delete(s.results, id)
	return true, nil
}

// Len implements Store.
func (s *MemoryStore) Len(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.results), nil
}

// Close implements Store.
func (s *MemoryStore) Close() error { return nil }
