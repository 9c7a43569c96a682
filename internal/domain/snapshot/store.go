package snapshot

import (
	"context"
	"sync"
)

// Store holds at most one entry per key. Replacing an entry replaces the
// whole family at once.
type Store interface {
	Get(ctx context.Context, key Key) (*Entry, bool, error)
	Put(ctx context.Context, key Key, e *Entry) error
	Delete(ctx context.Context, key Key) error
	// Name labels the backend in metrics.
	Name() string
}

type memoryStore struct {
	mu      sync.RWMutex
	entries map[Key]*Entry
}

// NewMemoryStore returns a process-local store.
func NewMemoryStore() Store {
	return &memoryStore{entries: make(map[Key]*Entry)}
}

func (s *memoryStore) Name() string { return "memory" }

func (s *memoryStore) Get(_ context.Context, key Key) (*Entry, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[key]
	return e, ok, nil
}

func (s *memoryStore) Put(_ context.Context, key Key, e *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = e
	return nil
}

func (s *memoryStore) Delete(_ context.Context, key Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}
