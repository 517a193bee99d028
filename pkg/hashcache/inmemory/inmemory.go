package inmemory

import (
	"context"
	"sync"
)

// Store is an in-memory hash store, useful for tests and single-process
// setups.
type Store struct {
	mu      sync.RWMutex
	digests map[string]string
}

// New creates an empty in-memory hash store.
func New() *Store {
	return &Store{digests: make(map[string]string)}
}

// Get returns the stored digest, or "" when none is stored.
func (s *Store) Get(ctx context.Context, entityID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.digests[entityID], nil
}

// Put stores the digest, overwriting any previous one.
func (s *Store) Put(ctx context.Context, entityID, digest string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.digests[entityID] = digest
	return nil
}
