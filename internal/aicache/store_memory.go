package aicache

import (
	"context"
	"sync"

	"tutorgate/internal/core"
)

// MemoryStore implements Store with an in-process map.
// Suitable for tests and single-instance deployments without persistence.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*Entry
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*Entry),
	}
}

// Get retrieves an entry by fingerprint.
func (s *MemoryStore) Get(_ context.Context, fingerprint string) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[fingerprint]
	if !ok {
		return nil, nil
	}
	copied := *entry
	return &copied, nil
}

// Put upserts an entry.
func (s *MemoryStore) Put(_ context.Context, entry *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *entry
	s.entries[entry.Fingerprint] = &copied
	return nil
}

// InvalidateFeature deletes every entry for a feature type.
func (s *MemoryStore) InvalidateFeature(_ context.Context, feature core.FeatureType) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int64
	for fingerprint, entry := range s.entries {
		if entry.FeatureType == feature {
			delete(s.entries, fingerprint)
			removed++
		}
	}
	return removed, nil
}

// Len returns the number of stored entries, expired ones included.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Close is a no-op for the memory store.
func (s *MemoryStore) Close() error {
	return nil
}
