package quota

import (
	"context"
	"sync"
	"time"

	"tutorgate/internal/core"
)

type memoryKey struct {
	userID      string
	feature     core.FeatureType
	windowStart int64
}

// MemoryStore is an in-process quota store for tests and single-instance
// deployments. All operations run under one mutex, which makes Increment
// trivially atomic.
type MemoryStore struct {
	mu      sync.Mutex
	records map[memoryKey]*Record
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[memoryKey]*Record)}
}

func (s *MemoryStore) Get(_ context.Context, userID string, feature core.FeatureType, windowStart time.Time) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[memoryKey{userID, feature, windowStart.Unix()}]
	if !ok {
		return nil, nil
	}
	copied := *record
	return &copied, nil
}

func (s *MemoryStore) Increment(_ context.Context, userID string, feature core.FeatureType, windowStart time.Time, requests, tokens int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := memoryKey{userID, feature, windowStart.Unix()}
	record, ok := s.records[key]
	if !ok {
		record = &Record{
			UserID:      userID,
			Feature:     feature,
			WindowStart: windowStart,
		}
		s.records[key] = record
	}
	record.RequestCount += requests
	record.TokenCount += tokens
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}
