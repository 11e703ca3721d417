package usage

import (
	"context"
	"sync"
	"time"

	"tutorgate/internal/core"
)

// MemoryStore keeps usage entries in process memory. It doubles as a Reader,
// which makes it the backend of choice for tests and local development.
type MemoryStore struct {
	mu      sync.Mutex
	entries []*Entry
}

// NewMemoryStore creates an empty in-memory usage store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) WriteBatch(_ context.Context, entries []*Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		copied := *e
		s.entries = append(s.entries, &copied)
	}
	return nil
}

func (s *MemoryStore) Flush(_ context.Context) error {
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}

// Entries returns a snapshot of everything written so far.
func (s *MemoryStore) Entries() []*Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Entry, len(s.entries))
	for i, e := range s.entries {
		copied := *e
		out[i] = &copied
	}
	return out
}

// Stats aggregates entries for one user over the trailing lookbackDays days.
func (s *MemoryStore) Stats(_ context.Context, userID string, lookbackDays int) (*core.UsageStats, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -lookbackDays)

	s.mu.Lock()
	defer s.mu.Unlock()

	stats := &core.UsageStats{}
	var cacheHits int64
	for _, e := range s.entries {
		if e.UserID != userID || e.Timestamp.Before(cutoff) {
			continue
		}
		stats.TotalRequests++
		stats.TotalTokens += int64(e.TotalTokens)
		stats.TotalCostCents += e.CostCents
		if e.CacheHit {
			cacheHits++
		}
	}
	if stats.TotalRequests > 0 {
		stats.CacheHitRate = float64(cacheHits) / float64(stats.TotalRequests)
		stats.AverageTokensPerRequest = float64(stats.TotalTokens) / float64(stats.TotalRequests)
	}
	return stats, nil
}
