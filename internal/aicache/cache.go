// Package aicache provides the persistent completion response cache, keyed
// by a deterministic fingerprint of the normalized request. Backends exist
// for memory, SQLite, PostgreSQL and Redis behind one Store interface.
package aicache

import (
	"context"
	"time"

	"tutorgate/internal/core"
)

// DefaultTTL is used when neither the request nor the feature table
// provides a TTL.
const DefaultTTL = time.Hour

// Entry is one cached completion. Entries are created on a cache miss after
// a successful provider call and are read-only afterward; expiry is checked
// lazily at lookup time rather than swept by a background job.
type Entry struct {
	Fingerprint string                  `json:"fingerprint"`
	FeatureType core.FeatureType        `json:"feature_type"`
	Response    core.CompletionResponse `json:"response"`
	CreatedAt   time.Time               `json:"created_at"`
	ExpiresAt   time.Time               `json:"expires_at"`
}

// Store defines the persistence interface for cache entries.
// Implementations must be safe for concurrent use.
type Store interface {
	// Get retrieves an entry by fingerprint.
	// Returns nil, nil if no entry exists (expiry is the Cache's concern).
	Get(ctx context.Context, fingerprint string) (*Entry, error)

	// Put upserts an entry.
	Put(ctx context.Context, entry *Entry) error

	// InvalidateFeature deletes every entry for a feature type and
	// reports how many were removed.
	InvalidateFeature(ctx context.Context, feature core.FeatureType) (int64, error)

	// Close releases any resources held by the store.
	Close() error
}

// Cache applies TTL policy and hit semantics on top of a Store.
type Cache struct {
	store Store
	ttls  map[core.FeatureType]time.Duration
	now   func() time.Time
}

// New creates a Cache over the given store. ttls holds the per-feature
// default TTLs applied when a request does not carry its own.
func New(store Store, ttls map[core.FeatureType]time.Duration) *Cache {
	return &Cache{
		store: store,
		ttls:  ttls,
		now:   time.Now,
	}
}

// Lookup returns the cached response for the fingerprint, or nil on a miss.
// An entry whose expiry has passed is a miss, not an error, even though the
// row may still physically exist. On a hit the returned response is a copy
// of the stored one with CacheHit forced true and ExecutionTimeMs reflecting
// the cache read latency, not the original generation latency.
func (c *Cache) Lookup(ctx context.Context, fingerprint string) (*core.CompletionResponse, error) {
	start := c.now()

	entry, err := c.store.Get(ctx, fingerprint)
	if err != nil {
		return nil, &core.CacheError{Op: "lookup", Err: err}
	}
	if entry == nil {
		return nil, nil
	}
	if !c.now().Before(entry.ExpiresAt) {
		return nil, nil
	}

	resp := entry.Response
	resp.CacheHit = true
	resp.ExecutionTimeMs = time.Since(start).Milliseconds()
	return &resp, nil
}

// Store writes a response under the fingerprint. CacheHit is forced false at
// storage time so a later hit replays the response exactly as generated.
// TTL resolution: explicit ttlSeconds > feature default > DefaultTTL.
func (c *Cache) Store(ctx context.Context, fingerprint string, feature core.FeatureType, resp *core.CompletionResponse, ttlSeconds *int) error {
	ttl := c.resolveTTL(feature, ttlSeconds)
	now := c.now()

	stored := *resp
	stored.CacheHit = false

	entry := &Entry{
		Fingerprint: fingerprint,
		FeatureType: feature,
		Response:    stored,
		CreatedAt:   now,
		ExpiresAt:   now.Add(ttl),
	}
	if err := c.store.Put(ctx, entry); err != nil {
		return &core.CacheError{Op: "store", Err: err}
	}
	return nil
}

// InvalidateFeature drops every cached completion for a feature. Called
// when a feature's prompt template changes and stale completions must not
// replay. Returns the number of entries removed.
func (c *Cache) InvalidateFeature(ctx context.Context, feature core.FeatureType) (int64, error) {
	removed, err := c.store.InvalidateFeature(ctx, feature)
	if err != nil {
		return 0, &core.CacheError{Op: "invalidate", Err: err}
	}
	return removed, nil
}

// TTLFor returns the effective TTL for a feature given an optional override.
func (c *Cache) TTLFor(feature core.FeatureType, ttlSeconds *int) time.Duration {
	return c.resolveTTL(feature, ttlSeconds)
}

// Close closes the underlying store.
func (c *Cache) Close() error {
	return c.store.Close()
}

func (c *Cache) resolveTTL(feature core.FeatureType, ttlSeconds *int) time.Duration {
	if ttlSeconds != nil && *ttlSeconds > 0 {
		return time.Duration(*ttlSeconds) * time.Second
	}
	if ttl, ok := c.ttls[feature]; ok && ttl > 0 {
		return ttl
	}
	return DefaultTTL
}
