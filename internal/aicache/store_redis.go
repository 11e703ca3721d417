package aicache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"tutorgate/internal/core"
)

const (
	// redisKeyPrefix namespaces cache entries in a shared Redis instance.
	redisKeyPrefix = "tutorgate:aicache:"
)

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	// URL is the Redis connection URL (e.g., "redis://localhost:6379" or "redis://:password@host:6379/0")
	URL string
}

// RedisStore implements Store using Redis for distributed caching.
// This is suitable for multi-instance deployments behind a load balancer.
// Redis expires keys natively, so expired entries vanish physically as well
// as logically; the Cache's lazy expiry check still applies for the window
// between logical and physical expiry.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a new Redis-backed cache store.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	slog.Info("redis cache connected", "prefix", redisKeyPrefix)

	return &RedisStore{client: client}, nil
}

// Get retrieves an entry by fingerprint. Returns nil, nil when absent.
func (s *RedisStore) Get(ctx context.Context, fingerprint string) (*Entry, error) {
	data, err := s.client.Get(ctx, redisKeyPrefix+fingerprint).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil // No entry, not an error
		}
		return nil, fmt.Errorf("failed to get cache entry from redis: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("failed to parse cache entry from redis: %w", err)
	}
	return &entry, nil
}

// Put upserts an entry, letting Redis expire the key at ExpiresAt.
func (s *RedisStore) Put(ctx context.Context, entry *Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}

	ttl := time.Until(entry.ExpiresAt)
	if ttl <= 0 {
		return nil // already expired, nothing to store
	}

	if err := s.client.Set(ctx, redisKeyPrefix+entry.Fingerprint, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set cache entry in redis: %w", err)
	}
	return nil
}

// InvalidateFeature scans the cache key prefix and deletes every entry for
// the feature. A scan keeps Put on the fast path; invalidation is rare
// enough that walking the namespace is acceptable.
func (s *RedisStore) InvalidateFeature(ctx context.Context, feature core.FeatureType) (int64, error) {
	var removed int64
	iter := s.client.Scan(ctx, 0, redisKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()

		data, err := s.client.Get(ctx, key).Bytes()
		if err == redis.Nil {
			continue // expired between scan and read
		}
		if err != nil {
			return removed, fmt.Errorf("failed to read cache entry during invalidation: %w", err)
		}
		var entry Entry
		if err := json.Unmarshal(data, &entry); err != nil {
			return removed, fmt.Errorf("failed to parse cache entry during invalidation: %w", err)
		}
		if entry.FeatureType != feature {
			continue
		}

		deleted, err := s.client.Del(ctx, key).Result()
		if err != nil {
			return removed, fmt.Errorf("failed to delete cache entry: %w", err)
		}
		removed += deleted
	}
	if err := iter.Err(); err != nil {
		return removed, fmt.Errorf("failed to scan cache keys: %w", err)
	}
	return removed, nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}
