package aicache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"tutorgate/internal/core"
)

// PostgresStore implements Store for PostgreSQL databases.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL cache store.
// It creates the cache table if it doesn't exist.
func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("connection pool is required")
	}

	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS ai_cache (
			fingerprint TEXT PRIMARY KEY,
			feature_type TEXT NOT NULL,
			response JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			expires_at TIMESTAMPTZ NOT NULL
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create ai_cache table: %w", err)
	}

	_, err = pool.Exec(ctx, "CREATE INDEX IF NOT EXISTS idx_ai_cache_feature ON ai_cache(feature_type)")
	if err != nil {
		return nil, fmt.Errorf("failed to create ai_cache index: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

// Get retrieves an entry by fingerprint. Returns nil, nil when absent.
func (s *PostgresStore) Get(ctx context.Context, fingerprint string) (*Entry, error) {
	var (
		entry        Entry
		responseJSON []byte
	)

	err := s.pool.QueryRow(ctx,
		"SELECT fingerprint, feature_type, response, created_at, expires_at FROM ai_cache WHERE fingerprint = $1",
		fingerprint,
	).Scan(&entry.Fingerprint, &entry.FeatureType, &responseJSON, &entry.CreatedAt, &entry.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query cache entry: %w", err)
	}

	if err := json.Unmarshal(responseJSON, &entry.Response); err != nil {
		return nil, fmt.Errorf("failed to parse cached response: %w", err)
	}
	return &entry, nil
}

// Put upserts an entry.
func (s *PostgresStore) Put(ctx context.Context, entry *Entry) error {
	responseJSON, err := json.Marshal(entry.Response)
	if err != nil {
		return fmt.Errorf("failed to marshal response: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO ai_cache (fingerprint, feature_type, response, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (fingerprint) DO UPDATE SET
			feature_type = EXCLUDED.feature_type,
			response = EXCLUDED.response,
			created_at = EXCLUDED.created_at,
			expires_at = EXCLUDED.expires_at`,
		entry.Fingerprint,
		string(entry.FeatureType),
		responseJSON,
		entry.CreatedAt.UTC(),
		entry.ExpiresAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert cache entry: %w", err)
	}
	return nil
}

// InvalidateFeature deletes every entry for a feature type.
func (s *PostgresStore) InvalidateFeature(ctx context.Context, feature core.FeatureType) (int64, error) {
	tag, err := s.pool.Exec(ctx, "DELETE FROM ai_cache WHERE feature_type = $1", string(feature))
	if err != nil {
		return 0, fmt.Errorf("failed to invalidate feature cache: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Close is a no-op; the pool is managed by the storage layer.
func (s *PostgresStore) Close() error {
	return nil
}
