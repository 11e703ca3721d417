package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"tutorgate/internal/core"
)

// PostgreSQLStore persists quota counters in PostgreSQL using the same
// conflict-clause upsert as the SQLite store.
type PostgreSQLStore struct {
	pool *pgxpool.Pool
}

// NewPostgreSQLStore creates the quota table if needed.
func NewPostgreSQLStore(ctx context.Context, pool *pgxpool.Pool) (*PostgreSQLStore, error) {
	schema := `
	CREATE TABLE IF NOT EXISTS quota_usage (
		user_id TEXT NOT NULL,
		feature TEXT NOT NULL,
		window_start TIMESTAMPTZ NOT NULL,
		request_count BIGINT NOT NULL DEFAULT 0,
		token_count BIGINT NOT NULL DEFAULT 0,
		PRIMARY KEY (user_id, feature, window_start)
	);`
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("failed to create quota_usage table: %w", err)
	}
	return &PostgreSQLStore{pool: pool}, nil
}

func (s *PostgreSQLStore) Get(ctx context.Context, userID string, feature core.FeatureType, windowStart time.Time) (*Record, error) {
	query := `
	SELECT request_count, token_count FROM quota_usage
	WHERE user_id = $1 AND feature = $2 AND window_start = $3`

	record := &Record{
		UserID:      userID,
		Feature:     feature,
		WindowStart: windowStart,
	}
	err := s.pool.QueryRow(ctx, query, userID, string(feature), windowStart).
		Scan(&record.RequestCount, &record.TokenCount)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read quota record: %w", err)
	}
	return record, nil
}

func (s *PostgreSQLStore) Increment(ctx context.Context, userID string, feature core.FeatureType, windowStart time.Time, requests, tokens int64) error {
	query := `
	INSERT INTO quota_usage (user_id, feature, window_start, request_count, token_count)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (user_id, feature, window_start) DO UPDATE SET
		request_count = quota_usage.request_count + EXCLUDED.request_count,
		token_count = quota_usage.token_count + EXCLUDED.token_count`

	if _, err := s.pool.Exec(ctx, query, userID, string(feature), windowStart, requests, tokens); err != nil {
		return fmt.Errorf("failed to increment quota record: %w", err)
	}
	return nil
}

// Close is a no-op: the pool is owned by the shared storage layer.
func (s *PostgreSQLStore) Close() error {
	return nil
}
