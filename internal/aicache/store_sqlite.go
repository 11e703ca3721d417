package aicache

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"tutorgate/internal/core"
)

// SQLiteStore implements Store for SQLite databases.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite cache store.
// It creates the cache table if it doesn't exist.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS ai_cache (
			fingerprint TEXT PRIMARY KEY,
			feature_type TEXT NOT NULL,
			response JSON NOT NULL,
			created_at DATETIME NOT NULL,
			expires_at DATETIME NOT NULL
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create ai_cache table: %w", err)
	}

	// Index for feature-scoped invalidation sweeps
	if _, err := db.Exec("CREATE INDEX IF NOT EXISTS idx_ai_cache_feature ON ai_cache(feature_type)"); err != nil {
		return nil, fmt.Errorf("failed to create ai_cache index: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Get retrieves an entry by fingerprint. Returns nil, nil when absent.
func (s *SQLiteStore) Get(ctx context.Context, fingerprint string) (*Entry, error) {
	var (
		entry        Entry
		responseJSON []byte
		createdAt    string
		expiresAt    string
	)

	err := s.db.QueryRowContext(ctx,
		"SELECT fingerprint, feature_type, response, created_at, expires_at FROM ai_cache WHERE fingerprint = ?",
		fingerprint,
	).Scan(&entry.Fingerprint, &entry.FeatureType, &responseJSON, &createdAt, &expiresAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query cache entry: %w", err)
	}

	if err := json.Unmarshal(responseJSON, &entry.Response); err != nil {
		return nil, fmt.Errorf("failed to parse cached response: %w", err)
	}
	if entry.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if entry.ExpiresAt, err = time.Parse(time.RFC3339Nano, expiresAt); err != nil {
		return nil, fmt.Errorf("failed to parse expires_at: %w", err)
	}

	return &entry, nil
}

// Put upserts an entry.
func (s *SQLiteStore) Put(ctx context.Context, entry *Entry) error {
	responseJSON, err := json.Marshal(entry.Response)
	if err != nil {
		return fmt.Errorf("failed to marshal response: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO ai_cache (fingerprint, feature_type, response, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(fingerprint) DO UPDATE SET
			feature_type = excluded.feature_type,
			response = excluded.response,
			created_at = excluded.created_at,
			expires_at = excluded.expires_at`,
		entry.Fingerprint,
		string(entry.FeatureType),
		string(responseJSON),
		entry.CreatedAt.UTC().Format(time.RFC3339Nano),
		entry.ExpiresAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert cache entry: %w", err)
	}
	return nil
}

// InvalidateFeature deletes every entry for a feature type. Used when a
// feature's prompt template changes and stale completions must not replay.
func (s *SQLiteStore) InvalidateFeature(ctx context.Context, feature core.FeatureType) (int64, error) {
	result, err := s.db.ExecContext(ctx, "DELETE FROM ai_cache WHERE feature_type = ?", string(feature))
	if err != nil {
		return 0, fmt.Errorf("failed to invalidate feature cache: %w", err)
	}
	return result.RowsAffected()
}

// Close is a no-op; the DB connection is managed by the storage layer.
func (s *SQLiteStore) Close() error {
	return nil
}
