package quota

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"tutorgate/internal/core"
)

// SQLiteStore persists quota counters in SQLite. Increment relies on the
// conflict clause so concurrent callers never lose updates.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates the quota table if needed.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	schema := `
	CREATE TABLE IF NOT EXISTS quota_usage (
		user_id TEXT NOT NULL,
		feature TEXT NOT NULL,
		window_start TEXT NOT NULL,
		request_count INTEGER NOT NULL DEFAULT 0,
		token_count INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (user_id, feature, window_start)
	);`
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to create quota_usage table: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Get(ctx context.Context, userID string, feature core.FeatureType, windowStart time.Time) (*Record, error) {
	query := `
	SELECT request_count, token_count FROM quota_usage
	WHERE user_id = ? AND feature = ? AND window_start = ?`

	record := &Record{
		UserID:      userID,
		Feature:     feature,
		WindowStart: windowStart,
	}
	err := s.db.QueryRowContext(ctx, query, userID, string(feature), windowStart.Format(time.RFC3339)).
		Scan(&record.RequestCount, &record.TokenCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read quota record: %w", err)
	}
	return record, nil
}

func (s *SQLiteStore) Increment(ctx context.Context, userID string, feature core.FeatureType, windowStart time.Time, requests, tokens int64) error {
	query := `
	INSERT INTO quota_usage (user_id, feature, window_start, request_count, token_count)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT (user_id, feature, window_start) DO UPDATE SET
		request_count = request_count + excluded.request_count,
		token_count = token_count + excluded.token_count`

	if _, err := s.db.ExecContext(ctx, query, userID, string(feature), windowStart.Format(time.RFC3339), requests, tokens); err != nil {
		return fmt.Errorf("failed to increment quota record: %w", err)
	}
	return nil
}

// Close is a no-op: the *sql.DB is owned by the shared storage layer.
func (s *SQLiteStore) Close() error {
	return nil
}
