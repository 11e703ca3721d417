package usage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// SQLite has a default limit of 999 bindable parameters per query (SQLITE_MAX_VARIABLE_NUMBER).
// With 12 columns per usage entry, we can safely insert up to 83 entries per batch.
const (
	maxSQLiteParams    = 999
	columnsPerEntry    = 12
	maxEntriesPerBatch = maxSQLiteParams / columnsPerEntry
)

// SQLiteStore implements Store for SQLite databases.
type SQLiteStore struct {
	db            *sql.DB
	retentionDays int
	stopCleanup   chan struct{}
	closeOnce     sync.Once
}

// NewSQLiteStore creates a new SQLite usage store.
// It creates the usage table if it doesn't exist and starts
// a background cleanup goroutine if retention is configured.
func NewSQLiteStore(db *sql.DB, retentionDays int) (*SQLiteStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	// timestamp holds unix milliseconds so range comparisons are numeric,
	// not lexicographic.
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS usage (
			id TEXT PRIMARY KEY,
			request_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			feature TEXT NOT NULL,
			timestamp INTEGER NOT NULL,
			model TEXT NOT NULL,
			provider TEXT NOT NULL,
			input_tokens INTEGER NOT NULL DEFAULT 0,
			output_tokens INTEGER NOT NULL DEFAULT 0,
			total_tokens INTEGER NOT NULL DEFAULT 0,
			cost_cents INTEGER NOT NULL DEFAULT 0,
			cache_hit INTEGER NOT NULL DEFAULT 0
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create usage table: %w", err)
	}

	// Create indexes for common queries
	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_usage_timestamp ON usage(timestamp)",
		"CREATE INDEX IF NOT EXISTS idx_usage_user_id ON usage(user_id)",
		"CREATE INDEX IF NOT EXISTS idx_usage_feature ON usage(feature)",
		"CREATE INDEX IF NOT EXISTS idx_usage_model ON usage(model)",
	}
	for _, idx := range indexes {
		if _, err := db.Exec(idx); err != nil {
			slog.Warn("failed to create index", "error", err)
		}
	}

	store := &SQLiteStore{
		db:            db,
		retentionDays: retentionDays,
		stopCleanup:   make(chan struct{}),
	}

	// Start background cleanup if retention is configured
	if retentionDays > 0 {
		go RunCleanupLoop(store.stopCleanup, store.cleanup)
	}

	return store, nil
}

// WriteBatch writes multiple usage entries to SQLite using batch insert.
// Entries are chunked to stay within SQLite's parameter limit.
func (s *SQLiteStore) WriteBatch(ctx context.Context, entries []*Entry) error {
	if len(entries) == 0 {
		return nil
	}

	for i := 0; i < len(entries); i += maxEntriesPerBatch {
		end := i + maxEntriesPerBatch
		if end > len(entries) {
			end = len(entries)
		}
		chunk := entries[i:end]

		placeholders := make([]string, len(chunk))
		values := make([]interface{}, 0, len(chunk)*columnsPerEntry)

		for j, e := range chunk {
			placeholders[j] = "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)"
			values = append(values,
				e.ID,
				e.RequestID,
				e.UserID,
				string(e.Feature),
				e.Timestamp.UnixMilli(),
				e.Model,
				e.Provider,
				e.InputTokens,
				e.OutputTokens,
				e.TotalTokens,
				e.CostCents,
				e.CacheHit,
			)
		}

		query := `INSERT OR IGNORE INTO usage (id, request_id, user_id, feature, timestamp,
			model, provider, input_tokens, output_tokens, total_tokens, cost_cents, cache_hit) VALUES ` +
			strings.Join(placeholders, ",")

		if _, err := s.db.ExecContext(ctx, query, values...); err != nil {
			return fmt.Errorf("failed to insert usage batch %d: %w", i/maxEntriesPerBatch, err)
		}
	}

	return nil
}

// Flush is a no-op for SQLite as writes are synchronous.
func (s *SQLiteStore) Flush(_ context.Context) error {
	return nil
}

// Close stops the cleanup goroutine.
// Note: We don't close the DB here as it's managed by the storage layer.
// Safe to call multiple times.
func (s *SQLiteStore) Close() error {
	if s.retentionDays > 0 && s.stopCleanup != nil {
		s.closeOnce.Do(func() {
			close(s.stopCleanup)
		})
	}
	return nil
}

// cleanup deletes usage entries older than the retention period.
func (s *SQLiteStore) cleanup() {
	if s.retentionDays <= 0 {
		return
	}

	cutoff := time.Now().AddDate(0, 0, -s.retentionDays).UnixMilli()

	result, err := s.db.Exec("DELETE FROM usage WHERE timestamp < ?", cutoff)
	if err != nil {
		slog.Error("failed to cleanup old usage entries", "error", err)
		return
	}

	if rowsAffected, err := result.RowsAffected(); err == nil && rowsAffected > 0 {
		slog.Info("cleaned up old usage entries", "deleted", rowsAffected)
	}
}
