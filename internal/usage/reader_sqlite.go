package usage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"tutorgate/internal/core"
)

// SQLiteReader implements Reader for SQLite databases.
type SQLiteReader struct {
	db *sql.DB
}

// NewSQLiteReader creates a new SQLite usage reader.
func NewSQLiteReader(db *sql.DB) (*SQLiteReader, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	return &SQLiteReader{db: db}, nil
}

func (r *SQLiteReader) Stats(ctx context.Context, userID string, lookbackDays int) (*core.UsageStats, error) {
	cutoff := time.Now().AddDate(0, 0, -lookbackDays).UnixMilli()

	query := `SELECT COUNT(*),
		COALESCE(SUM(total_tokens), 0),
		COALESCE(SUM(cost_cents), 0),
		COALESCE(SUM(cache_hit), 0)
		FROM usage WHERE user_id = ? AND timestamp >= ?`

	stats := &core.UsageStats{}
	var cacheHits int64
	err := r.db.QueryRowContext(ctx, query, userID, cutoff).Scan(
		&stats.TotalRequests, &stats.TotalTokens, &stats.TotalCostCents, &cacheHits,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query usage stats: %w", err)
	}

	if stats.TotalRequests > 0 {
		stats.CacheHitRate = float64(cacheHits) / float64(stats.TotalRequests)
		stats.AverageTokensPerRequest = float64(stats.TotalTokens) / float64(stats.TotalRequests)
	}
	return stats, nil
}
