package usage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"tutorgate/internal/core"
)

// PostgreSQLReader implements Reader for PostgreSQL databases.
type PostgreSQLReader struct {
	pool *pgxpool.Pool
}

// NewPostgreSQLReader creates a new PostgreSQL usage reader.
func NewPostgreSQLReader(pool *pgxpool.Pool) (*PostgreSQLReader, error) {
	if pool == nil {
		return nil, fmt.Errorf("connection pool is required")
	}
	return &PostgreSQLReader{pool: pool}, nil
}

func (r *PostgreSQLReader) Stats(ctx context.Context, userID string, lookbackDays int) (*core.UsageStats, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -lookbackDays)

	query := `SELECT COUNT(*),
		COALESCE(SUM(total_tokens), 0),
		COALESCE(SUM(cost_cents), 0),
		COALESCE(SUM(CASE WHEN cache_hit THEN 1 ELSE 0 END), 0)
		FROM usage WHERE user_id = $1 AND timestamp >= $2`

	stats := &core.UsageStats{}
	var cacheHits int64
	err := r.pool.QueryRow(ctx, query, userID, cutoff).Scan(
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
