// Package usage records per-request token and cost accounting and serves
// aggregated statistics back to callers.
package usage

import (
	"context"
	"time"

	"tutorgate/internal/core"
)

// Store defines the interface for usage storage backends.
// Implementations must be safe for concurrent use.
type Store interface {
	// WriteBatch writes multiple usage entries to storage.
	// This is called by the Logger when flushing buffered entries.
	WriteBatch(ctx context.Context, entries []*Entry) error

	// Flush forces any pending writes to complete.
	// Called during graceful shutdown.
	Flush(ctx context.Context) error

	// Close releases resources and flushes pending writes.
	Close() error
}

// Reader provides read access to aggregated usage data.
type Reader interface {
	// Stats returns aggregated statistics for one user over the trailing
	// lookbackDays days. A user with no entries gets an all-zero result.
	Stats(ctx context.Context, userID string, lookbackDays int) (*core.UsageStats, error)
}

// Entry represents a single completed AI request.
type Entry struct {
	// ID is a unique identifier for this entry (UUID)
	ID string `json:"id" bson:"_id"`

	// RequestID links to the inbound request (from X-Request-ID header)
	RequestID string `json:"request_id" bson:"request_id"`

	// UserID identifies the student or staff account the request ran for
	UserID string `json:"user_id" bson:"user_id"`

	// Feature is the product surface that issued the request
	Feature core.FeatureType `json:"feature" bson:"feature"`

	// Timestamp is when the request completed
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`

	Model    string `json:"model" bson:"model"`
	Provider string `json:"provider" bson:"provider"`

	// Token counts, normalized across providers
	InputTokens  int `json:"input_tokens" bson:"input_tokens"`
	OutputTokens int `json:"output_tokens" bson:"output_tokens"`
	TotalTokens  int `json:"total_tokens" bson:"total_tokens"`

	// CostCents is the computed cost in integer cents. Cache hits replay
	// the cost of the original request.
	CostCents int64 `json:"cost_cents" bson:"cost_cents"`

	// CacheHit marks entries served from cache without a provider call
	CacheHit bool `json:"cache_hit" bson:"cache_hit"`
}

// Config holds usage tracking configuration
type Config struct {
	// Enabled controls whether usage tracking is active
	Enabled bool

	// BufferSize is the number of usage entries to buffer before flushing
	BufferSize int

	// FlushInterval is how often to flush buffered entries
	FlushInterval time.Duration

	// RetentionDays is how long to keep usage data (0 = forever)
	RetentionDays int
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		Enabled:       true,
		BufferSize:    1000,
		FlushInterval: 5 * time.Second,
		RetentionDays: 90,
	}
}
