// Package quota tracks per-user, per-feature usage over a rolling daily
// window and enforces configured limits before any provider spend happens.
package quota

import (
	"context"
	"time"

	"tutorgate/internal/core"
)

// Limits caps a user's consumption of one feature within a window.
// A zero value for either field means unlimited on that axis.
type Limits struct {
	MaxRequests int64
	MaxTokens   int64
}

// Record is the persisted counter row for one (user, feature, window).
// Counts are monotonically non-decreasing within a window.
type Record struct {
	UserID       string
	Feature      core.FeatureType
	WindowStart  time.Time
	RequestCount int64
	TokenCount   int64
}

// CheckResult is the outcome of a quota check. Over-quota is a normal
// outcome carried in Allowed, never an error.
type CheckResult struct {
	Allowed           bool
	RemainingRequests int64
	RemainingTokens   int64
	ResetAt           time.Time
}

// Store defines the persistence interface for quota records.
// Implementations must be safe for concurrent use, and Increment must be
// atomic: concurrent increments for the same (user, feature, window) must
// never lose updates.
type Store interface {
	// Get retrieves the record for a window.
	// Returns nil, nil if no record exists yet.
	Get(ctx context.Context, userID string, feature core.FeatureType, windowStart time.Time) (*Record, error)

	// Increment atomically adds to the window's counters, creating the
	// record if absent (a single conditional upsert, not read-modify-write).
	Increment(ctx context.Context, userID string, feature core.FeatureType, windowStart time.Time, requests, tokens int64) error

	// Close releases any resources held by the store.
	Close() error
}

// Manager enforces limits over a Store using a daily UTC window.
type Manager struct {
	store  Store
	limits map[core.FeatureType]Limits
	now    func() time.Time
}

// NewManager creates a Manager. Features absent from limits are unlimited.
func NewManager(store Store, limits map[core.FeatureType]Limits) *Manager {
	return &Manager{
		store:  store,
		limits: limits,
		now:    time.Now,
	}
}

// Check reads the current window's counters and compares them against the
// feature's limits. A missing record counts as zero usage. Errors are
// reserved for storage failures; an exhausted quota returns Allowed=false.
//
// Check and Record are separate operations, so requests already in flight
// when Check runs are not counted against it: N concurrent callers can
// each pass at one remaining request and all proceed. Counters never lose
// updates (Increment is atomic), so the window's totals stay exact and the
// next Check denies; the limit can be overshot by at most the number of
// requests in flight, never silently undercounted.
func (m *Manager) Check(ctx context.Context, userID string, feature core.FeatureType) (*CheckResult, error) {
	windowStart := m.windowStart()
	resetAt := windowStart.Add(24 * time.Hour)

	limits, limited := m.limits[feature]
	if !limited || (limits.MaxRequests == 0 && limits.MaxTokens == 0) {
		return &CheckResult{Allowed: true, ResetAt: resetAt}, nil
	}

	record, err := m.store.Get(ctx, userID, feature, windowStart)
	if err != nil {
		return nil, err
	}

	var requests, tokens int64
	if record != nil {
		requests = record.RequestCount
		tokens = record.TokenCount
	}

	result := &CheckResult{
		Allowed: true,
		ResetAt: resetAt,
	}
	if limits.MaxRequests > 0 {
		result.RemainingRequests = limits.MaxRequests - requests
		if result.RemainingRequests <= 0 {
			result.RemainingRequests = 0
			result.Allowed = false
		}
	}
	if limits.MaxTokens > 0 {
		result.RemainingTokens = limits.MaxTokens - tokens
		if result.RemainingTokens <= 0 {
			result.RemainingTokens = 0
			result.Allowed = false
		}
	}
	return result, nil
}

// Record adds one completed request and its token count to the current
// window. The increment is atomic, so concurrent requests for the same
// user and feature never lose counts.
func (m *Manager) Record(ctx context.Context, userID string, feature core.FeatureType, tokens int) error {
	return m.store.Increment(ctx, userID, feature, m.windowStart(), 1, int64(tokens))
}

// ResetAt returns when the current window rolls over.
func (m *Manager) ResetAt() time.Time {
	return m.windowStart().Add(24 * time.Hour)
}

// Close closes the underlying store.
func (m *Manager) Close() error {
	return m.store.Close()
}

// windowStart truncates now to the start of the current UTC day.
func (m *Manager) windowStart() time.Time {
	return m.now().UTC().Truncate(24 * time.Hour)
}
