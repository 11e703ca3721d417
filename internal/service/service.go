// Package service implements the orchestration facade in front of the
// provider adapters: quota enforcement, response caching, cost accounting
// and usage logging for every AI request issued by the product features.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"tutorgate/internal/aicache"
	"tutorgate/internal/core"
	"tutorgate/internal/observability"
	"tutorgate/internal/pricing"
	"tutorgate/internal/providers"
	"tutorgate/internal/quota"
	"tutorgate/internal/usage"
)

// DefaultLookbackDays bounds usage statistics queries when the caller does
// not specify a window.
const DefaultLookbackDays = 30

// ErrStatsUnavailable is returned by UsageStats when no usage reader is
// configured (usage tracking disabled or backend without a reader).
var ErrStatsUnavailable = errors.New("usage statistics are not available")

// FeatureConfig holds the static per-feature defaults applied when a
// request does not override them.
type FeatureConfig struct {
	Provider     core.Provider
	Model        string
	Temperature  *float64
	MaxTokens    int
	CacheEnabled bool
}

// Config assembles the service's feature table.
type Config struct {
	Features map[core.FeatureType]FeatureConfig
}

// Service is the orchestration facade. It is safe for concurrent use; all
// per-request state lives on the stack.
type Service struct {
	registry *providers.Registry
	cache    *aicache.Cache // nil disables caching entirely
	quotas   *quota.Manager
	usageLog usage.LoggerInterface
	reader   usage.Reader
	features map[core.FeatureType]FeatureConfig

	group singleflight.Group
	now   func() time.Time
}

// New creates a Service. cache may be nil to disable response caching;
// usageLog may be a NoopLogger; reader may be nil, in which case usage
// statistics are unavailable.
func New(registry *providers.Registry, cache *aicache.Cache, quotas *quota.Manager, usageLog usage.LoggerInterface, reader usage.Reader, cfg Config) *Service {
	if usageLog == nil {
		usageLog = &usage.NoopLogger{}
	}
	return &Service{
		registry: registry,
		cache:    cache,
		quotas:   quotas,
		usageLog: usageLog,
		reader:   reader,
		features: cfg.Features,
		now:      time.Now,
	}
}

// Resolve validates a request and applies feature defaults, producing the
// concrete request adapters receive. Option overrides win over feature
// defaults field by field.
func (s *Service) Resolve(req *core.CompletionRequest) (*core.ResolvedRequest, *FeatureConfig, error) {
	if req == nil || req.Prompt == "" {
		return nil, nil, fmt.Errorf("prompt is required")
	}
	if !req.FeatureType.Valid() {
		return nil, nil, fmt.Errorf("unknown feature type %q", req.FeatureType)
	}
	feature, ok := s.features[req.FeatureType]
	if !ok {
		return nil, nil, fmt.Errorf("feature %q is not configured", req.FeatureType)
	}

	resolved := &core.ResolvedRequest{
		Prompt:         req.Prompt,
		FeatureType:    req.FeatureType,
		Model:          feature.Model,
		Temperature:    feature.Temperature,
		MaxTokens:      feature.MaxTokens,
		ResponseFormat: core.FormatText,
		PromptVersion:  req.PromptVersion,
		Functions:      req.Functions,
	}
	if req.Options.Model != "" {
		resolved.Model = req.Options.Model
	}
	if req.Options.Temperature != nil {
		resolved.Temperature = req.Options.Temperature
	}
	if req.Options.MaxTokens != nil {
		resolved.MaxTokens = *req.Options.MaxTokens
	}
	if req.Options.TopP != nil {
		resolved.TopP = req.Options.TopP
	}
	if req.Options.ResponseFormat != "" {
		resolved.ResponseFormat = req.Options.ResponseFormat
	}

	return resolved, &feature, nil
}

// providerFor picks the adapter for a resolved request: the feature's
// configured provider, falling back to the rate table's model mapping when
// an option override switched models.
func (s *Service) providerFor(resolved *core.ResolvedRequest, feature *FeatureConfig) (providers.Adapter, error) {
	provider := feature.Provider
	if resolved.Model != feature.Model {
		if p, err := pricing.ProviderFor(resolved.Model); err == nil {
			provider = p
		}
	}
	return s.registry.Get(provider)
}

// checkQuota runs the pre-flight quota gate. Over-quota is returned as a
// typed QuotaExceededError, never as a response.
func (s *Service) checkQuota(ctx context.Context, userID string, feature core.FeatureType) error {
	result, err := s.quotas.Check(ctx, userID, feature)
	if err != nil {
		return fmt.Errorf("quota check failed: %w", err)
	}
	if !result.Allowed {
		observability.RecordQuotaDenial(feature)
		return &core.QuotaExceededError{
			UserID:  userID,
			Feature: feature,
			ResetAt: result.ResetAt,
		}
	}
	return nil
}

// cacheUsable reports whether the response cache applies to this request.
// An explicit per-request override wins over the feature default.
func (s *Service) cacheUsable(req *core.CompletionRequest, feature *FeatureConfig) bool {
	if s.cache == nil {
		return false
	}
	if req.Options.CacheEnabled != nil {
		return *req.Options.CacheEnabled
	}
	return feature.CacheEnabled
}

// Complete runs the full orchestration path for a completion: quota gate,
// cache lookup, provider call, cost accounting, cache write, usage log.
// Concurrent identical cacheable misses are collapsed so the provider is
// called at most once per user and fingerprint; every caller still records
// its own quota usage and usage log entry.
func (s *Service) Complete(ctx context.Context, userID string, req *core.CompletionRequest) (*core.CompletionResponse, error) {
	resolved, feature, err := s.Resolve(req)
	if err != nil {
		return nil, err
	}

	if err := s.checkQuota(ctx, userID, req.FeatureType); err != nil {
		return nil, err
	}

	if !s.cacheUsable(req, feature) {
		// Cache bypass: the provider is called unconditionally, no
		// lookup, no store, no in-flight sharing.
		resp, err := s.callProvider(ctx, resolved, feature)
		if err != nil {
			return nil, err
		}
		s.account(ctx, userID, resolved, resp)
		return resp, nil
	}

	fingerprint := aicache.Fingerprint(resolved)
	cached, err := s.cache.Lookup(ctx, fingerprint)
	if err != nil {
		// Degrade to a miss on cache infrastructure failure
		slog.Warn("cache lookup failed, treating as miss",
			"feature", req.FeatureType, "error", err)
	}
	if cached != nil {
		observability.RecordCacheHit(req.FeatureType)
		observability.RecordRequest(req.FeatureType, cached.Provider, observability.OutcomeCacheHit, 0)
		s.logUsage(ctx, userID, resolved, cached)
		return cached, nil
	}

	// Keyed per user so an identical in-flight request from another
	// account is never answered with this caller's fill.
	result, err, shared := s.group.Do(userID+"\x00"+fingerprint, func() (interface{}, error) {
		return s.fill(ctx, req, resolved, feature, fingerprint)
	})
	if err != nil {
		return nil, err
	}

	resp := result.(*core.CompletionResponse)
	if shared {
		// Followers get their own copy so nobody mutates a shared response
		copied := *resp
		resp = &copied
	}
	s.account(ctx, userID, resolved, resp)
	return resp, nil
}

// fill executes the provider call and the cache write exactly once per
// collapsed group. Per-caller bookkeeping stays outside.
func (s *Service) fill(ctx context.Context, req *core.CompletionRequest, resolved *core.ResolvedRequest, feature *FeatureConfig, fingerprint string) (*core.CompletionResponse, error) {
	resp, err := s.callProvider(ctx, resolved, feature)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Store(ctx, fingerprint, req.FeatureType, resp, req.Options.CacheTTL); err != nil {
		// A failed cache write never fails the request
		slog.Warn("cache store failed", "feature", req.FeatureType, "error", err)
	}
	return resp, nil
}

// callProvider runs the adapter and prices the returned usage.
func (s *Service) callProvider(ctx context.Context, resolved *core.ResolvedRequest, feature *FeatureConfig) (*core.CompletionResponse, error) {
	adapter, err := s.providerFor(resolved, feature)
	if err != nil {
		return nil, err
	}

	start := s.now()
	resp, err := adapter.Complete(ctx, resolved)
	elapsed := time.Since(start)
	if err != nil {
		observability.RecordRequest(resolved.FeatureType, adapter.Name(), observability.OutcomeError, elapsed)
		return nil, err
	}

	cost, err := pricing.Calculate(resp.Model, resp.TokensUsed.Input, resp.TokensUsed.Output)
	if err != nil {
		// Unknown model: fail loudly rather than account zero cost
		return nil, err
	}
	resp.CostCents = cost
	resp.CacheHit = false
	resp.ExecutionTimeMs = elapsed.Milliseconds()
	return resp, nil
}

// account records quota usage, metrics and the usage log entry for one
// caller. It runs once per caller even when the response came from a
// collapsed in-flight fill.
func (s *Service) account(ctx context.Context, userID string, resolved *core.ResolvedRequest, resp *core.CompletionResponse) {
	if err := s.quotas.Record(ctx, userID, resolved.FeatureType, resp.TokensUsed.Total); err != nil {
		slog.Error("failed to record quota usage",
			"user_id", userID, "feature", resolved.FeatureType, "error", err)
	}

	elapsed := time.Duration(resp.ExecutionTimeMs) * time.Millisecond
	observability.RecordRequest(resolved.FeatureType, resp.Provider, observability.OutcomeSuccess, elapsed)
	observability.RecordUsage(resolved.FeatureType, resp.Provider, resp.TokensUsed, resp.CostCents)
	s.logUsage(ctx, userID, resolved, resp)
}

// logUsage writes one usage entry. Cache hits replay the original cost.
func (s *Service) logUsage(ctx context.Context, userID string, resolved *core.ResolvedRequest, resp *core.CompletionResponse) {
	s.usageLog.Write(&usage.Entry{
		ID:           newEntryID(),
		RequestID:    core.GetRequestID(ctx),
		UserID:       userID,
		Feature:      resolved.FeatureType,
		Timestamp:    s.now().UTC(),
		Model:        resp.Model,
		Provider:     string(resp.Provider),
		InputTokens:  resp.TokensUsed.Input,
		OutputTokens: resp.TokensUsed.Output,
		TotalTokens:  resp.TokensUsed.Total,
		CostCents:    resp.CostCents,
		CacheHit:     resp.CacheHit,
	})
}

// InvalidateCache drops every cached completion for a feature, for use
// when its prompt template changes. Returns the number of entries removed;
// zero with no error when caching is disabled.
func (s *Service) InvalidateCache(ctx context.Context, feature core.FeatureType) (int64, error) {
	if !feature.Valid() {
		return 0, fmt.Errorf("unknown feature type %q", feature)
	}
	if s.cache == nil {
		return 0, nil
	}
	removed, err := s.cache.InvalidateFeature(ctx, feature)
	if err != nil {
		return 0, err
	}
	slog.Info("cache invalidated", "feature", feature, "removed", removed)
	return removed, nil
}

// UsageStats returns aggregated statistics for a user over the trailing
// lookbackDays days (DefaultLookbackDays when zero or negative).
func (s *Service) UsageStats(ctx context.Context, userID string, lookbackDays int) (*core.UsageStats, error) {
	if s.reader == nil {
		return nil, ErrStatsUnavailable
	}
	if lookbackDays <= 0 {
		lookbackDays = DefaultLookbackDays
	}
	return s.reader.Stats(ctx, userID, lookbackDays)
}

// Close releases the service's owned resources.
func (s *Service) Close() error {
	return s.usageLog.Close()
}
