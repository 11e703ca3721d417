package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"tutorgate/internal/core"
	"tutorgate/internal/observability"
	"tutorgate/internal/pricing"
	"tutorgate/internal/usage"
)

func newEntryID() string {
	return uuid.NewString()
}

// StreamComplete runs the orchestration path for a streaming completion.
// Streaming bypasses the response cache; quota is checked up front and
// recorded when the stream delivers its final usage chunk.
func (s *Service) StreamComplete(ctx context.Context, userID string, req *core.CompletionRequest) (core.Stream, error) {
	resolved, feature, err := s.Resolve(req)
	if err != nil {
		return nil, err
	}

	if err := s.checkQuota(ctx, userID, req.FeatureType); err != nil {
		return nil, err
	}

	adapter, err := s.providerFor(resolved, feature)
	if err != nil {
		return nil, err
	}

	start := s.now()
	inner, err := adapter.StreamComplete(ctx, resolved)
	if err != nil {
		observability.RecordRequest(req.FeatureType, adapter.Name(), observability.OutcomeError, time.Since(start))
		return nil, err
	}

	return &recordingStream{
		inner:    inner,
		svc:      s,
		ctx:      ctx,
		userID:   userID,
		resolved: resolved,
		provider: adapter.Name(),
		start:    start,
	}, nil
}

// recordingStream wraps an adapter stream so the bookkeeping that Complete
// does inline (cost, usage log, quota, metrics) happens once the vendor
// reports final usage on the done chunk.
type recordingStream struct {
	inner    core.Stream
	svc      *Service
	ctx      context.Context
	userID   string
	resolved *core.ResolvedRequest
	provider core.Provider
	start    time.Time
	recorded bool
}

func (r *recordingStream) Recv() (*core.StreamChunk, error) {
	chunk, err := r.inner.Recv()
	if err != nil {
		return chunk, err
	}
	if chunk.Done && !r.recorded {
		r.recorded = true
		r.finish(chunk)
	}
	return chunk, nil
}

func (r *recordingStream) Close() error {
	return r.inner.Close()
}

// finish performs post-stream accounting. Failures here are logged, never
// surfaced: the caller already has the content.
func (r *recordingStream) finish(chunk *core.StreamChunk) {
	elapsed := time.Since(r.start)

	tokens := core.TokenUsage{}
	if chunk.TokensUsed != nil {
		tokens = *chunk.TokensUsed
	}

	cost, err := pricing.Calculate(r.resolved.Model, tokens.Input, tokens.Output)
	if err != nil {
		slog.Warn("cost calculation failed for stream, recording zero cost",
			"model", r.resolved.Model, "error", err)
		cost = 0
	}

	if err := r.svc.quotas.Record(r.ctx, r.userID, r.resolved.FeatureType, tokens.Total); err != nil {
		slog.Error("failed to record quota usage",
			"user_id", r.userID, "feature", r.resolved.FeatureType, "error", err)
	}

	observability.RecordRequest(r.resolved.FeatureType, r.provider, observability.OutcomeSuccess, elapsed)
	observability.RecordUsage(r.resolved.FeatureType, r.provider, tokens, cost)

	r.svc.usageLog.Write(&usage.Entry{
		ID:           newEntryID(),
		RequestID:    core.GetRequestID(r.ctx),
		UserID:       r.userID,
		Feature:      r.resolved.FeatureType,
		Timestamp:    r.svc.now().UTC(),
		Model:        r.resolved.Model,
		Provider:     string(r.provider),
		InputTokens:  tokens.Input,
		OutputTokens: tokens.Output,
		TotalTokens:  tokens.Total,
		CostCents:    cost,
	})
}
