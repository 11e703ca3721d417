package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"tutorgate/internal/core"
	"tutorgate/internal/observability"
	"tutorgate/internal/pricing"
	"tutorgate/internal/usage"
)

// FunctionCall runs a completion with the request's function definitions
// offered as tools. Function calls bypass the response cache: the argument
// payloads are expected to vary per invocation.
func (s *Service) FunctionCall(ctx context.Context, userID string, req *core.CompletionRequest) (*core.FunctionCallResult, error) {
	if req != nil && len(req.Functions) == 0 {
		return nil, fmt.Errorf("at least one function definition is required")
	}
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
	result, err := adapter.FunctionCall(ctx, resolved)
	elapsed := time.Since(start)
	if err != nil {
		observability.RecordRequest(req.FeatureType, adapter.Name(), observability.OutcomeError, elapsed)
		return nil, err
	}

	cost, err := pricing.Calculate(result.Model, result.TokensUsed.Input, result.TokensUsed.Output)
	if err != nil {
		return nil, err
	}
	result.CostCents = cost

	if err := s.quotas.Record(ctx, userID, req.FeatureType, result.TokensUsed.Total); err != nil {
		slog.Error("failed to record quota usage",
			"user_id", userID, "feature", req.FeatureType, "error", err)
	}

	observability.RecordRequest(req.FeatureType, result.Provider, observability.OutcomeSuccess, elapsed)
	observability.RecordUsage(req.FeatureType, result.Provider, result.TokensUsed, result.CostCents)

	s.usageLog.Write(&usage.Entry{
		ID:           newEntryID(),
		RequestID:    core.GetRequestID(ctx),
		UserID:       userID,
		Feature:      req.FeatureType,
		Timestamp:    s.now().UTC(),
		Model:        result.Model,
		Provider:     string(result.Provider),
		InputTokens:  result.TokensUsed.Input,
		OutputTokens: result.TokensUsed.Output,
		TotalTokens:  result.TokensUsed.Total,
		CostCents:    result.CostCents,
	})

	return result, nil
}
