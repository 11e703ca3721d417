package service

import (
	"context"

	"tutorgate/internal/core"
)

// Client is a Service bound to one user, so callers that act for a single
// account do not thread the user ID through every call.
type Client struct {
	svc    *Service
	userID string
}

// Bind returns a Client that issues every operation as userID.
func (s *Service) Bind(userID string) *Client {
	return &Client{svc: s, userID: userID}
}

func (c *Client) Complete(ctx context.Context, req *core.CompletionRequest) (*core.CompletionResponse, error) {
	return c.svc.Complete(ctx, c.userID, req)
}

func (c *Client) StreamComplete(ctx context.Context, req *core.CompletionRequest) (core.Stream, error) {
	return c.svc.StreamComplete(ctx, c.userID, req)
}

func (c *Client) FunctionCall(ctx context.Context, req *core.CompletionRequest) (*core.FunctionCallResult, error) {
	return c.svc.FunctionCall(ctx, c.userID, req)
}

func (c *Client) UsageStats(ctx context.Context, lookbackDays int) (*core.UsageStats, error) {
	return c.svc.UsageStats(ctx, c.userID, lookbackDays)
}
