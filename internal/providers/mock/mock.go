// Package mock provides a deterministic in-process adapter for tests and
// local development. No network calls, stable output for a given prompt.
package mock

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"tutorgate/internal/core"
)

// Adapter is a deterministic fake vendor. The zero value works; the knobs
// exist so tests can force failures and truncation.
type Adapter struct {
	mu       sync.Mutex
	requests []*core.ResolvedRequest

	// FailWith, when set, is returned by every call.
	FailWith error

	// Truncate, when true, simulates a token-limit truncation with no
	// usable content.
	Truncate bool

	// Latency is added to every call to simulate vendor delay.
	Latency time.Duration
}

// New creates a mock adapter.
func New() *Adapter {
	return &Adapter{}
}

func (a *Adapter) Name() core.Provider {
	return core.ProviderMock
}

// Requests returns every request the adapter served, oldest first.
func (a *Adapter) Requests() []*core.ResolvedRequest {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]*core.ResolvedRequest, len(a.requests))
	copy(out, a.requests)
	return out
}

// CallCount returns how many requests reached the adapter.
func (a *Adapter) CallCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.requests)
}

// Reset clears recorded requests and knobs.
func (a *Adapter) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.requests = nil
	a.FailWith = nil
	a.Truncate = false
}

func (a *Adapter) record(ctx context.Context, req *core.ResolvedRequest) error {
	if a.Latency > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(a.Latency):
		}
	}

	a.mu.Lock()
	a.requests = append(a.requests, req)
	failWith := a.FailWith
	truncate := a.Truncate
	a.mu.Unlock()

	if failWith != nil {
		return failWith
	}
	if truncate {
		err := core.NewProviderError(core.ProviderMock, core.ErrCodeMaxTokensExceeded,
			"completion truncated at token limit before producing content", nil)
		err.Model = req.Model
		return err
	}
	return nil
}

// content derives a stable response from the prompt so cache and
// fingerprint behavior is observable in tests.
func content(req *core.ResolvedRequest) string {
	if req.ResponseFormat == core.FormatJSON {
		return fmt.Sprintf(`{"feature": %q, "answer": "mock response for: %s"}`, req.FeatureType, req.Prompt)
	}
	return "mock response for: " + req.Prompt
}

func usage(req *core.ResolvedRequest, output string) core.TokenUsage {
	in := len(strings.Fields(req.Prompt))
	out := len(strings.Fields(output))
	return core.TokenUsage{Input: in, Output: out, Total: in + out}
}

func (a *Adapter) Complete(ctx context.Context, req *core.ResolvedRequest) (*core.CompletionResponse, error) {
	if err := a.record(ctx, req); err != nil {
		return nil, err
	}

	text := content(req)
	return &core.CompletionResponse{
		Content:    text,
		TokensUsed: usage(req, text),
		Model:      req.Model,
		Provider:   core.ProviderMock,
	}, nil
}

func (a *Adapter) StreamComplete(ctx context.Context, req *core.ResolvedRequest) (core.Stream, error) {
	if err := a.record(ctx, req); err != nil {
		return nil, err
	}

	text := content(req)
	return &stream{
		words: strings.SplitAfter(text, " "),
		usage: usage(req, text),
	}, nil
}

func (a *Adapter) FunctionCall(ctx context.Context, req *core.ResolvedRequest) (*core.FunctionCallResult, error) {
	if err := a.record(ctx, req); err != nil {
		return nil, err
	}

	if len(req.Functions) == 0 {
		return nil, core.NewProviderError(core.ProviderMock, core.ErrCodeInvalidResponse,
			"no function definitions supplied", nil)
	}

	fn := req.Functions[0]
	args := fmt.Sprintf(`{"prompt": %q}`, req.Prompt)
	return &core.FunctionCallResult{
		FunctionName: fn.Name,
		Arguments:    args,
		TokensUsed:   usage(req, args),
		Model:        req.Model,
		Provider:     core.ProviderMock,
	}, nil
}

// stream yields the response word by word, then a done chunk with usage.
type stream struct {
	words []string
	pos   int
	usage core.TokenUsage
	done  bool
}

func (s *stream) Recv() (*core.StreamChunk, error) {
	if s.done {
		return nil, io.EOF
	}
	if s.pos < len(s.words) {
		chunk := &core.StreamChunk{Content: s.words[s.pos]}
		s.pos++
		return chunk, nil
	}
	s.done = true
	usage := s.usage
	return &core.StreamChunk{Done: true, TokensUsed: &usage}, nil
}

func (s *stream) Close() error {
	s.done = true
	return nil
}
