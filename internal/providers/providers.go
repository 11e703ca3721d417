// Package providers defines the adapter contract every AI vendor
// integration implements, plus the registry the orchestrator dispatches
// through. Adapters receive fully resolved requests - model and generation
// parameters are final before an adapter ever sees them - and normalize
// vendor responses into the shared core types.
package providers

import (
	"context"
	"fmt"

	"tutorgate/internal/core"
)

// Adapter is the uniform interface over AI vendors. Implementations own
// their HTTP clients and credentials; they must be safe for concurrent use.
type Adapter interface {
	// Name returns the provider this adapter speaks for.
	Name() core.Provider

	// Complete executes a single completion and returns the normalized
	// response with content and vendor-reported token usage. Cost and cache
	// bookkeeping are the orchestrator's job, not the adapter's.
	Complete(ctx context.Context, req *core.ResolvedRequest) (*core.CompletionResponse, error)

	// StreamComplete starts a streaming completion. The returned stream
	// yields content chunks and terminates with a final chunk carrying
	// Done=true and cumulative token usage. The caller must drain or close
	// the stream.
	StreamComplete(ctx context.Context, req *core.ResolvedRequest) (core.Stream, error)

	// FunctionCall executes a completion with the request's function
	// definitions offered as tools, and returns the call the model chose.
	// Adapters for vendors without tool support return a ProviderError.
	FunctionCall(ctx context.Context, req *core.ResolvedRequest) (*core.FunctionCallResult, error)
}

// Registry maps provider names to adapters. It is populated once at
// startup and read-only afterwards, so no locking is needed.
type Registry struct {
	adapters map[core.Provider]Adapter
}

// NewRegistry creates a registry from the given adapters.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[core.Provider]Adapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.Name()] = a
	}
	return r
}

// Get returns the adapter for a provider.
func (r *Registry) Get(provider core.Provider) (Adapter, error) {
	a, ok := r.adapters[provider]
	if !ok {
		return nil, fmt.Errorf("no adapter registered for provider %q", provider)
	}
	return a, nil
}

// Providers returns the registered provider names.
func (r *Registry) Providers() []core.Provider {
	out := make([]core.Provider, 0, len(r.adapters))
	for p := range r.adapters {
		out = append(out, p)
	}
	return out
}
