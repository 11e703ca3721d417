// Package pricing provides cost and token accounting: a static per-model
// rate table and a pure cost function over it. No I/O happens here.
package pricing

import (
	"math"

	"tutorgate/internal/core"
)

// Rate holds a model's pricing in cents per million tokens, split by side.
type Rate struct {
	Provider        core.Provider
	InputCentsMtok  float64
	OutputCentsMtok float64
}

// rates is the static per-model rate table. Every model the orchestrator can
// resolve maps to exactly one provider and one row here. Values mirror the
// vendors' published list prices.
var rates = map[string]Rate{
	"gpt-4":              {core.ProviderOpenAI, 3000, 6000},
	"gpt-4o":             {core.ProviderOpenAI, 250, 1000},
	"gpt-4o-mini":        {core.ProviderOpenAI, 15, 60},
	"gpt-3.5-turbo":      {core.ProviderOpenAI, 50, 150},
	"claude-3-5-sonnet":  {core.ProviderAnthropic, 300, 1500},
	"claude-3-5-haiku":   {core.ProviderAnthropic, 80, 400},
	"gemini-1.5-pro":     {core.ProviderGemini, 125, 500},
	"gemini-1.5-flash":   {core.ProviderGemini, 7.5, 30},
	"chatbase-default":   {core.ProviderChatbase, 0, 0},
	"mock-model":         {core.ProviderMock, 100, 200},
}

// Calculate returns the cost in integer cents for a completed request.
//
// Fractional cents round half up (x.5 rounds away from zero toward the next
// cent). Unknown models return an AccountingError rather than a silent zero.
func Calculate(model string, inputTokens, outputTokens int) (int64, error) {
	rate, ok := rates[model]
	if !ok {
		return 0, &core.AccountingError{Model: model}
	}

	cents := float64(inputTokens)*rate.InputCentsMtok/1e6 +
		float64(outputTokens)*rate.OutputCentsMtok/1e6

	return int64(math.Floor(cents + 0.5)), nil
}

// ProviderFor returns the provider that serves the given model.
// Unknown models return an AccountingError, keeping model resolution and
// cost accounting in agreement about which models exist.
func ProviderFor(model string) (core.Provider, error) {
	rate, ok := rates[model]
	if !ok {
		return "", &core.AccountingError{Model: model}
	}
	return rate.Provider, nil
}

// Known reports whether the model has a rate table entry.
func Known(model string) bool {
	_, ok := rates[model]
	return ok
}

// Models returns the model identifiers present in the rate table.
func Models() []string {
	models := make([]string, 0, len(rates))
	for m := range rates {
		models = append(models, m)
	}
	return models
}
