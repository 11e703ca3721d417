package pricing

import (
	"errors"
	"testing"

	"tutorgate/internal/core"
)

func TestCalculate(t *testing.T) {
	t.Run("Deterministic", func(t *testing.T) {
		first, err := Calculate("gpt-4", 1000, 500)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		second, err := Calculate("gpt-4", 1000, 500)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if first != second {
			t.Errorf("expected identical results, got %d and %d", first, second)
		}
		// gpt-4: 1000 input tokens at 3000c/Mtok = 3c, 500 output at 6000c/Mtok = 3c
		if first != 6 {
			t.Errorf("expected 6 cents, got %d", first)
		}
	})

	t.Run("UnknownModel", func(t *testing.T) {
		_, err := Calculate("gpt-99-ultra", 1000, 500)
		if err == nil {
			t.Fatal("expected error for unknown model")
		}
		var accErr *core.AccountingError
		if !errors.As(err, &accErr) {
			t.Fatalf("expected AccountingError, got %T", err)
		}
		if accErr.Model != "gpt-99-ultra" {
			t.Errorf("expected model in error, got %q", accErr.Model)
		}
	})

	t.Run("RoundsHalfUp", func(t *testing.T) {
		// gpt-4o-mini: 50000 input at 15c/Mtok = 0.75c -> rounds to 1
		cents, err := Calculate("gpt-4o-mini", 50000, 0)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cents != 1 {
			t.Errorf("expected 0.75c to round up to 1, got %d", cents)
		}

		// 10000 input at 15c/Mtok = 0.15c -> rounds to 0
		cents, err = Calculate("gpt-4o-mini", 10000, 0)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cents != 0 {
			t.Errorf("expected 0.15c to round down to 0, got %d", cents)
		}
	})

	t.Run("ZeroTokens", func(t *testing.T) {
		cents, err := Calculate("claude-3-5-sonnet", 0, 0)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cents != 0 {
			t.Errorf("expected 0 cents for zero tokens, got %d", cents)
		}
	})
}

func TestProviderFor(t *testing.T) {
	cases := []struct {
		model    string
		provider core.Provider
	}{
		{"gpt-4o", core.ProviderOpenAI},
		{"claude-3-5-haiku", core.ProviderAnthropic},
		{"gemini-1.5-flash", core.ProviderGemini},
		{"chatbase-default", core.ProviderChatbase},
		{"mock-model", core.ProviderMock},
	}
	for _, tc := range cases {
		got, err := ProviderFor(tc.model)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tc.model, err)
		}
		if got != tc.provider {
			t.Errorf("%s: expected provider %s, got %s", tc.model, tc.provider, got)
		}
	}

	if _, err := ProviderFor("unknown"); err == nil {
		t.Error("expected error for unknown model")
	}
}
