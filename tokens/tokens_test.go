package tokens

import (
	"errors"
	"strings"
	"testing"
)

func TestComputeBudget(t *testing.T) {
	budget, err := ComputeBudget(100, 1000, 200)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if budget.AvailableTokens != 700 {
		t.Fatalf("expected 700 available tokens, got %d", budget.AvailableTokens)
	}
	if budget.ReservedTokens != 300 {
		t.Fatalf("expected 300 reserved tokens, got %d", budget.ReservedTokens)
	}
}

func TestComputeBudgetExceeded(t *testing.T) {
	cases := []struct {
		name             string
		overhead, limit  int
		reservedResponse int
	}{
		{"reserved equals limit", 0, 100, 100},
		{"reserved above limit", 80, 100, 40},
		{"overhead alone fills limit", 100, 100, 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ComputeBudget(tc.overhead, tc.limit, tc.reservedResponse)
			if !errors.Is(err, ErrBudgetExceeded) {
				t.Fatalf("expected ErrBudgetExceeded, got %v", err)
			}
		})
	}
}

func TestRatioEstimator(t *testing.T) {
	est := RatioEstimator{}
	if got := est.Estimate(""); got != 0 {
		t.Fatalf("expected 0 tokens for empty text, got %d", got)
	}
	if got := est.Estimate("abcd"); got != 1 {
		t.Fatalf("expected 1 token for four bytes, got %d", got)
	}
	if got := est.Estimate("abcde"); got != 2 {
		t.Fatalf("expected ceiling rounding, got %d", got)
	}
}

func TestTiktokenEstimator(t *testing.T) {
	est, err := NewTiktokenEstimator("gpt-3.5-turbo")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := est.Estimate(""); got != 0 {
		t.Fatalf("expected 0 tokens for empty text, got %d", got)
	}
	// "hello world" is two tokens in cl100k_base.
	if got := est.Estimate("hello world"); got != 2 {
		t.Fatalf("expected 2 tokens, got %d", got)
	}
}

func TestTiktokenEstimatorUnknownModelFallsBack(t *testing.T) {
	unknown, err := NewTiktokenEstimator("some-future-model")
	if err != nil {
		t.Fatalf("unknown model must fall back, got %v", err)
	}
	known, err := NewTiktokenEstimator("gpt-3.5-turbo")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	text := "the fallback encoding counts like cl100k_base"
	if unknown.Estimate(text) != known.Estimate(text) {
		t.Fatalf("fallback encoding diverges: %d vs %d", unknown.Estimate(text), known.Estimate(text))
	}
}

func TestTruncateFits(t *testing.T) {
	est := RatioEstimator{}
	text := strings.Repeat("word ", 100)

	truncated := Truncate(text, 30, est)
	if est.Estimate(truncated) > 30 {
		t.Fatalf("truncated text estimates to %d tokens, budget was 30", est.Estimate(truncated))
	}
	if !strings.HasPrefix(text, truncated) {
		t.Fatal("truncation must return a prefix of the input")
	}
}

func TestTruncateIdempotent(t *testing.T) {
	est := RatioEstimator{}
	text := strings.Repeat("conteúdo ", 50)

	once := Truncate(text, 25, est)
	twice := Truncate(once, 25, est)
	if once != twice {
		t.Fatalf("truncate is not idempotent: %q vs %q", once, twice)
	}
}

func TestTruncateShortTextUnchanged(t *testing.T) {
	est := RatioEstimator{}
	if got := Truncate("short", 100, est); got != "short" {
		t.Fatalf("short text must pass through unchanged, got %q", got)
	}
}

func TestTruncateZeroBudget(t *testing.T) {
	est := RatioEstimator{}
	if got := Truncate("anything", 0, est); got != "" {
		t.Fatalf("expected empty result for zero budget, got %q", got)
	}
}
