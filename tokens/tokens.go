// Package tokens sizes prompt content against a model's context window.
package tokens

import (
	"errors"
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	tiktokenloader "github.com/pkoukk/tiktoken-go-loader"
)

// The default loader fetches BPE vocabularies over the network; the offline
// loader ships them embedded so estimation works without connectivity.
var loaderOnce sync.Once

// ErrBudgetExceeded signals that the fixed prompt and response overhead
// already consumes the whole context window, leaving no room for content.
var ErrBudgetExceeded = errors.New("token budget exceeded")

// Estimator reports how many tokens a backend will charge for a text.
type Estimator interface {
	Estimate(text string) int
}

// RatioEstimator approximates tokens as one per four bytes, rounded up.
// The free-text backend has no exposed tokenizer, so this cheap ratio is
// used deliberately instead of an exact count.
type RatioEstimator struct{}

func (RatioEstimator) Estimate(text string) int {
	return (len(text) + 3) / 4
}

// TiktokenEstimator counts tokens with the model's actual BPE encoding.
type TiktokenEstimator struct {
	enc *tiktoken.Tiktoken
}

func NewTiktokenEstimator(model string) (*TiktokenEstimator, error) {
	loaderOnce.Do(func() {
		tiktoken.SetBpeLoader(tiktokenloader.NewOfflineLoader())
	})

	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		// Unknown model names fall back to the common encoding.
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, fmt.Errorf("load tokenizer: %w", err)
		}
	}
	return &TiktokenEstimator{enc: enc}, nil
}

func (e *TiktokenEstimator) Estimate(text string) int {
	if text == "" {
		return 0
	}
	return len(e.enc.Encode(text, nil, nil))
}

// Budget is the arithmetic allowance left for document content once the
// prompt overhead and the reserved response space are subtracted.
type Budget struct {
	MaxTokens       int
	ReservedTokens  int
	AvailableTokens int
}

// ComputeBudget fails with ErrBudgetExceeded when nothing remains for
// content. Callers must abort the request in that case, not truncate.
func ComputeBudget(promptOverhead, maxTokens, reservedResponse int) (Budget, error) {
	reserved := promptOverhead + reservedResponse
	available := maxTokens - reserved
	if available <= 0 {
		return Budget{}, fmt.Errorf("%w: %d tokens reserved of a %d token limit", ErrBudgetExceeded, reserved, maxTokens)
	}
	return Budget{
		MaxTokens:       maxTokens,
		ReservedTokens:  reserved,
		AvailableTokens: available,
	}, nil
}

// Truncate returns the longest prefix of text whose estimated token count
// fits within available. Text that already fits is returned unchanged, so
// the operation is idempotent for a given estimator.
func Truncate(text string, available int, est Estimator) string {
	if available <= 0 {
		return ""
	}
	if est.Estimate(text) <= available {
		return text
	}

	runes := []rune(text)
	lo, hi := 0, len(runes) // prefix of lo runes fits, prefix of hi runes does not
	for hi-lo > 1 {
		mid := lo + (hi-lo)/2
		if est.Estimate(string(runes[:mid])) <= available {
			lo = mid
		} else {
			hi = mid
		}
	}
	return string(runes[:lo])
}
