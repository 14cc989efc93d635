// Package llm exposes document analysis and text generation over
// interchangeable AI backends.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/fabfab/papermind/config"
)

var (
	// ErrProviderUnavailable means the backend has no usable client or
	// configuration.
	ErrProviderUnavailable = errors.New("ai provider unavailable")
	// ErrInvalidResponseShape means the backend returned JSON that is
	// missing required fields or types them wrongly.
	ErrInvalidResponseShape = errors.New("invalid response shape")
)

// Request describes one document analysis call.
type Request struct {
	Content    string
	DocumentID int

	ExistingTags           []string
	ExistingCorrespondents []string
	ExistingDocumentTypes  []string

	// CustomPrompt replaces the generated system prompt when set.
	CustomPrompt string
	// ExternalData is optional structured context appended to the prompt.
	ExternalData any
}

// Document is the canonical analysis record extracted from a document.
// Correspondent is a pointer so the canonical empty result encodes as JSON
// null, which callers use together with empty tags as the failure signal.
type Document struct {
	Title         string         `json:"title"`
	Correspondent *string        `json:"correspondent"`
	Tags          []string       `json:"tags"`
	DocumentType  string         `json:"document_type"`
	DocumentDate  string         `json:"document_date"`
	Language      string         `json:"language"`
	CustomFields  map[string]any `json:"custom_fields,omitempty"`
}

// EmptyDocument is the canonical empty result used whenever extraction
// cannot be trusted.
func EmptyDocument() Document {
	return Document{Tags: []string{}}
}

type Usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`
}

// Result is always returned from analysis calls, even on failure: a failed
// call carries the canonical empty document plus a non-empty Error.
type Result struct {
	Document  Document `json:"document"`
	Usage     Usage    `json:"metrics"`
	Truncated bool     `json:"truncated"`
	Error     string   `json:"error,omitempty"`
}

type Status struct {
	Status string `json:"status"`
	Model  string `json:"model,omitempty"`
	Error  string `json:"error,omitempty"`
}

type GenerateOptions struct {
	Temperature float64
	MaxTokens   int
}

// Provider is the capability contract shared by both backend variants. The
// variant is selected once at startup via NewProvider.
type Provider interface {
	// AnalyzeDocument never fails outright: errors degrade to a Result
	// carrying the canonical empty document and an error string.
	AnalyzeDocument(ctx context.Context, req Request) Result
	// AnalyzePlayground runs the same pipeline with a simplified fixed
	// schema and no taxonomy context.
	AnalyzePlayground(ctx context.Context, content, instruction string) Result
	// GenerateText performs a single free-form completion.
	GenerateText(ctx context.Context, prompt string, opts GenerateOptions) (string, error)
	// CheckStatus probes the backend with a minimal request. It never
	// returns an error; failures surface as a Status with status "error".
	CheckStatus(ctx context.Context) Status
}

// ThumbnailStore caches a preview image for a document id. A nil store
// disables thumbnail caching.
type ThumbnailStore interface {
	EnsureThumbnail(ctx context.Context, documentID int) error
}

func NewProvider(cfg config.Config, thumbs ThumbnailStore, logger *log.Logger) (Provider, error) {
	switch cfg.AI.Provider {
	case config.ProviderOllama:
		return NewOllamaProvider(cfg, thumbs, logger), nil
	case config.ProviderOpenAI:
		if cfg.OpenAI.APIKey == "" {
			return nil, fmt.Errorf("openai provider selected but OPENAI_API_KEY not set: %w", ErrProviderUnavailable)
		}
		return NewOpenAIProvider(cfg, thumbs, logger)
	default:
		return nil, fmt.Errorf("unknown ai provider: %s", cfg.AI.Provider)
	}
}

func failure(err error) Result {
	return Result{Document: EmptyDocument(), Error: err.Error()}
}
