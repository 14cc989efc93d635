package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	openai "github.com/sashabaranov/go-openai"

	"github.com/fabfab/papermind/config"
	"github.com/fabfab/papermind/prompt"
	"github.com/fabfab/papermind/tokens"
)

// documentSchema constrains the structured-output backend to the canonical
// analysis record. The backend is expected to emit conforming JSON directly;
// the structured normalization path still validates it defensively.
var documentSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "title": {"type": "string"},
    "correspondent": {"type": ["string", "null"]},
    "tags": {"type": "array", "items": {"type": "string"}},
    "document_type": {"type": "string"},
    "document_date": {"type": ["string", "null"]},
    "language": {"type": "string"},
    "custom_fields": {"type": "object", "additionalProperties": true}
  },
  "required": ["title", "correspondent", "tags", "document_type", "document_date", "language"],
  "additionalProperties": false
}`)

var playgroundSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "title": {"type": "string"},
    "correspondent": {"type": ["string", "null"]},
    "tags": {"type": "array", "items": {"type": "string"}},
    "document_type": {"type": "string"},
    "document_date": {"type": ["string", "null"]},
    "language": {"type": "string"}
  },
  "required": ["title", "correspondent", "tags", "document_type", "document_date", "language"],
  "additionalProperties": false
}`)

const defaultTemperature = 0.3

// OpenAIProvider is the structured-output variant: it sends a response
// schema with every analysis request.
type OpenAIProvider struct {
	client         *openai.Client
	model          string
	maxTokens      int
	responseTokens int
	assembler      *prompt.Assembler
	est            tokens.Estimator
	thumbs         ThumbnailStore
	transcript     *Transcript
	logger         *log.Logger
}

func NewOpenAIProvider(cfg config.Config, thumbs ThumbnailStore, logger *log.Logger) (*OpenAIProvider, error) {
	if logger == nil {
		logger = log.Default()
	}

	clientCfg := openai.DefaultConfig(cfg.OpenAI.APIKey)
	if cfg.OpenAI.BaseURL != "" {
		clientCfg.BaseURL = cfg.OpenAI.BaseURL
	}

	est, err := tokens.NewTiktokenEstimator(cfg.OpenAI.Model)
	if err != nil {
		return nil, fmt.Errorf("openai tokenizer: %w", err)
	}

	return &OpenAIProvider{
		client:         openai.NewClientWithConfig(clientCfg),
		model:          cfg.OpenAI.Model,
		maxTokens:      cfg.AI.TokenLimit,
		responseTokens: cfg.AI.ResponseTokens,
		assembler:      prompt.NewAssembler(cfg, est),
		est:            est,
		thumbs:         thumbs,
		transcript:     NewTranscript(cfg.AI.TranscriptPath, logger),
		logger:         logger,
	}, nil
}

func (p *OpenAIProvider) AnalyzeDocument(ctx context.Context, req Request) Result {
	if p.client == nil {
		return failure(ErrProviderUnavailable)
	}

	cacheThumbnail(ctx, p.thumbs, req.DocumentID, p.logger)

	system, err := p.assembler.System(prompt.Context{
		ExistingTags:           req.ExistingTags,
		ExistingCorrespondents: req.ExistingCorrespondents,
		ExistingDocumentTypes:  req.ExistingDocumentTypes,
		CustomPrompt:           req.CustomPrompt,
		ExternalData:           req.ExternalData,
	})
	if err != nil {
		return failure(fmt.Errorf("assemble prompt: %w", err))
	}

	return p.analyze(ctx, "analyze", system, req.Content, documentSchema)
}

func (p *OpenAIProvider) AnalyzePlayground(ctx context.Context, content, instruction string) Result {
	if p.client == nil {
		return failure(ErrProviderUnavailable)
	}
	return p.analyze(ctx, "playground", p.assembler.Playground(instruction), content, playgroundSchema)
}

func (p *OpenAIProvider) analyze(ctx context.Context, kind, system, content string, schema json.RawMessage) Result {
	fitted, truncated, err := fitContent(content, system, p.assembler.User(""), p.est, p.maxTokens, p.responseTokens)
	if err != nil {
		return failure(err)
	}
	user := p.assembler.User(fitted)

	raw, usage, err := p.complete(ctx, system, user, schema, defaultTemperature, 0)
	p.transcript.Record(kind, system, user, raw)
	if err != nil {
		return failure(fmt.Errorf("openai completion: %w", err))
	}

	doc, err := NormalizeStructured(raw)
	if err != nil {
		return failure(err)
	}

	return Result{Document: doc, Usage: usage, Truncated: truncated}
}

func (p *OpenAIProvider) GenerateText(ctx context.Context, promptText string, opts GenerateOptions) (string, error) {
	if p.client == nil {
		return "", ErrProviderUnavailable
	}

	temperature := opts.Temperature
	if temperature == 0 {
		temperature = defaultTemperature
	}

	raw, _, err := p.complete(ctx, "", promptText, nil, temperature, opts.MaxTokens)
	p.transcript.Record("generate", "", promptText, raw)
	if err != nil {
		return "", fmt.Errorf("openai completion: %w", err)
	}
	return raw, nil
}

func (p *OpenAIProvider) CheckStatus(ctx context.Context) Status {
	if p.client == nil {
		return Status{Status: "error", Error: ErrProviderUnavailable.Error()}
	}

	_, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     p.model,
		MaxTokens: 1,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: "ping"},
		},
	})
	if err != nil {
		return Status{Status: "error", Error: err.Error()}
	}
	return Status{Status: "ok", Model: p.model}
}

func (p *OpenAIProvider) complete(ctx context.Context, system, user string, schema json.RawMessage, temperature float64, maxTokens int) (string, Usage, error) {
	req := openai.ChatCompletionRequest{
		Model:       p.model,
		Temperature: float32(temperature),
		MaxTokens:   maxTokens,
	}
	if system != "" {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: system,
		})
	}
	req.Messages = append(req.Messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: user,
	})

	if schema != nil {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   "document_analysis",
				Schema: schema,
			},
		}
	}

	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", Usage{}, err
	}
	if len(resp.Choices) == 0 {
		return "", Usage{}, fmt.Errorf("chat completion returned no choices")
	}

	usage := Usage{
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
	}
	return resp.Choices[0].Message.Content, usage, nil
}

var _ Provider = (*OpenAIProvider)(nil)
