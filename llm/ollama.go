package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/fabfab/papermind/config"
	"github.com/fabfab/papermind/prompt"
	"github.com/fabfab/papermind/tokens"
)

// OllamaProvider is the free-text variant: the model returns prose from
// which JSON is recovered heuristically. Analysis calls still send a format
// schema to nudge the model, but the output is never trusted as shaped.
type OllamaProvider struct {
	host           string
	model          string
	client         *http.Client
	numCtxMax      int
	responseTokens int
	temperature    float64
	topP           float64
	assembler      *prompt.Assembler
	est            tokens.Estimator
	thumbs         ThumbnailStore
	transcript     *Transcript
	logger         *log.Logger
}

type ollamaGenerateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	System  string          `json:"system,omitempty"`
	Stream  bool            `json:"stream"`
	Format  json.RawMessage `json:"format,omitempty"`
	Options ollamaOptions   `json:"options"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"top_p"`
	NumPredict  int     `json:"num_predict"`
	NumCtx      int     `json:"num_ctx"`
}

type ollamaGenerateResponse struct {
	Response        json.RawMessage `json:"response"`
	Error           string          `json:"error"`
	PromptEvalCount int             `json:"prompt_eval_count"`
	EvalCount       int             `json:"eval_count"`
}

type ollamaPsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

func NewOllamaProvider(cfg config.Config, thumbs ThumbnailStore, logger *log.Logger) *OllamaProvider {
	if logger == nil {
		logger = log.Default()
	}

	host := strings.TrimRight(cfg.Ollama.Host, "/")
	if host == "" {
		host = "http://localhost:11434"
	}

	est := tokens.RatioEstimator{}
	return &OllamaProvider{
		host:           host,
		model:          cfg.Ollama.Model,
		client:         &http.Client{Timeout: 120 * time.Second},
		numCtxMax:      cfg.Ollama.NumCtxMax,
		responseTokens: cfg.AI.ResponseTokens,
		temperature:    cfg.Ollama.Temperature,
		topP:           cfg.Ollama.TopP,
		assembler:      prompt.NewAssembler(cfg, est),
		est:            est,
		thumbs:         thumbs,
		transcript:     NewTranscript(cfg.AI.TranscriptPath, logger),
		logger:         logger,
	}
}

func (p *OllamaProvider) AnalyzeDocument(ctx context.Context, req Request) Result {
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

func (p *OllamaProvider) AnalyzePlayground(ctx context.Context, content, instruction string) Result {
	return p.analyze(ctx, "playground", p.assembler.Playground(instruction), content, playgroundSchema)
}

func (p *OllamaProvider) analyze(ctx context.Context, kind, system, content string, schema json.RawMessage) Result {
	// The model's own context window is the hard limit here, not the
	// global token limit used by the hosted backend.
	fitted, truncated, err := fitContent(content, system, p.assembler.User(""), p.est, p.numCtxMax, p.responseTokens)
	if err != nil {
		return failure(err)
	}
	user := p.assembler.User(fitted)

	raw, usage, err := p.generate(ctx, system, user, schema, p.temperature, p.responseTokens)
	p.transcript.Record(kind, system, user, raw)
	if err != nil {
		return failure(fmt.Errorf("ollama generate: %w", err))
	}

	return Result{Document: NormalizeFreeText(raw, p.logger), Usage: usage, Truncated: truncated}
}

func (p *OllamaProvider) GenerateText(ctx context.Context, promptText string, opts GenerateOptions) (string, error) {
	temperature := opts.Temperature
	if temperature == 0 {
		temperature = p.temperature
	}
	numPredict := opts.MaxTokens
	if numPredict == 0 {
		numPredict = p.responseTokens
	}

	raw, _, err := p.generate(ctx, "", promptText, nil, temperature, numPredict)
	p.transcript.Record("generate", "", promptText, raw)
	if err != nil {
		return "", fmt.Errorf("ollama generate: %w", err)
	}
	return raw, nil
}

func (p *OllamaProvider) CheckStatus(ctx context.Context) Status {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.host+"/api/ps", nil)
	if err != nil {
		return Status{Status: "error", Error: err.Error()}
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return Status{Status: "error", Error: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return Status{Status: "error", Error: fmt.Sprintf("ollama returned status %s", resp.Status)}
	}

	var parsed ollamaPsResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return Status{Status: "error", Error: err.Error()}
	}

	return Status{Status: "ok", Model: p.model}
}

func (p *OllamaProvider) generate(ctx context.Context, system, promptText string, schema json.RawMessage, temperature float64, numPredict int) (string, Usage, error) {
	numCtx := p.est.Estimate(system) + p.est.Estimate(promptText) + numPredict
	if numCtx > p.numCtxMax {
		numCtx = p.numCtxMax
	}

	payload := ollamaGenerateRequest{
		Model:  p.model,
		Prompt: promptText,
		System: system,
		Stream: false,
		Format: schema,
		Options: ollamaOptions{
			Temperature: temperature,
			TopP:        p.topP,
			NumPredict:  numPredict,
			NumCtx:      numCtx,
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", Usage{}, fmt.Errorf("marshal ollama request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.host+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", Usage{}, fmt.Errorf("create ollama request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", Usage{}, fmt.Errorf("call ollama generate API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		data, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return "", Usage{}, fmt.Errorf("read ollama error body: %w", readErr)
		}
		if len(data) > 0 {
			return "", Usage{}, fmt.Errorf("ollama generate API error: %s", string(data))
		}
		return "", Usage{}, fmt.Errorf("ollama generate API returned status %s", resp.Status)
	}

	var parsed ollamaGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", Usage{}, fmt.Errorf("decode ollama response: %w", err)
	}
	if parsed.Error != "" {
		return "", Usage{}, fmt.Errorf("ollama generate error: %s", parsed.Error)
	}

	// Usage stays zero-filled when the backend omits eval counts.
	usage := Usage{
		PromptTokens:     parsed.PromptEvalCount,
		CompletionTokens: parsed.EvalCount,
		TotalTokens:      parsed.PromptEvalCount + parsed.EvalCount,
	}
	return decodeResponseText(parsed.Response), usage, nil
}

// decodeResponseText handles the response field being either a JSON string
// or, when a format schema was supplied, a JSON object.
func decodeResponseText(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

var _ Provider = (*OllamaProvider)(nil)
