// Package rag answers natural-language questions about the document corpus
// by combining the retrieval service with an AI provider.
package rag

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
)

// Client talks to the retrieval service, which owns indexing, embeddings
// and vector search.
type Client struct {
	baseURL string
	client  *http.Client
	logger  *log.Logger
}

func NewClient(cfg config.Config, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.RAG.BaseURL, "/"),
		client:  &http.Client{Timeout: 60 * time.Second},
		logger:  logger,
	}
}

// Status never fails: transport errors synthesize a down response.
func (c *Client) Status(ctx context.Context) StatusResponse {
	var status StatusResponse
	if err := c.call(ctx, http.MethodGet, "/status", nil, &status); err != nil {
		return StatusResponse{Error: err.Error()}
	}
	status.ServerUp = true
	return status
}

func (c *Client) Search(ctx context.Context, query string, filters map[string]any) ([]SearchResult, error) {
	payload := map[string]any{"query": query}
	for key, value := range filters {
		payload[key] = value
	}

	var results []SearchResult
	if err := c.call(ctx, http.MethodPost, "/search", payload, &results); err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	return results, nil
}

func (c *Client) Context(ctx context.Context, question string, maxSources int) (ContextResponse, error) {
	payload := map[string]any{
		"question":    question,
		"max_sources": maxSources,
	}

	var resp ContextResponse
	if err := c.call(ctx, http.MethodPost, "/context", payload, &resp); err != nil {
		return ContextResponse{}, fmt.Errorf("fetch context: %w", err)
	}
	return resp, nil
}

// Administrative endpoints are passed through untouched.

func (c *Client) StartIndexing(ctx context.Context, force, background bool) (json.RawMessage, error) {
	return c.passthrough(ctx, http.MethodPost, "/indexing/start", map[string]any{"force": force, "background": background})
}

func (c *Client) CheckIndexing(ctx context.Context) (json.RawMessage, error) {
	return c.passthrough(ctx, http.MethodPost, "/indexing/check", nil)
}

func (c *Client) IndexingStatus(ctx context.Context) (json.RawMessage, error) {
	return c.passthrough(ctx, http.MethodGet, "/indexing/status", nil)
}

func (c *Client) Initialize(ctx context.Context, force bool) (json.RawMessage, error) {
	return c.passthrough(ctx, http.MethodPost, "/initialize", map[string]any{"force": force})
}

func (c *Client) passthrough(ctx context.Context, method, path string, payload any) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := c.call(ctx, method, path, payload, &raw); err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	return raw, nil
}

func (c *Client) call(ctx context.Context, method, path string, payload, dst any) error {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("call retrieval service: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		if len(data) > 0 {
			return fmt.Errorf("retrieval service error: %s", string(data))
		}
		return fmt.Errorf("retrieval service returned status %s", resp.Status)
	}

	if dst != nil {
		if err := json.Unmarshal(data, dst); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
