// Package archive is a client for the document archive's REST API: document
// metadata and content, the tag taxonomy, and cached thumbnail images.
package archive

import (
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

type Client struct {
	baseURL  string
	token    string
	imageDir string
	client   *http.Client
	logger   *log.Logger
}

// Document is the archive's metadata record. Tags and correspondent are
// numeric ids; names resolve through the tag cache and correspondent list.
type Document struct {
	ID            int    `json:"id"`
	Title         string `json:"title"`
	Created       string `json:"created"`
	Correspondent int    `json:"correspondent"`
	Tags          []int  `json:"tags"`
}

func NewClient(cfg config.Config, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.Default()
	}
	return &Client{
		baseURL:  strings.TrimRight(cfg.Archive.BaseURL, "/"),
		token:    cfg.Archive.Token,
		imageDir: cfg.Archive.ImageDir,
		client:   &http.Client{Timeout: 30 * time.Second},
		logger:   logger,
	}
}

func (c *Client) GetDocument(ctx context.Context, id int) (Document, error) {
	var doc Document
	if err := c.getJSON(ctx, fmt.Sprintf("/api/documents/%d/", id), &doc); err != nil {
		return Document{}, fmt.Errorf("fetch document %d: %w", id, err)
	}
	return doc, nil
}

func (c *Client) GetContent(ctx context.Context, id int) (string, error) {
	var payload struct {
		Content string `json:"content"`
	}
	if err := c.getJSON(ctx, fmt.Sprintf("/api/documents/%d/", id), &payload); err != nil {
		return "", fmt.Errorf("fetch content of document %d: %w", id, err)
	}
	return payload.Content, nil
}

func (c *Client) getJSON(ctx context.Context, path string, dst any) error {
	body, err := c.get(ctx, path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Token "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call archive API: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		if len(body) > 0 {
			return nil, fmt.Errorf("archive API error: %s", string(body))
		}
		return nil, fmt.Errorf("archive API returned status %s", resp.Status)
	}

	return body, nil
}
