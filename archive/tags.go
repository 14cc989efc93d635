package archive

import (
	"context"
	"fmt"
	"net/url"
	"sync"
)

type Tag struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type tagPage struct {
	Next    string `json:"next"`
	Results []Tag  `json:"results"`
}

// ListTags walks the paginated tag endpoint and returns the full taxonomy.
func (c *Client) ListTags(ctx context.Context) ([]Tag, error) {
	tags := make([]Tag, 0)
	path := "/api/tags/?page=1"

	for path != "" {
		var page tagPage
		if err := c.getJSON(ctx, path, &page); err != nil {
			return nil, fmt.Errorf("list tags: %w", err)
		}
		tags = append(tags, page.Results...)

		next, err := nextPagePath(page.Next)
		if err != nil {
			return nil, err
		}
		path = next
	}

	return tags, nil
}

func nextPagePath(raw string) (string, error) {
	if raw == "" {
		return "", nil
	}
	next, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse next page url: %w", err)
	}
	path := next.Path
	if next.RawQuery != "" {
		path += "?" + next.RawQuery
	}
	return path, nil
}

// TagCache lazily maps numeric tag ids to names. It populates itself once
// on first use; consumers treat it as read-only.
type TagCache struct {
	client *Client

	mu   sync.RWMutex
	tags map[int]Tag
}

func NewTagCache(client *Client) *TagCache {
	return &TagCache{client: client}
}

// Resolve translates tag ids into names, skipping ids the archive does not
// know about.
func (tc *TagCache) Resolve(ctx context.Context, ids []int) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	if err := tc.ensure(ctx); err != nil {
		return nil, err
	}

	tc.mu.RLock()
	defer tc.mu.RUnlock()

	names := make([]string, 0, len(ids))
	for _, id := range ids {
		if tag, ok := tc.tags[id]; ok {
			names = append(names, tag.Name)
		}
	}
	return names, nil
}

func (tc *TagCache) ensure(ctx context.Context) error {
	tc.mu.RLock()
	loaded := tc.tags != nil
	tc.mu.RUnlock()
	if loaded {
		return nil
	}

	tc.mu.Lock()
	defer tc.mu.Unlock()
	if tc.tags != nil {
		return nil
	}

	tags, err := tc.client.ListTags(ctx)
	if err != nil {
		return err
	}

	byID := make(map[int]Tag, len(tags))
	for _, tag := range tags {
		byID[tag.ID] = tag
	}
	tc.tags = byID
	return nil
}
