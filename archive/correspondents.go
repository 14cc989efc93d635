package archive

import (
	"context"
	"fmt"
	"sync"
)

type Correspondent struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type correspondentPage struct {
	Next    string          `json:"next"`
	Results []Correspondent `json:"results"`
}

// ListCorrespondents walks the paginated correspondent endpoint.
func (c *Client) ListCorrespondents(ctx context.Context) ([]Correspondent, error) {
	correspondents := make([]Correspondent, 0)
	path := "/api/correspondents/?page=1"

	for path != "" {
		var page correspondentPage
		if err := c.getJSON(ctx, path, &page); err != nil {
			return nil, fmt.Errorf("list correspondents: %w", err)
		}
		correspondents = append(correspondents, page.Results...)

		next, err := nextPagePath(page.Next)
		if err != nil {
			return nil, err
		}
		path = next
	}

	return correspondents, nil
}

// CorrespondentCache lazily maps a numeric correspondent id to its name,
// populating itself once on first use.
type CorrespondentCache struct {
	client *Client

	mu    sync.RWMutex
	names map[int]string
}

func NewCorrespondentCache(client *Client) *CorrespondentCache {
	return &CorrespondentCache{client: client}
}

// Resolve translates a correspondent id into its name. Unknown ids resolve
// to an empty name, not an error.
func (cc *CorrespondentCache) Resolve(ctx context.Context, id int) (string, error) {
	if id == 0 {
		return "", nil
	}
	if err := cc.ensure(ctx); err != nil {
		return "", err
	}

	cc.mu.RLock()
	defer cc.mu.RUnlock()
	return cc.names[id], nil
}

func (cc *CorrespondentCache) ensure(ctx context.Context) error {
	cc.mu.RLock()
	loaded := cc.names != nil
	cc.mu.RUnlock()
	if loaded {
		return nil
	}

	cc.mu.Lock()
	defer cc.mu.Unlock()
	if cc.names != nil {
		return nil
	}

	correspondents, err := cc.client.ListCorrespondents(ctx)
	if err != nil {
		return err
	}

	byID := make(map[int]string, len(correspondents))
	for _, correspondent := range correspondents {
		byID[correspondent.ID] = correspondent.Name
	}
	cc.names = byID
	return nil
}
