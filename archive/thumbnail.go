package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// EnsureThumbnail caches the document's preview image on local disk,
// fetching it at most once per id. Concurrent writers racing on the same id
// are harmless: both write the same bytes.
func (c *Client) EnsureThumbnail(ctx context.Context, documentID int) error {
	if c.imageDir == "" {
		return nil
	}

	path := filepath.Join(c.imageDir, fmt.Sprintf("%d.png", documentID))
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	data, err := c.get(ctx, fmt.Sprintf("/api/documents/%d/thumb/", documentID))
	if err != nil {
		return fmt.Errorf("fetch thumbnail for document %d: %w", documentID, err)
	}

	if err := os.MkdirAll(c.imageDir, 0o755); err != nil {
		return fmt.Errorf("create thumbnail dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write thumbnail: %w", err)
	}
	return nil
}
