package llm

import (
	"context"
	"log"

	"github.com/fabfab/papermind/tokens"
)

// fitContent truncates document content so the whole request fits the token
// budget. The overhead is the assembled system prompt plus the empty user
// scaffold; ComputeBudget aborts when that overhead alone fills the window.
func fitContent(content, system, userScaffold string, est tokens.Estimator, maxTokens, responseTokens int) (string, bool, error) {
	overhead := est.Estimate(system) + est.Estimate(userScaffold)
	budget, err := tokens.ComputeBudget(overhead, maxTokens, responseTokens)
	if err != nil {
		return "", false, err
	}

	fitted := tokens.Truncate(content, budget.AvailableTokens, est)
	return fitted, len(fitted) < len(content), nil
}

// cacheThumbnail makes sure a preview image exists for the document. This is
// orthogonal I/O kept inside the analysis call for locality; failures are
// logged and never affect the result.
func cacheThumbnail(ctx context.Context, thumbs ThumbnailStore, documentID int, logger *log.Logger) {
	if thumbs == nil || documentID == 0 {
		return
	}
	if err := thumbs.EnsureThumbnail(ctx, documentID); err != nil {
		logger.Printf("thumbnail cache for document %d: %v", documentID, err)
	}
}
