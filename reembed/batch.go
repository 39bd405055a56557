package reembed

import (
	"context"
	"fmt"
	"time"

	"github.com/poiesic/picmatch/ai"
	"github.com/poiesic/picmatch/core"
)

// BatchProcessor turns batches of descriptions into normalized embeddings.
type BatchProcessor struct {
	embedder       ai.Embedder
	model          string
	maxRetries     int
	retryBaseDelay time.Duration
}

// NewBatchProcessor creates a new batch processor.
// model: name recorded on every produced embedding
// maxRetries: maximum number of attempts for embedding API calls (minimum 1)
// retryBaseDelay: base delay for exponential backoff
func NewBatchProcessor(embedder ai.Embedder, model string, maxRetries int, retryBaseDelay time.Duration) *BatchProcessor {
	if maxRetries < 1 {
		maxRetries = 1
	}
	return &BatchProcessor{
		embedder:       embedder,
		model:          model,
		maxRetries:     maxRetries,
		retryBaseDelay: retryBaseDelay,
	}
}

// Model returns the model name stamped on produced embeddings.
func (bp *BatchProcessor) Model() string {
	return bp.model
}

// Embed generates embeddings for a batch of descriptions, in input order.
// Vectors are normalized so cosine similarity reduces to a dot product.
// Each embedding carries the description's text fingerprint so callers
// can tell when it goes stale.
func (bp *BatchProcessor) Embed(ctx context.Context, descriptions []core.Description) ([]*core.StoredEmbedding, error) {
	if len(descriptions) == 0 {
		return nil, nil
	}

	texts := make([]string, len(descriptions))
	for i := range descriptions {
		texts[i] = descriptions[i].Text
	}

	var embeddings [][]float32
	err := RetryWithBackoff(ctx, func() error {
		var err error
		embeddings, err = bp.embedder.EmbedTexts(ctx, texts)
		if err == nil && len(embeddings) != len(texts) {
			return Permanent(fmt.Errorf("%w: expected %d, got %d", ErrEmbeddingCountMismatch, len(texts), len(embeddings)))
		}
		return err
	}, bp.maxRetries, bp.retryBaseDelay)
	if err != nil {
		return nil, fmt.Errorf("failed to generate embeddings after %d attempts: %w", bp.maxRetries, err)
	}

	now := time.Now().UTC()
	result := make([]*core.StoredEmbedding, len(descriptions))
	for i := range descriptions {
		vector := NormalizeVector(embeddings[i])
		if !IsUsable(vector) {
			return nil, fmt.Errorf("%w: description %s", ErrUnusableVector, descriptions[i].Id)
		}
		result[i] = &core.StoredEmbedding{
			DescriptionId: descriptions[i].Id,
			Fingerprint:   descriptions[i].TextFingerprint(),
			Model:         bp.model,
			Vector:        vector,
			UpdatedAt:     now,
		}
	}
	return result, nil
}

// EmbedEach embeds descriptions one at a time, so a single bad entry cannot
// sink its neighbours. Failed entries are nil in the result and their
// errors are returned keyed by description id. Context errors abort.
func (bp *BatchProcessor) EmbedEach(ctx context.Context, descriptions []core.Description) ([]*core.StoredEmbedding, map[string]error, error) {
	result := make([]*core.StoredEmbedding, len(descriptions))
	failures := make(map[string]error)
	for i := range descriptions {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		embedded, err := bp.Embed(ctx, descriptions[i:i+1])
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, nil, ctxErr
			}
			failures[descriptions[i].Id] = err
			continue
		}
		result[i] = embedded[0]
	}
	return result, failures, nil
}
