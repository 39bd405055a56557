package reembed

import (
	"context"

	"github.com/poiesic/picmatch/core"
	"github.com/poiesic/picmatch/storage"
)

// VectorStats describes the persistent embedding store relative to the
// catalog.
type VectorStats struct {
	Descriptions int            // descriptions in the catalog
	Stored       int            // embeddings in the store
	Current      int            // stored embeddings matching text and model
	Stale        int            // stored embeddings for changed text or another model
	Missing      int            // descriptions without any stored embedding
	Orphaned     int            // stored embeddings for deleted descriptions
	Dimensions   int            // vector length of the most recent current embedding
	Models       map[string]int // stored embedding count per model
}

// CollectStats compares the embedding store against the catalog.
func CollectStats(ctx context.Context, source DescriptionSource, repo storage.EmbeddingRepository, model string) (*VectorStats, error) {
	if repo == nil {
		return nil, ErrRepositoryRequired
	}

	descriptions := source.Descriptions()
	byID := make(map[string]*core.Description, len(descriptions))
	for i := range descriptions {
		byID[descriptions[i].Id] = &descriptions[i]
	}

	stats := &VectorStats{
		Descriptions: len(descriptions),
		Models:       make(map[string]int),
	}
	seen := make(map[string]struct{}, len(descriptions))

	err := repo.ForEachEmbedding(ctx, func(e *core.StoredEmbedding) error {
		stats.Stored++
		stats.Models[e.Model]++

		d, ok := byID[e.DescriptionId]
		if !ok {
			stats.Orphaned++
			return nil
		}
		seen[e.DescriptionId] = struct{}{}
		if isCurrent(e, d, model) {
			stats.Current++
			stats.Dimensions = len(e.Vector)
		} else {
			stats.Stale++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	stats.Missing = len(byID) - len(seen)
	return stats, nil
}
