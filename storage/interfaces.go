package storage

import (
	"context"

	"github.com/poiesic/picmatch/core"
)

// Repository provides common storage operations shared across all repositories.
// Implementations must be thread-safe and support concurrent access.
type Repository interface {
	// Close releases resources held by the repository.
	Close() error
}

// Change is a set of catalog mutations applied atomically.
// Deletions are applied before insertions.
type Change struct {
	PutDescriptions    []*core.Description
	DeleteDescriptions []string
	PutImages          []*core.Image
	DeleteImages       []string
	PutMappings        []*core.Mapping
	DeleteMappings     []string // image names
}

// IsEmpty reports whether the change carries no mutations.
func (c *Change) IsEmpty() bool {
	return c == nil || (len(c.PutDescriptions) == 0 && len(c.DeleteDescriptions) == 0 &&
		len(c.PutImages) == 0 && len(c.DeleteImages) == 0 &&
		len(c.PutMappings) == 0 && len(c.DeleteMappings) == 0)
}

// CatalogRepository persists descriptions, images and mappings.
type CatalogRepository interface {
	Repository

	// Apply executes all mutations in change within one transaction.
	// Records that already exist are replaced and keep their original insertion position.
	// Returns ErrNotFound if a deletion targets a missing record; nothing is applied in that case.
	Apply(ctx context.Context, change *Change) error

	// LoadCatalog returns every stored record, each collection in insertion order.
	LoadCatalog(ctx context.Context) (*core.Catalog, error)

	// ReplaceCatalog discards all stored records and writes catalog in its place.
	ReplaceCatalog(ctx context.Context, catalog *core.Catalog) error
}

// EmbeddingRepository persists description embeddings across runs.
type EmbeddingRepository interface {
	Repository

	// SaveEmbeddings inserts or replaces embeddings keyed by description id.
	SaveEmbeddings(ctx context.Context, embeddings ...*core.StoredEmbedding) error

	// GetEmbeddings returns the stored embeddings for the given description ids.
	// Missing ids are omitted from the result (no error).
	GetEmbeddings(ctx context.Context, ids ...string) (map[string]*core.StoredEmbedding, error)

	// DeleteEmbeddings removes embeddings. Missing ids are ignored.
	DeleteEmbeddings(ctx context.Context, ids ...string) error

	// ForEachEmbedding calls fn for every stored embedding in key order.
	// Iteration stops at the first error returned by fn.
	ForEachEmbedding(ctx context.Context, fn func(*core.StoredEmbedding) error) error
}
