package badger

import (
	"context"
	"errors"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/picmatch/core"
	"github.com/poiesic/picmatch/storage"
)

// embeddingsPerTx bounds the number of vectors written per transaction.
const embeddingsPerTx = 256

// EmbeddingRepository implements storage.EmbeddingRepository for BadgerDB.
type EmbeddingRepository struct {
	backend *Backend
}

var _ storage.EmbeddingRepository = (*EmbeddingRepository)(nil)

// NewEmbeddingRepository creates a new EmbeddingRepository.
func NewEmbeddingRepository(backend *Backend) *EmbeddingRepository {
	return &EmbeddingRepository{
		backend: backend,
	}
}

// Close is a no-op; the backend owns the database handle.
func (r *EmbeddingRepository) Close() error {
	return nil
}

// SaveEmbeddings inserts or replaces embeddings keyed by description id.
func (r *EmbeddingRepository) SaveEmbeddings(ctx context.Context, embeddings ...*core.StoredEmbedding) error {
	for start := 0; start < len(embeddings); start += embeddingsPerTx {
		end := min(start+embeddingsPerTx, len(embeddings))
		chunk := embeddings[start:end]

		err := r.backend.WithTx(func(tx *badger.Txn) error {
			for _, embedding := range chunk {
				if embedding.UpdatedAt.IsZero() {
					embedding.UpdatedAt = time.Now().UTC()
				}
				key := makeEmbeddingKey(embedding.DescriptionId)
				if err := tx.Set(key, storage.MarshalEmbedding(embedding)); err != nil {
					return err
				}
			}
			return tx.Commit()
		}, true)
		if err != nil {
			return err
		}
	}
	return nil
}

// GetEmbeddings returns the stored embeddings for the given description ids.
func (r *EmbeddingRepository) GetEmbeddings(ctx context.Context, ids ...string) (map[string]*core.StoredEmbedding, error) {
	result := make(map[string]*core.StoredEmbedding, len(ids))
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		for _, id := range ids {
			item, err := tx.Get(makeEmbeddingKey(id))
			if errors.Is(err, badger.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			err = item.Value(func(val []byte) error {
				embedding, err := storage.UnmarshalEmbedding(val)
				if err != nil {
					return err
				}
				result[id] = embedding
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// DeleteEmbeddings removes embeddings. Missing ids are ignored.
func (r *EmbeddingRepository) DeleteEmbeddings(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	return r.backend.WithTx(func(tx *badger.Txn) error {
		for _, id := range ids {
			if err := tx.Delete(makeEmbeddingKey(id)); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
}

// ForEachEmbedding calls fn for every stored embedding in key order.
func (r *EmbeddingRepository) ForEachEmbedding(ctx context.Context, fn func(*core.StoredEmbedding) error) error {
	return r.backend.ForEachWithPrefix(ctx, []byte(embeddingPrefix), func(_, value []byte) error {
		embedding, err := storage.UnmarshalEmbedding(value)
		if err != nil {
			return err
		}
		return fn(embedding)
	})
}
