package badger

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/picmatch/core"
	"github.com/poiesic/picmatch/storage"
)

// CatalogRepository implements storage.CatalogRepository for BadgerDB.
// Every record value carries the sequence number of its first insertion,
// which LoadCatalog uses to restore insertion order.
type CatalogRepository struct {
	backend *Backend
	seq     *badger.Sequence
}

var _ storage.CatalogRepository = (*CatalogRepository)(nil)

// NewCatalogRepository creates a new CatalogRepository.
func NewCatalogRepository(backend *Backend) (*CatalogRepository, error) {
	seq, err := backend.GetSequence(catalogSeq)
	if err != nil {
		return nil, err
	}

	return &CatalogRepository{
		backend: backend,
		seq:     seq,
	}, nil
}

// Close releases the insertion sequence.
func (r *CatalogRepository) Close() error {
	return r.seq.Release()
}

// Apply executes all mutations in change within one transaction.
func (r *CatalogRepository) Apply(ctx context.Context, change *storage.Change) error {
	if change.IsEmpty() {
		return nil
	}

	return r.backend.WithTx(func(tx *badger.Txn) error {
		for _, id := range change.DeleteDescriptions {
			if err := deleteExisting(tx, makeDescriptionKey(id)); err != nil {
				return fmt.Errorf("description %q: %w", id, err)
			}
		}
		for _, name := range change.DeleteImages {
			if err := deleteExisting(tx, makeImageKey(name)); err != nil {
				return fmt.Errorf("image %q: %w", name, err)
			}
		}
		for _, name := range change.DeleteMappings {
			if err := deleteExisting(tx, makeMappingKey(name)); err != nil {
				return fmt.Errorf("mapping %q: %w", name, err)
			}
		}

		for _, desc := range change.PutDescriptions {
			if err := r.putOrdered(tx, makeDescriptionKey(desc.Id), storage.MarshalDescription(desc)); err != nil {
				return err
			}
		}
		for _, image := range change.PutImages {
			if err := r.putOrdered(tx, makeImageKey(image.Name), storage.MarshalImage(image)); err != nil {
				return err
			}
		}
		for _, mapping := range change.PutMappings {
			if err := r.putOrdered(tx, makeMappingKey(mapping.ImageName), storage.MarshalMapping(mapping)); err != nil {
				return err
			}
		}

		return tx.Commit()
	}, true)
}

// LoadCatalog returns every stored record, each collection in insertion order.
func (r *CatalogRepository) LoadCatalog(ctx context.Context) (*core.Catalog, error) {
	descriptions, err := loadOrdered(ctx, r.backend, descriptionPrefix, storage.UnmarshalDescription)
	if err != nil {
		return nil, err
	}
	images, err := loadOrdered(ctx, r.backend, imagePrefix, storage.UnmarshalImage)
	if err != nil {
		return nil, err
	}
	mappings, err := loadOrdered(ctx, r.backend, mappingPrefix, storage.UnmarshalMapping)
	if err != nil {
		return nil, err
	}

	return &core.Catalog{
		Descriptions: descriptions,
		Images:       images,
		Mappings:     mappings,
	}, nil
}

// ReplaceCatalog discards all stored records and writes catalog in its place.
func (r *CatalogRepository) ReplaceCatalog(ctx context.Context, catalog *core.Catalog) error {
	prefixes := [][]byte{
		[]byte(descriptionPrefix),
		[]byte(imagePrefix),
		[]byte(mappingPrefix),
	}

	return r.backend.Replace(ctx, prefixes, func(set func(key, value []byte) error) error {
		if catalog == nil {
			return nil
		}
		for i := range catalog.Descriptions {
			desc := &catalog.Descriptions[i]
			if err := r.setOrdered(set, makeDescriptionKey(desc.Id), storage.MarshalDescription(desc)); err != nil {
				return err
			}
		}
		for i := range catalog.Images {
			image := &catalog.Images[i]
			if err := r.setOrdered(set, makeImageKey(image.Name), storage.MarshalImage(image)); err != nil {
				return err
			}
		}
		for i := range catalog.Mappings {
			mapping := &catalog.Mappings[i]
			if err := r.setOrdered(set, makeMappingKey(mapping.ImageName), storage.MarshalMapping(mapping)); err != nil {
				return err
			}
		}
		return nil
	})
}

// nextSeq returns the next insertion sequence number.
func (r *CatalogRepository) nextSeq() (uint64, error) {
	next, err := r.seq.Next()
	if err != nil {
		return 0, err
	}
	// BadgerDB sequences can return 0 on first call, so we skip it
	if next == 0 {
		return r.seq.Next()
	}
	return next, nil
}

// putOrdered stores payload under key, keeping the sequence of an existing record.
func (r *CatalogRepository) putOrdered(tx *badger.Txn, key, payload []byte) error {
	var seq uint64
	item, err := tx.Get(key)
	switch {
	case errors.Is(err, badger.ErrKeyNotFound):
		seq, err = r.nextSeq()
		if err != nil {
			return err
		}
	case err != nil:
		return err
	default:
		err = item.Value(func(val []byte) error {
			var err error
			seq, _, err = storage.UnmarshalOrdered(val)
			return err
		})
		if err != nil {
			return err
		}
	}
	return tx.Set(key, storage.MarshalOrdered(seq, payload))
}

func (r *CatalogRepository) setOrdered(set func(key, value []byte) error, key, payload []byte) error {
	seq, err := r.nextSeq()
	if err != nil {
		return err
	}
	return set(key, storage.MarshalOrdered(seq, payload))
}

// deleteExisting deletes key, returning storage.ErrNotFound if it does not exist.
func deleteExisting(tx *badger.Txn, key []byte) error {
	_, err := tx.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return storage.ErrNotFound
	}
	if err != nil {
		return err
	}
	return tx.Delete(key)
}

type ordered[T any] struct {
	seq    uint64
	record T
}

// loadOrdered decodes every record under prefix and sorts them by insertion sequence.
func loadOrdered[T any](ctx context.Context, backend *Backend, prefix string, decode func([]byte) (*T, error)) ([]T, error) {
	var items []ordered[T]
	err := backend.ForEachWithPrefix(ctx, []byte(prefix), func(_, value []byte) error {
		seq, payload, err := storage.UnmarshalOrdered(value)
		if err != nil {
			return err
		}
		record, err := decode(payload)
		if err != nil {
			return err
		}
		items = append(items, ordered[T]{seq: seq, record: *record})
		return nil
	})
	if err != nil {
		return nil, err
	}

	slices.SortFunc(items, func(a, b ordered[T]) int {
		return cmp.Compare(a.seq, b.seq)
	})

	result := make([]T, len(items))
	for i, item := range items {
		result[i] = item.record
	}
	return result, nil
}
