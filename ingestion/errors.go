package ingestion

import "errors"

var (
	// ErrCatalogRequired is returned when a catalog is not provided.
	ErrCatalogRequired = errors.New("catalog required")

	// ErrTokenizerRequired is returned when a nil tokenizer is configured.
	ErrTokenizerRequired = errors.New("tokenizer required")
)
