package similarity

import "errors"

var (
	// ErrEmbeddingFailed is returned when a query cannot be embedded.
	ErrEmbeddingFailed = errors.New("embedding failed")

	// ErrEmbedderRequired is returned when a semantic backend is built without an embedder.
	ErrEmbedderRequired = errors.New("embedder is required")

	// ErrTokenizerRequired is returned when a nil tokenizer is supplied.
	ErrTokenizerRequired = errors.New("tokenizer is required")
)
