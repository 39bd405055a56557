// Package reembed computes and persists description embeddings.
//
// The building blocks here are shared with the semantic similarity backend:
// BatchProcessor embeds descriptions with retry and exponential backoff and
// normalizes the resulting vectors, so cosine similarity reduces to a dot
// product. Reembedder drives a full rebuild of the persistent embedding
// store with progress reporting, and CollectStats reports how the store
// compares to the current catalog.
package reembed
