// Package ingestion loads data directories into the catalog.
//
// The Importer reads descriptions.json, mappings.json and the images/
// directory, assigns ids to descriptions that lack one, and fills in missing
// keywords. Keyword generation runs concurrently on a worker pool, using an
// LLM keyword extractor when one is configured and the segmenter otherwise.
// When mappings.json is absent, images are mapped to descriptions round-robin
// in name order.
//
// Export writes the current catalog back out in the same file layout.
package ingestion
