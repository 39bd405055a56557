// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package lexical implements TF-IDF cosine similarity over segmented text.
//
// Each description is represented by the terms of its text plus the terms
// of its keywords, the latter counted keywordWeight times. Document
// frequencies are computed over the scored corpus plus the query itself, so
// the vocabulary always reflects the current catalog. Query terms absent
// from every description simply contribute nothing to the dot product.
package lexical

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/poiesic/picmatch/core"
	"github.com/poiesic/picmatch/segment"
	"github.com/poiesic/picmatch/similarity"
)

// DefaultKeywordWeight is how many times keyword terms are counted
// relative to body text.
const DefaultKeywordWeight = 2

// ctxCheckInterval is how many documents are scored between context checks.
const ctxCheckInterval = 64

// document caches the term counts derived from one description.
type document struct {
	fingerprint uint64
	counts      map[string]int
}

// Backend is the lexical similarity backend.
type Backend struct {
	tokenizer     segment.Tokenizer
	keywordWeight int
	logger        *slog.Logger

	mu   sync.RWMutex
	docs map[string]*document
}

var _ similarity.Backend = (*Backend)(nil)

// Option configures a Backend.
type Option func(*Backend) error

// WithTokenizer sets the tokenizer. Default is segment.Bigram.
func WithTokenizer(tok segment.Tokenizer) Option {
	return func(b *Backend) error {
		if tok == nil {
			return similarity.ErrTokenizerRequired
		}
		b.tokenizer = tok
		return nil
	}
}

// WithKeywordWeight sets the keyword repetition multiplier. Must be >= 1.
func WithKeywordWeight(weight int) Option {
	return func(b *Backend) error {
		if weight < 1 {
			return fmt.Errorf("%w: keyword weight must be at least 1, got %d", core.ErrInvalidArgument, weight)
		}
		b.keywordWeight = weight
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Backend) error {
		if logger == nil {
			logger = slog.Default()
		}
		b.logger = logger
		return nil
	}
}

// New creates a lexical backend.
func New(opts ...Option) (*Backend, error) {
	b := &Backend{
		tokenizer:     segment.NewBigram(),
		keywordWeight: DefaultKeywordWeight,
		logger:        slog.Default().With("component", "lexical"),
		docs:          make(map[string]*document),
	}
	for _, opt := range opts {
		if err := opt(b); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// Method implements similarity.Backend.
func (b *Backend) Method() similarity.Method {
	return similarity.Lexical
}

// Fit rebuilds the term count cache for corpus. Entries for descriptions
// outside corpus are dropped.
func (b *Backend) Fit(ctx context.Context, corpus []core.Description) error {
	docs := make(map[string]*document, len(corpus))

	b.mu.RLock()
	for i := range corpus {
		d := &corpus[i]
		if cached, ok := b.docs[d.Id]; ok && cached.fingerprint == d.Fingerprint() {
			docs[d.Id] = cached
		}
	}
	b.mu.RUnlock()

	for i := range corpus {
		if i%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		d := &corpus[i]
		if _, ok := docs[d.Id]; !ok {
			docs[d.Id] = b.analyze(d)
		}
	}

	fitted := len(docs)
	b.mu.Lock()
	b.docs = docs
	b.mu.Unlock()

	b.logger.Debug("fitted lexical index", "documents", fitted)
	return nil
}

// Score implements similarity.Backend.
func (b *Backend) Score(ctx context.Context, query string, corpus []core.Description) ([]float64, error) {
	if len(corpus) == 0 {
		return []float64{}, nil
	}
	scores := similarity.ZeroScores(len(corpus))

	queryCounts := make(map[string]int)
	for _, term := range b.tokenizer.Tokenize(query) {
		queryCounts[term]++
	}
	if len(queryCounts) == 0 {
		return scores, nil
	}

	// Resolve each distinct description once; duplicates share a vector.
	docs := make([]*document, len(corpus))
	unique := make(map[string]*document, len(corpus))
	for i := range corpus {
		if i%ctxCheckInterval == 0 {
			if err := checkContext(ctx); err != nil {
				return nil, err
			}
		}
		d := &corpus[i]
		doc, seen := unique[d.Id]
		if !seen {
			doc = b.document(d)
			unique[d.Id] = doc
		}
		docs[i] = doc
	}

	df := make(map[string]int)
	for _, doc := range unique {
		for term := range doc.counts {
			df[term]++
		}
	}
	for term := range queryCounts {
		df[term]++
	}
	n := float64(len(unique) + 1)
	idf := func(term string) float64 {
		return math.Log((1+n)/(1+float64(df[term]))) + 1
	}

	queryWeights := make(map[string]float64, len(queryCounts))
	var queryNorm float64
	for term, count := range queryCounts {
		w := float64(count) * idf(term)
		queryWeights[term] = w
		queryNorm += w * w
	}
	queryNorm = math.Sqrt(queryNorm)

	computed := make(map[*document]float64, len(unique))
	for i, doc := range docs {
		if i%ctxCheckInterval == 0 {
			if err := checkContext(ctx); err != nil {
				return nil, err
			}
		}
		score, ok := computed[doc]
		if !ok {
			score = cosine(queryWeights, queryNorm, doc, idf)
			computed[doc] = score
		}
		scores[i] = score
	}
	return scores, nil
}

// Invalidate implements similarity.Backend.
func (b *Backend) Invalidate(ids ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, id := range ids {
		delete(b.docs, id)
	}
}

// Close implements similarity.Backend.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.docs = make(map[string]*document)
	return nil
}

// Stats describes the cached index.
type Stats struct {
	Documents  int
	Vocabulary int
}

// Stats reports the number of cached documents and distinct terms.
func (b *Backend) Stats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	vocab := make(map[string]struct{})
	for _, doc := range b.docs {
		for term := range doc.counts {
			vocab[term] = struct{}{}
		}
	}
	return Stats{Documents: len(b.docs), Vocabulary: len(vocab)}
}

// document returns cached term counts for d, computing and caching them
// when missing or stale.
func (b *Backend) document(d *core.Description) *document {
	fp := d.Fingerprint()

	b.mu.RLock()
	doc, ok := b.docs[d.Id]
	b.mu.RUnlock()
	if ok && doc.fingerprint == fp {
		return doc
	}

	doc = b.analyze(d)
	b.mu.Lock()
	b.docs[d.Id] = doc
	b.mu.Unlock()
	return doc
}

func (b *Backend) analyze(d *core.Description) *document {
	counts := make(map[string]int)
	for _, term := range b.tokenizer.Tokenize(d.Text) {
		counts[term]++
	}
	for _, keyword := range d.Keywords {
		for _, term := range b.tokenizer.Tokenize(keyword) {
			counts[term] += b.keywordWeight
		}
	}
	return &document{fingerprint: d.Fingerprint(), counts: counts}
}

func cosine(queryWeights map[string]float64, queryNorm float64, doc *document, idf func(string) float64) float64 {
	if queryNorm == 0 || len(doc.counts) == 0 {
		return 0
	}
	var dot, docNorm float64
	for term, count := range doc.counts {
		w := float64(count) * idf(term)
		docNorm += w * w
		if qw, ok := queryWeights[term]; ok {
			dot += qw * w
		}
	}
	if docNorm == 0 {
		return 0
	}
	return similarity.Clamp01(dot / (queryNorm * math.Sqrt(docNorm)))
}

func checkContext(ctx context.Context) error {
	err := ctx.Err()
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", core.ErrScoringTimeout, err)
	}
	return err
}
