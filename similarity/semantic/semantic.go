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

package semantic

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/picmatch/ai"
	"github.com/poiesic/picmatch/core"
	"github.com/poiesic/picmatch/reembed"
	"github.com/poiesic/picmatch/similarity"
	"github.com/poiesic/picmatch/storage"
)

const (
	// DefaultQueryCacheSize is the number of query vectors kept in memory.
	DefaultQueryCacheSize = 1024
	// DefaultMaxRetries is the number of attempts per embedding request.
	DefaultMaxRetries = 3
	// DefaultRetryDelay is the base backoff between attempts.
	DefaultRetryDelay = 500 * time.Millisecond
)

// entry is a cached description vector. A nil vector records a failed
// embedding; it scores 0 until the description changes or is invalidated.
type entry struct {
	fingerprint uint64
	vector      []float32
}

// Backend scores descriptions by cosine similarity of text embeddings.
type Backend struct {
	embedder   ai.Embedder
	processor  *reembed.BatchProcessor
	store      storage.EmbeddingRepository
	queries    *ristretto.Cache[string, []float32]
	pool       *ants.Pool
	model      string
	batchSize  int
	workers    int
	cacheSize  int
	maxRetries int
	retryDelay time.Duration
	logger     *slog.Logger

	mu      sync.RWMutex
	vectors map[string]entry
}

var _ similarity.Backend = (*Backend)(nil)

// Option configures a Backend.
type Option func(*Backend) error

// WithBatchSize sets how many descriptions are embedded per request.
func WithBatchSize(size int) Option {
	return func(b *Backend) error {
		if size < 1 {
			size = 1
		}
		b.batchSize = size
		return nil
	}
}

// WithWorkers sets the number of concurrent embedding requests during Fit.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithWorkers(workers int) Option {
	return func(b *Backend) error {
		if workers < 1 {
			workers = 1
		}
		b.workers = workers
		return nil
	}
}

// WithRetry sets the attempt count and base backoff for embedding calls.
func WithRetry(maxAttempts int, baseDelay time.Duration) Option {
	return func(b *Backend) error {
		if maxAttempts < 1 {
			return fmt.Errorf("%w: max attempts must be at least 1, got %d", core.ErrInvalidArgument, maxAttempts)
		}
		b.maxRetries = maxAttempts
		b.retryDelay = baseDelay
		return nil
	}
}

// WithVectorStore persists description vectors so they survive restarts.
func WithVectorStore(store storage.EmbeddingRepository) Option {
	return func(b *Backend) error {
		b.store = store
		return nil
	}
}

// WithQueryCache sets the number of query vectors kept in memory.
// Zero disables the cache.
func WithQueryCache(maxEntries int) Option {
	return func(b *Backend) error {
		if maxEntries < 0 {
			maxEntries = 0
		}
		b.cacheSize = maxEntries
		return nil
	}
}

// WithModelName records the embedding model. Stored vectors produced by
// another model are ignored.
func WithModelName(model string) Option {
	return func(b *Backend) error {
		b.model = model
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

// New creates a semantic backend around embedder.
func New(embedder ai.Embedder, opts ...Option) (*Backend, error) {
	if embedder == nil {
		return nil, similarity.ErrEmbedderRequired
	}

	b := &Backend{
		embedder:   embedder,
		batchSize:  reembed.DefaultBatchSize,
		workers:    max(runtime.NumCPU()/2, 1),
		cacheSize:  DefaultQueryCacheSize,
		maxRetries: DefaultMaxRetries,
		retryDelay: DefaultRetryDelay,
		logger:     slog.Default().With("component", "semantic"),
		vectors:    make(map[string]entry),
	}
	for _, opt := range opts {
		if err := opt(b); err != nil {
			return nil, err
		}
	}

	pool, err := ants.NewPool(b.workers)
	if err != nil {
		return nil, err
	}
	b.pool = pool

	if b.cacheSize > 0 {
		b.queries, err = ristretto.NewCache(&ristretto.Config[string, []float32]{
			NumCounters: int64(b.cacheSize) * 10,
			MaxCost:     int64(b.cacheSize),
			BufferItems: 64,
		})
		if err != nil {
			pool.Release()
			return nil, fmt.Errorf("creating query cache: %w", err)
		}
	}

	b.processor = reembed.NewBatchProcessor(embedder, b.model, b.maxRetries, b.retryDelay)
	return b, nil
}

// Method implements similarity.Backend.
func (b *Backend) Method() similarity.Method {
	return similarity.Semantic
}

// Fit embeds every description whose vector is not already known.
//
// Vectors are reused from memory, then from the vector store, when their
// text fingerprint and model still match. The rest are embedded in batches
// on the worker pool; a failed batch is retried entry by entry so one bad
// text cannot sink its neighbours. Fit fails only if the context ends or
// every pending description failed.
func (b *Backend) Fit(ctx context.Context, corpus []core.Description) error {
	corpus = uniqueByID(corpus)
	vectors := make(map[string]entry, len(corpus))

	var pending []core.Description
	b.mu.RLock()
	for i := range corpus {
		d := &corpus[i]
		if cached, ok := b.vectors[d.Id]; ok && cached.vector != nil && cached.fingerprint == d.TextFingerprint() {
			vectors[d.Id] = cached
			continue
		}
		pending = append(pending, *d)
	}
	b.mu.RUnlock()

	pending = b.restore(ctx, pending, vectors)

	var fitErr error
	if len(pending) > 0 {
		embedded, failures, err := b.embedAll(ctx, pending)
		if err != nil {
			return err
		}
		for _, e := range embedded {
			vectors[e.DescriptionId] = entry{fingerprint: e.Fingerprint, vector: e.Vector}
		}
		for i := range pending {
			if err, failed := failures[pending[i].Id]; failed {
				vectors[pending[i].Id] = entry{fingerprint: pending[i].TextFingerprint()}
				b.logger.Debug("description embedding failed", "id", pending[i].Id, "err", err)
			}
		}
		if len(embedded) == 0 {
			fitErr = fmt.Errorf("%w: all %d descriptions failed", similarity.ErrEmbeddingFailed, len(pending))
		}
		b.persist(ctx, embedded)
	}
	if fitErr != nil {
		return fitErr
	}

	b.mu.Lock()
	b.vectors = vectors
	b.mu.Unlock()

	b.logger.Debug("fitted semantic index", "descriptions", len(corpus), "embedded", len(pending))
	return nil
}

// Score implements similarity.Backend.
func (b *Backend) Score(ctx context.Context, query string, corpus []core.Description) ([]float64, error) {
	if len(corpus) == 0 {
		return []float64{}, nil
	}
	scores := similarity.ZeroScores(len(corpus))
	if strings.TrimSpace(query) == "" {
		return scores, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, scoringError(ctx, err)
	}

	queryVector, err := b.queryVector(ctx, query)
	if err != nil {
		return nil, err
	}

	// Collect cached vectors; anything missing or stale is embedded lazily
	// outside the lock.
	resolved := make(map[string][]float32, len(corpus))
	var misses []core.Description
	b.mu.RLock()
	for i := range corpus {
		d := &corpus[i]
		if _, done := resolved[d.Id]; done {
			continue
		}
		if cached, ok := b.vectors[d.Id]; ok && cached.fingerprint == d.TextFingerprint() {
			resolved[d.Id] = cached.vector
			continue
		}
		resolved[d.Id] = nil
		misses = append(misses, *d)
	}
	b.mu.RUnlock()

	if len(misses) > 0 {
		if err := b.embedMisses(ctx, misses, resolved); err != nil {
			return nil, err
		}
	}

	for i := range corpus {
		vector := resolved[corpus[i].Id]
		if vector == nil {
			continue
		}
		if cos, ok := reembed.Dot(queryVector, vector); ok {
			scores[i] = similarity.Clamp01(cos)
		}
	}
	return scores, nil
}

// Invalidate implements similarity.Backend.
func (b *Backend) Invalidate(ids ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, id := range ids {
		delete(b.vectors, id)
	}
}

// Close implements similarity.Backend.
func (b *Backend) Close() error {
	b.pool.Release()
	if b.queries != nil {
		b.queries.Close()
	}
	return nil
}

// Stats describes the in-memory vector cache.
type Stats struct {
	Vectors    int
	Failed     int
	Dimensions int
	Model      string
}

// Stats reports the number of cached and failed description vectors.
func (b *Backend) Stats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	stats := Stats{Model: b.model}
	for _, e := range b.vectors {
		if e.vector == nil {
			stats.Failed++
			continue
		}
		stats.Vectors++
		stats.Dimensions = len(e.vector)
	}
	return stats
}

// restore moves descriptions with a current stored vector from pending into
// vectors and returns what is left to embed.
func (b *Backend) restore(ctx context.Context, pending []core.Description, vectors map[string]entry) []core.Description {
	if b.store == nil || len(pending) == 0 {
		return pending
	}

	ids := make([]string, len(pending))
	for i := range pending {
		ids[i] = pending[i].Id
	}
	stored, err := b.store.GetEmbeddings(ctx, ids...)
	if err != nil {
		b.logger.Warn("reading stored embeddings", "err", err)
		return pending
	}

	remaining := make([]core.Description, 0, len(pending))
	for i := range pending {
		d := &pending[i]
		if s, ok := stored[d.Id]; ok && s.Model == b.model && s.Fingerprint == d.TextFingerprint() && reembed.IsUsable(s.Vector) {
			vectors[d.Id] = entry{fingerprint: s.Fingerprint, vector: s.Vector}
			continue
		}
		remaining = append(remaining, *d)
	}
	return remaining
}

// embedAll embeds pending in batches on the worker pool.
func (b *Backend) embedAll(ctx context.Context, pending []core.Description) ([]*core.StoredEmbedding, map[string]error, error) {
	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		embedded []*core.StoredEmbedding
		failures = make(map[string]error)
		aborted  error
	)

	record := func(result []*core.StoredEmbedding, batchFailures map[string]error, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			if aborted == nil {
				aborted = err
			}
			return
		}
		for _, e := range result {
			if e != nil {
				embedded = append(embedded, e)
			}
		}
		for id, ferr := range batchFailures {
			failures[id] = ferr
		}
	}

	for start := 0; start < len(pending); start += b.batchSize {
		batch := pending[start:min(start+b.batchSize, len(pending))]
		wg.Add(1)
		err := b.pool.Submit(func() {
			defer wg.Done()
			result, err := b.processor.Embed(ctx, batch)
			if err == nil {
				record(result, nil, nil)
				return
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				record(nil, nil, ctxErr)
				return
			}
			b.logger.Debug("batch embedding failed, falling back to single entries", "size", len(batch), "err", err)
			result, batchFailures, err := b.processor.EmbedEach(ctx, batch)
			record(result, batchFailures, err)
		})
		if err != nil {
			wg.Done()
			for i := range batch {
				record(nil, map[string]error{batch[i].Id: err}, nil)
			}
		}
	}
	wg.Wait()

	if aborted != nil {
		return nil, nil, aborted
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	return embedded, failures, nil
}

// embedMisses embeds descriptions discovered stale during Score and caches
// the outcome. Entries that fail stay nil in resolved.
func (b *Backend) embedMisses(ctx context.Context, misses []core.Description, resolved map[string][]float32) error {
	embedded, err := b.processor.Embed(ctx, misses)
	var failures map[string]error
	if err != nil {
		if ctx.Err() != nil {
			return scoringError(ctx, err)
		}
		embedded, failures, err = b.processor.EmbedEach(ctx, misses)
		if err != nil {
			return scoringError(ctx, err)
		}
	}

	var fresh []*core.StoredEmbedding
	b.mu.Lock()
	for i, e := range embedded {
		if e == nil {
			b.vectors[misses[i].Id] = entry{fingerprint: misses[i].TextFingerprint()}
			b.logger.Debug("description embedding failed", "id", misses[i].Id, "err", failures[misses[i].Id])
			continue
		}
		b.vectors[e.DescriptionId] = entry{fingerprint: e.Fingerprint, vector: e.Vector}
		resolved[e.DescriptionId] = e.Vector
		fresh = append(fresh, e)
	}
	b.mu.Unlock()

	b.persist(ctx, fresh)
	return nil
}

// queryVector embeds query, consulting the query cache first.
func (b *Backend) queryVector(ctx context.Context, query string) ([]float32, error) {
	if b.queries != nil {
		if v, ok := b.queries.Get(query); ok {
			return v, nil
		}
	}

	var raw []float32
	err := reembed.RetryWithBackoff(ctx, func() error {
		var err error
		raw, err = b.embedder.EmbedText(ctx, query)
		return err
	}, b.maxRetries, b.retryDelay)
	if err != nil {
		if ctx.Err() != nil {
			return nil, scoringError(ctx, err)
		}
		return nil, fmt.Errorf("%w: query: %w", similarity.ErrEmbeddingFailed, err)
	}

	vector := reembed.NormalizeVector(raw)
	if !reembed.IsUsable(vector) {
		return nil, fmt.Errorf("%w: query: %w", similarity.ErrEmbeddingFailed, reembed.ErrUnusableVector)
	}
	if b.queries != nil {
		b.queries.Set(query, vector, 1)
		b.queries.Wait()
	}
	return vector, nil
}

// persist writes fresh vectors to the vector store. Failures only cost a
// recomputation on the next start, so they are logged and dropped.
func (b *Backend) persist(ctx context.Context, embeddings []*core.StoredEmbedding) {
	if b.store == nil || len(embeddings) == 0 {
		return
	}
	if err := b.store.SaveEmbeddings(ctx, embeddings...); err != nil {
		b.logger.Warn("persisting embeddings", "count", len(embeddings), "err", err)
	}
}

// scoringError maps a context failure to the scoring error taxonomy.
func scoringError(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", core.ErrScoringTimeout, ctx.Err())
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}

func uniqueByID(corpus []core.Description) []core.Description {
	seen := make(map[string]struct{}, len(corpus))
	unique := make([]core.Description, 0, len(corpus))
	for i := range corpus {
		if _, dup := seen[corpus[i].Id]; dup {
			continue
		}
		seen[corpus[i].Id] = struct{}{}
		unique = append(unique, corpus[i])
	}
	return unique
}
