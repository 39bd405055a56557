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

// Package picmatch finds images whose text descriptions best match a query.
//
// Engine wires the persistent catalog, the similarity backends and the
// matcher together:
//
//	engine, err := picmatch.NewEngine("picmatch.db")
//	if err != nil {
//	    return err
//	}
//	defer engine.Close()
//
//	results, err := engine.Search(ctx, "日落", 5, 0.1)
package picmatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/poiesic/picmatch/ai"
	"github.com/poiesic/picmatch/ai/openai"
	"github.com/poiesic/picmatch/catalog"
	"github.com/poiesic/picmatch/core"
	"github.com/poiesic/picmatch/ingestion"
	"github.com/poiesic/picmatch/reembed"
	"github.com/poiesic/picmatch/search"
	"github.com/poiesic/picmatch/segment"
	"github.com/poiesic/picmatch/similarity"
	"github.com/poiesic/picmatch/similarity/lexical"
	"github.com/poiesic/picmatch/similarity/semantic"
	"github.com/poiesic/picmatch/storage"
	"github.com/poiesic/picmatch/storage/badger"
	"github.com/poiesic/picmatch/storage/jsonfile"
)

// ErrSemanticDisabled is returned by operations that need the embedding
// service when the engine was built without it.
var ErrSemanticDisabled = errors.New("semantic matching disabled")

// Engine is an image matching database.
type Engine struct {
	backend     *badger.Backend
	catalogRepo storage.CatalogRepository
	vectorRepo  storage.EmbeddingRepository
	store       *catalog.Store
	registry    *similarity.Registry
	matcher     *search.Matcher
	importer    *ingestion.Importer
	provider    ai.AIProvider
	options     *engineOptions
	logger      *slog.Logger
}

// Option configures an Engine.
type Option func(*engineOptions)

type engineOptions struct {
	inMemory       bool
	aiConfig       *ai.Config
	provider       ai.AIProvider
	semantic       bool
	llmKeywords    bool
	tokenizer      segment.Tokenizer
	method         string
	keywordWeight  int
	scoringTimeout time.Duration
	batchSize      int
	logger         *slog.Logger
}

// WithInMemory keeps the database in memory. The path is ignored.
func WithInMemory() Option {
	return func(o *engineOptions) {
		o.inMemory = true
	}
}

// WithAIConfig configures the OpenAI-compatible embedding and keyword services.
func WithAIConfig(config *ai.Config) Option {
	return func(o *engineOptions) {
		o.aiConfig = config
	}
}

// WithAIProvider uses provider instead of building one from the AI config.
// The engine closes it on Close.
func WithAIProvider(provider ai.AIProvider) Option {
	return func(o *engineOptions) {
		o.provider = provider
	}
}

// WithoutSemantic registers only the lexical method and never contacts an
// embedding service.
func WithoutSemantic() Option {
	return func(o *engineOptions) {
		o.semantic = false
	}
}

// WithLLMKeywords generates keywords with the provider's keyword extractor
// instead of the segmenter.
func WithLLMKeywords() Option {
	return func(o *engineOptions) {
		o.llmKeywords = true
	}
}

// WithTokenizer sets the segmenter. Default is the gse dictionary segmenter.
func WithTokenizer(tok segment.Tokenizer) Option {
	return func(o *engineOptions) {
		o.tokenizer = tok
	}
}

// WithMethod sets the similarity method active after start-up.
func WithMethod(name string) Option {
	return func(o *engineOptions) {
		o.method = name
	}
}

// WithKeywordWeight sets how many times keywords count in lexical scoring.
func WithKeywordWeight(weight int) Option {
	return func(o *engineOptions) {
		o.keywordWeight = weight
	}
}

// WithScoringTimeout bounds each scoring pass.
func WithScoringTimeout(d time.Duration) Option {
	return func(o *engineOptions) {
		o.scoringTimeout = d
	}
}

// WithEmbeddingBatchSize sets the number of texts per embedding request.
func WithEmbeddingBatchSize(size int) Option {
	return func(o *engineOptions) {
		o.batchSize = size
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *engineOptions) {
		o.logger = logger
	}
}

// NewEngine opens the database at filePath, restores the catalog and starts
// the matcher with the configured method.
func NewEngine(filePath string, opts ...Option) (*Engine, error) {
	options := &engineOptions{
		aiConfig:      ai.DefaultConfig(),
		semantic:      true,
		method:        similarity.DefaultMethod.String(),
		keywordWeight: lexical.DefaultKeywordWeight,
		batchSize:     reembed.DefaultBatchSize,
	}
	for _, opt := range opts {
		opt(options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}
	if options.aiConfig == nil {
		options.aiConfig = ai.DefaultConfig()
	}

	e := &Engine{options: options, logger: options.logger}
	if err := e.open(filePath); err != nil {
		e.Close()
		return nil, err
	}
	return e, nil
}

func (e *Engine) open(filePath string) error {
	ctx := context.Background()
	options := e.options

	backend, err := badger.OpenBackend(filePath, options.inMemory)
	if err != nil {
		return err
	}
	e.backend = backend

	catalogRepo, err := badger.NewCatalogRepository(backend)
	if err != nil {
		return err
	}
	e.catalogRepo = catalogRepo
	e.vectorRepo = badger.NewEmbeddingRepository(backend)

	e.store, err = catalog.New(catalog.WithRepository(catalogRepo), catalog.WithLogger(e.logger))
	if err != nil {
		return err
	}
	if err := e.store.Restore(ctx); err != nil {
		return err
	}

	tokenizer := options.tokenizer
	if tokenizer == nil {
		gse, err := segment.NewGSE()
		if err != nil {
			e.logger.Warn("gse segmenter unavailable, using bigrams", "err", err)
			tokenizer = segment.NewBigram()
		} else {
			tokenizer = gse
		}
	}

	lex, err := lexical.New(
		lexical.WithTokenizer(tokenizer),
		lexical.WithKeywordWeight(options.keywordWeight),
		lexical.WithLogger(e.logger),
	)
	if err != nil {
		return err
	}
	e.registry = similarity.NewRegistry(lex)

	if options.semantic || options.llmKeywords {
		e.provider = options.provider
		if e.provider == nil {
			e.provider, err = openai.NewProvider(options.aiConfig)
			if err != nil {
				return err
			}
		}
	}

	if options.semantic {
		sem, err := semantic.New(e.provider.Embedder(),
			semantic.WithModelName(options.aiConfig.EmbeddingModel),
			semantic.WithVectorStore(e.vectorRepo),
			semantic.WithBatchSize(options.batchSize),
			semantic.WithLogger(e.logger),
		)
		if err != nil {
			return err
		}
		e.registry.Register(sem)
	}

	matcherOpts := []search.Option{
		search.WithLogger(e.logger),
		search.WithInitialMethod(options.method),
	}
	if options.scoringTimeout > 0 {
		matcherOpts = append(matcherOpts, search.WithScoringTimeout(options.scoringTimeout))
	}
	e.matcher, err = search.NewMatcher(e.store, e.registry, matcherOpts...)
	if err != nil {
		return err
	}
	if err := e.matcher.Start(ctx); err != nil {
		return err
	}

	importerOpts := []ingestion.Option{
		ingestion.WithTokenizer(tokenizer),
		ingestion.WithLogger(e.logger),
	}
	if options.aiConfig.MaxKeywords > 0 {
		importerOpts = append(importerOpts, ingestion.WithMaxKeywords(options.aiConfig.MaxKeywords))
	}
	if options.llmKeywords {
		importerOpts = append(importerOpts, ingestion.WithKeywordExtractor(e.provider.KeywordExtractor()))
	}
	e.importer, err = ingestion.NewImporter(e.store, importerOpts...)
	return err
}

// Close releases the importer, the backends, the AI provider and the database.
func (e *Engine) Close() error {
	if e.importer != nil {
		e.importer.Release()
	}

	if e.registry != nil {
		if err := e.registry.Close(); err != nil {
			e.logger.Error("error closing similarity backends", "err", err)
		}
	}

	if e.provider != nil {
		if err := e.provider.Close(); err != nil {
			e.logger.Error("error closing AI provider", "err", err)
		}
	}

	if e.catalogRepo != nil {
		if err := e.catalogRepo.Close(); err != nil {
			e.logger.Error("error closing catalog repository", "err", err)
			return err
		}
	}

	if e.backend != nil {
		if err := e.backend.Close(); err != nil {
			e.logger.Error("error closing backend storage", "err", err)
			return err
		}
	}
	return nil
}

// Search returns up to topK images whose descriptions score at least
// threshold against query, best first.
func (e *Engine) Search(ctx context.Context, query string, topK int, threshold float64) ([]*core.Result, error) {
	return e.matcher.Search(ctx, query, topK, threshold)
}

// SearchWithMonitor is Search with progress hooks.
func (e *Engine) SearchWithMonitor(ctx context.Context, query string, topK int, threshold float64, monitor search.SearchMonitor) ([]*core.Result, error) {
	return e.matcher.SearchWithMonitor(ctx, query, topK, threshold, monitor)
}

// GetDescription returns the description mapped from image.
func (e *Engine) GetDescription(image string) (*core.Description, error) {
	return e.store.GetDescription(image)
}

// AddDescription sets the description of image.
func (e *Engine) AddDescription(ctx context.Context, image, text string, keywords []string) (*core.Description, error) {
	return e.store.AddOrUpdateDescription(ctx, image, text, keywords)
}

// AddDescriptions appends a batch of descriptions that no image maps to
// yet. Missing keywords are generated.
func (e *Engine) AddDescriptions(ctx context.Context, inputs []jsonfile.DescriptionInput) ([]core.Description, error) {
	return e.importer.AddDescriptions(ctx, inputs)
}

// DeleteDescription removes a description and every mapping to it.
func (e *Engine) DeleteDescription(ctx context.Context, id string) error {
	return e.store.DeleteDescription(ctx, id)
}

// RemoveImage removes image and its mapping. Its description stays.
func (e *Engine) RemoveImage(ctx context.Context, image string) error {
	return e.store.RemoveImage(ctx, image)
}

// AddImage registers image at location.
func (e *Engine) AddImage(ctx context.Context, image, location string) (*core.Image, error) {
	return e.store.AddImage(ctx, image, location)
}

// SetMethod switches the active similarity method.
func (e *Engine) SetMethod(ctx context.Context, name string) error {
	return e.matcher.SetMethod(ctx, name)
}

// Method returns the active similarity method.
func (e *Engine) Method() similarity.Method {
	return e.matcher.Method()
}

// Stats reports catalog counts and the active method.
func (e *Engine) Stats() search.Stats {
	return e.matcher.Stats()
}

// Import replaces the catalog with a data directory.
func (e *Engine) Import(ctx context.Context, dir string, opts *ingestion.ImportOptions) (*ingestion.Report, error) {
	return e.importer.Import(ctx, dir, opts)
}

// Export writes the catalog as a data directory.
func (e *Engine) Export(dir string) error {
	return e.importer.Export(dir)
}

// GenerateKeywords fills in missing keywords, or replaces all of them when
// force is set.
func (e *Engine) GenerateKeywords(ctx context.Context, force bool) (int, error) {
	return e.importer.GenerateKeywords(ctx, force)
}

// ExtractKeywords returns up to max keywords for text.
func (e *Engine) ExtractKeywords(ctx context.Context, text string, max int) []string {
	return e.importer.ExtractKeywords(ctx, text, max)
}

// NewReembedder creates a reembedder that refreshes the stored description
// embeddings. progress receives progress output and may be nil.
func (e *Engine) NewReembedder(config *reembed.Config, progress io.Writer) (*reembed.Reembedder, error) {
	if !e.options.semantic {
		return nil, ErrSemanticDisabled
	}
	return reembed.NewReembedder(e.store, e.vectorRepo, e.provider.Embedder(), e.options.aiConfig.EmbeddingModel, config, progress), nil
}

// VectorStats compares the stored embeddings with the catalog.
func (e *Engine) VectorStats(ctx context.Context) (*reembed.VectorStats, error) {
	stats, err := reembed.CollectStats(ctx, e.store, e.vectorRepo, e.options.aiConfig.EmbeddingModel)
	if err != nil {
		return nil, fmt.Errorf("collecting vector stats: %w", err)
	}
	return stats, nil
}

// Catalog returns the underlying catalog store.
func (e *Engine) Catalog() *catalog.Store {
	return e.store
}

// Matcher returns the underlying matcher.
func (e *Engine) Matcher() *search.Matcher {
	return e.matcher
}
