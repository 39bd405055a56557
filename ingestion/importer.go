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

package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/picmatch/ai"
	"github.com/poiesic/picmatch/core"
	"github.com/poiesic/picmatch/segment"
	"github.com/poiesic/picmatch/storage/jsonfile"
)

// Catalog is the part of the catalog store the importer writes to.
type Catalog interface {
	Load(ctx context.Context, catalog *core.Catalog) error
	Snapshot() *core.Catalog
	Descriptions() []core.Description
	SetKeywords(ctx context.Context, id string, keywords []string) (*core.Description, error)
	AppendDescriptions(ctx context.Context, descriptions []core.Description) ([]core.Description, error)
}

// Importer loads data directories into a catalog and generates keywords.
type Importer struct {
	catalog     Catalog
	tokenizer   segment.Tokenizer
	extractor   ai.KeywordExtractor
	pool        *ants.Pool
	maxKeywords int
	logger      *slog.Logger
}

// Option configures an Importer.
type Option func(*Importer) error

// WithPoolSize sets the worker pool size for keyword generation.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(im *Importer) error {
		if size < 1 {
			size = 1
		}
		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		if im.pool != nil {
			im.pool.Release()
		}
		im.pool = pool
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(im *Importer) error {
		if logger == nil {
			logger = slog.Default()
		}
		im.logger = logger.With("component", "importer")
		return nil
	}
}

// WithTokenizer sets the segmenter used for keyword generation.
// Default is the bigram tokenizer.
func WithTokenizer(tok segment.Tokenizer) Option {
	return func(im *Importer) error {
		if tok == nil {
			return ErrTokenizerRequired
		}
		im.tokenizer = tok
		return nil
	}
}

// WithKeywordExtractor makes keyword generation ask an LLM first. The
// segmenter is still used when the extractor fails or returns nothing.
func WithKeywordExtractor(extractor ai.KeywordExtractor) Option {
	return func(im *Importer) error {
		im.extractor = extractor
		return nil
	}
}

// WithMaxKeywords sets how many keywords are generated per description.
// Default is segment.DefaultMaxKeywords.
func WithMaxKeywords(max int) Option {
	return func(im *Importer) error {
		if max < 1 {
			return fmt.Errorf("%w: max keywords must be positive", core.ErrInvalidArgument)
		}
		im.maxKeywords = max
		return nil
	}
}

// NewImporter creates an importer writing to catalog.
func NewImporter(catalog Catalog, opts ...Option) (*Importer, error) {
	if catalog == nil {
		return nil, ErrCatalogRequired
	}

	poolSize := runtime.NumCPU() / 2
	if poolSize < 1 {
		poolSize = 1
	}
	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, err
	}

	im := &Importer{
		catalog:     catalog,
		tokenizer:   segment.NewBigram(),
		pool:        pool,
		maxKeywords: segment.DefaultMaxKeywords,
		logger:      slog.Default().With("component", "importer"),
	}

	for _, opt := range opts {
		if optErr := opt(im); optErr != nil {
			im.Release()
			return nil, optErr
		}
	}
	return im, nil
}

// ImportOptions holds optional parameters for Import.
type ImportOptions struct {
	// RegenerateKeywords replaces keywords present in the file.
	RegenerateKeywords bool
}

// Report summarises an import.
type Report struct {
	Descriptions      int
	Images            int
	Mappings          int
	GeneratedKeywords int
	// CreatedMappings is set when mappings.json was absent and mappings
	// were assigned round-robin.
	CreatedMappings bool
}

// Import replaces the catalog with the contents of the data directory dir.
// Image locations are the image paths under dir.
func (im *Importer) Import(ctx context.Context, dir string, opts *ImportOptions) (*Report, error) {
	if opts == nil {
		opts = &ImportOptions{}
	}

	dataset, err := jsonfile.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", dir, err)
	}

	descriptions, generated, err := im.processDescriptions(ctx, dataset.Descriptions, opts.RegenerateKeywords)
	if err != nil {
		return nil, err
	}

	addedAt := time.Now().UTC().Truncate(time.Microsecond)
	images := make([]core.Image, len(dataset.Images))
	for i, name := range dataset.Images {
		images[i] = core.Image{
			Name:     name,
			Location: filepath.Join(dir, jsonfile.ImagesDir, name),
			AddedAt:  addedAt,
		}
	}

	report := &Report{
		Descriptions:      len(descriptions),
		Images:            len(images),
		GeneratedKeywords: generated,
	}

	mappings := dataset.Mappings
	if !dataset.HasMappings() {
		mappings = RoundRobinMappings(dataset.Images, descriptions)
		report.CreatedMappings = true
	}
	report.Mappings = len(mappings)

	err = im.catalog.Load(ctx, &core.Catalog{
		Descriptions: descriptions,
		Images:       images,
		Mappings:     mappings,
	})
	if err != nil {
		return nil, fmt.Errorf("loading catalog: %w", err)
	}

	im.logger.Info("data directory imported",
		"dir", dir,
		"descriptions", report.Descriptions,
		"images", report.Images,
		"mappings", report.Mappings,
		"generated_keywords", report.GeneratedKeywords,
		"created_mappings", report.CreatedMappings)
	return report, nil
}

// Export writes the catalog to dir as descriptions.json and mappings.json.
func (im *Importer) Export(dir string) error {
	if err := jsonfile.WriteDir(dir, im.catalog.Snapshot()); err != nil {
		return fmt.Errorf("exporting to %s: %w", dir, err)
	}
	return nil
}

// ProcessSimpleDescriptions turns raw description entries into descriptions.
// Entries without an id get "desc_NNN" from their 1-based position, skipping
// ids that other entries already claim. Entries without keywords get
// generated ones.
func (im *Importer) ProcessSimpleDescriptions(ctx context.Context, inputs []jsonfile.DescriptionInput) ([]core.Description, error) {
	descriptions, _, err := im.processDescriptions(ctx, inputs, false)
	return descriptions, err
}

// AddDescriptions processes a batch of raw entries like
// ProcessSimpleDescriptions and appends the result to the catalog as
// descriptions no image maps to yet. The catalog assigns their ids.
func (im *Importer) AddDescriptions(ctx context.Context, inputs []jsonfile.DescriptionInput) ([]core.Description, error) {
	processed, err := im.ProcessSimpleDescriptions(ctx, inputs)
	if err != nil {
		return nil, err
	}
	added, err := im.catalog.AppendDescriptions(ctx, processed)
	if err != nil {
		return nil, fmt.Errorf("adding descriptions: %w", err)
	}
	im.logger.Info("descriptions added", "count", len(added))
	return added, nil
}

// GenerateKeywords fills in keywords for catalog descriptions that have
// none, or for every description when force is set. It returns the number
// of descriptions updated.
func (im *Importer) GenerateKeywords(ctx context.Context, force bool) (int, error) {
	current := im.catalog.Descriptions()
	texts := make([]string, 0, len(current))
	ids := make([]string, 0, len(current))
	for i := range current {
		if force || len(current[i].Keywords) == 0 {
			texts = append(texts, current[i].Text)
			ids = append(ids, current[i].Id)
		}
	}
	if len(ids) == 0 {
		return 0, nil
	}

	keywords, err := im.generate(ctx, texts)
	if err != nil {
		return 0, err
	}

	for i, id := range ids {
		if _, err := im.catalog.SetKeywords(ctx, id, keywords[i]); err != nil {
			return i, fmt.Errorf("updating keywords for %s: %w", id, err)
		}
	}

	im.logger.Info("keywords generated", "descriptions", len(ids), "force", force)
	return len(ids), nil
}

// ExtractKeywords returns up to max keywords for text, using the configured
// extractor or the segmenter. max <= 0 uses the importer's setting.
func (im *Importer) ExtractKeywords(ctx context.Context, text string, max int) []string {
	if max <= 0 {
		max = im.maxKeywords
	}
	return im.keywordsFor(ctx, text, max)
}

// Release releases the worker pool.
// The importer should not be used after calling Release.
func (im *Importer) Release() {
	if im.pool != nil {
		im.pool.Release()
	}
}

func (im *Importer) processDescriptions(ctx context.Context, inputs []jsonfile.DescriptionInput, force bool) ([]core.Description, int, error) {
	claimed := make(map[string]struct{}, len(inputs))
	for _, in := range inputs {
		if in.Id != "" {
			claimed[in.Id] = struct{}{}
		}
	}

	updatedAt := time.Now().UTC().Truncate(time.Microsecond)
	descriptions := make([]core.Description, len(inputs))
	var pending []int
	var texts []string
	for i, in := range inputs {
		id := in.Id
		if id == "" {
			id = nextFreeID(i+1, claimed)
			claimed[id] = struct{}{}
		}
		descriptions[i] = core.Description{
			Id:        id,
			Text:      in.Text,
			Keywords:  core.NormalizeKeywords(in.Keywords),
			UpdatedAt: updatedAt,
		}
		if err := core.ValidateDescription(&descriptions[i]); err != nil {
			return nil, 0, fmt.Errorf("description %d: %w", i+1, err)
		}
		if force || len(descriptions[i].Keywords) == 0 {
			pending = append(pending, i)
			texts = append(texts, in.Text)
		}
	}

	if len(pending) == 0 {
		return descriptions, 0, nil
	}

	keywords, err := im.generate(ctx, texts)
	if err != nil {
		return nil, 0, err
	}
	for j, i := range pending {
		descriptions[i].Keywords = keywords[j]
	}
	return descriptions, len(pending), nil
}

// generate produces keywords for every text on the worker pool. Results
// keep the order of texts.
func (im *Importer) generate(ctx context.Context, texts []string) ([][]string, error) {
	results := make([][]string, len(texts))
	var wg sync.WaitGroup
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			wg.Wait()
			return nil, err
		}
		wg.Add(1)
		err := im.pool.Submit(func() {
			defer wg.Done()
			if ctx.Err() != nil {
				return
			}
			results[i] = im.keywordsFor(ctx, text, im.maxKeywords)
		})
		if err != nil {
			wg.Done()
			wg.Wait()
			return nil, fmt.Errorf("submitting keyword task: %w", err)
		}
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func (im *Importer) keywordsFor(ctx context.Context, text string, max int) []string {
	if im.extractor != nil {
		candidates, err := im.extractor.ExtractKeywords(ctx, text, max)
		if err != nil {
			im.logger.Warn("keyword extractor failed, using segmenter", "err", err)
		} else {
			keywords := make([]string, 0, len(candidates))
			for _, kw := range core.NormalizeKeywords(candidates) {
				if len(keywords) == max {
					break
				}
				if segment.Qualifies(kw) {
					keywords = append(keywords, kw)
				}
			}
			if len(keywords) > 0 {
				return keywords
			}
		}
	}
	return segment.ExtractKeywords(im.tokenizer, text, max)
}

func nextFreeID(n int, claimed map[string]struct{}) string {
	for {
		id := core.FormatDescriptionID(n)
		if _, taken := claimed[id]; !taken {
			return id
		}
		n++
	}
}

// RoundRobinMappings maps images, in order, to descriptions cycling from
// the first. No mappings are produced when there are no descriptions.
func RoundRobinMappings(images []string, descriptions []core.Description) []core.Mapping {
	if len(descriptions) == 0 {
		return []core.Mapping{}
	}
	mappings := make([]core.Mapping, len(images))
	for i, name := range images {
		mappings[i] = core.Mapping{ImageName: name, DescriptionId: descriptions[i%len(descriptions)].Id}
	}
	return mappings
}
