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

package reembed

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/poiesic/picmatch/ai"
	"github.com/poiesic/picmatch/core"
	"github.com/poiesic/picmatch/storage"
)

// Config holds configuration for the reembedding operation.
type Config struct {
	// BatchSize is the number of descriptions sent to the embedder per request
	BatchSize int

	// ReportInterval is how often to report progress (number of descriptions)
	ReportInterval int

	// MaxRetries is the maximum number of attempts for failed embedding calls
	MaxRetries int

	// RetryDelay is the base delay for exponential backoff
	RetryDelay time.Duration

	// StaleOnly skips descriptions whose stored embedding is current
	StaleOnly bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BatchSize:      DefaultBatchSize,
		ReportInterval: DefaultBatchSize,
		MaxRetries:     3,
		RetryDelay:     500 * time.Millisecond,
	}
}

// Report summarizes a completed run.
type Report struct {
	Embedded int
	Skipped  int
	Pruned   int
	Elapsed  time.Duration
}

// Reembedder recomputes and persists the embedding of every description in
// the catalog, then removes stored embeddings whose description is gone.
type Reembedder struct {
	source    DescriptionSource
	repo      storage.EmbeddingRepository
	config    *Config
	progress  io.Writer
	processor *BatchProcessor
}

// NewReembedder creates a new reembedder.
// model: model name recorded with each embedding
// progress: where to write progress output (typically os.Stderr)
func NewReembedder(source DescriptionSource, repo storage.EmbeddingRepository, embedder ai.Embedder, model string, config *Config, progress io.Writer) *Reembedder {
	if config == nil {
		config = DefaultConfig()
	}
	if progress == nil {
		progress = io.Discard
	}

	return &Reembedder{
		source:    source,
		repo:      repo,
		config:    config,
		progress:  progress,
		processor: NewBatchProcessor(embedder, model, config.MaxRetries, config.RetryDelay),
	}
}

// Run executes the reembedding operation.
// Progress is reported to the configured writer.
func (r *Reembedder) Run(ctx context.Context) (*Report, error) {
	if r.repo == nil {
		return nil, ErrRepositoryRequired
	}

	all := r.source.Descriptions()
	pending := all
	if r.config.StaleOnly {
		var err error
		pending, err = r.stale(ctx, all)
		if err != nil {
			return nil, fmt.Errorf("failed to query stored embeddings: %w", err)
		}
	}

	report := &Report{Skipped: len(all) - len(pending)}
	start := time.Now()

	if len(pending) == 0 {
		fmt.Fprintf(r.progress, "No descriptions need embedding (%d up to date)\n", report.Skipped)
	} else {
		fmt.Fprintf(r.progress, "Starting reembedding of %d descriptions (batch size: %d)\n",
			len(pending), r.config.BatchSize)

		tracker := NewProgressTracker(r.progress, len(pending), r.config.ReportInterval)
		tracker.Start()

		iterator := NewDescriptionIterator(pending, r.config.BatchSize)
		err := iterator.ForEach(ctx, func(batch []core.Description) error {
			embeddings, err := r.processor.Embed(ctx, batch)
			if err != nil {
				return fmt.Errorf("failed to process batch: %w", err)
			}
			if err := r.repo.SaveEmbeddings(ctx, embeddings...); err != nil {
				return fmt.Errorf("failed to save embeddings: %w", err)
			}
			report.Embedded += len(embeddings)
			tracker.Update(report.Embedded)
			return nil
		})
		if err != nil {
			return nil, err
		}
		tracker.Finish()
	}

	pruned, err := r.prune(ctx, all)
	if err != nil {
		return nil, fmt.Errorf("failed to prune embeddings: %w", err)
	}
	report.Pruned = pruned
	report.Elapsed = time.Since(start)

	if report.Embedded > 0 {
		fmt.Fprintf(r.progress, "Reembedding complete. Processed %d descriptions in %v (%.1f descriptions/sec)\n",
			report.Embedded, report.Elapsed.Round(time.Millisecond), float64(report.Embedded)/report.Elapsed.Seconds())
	}
	if pruned > 0 {
		fmt.Fprintf(r.progress, "Removed %d orphaned embeddings\n", pruned)
	}
	return report, nil
}

// stale returns the descriptions whose stored embedding is missing, was
// produced from different text, or by a different model.
func (r *Reembedder) stale(ctx context.Context, descriptions []core.Description) ([]core.Description, error) {
	ids := make([]string, len(descriptions))
	for i := range descriptions {
		ids[i] = descriptions[i].Id
	}
	stored, err := r.repo.GetEmbeddings(ctx, ids...)
	if err != nil {
		return nil, err
	}

	var pending []core.Description
	for i := range descriptions {
		d := &descriptions[i]
		if !isCurrent(stored[d.Id], d, r.processor.Model()) {
			pending = append(pending, *d)
		}
	}
	return pending, nil
}

func (r *Reembedder) prune(ctx context.Context, descriptions []core.Description) (int, error) {
	live := make(map[string]struct{}, len(descriptions))
	for i := range descriptions {
		live[descriptions[i].Id] = struct{}{}
	}

	var orphaned []string
	err := r.repo.ForEachEmbedding(ctx, func(e *core.StoredEmbedding) error {
		if _, ok := live[e.DescriptionId]; !ok {
			orphaned = append(orphaned, e.DescriptionId)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if err := r.repo.DeleteEmbeddings(ctx, orphaned...); err != nil {
		return 0, err
	}
	return len(orphaned), nil
}

// isCurrent reports whether stored still represents d under model.
func isCurrent(stored *core.StoredEmbedding, d *core.Description, model string) bool {
	return stored != nil &&
		stored.Model == model &&
		stored.Fingerprint == d.TextFingerprint() &&
		IsUsable(stored.Vector)
}
