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

	"github.com/poiesic/picmatch/core"
)

const (
	// DefaultBatchSize is the default number of descriptions embedded per request
	DefaultBatchSize = 32
)

// DescriptionSource supplies the catalog's descriptions in a stable order.
type DescriptionSource interface {
	Descriptions() []core.Description
}

// DescriptionIterator walks a description list in fixed-size batches.
type DescriptionIterator struct {
	descriptions []core.Description
	batchSize    int
}

// NewDescriptionIterator creates a new iterator.
// batchSize: number of descriptions per batch (DefaultBatchSize when <= 0)
func NewDescriptionIterator(descriptions []core.Description, batchSize int) *DescriptionIterator {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &DescriptionIterator{
		descriptions: descriptions,
		batchSize:    batchSize,
	}
}

// Len returns the number of descriptions the iterator will visit.
func (it *DescriptionIterator) Len() int {
	return len(it.descriptions)
}

// ForEach calls fn for each batch. Iteration stops on the first error from
// fn. Context cancellation is checked before every batch.
func (it *DescriptionIterator) ForEach(ctx context.Context, fn func([]core.Description) error) error {
	for start := 0; start < len(it.descriptions); start += it.batchSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := min(start+it.batchSize, len(it.descriptions))
		if err := fn(it.descriptions[start:end]); err != nil {
			return err
		}
	}
	return nil
}
