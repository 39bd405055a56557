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

package similarity

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/poiesic/picmatch/core"
)

// Method names a similarity computation strategy.
type Method string

const (
	// Lexical scores with TF-IDF cosine over segmented terms.
	Lexical Method = "lexical"
	// Semantic scores with cosine similarity between text embeddings.
	Semantic Method = "semantic"
)

// DefaultMethod is used when no method is configured.
const DefaultMethod = Lexical

var methodAliases = map[string]Method{
	"lexical":              Lexical,
	"tfidf":                Lexical,
	"tf-idf":               Lexical,
	"semantic":             Semantic,
	"sentence_transformer": Semantic,
	"embedding":            Semantic,
}

// ParseMethod resolves a method name, accepting legacy aliases
// case-insensitively. Unknown names yield core.ErrUnsupportedMethod.
func ParseMethod(name string) (Method, error) {
	m, ok := methodAliases[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return "", fmt.Errorf("%w: %q", core.ErrUnsupportedMethod, name)
	}
	return m, nil
}

func (m Method) String() string {
	return string(m)
}

// Backend computes similarity scores between a query and a corpus of
// descriptions. Implementations must be safe for concurrent use.
type Backend interface {
	// Method identifies the backend.
	Method() Method

	// Fit prepares the backend for the given corpus, replacing any state
	// derived from a previous corpus. It may be called repeatedly.
	Fit(ctx context.Context, corpus []core.Description) error

	// Score returns one score in [0,1] per corpus entry, in corpus order.
	// An empty corpus yields an empty slice and a blank query yields zeros.
	Score(ctx context.Context, query string, corpus []core.Description) ([]float64, error)

	// Invalidate discards cached state for the given description ids.
	Invalidate(ids ...string)

	// Close releases resources held by the backend.
	Close() error
}

// Clamp01 limits v to [0,1]. NaN becomes 0.
func Clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// ZeroScores returns n zero scores.
func ZeroScores(n int) []float64 {
	return make([]float64, n)
}
