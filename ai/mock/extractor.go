package mock

import (
	"context"
	"strings"
	"sync/atomic"
	"unicode"

	"github.com/poiesic/picmatch/ai"
)

// MockKeywordExtractor is a test double for ai.KeywordExtractor.
// It allows custom behavior injection via function fields.
type MockKeywordExtractor struct {
	// ExtractKeywordsFunc is called by ExtractKeywords if set.
	// If nil, uses default punctuation splitting.
	ExtractKeywordsFunc func(ctx context.Context, text string, max int) ([]string, error)

	callCount atomic.Int64
}

var _ ai.KeywordExtractor = (*MockKeywordExtractor)(nil)

// NewMockKeywordExtractor creates a mock keyword extractor with default behavior.
// Note: Returns concrete type to allow test assertions via GetMockExtractor().
func NewMockKeywordExtractor() *MockKeywordExtractor {
	return &MockKeywordExtractor{}
}

// ExtractKeywords returns mock keywords for text.
// Default behavior: splits text on whitespace and punctuation and returns
// the first max distinct fragments.
func (m *MockKeywordExtractor) ExtractKeywords(ctx context.Context, text string, max int) ([]string, error) {
	m.callCount.Add(1)

	if m.ExtractKeywordsFunc != nil {
		return m.ExtractKeywordsFunc(ctx, text, max)
	}

	fragments := strings.FieldsFunc(text, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsPunct(r)
	})
	keywords := make([]string, 0, max)
	seen := make(map[string]struct{})
	for _, f := range fragments {
		if len(keywords) == max {
			break
		}
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		keywords = append(keywords, f)
	}
	return keywords, nil
}

// CallCount returns the number of times ExtractKeywords was called.
func (m *MockKeywordExtractor) CallCount() int {
	return int(m.callCount.Load())
}

// Reset clears the call count and custom functions.
func (m *MockKeywordExtractor) Reset() {
	m.callCount.Store(0)
	m.ExtractKeywordsFunc = nil
}
