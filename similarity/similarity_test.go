package similarity

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/poiesic/picmatch/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubBackend struct {
	method      Method
	invalidated []string
	closeErr    error
	closed      bool
}

func (s *stubBackend) Method() Method { return s.method }
func (s *stubBackend) Fit(context.Context, []core.Description) error { return nil }
func (s *stubBackend) Invalidate(ids ...string) { s.invalidated = append(s.invalidated, ids...) }
func (s *stubBackend) Close() error {
	s.closed = true
	return s.closeErr
}
func (s *stubBackend) Score(_ context.Context, _ string, corpus []core.Description) ([]float64, error) {
	return ZeroScores(len(corpus)), nil
}

func TestParseMethod(t *testing.T) {
	tests := []struct {
		in   string
		want Method
	}{
		{"lexical", Lexical},
		{"TFIDF", Lexical},
		{" tfidf ", Lexical},
		{"semantic", Semantic},
		{"sentence_transformer", Semantic},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMethod(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("unknown", func(t *testing.T) {
		_, err := ParseMethod("bm25")
		assert.ErrorIs(t, err, core.ErrUnsupportedMethod)
	})
}

func TestClamp01(t *testing.T) {
	assert.Equal(t, 0.0, Clamp01(-0.2))
	assert.Equal(t, 1.0, Clamp01(1.0000001))
	assert.Equal(t, 0.5, Clamp01(0.5))
	assert.Equal(t, 0.0, Clamp01(math.NaN()))
}

func TestRegistry(t *testing.T) {
	lex := &stubBackend{method: Lexical}
	sem := &stubBackend{method: Semantic, closeErr: errors.New("boom")}
	r := NewRegistry(lex, nil, sem)

	assert.Equal(t, []Method{Lexical, Semantic}, r.Methods())

	b, err := r.Get(Semantic)
	require.NoError(t, err)
	assert.Same(t, sem, b)

	_, err = r.Get(Method("bm25"))
	assert.ErrorIs(t, err, core.ErrUnsupportedMethod)

	t.Run("register replaces", func(t *testing.T) {
		lex2 := &stubBackend{method: Lexical}
		r.Register(lex2)
		b, err := r.Get(Lexical)
		require.NoError(t, err)
		assert.Same(t, lex2, b)
		assert.Len(t, r.Methods(), 2)
		lex = lex2
	})

	t.Run("invalidate fans out", func(t *testing.T) {
		r.Invalidate("desc_001")
		r.Invalidate()
		assert.Equal(t, []string{"desc_001"}, lex.invalidated)
		assert.Equal(t, []string{"desc_001"}, sem.invalidated)
	})

	t.Run("close joins errors", func(t *testing.T) {
		err := r.Close()
		assert.ErrorContains(t, err, "boom")
		assert.True(t, lex.closed)
		assert.True(t, sem.closed)
	})
}
