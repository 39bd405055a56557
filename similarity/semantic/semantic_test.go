package semantic

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/poiesic/picmatch/ai/mock"
	"github.com/poiesic/picmatch/core"
	"github.com/poiesic/picmatch/similarity"
	"github.com/poiesic/picmatch/storage"
	"github.com/poiesic/picmatch/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sunsetText = "美丽的日落风景，橙色天空"

func testCorpus() []core.Description {
	return []core.Description{
		{Id: "desc_001", Text: sunsetText, Keywords: []string{"日落", "风景", "橙色"}},
		{Id: "desc_002", Text: "海边的沙滩，蓝色大海", Keywords: []string{"沙滩", "大海"}},
		{Id: "desc_003", Text: "雪山下的湖泊，清晨的薄雾", Keywords: []string{"雪山", "湖泊"}},
	}
}

func newBackend(t *testing.T, embedder *mock.MockEmbedder, opts ...Option) *Backend {
	t.Helper()
	opts = append([]Option{WithRetry(1, time.Millisecond), WithWorkers(2)}, opts...)
	b, err := New(embedder, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func setupStore(t *testing.T) storage.EmbeddingRepository {
	t.Helper()
	catalogRepo, embeddingRepo, backend, err := badger.NewMemoryRepositories()
	require.NoError(t, err)
	t.Cleanup(func() {
		catalogRepo.Close()
		embeddingRepo.Close()
		backend.Close()
	})
	return embeddingRepo
}

func TestNew(t *testing.T) {
	t.Run("requires embedder", func(t *testing.T) {
		_, err := New(nil)
		assert.ErrorIs(t, err, similarity.ErrEmbedderRequired)
	})

	t.Run("rejects zero attempts", func(t *testing.T) {
		_, err := New(mock.NewMockEmbedder(), WithRetry(0, time.Millisecond))
		assert.ErrorIs(t, err, core.ErrInvalidArgument)
	})

	t.Run("query cache can be disabled", func(t *testing.T) {
		b := newBackend(t, mock.NewMockEmbedder(), WithQueryCache(0))
		assert.Nil(t, b.queries)
		assert.Equal(t, similarity.Semantic, b.Method())
	})
}

func TestFitAndScore(t *testing.T) {
	ctx := context.Background()
	embedder := mock.NewMockEmbedder()
	b := newBackend(t, embedder, WithBatchSize(2))
	corpus := testCorpus()

	require.NoError(t, b.Fit(ctx, corpus))
	assert.Equal(t, 3, embedder.TextsEmbedded())

	scores, err := b.Score(ctx, sunsetText, corpus)
	require.NoError(t, err)
	require.Len(t, scores, 3)
	assert.InDelta(t, 1.0, scores[0], 1e-5)
	for _, s := range scores {
		assert.GreaterOrEqual(t, s, 0.0)
		assert.LessOrEqual(t, s, 1.0)
	}

	stats := b.Stats()
	assert.Equal(t, 3, stats.Vectors)
	assert.Equal(t, 0, stats.Failed)
	assert.Equal(t, mock.DefaultDimensions, stats.Dimensions)
}

func TestFit_ReusesVectors(t *testing.T) {
	ctx := context.Background()
	embedder := mock.NewMockEmbedder()
	b := newBackend(t, embedder)
	corpus := testCorpus()

	require.NoError(t, b.Fit(ctx, corpus))
	require.NoError(t, b.Fit(ctx, corpus))
	assert.Equal(t, 3, embedder.TextsEmbedded())

	// Keyword edits do not change the text, so the vector stays valid.
	corpus[0].Keywords = []string{"日落"}
	require.NoError(t, b.Fit(ctx, corpus))
	assert.Equal(t, 3, embedder.TextsEmbedded())

	corpus[1].Text = "金色的麦田"
	require.NoError(t, b.Fit(ctx, corpus))
	assert.Equal(t, 4, embedder.TextsEmbedded())

	b.Invalidate("desc_003")
	require.NoError(t, b.Fit(ctx, corpus))
	assert.Equal(t, 5, embedder.TextsEmbedded())
}

func TestFit_DuplicateIDs(t *testing.T) {
	ctx := context.Background()
	embedder := mock.NewMockEmbedder()
	b := newBackend(t, embedder)
	corpus := testCorpus()
	corpus = append(corpus, corpus[0])

	require.NoError(t, b.Fit(ctx, corpus))
	assert.Equal(t, 3, embedder.TextsEmbedded())

	scores, err := b.Score(ctx, "日落", corpus)
	require.NoError(t, err)
	assert.Equal(t, scores[0], scores[3])
}

func TestFit_VectorStore(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)
	corpus := testCorpus()

	first := newBackend(t, mock.NewMockEmbedder(), WithVectorStore(store), WithModelName("model-a"))
	require.NoError(t, first.Fit(ctx, corpus))

	stored, err := store.GetEmbeddings(ctx, "desc_001", "desc_002", "desc_003")
	require.NoError(t, err)
	assert.Len(t, stored, 3)
	assert.Equal(t, "model-a", stored["desc_001"].Model)

	t.Run("same model restores from store", func(t *testing.T) {
		embedder := mock.NewMockEmbedder()
		b := newBackend(t, embedder, WithVectorStore(store), WithModelName("model-a"))
		require.NoError(t, b.Fit(ctx, corpus))
		assert.Equal(t, 0, embedder.TextsEmbedded())
		assert.Equal(t, 3, b.Stats().Vectors)
	})

	t.Run("different model re-embeds", func(t *testing.T) {
		embedder := mock.NewMockEmbedder()
		b := newBackend(t, embedder, WithVectorStore(store), WithModelName("model-b"))
		require.NoError(t, b.Fit(ctx, corpus))
		assert.Equal(t, 3, embedder.TextsEmbedded())
	})

	t.Run("changed text re-embeds", func(t *testing.T) {
		embedder := mock.NewMockEmbedder()
		b := newBackend(t, embedder, WithVectorStore(store), WithModelName("model-b"))
		changed := testCorpus()
		changed[2].Text = "城市夜景"
		require.NoError(t, b.Fit(ctx, changed))
		assert.Equal(t, 1, embedder.TextsEmbedded())
	})
}

func TestFit_PartialFailure(t *testing.T) {
	ctx := context.Background()
	embedder := mock.NewMockEmbedder()
	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		vectors := make([][]float32, len(texts))
		for i, text := range texts {
			if strings.Contains(text, "沙滩") {
				return nil, errors.New("rejected text")
			}
			vectors[i] = mock.DeterministicVector(text, mock.DefaultDimensions)
		}
		return vectors, nil
	}
	b := newBackend(t, embedder, WithBatchSize(10))
	corpus := testCorpus()

	require.NoError(t, b.Fit(ctx, corpus))
	stats := b.Stats()
	assert.Equal(t, 2, stats.Vectors)
	assert.Equal(t, 1, stats.Failed)

	scores, err := b.Score(ctx, "沙滩", corpus)
	require.NoError(t, err)
	assert.Zero(t, scores[1])
}

func TestFit_AllFailed(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		return nil, errors.New("service unavailable")
	}
	b := newBackend(t, embedder)

	err := b.Fit(context.Background(), testCorpus())
	assert.ErrorIs(t, err, similarity.ErrEmbeddingFailed)
	assert.Equal(t, 0, b.Stats().Vectors)
}

func TestFit_ZeroVectorIsFailure(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		vectors := make([][]float32, len(texts))
		for i := range texts {
			vectors[i] = make([]float32, mock.DefaultDimensions)
		}
		return vectors, nil
	}
	b := newBackend(t, embedder)

	err := b.Fit(context.Background(), testCorpus())
	assert.ErrorIs(t, err, similarity.ErrEmbeddingFailed)
}

func TestScore_EdgeCases(t *testing.T) {
	ctx := context.Background()
	embedder := mock.NewMockEmbedder()
	b := newBackend(t, embedder)
	corpus := testCorpus()
	require.NoError(t, b.Fit(ctx, corpus))

	t.Run("empty corpus", func(t *testing.T) {
		scores, err := b.Score(ctx, "日落", nil)
		require.NoError(t, err)
		assert.Empty(t, scores)
	})

	t.Run("blank query skips the embedder", func(t *testing.T) {
		calls := embedder.CallCount()
		scores, err := b.Score(ctx, "  \t", corpus)
		require.NoError(t, err)
		assert.Equal(t, []float64{0, 0, 0}, scores)
		assert.Equal(t, calls, embedder.CallCount())
	})

	t.Run("query vectors are cached", func(t *testing.T) {
		_, err := b.Score(ctx, "橙色天空", corpus)
		require.NoError(t, err)
		calls := embedder.CallCount()

		_, err = b.Score(ctx, "橙色天空", corpus)
		require.NoError(t, err)
		assert.Equal(t, calls, embedder.CallCount())
	})

	t.Run("unfitted descriptions are embedded lazily", func(t *testing.T) {
		extra := append(testCorpus(), core.Description{Id: "desc_004", Text: "城市夜景"})
		scores, err := b.Score(ctx, "城市夜景", extra)
		require.NoError(t, err)
		assert.InDelta(t, 1.0, scores[3], 1e-5)
		assert.Equal(t, 4, b.Stats().Vectors)
	})
}

func TestScore_Errors(t *testing.T) {
	corpus := testCorpus()

	t.Run("query embedding failure", func(t *testing.T) {
		embedder := mock.NewMockEmbedder()
		b := newBackend(t, embedder)
		require.NoError(t, b.Fit(context.Background(), corpus))

		embedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
			return nil, errors.New("model offline")
		}
		_, err := b.Score(context.Background(), "日落", corpus)
		assert.ErrorIs(t, err, similarity.ErrEmbeddingFailed)
	})

	t.Run("expired deadline is a scoring timeout", func(t *testing.T) {
		b := newBackend(t, mock.NewMockEmbedder())
		ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
		defer cancel()

		_, err := b.Score(ctx, "日落", corpus)
		assert.ErrorIs(t, err, core.ErrScoringTimeout)
	})

	t.Run("cancelled context", func(t *testing.T) {
		b := newBackend(t, mock.NewMockEmbedder())
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := b.Score(ctx, "日落", corpus)
		assert.ErrorIs(t, err, context.Canceled)
		assert.NotErrorIs(t, err, core.ErrScoringTimeout)
	})
}
