package reembed

import (
	"math"
	"testing"

	"github.com/poiesic/picmatch/ai/mock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func magnitude(v []float32) float64 {
	var sum float64
	for _, val := range v {
		sum += float64(val) * float64(val)
	}
	return math.Sqrt(sum)
}

func TestNormalizeVector(t *testing.T) {
	t.Run("embedding becomes unit length", func(t *testing.T) {
		raw := mock.DeterministicVector("美丽的日落风景，橙色天空", mock.DefaultDimensions)
		normalized := NormalizeVector(raw)

		require.Len(t, normalized, len(raw))
		assert.InDelta(t, 1.0, magnitude(normalized), 1e-6)
		assert.True(t, IsUsable(normalized))
	})

	t.Run("input is left untouched", func(t *testing.T) {
		raw := []float32{3, 4}
		normalized := NormalizeVector(raw)
		assert.Equal(t, []float32{3, 4}, raw)
		assert.InDeltaSlice(t, []float64{0.6, 0.8}, []float64{float64(normalized[0]), float64(normalized[1])}, 1e-6)
	})

	t.Run("zero vector stays zero and is unusable", func(t *testing.T) {
		normalized := NormalizeVector([]float32{0, 0, 0})
		assert.Equal(t, []float32{0, 0, 0}, normalized)
		assert.False(t, IsUsable(normalized))
	})

	t.Run("empty vector", func(t *testing.T) {
		assert.Empty(t, NormalizeVector(nil))
	})
}

func TestIsUsable(t *testing.T) {
	tests := []struct {
		name   string
		vector []float32
		want   bool
	}{
		{"unit vector", []float32{0, 1}, true},
		{"negative components", []float32{-0.6, 0.8}, true},
		{"missing embedding", nil, false},
		{"zero vector", []float32{0, 0}, false},
		{"NaN component", []float32{float32(math.NaN()), 1}, false},
		{"infinite component", []float32{float32(math.Inf(-1)), 1}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsUsable(tt.vector))
		})
	}
}

func TestDot(t *testing.T) {
	query := NormalizeVector(mock.DeterministicVector("日落", mock.DefaultDimensions))

	t.Run("same text scores one", func(t *testing.T) {
		same := NormalizeVector(mock.DeterministicVector("日落", mock.DefaultDimensions))
		cos, ok := Dot(query, same)
		require.True(t, ok)
		assert.InDelta(t, 1.0, cos, 1e-5)
	})

	t.Run("cosine of unit vectors", func(t *testing.T) {
		cos, ok := Dot([]float32{1, 0}, []float32{0.6, 0.8})
		require.True(t, ok)
		assert.InDelta(t, 0.6, cos, 1e-6)

		cos, ok = Dot([]float32{1, 0}, []float32{-1, 0})
		require.True(t, ok)
		assert.InDelta(t, -1.0, cos, 1e-6, "callers clamp negative cosine")
	})

	t.Run("embedding from another model", func(t *testing.T) {
		other := NormalizeVector(mock.DeterministicVector("日落", mock.DefaultDimensions/2))
		_, ok := Dot(query, other)
		assert.False(t, ok)
	})

	t.Run("missing embedding", func(t *testing.T) {
		_, ok := Dot(nil, nil)
		assert.False(t, ok)
	})

	t.Run("non-finite result", func(t *testing.T) {
		_, ok := Dot([]float32{float32(math.Inf(1)), 0}, []float32{1, 0})
		assert.False(t, ok)
	})
}
