package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContentHash(t *testing.T) {
	tests := []struct {
		name  string
		parts []string
	}{
		{"single part", []string{"美丽的日落风景"}},
		{"empty string", []string{""}},
		{"many parts", []string{"text", "日落", "风景"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, ContentHash(tt.parts...), ContentHash(tt.parts...))
		})
	}
}

func TestContentHash_Different(t *testing.T) {
	assert.NotEqual(t, ContentHash("content1"), ContentHash("content2"))
	assert.NotEqual(t, ContentHash("ab", "c"), ContentHash("a", "bc"), "part boundaries must matter")
}

func TestDescription_Fingerprint(t *testing.T) {
	base := Description{Id: "desc_001", Text: "橙色天空", Keywords: []string{"橙色"}}

	t.Run("keyword change alters fingerprint", func(t *testing.T) {
		changed := base.Clone()
		changed.Keywords = append(changed.Keywords, "天空")
		assert.NotEqual(t, base.Fingerprint(), changed.Fingerprint())
		assert.Equal(t, base.TextFingerprint(), changed.TextFingerprint())
	})

	t.Run("text change alters both fingerprints", func(t *testing.T) {
		changed := base.Clone()
		changed.Text = "蓝色天空"
		assert.NotEqual(t, base.Fingerprint(), changed.Fingerprint())
		assert.NotEqual(t, base.TextFingerprint(), changed.TextFingerprint())
	})

	t.Run("id and timestamp are not content", func(t *testing.T) {
		changed := base.Clone()
		changed.Id = "desc_002"
		changed.UpdatedAt = time.Now()
		assert.Equal(t, base.Fingerprint(), changed.Fingerprint())
	})
}

func TestDescription_Clone(t *testing.T) {
	original := Description{Id: "desc_001", Text: "text", Keywords: []string{"a", "b"}}
	clone := original.Clone()
	clone.Keywords[0] = "changed"
	assert.Equal(t, "a", original.Keywords[0])
}

func TestDescriptionMUS(t *testing.T) {
	desc := Description{
		Id:        "desc_001",
		Text:      "美丽的日落风景，橙色天空",
		Keywords:  []string{"日落", "风景", "橙色"},
		UpdatedAt: time.UnixMicro(1700000000123456).UTC(),
	}

	buf := make([]byte, DescriptionMUS.Size(desc))
	n := DescriptionMUS.Marshal(desc, buf)
	require.Equal(t, len(buf), n)

	decoded, read, err := DescriptionMUS.Unmarshal(buf)
	require.NoError(t, err)
	assert.Equal(t, n, read)
	assert.Equal(t, desc, decoded)

	t.Run("truncated input fails", func(t *testing.T) {
		_, _, err := DescriptionMUS.Unmarshal(buf[:len(buf)/2])
		assert.Error(t, err)
	})
}

func TestStoredEmbeddingMUS(t *testing.T) {
	emb := StoredEmbedding{
		DescriptionId: "desc_007",
		Fingerprint:   ContentHash("text"),
		Model:         "embeddinggemma",
		Vector:        []float32{0.25, -0.5, 0.75},
	}

	buf := make([]byte, StoredEmbeddingMUS.Size(emb))
	StoredEmbeddingMUS.Marshal(emb, buf)

	decoded, _, err := StoredEmbeddingMUS.Unmarshal(buf)
	require.NoError(t, err)
	assert.Equal(t, emb.DescriptionId, decoded.DescriptionId)
	assert.Equal(t, emb.Fingerprint, decoded.Fingerprint)
	assert.Equal(t, emb.Model, decoded.Model)
	assert.Equal(t, emb.Vector, decoded.Vector)
	assert.True(t, decoded.UpdatedAt.IsZero())
}
