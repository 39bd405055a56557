package segment

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBigram_Tokenize(t *testing.T) {
	tok := NewBigram()

	tests := []struct {
		name string
		text string
		want []string
	}{
		{"empty", "", nil},
		{"whitespace only", "  \t\n", nil},
		{"single han", "山", []string{"山"}},
		{"han run", "日落风景", []string{"日落", "落风", "风景"}},
		{"punctuation splits runs", "日落，橙色", []string{"日落", "橙色"}},
		{"mixed scripts", "Sunset日落 at 6pm", []string{"sunset", "日落", "at", "6pm"}},
		{"symbols dropped", "!!! ... ###", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tok.Tokenize(tt.text))
		})
	}
}

func TestQualifies(t *testing.T) {
	assert.True(t, Qualifies("日落"))
	assert.True(t, Qualifies("sunset"))
	assert.False(t, Qualifies("山"), "single rune")
	assert.False(t, Qualifies("一个"), "stop word")
	assert.False(t, Qualifies("2024"), "digits only")
	assert.False(t, Qualifies("12.5"), "digits and punctuation")
	assert.True(t, Qualifies("3d"))
}

func TestIsStopword(t *testing.T) {
	assert.True(t, IsStopword("的"))
	assert.True(t, IsStopword("为什么"))
	assert.False(t, IsStopword("日落"))
}

type fakeTagger struct {
	Bigram
	tags []Tagged
}

func (f fakeTagger) Tag(string) []Tagged { return f.tags }

func TestExtractKeywords(t *testing.T) {
	t.Run("blank text", func(t *testing.T) {
		assert.Empty(t, ExtractKeywords(NewBigram(), "   ", 5))
	})

	t.Run("plain tokenizer falls back to first qualifying tokens", func(t *testing.T) {
		got := ExtractKeywords(NewBigram(), "美丽的日落风景，橙色天空", 3)
		assert.Equal(t, []string{"美丽", "丽的", "的日"}, got)
	})

	t.Run("zero max uses default", func(t *testing.T) {
		got := ExtractKeywords(NewBigram(), "美丽的日落风景，橙色天空", 0)
		assert.Len(t, got, DefaultMaxKeywords)
	})

	t.Run("tagged words ranked by frequency then position", func(t *testing.T) {
		tok := fakeTagger{tags: []Tagged{
			{Text: "美丽", Pos: "a"},
			{Text: "的", Pos: "uj"},
			{Text: "日落", Pos: "n"},
			{Text: "风景", Pos: "n"},
			{Text: "橙色", Pos: "n"},
			{Text: "天空", Pos: "n"},
			{Text: "日落", Pos: "n"},
			{Text: "很", Pos: "d"},
			{Text: "出现", Pos: "v"},
			{Text: "2024", Pos: "m"},
		}}
		got := ExtractKeywords(tok, "美丽的日落风景橙色天空日落很出现", 3)
		assert.Equal(t, []string{"日落", "美丽", "风景"}, got)
	})

	t.Run("tagger without eligible words falls back", func(t *testing.T) {
		tok := fakeTagger{tags: []Tagged{{Text: "很", Pos: "d"}}}
		got := ExtractKeywords(tok, "蓝天", 5)
		assert.Equal(t, []string{"蓝天"}, got)
	})
}

func TestGSE(t *testing.T) {
	if testing.Short() {
		t.Skip("loading the segmentation dictionary is slow")
	}

	tok, err := NewGSE()
	require.NoError(t, err)

	t.Run("segments cover the input", func(t *testing.T) {
		tokens := tok.Tokenize("美丽的日落风景")
		require.NotEmpty(t, tokens)
		assert.Equal(t, "美丽的日落风景", strings.Join(tokens, ""))
	})

	t.Run("punctuation is dropped", func(t *testing.T) {
		for _, token := range tok.Tokenize("日落，风景。") {
			assert.NotContains(t, []string{"，", "。"}, token)
		}
	})

	t.Run("tags carry part of speech", func(t *testing.T) {
		tagged := tok.Tag("美丽的日落风景")
		require.NotEmpty(t, tagged)
		for _, tg := range tagged {
			assert.NotEmpty(t, tg.Pos)
		}
	})
}
