package openai

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRepairJSON(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"valid json untouched", `{"keywords": ["日落", "风景"]}`, `{"keywords": ["日落", "风景"]}`},
		{"missing opening quote", `{keywords": ["日落"]}`, `{"keywords": ["日落"]}`},
		{"trailing comma in array", `{"keywords": ["日落", "风景",]}`, `{"keywords": ["日落", "风景"]}`},
		{"trailing comma in object", "{\"keywords\": [],\n}", "{\"keywords\": []\n}"},
		{"comma inside string kept", `{"keywords": ["a,]"]}`, `{"keywords": ["a,]"]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, repairJSON(tt.input))
		})
	}
}

func TestExtractJSONObject(t *testing.T) {
	assert.Equal(t, `{"keywords": []}`, extractJSONObject("```json\n{\"keywords\": []}\n```"))
	assert.Equal(t, `{"keywords": ["海滩"]}`, extractJSONObject(`Here you go: {"keywords": ["海滩"]} hope it helps`))
	assert.Equal(t, "no json", extractJSONObject("no json"))
}

func TestScrubString(t *testing.T) {
	assert.Equal(t, "美丽的日落风景，橙色天空", scrubString("  美丽的日落风景，橙色天空\n"))
	assert.Equal(t, "a red lighthouse", scrubString("a\t red\n\nlighthouse"))
	assert.Equal(t, "", scrubString(" \n\t "))
}

func TestFilterKeywords(t *testing.T) {
	text := "美丽的日落风景，橙色天空"

	t.Run("drops keywords absent from text", func(t *testing.T) {
		got := filterKeywords([]string{"日落", "大海", "风景"}, text, 5)
		assert.Equal(t, []string{"日落", "风景"}, got)
	})

	t.Run("cleans and dedupes", func(t *testing.T) {
		got := filterKeywords([]string{" 日落 ", "「日落」", "橙色。"}, text, 5)
		assert.Equal(t, []string{"日落", "橙色"}, got)
	})

	t.Run("truncates to max", func(t *testing.T) {
		got := filterKeywords([]string{"日落", "风景", "橙色", "天空"}, text, 2)
		assert.Equal(t, []string{"日落", "风景"}, got)
	})

	t.Run("case insensitive containment", func(t *testing.T) {
		got := filterKeywords([]string{"Lighthouse"}, "a red lighthouse", 5)
		assert.Equal(t, []string{"Lighthouse"}, got)
	})
}

func TestBuildSystemPrompt(t *testing.T) {
	prompt := buildSystemPrompt(3)
	assert.Contains(t, prompt, `"maxItems": 3`)
	assert.Contains(t, prompt, "at most 3 keywords")
}
