package openai

import (
	"strings"
	"unicode"
)

// scrubString collapses whitespace runs and trims text before it is sent to
// the model. Punctuation is kept; Chinese sentences rely on it for phrasing.
func scrubString(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// cleanKeyword strips surrounding quotes, punctuation and whitespace from a
// keyword returned by the model.
func cleanKeyword(s string) string {
	return strings.TrimFunc(s, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsPunct(r) || unicode.IsSymbol(r)
	})
}

// isLetter returns true if the rune is an ASCII letter.
func isLetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

// extractJSONObject trims markdown code fences and any prose around the
// outermost JSON object in a model response.
func extractJSONObject(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)

	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start >= 0 && end > start {
		return s[start : end+1]
	}
	return s
}
