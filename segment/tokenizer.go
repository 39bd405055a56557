package segment

import (
	"strings"
	"unicode"
)

// Tokenizer splits text into normalized terms.
// Implementations must be safe for concurrent use.
type Tokenizer interface {
	Tokenize(text string) []string
}

// Tagged is a token with its part-of-speech tag.
type Tagged struct {
	Text string
	Pos  string
}

// Tagger is implemented by tokenizers that can tag parts of speech.
type Tagger interface {
	Tag(text string) []Tagged
}

// normalize lowercases and trims a raw token. The second return value is
// false when the token carries no letters or digits.
func normalize(token string) (string, bool) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", false
	}
	for _, r := range token {
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			return strings.ToLower(token), true
		}
	}
	return "", false
}

// normalizeAll applies normalize to every token, dropping rejects.
func normalizeAll(tokens []string) []string {
	out := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if t, ok := normalize(token); ok {
			out = append(out, t)
		}
	}
	return out
}
