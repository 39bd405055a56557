package segment

import (
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultMaxKeywords is the keyword count used when callers pass zero.
const DefaultMaxKeywords = 5

// keywordTags are the part-of-speech prefixes eligible for keywords:
// nouns, verbs, adjectives, idioms and fixed expressions.
var keywordTags = []string{"n", "v", "a", "i", "l"}

// Qualifies reports whether word may be used as a keyword. A keyword has
// at least two characters, is not a stop word, and contains at least one
// letter.
func Qualifies(word string) bool {
	if utf8.RuneCountInString(word) < 2 || IsStopword(word) {
		return false
	}
	for _, r := range word {
		if unicode.IsLetter(r) || r == '_' {
			return true
		}
	}
	return false
}

// ExtractKeywords returns up to max keywords for text.
//
// When tok implements Tagger, qualifying words with an eligible tag are
// ranked by frequency, ties going to the earlier word. If that yields
// nothing, the first qualifying plain tokens are used instead.
func ExtractKeywords(tok Tokenizer, text string, max int) []string {
	if max <= 0 {
		max = DefaultMaxKeywords
	}
	if strings.TrimSpace(text) == "" {
		return []string{}
	}

	if tagger, ok := tok.(Tagger); ok {
		if keywords := rankTagged(tagger.Tag(text), max); len(keywords) > 0 {
			return keywords
		}
	}

	keywords := make([]string, 0, max)
	seen := make(map[string]struct{})
	for _, token := range tok.Tokenize(text) {
		if len(keywords) == max {
			break
		}
		if _, dup := seen[token]; dup || !Qualifies(token) {
			continue
		}
		seen[token] = struct{}{}
		keywords = append(keywords, token)
	}
	return keywords
}

func rankTagged(tagged []Tagged, max int) []string {
	type candidate struct {
		word  string
		count int
		first int
	}

	index := make(map[string]int)
	var candidates []candidate
	for i, t := range tagged {
		word := strings.TrimSpace(t.Text)
		if !eligibleTag(t.Pos) || !Qualifies(word) {
			continue
		}
		if at, ok := index[word]; ok {
			candidates[at].count++
			continue
		}
		index[word] = len(candidates)
		candidates = append(candidates, candidate{word: word, count: 1, first: i})
	}

	slices.SortStableFunc(candidates, func(a, b candidate) int {
		if a.count != b.count {
			return b.count - a.count
		}
		return a.first - b.first
	})

	keywords := make([]string, 0, min(max, len(candidates)))
	for _, c := range candidates[:min(max, len(candidates))] {
		keywords = append(keywords, c.word)
	}
	return keywords
}

func eligibleTag(pos string) bool {
	for _, prefix := range keywordTags {
		if strings.HasPrefix(pos, prefix) {
			return true
		}
	}
	return false
}
