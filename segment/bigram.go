package segment

import (
	"strings"
	"unicode"
)

// Bigram is a dictionary-free tokenizer.
//
// Runs of CJK characters become overlapping two-character terms; a run of
// a single character is kept as a unigram. Runs of other letters and
// digits become whole lowercased words. Everything else separates runs.
type Bigram struct{}

var _ Tokenizer = Bigram{}

// NewBigram returns a Bigram tokenizer.
func NewBigram() Bigram {
	return Bigram{}
}

// Tokenize implements Tokenizer.
func (Bigram) Tokenize(text string) []string {
	var (
		tokens []string
		cjk    []rune
		word   strings.Builder
	)

	flushCJK := func() {
		switch len(cjk) {
		case 0:
		case 1:
			tokens = append(tokens, string(cjk))
		default:
			for i := 0; i+1 < len(cjk); i++ {
				tokens = append(tokens, string(cjk[i:i+2]))
			}
		}
		cjk = cjk[:0]
	}
	flushWord := func() {
		if word.Len() > 0 {
			tokens = append(tokens, strings.ToLower(word.String()))
			word.Reset()
		}
	}

	for _, r := range text {
		switch {
		case isCJK(r):
			flushWord()
			cjk = append(cjk, r)
		case unicode.IsLetter(r) || unicode.IsNumber(r):
			flushCJK()
			word.WriteRune(r)
		default:
			flushCJK()
			flushWord()
		}
	}
	flushCJK()
	flushWord()

	return tokens
}

func isCJK(r rune) bool {
	return unicode.In(r, unicode.Han, unicode.Hiragana, unicode.Katakana, unicode.Hangul)
}
