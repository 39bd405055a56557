package segment

import (
	"fmt"

	"github.com/go-ego/gse"
)

// GSE segments text with a gse dictionary segmenter.
type GSE struct {
	seg gse.Segmenter
	hmm bool
}

var (
	_ Tokenizer = (*GSE)(nil)
	_ Tagger    = (*GSE)(nil)
)

// GSEOption configures a GSE tokenizer.
type GSEOption func(*gseConfig)

type gseConfig struct {
	dictFiles []string
	hmm       bool
}

// WithDictionary loads the given dictionary files instead of the embedded
// default dictionary.
func WithDictionary(files ...string) GSEOption {
	return func(c *gseConfig) {
		c.dictFiles = append(c.dictFiles, files...)
	}
}

// WithHMM toggles HMM recognition of words missing from the dictionary.
// Enabled by default.
func WithHMM(enabled bool) GSEOption {
	return func(c *gseConfig) {
		c.hmm = enabled
	}
}

// NewGSE loads a dictionary and returns a ready tokenizer. Loading the
// embedded dictionary takes a noticeable moment, so callers should build
// one GSE and share it.
func NewGSE(opts ...GSEOption) (*GSE, error) {
	cfg := gseConfig{hmm: true}
	for _, opt := range opts {
		opt(&cfg)
	}

	g := &GSE{hmm: cfg.hmm}
	var err error
	if len(cfg.dictFiles) == 0 {
		err = g.seg.LoadDictEmbed()
	} else {
		err = g.seg.LoadDict(cfg.dictFiles...)
	}
	if err != nil {
		return nil, fmt.Errorf("loading segmentation dictionary: %w", err)
	}
	return g, nil
}

// Tokenize implements Tokenizer.
func (g *GSE) Tokenize(text string) []string {
	return normalizeAll(g.seg.Cut(text, g.hmm))
}

// Tag implements Tagger. Tokens keep their original case.
func (g *GSE) Tag(text string) []Tagged {
	segments := g.seg.Pos(text, false)
	tagged := make([]Tagged, 0, len(segments))
	for _, s := range segments {
		if _, ok := normalize(s.Text); !ok {
			continue
		}
		tagged = append(tagged, Tagged{Text: s.Text, Pos: s.Pos})
	}
	return tagged
}
