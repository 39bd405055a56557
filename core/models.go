package core

import (
	"encoding/binary"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// fieldSeparator keeps ("ab", "c") and ("a", "bc") from hashing alike.
const fieldSeparator = 0x1f

// ContentHash returns a deterministic 64-bit BLAKE2b digest of the given parts.
// Identical inputs always produce identical hashes.
func ContentHash(parts ...string) uint64 {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	for i, part := range parts {
		if i > 0 {
			h.Write([]byte{fieldSeparator})
		}
		h.Write([]byte(part))
	}
	sum := h.Sum(nil)
	return binary.LittleEndian.Uint64(sum)
}

// Description is human-authored text describing one or more images.
type Description struct {
	Id        string
	Text      string
	Keywords  []string
	UpdatedAt time.Time
}

// Fingerprint identifies the scored content of a description (text and keywords).
// Derived representations built from a description are valid only while the
// fingerprint is unchanged.
func (d *Description) Fingerprint() uint64 {
	parts := make([]string, 0, len(d.Keywords)+1)
	parts = append(parts, d.Text)
	parts = append(parts, d.Keywords...)
	return ContentHash(parts...)
}

// TextFingerprint identifies the text of a description only.
func (d *Description) TextFingerprint() uint64 {
	return ContentHash(d.Text)
}

// Clone returns a deep copy of the description.
func (d Description) Clone() Description {
	if d.Keywords != nil {
		d.Keywords = append([]string(nil), d.Keywords...)
	}
	return d
}

// Image is a stored picture known to the catalog.
// Location is opaque to the matching engine (a path, URL or object key).
type Image struct {
	Name     string
	Location string
	AddedAt  time.Time
}

// Mapping links an image to the description that explains it.
// Several mappings may share one description.
type Mapping struct {
	ImageName     string
	DescriptionId string
}

// Entry is one image paired with its description, as scored by the matcher.
type Entry struct {
	Image       Image
	Description Description
}

// Catalog is a wholesale snapshot of all catalog collections in insertion order.
type Catalog struct {
	Descriptions []Description
	Images       []Image
	Mappings     []Mapping
}

// Result is a ranked search hit.
type Result struct {
	ImageName       string
	DescriptionId   string
	Description     string
	Keywords        []string
	Location        string
	Score           float64
	MatchedKeywords []string
}

// CatalogStats summarizes the catalog contents.
type CatalogStats struct {
	Images           int
	Descriptions     int
	Mappings         int
	DanglingMappings int // mappings whose image is not registered
	Keywords         int // distinct keywords across all descriptions
}

// StoredEmbedding is a persisted description vector.
// It is valid for a description only while Fingerprint matches the
// description's TextFingerprint and Model matches the active model.
type StoredEmbedding struct {
	DescriptionId string
	Fingerprint   uint64
	Model         string
	Vector        []float32
	UpdatedAt     time.Time
}
