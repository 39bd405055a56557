package core

import (
	"fmt"
	"time"

	mus "github.com/mus-format/mus-go"
	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/raw"
	"github.com/mus-format/mus-go/varint"
)

// MUS serializers for persisted catalog records.
// Timestamps are stored as Unix microseconds.
var (
	DescriptionMUS     = descriptionMUS{}
	ImageMUS           = imageMUS{}
	MappingMUS         = mappingMUS{}
	StoredEmbeddingMUS = storedEmbeddingMUS{}
)

var (
	_ mus.Serializer[Description]     = DescriptionMUS
	_ mus.Serializer[Image]           = ImageMUS
	_ mus.Serializer[Mapping]         = MappingMUS
	_ mus.Serializer[StoredEmbedding] = StoredEmbeddingMUS
)

// cursor accumulates offsets and the first error while decoding a record.
type cursor struct {
	bs  []byte
	n   int
	err error
}

func (c *cursor) string() string {
	if c.err != nil {
		return ""
	}
	v, n, err := ord.String.Unmarshal(c.bs[c.n:])
	c.n += n
	c.err = err
	return v
}

func (c *cursor) uint64() uint64 {
	if c.err != nil {
		return 0
	}
	v, n, err := varint.Uint64.Unmarshal(c.bs[c.n:])
	c.n += n
	c.err = err
	return v
}

func (c *cursor) time() time.Time {
	if c.err != nil {
		return time.Time{}
	}
	v, n, err := varint.Int64.Unmarshal(c.bs[c.n:])
	c.n += n
	c.err = err
	if v == 0 {
		return time.Time{}
	}
	return time.UnixMicro(v).UTC()
}

// length decodes a collection length, rejecting lengths the remaining
// bytes cannot possibly hold.
func (c *cursor) length() int {
	l := c.uint64()
	if c.err != nil {
		return 0
	}
	if l > uint64(len(c.bs)-c.n) {
		c.err = fmt.Errorf("%w: length %d exceeds remaining %d bytes", ErrMalformedRecord, l, len(c.bs)-c.n)
		return 0
	}
	return int(l)
}

func (c *cursor) strings() []string {
	l := c.length()
	if c.err != nil {
		return nil
	}
	result := make([]string, 0, l)
	for i := 0; i < l && c.err == nil; i++ {
		result = append(result, c.string())
	}
	return result
}

func micros(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMicro()
}

func stringsSize(v []string) (size int) {
	size = varint.Uint64.Size(uint64(len(v)))
	for _, s := range v {
		size += ord.String.Size(s)
	}
	return size
}

func marshalStrings(v []string, bs []byte) (n int) {
	n = varint.Uint64.Marshal(uint64(len(v)), bs)
	for _, s := range v {
		n += ord.String.Marshal(s, bs[n:])
	}
	return n
}

type descriptionMUS struct{}

func (descriptionMUS) Marshal(v Description, bs []byte) (n int) {
	n = ord.String.Marshal(v.Id, bs)
	n += ord.String.Marshal(v.Text, bs[n:])
	n += marshalStrings(v.Keywords, bs[n:])
	n += varint.Int64.Marshal(micros(v.UpdatedAt), bs[n:])
	return n
}

func (descriptionMUS) Unmarshal(bs []byte) (v Description, n int, err error) {
	c := &cursor{bs: bs}
	v.Id = c.string()
	v.Text = c.string()
	v.Keywords = c.strings()
	v.UpdatedAt = c.time()
	return v, c.n, c.err
}

func (descriptionMUS) Size(v Description) (size int) {
	size = ord.String.Size(v.Id)
	size += ord.String.Size(v.Text)
	size += stringsSize(v.Keywords)
	size += varint.Int64.Size(micros(v.UpdatedAt))
	return size
}

func (s descriptionMUS) Skip(bs []byte) (n int, err error) {
	_, n, err = s.Unmarshal(bs)
	return n, err
}

type imageMUS struct{}

func (imageMUS) Marshal(v Image, bs []byte) (n int) {
	n = ord.String.Marshal(v.Name, bs)
	n += ord.String.Marshal(v.Location, bs[n:])
	n += varint.Int64.Marshal(micros(v.AddedAt), bs[n:])
	return n
}

func (imageMUS) Unmarshal(bs []byte) (v Image, n int, err error) {
	c := &cursor{bs: bs}
	v.Name = c.string()
	v.Location = c.string()
	v.AddedAt = c.time()
	return v, c.n, c.err
}

func (imageMUS) Size(v Image) (size int) {
	size = ord.String.Size(v.Name)
	size += ord.String.Size(v.Location)
	size += varint.Int64.Size(micros(v.AddedAt))
	return size
}

func (s imageMUS) Skip(bs []byte) (n int, err error) {
	_, n, err = s.Unmarshal(bs)
	return n, err
}

type mappingMUS struct{}

func (mappingMUS) Marshal(v Mapping, bs []byte) (n int) {
	n = ord.String.Marshal(v.ImageName, bs)
	n += ord.String.Marshal(v.DescriptionId, bs[n:])
	return n
}

func (mappingMUS) Unmarshal(bs []byte) (v Mapping, n int, err error) {
	c := &cursor{bs: bs}
	v.ImageName = c.string()
	v.DescriptionId = c.string()
	return v, c.n, c.err
}

func (mappingMUS) Size(v Mapping) (size int) {
	return ord.String.Size(v.ImageName) + ord.String.Size(v.DescriptionId)
}

func (s mappingMUS) Skip(bs []byte) (n int, err error) {
	_, n, err = s.Unmarshal(bs)
	return n, err
}

type storedEmbeddingMUS struct{}

func (storedEmbeddingMUS) Marshal(v StoredEmbedding, bs []byte) (n int) {
	n = ord.String.Marshal(v.DescriptionId, bs)
	n += varint.Uint64.Marshal(v.Fingerprint, bs[n:])
	n += ord.String.Marshal(v.Model, bs[n:])
	n += varint.Uint64.Marshal(uint64(len(v.Vector)), bs[n:])
	for _, f := range v.Vector {
		n += raw.Float32.Marshal(f, bs[n:])
	}
	n += varint.Int64.Marshal(micros(v.UpdatedAt), bs[n:])
	return n
}

func (storedEmbeddingMUS) Unmarshal(bs []byte) (v StoredEmbedding, n int, err error) {
	c := &cursor{bs: bs}
	v.DescriptionId = c.string()
	v.Fingerprint = c.uint64()
	v.Model = c.string()
	l := c.length()
	if c.err == nil {
		v.Vector = make([]float32, l)
		for i := 0; i < l; i++ {
			f, fn, ferr := raw.Float32.Unmarshal(c.bs[c.n:])
			c.n += fn
			if ferr != nil {
				c.err = ferr
				break
			}
			v.Vector[i] = f
		}
	}
	v.UpdatedAt = c.time()
	return v, c.n, c.err
}

func (storedEmbeddingMUS) Size(v StoredEmbedding) (size int) {
	size = ord.String.Size(v.DescriptionId)
	size += varint.Uint64.Size(v.Fingerprint)
	size += ord.String.Size(v.Model)
	size += varint.Uint64.Size(uint64(len(v.Vector)))
	for _, f := range v.Vector {
		size += raw.Float32.Size(f)
	}
	size += varint.Int64.Size(micros(v.UpdatedAt))
	return size
}

func (s storedEmbeddingMUS) Skip(bs []byte) (n int, err error) {
	_, n, err = s.Unmarshal(bs)
	return n, err
}
