// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package storage

import (
	"fmt"

	"github.com/mus-format/mus-go/varint"
	"github.com/poiesic/picmatch/core"
)

// MarshalOrdered prefixes a serialized record with its insertion sequence.
func MarshalOrdered(seq uint64, payload []byte) []byte {
	buf := make([]byte, varint.Uint64.Size(seq)+len(payload))
	n := varint.Uint64.Marshal(seq, buf)
	copy(buf[n:], payload)
	return buf
}

// UnmarshalOrdered splits a value written by MarshalOrdered.
func UnmarshalOrdered(data []byte) (seq uint64, payload []byte, err error) {
	seq, n, err := varint.Uint64.Unmarshal(data)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return seq, data[n:], nil
}

// MarshalDescription serializes a Description to bytes.
func MarshalDescription(desc *core.Description) []byte {
	buf := make([]byte, core.DescriptionMUS.Size(*desc))
	core.DescriptionMUS.Marshal(*desc, buf)
	return buf
}

// UnmarshalDescription deserializes a Description from bytes.
func UnmarshalDescription(data []byte) (*core.Description, error) {
	desc, _, err := core.DescriptionMUS.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return &desc, nil
}

// MarshalImage serializes an Image to bytes.
func MarshalImage(image *core.Image) []byte {
	buf := make([]byte, core.ImageMUS.Size(*image))
	core.ImageMUS.Marshal(*image, buf)
	return buf
}

// UnmarshalImage deserializes an Image from bytes.
func UnmarshalImage(data []byte) (*core.Image, error) {
	image, _, err := core.ImageMUS.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return &image, nil
}

// MarshalMapping serializes a Mapping to bytes.
func MarshalMapping(mapping *core.Mapping) []byte {
	buf := make([]byte, core.MappingMUS.Size(*mapping))
	core.MappingMUS.Marshal(*mapping, buf)
	return buf
}

// UnmarshalMapping deserializes a Mapping from bytes.
func UnmarshalMapping(data []byte) (*core.Mapping, error) {
	mapping, _, err := core.MappingMUS.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return &mapping, nil
}

// MarshalEmbedding serializes a StoredEmbedding to bytes.
func MarshalEmbedding(embedding *core.StoredEmbedding) []byte {
	buf := make([]byte, core.StoredEmbeddingMUS.Size(*embedding))
	core.StoredEmbeddingMUS.Marshal(*embedding, buf)
	return buf
}

// UnmarshalEmbedding deserializes a StoredEmbedding from bytes.
func UnmarshalEmbedding(data []byte) (*core.StoredEmbedding, error) {
	embedding, _, err := core.StoredEmbeddingMUS.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return &embedding, nil
}
