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

package core

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// descriptionIDPrefix is the prefix of generated description ids ("desc_001").
const descriptionIDPrefix = "desc_"

// ValidateDescription validates a Description according to domain rules.
//
// Validation rules:
//   - Id must not be blank
//   - Text must not be blank
//
// Keywords may be empty.
func ValidateDescription(desc *Description) error {
	if desc == nil {
		return fmt.Errorf("%w: description is nil", ErrInvalidArgument)
	}
	if strings.TrimSpace(desc.Id) == "" {
		return fmt.Errorf("%w: %w", ErrInvalidArgument, ErrEmptyDescriptionID)
	}
	if strings.TrimSpace(desc.Text) == "" {
		return fmt.Errorf("%w: %w", ErrInvalidArgument, ErrEmptyText)
	}
	return nil
}

// ValidateImage validates an Image. Only the name is required.
func ValidateImage(image *Image) error {
	if image == nil {
		return fmt.Errorf("%w: image is nil", ErrInvalidArgument)
	}
	if strings.TrimSpace(image.Name) == "" {
		return fmt.Errorf("%w: %w", ErrInvalidArgument, ErrEmptyImageName)
	}
	return nil
}

// ValidateMapping validates that both sides of a mapping are named.
func ValidateMapping(mapping *Mapping) error {
	if mapping == nil {
		return fmt.Errorf("%w: mapping is nil", ErrInvalidArgument)
	}
	if strings.TrimSpace(mapping.ImageName) == "" {
		return fmt.Errorf("%w: %w", ErrInvalidArgument, ErrEmptyImageName)
	}
	if strings.TrimSpace(mapping.DescriptionId) == "" {
		return fmt.Errorf("%w: %w", ErrInvalidArgument, ErrEmptyDescriptionID)
	}
	return nil
}

// ValidateQuery validates search parameters.
//
// Validation rules:
//   - query must contain a non-whitespace character
//   - topK must be positive
//   - threshold must be within [0,1]
func ValidateQuery(query string, topK int, threshold float64) error {
	if strings.TrimSpace(query) == "" {
		return fmt.Errorf("%w: %w", ErrInvalidArgument, ErrEmptyQuery)
	}
	if topK <= 0 {
		return fmt.Errorf("%w: %w: got %d", ErrInvalidArgument, ErrInvalidTopK, topK)
	}
	if math.IsNaN(threshold) || threshold < 0 || threshold > 1 {
		return fmt.Errorf("%w: %w: got %v", ErrInvalidArgument, ErrInvalidThreshold, threshold)
	}
	return nil
}

// NormalizeKeywords trims keywords and drops blanks and duplicates,
// preserving first-seen order. Returns an empty, non-nil slice for no keywords.
func NormalizeKeywords(keywords []string) []string {
	result := make([]string, 0, len(keywords))
	seen := make(map[string]struct{}, len(keywords))
	for _, kw := range keywords {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		if _, ok := seen[kw]; ok {
			continue
		}
		seen[kw] = struct{}{}
		result = append(result, kw)
	}
	return result
}

// FormatDescriptionID formats the n-th generated description id.
func FormatDescriptionID(n int) string {
	return fmt.Sprintf("%s%03d", descriptionIDPrefix, n)
}

// DescriptionSequence returns the numeric suffix of a generated description id.
// ok is false for ids that do not follow the "desc_NNN" form.
func DescriptionSequence(id string) (n int, ok bool) {
	suffix, found := strings.CutPrefix(id, descriptionIDPrefix)
	if !found || suffix == "" {
		return 0, false
	}
	n, err := strconv.Atoi(suffix)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
