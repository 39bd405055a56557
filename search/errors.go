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

package search

import "errors"

var (
	// ErrCatalogRequired is returned when a catalog is not provided.
	ErrCatalogRequired = errors.New("catalog required")

	// ErrRegistryRequired is returned when a backend registry is not provided.
	ErrRegistryRequired = errors.New("backend registry required")

	// ErrNotStarted is returned when searching before Start has fitted a backend.
	ErrNotStarted = errors.New("matcher not started")

	// ErrScoreCountMismatch is returned when a backend returns the wrong number of scores.
	ErrScoreCountMismatch = errors.New("backend returned wrong number of scores")
)
