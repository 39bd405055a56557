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

import "errors"

// Matching engine errors. All are recoverable and reported to the caller.
var (
	// ErrNotFound indicates an unknown image or description.
	ErrNotFound = errors.New("not found")

	// ErrInvalidArgument indicates malformed parameters or records.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrUnsupportedMethod indicates an unknown similarity method name.
	ErrUnsupportedMethod = errors.New("unsupported similarity method")

	// ErrScoringTimeout indicates the similarity backend exceeded its deadline.
	ErrScoringTimeout = errors.New("scoring timed out")
)

// Validation details, wrapped together with ErrInvalidArgument.
var (
	// ErrEmptyText indicates a blank description text.
	ErrEmptyText = errors.New("text cannot be empty")

	// ErrEmptyImageName indicates a blank image name.
	ErrEmptyImageName = errors.New("image name cannot be empty")

	// ErrEmptyDescriptionID indicates a blank description id.
	ErrEmptyDescriptionID = errors.New("description id cannot be empty")

	// ErrEmptyQuery indicates a blank search query.
	ErrEmptyQuery = errors.New("query cannot be empty")

	// ErrInvalidTopK indicates a non-positive result limit.
	ErrInvalidTopK = errors.New("top_k must be positive")

	// ErrInvalidThreshold indicates a threshold outside [0,1].
	ErrInvalidThreshold = errors.New("threshold must be within [0,1]")

	// ErrMalformedRecord indicates an undecodable serialized record.
	ErrMalformedRecord = errors.New("malformed record")
)
