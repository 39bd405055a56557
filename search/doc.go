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

// Package search ranks catalog images against a free-text query.
//
// The Matcher scores every catalog entry with the active similarity
// backend, then:
//   - drops entries scoring below the threshold (the bound is inclusive)
//   - sorts by score descending, breaking ties by ascending image name
//   - truncates to topK
//   - reports which description keywords occur literally in the query
//
// The active backend can be switched at runtime with SetMethod. The new
// backend is fitted against the current catalog before it is swapped in,
// and a search in flight keeps the backend it started with.
package search
