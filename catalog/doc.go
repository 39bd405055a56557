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

// Package catalog owns the descriptions, images and image→description
// mappings that the matcher scores.
//
// The Store keeps all three collections in memory in insertion order and is
// the only component that mutates them. When a repository is configured,
// every mutation is written through to it first; a repository failure aborts
// the mutation and leaves memory untouched.
//
// Components that derive state from descriptions (similarity backends)
// register a Listener. After each mutation the Store calls Invalidate
// synchronously with the ids of the descriptions that changed.
//
// Basic usage:
//
//	store, err := catalog.New(catalog.WithRepository(repo))
//	if err != nil {
//	    return err
//	}
//	if err := store.Restore(ctx); err != nil {
//	    return err
//	}
//	desc, err := store.AddOrUpdateDescription(ctx, "sunset.jpg", "美丽的日落风景，橙色天空", []string{"日落", "风景"})
package catalog
