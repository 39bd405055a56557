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

// Package storage provides the storage abstraction layer for picmatch.
//
// This package defines repository interfaces that decouple persistence from the
// matching engine. The in-memory catalog is the source of truth while a process
// runs; repositories make it durable and let derived data (description
// embeddings) survive restarts.
//
// # Architecture
//
//   - CatalogRepository: descriptions, images and image→description mappings,
//     mutated through atomic Change sets and reloadable wholesale
//   - EmbeddingRepository: description vectors tagged with the text fingerprint
//     and model they were computed from
//
// # Usage
//
//	backend, err := badger.OpenBackend("/path/to/db", false)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer backend.Close()
//	catalogRepo := badger.NewCatalogRepository(backend)
//
// Use in tests with in-memory storage:
//
//	catalogRepo, embeddingRepo, backend, err := badger.NewMemoryRepositories()
//
// # Thread Safety
//
// All repository implementations must be thread-safe and support
// concurrent access from multiple goroutines.
package storage
