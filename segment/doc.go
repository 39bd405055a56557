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

// Package segment splits description and query text into terms.
//
// Chinese text has no word delimiters, so whitespace splitting is useless
// for the catalog's descriptions. Two tokenizers are provided:
//
//   - GSE: dictionary-based segmentation backed by github.com/go-ego/gse.
//     It also implements Tagger, exposing part-of-speech tags used by
//     keyword extraction.
//   - Bigram: a dictionary-free tokenizer that emits overlapping character
//     bigrams for CJK runs and whole words for alphanumeric runs. Its
//     output depends only on the input, which makes it the tokenizer of
//     choice for tests.
//
// Both tokenizers lowercase their output and drop tokens made only of
// whitespace, punctuation or symbols.
//
// ExtractKeywords derives a short keyword list from text, preferring nouns,
// verbs, adjectives, idioms and fixed expressions when a Tagger is
// available.
package segment
