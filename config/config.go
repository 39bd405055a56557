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

// Package config loads the picmatch YAML configuration file.
//
// Settings resolve in three layers: built-in defaults, the YAML file, and
// PICMATCH_* environment variables applied by Config.ApplyEnv. Command-line
// flags override all of them.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/poiesic/picmatch/ai"
	"github.com/poiesic/picmatch/similarity"
	"gopkg.in/yaml.v3"
)

// Segmenter names accepted by SearchConfig.Tokenizer.
const (
	TokenizerGSE    = "gse"
	TokenizerBigram = "bigram"
)

// DatabaseConfig locates the BadgerDB directory.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// SearchConfig holds search defaults.
type SearchConfig struct {
	TopK           int           `yaml:"top_k"`
	Threshold      float64       `yaml:"threshold"`
	Method         string        `yaml:"method"`
	KeywordWeight  int           `yaml:"keyword_weight"`
	ScoringTimeout time.Duration `yaml:"scoring_timeout"`
	// Tokenizer selects the segmenter: "gse" or "bigram".
	Tokenizer string `yaml:"tokenizer"`
}

// AIConfig configures the OpenAI-compatible embedding and keyword services.
type AIConfig struct {
	// Semantic enables the embedding similarity method.
	Semantic       bool   `yaml:"semantic"`
	EmbeddingHost  string `yaml:"embedding_host"`
	EmbeddingModel string `yaml:"embedding_model"`
	ExtractorHost  string `yaml:"extractor_host"`
	ExtractorModel string `yaml:"extractor_model"`
	// APIKeyEnv names the environment variable holding the API key.
	APIKeyEnv   string `yaml:"api_key_env"`
	MaxKeywords int    `yaml:"max_keywords"`
}

// EmbeddingConfig tunes batch embedding.
type EmbeddingConfig struct {
	BatchSize  int           `yaml:"batch_size"`
	MaxRetries int           `yaml:"max_retries"`
	RetryDelay time.Duration `yaml:"retry_delay"`
}

// Config is the root configuration document.
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Search    SearchConfig    `yaml:"search"`
	AI        AIConfig        `yaml:"ai"`
	Embedding EmbeddingConfig `yaml:"embedding"`
}

// Default returns the built-in configuration.
func Default() *Config {
	aiDefaults := ai.DefaultConfig()
	return &Config{
		Database: DatabaseConfig{Path: "picmatch.db"},
		Search: SearchConfig{
			TopK:           5,
			Threshold:      0.1,
			Method:         similarity.Lexical.String(),
			KeywordWeight:  2,
			ScoringTimeout: 30 * time.Second,
			Tokenizer:      TokenizerGSE,
		},
		AI: AIConfig{
			Semantic:       true,
			EmbeddingHost:  aiDefaults.EmbeddingHost,
			EmbeddingModel: aiDefaults.EmbeddingModel,
			ExtractorHost:  aiDefaults.ExtractorHost,
			ExtractorModel: aiDefaults.ExtractorModel,
			APIKeyEnv:      "PICMATCH_API_KEY",
			MaxKeywords:    aiDefaults.MaxKeywords,
		},
		Embedding: EmbeddingConfig{
			BatchSize:  32,
			MaxRetries: 3,
			RetryDelay: 500 * time.Millisecond,
		},
	}
}

// Load reads a config from path. If the file does not exist, returns defaults.
// Settings missing from the file take their default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// applyDefaults fills zero values left by an explicit empty setting.
func (c *Config) applyDefaults() {
	d := Default()
	if c.Database.Path == "" {
		c.Database.Path = d.Database.Path
	}
	if c.Search.TopK == 0 {
		c.Search.TopK = d.Search.TopK
	}
	if c.Search.Method == "" {
		c.Search.Method = d.Search.Method
	}
	if c.Search.KeywordWeight == 0 {
		c.Search.KeywordWeight = d.Search.KeywordWeight
	}
	if c.Search.ScoringTimeout == 0 {
		c.Search.ScoringTimeout = d.Search.ScoringTimeout
	}
	if c.Search.Tokenizer == "" {
		c.Search.Tokenizer = d.Search.Tokenizer
	}
	if c.AI.EmbeddingHost == "" {
		c.AI.EmbeddingHost = d.AI.EmbeddingHost
	}
	if c.AI.EmbeddingModel == "" {
		c.AI.EmbeddingModel = d.AI.EmbeddingModel
	}
	if c.AI.ExtractorHost == "" {
		c.AI.ExtractorHost = d.AI.ExtractorHost
	}
	if c.AI.ExtractorModel == "" {
		c.AI.ExtractorModel = d.AI.ExtractorModel
	}
	if c.AI.APIKeyEnv == "" {
		c.AI.APIKeyEnv = d.AI.APIKeyEnv
	}
	if c.AI.MaxKeywords == 0 {
		c.AI.MaxKeywords = d.AI.MaxKeywords
	}
	if c.Embedding.BatchSize == 0 {
		c.Embedding.BatchSize = d.Embedding.BatchSize
	}
	if c.Embedding.MaxRetries == 0 {
		c.Embedding.MaxRetries = d.Embedding.MaxRetries
	}
	if c.Embedding.RetryDelay == 0 {
		c.Embedding.RetryDelay = d.Embedding.RetryDelay
	}
}

// Environment variables read by ApplyEnv.
const (
	EnvDatabase       = "PICMATCH_DB"
	EnvMethod         = "PICMATCH_METHOD"
	EnvTopK           = "PICMATCH_TOP_K"
	EnvThreshold      = "PICMATCH_THRESHOLD"
	EnvSemantic       = "PICMATCH_SEMANTIC"
	EnvTokenizer      = "PICMATCH_TOKENIZER"
	EnvEmbeddingHost  = "PICMATCH_EMBEDDING_HOST"
	EnvEmbeddingModel = "PICMATCH_EMBEDDING_MODEL"
	EnvExtractorHost  = "PICMATCH_EXTRACTOR_HOST"
	EnvExtractorModel = "PICMATCH_EXTRACTOR_MODEL"
)

// ApplyEnv overrides settings from PICMATCH_* environment variables.
func (c *Config) ApplyEnv() error {
	setString := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	setString(EnvDatabase, &c.Database.Path)
	setString(EnvMethod, &c.Search.Method)
	setString(EnvTokenizer, &c.Search.Tokenizer)
	setString(EnvEmbeddingHost, &c.AI.EmbeddingHost)
	setString(EnvEmbeddingModel, &c.AI.EmbeddingModel)
	setString(EnvExtractorHost, &c.AI.ExtractorHost)
	setString(EnvExtractorModel, &c.AI.ExtractorModel)

	if v, ok := os.LookupEnv(EnvTopK); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvTopK, err)
		}
		c.Search.TopK = n
	}
	if v, ok := os.LookupEnv(EnvThreshold); ok && v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvThreshold, err)
		}
		c.Search.Threshold = f
	}
	if v, ok := os.LookupEnv(EnvSemantic); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvSemantic, err)
		}
		c.AI.Semantic = b
	}
	return nil
}

// Validate checks the search settings.
func (c *Config) Validate() error {
	if c.Search.TopK < 1 {
		return errors.New("config: search.top_k must be positive")
	}
	if c.Search.Threshold < 0 || c.Search.Threshold > 1 {
		return errors.New("config: search.threshold must be between 0 and 1")
	}
	if _, err := similarity.ParseMethod(c.Search.Method); err != nil {
		return fmt.Errorf("config: search.method: %w", err)
	}
	if c.Search.KeywordWeight < 1 {
		return errors.New("config: search.keyword_weight must be at least 1")
	}
	if c.Search.ScoringTimeout < 0 {
		return errors.New("config: search.scoring_timeout must not be negative")
	}
	if c.Search.Tokenizer != TokenizerGSE && c.Search.Tokenizer != TokenizerBigram {
		return fmt.Errorf("config: search.tokenizer must be %q or %q", TokenizerGSE, TokenizerBigram)
	}
	return nil
}

// AIConfig builds the provider configuration. The API key is read from the
// environment variable named by AI.APIKeyEnv.
func (c *Config) AIConfig() *ai.Config {
	return ai.NewConfig(
		ai.WithEmbeddingHost(c.AI.EmbeddingHost),
		ai.WithEmbeddingModel(c.AI.EmbeddingModel),
		ai.WithExtractorHost(c.AI.ExtractorHost),
		ai.WithExtractorModel(c.AI.ExtractorModel),
		ai.WithAPIKey(os.Getenv(c.AI.APIKeyEnv)),
		ai.WithMaxKeywords(c.AI.MaxKeywords),
	)
}
