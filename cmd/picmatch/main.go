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

package main

import (
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/poiesic/picmatch"
	"github.com/poiesic/picmatch/config"
	"github.com/poiesic/picmatch/segment"
	"github.com/urfave/cli/v2"
)

const configKey = "config"

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "picmatch",
		Usage: "Find images by matching text against their descriptions",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to YAML config file",
				Value:   "picmatch.yaml",
			},
			&cli.StringFlag{
				Name:    "db",
				Aliases: []string{"d"},
				Usage:   "Path to BadgerDB database directory (overrides config)",
			},
			&cli.StringFlag{
				Name:  "tokenizer",
				Usage: "Segmenter to use: gse or bigram (overrides config)",
			},
			&cli.BoolFlag{
				Name:  "no-semantic",
				Usage: "Disable the semantic method and the embedding service",
			},
		},
		Before: func(c *cli.Context) error {
			// A missing .env file is fine.
			_ = godotenv.Load()
			if err := setupLogger(c); err != nil {
				return err
			}
			return loadConfig(c)
		},
		Commands: []*cli.Command{
			{
				Name:      "search",
				Usage:     "Search images whose descriptions match a query",
				ArgsUsage: "QUERY",
				Action:    searchCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:    "top-k",
						Aliases: []string{"k"},
						Usage:   "Maximum number of results (default from config)",
					},
					&cli.Float64Flag{
						Name:    "threshold",
						Aliases: []string{"t"},
						Usage:   "Minimum similarity score in [0,1] (default from config)",
					},
					&cli.StringFlag{
						Name:    "method",
						Aliases: []string{"m"},
						Usage:   "Similarity method: lexical or semantic (default from config)",
					},
					&cli.DurationFlag{
						Name:  "timeout",
						Usage: "Overall search deadline",
					},
					&cli.BoolFlag{
						Name:  "explain",
						Usage: "Print each search stage to stderr",
					},
				},
			},
			{
				Name:      "describe",
				Usage:     "Show the description of an image",
				ArgsUsage: "IMAGE",
				Action:    describeCommand,
			},
			{
				Name:      "add",
				Usage:     "Add or update the description of an image",
				ArgsUsage: "IMAGE",
				Action:    addCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "text",
						Usage:    "Description text",
						Required: true,
					},
					&cli.StringSliceFlag{
						Name:  "keyword",
						Usage: "Keyword (repeatable); generated from the text when omitted",
					},
					&cli.StringFlag{
						Name:  "location",
						Usage: "Image location to register (path or URL)",
					},
				},
			},
			{
				Name:      "batch",
				Usage:     "Add a JSON list of descriptions not yet mapped to images",
				ArgsUsage: "FILE",
				Action:    batchCommand,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "llm",
						Usage: "Generate missing keywords with the LLM keyword extractor",
					},
				},
			},
			{
				Name:      "remove",
				Usage:     "Remove an image and its mapping, keeping the description",
				ArgsUsage: "IMAGE",
				Action:    removeCommand,
			},
			{
				Name:      "delete-description",
				Usage:     "Delete a description and every mapping to it",
				ArgsUsage: "ID",
				Action:    deleteDescriptionCommand,
			},
			{
				Name:   "stats",
				Usage:  "Show catalog statistics",
				Action: statsCommand,
			},
			{
				Name:      "import",
				Usage:     "Replace the catalog with a data directory",
				ArgsUsage: "DIR",
				Action:    importCommand,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "regenerate-keywords",
						Usage: "Regenerate keywords for every description",
					},
					&cli.BoolFlag{
						Name:  "llm",
						Usage: "Generate keywords with the LLM keyword extractor",
					},
				},
			},
			{
				Name:      "export",
				Usage:     "Write the catalog to a data directory",
				ArgsUsage: "DIR",
				Action:    exportCommand,
			},
			{
				Name:      "keywords",
				Usage:     "Extract keywords from text",
				ArgsUsage: "TEXT",
				Action:    keywordsCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "max",
						Usage: "Maximum number of keywords (default from config)",
					},
					&cli.BoolFlag{
						Name:  "llm",
						Usage: "Use the LLM keyword extractor",
					},
				},
			},
			{
				Name:   "generate-keywords",
				Usage:  "Generate keywords for descriptions without any",
				Action: generateKeywordsCommand,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "force",
						Usage: "Regenerate keywords for every description",
					},
					&cli.BoolFlag{
						Name:  "llm",
						Usage: "Use the LLM keyword extractor",
					},
				},
			},
			{
				Name:   "reembed",
				Usage:  "Recompute and store embeddings for every description",
				Action: reembedCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Number of descriptions to embed per request (default from config)",
					},
					&cli.IntFlag{
						Name:  "report-interval",
						Usage: "Report progress every N descriptions",
						Value: 100,
					},
					&cli.IntFlag{
						Name:  "max-retries",
						Usage: "Maximum retry attempts for failed operations (default from config)",
					},
					&cli.DurationFlag{
						Name:  "retry-delay",
						Usage: "Base delay for exponential backoff (default from config)",
					},
					&cli.BoolFlag{
						Name:  "stale-only",
						Usage: "Skip descriptions whose stored embedding is current",
					},
				},
			},
			{
				Name:   "vector-stats",
				Usage:  "Compare stored embeddings with the catalog",
				Action: vectorStatsCommand,
			},
		},
	}
}

func setupLogger(c *cli.Context) error {
	// Get log level from flag and normalize to lowercase
	levelStr := strings.ToLower(c.String("log-level"))

	// Map string to slog.Level
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}

// loadConfig resolves the configuration file, environment and global flags
// and stores the result in the app metadata.
func loadConfig(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.ApplyEnv(); err != nil {
		return fmt.Errorf("reading environment: %w", err)
	}
	if c.IsSet("db") {
		cfg.Database.Path = c.String("db")
	}
	if c.IsSet("tokenizer") {
		cfg.Search.Tokenizer = c.String("tokenizer")
	}
	if c.Bool("no-semantic") {
		cfg.AI.Semantic = false
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if c.App.Metadata == nil {
		c.App.Metadata = make(map[string]any)
	}
	c.App.Metadata[configKey] = cfg
	return nil
}

func configFrom(c *cli.Context) *config.Config {
	if cfg, ok := c.App.Metadata[configKey].(*config.Config); ok {
		return cfg
	}
	return config.Default()
}

// openEngine opens the configured database.
func openEngine(c *cli.Context, extra ...picmatch.Option) (*picmatch.Engine, error) {
	cfg := configFrom(c)

	opts := []picmatch.Option{
		picmatch.WithAIConfig(cfg.AIConfig()),
		picmatch.WithMethod(cfg.Search.Method),
		picmatch.WithKeywordWeight(cfg.Search.KeywordWeight),
		picmatch.WithScoringTimeout(cfg.Search.ScoringTimeout),
		picmatch.WithEmbeddingBatchSize(cfg.Embedding.BatchSize),
	}
	if cfg.Search.Tokenizer == config.TokenizerBigram {
		opts = append(opts, picmatch.WithTokenizer(segment.NewBigram()))
	}
	if !cfg.AI.Semantic {
		opts = append(opts, picmatch.WithoutSemantic())
	}
	opts = append(opts, extra...)

	engine, err := picmatch.NewEngine(cfg.Database.Path, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return engine, nil
}
