package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/poiesic/picmatch"
	"github.com/poiesic/picmatch/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

// runApp runs the CLI against a fresh bigram, lexical-only database in dir.
func runApp(t *testing.T, dir string, args ...string) (string, error) {
	t.Helper()
	app := newApp()
	var out, errOut bytes.Buffer
	app.Writer = &out
	app.ErrWriter = &errOut

	base := []string{
		"picmatch",
		"--config", filepath.Join(dir, "picmatch.yaml"),
		"--db", filepath.Join(dir, "db"),
		"--tokenizer", "bigram",
		"--no-semantic",
	}
	err := app.Run(append(base, args...))
	return out.String(), err
}

func TestSetupLogger(t *testing.T) {
	newLoggerApp := func(action cli.ActionFunc) *cli.App {
		return &cli.App{
			Name: "test",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:    "log-level",
					Aliases: []string{"l"},
					Value:   "info",
				},
			},
			Before: setupLogger,
			Action: action,
		}
	}
	noop := func(c *cli.Context) error { return nil }

	t.Run("valid log levels", func(t *testing.T) {
		for _, level := range []string{"debug", "info", "warn", "error", "DEBUG", "Warn"} {
			t.Run(level, func(t *testing.T) {
				err := newLoggerApp(noop).Run([]string{"test", "--log-level", level})
				require.NoError(t, err)
			})
		}
	})

	t.Run("invalid log level returns error", func(t *testing.T) {
		err := newLoggerApp(noop).Run([]string{"test", "--log-level", "invalid"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid log level")
	})

	t.Run("log-level flag has alias -l", func(t *testing.T) {
		app := newLoggerApp(func(c *cli.Context) error {
			assert.Equal(t, "debug", c.String("log-level"))
			return nil
		})
		require.NoError(t, app.Run([]string{"test", "-l", "debug"}))
	})
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "picmatch.yaml")
	cfg := config.Default()
	cfg.Search.TopK = 7
	cfg.Database.Path = filepath.Join(dir, "from-file")
	require.NoError(t, config.Save(cfgPath, cfg))

	run := func(args ...string) *config.Config {
		t.Helper()
		var got *config.Config
		app := &cli.App{
			Name:  "test",
			Flags: newApp().Flags,
			Before: func(c *cli.Context) error {
				return loadConfig(c)
			},
			Action: func(c *cli.Context) error {
				got = configFrom(c)
				return nil
			},
		}
		require.NoError(t, app.Run(append([]string{"test", "--config", cfgPath}, args...)))
		return got
	}

	t.Run("file values", func(t *testing.T) {
		got := run()
		assert.Equal(t, 7, got.Search.TopK)
		assert.Equal(t, filepath.Join(dir, "from-file"), got.Database.Path)
		assert.True(t, got.AI.Semantic)
	})

	t.Run("environment overrides file", func(t *testing.T) {
		t.Setenv(config.EnvTopK, "9")
		assert.Equal(t, 9, run().Search.TopK)
	})

	t.Run("flags override environment", func(t *testing.T) {
		t.Setenv(config.EnvDatabase, filepath.Join(dir, "from-env"))
		got := run("--db", filepath.Join(dir, "from-flag"), "--no-semantic", "--tokenizer", "bigram")
		assert.Equal(t, filepath.Join(dir, "from-flag"), got.Database.Path)
		assert.False(t, got.AI.Semantic)
		assert.Equal(t, config.TokenizerBigram, got.Search.Tokenizer)
	})

	t.Run("invalid settings", func(t *testing.T) {
		app := &cli.App{
			Name:   "test",
			Flags:  newApp().Flags,
			Before: loadConfig,
			Action: func(c *cli.Context) error { return nil },
		}
		err := app.Run([]string{"test", "--config", cfgPath, "--tokenizer", "jieba"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "tokenizer")
	})
}

func TestCommands(t *testing.T) {
	dir := t.TempDir()

	out, err := runApp(t, dir, "add", "--text", "美丽的日落风景，橙色天空",
		"--keyword", "日落", "--keyword", "风景", "--keyword", "橙色",
		"--location", "/photos/sunset.jpg", "sunset.jpg")
	require.NoError(t, err)
	assert.Contains(t, out, "Described sunset.jpg as desc_001")

	out, err = runApp(t, dir, "add", "--text", "海边的沙滩，蓝色大海", "beach.jpg")
	require.NoError(t, err)
	assert.Contains(t, out, "desc_002")

	t.Run("search", func(t *testing.T) {
		out, err := runApp(t, dir, "search", "--top-k", "1", "日落")
		require.NoError(t, err)
		assert.Contains(t, out, "1. sunset.jpg")
		assert.Contains(t, out, "matched: 日落")
		assert.Contains(t, out, "location: /photos/sunset.jpg")
		assert.NotContains(t, out, "beach.jpg")
	})

	t.Run("search without matches", func(t *testing.T) {
		out, err := runApp(t, dir, "search", "--threshold", "1", "城市夜景")
		require.NoError(t, err)
		assert.Contains(t, out, "No matching images")
	})

	t.Run("search requires a query", func(t *testing.T) {
		_, err := runApp(t, dir, "search")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "query is required")
	})

	t.Run("search rejects unavailable method", func(t *testing.T) {
		_, err := runApp(t, dir, "search", "--method", "semantic", "日落")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "switching method")
	})

	t.Run("describe", func(t *testing.T) {
		out, err := runApp(t, dir, "describe", "sunset.jpg")
		require.NoError(t, err)
		assert.Contains(t, out, "Description: 美丽的日落风景，橙色天空")
		assert.Contains(t, out, "Keywords: 日落, 风景, 橙色")

		_, err = runApp(t, dir, "describe", "missing.jpg")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no description for missing.jpg")
	})

	t.Run("stats", func(t *testing.T) {
		out, err := runApp(t, dir, "stats")
		require.NoError(t, err)
		assert.Contains(t, out, "Descriptions: 2")
		assert.Contains(t, out, "Images: 1")
		assert.Contains(t, out, "Unregistered images: 1")
		assert.Contains(t, out, "Similarity method: lexical")
	})

	t.Run("keywords", func(t *testing.T) {
		out, err := runApp(t, dir, "keywords", "--max", "2", "雪山下的湖泊")
		require.NoError(t, err)
		assert.Contains(t, out, "雪山")
	})

	t.Run("export and import", func(t *testing.T) {
		exported := filepath.Join(t.TempDir(), "export")
		out, err := runApp(t, dir, "export", exported)
		require.NoError(t, err)
		assert.Contains(t, out, "Exported 2 descriptions and 2 mappings")
		assert.FileExists(t, filepath.Join(exported, "descriptions.json"))

		other := t.TempDir()
		out, err = runApp(t, other, "import", exported)
		require.NoError(t, err)
		assert.Contains(t, out, "Imported 2 descriptions, 0 images, 2 mappings")

		out, err = runApp(t, other, "search", "日落")
		require.NoError(t, err)
		assert.Contains(t, out, "sunset.jpg")
	})

	t.Run("generate keywords", func(t *testing.T) {
		out, err := runApp(t, dir, "generate-keywords")
		require.NoError(t, err)
		assert.Contains(t, out, "Generated keywords for 0 descriptions")
	})

	t.Run("reembed needs semantic", func(t *testing.T) {
		_, err := runApp(t, dir, "reembed")
		assert.ErrorIs(t, err, picmatch.ErrSemanticDisabled)
	})

	t.Run("vector stats", func(t *testing.T) {
		out, err := runApp(t, dir, "vector-stats")
		require.NoError(t, err)
		assert.Contains(t, out, "Missing: 2")
	})

	t.Run("batch, remove and delete", func(t *testing.T) {
		batchFile := filepath.Join(t.TempDir(), "batch.json")
		require.NoError(t, os.WriteFile(batchFile, []byte(`["城市夜景", {"text": "森林小路", "keywords": ["森林"]}]`), 0o644))

		out, err := runApp(t, dir, "batch", batchFile)
		require.NoError(t, err)
		assert.Contains(t, out, "Added 2 descriptions")
		assert.Contains(t, out, "desc_003: 城市夜景")
		assert.Contains(t, out, "desc_004: 森林小路 (keywords: 森林)")

		out, err = runApp(t, dir, "remove", "beach.jpg")
		require.NoError(t, err)
		assert.Contains(t, out, "Removed beach.jpg")
		_, err = runApp(t, dir, "remove", "beach.jpg")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no image named beach.jpg")

		out, err = runApp(t, dir, "delete-description", "desc_001")
		require.NoError(t, err)
		assert.Contains(t, out, "Deleted desc_001")
		_, err = runApp(t, dir, "describe", "sunset.jpg")
		require.Error(t, err)
		_, err = runApp(t, dir, "delete-description", "desc_404")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no description with id desc_404")

		out, err = runApp(t, dir, "stats")
		require.NoError(t, err)
		assert.Contains(t, out, "Descriptions: 3")
		assert.Contains(t, out, "Mappings: 0")
	})
}

func TestMain(m *testing.M) {
	// Run tests
	code := m.Run()
	os.Exit(code)
}
