package main

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/poiesic/picmatch"
	"github.com/poiesic/picmatch/core"
	"github.com/poiesic/picmatch/ingestion"
	"github.com/poiesic/picmatch/reembed"
	"github.com/poiesic/picmatch/storage/jsonfile"
	"github.com/urfave/cli/v2"
)

func requireArg(c *cli.Context, name string) (string, error) {
	arg := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if arg == "" {
		return "", fmt.Errorf("%s is required", name)
	}
	return arg, nil
}

func searchCommand(c *cli.Context) error {
	query, err := requireArg(c, "query")
	if err != nil {
		return err
	}
	cfg := configFrom(c)

	topK := cfg.Search.TopK
	if c.IsSet("top-k") {
		topK = c.Int("top-k")
	}
	threshold := cfg.Search.Threshold
	if c.IsSet("threshold") {
		threshold = c.Float64("threshold")
	}

	engine, err := openEngine(c)
	if err != nil {
		return err
	}
	defer engine.Close()

	ctx := c.Context
	if c.IsSet("timeout") {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Duration("timeout"))
		defer cancel()
	}

	if c.IsSet("method") {
		if err := engine.SetMethod(ctx, c.String("method")); err != nil {
			return fmt.Errorf("switching method: %w", err)
		}
	}

	var results []*core.Result
	if c.Bool("explain") {
		results, err = engine.SearchWithMonitor(ctx, query, topK, threshold, newExplainMonitor(c.App.ErrWriter))
	} else {
		results, err = engine.Search(ctx, query, topK, threshold)
	}
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	out := c.App.Writer
	if len(results) == 0 {
		fmt.Fprintln(out, "No matching images")
		return nil
	}
	fmt.Fprintf(out, "Found %d images (method: %s)\n", len(results), engine.Method())
	for i, r := range results {
		fmt.Fprintf(out, "%d. %s [%.3f]\n", i+1, r.ImageName, r.Score)
		fmt.Fprintf(out, "   description: %s (%s)\n", r.Description, r.DescriptionId)
		if len(r.Keywords) > 0 {
			fmt.Fprintf(out, "   keywords: %s\n", strings.Join(r.Keywords, ", "))
		}
		if len(r.MatchedKeywords) > 0 {
			fmt.Fprintf(out, "   matched: %s\n", strings.Join(r.MatchedKeywords, ", "))
		}
		if r.Location != "" {
			fmt.Fprintf(out, "   location: %s\n", r.Location)
		}
	}
	return nil
}

func describeCommand(c *cli.Context) error {
	image, err := requireArg(c, "image")
	if err != nil {
		return err
	}

	engine, err := openEngine(c, picmatch.WithoutSemantic(), picmatch.WithMethod("lexical"))
	if err != nil {
		return err
	}
	defer engine.Close()

	desc, err := engine.GetDescription(image)
	if errors.Is(err, core.ErrNotFound) {
		return fmt.Errorf("no description for %s", image)
	}
	if err != nil {
		return err
	}

	out := c.App.Writer
	fmt.Fprintf(out, "Image: %s\n", image)
	fmt.Fprintf(out, "Description: %s\n", desc.Text)
	fmt.Fprintf(out, "Description ID: %s\n", desc.Id)
	fmt.Fprintf(out, "Keywords: %s\n", strings.Join(desc.Keywords, ", "))
	return nil
}

func addCommand(c *cli.Context) error {
	image, err := requireArg(c, "image")
	if err != nil {
		return err
	}

	engine, err := openEngine(c, picmatch.WithoutSemantic(), picmatch.WithMethod("lexical"))
	if err != nil {
		return err
	}
	defer engine.Close()

	ctx := c.Context
	text := c.String("text")
	keywords := c.StringSlice("keyword")
	if len(keywords) == 0 {
		keywords = engine.ExtractKeywords(ctx, text, 0)
	}

	desc, err := engine.AddDescription(ctx, image, text, keywords)
	if err != nil {
		return fmt.Errorf("adding description: %w", err)
	}
	if location := c.String("location"); location != "" {
		if _, err := engine.AddImage(ctx, image, location); err != nil {
			return fmt.Errorf("registering image: %w", err)
		}
	}

	fmt.Fprintf(c.App.Writer, "Described %s as %s (keywords: %s)\n", image, desc.Id, strings.Join(desc.Keywords, ", "))
	return nil
}

func batchCommand(c *cli.Context) error {
	path, err := requireArg(c, "file")
	if err != nil {
		return err
	}
	inputs, err := jsonfile.ReadDescriptionList(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	engine, err := openEngine(c, keywordOptions(c)...)
	if err != nil {
		return err
	}
	defer engine.Close()

	added, err := engine.AddDescriptions(c.Context, inputs)
	if err != nil {
		return fmt.Errorf("batch failed: %w", err)
	}

	out := c.App.Writer
	fmt.Fprintf(out, "Added %d descriptions\n", len(added))
	for _, d := range added {
		fmt.Fprintf(out, "  %s: %s (keywords: %s)\n", d.Id, d.Text, strings.Join(d.Keywords, ", "))
	}
	return nil
}

func removeCommand(c *cli.Context) error {
	image, err := requireArg(c, "image")
	if err != nil {
		return err
	}

	engine, err := openEngine(c, picmatch.WithoutSemantic(), picmatch.WithMethod("lexical"))
	if err != nil {
		return err
	}
	defer engine.Close()

	if err := engine.RemoveImage(c.Context, image); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return fmt.Errorf("no image named %s", image)
		}
		return err
	}
	fmt.Fprintf(c.App.Writer, "Removed %s\n", image)
	return nil
}

func deleteDescriptionCommand(c *cli.Context) error {
	id, err := requireArg(c, "id")
	if err != nil {
		return err
	}

	engine, err := openEngine(c, picmatch.WithoutSemantic(), picmatch.WithMethod("lexical"))
	if err != nil {
		return err
	}
	defer engine.Close()

	if err := engine.DeleteDescription(c.Context, id); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return fmt.Errorf("no description with id %s", id)
		}
		return err
	}
	fmt.Fprintf(c.App.Writer, "Deleted %s\n", id)
	return nil
}

func statsCommand(c *cli.Context) error {
	engine, err := openEngine(c)
	if err != nil {
		return err
	}
	defer engine.Close()

	stats := engine.Stats()
	out := c.App.Writer
	fmt.Fprintf(out, "Images: %d\n", stats.Images)
	fmt.Fprintf(out, "Descriptions: %d\n", stats.Descriptions)
	fmt.Fprintf(out, "Mappings: %d\n", stats.Mappings)
	fmt.Fprintf(out, "Unregistered images: %d\n", stats.DanglingMappings)
	fmt.Fprintf(out, "Keywords: %d\n", stats.Keywords)
	fmt.Fprintf(out, "Similarity method: %s\n", stats.Method)

	methods := make([]string, len(stats.Methods))
	for i, m := range stats.Methods {
		methods[i] = m.String()
	}
	fmt.Fprintf(out, "Available methods: %s\n", strings.Join(methods, ", "))
	return nil
}

func keywordOptions(c *cli.Context) []picmatch.Option {
	opts := []picmatch.Option{picmatch.WithMethod("lexical")}
	if c.Bool("llm") {
		return append(opts, picmatch.WithLLMKeywords())
	}
	return append(opts, picmatch.WithoutSemantic())
}

func importCommand(c *cli.Context) error {
	dir, err := requireArg(c, "directory")
	if err != nil {
		return err
	}

	engine, err := openEngine(c, keywordOptions(c)...)
	if err != nil {
		return err
	}
	defer engine.Close()

	report, err := engine.Import(c.Context, dir, &ingestion.ImportOptions{
		RegenerateKeywords: c.Bool("regenerate-keywords"),
	})
	if err != nil {
		return fmt.Errorf("import failed: %w", err)
	}

	out := c.App.Writer
	fmt.Fprintf(out, "Imported %d descriptions, %d images, %d mappings from %s\n",
		report.Descriptions, report.Images, report.Mappings, dir)
	if report.CreatedMappings {
		fmt.Fprintln(out, "No mappings file found; images were assigned to descriptions in turn")
	}
	if report.GeneratedKeywords > 0 {
		fmt.Fprintf(out, "Generated keywords for %d descriptions\n", report.GeneratedKeywords)
	}
	return nil
}

func exportCommand(c *cli.Context) error {
	dir, err := requireArg(c, "directory")
	if err != nil {
		return err
	}

	engine, err := openEngine(c, picmatch.WithoutSemantic(), picmatch.WithMethod("lexical"))
	if err != nil {
		return err
	}
	defer engine.Close()

	if err := engine.Export(dir); err != nil {
		return err
	}
	stats := engine.Stats()
	fmt.Fprintf(c.App.Writer, "Exported %d descriptions and %d mappings to %s\n", stats.Descriptions, stats.Mappings, dir)
	return nil
}

func keywordsCommand(c *cli.Context) error {
	text, err := requireArg(c, "text")
	if err != nil {
		return err
	}

	engine, err := openEngine(c, keywordOptions(c)...)
	if err != nil {
		return err
	}
	defer engine.Close()

	limit := c.Int("max")
	if limit <= 0 {
		limit = configFrom(c).AI.MaxKeywords
	}
	keywords := engine.ExtractKeywords(c.Context, text, limit)
	fmt.Fprintln(c.App.Writer, strings.Join(keywords, ", "))
	return nil
}

func generateKeywordsCommand(c *cli.Context) error {
	engine, err := openEngine(c, keywordOptions(c)...)
	if err != nil {
		return err
	}
	defer engine.Close()

	n, err := engine.GenerateKeywords(c.Context, c.Bool("force"))
	if err != nil {
		return fmt.Errorf("keyword generation failed: %w", err)
	}
	fmt.Fprintf(c.App.Writer, "Generated keywords for %d descriptions\n", n)
	return nil
}

func reembedCommand(c *cli.Context) error {
	cfg := configFrom(c)
	if !cfg.AI.Semantic {
		return picmatch.ErrSemanticDisabled
	}

	reembedConfig := &reembed.Config{
		BatchSize:      cfg.Embedding.BatchSize,
		ReportInterval: c.Int("report-interval"),
		MaxRetries:     cfg.Embedding.MaxRetries,
		RetryDelay:     cfg.Embedding.RetryDelay,
		StaleOnly:      c.Bool("stale-only"),
	}
	if c.IsSet("batch-size") {
		reembedConfig.BatchSize = c.Int("batch-size")
	}
	if c.IsSet("max-retries") {
		reembedConfig.MaxRetries = c.Int("max-retries")
	}
	if c.IsSet("retry-delay") {
		reembedConfig.RetryDelay = c.Duration("retry-delay")
	}

	// Validate config
	if reembedConfig.BatchSize <= 0 {
		return fmt.Errorf("batch-size must be greater than 0")
	}
	if reembedConfig.ReportInterval <= 0 {
		return fmt.Errorf("report-interval must be greater than 0")
	}
	if reembedConfig.MaxRetries <= 0 {
		return fmt.Errorf("max-retries must be greater than 0")
	}

	engine, err := openEngine(c, picmatch.WithMethod("lexical"))
	if err != nil {
		return err
	}
	defer engine.Close()

	reembedder, err := engine.NewReembedder(reembedConfig, c.App.ErrWriter)
	if err != nil {
		return err
	}

	errOut := c.App.ErrWriter
	fmt.Fprintf(errOut, "Database: %s\n", cfg.Database.Path)
	fmt.Fprintf(errOut, "Embedding host: %s\n", cfg.AI.EmbeddingHost)
	fmt.Fprintf(errOut, "Embedding model: %s\n", cfg.AI.EmbeddingModel)
	fmt.Fprintln(errOut)

	report, err := reembedder.Run(c.Context)
	if err != nil {
		return fmt.Errorf("reembedding failed: %w", err)
	}
	fmt.Fprintf(c.App.Writer, "Embedded %d, skipped %d, pruned %d in %v\n",
		report.Embedded, report.Skipped, report.Pruned, report.Elapsed)
	return nil
}

func vectorStatsCommand(c *cli.Context) error {
	cfg := configFrom(c)
	engine, err := openEngine(c, picmatch.WithoutSemantic(), picmatch.WithMethod("lexical"))
	if err != nil {
		return err
	}
	defer engine.Close()

	stats, err := engine.VectorStats(c.Context)
	if err != nil {
		return err
	}

	out := c.App.Writer
	fmt.Fprintf(out, "Model: %s\n", cfg.AI.EmbeddingModel)
	fmt.Fprintf(out, "Descriptions: %d\n", stats.Descriptions)
	fmt.Fprintf(out, "Stored vectors: %d\n", stats.Stored)
	fmt.Fprintf(out, "Current: %d\n", stats.Current)
	fmt.Fprintf(out, "Stale: %d\n", stats.Stale)
	fmt.Fprintf(out, "Missing: %d\n", stats.Missing)
	fmt.Fprintf(out, "Orphaned: %d\n", stats.Orphaned)
	if stats.Dimensions > 0 {
		fmt.Fprintf(out, "Dimensions: %d\n", stats.Dimensions)
	}

	models := make([]string, 0, len(stats.Models))
	for model := range stats.Models {
		models = append(models, model)
	}
	sort.Strings(models)
	for _, model := range models {
		fmt.Fprintf(out, "  %s: %d\n", model, stats.Models[model])
	}
	return nil
}
