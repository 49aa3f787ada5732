// Package main is the cardvision CLI entry point.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/shirogane/cardvision/internal/cardid"
	"github.com/shirogane/cardvision/internal/config"
	"github.com/shirogane/cardvision/internal/encoder"
	"github.com/shirogane/cardvision/internal/imagecache"
	"github.com/shirogane/cardvision/internal/keyword"
	"github.com/shirogane/cardvision/internal/metrics"
	"github.com/shirogane/cardvision/internal/models"
	"github.com/shirogane/cardvision/internal/pipeline"
	"github.com/shirogane/cardvision/internal/search"
	"github.com/shirogane/cardvision/internal/server"
	"github.com/shirogane/cardvision/internal/storage"
	"github.com/shirogane/cardvision/internal/watcher"
	"github.com/shirogane/cardvision/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/cardvision/config.yaml"

// loadConfig loads config from path. When path is the default, it first looks
// for config.yaml in the current directory (for development); if that exists
// it is used, so that "cardvision server" from the project dir uses the
// project's config (including debug). Returns the config and the path that
// was actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "embed":
		runEmbed()
	case "embed-workers":
		runEmbedWorkers()
	case "migrate-vectors":
		runMigrateVectors()
	case "import":
		runImport()
	case "cache-cleanup":
		runCacheCleanup()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("cardvision version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

// parseKind maps a CLI kind flag to a vector kind.
func parseKind(s string) (models.VectorKind, error) {
	kind := models.VectorKind(s)
	if !kind.Valid() {
		return "", fmt.Errorf("unknown vector kind %q (use %q or %q)",
			s, models.VectorKindFeature, models.VectorKindConcept)
	}
	return kind, nil
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging (downloads, corpus refreshes, ingest events)")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)
	metrics.Register()

	components, err := initializeComponents(cfg, logger, debugMode)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	var ingest *watcher.Ingest
	if cfg.Images.IncomingDir != "" {
		ingest = watcher.NewIngest(cfg.Images.IncomingDir, components.Cache, logger)
		ingestCtx, ingestCancel := context.WithCancel(context.Background())
		defer ingestCancel()
		if err := ingest.Start(ingestCtx); err != nil {
			logger.Fatal("Failed to start image ingest", zap.Error(err))
		}
		ingest.SyncExisting()
	}

	srv := server.NewServer(
		components.Engine,
		components.Pipeline,
		components.Cache,
		components.Storage,
		encoderProvider(cfg, logger),
		cfg,
		logger,
	)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	if ingest != nil {
		ingest.Stop()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

func runEmbed() {
	fs := flag.NewFlagSet("embed", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	kindFlag := fs.String("kind", string(models.VectorKindFeature), "vector kind: feature or concept")
	batchSize := fs.Int("batch-size", 0, "cards per batch (0 = config value)")
	concurrency := fs.Int("concurrency", 0, "in-batch encode parallelism (0 = config value)")
	_ = fs.Parse(os.Args[2:])

	kind, err := parseKind(*kindFlag)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	cfg, logger, components := setupForBatch(*configPath)
	defer logger.Sync()
	defer components.Close()

	enc, err := encoderProvider(cfg, logger)(kind)
	if err != nil {
		logger.Fatal("Failed to build encoder", zap.Error(err))
	}
	defer enc.Close()

	opts := pipeline.Options{Kind: kind, BatchSize: cfg.Embed.BatchSize, Concurrency: cfg.Embed.Concurrency}
	if *batchSize > 0 {
		opts.BatchSize = *batchSize
	}
	if *concurrency > 0 {
		opts.Concurrency = *concurrency
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	result, err := components.Pipeline.Run(ctx, enc, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Embedding run failed: %v\n", err)
		os.Exit(1)
	}
	printEmbedResult(kind, result)
}

func runEmbedWorkers() {
	fs := flag.NewFlagSet("embed-workers", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	kindFlag := fs.String("kind", string(models.VectorKindFeature), "vector kind: feature or concept")
	workers := fs.Int("workers", 0, "worker count, one encoder instance each (0 = config value)")
	batchSize := fs.Int("batch-size", 0, "cards per batch (0 = config value)")
	_ = fs.Parse(os.Args[2:])

	kind, err := parseKind(*kindFlag)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	cfg, logger, components := setupForBatch(*configPath)
	defer logger.Sync()
	defer components.Close()

	provider := encoderProvider(cfg, logger)
	factory := func() (encoder.ImageEncoder, error) { return provider(kind) }

	maxWorkers := cfg.Embed.MaxWorkers
	if *workers > 0 {
		maxWorkers = *workers
	}
	opts := pipeline.Options{Kind: kind, BatchSize: cfg.Embed.BatchSize}
	if *batchSize > 0 {
		opts.BatchSize = *batchSize
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	result, err := components.Pipeline.RunWorkers(ctx, factory, maxWorkers, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Embedding run failed: %v\n", err)
		os.Exit(1)
	}
	printEmbedResult(kind, result)
}

func printEmbedResult(kind models.VectorKind, result *pipeline.Result) {
	fmt.Printf("kind:      %s\n", kind)
	fmt.Printf("total:     %d\n", result.Total)
	fmt.Printf("processed: %d\n", result.Processed)
	fmt.Printf("errored:   %d\n", result.Errored)
	fmt.Printf("duration:  %s\n", result.Duration.Round(time.Millisecond))
}

func runMigrateVectors() {
	fs := flag.NewFlagSet("migrate-vectors", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	kindFlag := fs.String("kind", string(models.VectorKindFeature), "vector kind: feature or concept")
	limit := fs.Int("limit", 500, "legacy rows rewritten per pass")
	_ = fs.Parse(os.Args[2:])

	kind, err := parseKind(*kindFlag)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	_, logger, components := setupForBatch(*configPath)
	defer logger.Sync()
	defer components.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var rewritten, failed, passes int
	for {
		result, err := components.Pipeline.MigrateVectors(ctx, kind, *limit)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Migration failed after %d pass(es): %v\n", passes, err)
			os.Exit(1)
		}
		passes++
		rewritten += result.Rewritten
		failed += result.Failed
		if !result.Remaining {
			break
		}
	}
	fmt.Printf("kind:      %s\n", kind)
	fmt.Printf("passes:    %d\n", passes)
	fmt.Printf("rewritten: %d\n", rewritten)
	fmt.Printf("failed:    %d   # unrecognized payloads left in place\n", failed)
}

// catalogCard is one entry of an import file: a JSON array of these.
type catalogCard struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Identifier string `json:"identifier"`
}

// readCatalog parses an import file into cards, normalizing identifiers.
// Entries without an id or name are rejected.
func readCatalog(path string) ([]*models.Card, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var entries []catalogCard
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	cards := make([]*models.Card, 0, len(entries))
	for i, e := range entries {
		if e.ID == "" || e.Name == "" {
			return nil, fmt.Errorf("catalog entry %d: id and name are required", i)
		}
		cards = append(cards, &models.Card{
			ID:         e.ID,
			Name:       e.Name,
			Identifier: cardid.Normalize(e.Identifier),
		})
	}
	return cards, nil
}

func runImport() {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: cardvision import [flags] <catalog.json>")
		os.Exit(1)
	}
	cards, err := readCatalog(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Import failed: %v\n", err)
		os.Exit(1)
	}

	_, logger, components := setupForBatch(*configPath)
	defer logger.Sync()
	defer components.Close()

	ctx := context.Background()
	for _, card := range cards {
		if err := components.Storage.UpsertCard(ctx, card); err != nil {
			fmt.Fprintf(os.Stderr, "Import failed at card %s: %v\n", card.ID, err)
			os.Exit(1)
		}
	}
	// One Bleve batch per chunk keeps memory flat on large catalogs.
	const chunk = 500
	for i := 0; i < len(cards); i += chunk {
		end := i + chunk
		if end > len(cards) {
			end = len(cards)
		}
		if err := components.Names.IndexBatch(ctx, cards[i:end]); err != nil {
			fmt.Fprintf(os.Stderr, "Name indexing failed: %v\n", err)
			os.Exit(1)
		}
	}
	fmt.Printf("Imported %d card(s)\n", len(cards))
}

func runCacheCleanup() {
	fs := flag.NewFlagSet("cache-cleanup", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	_ = fs.Parse(os.Args[2:])

	_, logger, components := setupForBatch(*configPath)
	defer logger.Sync()
	defer components.Close()

	ctx := context.Background()
	live, err := components.Storage.ListIdentifiers(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Listing identifiers failed: %v\n", err)
		os.Exit(1)
	}
	removed, err := components.Cache.Cleanup(ctx, live)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Cleanup failed: %v\n", err)
		os.Exit(1)
	}
	stats, err := components.Cache.CollectStats()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Stats failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("removed:     %d\n", removed)
	fmt.Printf("total_files: %d\n", stats.TotalFiles)
	fmt.Printf("total_bytes: %d\n", stats.TotalBytes)
}

// statusResponse mirrors GET /api/v1/admin/embeddings/status.
type statusResponse struct {
	Running bool                    `json:"running"`
	Kinds   []models.EmbeddingStats `json:"kinds"`
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "http://localhost:8080", "server URL (empty = use direct storage)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	var status statusResponse
	if *serverURL != "" {
		res, err := statusViaHTTP(*serverURL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
			os.Exit(1)
		}
		status = *res
	} else {
		_, logger, components := setupForBatch(*configPath)
		defer logger.Sync()
		defer components.Close()

		ctx := context.Background()
		total, err := components.Storage.CountCards(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Count cards failed: %v\n", err)
			os.Exit(1)
		}
		withSource, err := components.Storage.CountWithIdentifier(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Count identifiers failed: %v\n", err)
			os.Exit(1)
		}
		for _, kind := range []models.VectorKind{models.VectorKindFeature, models.VectorKindConcept} {
			withVector, err := components.Storage.CountWithVector(ctx, kind)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Count vectors failed: %v\n", err)
				os.Exit(1)
			}
			stats := models.EmbeddingStats{
				Kind:       kind,
				Total:      total,
				WithSource: withSource,
				WithVector: withVector,
			}
			if withSource > 0 {
				stats.PercentComplete = 100 * float64(withVector) / float64(withSource)
			}
			status.Kinds = append(status.Kinds, stats)
		}
	}

	switch *outputFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(status); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
	case "text":
		fmt.Printf("running: %t\n", status.Running)
		for _, k := range status.Kinds {
			fmt.Println()
			fmt.Printf("kind:             %s\n", k.Kind)
			fmt.Printf("cards:            %d\n", k.Total)
			fmt.Printf("with_source:      %d\n", k.WithSource)
			fmt.Printf("with_vector:      %d\n", k.WithVector)
			fmt.Printf("percent_complete: %.1f\n", k.PercentComplete)
		}
	default:
		fmt.Fprintf(os.Stderr, "Unknown output format %q; use text or json\n", *outputFormat)
		os.Exit(1)
	}
}

func statusViaHTTP(serverURL string) (*statusResponse, error) {
	resp, err := http.Get(serverURL + "/api/v1/admin/embeddings/status")
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var s statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &s, nil
}

// Components holds initialized services.
type Components struct {
	Storage  storage.Storage
	Names    *keyword.NameIndex
	Cache    *imagecache.Cache
	Engine   *search.Engine
	Pipeline *pipeline.Pipeline
}

func (c *Components) Close() {
	if c.Engine != nil {
		_ = c.Engine.Close()
	}
	if c.Names != nil {
		_ = c.Names.Close()
	}
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger, debug bool) (*Components, error) {
	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	names, err := keyword.NewNameIndex(cfg.Storage.BleveIndexPath)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize name index: %w", err)
	}

	cacheOpts := []imagecache.CacheOption{}
	if debug {
		cacheOpts = append(cacheOpts, imagecache.WithLogger(logger))
	}
	cache := imagecache.NewCache(cfg.Images.BaseDir, cfg.Images.RemoteBaseURL, cfg.Images.DownloadTimeout(), cacheOpts...)

	// Visual search needs the feature encoder resident for query images.
	// A failed load (no ONNX runtime, missing model) degrades to text and
	// name search only.
	var feature encoder.ImageEncoder
	if onnxEncoder, encErr := encoder.NewFeatureEncoder(
		cfg.Encoder.FeatureModelPath,
		cfg.Encoder.FeatureDimensions,
		cfg.Encoder.InputSize,
	); encErr != nil {
		logger.Warn("feature encoder unavailable, image upload search disabled", zap.Error(encErr))
	} else {
		feature = onnxEncoder
	}

	engine := search.NewEngine(store, names, feature, &cfg.Search, logger)
	pipe := pipeline.New(store, cache, logger)

	return &Components{
		Storage:  store,
		Names:    names,
		Cache:    cache,
		Engine:   engine,
		Pipeline: pipe,
	}, nil
}

// encoderProvider builds per-kind encoders for embedding runs. The feature
// kind is the raw image tower; the concept kind wraps a tower with the anchor
// set so scores land in concept space. A model that fails to load fails the
// run: mock vectors would be persisted like real ones and block re-embedding,
// so the mock substitute requires encoder.allow_mock in the config.
func encoderProvider(cfg *config.Config, logger *zap.Logger) server.EncoderProvider {
	return func(kind models.VectorKind) (encoder.ImageEncoder, error) {
		switch kind {
		case models.VectorKindFeature:
			enc, err := encoder.NewFeatureEncoder(
				cfg.Encoder.FeatureModelPath,
				cfg.Encoder.FeatureDimensions,
				cfg.Encoder.InputSize,
			)
			if err != nil {
				if !cfg.Encoder.AllowMock {
					return nil, fmt.Errorf("load feature encoder: %w", err)
				}
				logger.Warn("feature encoder load failed, encoder.allow_mock substitutes the mock encoder",
					zap.Error(err))
				return encoder.NewMockImageEncoder(cfg.Encoder.FeatureDimensions), nil
			}
			return enc, nil
		case models.VectorKindConcept:
			anchors, err := encoder.LoadAnchorSet(cfg.Encoder.ConceptAnchorPath)
			if err != nil {
				return nil, fmt.Errorf("load concept anchors: %w", err)
			}
			var tower encoder.ImageEncoder
			onnxTower, err := encoder.NewFeatureEncoder(
				cfg.Encoder.ConceptModelPath,
				anchors.Dim(),
				cfg.Encoder.InputSize,
			)
			if err != nil {
				if !cfg.Encoder.AllowMock {
					return nil, fmt.Errorf("load concept tower: %w", err)
				}
				logger.Warn("concept tower load failed, encoder.allow_mock substitutes the mock encoder",
					zap.Error(err))
				tower = encoder.NewMockImageEncoder(anchors.Dim())
			} else {
				tower = onnxTower
			}
			return encoder.NewConceptEncoder(tower, anchors, logger)
		default:
			return nil, fmt.Errorf("unknown vector kind %q", kind)
		}
	}
}

// setupForBatch loads config and builds components for one-shot subcommands.
func setupForBatch(configPath string) (*config.Config, *zap.Logger, *Components) {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	metrics.Register()
	components, err := initializeComponents(cfg, logger, cfg.Debug)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	return cfg, logger, components
}

func printUsage() {
	fmt.Println(`cardvision - Visual and semantic card search

Usage:
  cardvision server [flags]           Start the HTTP server
  cardvision embed [flags]            Fingerprint cards missing a vector
  cardvision embed-workers [flags]    Same, with one encoder per worker
  cardvision migrate-vectors [flags]  Rewrite legacy vector payloads
  cardvision import [flags] <file>    Import a card catalog JSON file
  cardvision cache-cleanup [flags]    Remove orphaned cached images
  cardvision status [flags]           Show fingerprint coverage
  cardvision version                  Show version
  cardvision help                     Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/cardvision/config.yaml)
  --debug            Enable debug logging (downloads, corpus refreshes, ingest events)

Embed Flags:
  --config string      Config file path
  --kind string        Vector kind: feature or concept (default: feature)
  --batch-size int     Cards per batch (default from config)
  --concurrency int    In-batch encode parallelism, embed only (default from config)
  --workers int        Worker count, embed-workers only (default from config)

Migrate Flags:
  --config string    Config file path
  --kind string      Vector kind: feature or concept (default: feature)
  --limit int        Legacy rows rewritten per pass (default: 500)

Status Flags:
  --config string    Config file path (for direct storage mode)
  --server string    Server URL (default: http://localhost:8080). Use empty (--server "") for direct storage.
  --output string    Output format: text or json (default: text)

Examples:
  cardvision server
  cardvision import catalog.json
  cardvision embed --kind feature
  cardvision embed-workers --kind concept --workers 4
  cardvision migrate-vectors --kind concept
  cardvision status --output json`)
}
