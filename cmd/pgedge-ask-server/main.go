//-------------------------------------------------------------------------
//
// pgEdge Ask Server
//
// Portions copyright (c) 2025, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/pgEdge/pgedge-ask-server/internal/agent/tools"
	"github.com/pgEdge/pgedge-ask-server/internal/config"
	"github.com/pgEdge/pgedge-ask-server/internal/database"
	"github.com/pgEdge/pgedge-ask-server/internal/indexer"
	"github.com/pgEdge/pgedge-ask-server/internal/llm/factory"
	"github.com/pgEdge/pgedge-ask-server/internal/logging"
	"github.com/pgEdge/pgedge-ask-server/internal/memory"
	"github.com/pgEdge/pgedge-ask-server/internal/pipeline"
	"github.com/pgEdge/pgedge-ask-server/internal/retrieval"
	"github.com/pgEdge/pgedge-ask-server/internal/server"
	"github.com/pgEdge/pgedge-ask-server/internal/telemetry"
	"github.com/pgEdge/pgedge-ask-server/internal/uploads"
)

// Version information - set via ldflags during build
var (
	version   = "1.0.0-alpha1"
	buildTime = "unknown"
	gitCommit = "unknown"
)

func main() {
	var (
		showVersion = flag.Bool("version", false, "Show version information")
		showHelp    = flag.Bool("help", false, "Show help message")
		showOpenAPI = flag.Bool("openapi", false, "Output OpenAPI specification and exit")
		configPath  = flag.String("config", "", "Path to configuration file")
		envFile     = flag.String("env", ".env", "Path to an optional .env file")
	)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `pgEdge Ask Server - conversational question answering with retrieval and reasoning

Usage:
    pgedge-ask-server [options]

Options:
    -config string
        Path to configuration file. If not specified, searches:
        1. /etc/pgedge/pgedge-ask-server.yaml
        2. pgedge-ask-server.yaml (in binary directory)
        Built-in defaults are used when none is found.

    -env string
        Path to a .env file loaded before configuration (default ".env").
        Variables already set in the environment take precedence.

    -openapi
        Output OpenAPI v3 specification as JSON and exit

    -version
        Show version information and exit

    -help
        Show this help message and exit
`)
	}

	flag.Parse()

	if *showHelp {
		flag.Usage()
		os.Exit(0)
	}

	if *showVersion {
		fmt.Printf("pgEdge Ask Server\n")
		fmt.Printf("  Version:    %s\n", version)
		fmt.Printf("  Build Time: %s\n", buildTime)
		fmt.Printf("  Git Commit: %s\n", gitCommit)
		os.Exit(0)
	}

	if *showOpenAPI {
		spec := server.BuildOpenAPISpec()
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(spec); err != nil {
			fmt.Fprintf(os.Stderr, "failed to encode OpenAPI spec: %v\n", err)
			os.Exit(1)
		}
		os.Exit(0)
	}

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "failed to load %s: %v\n", *envFile, err)
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, logCloser := logging.New(cfg.Logging, os.Stdout)
	slog.SetDefault(logger)

	err = run(cfg, *configPath, logger)
	_ = logCloser.Close()
	if err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, configPath string, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	source, _ := config.Locate(configPath)
	if source == "" {
		source = "built-in defaults"
	}
	logger.Info("configuration loaded",
		"source", source,
		"models", len(cfg.Models),
		"memory", cfg.Memory.Backend,
		"retrieval", cfg.Retrieval.Backend)

	shutdownTracing, err := telemetry.Init(ctx, cfg.Telemetry.Enabled, cfg.Telemetry.Endpoint,
		cfg.Telemetry.ServiceName, cfg.Telemetry.Insecure, logger)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Error("failed to flush traces", "error", err)
		}
	}()

	keys, missing := config.NewAPIKeyLoader(cfg.APIKeys).LoadModelKeys(cfg.Models)
	for _, provider := range config.MissingProviders(missing) {
		logger.Warn("API key not available", "provider", provider, "error", missing[provider])
	}

	models, skipped := factory.FromConfig(cfg.Models, keys, cfg.Timeouts)
	for name, reason := range skipped {
		logger.Warn("model unavailable", "model", name, "error", reason)
	}
	logger.Info("models ready", "models", models.Names())

	var pool *database.Pool
	if cfg.Database.Configured() {
		pool, err = database.NewPool(ctx, cfg.Database)
		if err != nil {
			return err
		}
		defer pool.Close()
		logger.Info("connected to database")
	}

	store, err := openMemory(ctx, cfg.Memory, pool)
	if err != nil {
		return fmt.Errorf("failed to open session memory: %w", err)
	}
	defer closeLogged(logger, "session memory", store)

	anonymous := memory.NewEphemeralStore(cfg.Memory.AnonymousTTL)
	defer closeLogged(logger, "anonymous memory", anonymous)

	files, err := uploads.NewStore(cfg.Uploads.Directory)
	if err != nil {
		return err
	}

	backend, err := retrieval.OpenBackend(ctx, cfg.Retrieval, pool)
	if err != nil {
		return fmt.Errorf("failed to open retrieval backend: %w", err)
	}
	retriever := retrieval.NewService(backend, models, files, retrieval.Options{
		Mode:         cfg.Retrieval.Mode,
		K:            cfg.Defaults.TopK,
		ChunkSize:    cfg.Retrieval.ChunkSize,
		ChunkOverlap: cfg.Retrieval.ChunkOverlap,
		IndexTimeout: cfg.Timeouts.Retrieval,
		Logger:       logger,
	})

	var publisher *indexer.Publisher
	if cfg.Indexing.Enabled {
		pubsub := indexer.NewPubSub(logger)
		defer closeLogged(logger, "index events", pubsub)

		publisher = indexer.NewPublisher(pubsub, cfg.Indexing.Embedders)
		consumer := indexer.NewConsumer(pubsub, retriever, logger)
		if err := consumer.Start(ctx); err != nil {
			return err
		}
	}

	if cfg.Uploads.Watch {
		watcher, err := indexer.NewWatcher(cfg.Uploads.Directory, retriever, publisher, logger)
		if err != nil {
			return err
		}
		defer closeLogged(logger, "upload watcher", watcher)
		go watcher.Run(ctx)
	}

	registry := newToolRegistry(cfg, keys.SerpAPI)
	logger.Info("agent tools ready", "tools", registry.Names())

	composer := pipeline.NewComposer(models, retriever, store, pipeline.Options{
		ThoughtModel:     cfg.Reasoning.ThoughtModel,
		FinalModel:       cfg.Reasoning.FinalModel,
		TopK:             cfg.Defaults.TopK,
		ModelTimeout:     cfg.Timeouts.Model,
		RetrievalTimeout: cfg.Timeouts.Retrieval,
		AnonymousMemory:  anonymous,
		Logger:           logger,
	})

	deps := server.Deps{
		Composer: composer,
		Tools:    registry,
		Uploads:  files,
	}
	if publisher != nil {
		deps.Publisher = publisher
	}
	srv := server.New(cfg, deps, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		logger.Info("received shutdown signal")

		// Give 30 seconds for graceful shutdown
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		return srv.Shutdown(shutdownCtx)
	}
}

func openMemory(ctx context.Context, cfg config.MemoryConfig, pool *database.Pool) (memory.Store, error) {
	if pool == nil {
		return memory.Open(ctx, cfg, nil)
	}
	return memory.Open(ctx, cfg, pool.Pool())
}

// newToolRegistry registers the agent tools that can work with the
// available configuration.
func newToolRegistry(cfg *config.Config, serpAPIKey string) *tools.Registry {
	opts := []tools.Option{
		tools.WithTimeout(cfg.Agent.ToolTimeout),
		tools.WithResults(cfg.Agent.SearchResults),
	}

	registry := tools.NewRegistry(
		tools.NewWikipedia(opts...),
		tools.NewArxiv(opts...),
	)
	if serpAPIKey != "" {
		registry.Register(tools.NewWebSearch(serpAPIKey, opts...))
	}
	if cfg.Agent.SandboxURL != "" {
		registry.Register(tools.NewCodeInterpreter(cfg.Agent.SandboxURL, opts...))
	}
	return registry
}

type closer interface {
	Close() error
}

func closeLogged(logger *slog.Logger, what string, c closer) {
	if err := c.Close(); err != nil {
		logger.Error("failed to close "+what, "error", err)
	}
}
