package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"

	"github.com/nadermedhet148/sql-insight-engine/pkg/api"
	"github.com/nadermedhet148/sql-insight-engine/pkg/audit"
	"github.com/nadermedhet148/sql-insight-engine/pkg/bus"
	"github.com/nadermedhet148/sql-insight-engine/pkg/config"
	"github.com/nadermedhet148/sql-insight-engine/pkg/database"
	"github.com/nadermedhet148/sql-insight-engine/pkg/kb"
	"github.com/nadermedhet148/sql-insight-engine/pkg/llm"
	"github.com/nadermedhet148/sql-insight-engine/pkg/metrics"
	"github.com/nadermedhet148/sql-insight-engine/pkg/registry"
	"github.com/nadermedhet148/sql-insight-engine/pkg/saga"
	"github.com/nadermedhet148/sql-insight-engine/pkg/statestore"
	"github.com/nadermedhet148/sql-insight-engine/pkg/toolclient"
	"github.com/nadermedhet148/sql-insight-engine/pkg/toolloop"
)

// serveOptions are the resolved flags for the serve command.
type serveOptions struct {
	ConfigDir string
	EnvFile   string
	Debug     bool
}

// runServe wires every package into a running server and blocks until a
// shutdown signal arrives or a fatal startup error occurs.
func runServe(ctx context.Context, opts serveOptions) error {
	if opts.Debug {
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})))
	}

	envPath := opts.EnvFile
	if envPath == "" {
		envPath = filepath.Join(opts.ConfigDir, ".env")
	}
	if err := godotenv.Load(envPath); err != nil {
		slog.Warn("could not load .env file, continuing with existing environment", "path", envPath, "error", err)
	} else {
		slog.Info("loaded environment file", "path", envPath)
	}

	cfg, err := config.Initialize(ctx, opts.ConfigDir)
	if err != nil {
		return fmt.Errorf("initialize configuration: %w", err)
	}
	slog.Info("configuration loaded",
		"llm_providers", cfg.Stats().LLMProviders,
		"max_iterations", cfg.ToolLoop.MaxIterations)

	dbCfg, err := database.LoadConfigFromEnv()
	if err != nil {
		return fmt.Errorf("load database config: %w", err)
	}
	dbClient, err := database.NewClient(ctx, dbCfg)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer dbClient.Close()
	slog.Info("connected to postgres")

	natsBus, err := bus.NewNATSBus(ctx, getEnv("NATS_URL", "nats://127.0.0.1:4222"))
	if err != nil {
		return fmt.Errorf("connect to message bus: %w", err)
	}
	defer natsBus.Close()

	store, err := statestore.NewNATSStore(ctx, natsBus.JetStream(), cfg.Saga.RecordTTL)
	if err != nil {
		return fmt.Errorf("open saga state store: %w", err)
	}
	slog.Info("connected to nats jetstream")

	llmClient, err := buildLLMClient(cfg)
	if err != nil {
		return fmt.Errorf("build llm client: %w", err)
	}

	m := metrics.NewMetrics(prometheus.DefaultRegisterer)

	reg := registry.New(
		registry.NewHTTPProber(cfg.ToolLoop.CallTimeout),
		registry.NewPostgresPersister(dbClient.Pool),
		cfg.Registry.StaleAfter,
		m,
	)
	if err := reg.Restore(ctx); err != nil {
		slog.Warn("failed to restore persisted tool registrations", "error", err)
	}

	toolClient := toolclient.New(cfg.ToolLoop.CallTimeout)
	auditRecorder := audit.NewPostgresRecorder(dbClient.Pool)

	orchestrator := saga.New(
		store,
		natsBus,
		reg,
		toolClient,
		llmClient,
		toolloop.Config{
			MaxIterations: cfg.ToolLoop.MaxIterations,
			CallTimeout:   cfg.ToolLoop.CallTimeout,
			LoopTimeout:   cfg.ToolLoop.LoopTimeout,
		},
		saga.Config{
			SagaDeadline:       cfg.Saga.SagaDeadline,
			StageDeadline:      cfg.Saga.StageDeadline,
			SelfCorrectRetries: cfg.Saga.SelfCorrectRetries,
			RecordTTL:          cfg.Saga.RecordTTL,
			MaxResultRows:      cfg.Saga.MaxResultRows,
			MaxSummaryChars:    cfg.Saga.MaxSummaryChars,
		},
		m,
		auditRecorder,
	)

	vectorStore := kb.NewInMemoryVectorStore()
	kbPipeline := kb.NewPipeline(llmClient, vectorStore, kb.ChunkerConfig{
		MaxChunkSize:        cfg.Chunker.MaxChunkSize,
		SimilarityThreshold: cfg.Chunker.SimilarityThreshold,
	})
	asker := kb.NewAsker(llmClient, vectorStore)

	apiServer := api.NewServer(store, natsBus, kbPipeline, asker, cfg.Saga.RecordTTL, cfg.Saga.SelfCorrectRetries, m)

	gin.SetMode(getEnv("GIN_MODE", "release"))
	engine := gin.New()
	engine.Use(gin.Recovery(), metrics.Middleware(m))
	apiServer.RegisterRoutes(engine.Group("/"))
	reg.RegisterRoutes(engine.Group("/registry"))
	metrics.RegisterRoutes(engine.Group("/"))

	httpPort := getEnv("HTTP_PORT", "8080")
	httpServer := &http.Server{
		Addr:    ":" + httpPort,
		Handler: engine,
	}

	sched := cron.New()
	if _, err := sched.AddFunc(fmt.Sprintf("@every %s", cfg.Registry.HeartbeatInterval), func() {
		reg.ProbeOnce(ctx)
	}); err != nil {
		return fmt.Errorf("schedule health-probe job: %w", err)
	}
	if _, err := sched.AddFunc(fmt.Sprintf("@every %s", cfg.Registry.SweepInterval), func() {
		reg.SweepOnce(ctx)
	}); err != nil {
		return fmt.Errorf("schedule stale-sweep job: %w", err)
	}
	sched.Start()
	defer sched.Stop()

	runCtx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	orchErrCh := make(chan error, 1)
	go func() {
		orchErrCh <- orchestrator.Run(runCtx)
	}()

	httpErrCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			httpErrCh <- err
			return
		}
		httpErrCh <- nil
	}()

	select {
	case <-runCtx.Done():
		slog.Info("shutdown signal received, initiating graceful shutdown")
	case err := <-orchErrCh:
		if err != nil {
			return fmt.Errorf("saga orchestrator failed: %w", err)
		}
	case err := <-httpErrCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	return nil
}

// buildLLMClient selects the concrete LLM client. MOCK_LLM=true swaps in the
// deterministic mock so the server can be exercised end-to-end without a
// real provider (spec §6).
func buildLLMClient(cfg *config.Config) (llm.Client, error) {
	if getEnv("MOCK_LLM", "") == "true" {
		slog.Info("MOCK_LLM enabled, using deterministic mock client")
		return llm.NewMockClient(), nil
	}
	return llm.NewOpenAIClient(cfg.LLMProviderRegistry)
}
