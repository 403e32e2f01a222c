package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-nlq/pkg/adapters/datasource"
	_ "github.com/ekaya-inc/ekaya-nlq/pkg/adapters/datasource/mssql"
	_ "github.com/ekaya-inc/ekaya-nlq/pkg/adapters/datasource/postgres"
	_ "github.com/ekaya-inc/ekaya-nlq/pkg/adapters/datasource/sqldb"
	"github.com/ekaya-inc/ekaya-nlq/pkg/cache"
	"github.com/ekaya-inc/ekaya-nlq/pkg/config"
	"github.com/ekaya-inc/ekaya-nlq/pkg/database"
	"github.com/ekaya-inc/ekaya-nlq/pkg/executor"
	"github.com/ekaya-inc/ekaya-nlq/pkg/handlers"
	"github.com/ekaya-inc/ekaya-nlq/pkg/logging"
	"github.com/ekaya-inc/ekaya-nlq/pkg/mcp"
	"github.com/ekaya-inc/ekaya-nlq/pkg/middleware"
	"github.com/ekaya-inc/ekaya-nlq/pkg/nlp"
	"github.com/ekaya-inc/ekaya-nlq/pkg/repositories"
	"github.com/ekaya-inc/ekaya-nlq/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	// Load configuration
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("Server failed", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("Configuration loaded",
		zap.String("version", cfg.Version),
		zap.String("base_url", cfg.BaseURL),
		zap.Int("datasources", len(cfg.Datasources)),
		zap.Bool("history_store", cfg.Database.Enabled()),
		zap.Bool("shared_cache", cfg.Redis.Host != ""))

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	checks := make(map[string]handlers.HealthCheck)

	// History and saved queries: PostgreSQL when configured, memory otherwise.
	history := repositories.NewMemoryHistoryRepository()
	saved := repositories.NewMemorySavedQueryRepository()
	db, err := database.Open(ctx, &cfg.Database, logger.Named("database"))
	if err != nil {
		return fmt.Errorf("failed to open history store: %w", err)
	}
	if db != nil {
		defer db.Close()
		history = repositories.NewQueryHistoryRepository(db.Pool)
		saved = repositories.NewSavedQueryRepository(db.Pool)
		checks["database"] = func(ctx context.Context) error { return db.Ping(ctx) }
	}

	// Shared cache tier
	var shared cache.Store
	redisClient, err := cache.NewRedisClient(ctx, &cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer func(c *redis.Client) { _ = c.Close() }(redisClient)
		shared = cache.NewRedisStore(redisClient, cfg.Redis.KeyPrefix)
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}

	if path := cfg.Tokenizer.CustomTermsFile; path != "" {
		terms, err := nlp.LoadTermsFile(path)
		if err != nil {
			return err
		}
		if err := nlp.AddCustomTerms(terms...); err != nil {
			return err
		}
		logger.Info("Loaded custom terms", zap.String("path", path), zap.Int("terms", len(terms)))
	}

	execMetrics, err := executor.NewMetrics(reg)
	if err != nil {
		return fmt.Errorf("failed to register executor metrics: %w", err)
	}
	exec := executor.New(executor.Config{
		Workers:   cfg.Pipeline.AsyncWorkers,
		BatchSize: cfg.Pipeline.BatchSize,
		Retention: cfg.Pipeline.StatusRetention,
	}, execMetrics, logger)
	defer exec.Close()

	cacheMetrics, err := cache.NewMetrics(reg)
	if err != nil {
		return fmt.Errorf("failed to register cache metrics: %w", err)
	}
	resultCache := cache.New(cache.Config{SweepInterval: cfg.Cache.SweepInterval}, shared, cacheMetrics, logger)
	defer resultCache.Close()

	datasources, err := services.NewDatasourceService(cfg.Datasources, datasource.NewAdapterFactory(logger), exec.Pool(), logger)
	if err != nil {
		return err
	}
	defer func() { _ = datasources.Close() }()

	if failures := datasources.RefreshSchemas(ctx); len(failures) > 0 {
		logger.Warn("Some data sources are unavailable; schemas will be discovered on first use",
			zap.Int("failed", len(failures)))
	}

	historyService := services.NewQueryHistoryService(history, logger)
	if cfg.Pipeline.HistoryPruneInterval > 0 {
		retention := services.NewRetentionService(datasources, historyService, cfg.Pipeline.HistoryRetentionDays, logger)
		retention.RunScheduler(ctx, cfg.Pipeline.HistoryPruneInterval)
	}

	pipeline := services.NewPipelineService(services.PipelineDeps{
		Datasources: datasources,
		Executor:    exec,
		Cache:       resultCache,
		History:     historyService,
		SavedQuery:  saved,
		Defaults:    cfg.Pipeline.QueryMetadata(),
	}, logger)

	auditor, err := mcp.NewToolAuditor(reg, logger)
	if err != nil {
		return fmt.Errorf("failed to register tool metrics: %w", err)
	}
	mcpServer := mcp.NewServer("ekaya-nlq", cfg.Version, auditor, logger)
	mcpServer.RegisterTools(cfg.Version, pipeline, datasources)

	httpMetrics, err := middleware.NewHTTPMetrics(reg, "/mcp", "/health", "/ping", "/metrics")
	if err != nil {
		return fmt.Errorf("failed to register http metrics: %w", err)
	}

	mux := http.NewServeMux()
	handlers.NewHealthHandler(cfg, checks, logger).RegisterRoutes(mux)
	handlers.NewMCPHandler(mcpServer, logger).RegisterRoutes(mux, nil)
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	srv := &http.Server{
		Addr:              cfg.BindAddr + ":" + cfg.Port,
		Handler:           middleware.RequestLogger(logger.Named("http"), httpMetrics)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting ekaya-nlq", zap.String("addr", srv.Addr), zap.String("version", cfg.Version))
		if cfg.TLSCertPath != "" {
			errCh <- srv.ListenAndServeTLS(cfg.TLSCertPath, cfg.TLSKeyPath)
			return
		}
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		logger.Info("Shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}
