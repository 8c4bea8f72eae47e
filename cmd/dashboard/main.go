// Package main is the entry point for the student dashboard backend.
//
// The service aggregates XP standings across cohort batches and guards
// every surface behind a role-checked session gate. Architecture follows
// Clean Architecture:
//   - Domain: ranking and session rules without external dependencies
//   - Application: query handlers and the session gate
//   - Infrastructure: table store, identity provider, Postgres
//   - Interface: HTTP endpoints
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/cohort-hub/student-dashboard/config"
	"github.com/cohort-hub/student-dashboard/internal/application/auth"
	"github.com/cohort-hub/student-dashboard/internal/application/query"
	"github.com/cohort-hub/student-dashboard/internal/domain/leaderboard"
	"github.com/cohort-hub/student-dashboard/internal/infrastructure/external/identity"
	"github.com/cohort-hub/student-dashboard/internal/infrastructure/external/tablestore"
	"github.com/cohort-hub/student-dashboard/internal/infrastructure/persistence/postgres"
	httpserver "github.com/cohort-hub/student-dashboard/internal/interface/http"
	"github.com/cohort-hub/student-dashboard/pkg/logger"
	"github.com/cohort-hub/student-dashboard/pkg/metrics"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. CONFIGURATION
	// ─────────────────────────────────────────────────────────────────────────

	// Missing .env is fine; real deployments use the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. LOGGING
	// ─────────────────────────────────────────────────────────────────────────
	log := logger.New(logger.Options{
		Output:    os.Stdout,
		Level:     logger.ParseLevel(cfg.Observability.LogLevel),
		AddCaller: cfg.App.Debug,
	})
	slogger := setupSlog(cfg)

	log.Info("starting student dashboard",
		logger.String("env", string(cfg.App.Environment)),
		logger.String("version", cfg.App.Version),
		logger.String("store_backend", string(cfg.Store.Backend)),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. METRICS
	// ─────────────────────────────────────────────────────────────────────────
	var metricsManager *metrics.Manager
	if cfg.Observability.MetricsEnabled {
		metricsManager = metrics.New(cfg.Observability.MetricsNamespace)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. BATCH SOURCE (REST table store or direct Postgres)
	// ─────────────────────────────────────────────────────────────────────────
	var (
		batchSource leaderboard.BatchSource
		healthCheck func(ctx context.Context) map[string]bool
	)

	switch cfg.Store.Backend {
	case config.StoreBackendPostgres:
		log.Info("connecting to database")
		dbConn, err := postgres.NewConnectionFromURL(ctx, cfg.Store.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer func() {
			log.Info("closing database connection")
			dbConn.Close()
		}()

		batchSource = postgres.NewXPRepository(dbConn, cfg.Store.Table)
		healthCheck = func(ctx context.Context) map[string]bool {
			return map[string]bool{"database": dbConn.Ping(ctx) == nil}
		}

	default:
		storeConfig := tablestore.DefaultClientConfig(cfg.Store.URL, cfg.Store.APIKey)
		storeConfig.Table = cfg.Store.Table
		storeConfig.Timeout = cfg.Store.RequestTimeout
		storeConfig.RateLimiterConfig.RequestsPerSecond = float64(cfg.Store.RateLimit)
		storeConfig.RateLimiterConfig.BurstSize = cfg.Store.RateLimitBurst
		storeConfig.RetryConfig.MaxAttempts = cfg.Store.MaxRetries
		storeConfig.RetryConfig.InitialDelay = cfg.Store.RetryBaseDelay
		storeConfig.RetryConfig.MaxDelay = cfg.Store.RetryMaxDelay
		storeConfig.CircuitBreakerConfig.FailureThreshold = cfg.Store.CircuitBreakerThreshold
		storeConfig.CircuitBreakerConfig.Timeout = cfg.Store.CircuitBreakerTimeout
		storeConfig.CircuitBreakerConfig.MaxHalfOpenRequests = cfg.Store.CircuitBreakerHalfOpenMax
		storeConfig.Logger = slogger
		storeConfig.Debug = cfg.App.Debug

		storeClient := tablestore.NewClient(storeConfig)
		batchSource = storeClient
		healthCheck = func(ctx context.Context) map[string]bool {
			return map[string]bool{"table_store": storeClient.IsHealthy(ctx)}
		}
	}

	if metricsManager != nil {
		batchSource = &instrumentedBatchSource{src: batchSource, metrics: metricsManager}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. IDENTITY PROVIDER AND SESSION GATE
	// ─────────────────────────────────────────────────────────────────────────
	identityConfig := identity.DefaultClientConfig(cfg.Auth.URL, cfg.Auth.APIKey)
	identityConfig.Timeout = cfg.Auth.RequestTimeout
	identityConfig.Logger = slogger
	identityConfig.Debug = cfg.App.Debug
	identityClient := identity.NewClient(identityConfig)

	gateConfig := auth.DefaultConfig()
	gateConfig.RequiredRole = cfg.Gate.RequiredRole
	gateConfig.InitTimeout = cfg.Gate.InitTimeout
	gateConfig.SignOutTimeout = cfg.Gate.SignOutTimeout
	gateConfig.OnRoleRejected = metricsManager.RecordRoleRejection

	gate := auth.NewGate(identityClient, gateConfig, log)
	if err := gate.Start(ctx); err != nil {
		return fmt.Errorf("failed to start session gate: %w", err)
	}
	defer gate.Close()

	if cfg.Auth.WatcherEnabled {
		watcherConfig := identity.DefaultWatcherConfig()
		watcherConfig.CheckInterval = cfg.Auth.CheckInterval
		watcherConfig.RefreshLeeway = cfg.Auth.RefreshLeeway
		watcherConfig.Logger = slogger

		watcher := identity.NewSessionWatcher(identityClient, watcherConfig)
		watcher.Start(ctx)
		defer watcher.Stop()
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 6. APPLICATION LAYER
	// ─────────────────────────────────────────────────────────────────────────
	leaderboardQuery := query.NewGetLeaderboardHandler(batchSource, log)

	defaultBatches, err := parseBatchKeys(cfg.HTTP.DefaultBatches)
	if err != nil {
		return fmt.Errorf("invalid DEFAULT_BATCHES: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 7. HTTP SERVER
	// ─────────────────────────────────────────────────────────────────────────
	httpConfig := httpserver.DefaultConfig()
	httpConfig.Host = cfg.HTTP.Host
	httpConfig.Port = cfg.HTTP.Port
	httpConfig.ReadTimeout = cfg.HTTP.ReadTimeout
	httpConfig.WriteTimeout = cfg.HTTP.WriteTimeout
	httpConfig.IdleTimeout = cfg.HTTP.IdleTimeout
	httpConfig.EnableCORS = cfg.HTTP.EnableCORS
	httpConfig.EnableMetrics = cfg.Observability.MetricsEnabled

	httpServer := httpserver.NewServer(httpConfig, httpserver.Dependencies{
		GetLeaderboardHandler: leaderboardQuery,
		Gate:                  gate,
		DefaultBatches:        defaultBatches,
		Logger:                log,
		Metrics:               metricsManager,
		HealthCheck:           healthCheck,
	})

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// 8. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("student dashboard is running",
		logger.String("http_address", httpConfig.Address()),
		logger.Role(cfg.Gate.RequiredRole),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	select {
	case sig := <-sigCh:
		log.Info("received shutdown signal", logger.String("signal", sig.String()))
	case err := <-errCh:
		log.Error("service error", logger.Err(err))
		return err
	}

	log.Info("starting graceful shutdown",
		logger.Duration("timeout", cfg.App.ShutdownTimeout),
	)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("failed to stop HTTP server gracefully", logger.Err(err))
		return err
	}

	log.Info("shutdown completed")
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// setupSlog builds the slog logger the infrastructure clients use.
func setupSlog(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if cfg.App.Debug {
		opts.Level = slog.LevelDebug
	}

	var handler slog.Handler
	if cfg.Observability.LogFormat == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	log := slog.New(handler)
	slog.SetDefault(log)
	return log
}

// parseBatchKeys parses "<cohort_type>:<cohort_number>" pairs.
func parseBatchKeys(raw []string) ([]leaderboard.BatchKey, error) {
	keys := make([]leaderboard.BatchKey, 0, len(raw))
	for _, v := range raw {
		key, err := leaderboard.ParseBatchKey(v)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ADAPTERS
// ══════════════════════════════════════════════════════════════════════════════

// instrumentedBatchSource times every batch query, whichever backend serves
// it.
type instrumentedBatchSource struct {
	src     leaderboard.BatchSource
	metrics *metrics.Manager
}

func (s *instrumentedBatchSource) FetchBatch(ctx context.Context, key leaderboard.BatchKey) ([]leaderboard.XPRecord, error) {
	start := time.Now()
	records, err := s.src.FetchBatch(ctx, key)
	s.metrics.RecordBatchFetch(time.Since(start), err != nil)
	return records, err
}
