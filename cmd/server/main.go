// Package main is the entry point for the LearnFlow progress engine API.
//
// The process wires together:
//   - PostgreSQL persistence (or an in-memory store for development)
//   - Redis caching and cross-instance event fan-out
//   - Command and query handlers for learning events
//   - Struggle alert notifications
//   - The HTTP API server and the maintenance scheduler
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/learnflow/progress-engine/config"
	"github.com/learnflow/progress-engine/internal/application/command"
	"github.com/learnflow/progress-engine/internal/application/eventhandler"
	"github.com/learnflow/progress-engine/internal/application/query"
	"github.com/learnflow/progress-engine/internal/domain/progress"
	"github.com/learnflow/progress-engine/internal/domain/shared"
	"github.com/learnflow/progress-engine/internal/infrastructure/messaging"
	"github.com/learnflow/progress-engine/internal/infrastructure/persistence/memory"
	"github.com/learnflow/progress-engine/internal/infrastructure/persistence/postgres"
	"github.com/learnflow/progress-engine/internal/infrastructure/persistence/redis"
	"github.com/learnflow/progress-engine/internal/infrastructure/scheduler"
	"github.com/learnflow/progress-engine/internal/infrastructure/scheduler/jobs"
	"github.com/learnflow/progress-engine/internal/infrastructure/service"
	httpapi "github.com/learnflow/progress-engine/internal/interface/http"
	"github.com/learnflow/progress-engine/internal/interface/http/handlers"
	"github.com/learnflow/progress-engine/pkg/logger"
)

// eventBus is the closeable bus contract satisfied by both the in-memory
// and Redis implementations.
type eventBus interface {
	shared.EventBus
	Close() error
}

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
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. LOGGING
	// ─────────────────────────────────────────────────────────────────────────
	log := setupLogger(cfg)
	log.Info("starting LearnFlow progress engine",
		"env", cfg.App.Environment,
		"version", cfg.App.Version,
		"debug", cfg.App.Debug,
	)

	apiLogger := logger.New(logger.Options{
		Level:     logger.ParseLevel(cfg.Observability.LogLevel),
		AddCaller: cfg.App.Debug,
	})

	// ─────────────────────────────────────────────────────────────────────────
	// 3. PERSISTENCE (PostgreSQL, or in-memory for development)
	// ─────────────────────────────────────────────────────────────────────────
	var (
		aggregates progress.AggregateRepository
		eventLog   progress.EventLogRepository
		alerts     progress.AlertRepository
	)

	healthChecker := handlers.NewCompositeHealthChecker(cfg.App.Version)

	if cfg.Database.URL != "" {
		log.Info("connecting to database...")
		conn, err := postgres.NewConnectionFromURL(ctx, cfg.Database.URL)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer func() {
			log.Info("closing database connection...")
			conn.Close()
		}()

		log.Info("checking database migrations...")
		migrator := postgres.NewMigrator(conn)
		if err := migrator.Migrate(ctx); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		log.Info("database schema is up to date")

		aggregates = postgres.NewAggregateRepository(conn)
		eventLog = postgres.NewEventLogRepository(conn)
		alerts = postgres.NewAlertRepository(conn)

		healthChecker.AddCheck("database", handlers.NewDatabaseCheck(conn))
	} else {
		log.Warn("DATABASE_URL not set, using in-memory store")
		store := memory.NewStoreWithRetention(cfg.Engine.EventRetention)
		aggregates = store
		eventLog = store
		alerts = store.Alerts()
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. REDIS (optional: caching and cross-instance fan-out)
	// ─────────────────────────────────────────────────────────────────────────
	var cache *redis.Cache
	if !cfg.Redis.Disabled {
		log.Info("connecting to Redis...")
		cache, err = redis.NewCache(redisConfigFrom(cfg))
		if err != nil {
			log.Warn("Redis unavailable, caching and fan-out disabled", "error", err)
			cache = nil
		} else {
			defer func() {
				log.Info("closing Redis connection...")
				_ = cache.Close()
			}()
			healthChecker.AddCheck("cache", handlers.NewCacheCheck(cache))
			log.Info("Redis connection established")
		}
	}

	var progressCache query.AggregateCache
	if cache != nil && cfg.Features.IsEnabled(config.FeatureProgressCache, nil) {
		progressCache = redis.NewProgressCache(cache)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. EVENT BUS
	// ─────────────────────────────────────────────────────────────────────────
	var bus eventBus
	if cache != nil && cfg.Features.IsEnabled(config.FeatureRedisFanout, nil) {
		log.Info("initializing Redis event bus...")
		bus, err = messaging.NewRedisEventBus(messaging.RedisEventBusConfig{
			Client:         cache.Client(),
			LocalBusConfig: messaging.InMemoryEventBusConfig{AsyncMode: true, Logger: log},
			Logger:         log,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize event bus: %w", err)
		}
	} else {
		log.Info("initializing in-memory event bus...")
		busCfg := messaging.DefaultInMemoryEventBusConfig()
		busCfg.Logger = log
		bus = messaging.NewInMemoryEventBus(busCfg)
	}
	defer func() {
		log.Info("closing event bus...")
		_ = bus.Close()
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// 6. APPLICATION HANDLERS
	// ─────────────────────────────────────────────────────────────────────────
	recordHandler := command.NewRecordEventHandler(aggregates, eventLog, alerts, bus, log)
	recordHandler.SetStruggleWindow(cfg.Engine.StruggleWindow)

	var batchHandler *command.RecordBatchHandler
	if cfg.Features.IsEnabled(config.FeatureBatchIngest, nil) {
		batchHandler = command.NewRecordBatchHandler(recordHandler)
	}

	progressHandler := query.NewGetProgressHandler(aggregates, eventLog, alerts, progressCache, log)
	progressHandler.SetStruggleWindow(cfg.Engine.StruggleWindow)

	if cfg.Features.IsEnabled(config.FeatureStruggleNotifications, nil) {
		struggleCfg := eventhandler.DefaultStruggleConfig()
		struggleCfg.NotificationCooldown = cfg.Engine.NotificationCooldown

		var notifier eventhandler.Notifier = eventhandler.NewLogNotifier(log)
		if cfg.Engine.AlertWebhookURL != "" {
			webhookCfg := service.DefaultWebhookNotifierConfig(cfg.Engine.AlertWebhookURL)
			webhookCfg.AuthToken = cfg.Engine.AlertWebhookToken
			notifier = service.NewWebhookNotifier(webhookCfg, log)
			log.Info("struggle alerts delivered via webhook", "url", cfg.Engine.AlertWebhookURL)
		}

		struggleHandler := eventhandler.NewOnStruggleDetectedHandler(notifier, log, struggleCfg)
		if err := struggleHandler.Register(bus); err != nil {
			return fmt.Errorf("failed to register struggle handler: %w", err)
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 7. HTTP API SERVER
	// ─────────────────────────────────────────────────────────────────────────
	server := httpapi.NewServer(httpConfigFrom(cfg), httpapi.Dependencies{
		RecordEventHandler: recordHandler,
		RecordBatchHandler: batchHandler,
		GetProgressHandler: progressHandler,
		Logger:             apiLogger,
		HealthChecker:      healthChecker,
	})

	log.Info("starting HTTP server", "addr", cfg.HTTP.Host, "port", cfg.HTTP.Port)
	serverErr := server.StartAsync()

	// ─────────────────────────────────────────────────────────────────────────
	// 8. MAINTENANCE SCHEDULER
	// ─────────────────────────────────────────────────────────────────────────
	sched := scheduler.NewScheduler(log)
	pruneJob := jobs.NewPruneEventsJob(eventLog, cfg.Engine.EventRetention, log)
	if err := sched.Register(pruneJob, scheduler.Every(cfg.Engine.PruneInterval)); err != nil {
		return fmt.Errorf("failed to register prune job: %w", err)
	}
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 9. SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
	case sig := <-sigCh:
		log.Info("received shutdown signal", "signal", sig.String())
	}

	log.Info("starting graceful shutdown...", "timeout", cfg.App.ShutdownTimeout.String())

	if err := sched.Stop(); err != nil {
		log.Error("scheduler shutdown failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("http server shutdown failed", "error", err)
	}

	log.Info("shutdown completed successfully")
	return nil
}

// setupLogger configures structured logging for the process.
func setupLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slogLevel(cfg.Observability.LogLevel)}
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

func slogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func redisConfigFrom(cfg *config.Config) redis.Config {
	rc := redis.DefaultConfig()
	rc.Host = cfg.Redis.Host
	rc.Port = cfg.Redis.Port
	rc.Password = cfg.Redis.Password
	rc.DB = cfg.Redis.DB
	rc.PoolSize = cfg.Redis.PoolSize
	rc.MinIdleConns = cfg.Redis.MinIdleConns
	rc.DialTimeout = cfg.Redis.DialTimeout
	rc.ReadTimeout = cfg.Redis.ReadTimeout
	rc.WriteTimeout = cfg.Redis.WriteTimeout
	return rc
}

func httpConfigFrom(cfg *config.Config) httpapi.Config {
	hc := httpapi.DefaultConfig()
	hc.Host = cfg.HTTP.Host
	hc.Port = cfg.HTTP.Port
	hc.ReadTimeout = cfg.HTTP.ReadTimeout
	hc.WriteTimeout = cfg.HTTP.WriteTimeout
	hc.IdleTimeout = cfg.HTTP.IdleTimeout
	hc.MaxBodyBytes = cfg.HTTP.MaxBodyBytes
	hc.EnableCORS = cfg.HTTP.EnableCORS
	hc.AllowedOrigins = cfg.HTTP.AllowedOrigins
	hc.RateLimitPerMinute = cfg.HTTP.RateLimitPerMinute
	hc.MaxBatchEvents = cfg.Engine.BatchMaxEvents
	return hc
}
