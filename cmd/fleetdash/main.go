package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/fleetdash/fleetdash/internal/app"
	"github.com/fleetdash/fleetdash/internal/documents"
	"github.com/fleetdash/fleetdash/internal/observability"
	"github.com/fleetdash/fleetdash/internal/platform/cache"
	"github.com/fleetdash/fleetdash/internal/platform/db"
	"github.com/fleetdash/fleetdash/internal/quotes"
	"github.com/fleetdash/fleetdash/internal/shared"
	"github.com/fleetdash/fleetdash/internal/stats"
	"github.com/fleetdash/fleetdash/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	if cfg.PGMigrate {
		if err := db.Migrate(cfg.PGDSN); err != nil {
			logger.Error("apply migrations", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("migrations applied")
	}

	dbpool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{MaxConns: cfg.PGMaxConns})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	if err := stats.SetupCacheMetrics(metrics.Registerer()); err != nil {
		logger.Warn("register stats cache metrics", slog.Any("error", err))
	}

	statsCache := stats.NewCache(redisClient, cfg.StatsCacheTTL)
	if err := statsCache.ListenForInvalidation(ctx, ""); err != nil {
		logger.Warn("subscribe stats invalidation", slog.Any("error", err))
	}

	docStore, err := documents.NewStore(cfg.DocumentStorageDir, cfg.DocumentBaseURL, cfg.DocumentMaxBytes)
	if err != nil {
		logger.Error("init document store", slog.Any("error", err))
		os.Exit(1)
	}

	redisOpts, err := jobs.RedisOpt(cfg.RedisAddr)
	if err != nil {
		logger.Error("parse redis address", slog.Any("error", err))
		os.Exit(1)
	}
	jobClient := jobs.NewClient(redisOpts)
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	quoteRepo := quotes.NewRepository(dbpool)
	quoteService := quotes.NewService(quoteRepo, logger, quotes.Deps{
		Documents: docStore,
		Mailer:    jobClient,
		Notifier:  statsCache,
		Audit:     shared.NewAuditLogger(dbpool),
		Metrics:   metrics,
	})
	statsService := stats.NewService(quoteRepo, statsCache, cfg.Location())

	router := app.NewRouter(app.RouterParams{
		Logger:       logger,
		Config:       cfg,
		QuoteHandler: quotes.NewHandler(logger, quoteService, cfg.DocumentMaxBytes),
		StatsHandler: stats.NewHandler(logger, statsService),
		JobHandler:   jobs.NewHandler(inspector, logger),
		Documents:    docStore,
		Metrics:      metrics,
		Ready: func(r *http.Request) error {
			pingCtx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := dbpool.Ping(pingCtx); err != nil {
				return err
			}
			return redisClient.Ping(pingCtx).Err()
		},
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
