package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/shopcast/social-publisher/internal/api"
	"github.com/shopcast/social-publisher/internal/api/handler"
	"github.com/shopcast/social-publisher/internal/assets"
	"github.com/shopcast/social-publisher/internal/catalog"
	"github.com/shopcast/social-publisher/internal/config"
	"github.com/shopcast/social-publisher/internal/db"
	"github.com/shopcast/social-publisher/internal/metrics"
	"github.com/shopcast/social-publisher/internal/platform"
	"github.com/shopcast/social-publisher/internal/publisher"
	"github.com/shopcast/social-publisher/internal/queue"
	"github.com/shopcast/social-publisher/internal/ratelimiter"
	"github.com/shopcast/social-publisher/internal/repository"
	"github.com/shopcast/social-publisher/internal/service"
	"github.com/shopcast/social-publisher/internal/settings"
	"github.com/shopcast/social-publisher/internal/worker"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync() //nolint:errcheck

	// ---- configuration ----
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	ctx := context.Background()
	checks := map[string]handler.Check{}

	// ---- post store + catalogue ----
	var (
		repo repository.PostRepository
		cat  catalog.Catalog
	)
	switch cfg.StoreDriver {
	case config.StorePostgres:
		pool, err := db.Connect(ctx, cfg)
		if err != nil {
			logger.Fatal("failed to connect to database", zap.Error(err))
		}
		defer pool.Close()

		if err := db.Migrate(cfg.DatabaseURL); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
		logger.Info("database migrations applied")

		repo = repository.NewPgPostRepository(pool)
		cat = catalog.NewPgCatalog(pool, cfg.StorefrontBaseURL)
		checks["database"] = pool.Ping
	case config.StoreSQLite:
		sq, err := repository.OpenSQLitePostRepository(ctx, cfg.SQLitePath)
		if err != nil {
			logger.Fatal("failed to open sqlite store", zap.Error(err))
		}
		defer sq.Close()

		repo = sq
		cat = catalog.NewSQLCatalog(sq.DB(), cfg.StorefrontBaseURL)
		checks["database"] = sq.DB().PingContext
		logger.Info("sqlite store opened", zap.String("path", cfg.SQLitePath))
	}
	cat = catalog.NewShared(cat)

	// ---- queue ----
	var (
		q       queue.Queue
		delayed queue.DelayedQueue
		lease   *queue.RedisQueue
	)
	switch cfg.QueueBackend {
	case config.QueueMemory:
		q = queue.NewMemoryQueue(cfg.QueueCapacity)
	case config.QueueRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Fatal("failed to connect to redis", zap.Error(err))
		}

		rq := queue.NewRedisQueue(client, cfg.RedisQueueKey, cfg.RedisLeaseTTL)
		if err := rq.Register(ctx); err != nil {
			logger.Fatal("failed to register queue consumer", zap.Error(err))
		}
		// Tasks leased by consumers whose heartbeat has lapsed belong to a
		// process that died before acking; hand them back.
		n, err := rq.Recover(ctx)
		if err != nil {
			logger.Fatal("failed to recover in-flight tasks", zap.Error(err))
		}
		if n > 0 {
			logger.Warn("recovered unacknowledged tasks", zap.Int("count", n))
		}

		q = rq
		lease = rq
		if cfg.QueueNativeDelay {
			delayed = rq
		}
		checks["queue"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
	}

	// ---- platform settings ----
	src, err := settings.NewSource(cfg.SettingsFile, logger)
	if err != nil {
		logger.Fatal("failed to load platform settings", zap.Error(err))
	}

	// ---- core dependencies ----
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	resolver := assets.NewURLResolver(cfg.PublicFilesBaseURL)
	graph := platform.NewGraphClient(cfg.GraphAPIBaseURL, cfg.PlatformTimeout)
	adapters := platform.NewRegistry(
		platform.NewFacebookAdapter(graph, cat, resolver, logger),
		platform.NewInstagramAdapter(graph, cat, resolver, logger),
	)
	coord := publisher.NewCoordinator(
		adapters,
		ratelimiter.New(cfg.PlatformRateLimit),
		publisher.Options{Concurrency: cfg.PublishConcurrency, CallTimeout: cfg.PlatformTimeout},
		logger,
		m.PlatformHook(),
	)
	svc := service.NewPostService(repo, q, cat, src, adapters, logger)

	// ---- background work ----
	// Context for all background goroutines; cancelled on shutdown signal.
	workerCtx, cancelWorkers := context.WithCancel(ctx)
	defer cancelWorkers()

	go func() {
		if err := src.Watch(workerCtx); err != nil {
			logger.Error("settings watcher stopped", zap.Error(err))
		}
	}()

	leaseDone := make(chan struct{})
	go func() {
		defer close(leaseDone)
		if lease != nil {
			lease.KeepAlive(workerCtx, logger)
		}
	}()

	onPublished, onFailed, onDeferred, onDiscarded := m.WorkerHooks()
	workers, err := worker.NewPool(cfg, q, delayed, repo, coord, src, logger, worker.MetricHooks{
		OnPublished: onPublished,
		OnFailed:    onFailed,
		OnDeferred:  onDeferred,
		OnDiscarded: onDiscarded,
	})
	if err != nil {
		logger.Fatal("failed to create worker pool", zap.Error(err))
	}
	workers.Start(workerCtx)
	// Drain whatever is already queued instead of waiting for the first tick.
	workers.Kick(workerCtx)

	depth := worker.NewDepthReporter(q, cfg.QueueDepthEvery, func(n int) {
		m.QueueDepth.Set(float64(n))
	}, logger)
	go depth.Run(workerCtx)

	// ---- HTTP server ----
	router := api.NewRouter(svc, q, checks, reg, logger)
	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	go func() {
		logger.Info("server starting",
			zap.String("addr", srv.Addr),
			zap.String("store", cfg.StoreDriver),
			zap.String("queue", cfg.QueueBackend),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// ---- graceful shutdown ----
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutdown signal received")

	// 1. Stop accepting new HTTP requests.
	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	// 2. Stop the schedule and let in-flight cycles finish their current task.
	if err := workers.Stop(shutdownCtx); err != nil {
		logger.Error("worker pool did not stop in time", zap.Error(err))
	}

	// 3. Stop the watcher, the depth reporter and the queue heartbeat.
	cancelWorkers()
	<-leaseDone

	logger.Info("server stopped cleanly")
}
