package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"

	"github.com/jcodog/marble-api/internal/api"
	"github.com/jcodog/marble-api/internal/config"
	"github.com/jcodog/marble-api/internal/queue"
	"github.com/jcodog/marble-api/internal/ratelimit"
	"github.com/jcodog/marble-api/internal/raster"
	"github.com/jcodog/marble-api/internal/render"
	"github.com/jcodog/marble-api/internal/storage"
	"github.com/jcodog/marble-api/internal/store"
	"github.com/jcodog/marble-api/internal/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("load config", "err", err)
	}
	logger := telemetry.NewLogger(os.Stdout, "api", cfg.Log.Level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.SetupTracing(ctx, telemetry.TraceConfig{
		ServiceName:  "marble-api",
		Exporter:     cfg.Tracing.Exporter,
		OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
		OTLPInsecure: cfg.Tracing.OTLPInsecure,
	}, logger)
	if err != nil {
		logger.Fatal("tracing setup failed", "err", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn("tracing shutdown failed", "err", err)
		}
	}()

	rasterizer, err := raster.New(raster.Config{
		Backend: cfg.Raster.Backend,
		Binary:  cfg.Raster.Binary,
		Timeout: cfg.Raster.Timeout.Duration,
	})
	if err != nil {
		// png requests degrade to svg instead of failing
		logger.Warn("rasterizer unavailable, png requests will fall back to svg", "err", err)
	} else if err := rasterizer.Init(ctx); err != nil {
		logger.Warn("rasterizer init failed", "backend", cfg.Raster.Backend, "err", err)
	}
	defer raster.Shutdown()

	metrics := api.NewMetrics()
	renderer := render.NewService(rasterizer, logger,
		render.WithObserver(metrics),
		render.WithMaxDimension(cfg.Raster.MaxDimension),
	)

	opts := api.Options{
		Metrics:             metrics,
		PresignTTL:          cfg.Storage.PresignTTL.Duration,
		RateLimitUserHeader: cfg.API.RateLimit.UserIDHeader,
	}

	if cfg.API.RateLimit.Enabled {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Queue.RedisAddr,
			Password: cfg.Queue.RedisPassword,
			DB:       cfg.Queue.RedisDB,
		})
		defer redisClient.Close()

		limiter, err := ratelimit.NewRedisTokenBucket(redisClient, cfg.API.RateLimit.Capacity, cfg.API.RateLimit.Window.Duration, "")
		if err != nil {
			logger.Fatal("rate limiter setup failed", "err", err)
		}
		opts.RateLimiter = limiter
	}

	if cfg.Queue.Enabled {
		queueClient := queue.NewClient(cfg.Queue.RedisClientOpt(), cfg.Queue.Name)
		defer func() {
			if err := queueClient.Close(); err != nil {
				logger.Warn("queue client close failed", "err", err)
			}
		}()
		opts.Queue = queueClient

		if cfg.Database.DSN != "" {
			pg, err := store.NewPostgresJobStore(ctx, cfg.Database.DSN)
			if err != nil {
				logger.Fatal("postgres setup failed", "err", err)
			}
			defer pg.Close()
			opts.Jobs = pg
			opts.SharedJobs = true
		} else {
			logger.Warn("POSTGRES_DSN not set, job status endpoint is disabled")
			opts.Jobs = store.NewMemoryJobStore()
		}

		if cfg.Storage.Enabled {
			objects, err := storage.NewClient(storage.Config{
				Endpoint:  cfg.Storage.Endpoint,
				AccessKey: cfg.Storage.AccessKey,
				SecretKey: cfg.Storage.SecretKey,
				Bucket:    cfg.Storage.Bucket,
				UseSSL:    cfg.Storage.UseSSL,
			})
			if err != nil {
				logger.Fatal("object storage setup failed", "err", err)
			}
			opts.Objects = objects
		}
	}

	app := api.NewServer(logger, renderer, opts)

	httpServer := &http.Server{
		Addr:              cfg.API.Addr,
		Handler:           app.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      cfg.Raster.Timeout.Duration + 15*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("listening", "addr", cfg.API.Addr, "raster", cfg.Raster.Backend, "jobs", cfg.Queue.Enabled)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", "err", err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "err", err)
	}
}
