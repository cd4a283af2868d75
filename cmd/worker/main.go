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

	"github.com/jcodog/marble-api/internal/config"
	"github.com/jcodog/marble-api/internal/pipeline"
	"github.com/jcodog/marble-api/internal/raster"
	"github.com/jcodog/marble-api/internal/render"
	"github.com/jcodog/marble-api/internal/storage"
	"github.com/jcodog/marble-api/internal/store"
	"github.com/jcodog/marble-api/internal/telemetry"
	"github.com/jcodog/marble-api/internal/webhook"
	"github.com/jcodog/marble-api/internal/worker"
)

type jobStore interface {
	store.JobStore
	store.UsageStore
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("load config", "err", err)
	}
	logger := telemetry.NewLogger(os.Stdout, "worker", cfg.Log.Level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.SetupTracing(ctx, telemetry.TraceConfig{
		ServiceName:  "marble-worker",
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
		logger.Warn("rasterizer unavailable, png jobs will store svg", "err", err)
	}
	defer raster.Shutdown()
	renderer := render.NewService(rasterizer, logger, render.WithMaxDimension(cfg.Raster.MaxDimension))

	var proc *pipeline.Processor
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
		if err := objects.EnsureBucket(ctx); err != nil {
			logger.Fatal("ensure bucket failed", "bucket", objects.Bucket(), "err", err)
		}
		proc, err = pipeline.NewObjectStoreProcessor(renderer, objects)
		if err != nil {
			logger.Fatal("pipeline setup failed", "err", err)
		}
	} else {
		proc, err = pipeline.NewLocalProcessor(renderer, cfg.Worker.LocalOutputDir)
		if err != nil {
			logger.Fatal("pipeline setup failed", "err", err)
		}
	}

	var jobs jobStore
	if cfg.Database.DSN != "" {
		pg, err := store.NewPostgresJobStore(ctx, cfg.Database.DSN)
		if err != nil {
			logger.Fatal("postgres setup failed", "err", err)
		}
		defer pg.Close()
		jobs = pg
	} else {
		jobs = store.NewMemoryJobStore()
	}

	webhookClient := webhook.NewClient(webhook.Config{
		SigningSecret: cfg.Webhook.SigningSecret,
		Timeout:       cfg.Webhook.Timeout.Duration,
		MaxAttempts:   cfg.Webhook.MaxAttempts,
	})

	srv, err := worker.NewServer(logger, cfg.Queue, cfg.Worker, proc, webhookClient, jobs, jobs)
	if err != nil {
		logger.Fatal("worker setup failed", "err", err)
	}

	metricsServer := &http.Server{
		Addr:              cfg.Worker.MetricsAddr,
		Handler:           srv.MetricsHandler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "err", err)
		}
	}()

	logger.Info("starting worker",
		"concurrency", cfg.Worker.Concurrency,
		"max_active_jobs", cfg.Worker.MaxActiveJobs,
		"queue", cfg.Queue.Name,
		"redis", cfg.Queue.RedisAddr,
		"storage", cfg.Storage.Enabled,
	)

	if err := srv.Start(); err != nil {
		logger.Fatal("worker failed", "err", err)
	}

	<-ctx.Done()
	logger.Info("shutting down")
	srv.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsServer.Shutdown(shutdownCtx)
}
