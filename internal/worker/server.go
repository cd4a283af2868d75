package worker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jcodog/marble-api/internal/config"
	"github.com/jcodog/marble-api/internal/domain"
	"github.com/jcodog/marble-api/internal/pipeline"
	"github.com/jcodog/marble-api/internal/queue"
	"github.com/jcodog/marble-api/internal/store"
	"github.com/jcodog/marble-api/internal/webhook"
)

type processor interface {
	Process(ctx context.Context, req pipeline.Request) (pipeline.Result, error)
}

type webhookSender interface {
	Send(ctx context.Context, endpoint, event string, payload any) error
}

type Server struct {
	logger        *log.Logger
	server        *asynq.Server
	queueName     string
	sem           chan struct{}
	processor     processor
	webhookClient webhookSender
	jobStore      store.JobStore
	usageStore    store.UsageStore
	metrics       *metrics
	tracer        trace.Tracer
}

func NewServer(
	logger *log.Logger,
	queueCfg config.QueueConfig,
	workerCfg config.WorkerConfig,
	proc *pipeline.Processor,
	webhookClient *webhook.Client,
	jobStore store.JobStore,
	usageStore store.UsageStore,
) (*Server, error) {
	if proc == nil {
		return nil, errors.New("pipeline processor is required")
	}

	if usageStore == nil {
		if u, ok := jobStore.(store.UsageStore); ok {
			usageStore = u
		}
	}

	s := newServer(logger, workerCfg.MaxActiveJobs, proc, jobStore, usageStore)
	s.queueName = queueCfg.Name
	if webhookClient != nil {
		s.webhookClient = webhookClient
	}
	s.server = asynq.NewServer(
		queueCfg.RedisClientOpt(),
		asynq.Config{
			Concurrency: workerCfg.Concurrency,
			Queues:      map[string]int{queueCfg.Name: 1},
			Logger:      asynqLogger{logger},
			LogLevel:    asynq.InfoLevel,
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				retried, _ := asynq.GetRetryCount(ctx)
				maxRetry, _ := asynq.GetMaxRetry(ctx)
				logger.Error("task failed", "type", task.Type(), "retry", retried, "max_retry", maxRetry, "err", err)
			}),
		},
	)
	return s, nil
}

func newServer(logger *log.Logger, slots int, proc processor, jobStore store.JobStore, usageStore store.UsageStore) *Server {
	return &Server{
		logger:     logger,
		sem:        make(chan struct{}, max(1, slots)),
		processor:  proc,
		jobStore:   jobStore,
		usageStore: usageStore,
		metrics:    newMetrics(),
		tracer:     otel.Tracer("marble/worker"),
	}
}

// Start begins consuming render tasks without blocking.
func (s *Server) Start() error {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TypeRenderMarble, s.handleRender)
	return s.server.Start(mux)
}

func (s *Server) Shutdown() {
	s.server.Shutdown()
}

func (s *Server) MetricsHandler() http.Handler {
	return s.metrics.Handler()
}

func (s *Server) handleRender(ctx context.Context, task *asynq.Task) error {
	payload, err := queue.ParseRenderPayload(task)
	if err != nil {
		return fmt.Errorf("parse payload: %v: %w", err, asynq.SkipRetry)
	}
	return s.process(ctx, payload)
}

func (s *Server) process(ctx context.Context, payload queue.RenderPayload) error {
	startedAt := time.Now()
	outcome := domain.JobStatusFailed
	format := string(payload.Spec.Format)

	ctx, span := s.tracer.Start(ctx, "worker.render_marble", trace.WithSpanKind(trace.SpanKindConsumer))
	span.SetAttributes(
		attribute.String("job.id", payload.JobID),
		attribute.String("marble.color", string(payload.Spec.Color)),
		attribute.String("marble.size", string(payload.Spec.Size)),
		attribute.String("marble.resolution", string(payload.Spec.Resolution)),
		attribute.String("marble.format", format),
	)
	defer span.End()
	defer func() {
		s.metrics.jobDuration.WithLabelValues(format, outcome).Observe(time.Since(startedAt).Seconds())
		s.metrics.jobsTotal.WithLabelValues(format, outcome).Inc()
	}()

	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	s.metrics.activeJobs.Inc()
	defer func() {
		<-s.sem
		s.metrics.activeJobs.Dec()
	}()

	s.logger.Info("rendering", "job_id", payload.JobID, "color", payload.Spec.Color,
		"size", payload.Spec.Size, "resolution", payload.Spec.Resolution, "format", format)
	s.updateJobStatus(ctx, payload.JobID, domain.JobStatusProcessing)

	result, err := s.processor.Process(ctx, pipeline.Request{JobID: payload.JobID, Spec: payload.Spec})
	if err != nil {
		s.failJob(ctx, payload.JobID, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "render failed")
		_ = s.dispatchWebhook(ctx, payload, webhook.EventRenderFailed, map[string]any{
			"job_id":       payload.JobID,
			"status":       domain.JobStatusFailed,
			"requested_at": payload.RequestedAt,
			"failed_at":    time.Now().UTC(),
			"error":        err.Error(),
		})
		return fmt.Errorf("run pipeline: %w", err)
	}

	span.SetAttributes(
		attribute.String("marble.seed", fmt.Sprintf("%08x", result.Seed)),
		attribute.Bool("marble.fallback", result.Fallback),
	)
	for _, o := range result.Outputs {
		s.metrics.outputsTotal.WithLabelValues(o.Kind).Inc()
	}
	if result.Fallback {
		s.metrics.fallbacksTotal.Inc()
	}

	s.completeJob(ctx, payload.JobID, result.Outputs)
	s.recordUsage(ctx, payload.JobID, result, time.Since(startedAt))
	outcome = domain.JobStatusSucceeded
	s.logger.Info("rendered", "job_id", payload.JobID, "seed", fmt.Sprintf("%08x", result.Seed),
		"outputs", len(result.Outputs), "fallback", result.Fallback)

	if err := s.dispatchWebhook(ctx, payload, webhook.EventRenderSucceeded, map[string]any{
		"job_id":       payload.JobID,
		"status":       domain.JobStatusSucceeded,
		"seed":         fmt.Sprintf("%08x", result.Seed),
		"fallback":     result.Fallback,
		"requested_at": payload.RequestedAt,
		"completed_at": time.Now().UTC(),
		"outputs":      result.Outputs,
	}); err != nil {
		// the render is already stored and billed; a retry would redo both
		span.RecordError(err)
		span.SetStatus(codes.Error, "webhook dispatch failed")
		return nil
	}

	span.SetStatus(codes.Ok, "rendered")
	return nil
}

func (s *Server) updateJobStatus(ctx context.Context, jobID, status string) {
	if s.jobStore == nil {
		return
	}
	if _, err := s.jobStore.UpdateStatus(ctx, jobID, status); err != nil {
		s.logger.Warn("job status update failed", "job_id", jobID, "status", status, "err", err)
	}
}

func (s *Server) completeJob(ctx context.Context, jobID string, outputs []domain.Output) {
	if s.jobStore == nil {
		return
	}
	if _, err := s.jobStore.Complete(ctx, jobID, outputs); err != nil {
		s.logger.Warn("job completion update failed", "job_id", jobID, "err", err)
	}
}

func (s *Server) failJob(ctx context.Context, jobID string, cause error) {
	if s.jobStore == nil {
		return
	}
	if _, err := s.jobStore.Fail(ctx, jobID, cause.Error()); err != nil {
		s.logger.Warn("job failure update failed", "job_id", jobID, "err", err)
	}
}

func (s *Server) dispatchWebhook(ctx context.Context, payload queue.RenderPayload, event string, body map[string]any) error {
	if payload.WebhookURL == "" || s.webhookClient == nil {
		return nil
	}

	if err := s.webhookClient.Send(ctx, payload.WebhookURL, event, body); err != nil {
		s.logger.Error("webhook delivery failed", "job_id", payload.JobID, "event", event, "err", err)
		return fmt.Errorf("dispatch webhook: %w", err)
	}
	return nil
}

func (s *Server) recordUsage(ctx context.Context, jobID string, result pipeline.Result, computeDuration time.Duration) {
	if s.usageStore == nil {
		return
	}

	userID := "anonymous"
	if s.jobStore != nil {
		job, ok, err := s.jobStore.Get(ctx, jobID)
		if err != nil {
			s.logger.Warn("usage lookup failed", "job_id", jobID, "err", err)
		} else if ok && strings.TrimSpace(job.UserID) != "" {
			userID = job.UserID
		}
	}

	computeTimeMS := max(computeDuration.Milliseconds(), 1)

	usage := domain.UsageLog{
		UserID:         userID,
		JobID:          jobID,
		PixelsRendered: result.PixelsRendered,
		BytesWritten:   result.BytesWritten,
		ComputeTimeMS:  computeTimeMS,
		Fallback:       result.Fallback,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.usageStore.CreateUsageLog(ctx, usage); err != nil {
		s.logger.Warn("usage log write failed", "job_id", jobID, "err", err)
		return
	}

	s.metrics.pixelsRendered.Add(float64(result.PixelsRendered))
	s.metrics.bytesWrittenTotal.Add(float64(result.BytesWritten))
	s.metrics.computeTimeMSTotal.Add(float64(computeTimeMS))
}

// asynqLogger routes asynq's internal logging through the service logger.
type asynqLogger struct {
	l *log.Logger
}

func (a asynqLogger) Debug(args ...any) { a.l.Debug(fmt.Sprint(args...)) }
func (a asynqLogger) Info(args ...any)  { a.l.Info(fmt.Sprint(args...)) }
func (a asynqLogger) Warn(args ...any)  { a.l.Warn(fmt.Sprint(args...)) }
func (a asynqLogger) Error(args ...any) { a.l.Error(fmt.Sprint(args...)) }
func (a asynqLogger) Fatal(args ...any) { a.l.Fatal(fmt.Sprint(args...)) }
