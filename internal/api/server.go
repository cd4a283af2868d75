package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/jcodog/marble-api/internal/marble"
	"github.com/jcodog/marble-api/internal/queue"
	"github.com/jcodog/marble-api/internal/ratelimit"
	"github.com/jcodog/marble-api/internal/render"
	"github.com/jcodog/marble-api/internal/store"
)

type Renderer interface {
	Render(ctx context.Context, req marble.Request, format render.Format) (render.Result, error)
}

type queueEnqueuer interface {
	EnqueueRender(ctx context.Context, payload queue.RenderPayload) (*asynq.TaskInfo, error)
}

type objectLinker interface {
	PresignedGetURL(ctx context.Context, key, filename string, expiry time.Duration) (string, error)
}

// Options carries the optional collaborators. A nil Queue or Jobs disables
// the async job endpoints; a nil RateLimiter disables limiting. SharedJobs
// reports that Jobs is the store the workers write to; without it job status
// is never served since it could not advance past queued.
type Options struct {
	Queue               queueEnqueuer
	Jobs                store.JobStore
	SharedJobs          bool
	Objects             objectLinker
	PresignTTL          time.Duration
	RateLimiter         ratelimit.Limiter
	RateLimitUserHeader string
	Metrics             *Metrics
}

type Server struct {
	logger                *log.Logger
	renderer              Renderer
	queueClient           queueEnqueuer
	jobStore              store.JobStore
	sharedJobs            bool
	objects               objectLinker
	presignTTL            time.Duration
	rateLimiter           ratelimit.Limiter
	rateLimitUserIDHeader string
	metrics               *Metrics
	tracer                trace.Tracer
	now                   func() time.Time
	mux                   *http.ServeMux
}

func NewServer(logger *log.Logger, renderer Renderer, opts Options) *Server {
	if opts.PresignTTL <= 0 {
		opts.PresignTTL = 15 * time.Minute
	}
	if opts.RateLimitUserHeader == "" {
		opts.RateLimitUserHeader = "X-User-ID"
	}
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics()
	}

	s := &Server{
		logger:                logger,
		renderer:              renderer,
		queueClient:           opts.Queue,
		jobStore:              opts.Jobs,
		sharedJobs:            opts.SharedJobs,
		objects:               opts.Objects,
		presignTTL:            opts.PresignTTL,
		rateLimiter:           opts.RateLimiter,
		rateLimitUserIDHeader: opts.RateLimitUserHeader,
		metrics:               opts.Metrics,
		tracer:                otel.Tracer("marble/api"),
		now:                   time.Now,
		mux:                   http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.withTracing(s.metrics.withHTTPMetrics(s.mux))
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	s.mux.Handle("GET /metrics", s.metrics.Handler())
	s.mux.HandleFunc("GET /v1/marble", s.handleMarble)
	s.mux.HandleFunc("GET /v1/palettes", s.handlePalettes)
	s.mux.HandleFunc("POST /v1/jobs", s.handleCreateJob)
	s.mux.HandleFunc("GET /v1/jobs/{id}", s.handleGetJob)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) jobsEnabled() bool {
	return s.queueClient != nil && s.jobStore != nil
}

func decodeJSON(r *http.Request, into any) error {
	const maxBodyBytes = 1 << 20
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(into); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	if err := decoder.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("invalid JSON body: multiple JSON values are not allowed")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
