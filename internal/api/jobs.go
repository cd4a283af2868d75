package api

import (
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/jcodog/marble-api/internal/domain"
	"github.com/jcodog/marble-api/internal/id"
	"github.com/jcodog/marble-api/internal/marble"
	"github.com/jcodog/marble-api/internal/queue"
)

type outputView struct {
	domain.Output
	URL string `json:"url,omitempty"`
}

type jobView struct {
	ID        string            `json:"job_id"`
	Status    string            `json:"status"`
	Spec      domain.RenderSpec `json:"spec"`
	Outputs   []outputView      `json:"outputs"`
	Error     string            `json:"error,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	if !s.jobsEnabled() {
		writeError(w, http.StatusServiceUnavailable, "async jobs are disabled")
		return
	}

	var req domain.CreateJobRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	now := s.now().UTC()
	spec, err := req.Spec(now)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	userID := strings.TrimSpace(r.Header.Get(s.rateLimitUserIDHeader))
	if !s.allow(w, r, userID, resolutionCost(spec.Resolution)) {
		return
	}

	job := domain.Job{
		ID:         id.New(),
		UserID:     userID,
		Status:     domain.JobStatusQueued,
		Spec:       spec,
		WebhookURL: strings.TrimSpace(req.WebhookURL),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.jobStore.Create(r.Context(), job); err != nil {
		s.logger.Error("create job failed", "job_id", job.ID, "err", err)
		writeError(w, http.StatusInternalServerError, "failed to create job")
		return
	}

	info, err := s.queueClient.EnqueueRender(r.Context(), queue.RenderPayload{
		JobID:       job.ID,
		Spec:        spec,
		WebhookURL:  job.WebhookURL,
		RequestedAt: now,
	})
	if err != nil {
		s.logger.Error("enqueue failed", "job_id", job.ID, "err", err)
		if _, ferr := s.jobStore.Fail(r.Context(), job.ID, "enqueue failed"); ferr != nil {
			s.logger.Warn("mark job failed", "job_id", job.ID, "err", ferr)
		}
		writeError(w, http.StatusInternalServerError, "failed to enqueue job")
		return
	}
	s.metrics.queueEnqueued.WithLabelValues(info.Queue).Inc()

	resp := map[string]any{
		"job_id": job.ID,
		"status": job.Status,
		"queue":  info.Queue,
	}
	if s.sharedJobs {
		resp["status_url"] = "/v1/jobs/" + job.ID
	}
	writeJSON(w, http.StatusAccepted, resp)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	if !s.jobsEnabled() {
		writeError(w, http.StatusServiceUnavailable, "async jobs are disabled")
		return
	}
	if !s.sharedJobs {
		writeError(w, http.StatusServiceUnavailable, "job status requires a shared job store")
		return
	}

	jobID := strings.TrimSpace(r.PathValue("id"))
	job, ok, err := s.jobStore.Get(r.Context(), jobID)
	if err != nil {
		s.logger.Error("fetch job failed", "job_id", jobID, "err", err)
		writeError(w, http.StatusInternalServerError, "failed to load job")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}

	view := jobView{
		ID:        job.ID,
		Status:    job.Status,
		Spec:      job.Spec,
		Outputs:   make([]outputView, 0, len(job.Outputs)),
		Error:     job.Error,
		CreatedAt: job.CreatedAt,
		UpdatedAt: job.UpdatedAt,
	}
	for _, o := range job.Outputs {
		view.Outputs = append(view.Outputs, outputView{Output: o, URL: s.outputURL(r, o)})
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) outputURL(r *http.Request, o domain.Output) string {
	if s.objects == nil || o.ObjectKey == "" {
		return ""
	}
	u, err := s.objects.PresignedGetURL(r.Context(), o.ObjectKey, path.Base(o.ObjectKey), s.presignTTL)
	if err != nil {
		s.logger.Warn("presign output failed", "object_key", o.ObjectKey, "err", err)
		return ""
	}
	return u
}

// resolutionCost charges larger renders more rate-limit tokens.
func resolutionCost(r marble.Resolution) int {
	switch r {
	case marble.Resolution2K:
		return 2
	case marble.Resolution4K:
		return 4
	case marble.Resolution8K:
		return 8
	default:
		return 1
	}
}
