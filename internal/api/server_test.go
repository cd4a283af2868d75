package api

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/hibiken/asynq"

	"github.com/jcodog/marble-api/internal/domain"
	"github.com/jcodog/marble-api/internal/marble"
	"github.com/jcodog/marble-api/internal/queue"
	"github.com/jcodog/marble-api/internal/ratelimit"
	"github.com/jcodog/marble-api/internal/raster"
	"github.com/jcodog/marble-api/internal/render"
	"github.com/jcodog/marble-api/internal/store"
)

type fakeQueue struct {
	payloads []queue.RenderPayload
	err      error
}

func (q *fakeQueue) EnqueueRender(_ context.Context, payload queue.RenderPayload) (*asynq.TaskInfo, error) {
	if q.err != nil {
		return nil, q.err
	}
	q.payloads = append(q.payloads, payload)
	return &asynq.TaskInfo{ID: payload.JobID, Queue: "default"}, nil
}

type fakeLimiter struct {
	allowed bool
	costs   []int
}

func (l *fakeLimiter) Allow(_ context.Context, _ string, cost int) (ratelimit.Decision, error) {
	l.costs = append(l.costs, cost)
	return ratelimit.Decision{Allowed: l.allowed, RetryAfter: 1500 * time.Millisecond}, nil
}

type fakeLinker struct{}

func (fakeLinker) PresignedGetURL(_ context.Context, key, _ string, _ time.Duration) (string, error) {
	return "https://objects.test/" + key, nil
}

func newTestServer(t *testing.T, rasterizer raster.Rasterizer, opts Options) *Server {
	t.Helper()
	logger := log.New(io.Discard)
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics()
	}
	svc := render.NewService(rasterizer, logger, render.WithObserver(opts.Metrics))
	s := NewServer(logger, svc, opts)
	s.now = func() time.Time { return time.UnixMilli(1700000000000) }
	return s
}

func get(t *testing.T, s *Server, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestMarbleSVG(t *testing.T) {
	s := newTestServer(t, nil, Options{})

	rec := get(t, s, "/v1/marble?username=alice&datetime=2023-11-14T22:13:20Z")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/svg+xml" {
		t.Fatalf("unexpected content type %q", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); cd != `inline; filename="marble.svg"` {
		t.Fatalf("unexpected disposition %q", cd)
	}
	if cc := rec.Header().Get("Cache-Control"); cc != immutableCache {
		t.Fatalf("expected immutable cache for explicit datetime, got %q", cc)
	}

	want := marble.Generate(marble.Request{Username: "alice", Time: time.UnixMilli(1700000000000)})
	if !bytes.Equal(rec.Body.Bytes(), want.SVG) {
		t.Fatal("expected body to equal the generated document")
	}
	if seed := rec.Header().Get(HeaderSeed); seed != "b439af4c" {
		t.Fatalf("unexpected seed header %q", seed)
	}
	body := rec.Body.String()
	for _, fragment := range []string{`width="1000" height="1000"`, `viewBox="0 0 1000 1000"`, `fill="#0b0b0b"`} {
		if !strings.Contains(body, fragment) {
			t.Fatalf("expected %s in body", fragment)
		}
	}
}

func TestMarbleWithoutDatetimeUsesClock(t *testing.T) {
	s := newTestServer(t, nil, Options{})

	rec := get(t, s, "/v1/marble?username=alice")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if cc := rec.Header().Get("Cache-Control"); cc != "no-store" {
		t.Fatalf("expected no-store, got %q", cc)
	}
	if seed := rec.Header().Get(HeaderSeed); seed != "b439af4c" {
		t.Fatalf("expected seed from pinned clock, got %q", seed)
	}
}

func TestMarblePNGFallback(t *testing.T) {
	failing := raster.Func(func(context.Context, []byte, int) ([]byte, error) {
		return nil, errors.New("rsvg-convert exploded")
	})
	s := newTestServer(t, failing, Options{})

	rec := get(t, s, "/v1/marble?type=png&size=16:9&resolution=4k")
	if rec.Code != http.StatusOK {
		t.Fatalf("fallback must not fail the request, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/svg+xml" {
		t.Fatalf("expected svg content type on fallback, got %q", ct)
	}
	if rec.Header().Get(HeaderFallback) != "rasterization-failed" {
		t.Fatal("expected fallback header")
	}
	if cd := rec.Header().Get("Content-Disposition"); cd != `inline; filename="marble.svg"` {
		t.Fatalf("unexpected disposition %q", cd)
	}

	var root struct {
		XMLName xml.Name
		Width   string `xml:"width,attr"`
		Height  string `xml:"height,attr"`
	}
	if err := xml.Unmarshal(rec.Body.Bytes(), &root); err != nil {
		t.Fatalf("fallback body is not valid xml: %v", err)
	}
	if root.XMLName.Local != "svg" || root.Width != "3840" || root.Height != "2160" {
		t.Fatalf("unexpected root %+v", root)
	}
}

func TestMarblePNG(t *testing.T) {
	var gotWidth int
	ok := raster.Func(func(_ context.Context, _ []byte, width int) ([]byte, error) {
		gotWidth = width
		return []byte("\x89PNG\r\n"), nil
	})
	s := newTestServer(t, ok, Options{})

	rec := get(t, s, "/v1/marble?type=png&size=9:16&resolution=8k&sharp=true")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Header().Get("Content-Type") != "image/png" || rec.Header().Get(HeaderFallback) != "" {
		t.Fatalf("unexpected headers %v", rec.Header())
	}
	if cd := rec.Header().Get("Content-Disposition"); cd != `inline; filename="marble.png"` {
		t.Fatalf("unexpected disposition %q", cd)
	}
	if gotWidth != 2304 {
		t.Fatalf("expected capped width 2304, got %d", gotWidth)
	}
}

func TestMarbleRejectsBadInput(t *testing.T) {
	s := newTestServer(t, nil, Options{})

	for _, target := range []string{
		"/v1/marble?color=teal",
		"/v1/marble?size=4:3",
		"/v1/marble?resolution=16k",
		"/v1/marble?type=gif",
		"/v1/marble?sharp=maybe",
		"/v1/marble?datetime=yesterday",
	} {
		rec := get(t, s, target)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", target, rec.Code)
		}
		var body map[string]string
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil || body["error"] == "" {
			t.Fatalf("%s: expected json error body, got %q", target, rec.Body.String())
		}
	}
}

func TestPalettes(t *testing.T) {
	s := newTestServer(t, nil, Options{})

	rec := get(t, s, "/v1/palettes")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body struct {
		Default  string          `json:"default"`
		Palettes []marble.Swatch `json:"palettes"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Default != "black" || len(body.Palettes) != len(marble.Colors()) {
		t.Fatalf("unexpected palettes %+v", body)
	}
}

func TestMetricsCountFallbacks(t *testing.T) {
	failing := raster.Func(func(context.Context, []byte, int) ([]byte, error) {
		return nil, errors.New("boom")
	})
	s := newTestServer(t, failing, Options{})
	get(t, s, "/v1/marble?type=png")

	rec := get(t, s, "/metrics")
	if !strings.Contains(rec.Body.String(), `marble_renders_total{fallback="true",format="svg"} 1`) {
		t.Fatalf("expected fallback counter in metrics output")
	}
}

func postJob(t *testing.T, s *Server, body string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/jobs", strings.NewReader(body))
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestCreateAndGetJob(t *testing.T) {
	jobs := store.NewMemoryJobStore()
	q := &fakeQueue{}
	limiter := &fakeLimiter{allowed: true}
	s := newTestServer(t, nil, Options{Queue: q, Jobs: jobs, SharedJobs: true, Objects: fakeLinker{}, RateLimiter: limiter})

	rec := postJob(t, s, `{"color":"blue","username":"bob","resolution":"4k","type":"png","thumbnail_width":256}`,
		http.Header{"X-User-Id": {"user-9"}})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}

	var created map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	jobID := created["job_id"]
	if jobID == "" || created["status"] != domain.JobStatusQueued || created["status_url"] != "/v1/jobs/"+jobID {
		t.Fatalf("unexpected create response %v", created)
	}
	if len(q.payloads) != 1 || q.payloads[0].Spec.TimestampMS != 1700000000000 {
		t.Fatalf("unexpected payloads %+v", q.payloads)
	}
	if len(limiter.costs) != 1 || limiter.costs[0] != 4 {
		t.Fatalf("expected 4k job to cost 4 tokens, got %v", limiter.costs)
	}

	_, _ = jobs.Complete(context.Background(), jobID, []domain.Output{{Kind: "image", ObjectKey: "renders/" + jobID + "/marble.png"}})

	rec = get(t, s, "/v1/jobs/"+jobID)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var view jobView
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if view.Status != domain.JobStatusSucceeded || len(view.Outputs) != 1 {
		t.Fatalf("unexpected job view %+v", view)
	}
	if view.Outputs[0].URL != "https://objects.test/renders/"+jobID+"/marble.png" {
		t.Fatalf("unexpected output url %q", view.Outputs[0].URL)
	}

	job, _, _ := jobs.Get(context.Background(), jobID)
	if job.UserID != "user-9" {
		t.Fatalf("expected user id from header, got %q", job.UserID)
	}
}

func TestCreateJobValidation(t *testing.T) {
	s := newTestServer(t, nil, Options{Queue: &fakeQueue{}, Jobs: store.NewMemoryJobStore()})

	for _, body := range []string{
		`{"color":"teal"}`,
		`{"type":"svg","thumbnail_width":64}`,
		`{"unknown":true}`,
		`{} {}`,
	} {
		if rec := postJob(t, s, body, nil); rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", body, rec.Code)
		}
	}
}

func TestCreateJobRateLimited(t *testing.T) {
	q := &fakeQueue{}
	s := newTestServer(t, nil, Options{Queue: q, Jobs: store.NewMemoryJobStore(), RateLimiter: &fakeLimiter{}})

	rec := postJob(t, s, `{}`, nil)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") != "2" {
		t.Fatalf("unexpected Retry-After %q", rec.Header().Get("Retry-After"))
	}
	if len(q.payloads) != 0 {
		t.Fatal("rate limited job must not be enqueued")
	}
}

func TestCreateJobEnqueueFailure(t *testing.T) {
	jobs := store.NewMemoryJobStore()
	s := newTestServer(t, nil, Options{Queue: &fakeQueue{err: errors.New("redis down")}, Jobs: jobs})

	if rec := postJob(t, s, `{}`, nil); rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

func TestJobsDisabledAndMissing(t *testing.T) {
	s := newTestServer(t, nil, Options{})
	if rec := postJob(t, s, `{}`, nil); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}

	s = newTestServer(t, nil, Options{Queue: &fakeQueue{}, Jobs: store.NewMemoryJobStore(), SharedJobs: true})
	if rec := get(t, s, "/v1/jobs/nope"); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestJobStatusRequiresSharedStore(t *testing.T) {
	jobs := store.NewMemoryJobStore()
	s := newTestServer(t, nil, Options{Queue: &fakeQueue{}, Jobs: jobs})

	rec := postJob(t, s, `{"color":"red"}`, nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	var created map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := created["status_url"]; ok {
		t.Fatalf("status_url must be omitted without a shared store: %v", created)
	}

	if rec := get(t, s, "/v1/jobs/"+created["job_id"]); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestRouteLabel(t *testing.T) {
	cases := map[string]string{
		"/v1/marble":    "/v1/marble",
		"/v1/jobs":      "/v1/jobs",
		"/v1/jobs/abc":  "/v1/jobs/{id}",
		"/healthz":      "/healthz",
		"/wp-admin.php": "other",
	}
	for path, want := range cases {
		if got := routeLabel(path); got != want {
			t.Fatalf("routeLabel(%q) = %q, want %q", path, got, want)
		}
	}
}
