package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jcodog/marble-api/internal/domain"
)

func TestMemoryJobStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryJobStore()

	now := time.Now().UTC()
	if err := s.Create(ctx, domain.Job{ID: "job-1", Status: domain.JobStatusQueued, CreatedAt: now, UpdatedAt: now}); err != nil {
		t.Fatalf("create: %v", err)
	}

	job, err := s.UpdateStatus(ctx, "job-1", domain.JobStatusProcessing)
	if err != nil {
		t.Fatalf("update status: %v", err)
	}
	if job.Status != domain.JobStatusProcessing {
		t.Fatalf("expected processing, got %s", job.Status)
	}

	outputs := []domain.Output{{Kind: "image", ObjectKey: "renders/job-1/marble.png"}}
	job, err = s.Complete(ctx, "job-1", outputs)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	outputs[0].ObjectKey = "mutated"
	if job.Status != domain.JobStatusSucceeded || job.Outputs[0].ObjectKey != "renders/job-1/marble.png" {
		t.Fatalf("unexpected completed job %+v", job)
	}

	got, ok, err := s.Get(ctx, "job-1")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if len(got.Outputs) != 1 {
		t.Fatalf("expected one output, got %d", len(got.Outputs))
	}
}

func TestMemoryJobStoreFailAndMissing(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryJobStore()

	if _, err := s.Fail(ctx, "missing", "boom"); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
	if _, ok, _ := s.Get(ctx, "missing"); ok {
		t.Fatal("expected missing job")
	}

	_ = s.Create(ctx, domain.Job{ID: "job-2", Status: domain.JobStatusQueued})
	job, err := s.Fail(ctx, "job-2", "storage down")
	if err != nil {
		t.Fatalf("fail: %v", err)
	}
	if job.Status != domain.JobStatusFailed || job.Error != "storage down" {
		t.Fatalf("unexpected failed job %+v", job)
	}
}

func TestMemoryJobStoreUsageLogs(t *testing.T) {
	s := NewMemoryJobStore()
	_ = s.CreateUsageLog(context.Background(), domain.UsageLog{JobID: "job-1", PixelsRendered: 100})

	logs := s.UsageLogs()
	if len(logs) != 1 || logs[0].PixelsRendered != 100 {
		t.Fatalf("unexpected usage logs %+v", logs)
	}
}
