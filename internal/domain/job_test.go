package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/jcodog/marble-api/internal/marble"
	"github.com/jcodog/marble-api/internal/render"
)

func TestCreateJobRequestSpec(t *testing.T) {
	now := time.UnixMilli(1700000000000)

	spec, err := CreateJobRequest{Username: "alice", Type: "png", ThumbnailWidth: 256}.Spec(now)
	if err != nil {
		t.Fatalf("expected valid request, got error: %v", err)
	}
	if spec.Color != marble.DefaultColor || spec.Size != marble.SizeSquare || spec.Resolution != marble.ResolutionNative {
		t.Fatalf("expected defaults, got %+v", spec)
	}
	if spec.TimestampMS != 1700000000000 || spec.Format != render.FormatPNG {
		t.Fatalf("unexpected spec %+v", spec)
	}
	if spec.MarbleRequest().SeedKey() != "alice1700000000000" {
		t.Fatalf("unexpected seed key %q", spec.MarbleRequest().SeedKey())
	}

	explicit, err := CreateJobRequest{Datetime: "2023-11-14T22:13:20Z"}.Spec(time.Now())
	if err != nil {
		t.Fatalf("expected explicit datetime to parse: %v", err)
	}
	if explicit.TimestampMS != 1700000000000 {
		t.Fatalf("expected pinned datetime, got %d", explicit.TimestampMS)
	}

	if _, err := (CreateJobRequest{Color: "teal"}).Spec(now); !errors.Is(err, marble.ErrUnknownColor) {
		t.Fatalf("expected unknown color error, got %v", err)
	}
	if _, err := (CreateJobRequest{Size: "4:3"}).Spec(now); !errors.Is(err, marble.ErrUnknownSize) {
		t.Fatalf("expected unknown size error, got %v", err)
	}
	if _, err := (CreateJobRequest{ThumbnailWidth: 64}).Spec(now); err == nil {
		t.Fatal("expected thumbnail on svg output to be rejected")
	}
	if _, err := (CreateJobRequest{Type: "png", ThumbnailWidth: 5000}).Spec(now); err == nil {
		t.Fatal("expected oversized thumbnail to be rejected")
	}
	if _, err := (CreateJobRequest{WebhookURL: "ftp://example.com"}).Spec(now); err == nil {
		t.Fatal("expected non-http webhook to be rejected")
	}
}
