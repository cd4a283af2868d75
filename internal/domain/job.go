package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jcodog/marble-api/internal/marble"
	"github.com/jcodog/marble-api/internal/render"
)

const (
	JobStatusQueued     = "queued"
	JobStatusProcessing = "processing"
	JobStatusSucceeded  = "succeeded"
	JobStatusFailed     = "failed"

	MaxThumbnailWidth = 1024
)

// CreateJobRequest mirrors the query parameters of the synchronous endpoint
// plus delivery options.
type CreateJobRequest struct {
	Color          string `json:"color,omitempty"`
	Datetime       string `json:"datetime,omitempty"`
	Username       string `json:"username,omitempty"`
	Size           string `json:"size,omitempty"`
	Resolution     string `json:"resolution,omitempty"`
	Sharp          bool   `json:"sharp,omitempty"`
	Type           string `json:"type,omitempty"`
	ThumbnailWidth int    `json:"thumbnail_width,omitempty"`
	WebhookURL     string `json:"webhook_url,omitempty"`
}

// RenderSpec is a validated, fully defaulted render request. The timestamp
// is pinned at job creation so the worker reproduces the same image.
type RenderSpec struct {
	Color          marble.Color      `json:"color"`
	TimestampMS    int64             `json:"timestamp_ms"`
	Username       string            `json:"username"`
	Size           marble.SizeClass  `json:"size"`
	Resolution     marble.Resolution `json:"resolution"`
	Sharp          bool              `json:"sharp"`
	Format         render.Format     `json:"format"`
	ThumbnailWidth int               `json:"thumbnail_width,omitempty"`
}

func (s RenderSpec) MarbleRequest() marble.Request {
	return marble.Request{
		Color:      s.Color,
		Time:       time.UnixMilli(s.TimestampMS).UTC(),
		Username:   s.Username,
		Size:       s.Size,
		Resolution: s.Resolution,
		Sharp:      s.Sharp,
	}
}

type Output struct {
	Kind        string `json:"kind"`
	ObjectKey   string `json:"object_key"`
	ContentType string `json:"content_type"`
	Bytes       int    `json:"bytes"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	Fallback    bool   `json:"fallback,omitempty"`
}

type Job struct {
	ID         string
	UserID     string
	Status     string
	Spec       RenderSpec
	WebhookURL string
	Outputs    []Output
	Error      string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type UsageLog struct {
	UserID         string
	JobID          string
	PixelsRendered int64
	BytesWritten   int64
	ComputeTimeMS  int64
	Fallback       bool
	CreatedAt      time.Time
}

// Spec validates the request and pins defaults. now supplies the timestamp
// when datetime is absent.
func (r CreateJobRequest) Spec(now time.Time) (RenderSpec, error) {
	color, err := marble.ParseColor(r.Color)
	if err != nil {
		return RenderSpec{}, err
	}
	size, err := marble.ParseSize(r.Size)
	if err != nil {
		return RenderSpec{}, err
	}
	resolution, err := marble.ParseResolution(r.Resolution)
	if err != nil {
		return RenderSpec{}, err
	}
	format, err := render.ParseFormat(r.Type)
	if err != nil {
		return RenderSpec{}, err
	}

	ts := now
	if strings.TrimSpace(r.Datetime) != "" {
		ts, err = marble.ParseDatetime(r.Datetime)
		if err != nil {
			return RenderSpec{}, err
		}
	}

	if r.ThumbnailWidth < 0 || r.ThumbnailWidth > MaxThumbnailWidth {
		return RenderSpec{}, fmt.Errorf("thumbnail_width must be between 0 and %d", MaxThumbnailWidth)
	}
	if r.ThumbnailWidth > 0 && format != render.FormatPNG {
		return RenderSpec{}, errors.New("thumbnail_width requires type=png")
	}

	webhook := strings.TrimSpace(r.WebhookURL)
	if webhook != "" && !strings.HasPrefix(webhook, "http://") && !strings.HasPrefix(webhook, "https://") {
		return RenderSpec{}, errors.New("webhook_url must be an http(s) URL")
	}

	return RenderSpec{
		Color:          color,
		TimestampMS:    ts.UnixMilli(),
		Username:       r.Username,
		Size:           size,
		Resolution:     resolution,
		Sharp:          r.Sharp,
		Format:         format,
		ThumbnailWidth: r.ThumbnailWidth,
	}, nil
}
