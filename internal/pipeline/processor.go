// Package pipeline turns a queued render spec into stored artifacts: render,
// optionally thumbnail, then emit each artifact to its destination.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jcodog/marble-api/internal/domain"
	"github.com/jcodog/marble-api/internal/marble"
	"github.com/jcodog/marble-api/internal/render"
)

const (
	KindImage     = "image"
	KindThumbnail = "thumbnail"
)

var ErrJobIDRequired = errors.New("job_id is required")

type Request struct {
	JobID string
	Spec  domain.RenderSpec
}

type Result struct {
	Outputs        []domain.Output
	Seed           uint32
	Fallback       bool
	PixelsRendered int64
	BytesWritten   int64
}

type Renderer interface {
	Render(ctx context.Context, req marble.Request, format render.Format) (render.Result, error)
}

// Emitter persists one artifact and returns where it landed.
type Emitter interface {
	Emit(ctx context.Context, jobID, name string, data []byte, contentType string) (string, error)
}

type Processor struct {
	renderer Renderer
	emitter  Emitter
}

func NewProcessor(renderer Renderer, emitter Emitter) (*Processor, error) {
	if renderer == nil {
		return nil, errors.New("renderer is required")
	}
	if emitter == nil {
		return nil, errors.New("emitter is required")
	}
	return &Processor{renderer: renderer, emitter: emitter}, nil
}

func NewLocalProcessor(renderer Renderer, outputDir string) (*Processor, error) {
	if strings.TrimSpace(outputDir) == "" {
		return nil, errors.New("output directory is required")
	}
	return NewProcessor(renderer, LocalFileEmitter{OutputDir: outputDir})
}

func (p *Processor) Process(ctx context.Context, req Request) (Result, error) {
	if strings.TrimSpace(req.JobID) == "" {
		return Result{}, ErrJobIDRequired
	}

	rendered, err := p.renderer.Render(ctx, req.Spec.MarbleRequest(), req.Spec.Format)
	if err != nil {
		return Result{}, fmt.Errorf("render stage: %w", err)
	}

	out := Result{
		Seed:     rendered.Seed,
		Fallback: rendered.Fallback,
	}

	image, err := p.emit(ctx, req.JobID, KindImage, rendered.Filename, rendered.Body, rendered.ContentType)
	if err != nil {
		return Result{}, err
	}
	image.Width, image.Height = rendered.Width, rendered.Height
	image.Fallback = rendered.Fallback
	out.add(image)
	if rendered.Format == render.FormatPNG {
		out.PixelsRendered = int64(rendered.Width) * int64(rendered.Height)
	}

	// a fallback render is SVG and has no pixels to thumbnail
	if req.Spec.ThumbnailWidth > 0 && rendered.Format == render.FormatPNG {
		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		default:
		}

		data, w, h, err := render.Thumbnail(rendered.Body, req.Spec.ThumbnailWidth)
		if err != nil {
			return Result{}, fmt.Errorf("thumbnail stage: %w", err)
		}
		name := "thumbnail-" + strconv.Itoa(req.Spec.ThumbnailWidth) + ".png"
		thumb, err := p.emit(ctx, req.JobID, KindThumbnail, name, data, render.ContentTypePNG)
		if err != nil {
			return Result{}, err
		}
		thumb.Width, thumb.Height = w, h
		out.add(thumb)
	}

	return out, nil
}

func (p *Processor) emit(ctx context.Context, jobID, kind, name string, data []byte, contentType string) (domain.Output, error) {
	key, err := p.emitter.Emit(ctx, jobID, name, data, contentType)
	if err != nil {
		return domain.Output{}, fmt.Errorf("emit stage kind=%s: %w", kind, err)
	}
	return domain.Output{
		Kind:        kind,
		ObjectKey:   key,
		ContentType: contentType,
		Bytes:       len(data),
	}, nil
}

func (r *Result) add(o domain.Output) {
	r.Outputs = append(r.Outputs, o)
	r.BytesWritten += int64(o.Bytes)
}

type LocalFileEmitter struct {
	OutputDir string
}

func (e LocalFileEmitter) Emit(ctx context.Context, jobID, name string, data []byte, _ string) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}

	jobDir := filepath.Join(e.OutputDir, sanitizePathToken(jobID))
	if err := os.MkdirAll(jobDir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	fullPath := filepath.Join(jobDir, sanitizeFilename(name))
	if err := os.WriteFile(fullPath, data, 0o644); err != nil {
		return "", fmt.Errorf("write output file: %w", err)
	}
	return fullPath, nil
}

func sanitizeFilename(name string) string {
	ext := filepath.Ext(name)
	return sanitizePathToken(strings.TrimSuffix(name, ext)) + sanitizeExt(ext)
}

func sanitizeExt(ext string) string {
	if ext == "" {
		return ""
	}
	return "." + sanitizePathToken(strings.TrimPrefix(ext, "."))
}

func sanitizePathToken(in string) string {
	in = strings.TrimSpace(in)
	if in == "" {
		return "unknown"
	}

	var b strings.Builder
	b.Grow(len(in))
	for _, r := range in {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-' || r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
