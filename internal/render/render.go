package render

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/jcodog/marble-api/internal/marble"
	"github.com/jcodog/marble-api/internal/raster"
)

var ErrUnknownFormat = errors.New("unknown output type")

type Format string

const (
	FormatSVG Format = "svg"
	FormatPNG Format = "png"

	ContentTypeSVG = "image/svg+xml"
	ContentTypePNG = "image/png"
)

func ParseFormat(raw string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(raw))); f {
	case "":
		return FormatSVG, nil
	case FormatSVG, FormatPNG:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, raw)
	}
}

func (f Format) ContentType() string {
	if f == FormatPNG {
		return ContentTypePNG
	}
	return ContentTypeSVG
}

func (f Format) Filename() string {
	return "marble." + string(f)
}

type Result struct {
	Body        []byte
	ContentType string
	Filename    string
	Format      Format
	Width       int
	Height      int
	Seed        uint32
	Fallback    bool
	FallbackErr error
}

// Observer receives one call per finished render.
type Observer interface {
	ObserveRender(format Format, fallback bool, elapsed time.Duration)
}

type Option func(*Service)

func WithObserver(o Observer) Option {
	return func(s *Service) { s.observer = o }
}

// WithMaxDimension overrides the raster cap. Values <= 0 keep the default.
func WithMaxDimension(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxDimension = n
		}
	}
}

type Service struct {
	rasterizer   raster.Rasterizer
	logger       *log.Logger
	observer     Observer
	maxDimension int
}

func NewService(rasterizer raster.Rasterizer, logger *log.Logger, opts ...Option) *Service {
	s := &Service{
		rasterizer:   rasterizer,
		logger:       logger,
		maxDimension: marble.MaxRasterDimension,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Render generates the document and, for PNG, rasterizes it. Rasterization
// failures never surface as errors: the SVG is returned with Fallback set.
// The only error is a cancelled context.
func (s *Service) Render(ctx context.Context, req marble.Request, format Format) (Result, error) {
	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	default:
	}

	startedAt := time.Now()
	doc := marble.Generate(req)

	result := vectorResult(doc)
	if format == FormatPNG {
		result = s.rasterize(ctx, doc)
	}

	if s.observer != nil {
		s.observer.ObserveRender(result.Format, result.Fallback, time.Since(startedAt))
	}
	return result, nil
}

func (s *Service) rasterize(ctx context.Context, doc marble.Document) Result {
	target := marble.CapDimensions(doc.Output, s.maxDimension)

	if s.rasterizer == nil {
		return s.fallback(doc, errors.New("no rasterizer configured"))
	}
	if err := s.rasterizer.Init(ctx); err != nil {
		return s.fallback(doc, fmt.Errorf("init rasterizer: %w", err))
	}

	// hand over a document already declaring the capped size so backends
	// that decode at the declared size never allocate past the cap
	data, err := s.rasterizer.Rasterize(ctx, doc.SVGAt(target), target.Width)
	if err != nil {
		return s.fallback(doc, err)
	}

	return Result{
		Body:        data,
		ContentType: ContentTypePNG,
		Filename:    FormatPNG.Filename(),
		Format:      FormatPNG,
		Width:       target.Width,
		Height:      target.Height,
		Seed:        doc.Seed,
	}
}

func (s *Service) fallback(doc marble.Document, err error) Result {
	if s.logger != nil {
		s.logger.Error("rasterization failed, serving svg", "seed", fmt.Sprintf("%08x", doc.Seed), "err", err)
	}
	result := vectorResult(doc)
	result.Fallback = true
	result.FallbackErr = err
	return result
}

func vectorResult(doc marble.Document) Result {
	return Result{
		Body:        doc.SVG,
		ContentType: ContentTypeSVG,
		Filename:    FormatSVG.Filename(),
		Format:      FormatSVG,
		Width:       doc.Output.Width,
		Height:      doc.Output.Height,
		Seed:        doc.Seed,
	}
}
