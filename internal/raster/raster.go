package raster

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrUnavailable = errors.New("rasterizer unavailable")

const (
	BackendRSVG = "rsvg"
	BackendVips = "vips"
)

// Rasterizer turns an SVG document into PNG bytes scaled to width, keeping
// the document's aspect ratio and a transparent background. Init may be
// called any number of times; only the first call does work.
type Rasterizer interface {
	Init(ctx context.Context) error
	Rasterize(ctx context.Context, svg []byte, width int) ([]byte, error)
}

type Config struct {
	Backend string
	Binary  string
	Timeout time.Duration
}

func New(cfg Config) (Rasterizer, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", BackendRSVG:
		return NewRSVG(cfg.Binary, cfg.Timeout), nil
	case BackendVips:
		return newVips()
	default:
		return nil, fmt.Errorf("unsupported raster backend: %s", cfg.Backend)
	}
}

// Func adapts a plain function to Rasterizer.
type Func func(ctx context.Context, svg []byte, width int) ([]byte, error)

func (f Func) Init(context.Context) error { return nil }

func (f Func) Rasterize(ctx context.Context, svg []byte, width int) ([]byte, error) {
	return f(ctx, svg, width)
}
