//go:build govips && cgo

package raster

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/davidbyttow/govips/v2/vips"
)

var (
	startupOnce sync.Once
	shutdownMu  sync.Mutex
	started     bool
)

type vipsRasterizer struct{}

func newVips() (Rasterizer, error) {
	return vipsRasterizer{}, nil
}

func (vipsRasterizer) Init(_ context.Context) error {
	startupOnce.Do(func() {
		vips.Startup(&vips.Config{
			MaxCacheFiles: 0,
			MaxCacheMem:   128 * 1024 * 1024,
			MaxCacheSize:  100,
		})

		shutdownMu.Lock()
		started = true
		shutdownMu.Unlock()
	})
	return nil
}

// Shutdown releases libvips. Safe to call when the backend never started.
func Shutdown() {
	shutdownMu.Lock()
	defer shutdownMu.Unlock()
	if !started {
		return
	}
	vips.Shutdown()
	started = false
}

func (v vipsRasterizer) Rasterize(ctx context.Context, svg []byte, width int) ([]byte, error) {
	if width <= 0 {
		return nil, errors.New("rasterize requires width > 0")
	}
	if err := v.Init(ctx); err != nil {
		return nil, err
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	img, err := vips.NewImageFromBuffer(svg)
	if err != nil {
		return nil, fmt.Errorf("load svg: %w", err)
	}
	defer img.Close()

	if img.Width() <= 0 {
		return nil, errors.New("svg loaded with invalid width")
	}
	if img.Width() != width {
		if err := img.Resize(float64(width)/float64(img.Width()), vips.KernelLanczos3); err != nil {
			return nil, fmt.Errorf("resize raster: %w", err)
		}
	}

	data, _, err := img.ExportPng(vips.NewPngExportParams())
	if err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return data, nil
}
