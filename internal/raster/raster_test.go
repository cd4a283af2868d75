package raster

import (
	"context"
	"errors"
	"testing"
)

func TestNewSelectsBackend(t *testing.T) {
	r, err := New(Config{})
	if err != nil {
		t.Fatalf("default backend: %v", err)
	}
	if _, ok := r.(*RSVG); !ok {
		t.Fatalf("expected rsvg backend by default, got %T", r)
	}

	if _, err := New(Config{Backend: "cairo"}); err == nil {
		t.Fatal("expected error for unsupported backend")
	}
}

func TestRSVGMissingBinaryIsUnavailable(t *testing.T) {
	r := NewRSVG("marble-test-no-such-rasterizer", 0)

	err := r.Init(context.Background())
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if again := r.Init(context.Background()); again != err {
		t.Fatalf("expected cached init error, got %v", again)
	}

	if _, err := r.Rasterize(context.Background(), []byte("<svg/>"), 100); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected rasterize to report ErrUnavailable, got %v", err)
	}
}

func TestRSVGRejectsZeroWidth(t *testing.T) {
	r := NewRSVG("", 0)
	if _, err := r.Rasterize(context.Background(), []byte("<svg/>"), 0); err == nil {
		t.Fatal("expected error for zero width")
	}
}

func TestFuncAdapter(t *testing.T) {
	var gotWidth int
	var r Rasterizer = Func(func(_ context.Context, _ []byte, width int) ([]byte, error) {
		gotWidth = width
		return []byte("png"), nil
	})

	if err := r.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}
	out, err := r.Rasterize(context.Background(), nil, 640)
	if err != nil || string(out) != "png" || gotWidth != 640 {
		t.Fatalf("unexpected result out=%q width=%d err=%v", out, gotWidth, err)
	}
}
