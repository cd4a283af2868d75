package raster

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"
)

const defaultRSVGBinary = "rsvg-convert"

// RSVG shells out to rsvg-convert from librsvg, which implements the SVG
// filter primitives the marble documents depend on.
type RSVG struct {
	binary  string
	timeout time.Duration

	once    sync.Once
	path    string
	initErr error
}

func NewRSVG(binary string, timeout time.Duration) *RSVG {
	if strings.TrimSpace(binary) == "" {
		binary = defaultRSVGBinary
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &RSVG{binary: binary, timeout: timeout}
}

func (r *RSVG) Init(_ context.Context) error {
	r.once.Do(func() {
		path, err := exec.LookPath(r.binary)
		if err != nil {
			r.initErr = fmt.Errorf("%w: %s not found (install librsvg2-bin): %v", ErrUnavailable, r.binary, err)
			return
		}
		r.path = path
	})
	return r.initErr
}

func (r *RSVG) Rasterize(ctx context.Context, svg []byte, width int) ([]byte, error) {
	if width <= 0 {
		return nil, errors.New("rasterize requires width > 0")
	}
	if err := r.Init(ctx); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, r.path,
		"--format", "png",
		"--width", strconv.Itoa(width),
		"--keep-aspect-ratio",
		"--background-color", "none",
	)
	cmd.Stdin = bytes.NewReader(svg)

	var out, errBuf bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errBuf

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("rsvg-convert: %w", ctxErr)
		}
		return nil, fmt.Errorf("rsvg-convert: %v: %s", err, strings.TrimSpace(errBuf.String()))
	}
	if out.Len() == 0 {
		return nil, errors.New("rsvg-convert produced no output")
	}
	return out.Bytes(), nil
}
