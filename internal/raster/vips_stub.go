//go:build !govips || !cgo

package raster

import "fmt"

func newVips() (Rasterizer, error) {
	return nil, fmt.Errorf("%w: vips backend requires the govips build tag and cgo", ErrUnavailable)
}

func Shutdown() {}
