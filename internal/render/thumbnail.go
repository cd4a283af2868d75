package render

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/png"
	"math"

	"golang.org/x/image/draw"
)

// Thumbnail decodes a PNG and scales it to width with Catmull-Rom
// resampling. Images already at or below width are returned unchanged.
func Thumbnail(data []byte, width int) ([]byte, int, int, error) {
	if width <= 0 {
		return nil, 0, 0, errors.New("thumbnail requires width > 0")
	}

	src, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, 0, 0, fmt.Errorf("decode raster: %w", err)
	}

	bounds := src.Bounds()
	srcW, srcH := bounds.Dx(), bounds.Dy()
	if srcW == 0 || srcH == 0 {
		return nil, 0, 0, errors.New("raster has invalid dimensions")
	}
	if srcW <= width {
		return data, srcW, srcH, nil
	}

	height := max(1, int(math.Round(float64(srcH)*float64(width)/float64(srcW))))
	dst := image.NewNRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Src, nil)

	var buf bytes.Buffer
	encoder := png.Encoder{CompressionLevel: png.BestCompression}
	if err := encoder.Encode(&buf, dst); err != nil {
		return nil, 0, 0, fmt.Errorf("encode thumbnail: %w", err)
	}
	return buf.Bytes(), width, height, nil
}
