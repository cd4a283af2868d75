package marble

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

var (
	ErrUnknownSize       = errors.New("unknown size class")
	ErrUnknownResolution = errors.New("unknown resolution")
)

// MaxRasterDimension bounds the longer side handed to a rasterizer.
const MaxRasterDimension = 4096

type SizeClass string

const (
	SizeLandscape SizeClass = "16:9"
	SizePortrait  SizeClass = "9:16"
	SizeSquare    SizeClass = "1:1"

	DefaultSize = SizeSquare
)

type Resolution string

const (
	ResolutionNative Resolution = "native"
	Resolution2K     Resolution = "2k"
	Resolution4K     Resolution = "4k"
	Resolution8K     Resolution = "8k"

	DefaultResolution = ResolutionNative
)

type Dimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

var frames = map[SizeClass]Dimensions{
	SizeLandscape: {Width: 1600, Height: 900},
	SizePortrait:  {Width: 900, Height: 1600},
	SizeSquare:    {Width: 1000, Height: 1000},
}

var outputSizes = map[SizeClass]map[Resolution]Dimensions{
	SizeLandscape: {
		Resolution2K: {Width: 2560, Height: 1440},
		Resolution4K: {Width: 3840, Height: 2160},
		Resolution8K: {Width: 7680, Height: 4320},
	},
	SizePortrait: {
		Resolution2K: {Width: 1440, Height: 2560},
		Resolution4K: {Width: 2160, Height: 3840},
		Resolution8K: {Width: 4320, Height: 7680},
	},
	SizeSquare: {
		Resolution2K: {Width: 2048, Height: 2048},
		Resolution4K: {Width: 4096, Height: 4096},
		Resolution8K: {Width: 8192, Height: 8192},
	},
}

func ParseSize(raw string) (SizeClass, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return DefaultSize, nil
	}
	s := SizeClass(raw)
	if _, ok := frames[s]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownSize, raw)
	}
	return s, nil
}

func ParseResolution(raw string) (Resolution, error) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw == "" {
		return DefaultResolution, nil
	}
	switch r := Resolution(raw); r {
	case ResolutionNative, Resolution2K, Resolution4K, Resolution8K:
		return r, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownResolution, raw)
	}
}

// Frame is the internal drawing space. It never changes with resolution.
func (s SizeClass) Frame() Dimensions {
	if d, ok := frames[s]; ok {
		return d
	}
	return frames[DefaultSize]
}

// Output is the declared pixel size for the resolution tier.
func (s SizeClass) Output(r Resolution) Dimensions {
	if table, ok := outputSizes[s]; ok {
		if d, ok := table[r]; ok {
			return d
		}
	}
	return s.Frame()
}

// CapDimensions scales d down so its longer side is at most limit,
// keeping the aspect ratio. Dimensions already inside the limit are
// returned unchanged.
func CapDimensions(d Dimensions, limit int) Dimensions {
	longest := max(d.Width, d.Height)
	if limit <= 0 || longest <= limit {
		return d
	}
	scale := float64(limit) / float64(longest)
	return Dimensions{
		Width:  max(1, int(math.Round(float64(d.Width)*scale))),
		Height: max(1, int(math.Round(float64(d.Height)*scale))),
	}
}
