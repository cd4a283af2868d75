package marble

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
)

var ErrUnknownColor = errors.New("unknown color preset")

type Color string

const (
	ColorBlack  Color = "black"
	ColorWhite  Color = "white"
	ColorGray   Color = "gray"
	ColorBlue   Color = "blue"
	ColorGreen  Color = "green"
	ColorRed    Color = "red"
	ColorGold   Color = "gold"
	ColorPink   Color = "pink"
	ColorPurple Color = "purple"

	DefaultColor = ColorBlack
)

// Tone separates the two primaries from the tinted presets. Primaries get a
// denser primary vein layer.
type Tone int

const (
	ToneTinted Tone = iota
	ToneDark
	ToneLight
)

func (t Tone) String() string {
	switch t {
	case ToneDark:
		return "dark"
	case ToneLight:
		return "light"
	default:
		return "tinted"
	}
}

type Pair struct {
	Base string
	Vein string
}

var colorOrder = []Color{
	ColorBlack,
	ColorWhite,
	ColorGray,
	ColorBlue,
	ColorGreen,
	ColorRed,
	ColorGold,
	ColorPink,
	ColorPurple,
}

var palette = map[Color]Pair{
	ColorBlack:  {Base: "#0b0b0b", Vein: "#d9d9d9"},
	ColorWhite:  {Base: "#f4f4f1", Vein: "#3b3b3b"},
	ColorGray:   {Base: "#7d7f82", Vein: "#e6e6e6"},
	ColorBlue:   {Base: "#1d3557", Vein: "#a8dadc"},
	ColorGreen:  {Base: "#1f4d3a", Vein: "#cfe8d5"},
	ColorRed:    {Base: "#5c1a1b", Vein: "#f1c0b9"},
	ColorGold:   {Base: "#b8860b", Vein: "#fff4d6"},
	ColorPink:   {Base: "#e8b4bc", Vein: "#6d2e46"},
	ColorPurple: {Base: "#3c1f4f", Vein: "#d9c3ef"},
}

// Colors returns the presets in their canonical order.
func Colors() []Color {
	out := make([]Color, len(colorOrder))
	copy(out, colorOrder)
	return out
}

func ParseColor(raw string) (Color, error) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw == "" {
		return DefaultColor, nil
	}
	c := Color(raw)
	if _, ok := palette[c]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownColor, raw)
	}
	return c, nil
}

// Pair returns the base and vein colors. Unknown colors resolve to the
// default preset.
func (c Color) Pair() Pair {
	if p, ok := palette[c]; ok {
		return p
	}
	return palette[DefaultColor]
}

func (c Color) Tone() Tone {
	switch c {
	case ColorBlack:
		return ToneDark
	case ColorWhite:
		return ToneLight
	default:
		return ToneTinted
	}
}

func (c Color) String() string {
	return string(c)
}

// Swatch describes a preset for listings.
type Swatch struct {
	Name      string  `json:"name"`
	Base      string  `json:"base"`
	Vein      string  `json:"vein"`
	Tone      string  `json:"tone"`
	Lightness float64 `json:"lightness"`
	Contrast  float64 `json:"contrast"`
}

func (c Color) Swatch() (Swatch, error) {
	pair := c.Pair()
	base, err := colorful.Hex(pair.Base)
	if err != nil {
		return Swatch{}, fmt.Errorf("parse base color %s: %w", pair.Base, err)
	}
	vein, err := colorful.Hex(pair.Vein)
	if err != nil {
		return Swatch{}, fmt.Errorf("parse vein color %s: %w", pair.Vein, err)
	}

	l, _, _ := base.Lab()
	return Swatch{
		Name:      c.String(),
		Base:      base.Hex(),
		Vein:      vein.Hex(),
		Tone:      c.Tone().String(),
		Lightness: round3(l),
		Contrast:  round3(base.DistanceCIEDE2000(vein)),
	}, nil
}

func Swatches() ([]Swatch, error) {
	out := make([]Swatch, 0, len(colorOrder))
	for _, c := range colorOrder {
		s, err := c.Swatch()
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
