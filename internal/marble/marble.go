// Package marble generates deterministic marble-pattern SVG documents.
//
// A request's username and millisecond timestamp form a seed key. The key is
// hashed into a 32-bit seed that drives a float stream; the stream is
// consumed in a fixed order to derive pattern parameters, which are then
// composed into an SVG filter graph. Equal requests produce byte-identical
// documents.
package marble

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var ErrInvalidDatetime = errors.New("invalid datetime")

type Request struct {
	Color      Color
	Time       time.Time
	Username   string
	Size       SizeClass
	Resolution Resolution
	Sharp      bool
}

// SeedKey concatenates the username and the timestamp in milliseconds.
func (r Request) SeedKey() string {
	return r.Username + strconv.FormatInt(r.Time.UnixMilli(), 10)
}

func (r Request) withDefaults() Request {
	if r.Color == "" {
		r.Color = DefaultColor
	}
	if r.Size == "" {
		r.Size = DefaultSize
	}
	if r.Resolution == "" {
		r.Resolution = DefaultResolution
	}
	return r
}

type Document struct {
	SVG     []byte
	Seed    uint32
	Params  Params
	Frame   Dimensions
	Output  Dimensions
	Request Request
}

// Generate runs one generation pass. It allocates its own stream and never
// touches shared state.
func Generate(req Request) Document {
	req = req.withDefaults()

	seed := SeedFromString(req.SeedKey())
	params := Derive(NewStream(seed), req.Color)

	frame := req.Size.Frame()
	output := req.Size.Output(req.Resolution)

	doc := Document{
		Seed:    seed,
		Params:  params,
		Frame:   frame,
		Output:  output,
		Request: req,
	}
	doc.SVG = doc.render(output)
	return doc
}

// SVGAt returns the document declaring out as its pixel size. The viewBox
// stays on the frame, so only the root element's width and height change.
func (d Document) SVGAt(out Dimensions) []byte {
	if out == d.Output && d.SVG != nil {
		return d.SVG
	}
	return d.render(out)
}

func (d Document) render(out Dimensions) []byte {
	opts := []SVGOption{WithOutputSize(out)}
	if d.Request.Sharp {
		opts = append(opts, WithSharpen())
	}
	return RenderSVG(d.Params, d.Request.Color.Pair(), d.Frame, opts...)
}

var datetimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000Z07:00",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseDatetime accepts ISO-8601 timestamps. Values without a zone are
// read as UTC.
func ParseDatetime(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range datetimeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDatetime, raw)
}
