package marble

import "math"

const TableSize = 64

// Table is the discrete threshold lookup that turns continuous noise into
// thin bands. It is shared by both vein layers.
type Table [TableSize]bool

// String renders the table as a run of '0' and '1' characters.
func (t Table) String() string {
	b := make([]byte, TableSize)
	for i, on := range t {
		if on {
			b[i] = '1'
		} else {
			b[i] = '0'
		}
	}
	return string(b)
}

// Runs counts contiguous stretches of on entries.
func (t Table) Runs() int {
	runs := 0
	for i, on := range t {
		if on && (i == 0 || !t[i-1]) {
			runs++
		}
	}
	return runs
}

// Layer holds the derived values for one vein overlay.
type Layer struct {
	WarpFrequency [2]float64
	VeinFrequency [2]float64
	WarpSeed      int
	VeinSeed      int
	Opacity       float64
	Gamma         float64
	Displacement  float64
	Blur          float64
}

// Params is everything the composer needs from the random stream.
//
// Rotation is drawn to keep the stream position stable but is not applied
// to the rendered document.
type Params struct {
	BaseFrequency float64
	Octaves       int
	SeedOffset    int
	Rotation      float64
	VeinContrast  float64
	Pulses        int
	PulseWidth    float64
	Table         Table
	Layers        [2]Layer
}

type layerCoefficients struct {
	warpX, warpY float64
	veinX, veinY float64
	warpSeed     int
	veinSeed     int
	dispMin      float64
	dispSpan     float64
	blurMin      float64
	blurSpan     float64
}

var layerSet = [2]layerCoefficients{
	{
		warpX: 0.35, warpY: 1.4,
		veinX: 1.6, veinY: 0.9,
		warpSeed: 0, veinSeed: 17,
		dispMin: 18, dispSpan: 22,
		blurMin: 0.4, blurSpan: 0.6,
	},
	{
		warpX: 0.5, warpY: 1.1,
		veinX: 2.3, veinY: 1.25,
		warpSeed: 101, veinSeed: 211,
		dispMin: 10, dispSpan: 16,
		blurMin: 0.3, blurSpan: 0.5,
	},
}

// Derive consumes the stream in a fixed order. Reordering any draw changes
// every image for every seed, so new draws may only be appended.
func Derive(rng *Stream, color Color) Params {
	var p Params

	p.BaseFrequency = between(rng, 0.005, 0.01)
	p.Octaves = 3 + int(math.Floor(rng.Float64()*3))
	p.SeedOffset = int(math.Floor(rng.Float64() * 4096))
	p.Rotation = rng.Float64() * 360
	p.VeinContrast = between(rng, 0.6, 0.6)

	tone := color.Tone()
	switch tone {
	case ToneDark:
		p.Layers[0].Opacity = between(rng, 0.35, 0.10)
	case ToneLight:
		p.Layers[0].Opacity = between(rng, 0.35, 0.15)
	default:
		p.Layers[0].Opacity = between(rng, 0.22, 0.10)
	}
	if tone == ToneTinted {
		p.Layers[1].Opacity = between(rng, 0.10, 0.08)
	} else {
		p.Layers[1].Opacity = between(rng, 0.15, 0.10)
	}

	p.Pulses = 10 + int(math.Floor(rng.Float64()*6))
	p.PulseWidth = between(rng, 0.12, 0.06)
	p.Table = pulseTable(p.Pulses, p.PulseWidth)

	p.Layers[0].Gamma = between(rng, 2.2, 1.5)
	p.Layers[1].Gamma = between(rng, 2.2, 1.5)

	for i, c := range layerSet {
		deriveLayer(&p.Layers[i], rng, p.BaseFrequency, p.SeedOffset, c)
	}
	return p
}

func deriveLayer(l *Layer, rng *Stream, base float64, offset int, c layerCoefficients) {
	l.WarpFrequency = [2]float64{base * c.warpX, base * c.warpY}
	l.VeinFrequency = [2]float64{base * c.veinX, base * c.veinY}
	l.WarpSeed = offset + c.warpSeed
	l.VeinSeed = offset + c.veinSeed
	l.Displacement = between(rng, c.dispMin, c.dispSpan)
	l.Blur = between(rng, c.blurMin, c.blurSpan)
}

// pulseTable marks the cells whose phase interval touches a pulse band. The
// band of pulse k is centered on phase k+0.5 and spans width of a period,
// so every pulse owns exactly one contiguous run.
func pulseTable(pulses int, width float64) Table {
	var t Table
	half := width / 2
	for i := range t {
		lo := float64(i*pulses) / TableSize
		hi := float64((i+1)*pulses) / TableSize
		for k := int(math.Floor(lo)) - 1; k <= int(math.Ceil(hi)); k++ {
			if k < 0 || k >= pulses {
				continue
			}
			center := float64(k) + 0.5
			if lo <= center+half && hi > center-half {
				t[i] = true
				break
			}
		}
	}
	return t
}

func between(rng *Stream, min, span float64) float64 {
	return min + rng.Float64()*span
}
