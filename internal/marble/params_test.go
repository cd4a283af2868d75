package marble

import (
	"math"
	"strconv"
	"testing"
)

func TestDeriveGolden(t *testing.T) {
	p := Derive(NewStreamFromKey("alice1700000000000"), ColorBlack)

	floats := []struct {
		name string
		got  float64
		want float64
	}{
		{"base frequency", p.BaseFrequency, 0.00593288462376222},
		{"rotation", p.Rotation, 349.9696838390082},
		{"vein contrast", p.VeinContrast, 1.0957577622961252},
		{"primary opacity", p.Layers[0].Opacity, 0.38201840906403955},
		{"secondary opacity", p.Layers[1].Opacity, 0.19067952688783407},
		{"pulse width", p.PulseWidth, 0.14007135846186428},
		{"gamma 1", p.Layers[0].Gamma, 2.4929351479979234},
		{"gamma 2", p.Layers[1].Gamma, 2.9709784511243926},
		{"displacement 1", p.Layers[0].Displacement, 26.665416162926704},
		{"blur 1", p.Layers[0].Blur, 0.7133348031435163},
		{"displacement 2", p.Layers[1].Displacement, 23.133709348738194},
		{"blur 2", p.Layers[1].Blur, 0.4225724284304306},
	}
	for _, f := range floats {
		if math.Abs(f.got-f.want) > 1e-12 {
			t.Fatalf("%s: expected %v, got %v", f.name, f.want, f.got)
		}
	}

	if p.Octaves != 3 {
		t.Fatalf("expected 3 octaves, got %d", p.Octaves)
	}
	if p.SeedOffset != 3149 {
		t.Fatalf("expected seed offset 3149, got %d", p.SeedOffset)
	}
	if p.Pulses != 15 {
		t.Fatalf("expected 15 pulses, got %d", p.Pulses)
	}

	const wantTable = "0110001000100011001100010001100110011000100011001100010001000110"
	if got := p.Table.String(); got != wantTable {
		t.Fatalf("expected table %s, got %s", wantTable, got)
	}
}

func TestDeriveGoldenTinted(t *testing.T) {
	p := Derive(NewStreamFromKey("bob1700000000000"), ColorBlue)

	if math.Abs(p.Layers[0].Opacity-0.2610322163719684) > 1e-12 {
		t.Fatalf("unexpected primary opacity %v", p.Layers[0].Opacity)
	}
	if math.Abs(p.Layers[1].Opacity-0.13612031180411577) > 1e-12 {
		t.Fatalf("unexpected secondary opacity %v", p.Layers[1].Opacity)
	}
	if p.SeedOffset != 638 || p.Pulses != 14 {
		t.Fatalf("expected offset 638 and 14 pulses, got %d and %d", p.SeedOffset, p.Pulses)
	}
}

func TestDeriveConsumesFixedDrawCount(t *testing.T) {
	for _, c := range Colors() {
		s := NewStreamFromKey("draws")
		Derive(s, c)
		if s.Draws() != 15 {
			t.Fatalf("color %s: expected 15 draws, got %d", c, s.Draws())
		}
	}
}

func TestDeriveRanges(t *testing.T) {
	for i := 0; i < 500; i++ {
		key := "user" + strconv.Itoa(i)
		for _, c := range []Color{ColorBlack, ColorWhite, ColorGold} {
			p := Derive(NewStreamFromKey(key), c)

			assertRange(t, "base frequency", p.BaseFrequency, 0.005, 0.015)
			assertRange(t, "rotation", p.Rotation, 0, 360)
			assertRange(t, "vein contrast", p.VeinContrast, 0.6, 1.2)
			assertRange(t, "pulse width", p.PulseWidth, 0.12, 0.18)
			if p.Octaves < 3 || p.Octaves > 5 {
				t.Fatalf("octaves out of range: %d", p.Octaves)
			}
			if p.SeedOffset < 0 || p.SeedOffset >= 4096 {
				t.Fatalf("seed offset out of range: %d", p.SeedOffset)
			}
			if p.Pulses < 10 || p.Pulses > 15 {
				t.Fatalf("pulses out of range: %d", p.Pulses)
			}

			switch c.Tone() {
			case ToneDark:
				assertRange(t, "dark opacity", p.Layers[0].Opacity, 0.35, 0.45)
				assertRange(t, "dark secondary", p.Layers[1].Opacity, 0.15, 0.25)
			case ToneLight:
				assertRange(t, "light opacity", p.Layers[0].Opacity, 0.35, 0.50)
				assertRange(t, "light secondary", p.Layers[1].Opacity, 0.15, 0.25)
			default:
				assertRange(t, "tinted opacity", p.Layers[0].Opacity, 0.22, 0.32)
				assertRange(t, "tinted secondary", p.Layers[1].Opacity, 0.10, 0.18)
			}

			for j, l := range p.Layers {
				assertRange(t, "gamma", l.Gamma, 2.2, 3.7)
				c := layerSet[j]
				assertRange(t, "displacement", l.Displacement, c.dispMin, c.dispMin+c.dispSpan)
				assertRange(t, "blur", l.Blur, c.blurMin, c.blurMin+c.blurSpan)
			}
		}
	}
}

func TestDeriveLayersAreDistinct(t *testing.T) {
	p := Derive(NewStreamFromKey("layers"), ColorGray)
	a, b := p.Layers[0], p.Layers[1]

	if a.WarpSeed == b.WarpSeed || a.VeinSeed == b.VeinSeed || a.WarpSeed == a.VeinSeed {
		t.Fatalf("expected distinct noise seeds, got %+v %+v", a, b)
	}
	if b.VeinSeed-a.VeinSeed != 194 || b.WarpSeed-a.WarpSeed != 101 {
		t.Fatalf("unexpected seed spacing: %+v %+v", a, b)
	}
	if a.VeinFrequency == b.VeinFrequency || a.WarpFrequency == b.WarpFrequency {
		t.Fatal("expected distinct layer frequencies")
	}
	if math.Abs(a.WarpFrequency[0]-p.BaseFrequency*0.35) > 1e-15 || math.Abs(a.VeinFrequency[1]-p.BaseFrequency*0.9) > 1e-15 {
		t.Fatalf("unexpected layer 1 multipliers: %+v", a)
	}
}

func TestPulseTableShape(t *testing.T) {
	for pulses := 10; pulses <= 15; pulses++ {
		for _, width := range []float64{0.12, 0.15, 0.1799} {
			table := pulseTable(pulses, width)
			if len(table.String()) != TableSize {
				t.Fatalf("expected %d entries", TableSize)
			}
			if got := table.Runs(); got != pulses {
				t.Fatalf("pulses=%d width=%v: expected %d runs, got %d (%s)", pulses, width, pulses, got, table)
			}
		}
	}
}

func TestTableRuns(t *testing.T) {
	var table Table
	table[0], table[1], table[5], table[63] = true, true, true, true
	if got := table.Runs(); got != 3 {
		t.Fatalf("expected 3 runs, got %d", got)
	}
}

func assertRange(t *testing.T, name string, v, lo, hi float64) {
	t.Helper()
	if v < lo || v >= hi {
		t.Fatalf("%s out of [%v,%v): %v", name, lo, hi, v)
	}
}
