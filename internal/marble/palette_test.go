package marble

import (
	"errors"
	"strings"
	"testing"
)

func TestParseColor(t *testing.T) {
	got, err := ParseColor(" Black ")
	if err != nil || got != ColorBlack {
		t.Fatalf("expected black, got %s err=%v", got, err)
	}
	got, err = ParseColor("")
	if err != nil || got != DefaultColor {
		t.Fatalf("expected default color, got %s err=%v", got, err)
	}
	if _, err := ParseColor("teal"); !errors.Is(err, ErrUnknownColor) {
		t.Fatalf("expected ErrUnknownColor, got %v", err)
	}
}

func TestPaletteTones(t *testing.T) {
	if ColorBlack.Tone() != ToneDark {
		t.Fatal("expected black to be the dark primary")
	}
	if ColorWhite.Tone() != ToneLight {
		t.Fatal("expected white to be the light primary")
	}
	for _, c := range Colors() {
		if c != ColorBlack && c != ColorWhite && c.Tone() != ToneTinted {
			t.Fatalf("expected %s to be tinted", c)
		}
	}
	if ColorBlack.Pair().Base != "#0b0b0b" {
		t.Fatalf("unexpected black base %s", ColorBlack.Pair().Base)
	}
}

func TestSwatches(t *testing.T) {
	swatches, err := Swatches()
	if err != nil {
		t.Fatalf("swatches: %v", err)
	}
	if len(swatches) != len(Colors()) {
		t.Fatalf("expected %d swatches, got %d", len(Colors()), len(swatches))
	}

	for _, s := range swatches {
		if !strings.HasPrefix(s.Base, "#") || len(s.Base) != 7 {
			t.Fatalf("unexpected base hex %q", s.Base)
		}
		if s.Contrast <= 0 {
			t.Fatalf("%s: expected visible vein contrast, got %v", s.Name, s.Contrast)
		}
	}

	black, white := swatches[0], swatches[1]
	if black.Name != "black" || white.Name != "white" {
		t.Fatalf("unexpected order: %s, %s", black.Name, white.Name)
	}
	if black.Lightness >= white.Lightness {
		t.Fatalf("expected black to be darker than white: %v vs %v", black.Lightness, white.Lightness)
	}
}
