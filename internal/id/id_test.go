package id

import (
	"testing"

	"github.com/google/uuid"
)

func TestNewReturnsUniqueUUIDs(t *testing.T) {
	a, b := New(), New()
	if a == b {
		t.Fatal("expected distinct ids")
	}
	if _, err := uuid.Parse(a); err != nil {
		t.Fatalf("expected uuid, got %q: %v", a, err)
	}
}
