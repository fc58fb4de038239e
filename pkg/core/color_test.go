package core

import (
	"testing"

	"github.com/chewxy/math32"
)

func TestXYZ_RGBRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		r, g, b float32
	}{
		{"white", 1, 1, 1},
		{"red", 1, 0, 0},
		{"mixed", 0.25, 0.5, 0.75},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, g, b := RGBToXYZ(tt.r, tt.g, tt.b).ToRGB()

			const tolerance = 1e-3
			if math32.Abs(r-tt.r) > tolerance || math32.Abs(g-tt.g) > tolerance || math32.Abs(b-tt.b) > tolerance {
				t.Errorf("Expected (%v,%v,%v), got (%v,%v,%v)", tt.r, tt.g, tt.b, r, g, b)
			}
		})
	}
}

func TestXYZ_IsNaN(t *testing.T) {
	if NewXYZ(1, 2, 3).IsNaN() {
		t.Error("Finite color reported as NaN")
	}
	if !NewXYZ(1, math32.NaN(), 3).IsNaN() {
		t.Error("NaN component not detected")
	}
}

func TestXYZ_IsInf(t *testing.T) {
	if NewXYZ(1, 2, 3).IsInf() {
		t.Error("Finite color reported as infinite")
	}
	if !NewXYZ(math32.Inf(1), 1, 1).IsInf() {
		t.Error("Infinite X not detected")
	}
	if !NewXYZ(1, 1, math32.Inf(-1)).IsInf() {
		t.Error("Infinite Z not detected")
	}
}

func TestXYZ_Luminance(t *testing.T) {
	white := RGBToXYZ(1, 1, 1)
	if math32.Abs(white.Luminance()-1) > 1e-4 {
		t.Errorf("Expected white luminance 1, got %f", white.Luminance())
	}
}
