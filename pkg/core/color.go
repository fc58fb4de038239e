package core

import "github.com/chewxy/math32"

// XYZ is a CIE XYZ tristimulus color. Y is the luminance.
type XYZ struct {
	X, Y, Z float32
}

// NewXYZ creates a new XYZ color
func NewXYZ(x, y, z float32) XYZ {
	return XYZ{X: x, Y: y, Z: z}
}

// Add returns the component-wise sum of two colors
func (c XYZ) Add(other XYZ) XYZ {
	return XYZ{c.X + other.X, c.Y + other.Y, c.Z + other.Z}
}

// Scale returns the color multiplied by a scalar
func (c XYZ) Scale(s float32) XYZ {
	return XYZ{c.X * s, c.Y * s, c.Z * s}
}

// Luminance returns the Y component
func (c XYZ) Luminance() float32 {
	return c.Y
}

// IsNaN reports whether any component is NaN
func (c XYZ) IsNaN() bool {
	return math32.IsNaN(c.X) || math32.IsNaN(c.Y) || math32.IsNaN(c.Z)
}

// IsInf reports whether any component is infinite
func (c XYZ) IsInf() bool {
	return math32.IsInf(c.X, 0) || math32.IsInf(c.Y, 0) || math32.IsInf(c.Z, 0)
}

// IsBlack reports whether all components are zero
func (c XYZ) IsBlack() bool {
	return c.X == 0 && c.Y == 0 && c.Z == 0
}

// ToRGB converts to linear sRGB (D65 white point)
func (c XYZ) ToRGB() (r, g, b float32) {
	r = 3.240479*c.X - 1.537150*c.Y - 0.498535*c.Z
	g = -0.969256*c.X + 1.875991*c.Y + 0.041556*c.Z
	b = 0.055648*c.X - 0.204043*c.Y + 1.057311*c.Z
	return r, g, b
}

// RGBToXYZ converts linear sRGB (D65 white point) to XYZ
func RGBToXYZ(r, g, b float32) XYZ {
	return XYZ{
		X: 0.412453*r + 0.357580*g + 0.180423*b,
		Y: 0.212671*r + 0.715160*g + 0.072169*b,
		Z: 0.019334*r + 0.119193*g + 0.950227*b,
	}
}
