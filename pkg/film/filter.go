package film

import (
	"fmt"

	"github.com/chewxy/math32"

	"github.com/df07/go-render-farm/pkg/paramset"
)

// filterTableSize is the per-axis resolution of the discretized filter
const filterTableSize = 16

// Filter is a separable-or-not reconstruction filter with a finite extent
type Filter interface {
	// Width returns the filter radius along x and y
	Width() (x, y float32)
	// Evaluate returns the filter weight at offset (x, y) from the center
	Evaluate(x, y float32) float32
}

// NewFilter creates a named filter from its scene parameters
func NewFilter(name string, ps *paramset.ParamSet) (Filter, error) {
	switch name {
	case "box":
		return NewBoxFilter(ps.FindOneFloat("xwidth", 0.5), ps.FindOneFloat("ywidth", 0.5)), nil
	case "triangle":
		return NewTriangleFilter(ps.FindOneFloat("xwidth", 2), ps.FindOneFloat("ywidth", 2)), nil
	case "gaussian":
		return NewGaussianFilter(ps.FindOneFloat("xwidth", 2), ps.FindOneFloat("ywidth", 2),
			ps.FindOneFloat("alpha", 2)), nil
	case "mitchell":
		return NewMitchellFilter(ps.FindOneFloat("xwidth", 2), ps.FindOneFloat("ywidth", 2),
			ps.FindOneFloat("B", 1.0/3.0), ps.FindOneFloat("C", 1.0/3.0)), nil
	default:
		return nil, fmt.Errorf("film: unknown filter %q", name)
	}
}

// BoxFilter weights every sample inside its extent equally
type BoxFilter struct {
	xWidth, yWidth float32
}

func NewBoxFilter(xWidth, yWidth float32) *BoxFilter {
	return &BoxFilter{xWidth: xWidth, yWidth: yWidth}
}

func (f *BoxFilter) Width() (float32, float32) { return f.xWidth, f.yWidth }

func (f *BoxFilter) Evaluate(x, y float32) float32 { return 1 }

// TriangleFilter falls off linearly from the center
type TriangleFilter struct {
	xWidth, yWidth float32
}

func NewTriangleFilter(xWidth, yWidth float32) *TriangleFilter {
	return &TriangleFilter{xWidth: xWidth, yWidth: yWidth}
}

func (f *TriangleFilter) Width() (float32, float32) { return f.xWidth, f.yWidth }

func (f *TriangleFilter) Evaluate(x, y float32) float32 {
	return math32.Max(0, f.xWidth-math32.Abs(x)) * math32.Max(0, f.yWidth-math32.Abs(y))
}

// GaussianFilter is a gaussian shifted down so it reaches zero at its extent
type GaussianFilter struct {
	xWidth, yWidth float32
	alpha          float32
	expX, expY     float32
}

func NewGaussianFilter(xWidth, yWidth, alpha float32) *GaussianFilter {
	return &GaussianFilter{
		xWidth: xWidth,
		yWidth: yWidth,
		alpha:  alpha,
		expX:   math32.Exp(-alpha * xWidth * xWidth),
		expY:   math32.Exp(-alpha * yWidth * yWidth),
	}
}

func (f *GaussianFilter) Width() (float32, float32) { return f.xWidth, f.yWidth }

func (f *GaussianFilter) Evaluate(x, y float32) float32 {
	return f.gaussian(x, f.expX) * f.gaussian(y, f.expY)
}

func (f *GaussianFilter) gaussian(d, expv float32) float32 {
	return math32.Max(0, math32.Exp(-f.alpha*d*d)-expv)
}

// MitchellFilter is the Mitchell-Netravali cubic with parameters B and C
type MitchellFilter struct {
	xWidth, yWidth       float32
	invXWidth, invYWidth float32
	b, c                 float32
}

func NewMitchellFilter(xWidth, yWidth, b, c float32) *MitchellFilter {
	return &MitchellFilter{
		xWidth:    xWidth,
		yWidth:    yWidth,
		invXWidth: safeInverse(xWidth),
		invYWidth: safeInverse(yWidth),
		b:         b,
		c:         c,
	}
}

func (f *MitchellFilter) Width() (float32, float32) { return f.xWidth, f.yWidth }

func (f *MitchellFilter) Evaluate(x, y float32) float32 {
	return f.mitchell1D(x*f.invXWidth) * f.mitchell1D(y*f.invYWidth)
}

func (f *MitchellFilter) mitchell1D(x float32) float32 {
	b, c := f.b, f.c
	x = math32.Abs(2 * x)
	if x > 1 {
		return ((-b-6*c)*x*x*x + (6*b+30*c)*x*x + (-12*b-48*c)*x + (8*b + 24*c)) / 6
	}
	return ((12-9*b-6*c)*x*x*x + (-18+12*b+6*c)*x*x + (6 - 2*b)) / 6
}

// filterTable is a filter sampled at the centers of a 16x16 grid covering
// one quadrant of its extent
type filterTable struct {
	xWidth, yWidth       float32
	invXWidth, invYWidth float32
	values               [filterTableSize * filterTableSize]float32
}

func newFilterTable(f Filter) *filterTable {
	xw, yw := f.Width()
	t := &filterTable{
		xWidth:    xw,
		yWidth:    yw,
		invXWidth: safeInverse(xw),
		invYWidth: safeInverse(yw),
	}
	for y := 0; y < filterTableSize; y++ {
		fy := (float32(y) + 0.5) * yw / filterTableSize
		for x := 0; x < filterTableSize; x++ {
			fx := (float32(x) + 0.5) * xw / filterTableSize
			t.values[y*filterTableSize+x] = f.Evaluate(fx, fy)
		}
	}
	return t
}

// index maps an absolute offset from the sample center to a table cell
func (t *filterTable) index(d, inv float32) int {
	i := int(math32.Floor(d * inv * filterTableSize))
	if i >= filterTableSize {
		return filterTableSize - 1
	}
	return i
}

func (t *filterTable) weight(dx, dy float32) float32 {
	return t.values[t.index(dy, t.invYWidth)*filterTableSize+t.index(dx, t.invXWidth)]
}

// safeInverse returns 1/w, or 0 for a zero-width (point) filter so every
// offset maps to the center cell
func safeInverse(w float32) float32 {
	if w <= 0 {
		return 0
	}
	return 1 / w
}
