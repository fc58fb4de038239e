package film

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/df07/go-render-farm/pkg/paramset"
)

func TestNewFilter(t *testing.T) {
	tests := []struct {
		name   string
		width  float32
		params func(ps *paramset.ParamSet)
	}{
		{"box", 0.5, nil},
		{"triangle", 2, nil},
		{"gaussian", 2, nil},
		{"mitchell", 2, nil},
		{"mitchell", 1.5, func(ps *paramset.ParamSet) { ps.AddFloat("xwidth", 1.5) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ps := paramset.New()
			if tt.params != nil {
				tt.params(ps)
			}
			f, err := NewFilter(tt.name, ps)
			require.NoError(t, err)
			xw, _ := f.Width()
			assert.Equal(t, tt.width, xw)
		})
	}

	_, err := NewFilter("lanczos", paramset.New())
	assert.Error(t, err)
}

func TestFiltersAreSymmetric(t *testing.T) {
	filters := map[string]Filter{
		"box":      NewBoxFilter(1, 1),
		"triangle": NewTriangleFilter(2, 2),
		"gaussian": NewGaussianFilter(2, 2, 2),
		"mitchell": NewMitchellFilter(2, 2, 1.0/3.0, 1.0/3.0),
	}
	offsets := []float32{0, 0.25, 0.8, 1.3}

	for name, f := range filters {
		for _, dx := range offsets {
			for _, dy := range offsets {
				v := f.Evaluate(dx, dy)
				assert.Equal(t, v, f.Evaluate(-dx, dy), "%s at (%v,%v)", name, dx, dy)
				assert.Equal(t, v, f.Evaluate(dx, -dy), "%s at (%v,%v)", name, dx, dy)
			}
		}
	}
}

func TestFilterFallsOffToZeroAtEdge(t *testing.T) {
	assert.InDelta(t, 0, NewGaussianFilter(2, 2, 2).Evaluate(2, 0), 1e-6)
	assert.InDelta(t, 0, NewTriangleFilter(2, 2).Evaluate(2, 1), 1e-6)
	assert.InDelta(t, 0, NewMitchellFilter(2, 2, 1.0/3.0, 1.0/3.0).Evaluate(2, 0), 1e-5)
}

func TestFilterTable(t *testing.T) {
	table := newFilterTable(NewTriangleFilter(2, 2))

	// Center cell is the filter evaluated at the first cell center.
	center := NewTriangleFilter(2, 2).Evaluate(1.0/16, 1.0/16)
	assert.InDelta(t, center, table.weight(0, 0), 1e-6)

	// Offsets at or beyond the width clamp to the last cell.
	assert.Equal(t, table.weight(1.99, 0), table.weight(5, 0))
	assert.Greater(t, table.weight(0.1, 0), table.weight(1.5, 0))

	point := newFilterTable(NewBoxFilter(0, 0))
	assert.Equal(t, float32(1), point.weight(0, 0))
}
