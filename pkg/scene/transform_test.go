package scene

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func assertPoint(t *testing.T, expected, actual [3]float32) {
	t.Helper()
	for i := range expected {
		assert.InDelta(t, expected[i], actual[i], 1e-5, "component %d", i)
	}
}

func TestTransformMatrices(t *testing.T) {
	tests := []struct {
		name     string
		m        Matrix
		in, want [3]float32
	}{
		{"identity", IdentityMatrix(), [3]float32{1, 2, 3}, [3]float32{1, 2, 3}},
		{"translate", TranslateMatrix(1, -1, 2), [3]float32{1, 1, 1}, [3]float32{2, 0, 3}},
		{"scale", ScaleMatrix(2, 3, 4), [3]float32{1, 1, 1}, [3]float32{2, 3, 4}},
		{"rotate z", RotateMatrix(90, [3]float32{0, 0, 1}), [3]float32{1, 0, 0}, [3]float32{0, 1, 0}},
		{"rotate x", RotateMatrix(90, [3]float32{2, 0, 0}), [3]float32{0, 1, 0}, [3]float32{0, 0, 1}},
		{
			"look at",
			LookAtMatrix([3]float32{0, 0, -5}, [3]float32{0, 0, 0}, [3]float32{0, 1, 0}),
			[3]float32{0, 0, 0},
			[3]float32{0, 0, 5},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assertPoint(t, tt.want, tt.m.Apply(tt.in))
		})
	}
}

func TestMatrixComposition(t *testing.T) {
	// scale first, then translate
	m := TranslateMatrix(1, 0, 0).Mul(ScaleMatrix(2, 2, 2))
	assertPoint(t, [3]float32{3, 2, 2}, m.Apply([3]float32{1, 1, 1}))
}

func TestConcatTransformIsColumnMajor(t *testing.T) {
	c := NewContext()
	c.ConcatTransform([16]float32{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		4, 5, 6, 1,
	})
	assert.Equal(t, TranslateMatrix(4, 5, 6), c.current)

	c.Transform([16]float32{2, 0, 0, 0, 0, 2, 0, 0, 0, 0, 2, 0, 0, 0, 0, 1})
	assert.Equal(t, ScaleMatrix(2, 2, 2), c.current)
}

func TestLookAtWithParallelUp(t *testing.T) {
	m := LookAtMatrix([3]float32{0, 0, 0}, [3]float32{0, 1, 0}, [3]float32{0, 1, 0})
	assert.Equal(t, IdentityMatrix(), m)
}
