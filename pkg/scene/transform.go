package scene

import "github.com/chewxy/math32"

// Matrix is a row-major 4x4 transform
type Matrix [16]float32

// IdentityMatrix returns the identity transform
func IdentityMatrix() Matrix {
	return Matrix{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

// Mul returns m·o
func (m Matrix) Mul(o Matrix) Matrix {
	var r Matrix
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			r[i*4+j] = m[i*4]*o[j] + m[i*4+1]*o[4+j] + m[i*4+2]*o[8+j] + m[i*4+3]*o[12+j]
		}
	}
	return r
}

// Transpose returns the transposed matrix
func (m Matrix) Transpose() Matrix {
	var r Matrix
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			r[i*4+j] = m[j*4+i]
		}
	}
	return r
}

// Apply transforms a point
func (m Matrix) Apply(p [3]float32) [3]float32 {
	x := m[0]*p[0] + m[1]*p[1] + m[2]*p[2] + m[3]
	y := m[4]*p[0] + m[5]*p[1] + m[6]*p[2] + m[7]
	z := m[8]*p[0] + m[9]*p[1] + m[10]*p[2] + m[11]
	w := m[12]*p[0] + m[13]*p[1] + m[14]*p[2] + m[15]
	if w != 0 && w != 1 {
		return [3]float32{x / w, y / w, z / w}
	}
	return [3]float32{x, y, z}
}

// TranslateMatrix returns a translation by d
func TranslateMatrix(dx, dy, dz float32) Matrix {
	return Matrix{
		1, 0, 0, dx,
		0, 1, 0, dy,
		0, 0, 1, dz,
		0, 0, 0, 1,
	}
}

// ScaleMatrix returns a non-uniform scale
func ScaleMatrix(sx, sy, sz float32) Matrix {
	return Matrix{
		sx, 0, 0, 0,
		0, sy, 0, 0,
		0, 0, sz, 0,
		0, 0, 0, 1,
	}
}

// RotateMatrix returns a rotation of angle degrees around the given axis
func RotateMatrix(angle float32, axis [3]float32) Matrix {
	a := normalize(axis)
	rad := angle * math32.Pi / 180
	s, c := math32.Sin(rad), math32.Cos(rad)
	var m Matrix
	m[0] = a[0]*a[0] + (1-a[0]*a[0])*c
	m[1] = a[0]*a[1]*(1-c) - a[2]*s
	m[2] = a[0]*a[2]*(1-c) + a[1]*s
	m[4] = a[0]*a[1]*(1-c) + a[2]*s
	m[5] = a[1]*a[1] + (1-a[1]*a[1])*c
	m[6] = a[1]*a[2]*(1-c) - a[0]*s
	m[8] = a[0]*a[2]*(1-c) - a[1]*s
	m[9] = a[1]*a[2]*(1-c) + a[0]*s
	m[10] = a[2]*a[2] + (1-a[2]*a[2])*c
	m[15] = 1
	return m
}

// LookAtMatrix returns the world-to-camera transform for a camera at eye
// looking at target
func LookAtMatrix(eye, target, up [3]float32) Matrix {
	dir := normalize(sub(target, eye))
	right := cross(normalize(up), dir)
	if length(right) == 0 {
		// up parallel to the view direction
		return IdentityMatrix()
	}
	right = normalize(right)
	newUp := cross(dir, right)

	// camera-to-world is [right newUp dir eye]; invert the rigid transform
	return Matrix{
		right[0], right[1], right[2], -dot(right, eye),
		newUp[0], newUp[1], newUp[2], -dot(newUp, eye),
		dir[0], dir[1], dir[2], -dot(dir, eye),
		0, 0, 0, 1,
	}
}

func sub(a, b [3]float32) [3]float32 {
	return [3]float32{a[0] - b[0], a[1] - b[1], a[2] - b[2]}
}

func dot(a, b [3]float32) float32 {
	return a[0]*b[0] + a[1]*b[1] + a[2]*b[2]
}

func cross(a, b [3]float32) [3]float32 {
	return [3]float32{
		a[1]*b[2] - a[2]*b[1],
		a[2]*b[0] - a[0]*b[2],
		a[0]*b[1] - a[1]*b[0],
	}
}

func length(a [3]float32) float32 {
	return math32.Sqrt(dot(a, a))
}

func normalize(a [3]float32) [3]float32 {
	l := length(a)
	if l == 0 {
		return a
	}
	return [3]float32{a[0] / l, a[1] / l, a[2] / l}
}
