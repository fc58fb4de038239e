// Package scene defines the scene-construction interface shared by the local
// renderer, the render farm mirror and the render server, and the Context
// that records a scene description and turns it into a film plus a sample
// source at WorldEnd.
package scene

import "github.com/df07/go-render-farm/pkg/paramset"

// API is the ordered list of scene-construction calls. A scene is described
// by options calls (Film, Camera, PixelFilter, ...), WorldBegin, world calls
// (shapes, lights, materials, attribute blocks) and finally WorldEnd.
type API interface {
	Identity()
	Translate(dx, dy, dz float32)
	Rotate(angle, dx, dy, dz float32)
	Scale(sx, sy, sz float32)
	LookAt(ex, ey, ez, lx, ly, lz, ux, uy, uz float32)
	// ConcatTransform and Transform take a matrix in column-major order.
	ConcatTransform(m [16]float32)
	Transform(m [16]float32)
	CoordinateSystem(name string)
	CoordSysTransform(name string)

	PixelFilter(name string, ps *paramset.ParamSet)
	Film(name string, ps *paramset.ParamSet)
	Sampler(name string, ps *paramset.ParamSet)
	Accelerator(name string, ps *paramset.ParamSet)
	SurfaceIntegrator(name string, ps *paramset.ParamSet)
	VolumeIntegrator(name string, ps *paramset.ParamSet)
	Renderer(name string, ps *paramset.ParamSet)
	Camera(name string, ps *paramset.ParamSet)

	WorldBegin()
	AttributeBegin()
	AttributeEnd()
	TransformBegin()
	TransformEnd()

	Texture(name, typ, texname string, ps *paramset.ParamSet)
	Material(name string, ps *paramset.ParamSet)
	MakeNamedMaterial(name string, ps *paramset.ParamSet)
	NamedMaterial(name string)
	LightGroup(name string, ps *paramset.ParamSet)
	LightSource(name string, ps *paramset.ParamSet)
	AreaLightSource(name string, ps *paramset.ParamSet)
	PortalShape(name string, ps *paramset.ParamSet)
	Shape(name string, ps *paramset.ParamSet)
	ReverseOrientation()
	MakeNamedVolume(id, name string, ps *paramset.ParamSet)
	Volume(name string, ps *paramset.ParamSet)
	Exterior(name string)
	Interior(name string)

	ObjectBegin(name string)
	ObjectEnd()
	ObjectInstance(name string)
	PortalInstance(name string)
	MotionBegin(times []float32)
	MotionEnd()
	MotionInstance(name string, start, end float32, toTransform string)

	SetEpsilon(min, max float32)
	WorldEnd() error
}
