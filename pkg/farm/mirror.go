package farm

import (
	"github.com/df07/go-render-farm/pkg/paramset"
	"github.com/df07/go-render-farm/pkg/scene"
)

// Mirror forwards every scene call to a local scene.API and buffers it for
// the slaves. WorldEnd flushes the buffer before finishing the local scene,
// so slaves start rendering as soon as the master does.
type Mirror struct {
	farm  *RenderFarm
	local scene.API
}

var _ scene.API = (*Mirror)(nil)

// NewMirror creates a Mirror replicating into farm
func NewMirror(farm *RenderFarm, local scene.API) *Mirror {
	return &Mirror{farm: farm, local: local}
}

func (m *Mirror) Identity() {
	m.farm.Send("luxIdentity")
	m.local.Identity()
}

func (m *Mirror) Translate(dx, dy, dz float32) {
	m.farm.SendFloats("luxTranslate", dx, dy, dz)
	m.local.Translate(dx, dy, dz)
}

func (m *Mirror) Rotate(angle, dx, dy, dz float32) {
	m.farm.SendFloats("luxRotate", angle, dx, dy, dz)
	m.local.Rotate(angle, dx, dy, dz)
}

func (m *Mirror) Scale(sx, sy, sz float32) {
	m.farm.SendFloats("luxScale", sx, sy, sz)
	m.local.Scale(sx, sy, sz)
}

func (m *Mirror) LookAt(ex, ey, ez, lx, ly, lz, ux, uy, uz float32) {
	m.farm.SendFloats("luxLookAt", ex, ey, ez, lx, ly, lz, ux, uy, uz)
	m.local.LookAt(ex, ey, ez, lx, ly, lz, ux, uy, uz)
}

func (m *Mirror) ConcatTransform(t [16]float32) {
	m.farm.SendFloats("luxConcatTransform", t[:]...)
	m.local.ConcatTransform(t)
}

func (m *Mirror) Transform(t [16]float32) {
	m.farm.SendFloats("luxTransform", t[:]...)
	m.local.Transform(t)
}

func (m *Mirror) CoordinateSystem(name string) {
	m.farm.SendName("luxCoordinateSystem", name)
	m.local.CoordinateSystem(name)
}

func (m *Mirror) CoordSysTransform(name string) {
	m.farm.SendName("luxCoordSysTransform", name)
	m.local.CoordSysTransform(name)
}

func (m *Mirror) PixelFilter(name string, ps *paramset.ParamSet) {
	m.farm.SendParams("luxPixelFilter", name, ps)
	m.local.PixelFilter(name, ps)
}

func (m *Mirror) Film(name string, ps *paramset.ParamSet) {
	m.farm.SendFilm("luxFilm", name, ps)
	m.local.Film(name, ps)
}

func (m *Mirror) Sampler(name string, ps *paramset.ParamSet) {
	m.farm.SendParams("luxSampler", name, ps)
	m.local.Sampler(name, ps)
}

func (m *Mirror) Accelerator(name string, ps *paramset.ParamSet) {
	m.farm.SendParams("luxAccelerator", name, ps)
	m.local.Accelerator(name, ps)
}

func (m *Mirror) SurfaceIntegrator(name string, ps *paramset.ParamSet) {
	m.farm.SendParams("luxSurfaceIntegrator", name, ps)
	m.local.SurfaceIntegrator(name, ps)
}

func (m *Mirror) VolumeIntegrator(name string, ps *paramset.ParamSet) {
	m.farm.SendParams("luxVolumeIntegrator", name, ps)
	m.local.VolumeIntegrator(name, ps)
}

func (m *Mirror) Renderer(name string, ps *paramset.ParamSet) {
	m.farm.SendParams("luxRenderer", name, ps)
	m.local.Renderer(name, ps)
}

func (m *Mirror) Camera(name string, ps *paramset.ParamSet) {
	m.farm.SendParams("luxCamera", name, ps)
	m.local.Camera(name, ps)
}

func (m *Mirror) WorldBegin() {
	m.farm.Send("luxWorldBegin")
	m.local.WorldBegin()
}

func (m *Mirror) AttributeBegin() {
	m.farm.Send("luxAttributeBegin")
	m.local.AttributeBegin()
}

func (m *Mirror) AttributeEnd() {
	m.farm.Send("luxAttributeEnd")
	m.local.AttributeEnd()
}

func (m *Mirror) TransformBegin() {
	m.farm.Send("luxTransformBegin")
	m.local.TransformBegin()
}

func (m *Mirror) TransformEnd() {
	m.farm.Send("luxTransformEnd")
	m.local.TransformEnd()
}

func (m *Mirror) Texture(name, typ, texname string, ps *paramset.ParamSet) {
	m.farm.SendTexture("luxTexture", name, typ, texname, ps)
	m.local.Texture(name, typ, texname, ps)
}

func (m *Mirror) Material(name string, ps *paramset.ParamSet) {
	m.farm.SendParams("luxMaterial", name, ps)
	m.local.Material(name, ps)
}

func (m *Mirror) MakeNamedMaterial(name string, ps *paramset.ParamSet) {
	m.farm.SendParams("luxMakeNamedMaterial", name, ps)
	m.local.MakeNamedMaterial(name, ps)
}

func (m *Mirror) NamedMaterial(name string) {
	m.farm.SendName("luxNamedMaterial", name)
	m.local.NamedMaterial(name)
}

func (m *Mirror) LightGroup(name string, ps *paramset.ParamSet) {
	m.farm.SendParams("luxLightGroup", name, ps)
	m.local.LightGroup(name, ps)
}

func (m *Mirror) LightSource(name string, ps *paramset.ParamSet) {
	m.farm.SendParams("luxLightSource", name, ps)
	m.local.LightSource(name, ps)
}

func (m *Mirror) AreaLightSource(name string, ps *paramset.ParamSet) {
	m.farm.SendParams("luxAreaLightSource", name, ps)
	m.local.AreaLightSource(name, ps)
}

func (m *Mirror) PortalShape(name string, ps *paramset.ParamSet) {
	m.farm.SendParams("luxPortalShape", name, ps)
	m.local.PortalShape(name, ps)
}

func (m *Mirror) Shape(name string, ps *paramset.ParamSet) {
	m.farm.SendParams("luxShape", name, ps)
	m.local.Shape(name, ps)
}

func (m *Mirror) ReverseOrientation() {
	m.farm.Send("luxReverseOrientation")
	m.local.ReverseOrientation()
}

func (m *Mirror) MakeNamedVolume(id, name string, ps *paramset.ParamSet) {
	m.farm.SendVolume("luxMakeNamedVolume", id, name, ps)
	m.local.MakeNamedVolume(id, name, ps)
}

func (m *Mirror) Volume(name string, ps *paramset.ParamSet) {
	m.farm.SendParams("luxVolume", name, ps)
	m.local.Volume(name, ps)
}

func (m *Mirror) Exterior(name string) {
	m.farm.SendName("luxExterior", name)
	m.local.Exterior(name)
}

func (m *Mirror) Interior(name string) {
	m.farm.SendName("luxInterior", name)
	m.local.Interior(name)
}

func (m *Mirror) ObjectBegin(name string) {
	m.farm.SendName("luxObjectBegin", name)
	m.local.ObjectBegin(name)
}

func (m *Mirror) ObjectEnd() {
	m.farm.Send("luxObjectEnd")
	m.local.ObjectEnd()
}

func (m *Mirror) ObjectInstance(name string) {
	m.farm.SendName("luxObjectInstance", name)
	m.local.ObjectInstance(name)
}

func (m *Mirror) PortalInstance(name string) {
	m.farm.SendName("luxPortalInstance", name)
	m.local.PortalInstance(name)
}

func (m *Mirror) MotionBegin(times []float32) {
	m.farm.SendFloats("luxMotionBegin", times...)
	m.local.MotionBegin(times)
}

func (m *Mirror) MotionEnd() {
	m.farm.Send("luxMotionEnd")
	m.local.MotionEnd()
}

func (m *Mirror) MotionInstance(name string, start, end float32, toTransform string) {
	m.farm.SendMotion("luxMotionInstance", name, start, end, toTransform)
	m.local.MotionInstance(name, start, end, toTransform)
}

func (m *Mirror) SetEpsilon(min, max float32) {
	m.farm.SendFloats("luxSetEpsilon", min, max)
	m.local.SetEpsilon(min, max)
}

// WorldEnd sends luxWorldEnd, flushes every slave and then finishes the
// local scene
func (m *Mirror) WorldEnd() error {
	m.farm.Send("luxWorldEnd")
	m.farm.Flush()
	return m.local.WorldEnd()
}
