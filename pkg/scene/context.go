package scene

import (
	"errors"
	"fmt"

	"github.com/df07/go-render-farm/pkg/core"
	"github.com/df07/go-render-farm/pkg/film"
	"github.com/df07/go-render-farm/pkg/log"
	"github.com/df07/go-render-farm/pkg/paramset"
)

var (
	ErrInvalidState    = errors.New("scene: call not allowed in the current block")
	ErrUnknownName     = errors.New("scene: unknown name")
	ErrUnbalanced      = errors.New("scene: unbalanced begin/end")
	ErrNoLights        = errors.New("scene: no light sources defined")
	ErrUnsupportedFilm = errors.New("scene: unsupported film type")
)

// Directive is one recorded scene call together with the graphics state
// that was current when it was made
type Directive struct {
	Kind       string // API call that produced it
	Name       string
	Class      string // texture class for Texture directives
	Params     *paramset.ParamSet
	Transform  Matrix
	Material   string // material or named material in effect
	LightGroup string
	Interior   string
	Exterior   string
	Reverse    bool

	// MotionInstance only
	EndTransform Matrix
	Times        []float32
}

// MotionBlock is the list of transforms issued between MotionBegin and
// MotionEnd
type MotionBlock struct {
	Times      []float32
	Transforms []Matrix
}

// Description is everything recorded between the first call and WorldEnd
type Description struct {
	Film              Directive
	PixelFilter       Directive
	Sampler           Directive
	Accelerator       Directive
	SurfaceIntegrator Directive
	VolumeIntegrator  Directive
	Renderer          Directive
	Camera            Directive

	Textures       []Directive
	Materials      []Directive
	NamedMaterials map[string]Directive
	NamedVolumes   map[string]Directive
	Volumes        []Directive
	Shapes         []Directive
	Lights         []Directive
	Portals        []Directive
	Instances      []Directive
	Objects        map[string][]Directive
	Motions        []MotionBlock

	// LightGroups in order of first use by a light
	LightGroups []string
	Epsilon     [2]float32

	// MapColors holds the mean color of every loaded environment map
	MapColors map[string]core.XYZ
	Triangles int
}

func newDescription() *Description {
	return &Description{
		Film:              Directive{Kind: "Film", Name: "fleximage", Params: paramset.New()},
		PixelFilter:       Directive{Kind: "PixelFilter", Name: "mitchell", Params: paramset.New()},
		Sampler:           Directive{Kind: "Sampler", Name: "random", Params: paramset.New()},
		Accelerator:       Directive{Kind: "Accelerator", Name: "kdtree", Params: paramset.New()},
		SurfaceIntegrator: Directive{Kind: "SurfaceIntegrator", Name: "path", Params: paramset.New()},
		VolumeIntegrator:  Directive{Kind: "VolumeIntegrator", Name: "emission", Params: paramset.New()},
		Renderer:          Directive{Kind: "Renderer", Name: "sampler", Params: paramset.New()},
		Camera:            Directive{Kind: "Camera", Name: "perspective", Params: paramset.New(), Transform: IdentityMatrix()},
		NamedMaterials:    map[string]Directive{},
		NamedVolumes:      map[string]Directive{},
		Objects:           map[string][]Directive{},
		MapColors:         map[string]core.XYZ{},
	}
}

type block int

const (
	blockOptions block = iota
	blockWorld
	blockDone
)

// graphicsState is the attribute state saved by AttributeBegin
type graphicsState struct {
	material   string
	areaLight  *Directive
	lightGroup string
	interior   string
	exterior   string
	reverse    bool
}

type pushKind int

const (
	pushAttribute pushKind = iota
	pushTransform
)

// Context records a scene description and, at WorldEnd, builds the film and
// the preview integrator for it. Invalid calls are logged and ignored; the
// first one is kept and reported by Err. A Context is not safe for
// concurrent use.
type Context struct {
	logger log.Logger

	block   block
	desc    *Description
	current Matrix

	graphics       graphicsState
	graphicsStack  []graphicsState
	transformStack []Matrix
	pushed         []pushKind
	coordSys       map[string]Matrix

	object string
	motion *MotionBlock

	err error

	film       *film.Film
	integrator *PreviewIntegrator
	haltSPP    float64
}

// NewContext creates an empty context in the options block
func NewContext() *Context {
	return &Context{
		logger:   logger,
		desc:     newDescription(),
		current:  IdentityMatrix(),
		coordSys: map[string]Matrix{},
	}
}

// Err returns the first invalid call recorded by the context
func (c *Context) Err() error {
	return c.err
}

// Description returns the recorded scene
func (c *Context) Description() *Description {
	return c.desc
}

// RenderFilm returns the film built by WorldEnd, or nil before
func (c *Context) RenderFilm() *film.Film {
	return c.film
}

// Integrator returns the sample source built by WorldEnd, or nil before
func (c *Context) Integrator() *PreviewIntegrator {
	return c.integrator
}

// HaltSamplesPerPixel returns the film's haltspp parameter
func (c *Context) HaltSamplesPerPixel() float64 {
	return c.haltSPP
}

func (c *Context) fail(err error, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	c.logger.Errorf("%s", msg)
	if c.err == nil {
		c.err = fmt.Errorf("%w: %s", err, msg)
	}
}

func (c *Context) verifyOptions(call string) bool {
	if c.block != blockOptions {
		c.fail(ErrInvalidState, "%s must be called before WorldBegin", call)
		return false
	}
	return true
}

func (c *Context) verifyWorld(call string) bool {
	if c.block != blockWorld {
		c.fail(ErrInvalidState, "%s must be called inside a world block", call)
		return false
	}
	return true
}

func (c *Context) verifyNotDone(call string) bool {
	if c.block == blockDone {
		c.fail(ErrInvalidState, "%s called after WorldEnd", call)
		return false
	}
	return true
}

func (c *Context) setTransform(m Matrix) {
	c.current = m
	if c.motion != nil {
		c.motion.Transforms = append(c.motion.Transforms, m)
	}
}

// Transform calls

func (c *Context) Identity() {
	if c.verifyNotDone("Identity") {
		c.setTransform(IdentityMatrix())
	}
}

func (c *Context) Translate(dx, dy, dz float32) {
	if c.verifyNotDone("Translate") {
		c.setTransform(c.current.Mul(TranslateMatrix(dx, dy, dz)))
	}
}

func (c *Context) Rotate(angle, dx, dy, dz float32) {
	if c.verifyNotDone("Rotate") {
		c.setTransform(c.current.Mul(RotateMatrix(angle, [3]float32{dx, dy, dz})))
	}
}

func (c *Context) Scale(sx, sy, sz float32) {
	if c.verifyNotDone("Scale") {
		c.setTransform(c.current.Mul(ScaleMatrix(sx, sy, sz)))
	}
}

func (c *Context) LookAt(ex, ey, ez, lx, ly, lz, ux, uy, uz float32) {
	if c.verifyNotDone("LookAt") {
		c.setTransform(c.current.Mul(LookAtMatrix(
			[3]float32{ex, ey, ez}, [3]float32{lx, ly, lz}, [3]float32{ux, uy, uz})))
	}
}

func (c *Context) ConcatTransform(m [16]float32) {
	if c.verifyNotDone("ConcatTransform") {
		c.setTransform(c.current.Mul(Matrix(m).Transpose()))
	}
}

func (c *Context) Transform(m [16]float32) {
	if c.verifyNotDone("Transform") {
		c.setTransform(Matrix(m).Transpose())
	}
}

func (c *Context) CoordinateSystem(name string) {
	if c.verifyNotDone("CoordinateSystem") {
		c.coordSys[name] = c.current
	}
}

func (c *Context) CoordSysTransform(name string) {
	if !c.verifyNotDone("CoordSysTransform") {
		return
	}
	m, ok := c.coordSys[name]
	if !ok {
		c.fail(ErrUnknownName, "coordinate system %q unknown", name)
		return
	}
	c.setTransform(m)
}

// Options block

func (c *Context) option(dst *Directive, kind, name string, ps *paramset.ParamSet) {
	if !c.verifyOptions(kind) {
		return
	}
	*dst = Directive{Kind: kind, Name: name, Params: orEmpty(ps), Transform: c.current}
}

func (c *Context) PixelFilter(name string, ps *paramset.ParamSet) {
	c.option(&c.desc.PixelFilter, "PixelFilter", name, ps)
}

func (c *Context) Film(name string, ps *paramset.ParamSet) {
	c.option(&c.desc.Film, "Film", name, ps)
}

func (c *Context) Sampler(name string, ps *paramset.ParamSet) {
	c.option(&c.desc.Sampler, "Sampler", name, ps)
}

func (c *Context) Accelerator(name string, ps *paramset.ParamSet) {
	c.option(&c.desc.Accelerator, "Accelerator", name, ps)
}

func (c *Context) SurfaceIntegrator(name string, ps *paramset.ParamSet) {
	c.option(&c.desc.SurfaceIntegrator, "SurfaceIntegrator", name, ps)
}

func (c *Context) VolumeIntegrator(name string, ps *paramset.ParamSet) {
	c.option(&c.desc.VolumeIntegrator, "VolumeIntegrator", name, ps)
}

func (c *Context) Renderer(name string, ps *paramset.ParamSet) {
	c.option(&c.desc.Renderer, "Renderer", name, ps)
}

// Camera records the camera and names the current transform "camera"
func (c *Context) Camera(name string, ps *paramset.ParamSet) {
	c.option(&c.desc.Camera, "Camera", name, ps)
	if c.block == blockOptions {
		c.coordSys["camera"] = c.current
	}
}

// WorldBegin ends the options block and resets the transform
func (c *Context) WorldBegin() {
	if !c.verifyOptions("WorldBegin") {
		return
	}
	c.block = blockWorld
	c.current = IdentityMatrix()
	c.coordSys["world"] = c.current
}

// Attribute and transform blocks

func (c *Context) AttributeBegin() {
	if !c.verifyWorld("AttributeBegin") {
		return
	}
	c.graphicsStack = append(c.graphicsStack, c.graphics)
	c.transformStack = append(c.transformStack, c.current)
	c.pushed = append(c.pushed, pushAttribute)
}

func (c *Context) AttributeEnd() {
	if !c.verifyWorld("AttributeEnd") {
		return
	}
	if !c.pop(pushAttribute) {
		c.fail(ErrUnbalanced, "unmatched AttributeEnd encountered")
		return
	}
	c.graphics = c.graphicsStack[len(c.graphicsStack)-1]
	c.graphicsStack = c.graphicsStack[:len(c.graphicsStack)-1]
	c.current = c.transformStack[len(c.transformStack)-1]
	c.transformStack = c.transformStack[:len(c.transformStack)-1]
}

func (c *Context) TransformBegin() {
	if !c.verifyWorld("TransformBegin") {
		return
	}
	c.transformStack = append(c.transformStack, c.current)
	c.pushed = append(c.pushed, pushTransform)
}

func (c *Context) TransformEnd() {
	if !c.verifyWorld("TransformEnd") {
		return
	}
	if !c.pop(pushTransform) {
		c.fail(ErrUnbalanced, "unmatched TransformEnd encountered")
		return
	}
	c.current = c.transformStack[len(c.transformStack)-1]
	c.transformStack = c.transformStack[:len(c.transformStack)-1]
}

// pop removes the innermost block if it has the expected kind
func (c *Context) pop(kind pushKind) bool {
	if len(c.pushed) == 0 || c.pushed[len(c.pushed)-1] != kind {
		return false
	}
	c.pushed = c.pushed[:len(c.pushed)-1]
	return true
}

// World block

func (c *Context) directive(kind, name string, ps *paramset.ParamSet) Directive {
	return Directive{
		Kind:       kind,
		Name:       name,
		Params:     orEmpty(ps),
		Transform:  c.current,
		Material:   c.graphics.material,
		LightGroup: c.graphics.lightGroup,
		Interior:   c.graphics.interior,
		Exterior:   c.graphics.exterior,
		Reverse:    c.graphics.reverse,
	}
}

func (c *Context) Texture(name, typ, texname string, ps *paramset.ParamSet) {
	if !c.verifyWorld("Texture") {
		return
	}
	if typ != "float" && typ != "color" {
		c.fail(ErrUnknownName, "texture type %q unknown", typ)
		return
	}
	d := c.directive("Texture", name, ps)
	d.Class = texname
	c.desc.Textures = append(c.desc.Textures, d)
}

func (c *Context) Material(name string, ps *paramset.ParamSet) {
	if c.verifyWorld("Material") {
		c.desc.Materials = append(c.desc.Materials, c.directive("Material", name, ps))
		c.graphics.material = name
	}
}

func (c *Context) MakeNamedMaterial(name string, ps *paramset.ParamSet) {
	if !c.verifyWorld("MakeNamedMaterial") {
		return
	}
	if _, ok := c.desc.NamedMaterials[name]; ok {
		c.logger.Warningf("Named material %q redefined", name)
	}
	c.desc.NamedMaterials[name] = c.directive("MakeNamedMaterial", name, ps)
}

func (c *Context) NamedMaterial(name string) {
	if !c.verifyWorld("NamedMaterial") {
		return
	}
	if _, ok := c.desc.NamedMaterials[name]; !ok {
		c.fail(ErrUnknownName, "named material %q unknown", name)
		return
	}
	c.graphics.material = name
}

// LightGroup sets the group that following lights contribute to
func (c *Context) LightGroup(name string, ps *paramset.ParamSet) {
	if c.verifyWorld("LightGroup") {
		c.graphics.lightGroup = name
	}
}

func (c *Context) LightSource(name string, ps *paramset.ParamSet) {
	if !c.verifyWorld("LightSource") {
		return
	}
	c.addLight(c.directive("LightSource", name, ps))
}

func (c *Context) addLight(d Directive) {
	if d.LightGroup == "" {
		d.LightGroup = "default"
	}
	found := false
	for _, g := range c.desc.LightGroups {
		if g == d.LightGroup {
			found = true
			break
		}
	}
	if !found {
		c.desc.LightGroups = append(c.desc.LightGroups, d.LightGroup)
	}
	c.desc.Lights = append(c.desc.Lights, d)
}

// AreaLightSource makes following shapes in the attribute block emissive
func (c *Context) AreaLightSource(name string, ps *paramset.ParamSet) {
	if !c.verifyWorld("AreaLightSource") {
		return
	}
	d := c.directive("AreaLightSource", name, ps)
	c.graphics.areaLight = &d
}

func (c *Context) PortalShape(name string, ps *paramset.ParamSet) {
	if c.verifyWorld("PortalShape") {
		c.desc.Portals = append(c.desc.Portals, c.directive("PortalShape", name, ps))
	}
}

func (c *Context) Shape(name string, ps *paramset.ParamSet) {
	if !c.verifyWorld("Shape") {
		return
	}
	d := c.directive("Shape", name, ps)
	if c.object != "" {
		if c.graphics.areaLight != nil {
			c.logger.Warningf("Area lights not supported with object instancing")
		}
		c.desc.Objects[c.object] = append(c.desc.Objects[c.object], d)
		return
	}
	c.desc.Shapes = append(c.desc.Shapes, d)
	if al := c.graphics.areaLight; al != nil {
		light := *al
		light.Transform = c.current
		light.LightGroup = c.graphics.lightGroup
		c.addLight(light)
	}
}

func (c *Context) ReverseOrientation() {
	if c.verifyWorld("ReverseOrientation") {
		c.graphics.reverse = !c.graphics.reverse
	}
}

func (c *Context) MakeNamedVolume(id, name string, ps *paramset.ParamSet) {
	if !c.verifyWorld("MakeNamedVolume") {
		return
	}
	if _, ok := c.desc.NamedVolumes[id]; ok {
		c.logger.Warningf("Named volume %q redefined", id)
	}
	c.desc.NamedVolumes[id] = c.directive("MakeNamedVolume", name, ps)
}

func (c *Context) Volume(name string, ps *paramset.ParamSet) {
	if c.verifyWorld("Volume") {
		c.desc.Volumes = append(c.desc.Volumes, c.directive("Volume", name, ps))
	}
}

func (c *Context) Exterior(name string) {
	if c.verifyWorld("Exterior") && c.knownVolume(name) {
		c.graphics.exterior = name
	}
}

func (c *Context) Interior(name string) {
	if c.verifyWorld("Interior") && c.knownVolume(name) {
		c.graphics.interior = name
	}
}

func (c *Context) knownVolume(name string) bool {
	if name == "" {
		return true
	}
	if _, ok := c.desc.NamedVolumes[name]; !ok {
		c.fail(ErrUnknownName, "named volume %q unknown", name)
		return false
	}
	return true
}

// Instancing

func (c *Context) ObjectBegin(name string) {
	if !c.verifyWorld("ObjectBegin") {
		return
	}
	if c.object != "" {
		c.fail(ErrInvalidState, "ObjectBegin called inside of instance definition")
		return
	}
	c.AttributeBegin()
	if _, ok := c.desc.Objects[name]; ok {
		c.logger.Warningf("Object %q redefined", name)
	}
	c.desc.Objects[name] = nil
	c.object = name
}

func (c *Context) ObjectEnd() {
	if !c.verifyWorld("ObjectEnd") {
		return
	}
	if c.object == "" {
		c.fail(ErrUnbalanced, "ObjectEnd called outside of instance definition")
		return
	}
	c.object = ""
	c.AttributeEnd()
}

func (c *Context) instance(kind, name string) (Directive, bool) {
	if !c.verifyWorld(kind) {
		return Directive{}, false
	}
	if c.object != "" {
		c.fail(ErrInvalidState, "%s can't be called inside instance definition", kind)
		return Directive{}, false
	}
	if _, ok := c.desc.Objects[name]; !ok {
		c.fail(ErrUnknownName, "unable to find instance named %q", name)
		return Directive{}, false
	}
	return c.directive(kind, name, nil), true
}

func (c *Context) ObjectInstance(name string) {
	if d, ok := c.instance("ObjectInstance", name); ok {
		c.desc.Instances = append(c.desc.Instances, d)
	}
}

func (c *Context) PortalInstance(name string) {
	if d, ok := c.instance("PortalInstance", name); ok {
		c.desc.Portals = append(c.desc.Portals, d)
	}
}

func (c *Context) MotionBegin(times []float32) {
	if !c.verifyWorld("MotionBegin") {
		return
	}
	if c.motion != nil {
		c.fail(ErrInvalidState, "MotionBegin called inside a motion block")
		return
	}
	c.motion = &MotionBlock{Times: append([]float32(nil), times...)}
}

func (c *Context) MotionEnd() {
	if !c.verifyWorld("MotionEnd") {
		return
	}
	if c.motion == nil {
		c.fail(ErrUnbalanced, "MotionEnd called outside a motion block")
		return
	}
	if len(c.motion.Transforms) != len(c.motion.Times) {
		c.logger.Warningf("Motion block has %d times but %d transforms",
			len(c.motion.Times), len(c.motion.Transforms))
	}
	c.desc.Motions = append(c.desc.Motions, *c.motion)
	c.motion = nil
}

// MotionInstance instances an object moving from the current transform at
// start to the named coordinate system at end
func (c *Context) MotionInstance(name string, start, end float32, toTransform string) {
	d, ok := c.instance("MotionInstance", name)
	if !ok {
		return
	}
	m, ok := c.coordSys[toTransform]
	if !ok {
		c.fail(ErrUnknownName, "coordinate system %q unknown", toTransform)
		return
	}
	d.EndTransform = m
	d.Times = []float32{start, end}
	c.desc.Instances = append(c.desc.Instances, d)
}

func (c *Context) SetEpsilon(minEps, maxEps float32) {
	if c.verifyNotDone("SetEpsilon") {
		c.desc.Epsilon = [2]float32{minEps, maxEps}
	}
}

// WorldEnd closes open blocks, then builds the film and the preview
// integrator
func (c *Context) WorldEnd() error {
	if !c.verifyWorld("WorldEnd") {
		return c.err
	}
	for len(c.pushed) > 0 {
		if c.pushed[len(c.pushed)-1] == pushAttribute {
			c.logger.Warningf("Missing end to AttributeBegin")
			c.AttributeEnd()
		} else {
			c.logger.Warningf("Missing end to TransformBegin")
			c.TransformEnd()
		}
	}
	if c.object != "" {
		c.logger.Warningf("Missing end to ObjectBegin")
		c.object = ""
	}
	if c.motion != nil {
		c.logger.Warningf("Missing end to MotionBegin")
		c.MotionEnd()
	}
	c.block = blockDone

	if len(c.desc.Lights) == 0 {
		c.fail(ErrNoLights, "no light sources defined in scene; nothing to render")
		return c.err
	}
	f, err := c.buildFilm()
	if err != nil {
		c.logger.Errorf("Unable to create film: %v", err)
		if c.err == nil {
			c.err = err
		}
		return c.err
	}
	c.film = f
	c.haltSPP = float64(c.desc.Film.Params.FindOneInt("haltspp", 0))
	c.loadMaps()
	c.desc.Triangles = c.countTriangles()
	c.integrator = NewPreviewIntegrator(f, c.desc)
	c.logger.Infof("Scene ready: %d shapes (%d triangles), %d lights in %d groups, %d instances",
		len(c.desc.Shapes), c.desc.Triangles, len(c.desc.Lights), len(c.desc.LightGroups), len(c.desc.Instances))
	return nil
}

func (c *Context) buildFilm() (*film.Film, error) {
	fd := c.desc.Film
	if fd.Name != "fleximage" && fd.Name != "multiimage" {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFilm, fd.Name)
	}
	filter, err := film.NewFilter(c.desc.PixelFilter.Name, c.desc.PixelFilter.Params)
	if err != nil {
		return nil, err
	}

	f := film.New(film.OptionsFromParams(fd.Params), filter)
	for _, g := range c.desc.LightGroups {
		f.RequestGroup(g)
	}
	f.RequestBuffer(film.BufferPerPixel, film.OutputFramebuffer, "")
	if err := f.CreateBuffers(); err != nil {
		return nil, err
	}
	return f, nil
}

func orEmpty(ps *paramset.ParamSet) *paramset.ParamSet {
	if ps == nil {
		return paramset.New()
	}
	return ps
}
