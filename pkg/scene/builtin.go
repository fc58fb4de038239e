package scene

import (
	"errors"
	"fmt"

	"github.com/df07/go-render-farm/pkg/paramset"
)

var ErrUnknownScene = errors.New("scene: unknown built-in scene")

// FilmSettings are the film and filter options applied to built-in scenes
type FilmSettings struct {
	Width          int
	Height         int
	Filter         string
	HaltSPP        int
	Filename       string
	WriteInterval  int // seconds
	WriteResumeFLM bool
	WritePNG       bool
}

// Params returns the settings as Film command parameters
func (s FilmSettings) Params() *paramset.ParamSet {
	ps := paramset.New()
	ps.AddInt("xresolution", int32(s.Width))
	ps.AddInt("yresolution", int32(s.Height))
	if s.HaltSPP > 0 {
		ps.AddInt("haltspp", int32(s.HaltSPP))
	}
	if s.Filename != "" {
		ps.AddString("filename", s.Filename)
	}
	if s.WriteInterval > 0 {
		ps.AddInt("writeinterval", int32(s.WriteInterval))
	}
	ps.AddBool("write_resume_flm", s.WriteResumeFLM)
	ps.AddBool("write_png", s.WritePNG)
	return ps
}

type builtin struct {
	info SceneInfo
	emit func(api API)
}

var builtins = []builtin{
	{
		info: SceneInfo{
			ID:          "cornell-box",
			Name:        "Cornell Box",
			Description: "Cornell box with two spheres and a ceiling light",
		},
		emit: emitCornell,
	},
	{
		info: SceneInfo{
			ID:          "default",
			Name:        "Default Scene",
			Description: "Spheres on a ground quad lit by separate sky and sun light groups",
		},
		emit: emitDefault,
	},
}

// EmitBuiltin describes a built-in scene through api, from the options
// block to WorldEnd, and returns the WorldEnd result
func EmitBuiltin(api API, id string, s FilmSettings) error {
	for _, b := range builtins {
		if b.info.ID != id {
			continue
		}
		filter := s.Filter
		if filter == "" {
			filter = "mitchell"
		}
		api.PixelFilter(filter, paramset.New())
		api.Film("fleximage", s.Params())
		b.emit(api)
		return api.WorldEnd()
	}
	return fmt.Errorf("%w: %q", ErrUnknownScene, id)
}

func floats(name string, v ...float32) *paramset.ParamSet {
	ps := paramset.New()
	ps.AddFloat(name, v...)
	return ps
}

func color(name string, r, g, b float32) *paramset.ParamSet {
	ps := paramset.New()
	ps.AddColor(name, r, g, b)
	return ps
}

// quad is a two-triangle mesh spanning corner, corner+u, corner+u+v, corner+v
func quad(corner, u, v [3]float32) *paramset.ParamSet {
	ps := paramset.New()
	ps.AddInt("indices", 0, 1, 2, 0, 2, 3)
	ps.AddPoint("P",
		corner[0], corner[1], corner[2],
		corner[0]+u[0], corner[1]+u[1], corner[2]+u[2],
		corner[0]+u[0]+v[0], corner[1]+u[1]+v[1], corner[2]+u[2]+v[2],
		corner[0]+v[0], corner[1]+v[1], corner[2]+v[2],
	)
	return ps
}

func sphere(api API, center [3]float32, radius float32) {
	api.TransformBegin()
	api.Translate(center[0], center[1], center[2])
	api.Shape("sphere", floats("radius", radius))
	api.TransformEnd()
}

func emitCornell(api API) {
	api.LookAt(278, 278, -800, 278, 278, 0, 0, 1, 0)
	api.Camera("perspective", floats("fov", 40))
	api.WorldBegin()

	api.MakeNamedMaterial("white", color("Kd", 0.73, 0.73, 0.73))
	api.MakeNamedMaterial("red", color("Kd", 0.65, 0.05, 0.05))
	api.MakeNamedMaterial("green", color("Kd", 0.12, 0.45, 0.15))

	const size = 555
	api.NamedMaterial("white")
	api.Shape("trianglemesh", quad([3]float32{0, 0, 0}, [3]float32{size, 0, 0}, [3]float32{0, 0, size}))
	api.Shape("trianglemesh", quad([3]float32{0, size, 0}, [3]float32{size, 0, 0}, [3]float32{0, 0, size}))
	api.Shape("trianglemesh", quad([3]float32{0, 0, size}, [3]float32{size, 0, 0}, [3]float32{0, size, 0}))

	api.AttributeBegin()
	api.NamedMaterial("red")
	api.Shape("trianglemesh", quad([3]float32{0, 0, 0}, [3]float32{0, 0, size}, [3]float32{0, size, 0}))
	api.AttributeEnd()

	api.AttributeBegin()
	api.NamedMaterial("green")
	api.Shape("trianglemesh", quad([3]float32{size, 0, 0}, [3]float32{0, size, 0}, [3]float32{0, 0, size}))
	api.AttributeEnd()

	// ceiling light, slightly below the ceiling
	const light = 130
	const offset = (size - light) / 2
	api.AttributeBegin()
	api.LightGroup("ceiling", paramset.New())
	api.AreaLightSource("area", color("L", 15, 15, 15))
	api.Shape("trianglemesh", quad([3]float32{offset, size - 1, offset}, [3]float32{light, 0, 0}, [3]float32{0, 0, light}))
	api.AttributeEnd()

	api.Material("metal", color("Kr", 0.8, 0.8, 0.9))
	sphere(api, [3]float32{185, 82.5, 169}, 82.5)
	api.Material("glass", floats("index", 1.5))
	sphere(api, [3]float32{370, 90, 351}, 90)
}

func emitDefault(api API) {
	api.LookAt(0, 0.75, 2, 0, 0.5, -1, 0, 1, 0)
	api.Camera("perspective", floats("fov", 40))
	api.WorldBegin()

	api.LightGroup("sky", paramset.New())
	api.LightSource("infinite", color("L", 0.5, 0.7, 1.0))

	sun := color("L", 15, 14, 13)
	sun.AddFloat("gain", 0.05)
	sun.AddPoint("from", 30, 30.5, 15)
	sun.AddPoint("to", 0, 0, 0)
	api.LightGroup("sun", paramset.New())
	api.LightSource("distant", sun)

	api.Material("matte", color("Kd", 0.48, 0.48, 0))
	api.Shape("trianglemesh", quad([3]float32{-50, 0, -50}, [3]float32{100, 0, 0}, [3]float32{0, 0, 100}))

	api.AttributeBegin()
	api.Material("metal", color("Kr", 0.8, 0.8, 0.8))
	sphere(api, [3]float32{-1, 0.5, -1}, 0.5)
	api.Material("metal", color("Kr", 0.8, 0.6, 0.2))
	sphere(api, [3]float32{1, 0.5, -1}, 0.5)
	api.Material("glass", floats("index", 1.5))
	sphere(api, [3]float32{0, 0.5, -1}, 0.5)
	api.AttributeEnd()
}
