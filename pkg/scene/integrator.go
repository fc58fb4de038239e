package scene

import (
	"math/rand"

	"github.com/df07/go-render-farm/pkg/core"
	"github.com/df07/go-render-farm/pkg/film"
	"github.com/df07/go-render-farm/pkg/renderer"
)

// PreviewIntegrator is a stand-in light transport: every light group
// contributes its total emission, shaded by a vertical sky gradient, to each
// pixel of the sample extent. One Render call is one jittered sample per
// pixel position.
type PreviewIntegrator struct {
	film     *film.Film
	emission []core.XYZ // per light group

	xStart, yStart int
	width, height  int
	yResolution    float32
}

// NewPreviewIntegrator sums the emission of every light into its group
func NewPreviewIntegrator(f *film.Film, desc *Description) *PreviewIntegrator {
	p := &PreviewIntegrator{
		film:        f,
		emission:    make([]core.XYZ, len(desc.LightGroups)),
		yResolution: float32(f.Options().YResolution),
	}
	xStart, xEnd, yStart, yEnd := f.SampleExtent()
	p.xStart, p.yStart = xStart, yStart
	p.width, p.height = xEnd-xStart, yEnd-yStart

	index := make(map[string]int, len(desc.LightGroups))
	for i, g := range desc.LightGroups {
		index[g] = i
	}
	for _, l := range desc.Lights {
		g, ok := index[l.LightGroup]
		if !ok {
			continue
		}
		e := LightEmission(l)
		if avg, ok := desc.MapColors[l.Params.FindOneString("mapname", "")]; ok {
			e = e.Scale(avg.Y)
		}
		p.emission[g] = p.emission[g].Add(e)
	}
	return p
}

// LightEmission returns the scaled "L" color of a light directive
func LightEmission(l Directive) core.XYZ {
	rgb := l.Params.FindFloats("L")
	if len(rgb) < 3 {
		rgb = []float32{1, 1, 1}
	}
	gain := l.Params.FindOneFloat("gain", 1)
	return core.RGBToXYZ(rgb[0], rgb[1], rgb[2]).Scale(gain)
}

// Positions is the number of raster positions in the sample extent
func (p *PreviewIntegrator) Positions() int {
	if p.width <= 0 || p.height <= 0 {
		return 0
	}
	return p.width * p.height
}

// Render adds one sample per light group at a jittered point of position pos
func (p *PreviewIntegrator) Render(rng *rand.Rand, pos int) renderer.UnitResult {
	if p.width <= 0 || p.height <= 0 {
		return renderer.UnitExhausted
	}
	x := float32(p.xStart+pos%p.width) + rng.Float32()
	y := float32(p.yStart+pos/p.width) + rng.Float32()

	// brighter at the top of the image, half intensity at the bottom
	shade := 1 - 0.5*clamp(y/p.yResolution, 0, 1)

	result := renderer.UnitBlack
	for g, e := range p.emission {
		if e.IsBlack() {
			continue
		}
		p.film.AddSample(film.Sample{
			X:     x,
			Y:     y,
			XYZ:   e.Scale(shade),
			Alpha: 1,
			Group: g,
		})
		result = renderer.UnitContributed
	}
	p.film.AddSampleCount(1)
	return result
}

func clamp(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
