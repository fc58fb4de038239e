package scene

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/df07/go-render-farm/pkg/renderer"
)

func previewScene(t *testing.T, width, height int) *Context {
	t.Helper()
	c := NewContext()
	c.Film("fleximage", filmParams(width, height))
	c.PixelFilter("box", nil)
	c.WorldBegin()
	ps := colorParam("L", 1, 1, 1)
	ps.AddFloat("gain", 2)
	c.LightSource("point", ps)
	require.NoError(t, c.WorldEnd())
	return c
}

func TestLightEmission(t *testing.T) {
	ps := colorParam("L", 1, 1, 1)
	ps.AddFloat("gain", 2)
	assert.InDelta(t, 2.0, LightEmission(Directive{Params: ps}).Y, 1e-4)

	// white by default
	assert.InDelta(t, 1.0, LightEmission(Directive{Params: colorParam("other", 0, 0, 0)}).Y, 1e-4)
}

func TestPreviewIntegratorRendersGradient(t *testing.T) {
	c := previewScene(t, 4, 4)
	p := c.Integrator()
	f := c.RenderFilm()

	// box filter of radius 0.5 extends the sample extent by one pixel
	assert.Equal(t, 25, p.Positions())

	rng := rand.New(rand.NewSource(1))
	assert.Equal(t, renderer.UnitContributed, p.Render(rng, 0))
	assert.Equal(t, 1.0, f.NumberOfSamples())

	top, alpha := f.GetData(0, 0)
	assert.GreaterOrEqual(t, top.Y, float32(1.75))
	assert.LessOrEqual(t, top.Y, float32(2.001))
	assert.Equal(t, float32(1), alpha)

	for pos := 0; pos < p.Positions(); pos++ {
		p.Render(rng, pos)
	}
	bottom, _ := f.GetData(0, 3)
	assert.Less(t, bottom.Y, top.Y)
}

func TestPreviewIntegratorSkipsBlackGroups(t *testing.T) {
	c := NewContext()
	c.Film("fleximage", filmParams(2, 2))
	c.WorldBegin()
	c.LightSource("point", colorParam("L", 0, 0, 0))
	require.NoError(t, c.WorldEnd())

	rng := rand.New(rand.NewSource(1))
	assert.Equal(t, renderer.UnitBlack, c.Integrator().Render(rng, 0))
	assert.Equal(t, 1.0, c.RenderFilm().NumberOfSamples())
}

func TestPreviewRenderReachesHaltDensity(t *testing.T) {
	c := previewScene(t, 4, 4)
	f := c.RenderFilm()

	r := renderer.NewRenderer(c.Integrator(), f, renderer.Config{HaltSamplesPerPixel: 2, Seed: 7})
	r.Start(2)
	r.Wait()

	assert.GreaterOrEqual(t, f.SamplesPerPixel(), 2.0)
	assert.Equal(t, 0, r.NumThreads())
}
