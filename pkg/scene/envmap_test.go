package scene

import (
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/df07/go-render-farm/pkg/core"
)

// writeMap writes a 2x2 PNG with one white and three black pixels
func writeMap(t *testing.T) string {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 2, 2))
	img.Pix[0] = 255

	path := filepath.Join(t.TempDir(), "sky.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
	return path
}

func TestAverageMapColor(t *testing.T) {
	avg, err := AverageMapColor(writeMap(t))
	require.NoError(t, err)
	want := core.RGBToXYZ(0.25, 0.25, 0.25)
	assert.InDelta(t, want.Y, avg.Y, 1e-4)
	assert.InDelta(t, want.X, avg.X, 1e-4)

	_, err = AverageMapColor(filepath.Join(t.TempDir(), "missing.png"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	garbage := filepath.Join(t.TempDir(), "garbage.png")
	require.NoError(t, os.WriteFile(garbage, []byte("not an image"), 0o644))
	_, err = AverageMapColor(garbage)
	assert.Error(t, err)
}

func TestEnvironmentMapScalesEmission(t *testing.T) {
	build := func(mapname string) *Context {
		c := NewContext()
		c.Film("fleximage", filmParams(2, 2))
		c.PixelFilter("box", nil)
		c.WorldBegin()
		ps := colorParam("L", 1, 1, 1)
		if mapname != "" {
			ps.AddString("mapname", mapname)
		}
		c.LightSource("infinite", ps)
		require.NoError(t, c.WorldEnd())
		return c
	}

	plain := build("")
	mapped := build(writeMap(t))
	assert.Len(t, mapped.Description().MapColors, 1)
	assert.InDelta(t, 0.25*plain.Integrator().emission[0].Y, mapped.Integrator().emission[0].Y, 1e-4)

	// an unreadable map is ignored
	missing := build(filepath.Join(t.TempDir(), "missing.png"))
	assert.Empty(t, missing.Description().MapColors)
	assert.InDelta(t, plain.Integrator().emission[0].Y, missing.Integrator().emission[0].Y, 1e-4)
}
