package scene

import (
	"fmt"
	"image"
	_ "image/jpeg" // JPEG decoder
	_ "image/png"  // PNG decoder
	"os"

	"github.com/df07/go-render-farm/pkg/core"
)

// AverageMapColor loads a PNG or JPEG environment map and returns its mean
// color. Lights with a "mapname" scale their emission by its luminance.
func AverageMapColor(filename string) (core.XYZ, error) {
	file, err := os.Open(filename)
	if err != nil {
		return core.XYZ{}, fmt.Errorf("failed to open map: %w", err)
	}
	defer file.Close()

	// auto-detects the format from the file header
	img, _, err := image.Decode(file)
	if err != nil {
		return core.XYZ{}, fmt.Errorf("failed to decode map %s: %w", filename, err)
	}

	bounds := img.Bounds()
	n := bounds.Dx() * bounds.Dy()
	if n == 0 {
		return core.XYZ{}, fmt.Errorf("empty map %s", filename)
	}

	var sr, sg, sb float64
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			// RGBA returns [0, 65535]
			r, g, b, _ := img.At(x, y).RGBA()
			sr += float64(r) / 65535
			sg += float64(g) / 65535
			sb += float64(b) / 65535
		}
	}
	inv := 1 / float64(n)
	return core.RGBToXYZ(float32(sr*inv), float32(sg*inv), float32(sb*inv)), nil
}

// loadMaps resolves the environment maps of all lights once per scene
func (c *Context) loadMaps() {
	for _, l := range c.desc.Lights {
		name := l.Params.FindOneString("mapname", "")
		if name == "" {
			continue
		}
		if _, ok := c.desc.MapColors[name]; ok {
			continue
		}
		avg, err := AverageMapColor(name)
		if err != nil {
			c.logger.Warningf("Ignoring environment map: %v", err)
			continue
		}
		c.desc.MapColors[name] = avg
	}
}
