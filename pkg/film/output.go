package film

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"

	"github.com/chewxy/math32"

	"github.com/df07/go-render-farm/pkg/core"
)

// Image is an untonemapped composite of the film, in buffer coordinates
type Image struct {
	Width, Height    int
	XOffset, YOffset int // position of the crop window in the full resolution
	Postfix          string
	XYZ              []core.XYZ
	Alpha            []float32
}

// ImageWriter receives every image produced by a film write. Tonemapping and
// file formats live behind this interface.
type ImageWriter interface {
	WriteImage(img *Image) error
}

// ToRGBA converts the image to 8-bit sRGB with gamma correction and clamping.
// It is a preview conversion, not a tonemapper.
func (img *Image) ToRGBA(gamma float32) *image.RGBA {
	out := image.NewRGBA(image.Rect(0, 0, img.Width, img.Height))
	invGamma := float32(1)
	if gamma > 0 {
		invGamma = 1 / gamma
	}
	for y := 0; y < img.Height; y++ {
		for x := 0; x < img.Width; x++ {
			r, g, b := img.XYZ[y*img.Width+x].ToRGB()
			out.SetRGBA(x, y, color.RGBA{
				R: toByte(r, invGamma),
				G: toByte(g, invGamma),
				B: toByte(b, invGamma),
				A: 255,
			})
		}
	}
	return out
}

func toByte(v, invGamma float32) uint8 {
	if v <= 0 {
		return 0
	}
	v = math32.Pow(v, invGamma)
	if v >= 1 {
		return 255
	}
	return uint8(255 * v)
}

// PNGWriter writes <filename><postfix>.png previews
type PNGWriter struct {
	Filename string
	Gamma    float32
}

func NewPNGWriter(filename string, gamma float32) *PNGWriter {
	return &PNGWriter{Filename: filename, Gamma: gamma}
}

func (w *PNGWriter) WriteImage(img *Image) error {
	name := w.Filename + img.Postfix + ".png"
	file, err := os.Create(name)
	if err != nil {
		return fmt.Errorf("create %s: %w", name, err)
	}
	defer file.Close()

	if err := png.Encode(file, img.ToRGBA(w.Gamma)); err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	return file.Close()
}
