package film

import (
	"fmt"

	"github.com/df07/go-render-farm/pkg/core"
)

// BufferType selects how a buffer's accumulated values are normalized. The
// numeric values are part of the snapshot format.
type BufferType int32

const (
	BufferPerPixel  BufferType = 0 // divide by the pixel's weight sum
	BufferPerScreen BufferType = 1 // divide by samples per pixel of the whole film
	BufferRaw       BufferType = 2 // no normalization
)

func (t BufferType) String() string {
	switch t {
	case BufferPerPixel:
		return "per-pixel"
	case BufferPerScreen:
		return "per-screen"
	case BufferRaw:
		return "raw"
	default:
		return fmt.Sprintf("BufferType(%d)", int32(t))
	}
}

// BufferOutput is a bit set describing where a buffer's data is routed.
type BufferOutput uint8

const (
	OutputFramebuffer BufferOutput = 1 << iota // summed into the main image
	OutputStandalone                           // written as its own image
	OutputRawData                              // standalone image skips flux scaling
)

// BufferConfig describes one buffer requested by an integrator. Every
// BufferGroup holds one Buffer per config.
type BufferConfig struct {
	Type    BufferType
	Output  BufferOutput
	Postfix string
}

// Pixel is a single accumulator cell
type Pixel struct {
	L         core.XYZ // weighted radiance sum
	Alpha     float32  // weighted alpha sum
	WeightSum float32  // filter weight sum; never decreases
}

// Buffer is a fixed-size grid of pixel accumulators
type Buffer struct {
	Width, Height int
	Pixels        []Pixel
}

// NewBuffer allocates a zeroed buffer
func NewBuffer(width, height int) *Buffer {
	return &Buffer{
		Width:  width,
		Height: height,
		Pixels: make([]Pixel, width*height),
	}
}

// Add accumulates a filtered sample contribution into pixel (x, y)
func (b *Buffer) Add(x, y int, xyz core.XYZ, alpha, weight float32) {
	p := &b.Pixels[y*b.Width+x]
	p.L = p.L.Add(xyz.Scale(weight))
	p.Alpha += alpha * weight
	p.WeightSum += weight
}

// GetData returns the weight-normalized color and alpha of pixel (x, y).
// A pixel that never received weight is black with zero alpha.
func (b *Buffer) GetData(x, y int) (core.XYZ, float32) {
	p := b.Pixels[y*b.Width+x]
	if p.WeightSum == 0 {
		return core.XYZ{}, 0
	}
	inv := 1 / p.WeightSum
	return p.L.Scale(inv), p.Alpha * inv
}

// Merge adds every field of other into b. Buffers must have equal size.
func (b *Buffer) Merge(other *Buffer) error {
	if b.Width != other.Width || b.Height != other.Height {
		return fmt.Errorf("%w: %dx%d vs %dx%d", ErrSizeMismatch, b.Width, b.Height, other.Width, other.Height)
	}
	for i := range b.Pixels {
		src := &other.Pixels[i]
		dst := &b.Pixels[i]
		dst.L = dst.L.Add(src.L)
		dst.Alpha += src.Alpha
		dst.WeightSum += src.WeightSum
	}
	return nil
}

// Clear zeroes every pixel
func (b *Buffer) Clear() {
	clear(b.Pixels)
}

// Clone returns a deep copy
func (b *Buffer) Clone() *Buffer {
	out := &Buffer{Width: b.Width, Height: b.Height, Pixels: make([]Pixel, len(b.Pixels))}
	copy(out.Pixels, b.Pixels)
	return out
}

// BufferGroup is a named set of buffers, one per BufferConfig, that can be
// scaled or disabled independently (one group per light group).
type BufferGroup struct {
	Name            string
	Enabled         bool
	Scale           float32
	NumberOfSamples float64
	Buffers         []*Buffer
}

// NewBufferGroup creates an enabled group with unit scale
func NewBufferGroup(name string) *BufferGroup {
	return &BufferGroup{Name: name, Enabled: true, Scale: 1}
}

// CreateBuffers allocates one buffer per config
func (g *BufferGroup) CreateBuffers(configs []BufferConfig, width, height int) {
	g.Buffers = make([]*Buffer, len(configs))
	for i := range configs {
		g.Buffers[i] = NewBuffer(width, height)
	}
}

// Merge adds other's sample count and buffers into g. The whole merge is
// validated before any buffer is touched.
func (g *BufferGroup) Merge(other *BufferGroup) error {
	if len(g.Buffers) != len(other.Buffers) {
		return fmt.Errorf("%w: %d vs %d", ErrConfigMismatch, len(g.Buffers), len(other.Buffers))
	}
	for i, b := range g.Buffers {
		if b.Width != other.Buffers[i].Width || b.Height != other.Buffers[i].Height {
			return fmt.Errorf("%w: buffer %d", ErrSizeMismatch, i)
		}
	}
	for i, b := range g.Buffers {
		_ = b.Merge(other.Buffers[i])
	}
	g.NumberOfSamples += other.NumberOfSamples
	return nil
}

// Clear resets all buffers and the sample count
func (g *BufferGroup) Clear() {
	for _, b := range g.Buffers {
		b.Clear()
	}
	g.NumberOfSamples = 0
}

// Clone returns a deep copy
func (g *BufferGroup) Clone() *BufferGroup {
	out := &BufferGroup{
		Name:            g.Name,
		Enabled:         g.Enabled,
		Scale:           g.Scale,
		NumberOfSamples: g.NumberOfSamples,
		Buffers:         make([]*Buffer, len(g.Buffers)),
	}
	for i, b := range g.Buffers {
		out.Buffers[i] = b.Clone()
	}
	return out
}
