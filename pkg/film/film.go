// Package film accumulates filtered radiance samples into buffer groups and
// moves that accumulated state over the network and to disk.
package film

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chewxy/math32"

	"github.com/df07/go-render-farm/pkg/core"
	"github.com/df07/go-render-farm/pkg/log"
	"github.com/df07/go-render-farm/pkg/paramset"
)

// Options configures a film. Zero values are not meaningful, start from
// DefaultOptions or OptionsFromParams.
type Options struct {
	XResolution      int
	YResolution      int
	CropWindow       [4]float32 // xmin, xmax, ymin, ymax in [0,1]
	Filename         string
	WriteInterval    time.Duration
	RejectWarmup     float32 // accepted samples per pixel before outlier rejection starts
	Debug            bool
	WriteResumeFLM   bool
	WritePNG         bool
	PremultiplyAlpha bool
	Gamma            float32
}

// DefaultOptions returns the film defaults
func DefaultOptions() Options {
	return Options{
		XResolution:      800,
		YResolution:      600,
		CropWindow:       [4]float32{0, 1, 0, 1},
		Filename:         "luxout",
		WriteInterval:    60 * time.Second,
		RejectWarmup:     3,
		PremultiplyAlpha: true,
		Gamma:            2.2,
	}
}

// OptionsFromParams reads film options from a Film scene command
func OptionsFromParams(ps *paramset.ParamSet) Options {
	opts := DefaultOptions()
	opts.XResolution = ps.FindOneInt("xresolution", opts.XResolution)
	opts.YResolution = ps.FindOneInt("yresolution", opts.YResolution)
	if cr := ps.FindFloats("cropwindow"); len(cr) == 4 {
		opts.CropWindow = [4]float32{
			clamp01(math32.Min(cr[0], cr[1])),
			clamp01(math32.Max(cr[0], cr[1])),
			clamp01(math32.Min(cr[2], cr[3])),
			clamp01(math32.Max(cr[2], cr[3])),
		}
	}
	opts.Filename = ps.FindOneString("filename", opts.Filename)
	opts.WriteInterval = time.Duration(ps.FindOneInt("writeinterval", 60)) * time.Second
	opts.RejectWarmup = float32(ps.FindOneInt("reject_warmup", 3))
	opts.Debug = ps.FindOneBool("debug", false)
	opts.WriteResumeFLM = ps.FindOneBool("write_resume_flm", false)
	opts.WritePNG = ps.FindOneBool("write_png", false)
	opts.PremultiplyAlpha = ps.FindOneBool("premultiplyalpha", true)
	opts.Gamma = ps.FindOneFloat("gamma", opts.Gamma)
	return opts
}

func clamp01(v float32) float32 {
	return math32.Max(0, math32.Min(1, v))
}

// Sample is one radiance estimate at a continuous image position
type Sample struct {
	X, Y   float32
	XYZ    core.XYZ
	Alpha  float32
	Buffer int
	Group  int
}

// Stats are running counters of the film
type Stats struct {
	Accepted        uint64
	Rejected        uint64 // NaN, negative or infinite luminance
	Outliers        uint64 // above the warm-up maximum
	NumberOfSamples float64
	SamplesPerPixel float64
}

// Film is the per-render sample accumulator
type Film struct {
	opts   Options
	filter *filterTable
	logger log.Logger

	xStart, yStart int
	xCount, yCount int

	// mu guards configs, groups and the rejection state
	mu             sync.RWMutex
	configs        []BufferConfig
	groups         []*BufferGroup
	created        bool
	maxY           float32
	warmupSamples  float64
	warmupTarget   float64
	warmupComplete bool

	accepted atomic.Uint64
	rejected atomic.Uint64
	outliers atomic.Uint64

	writers   []ImageWriter
	writeMu   sync.Mutex
	lastWrite atomic.Int64
}

// New creates a film with the given options and reconstruction filter.
// Buffers must be requested and then created with CreateBuffers.
func New(opts Options, filter Filter) *Film {
	f := &Film{
		opts:   opts,
		filter: newFilterTable(filter),
		logger: log.New("film"),
	}
	f.xStart = int(math32.Ceil(float32(opts.XResolution) * opts.CropWindow[0]))
	f.xCount = max(1, int(math32.Ceil(float32(opts.XResolution)*opts.CropWindow[1]))-f.xStart)
	f.yStart = int(math32.Ceil(float32(opts.YResolution) * opts.CropWindow[2]))
	f.yCount = max(1, int(math32.Ceil(float32(opts.YResolution)*opts.CropWindow[3]))-f.yStart)
	// counted over the cropped buffer, not the full resolution
	f.warmupTarget = float64(f.xCount) * float64(f.yCount) * float64(opts.RejectWarmup)
	f.lastWrite.Store(time.Now().UnixNano())
	if opts.WritePNG {
		f.writers = append(f.writers, NewPNGWriter(opts.Filename, opts.Gamma))
	}
	return f
}

// Options returns the options the film was created with
func (f *Film) Options() Options {
	return f.opts
}

// Size returns the pixel dimensions of the crop window (the buffer size)
func (f *Film) Size() (width, height int) {
	return f.xCount, f.yCount
}

// SampleExtent returns the range of raster positions whose samples can
// contribute to the crop window
func (f *Film) SampleExtent() (xStart, xEnd, yStart, yEnd int) {
	xw, yw := f.filter.xWidth, f.filter.yWidth
	xStart = int(math32.Floor(float32(f.xStart) + 0.5 - xw))
	xEnd = int(math32.Floor(float32(f.xStart+f.xCount) + 0.5 + xw))
	yStart = int(math32.Floor(float32(f.yStart) + 0.5 - yw))
	yEnd = int(math32.Floor(float32(f.yStart+f.yCount) + 0.5 + yw))
	return
}

// AddWriter registers an additional image writer used by WriteImage
func (f *Film) AddWriter(w ImageWriter) {
	f.writeMu.Lock()
	defer f.writeMu.Unlock()
	f.writers = append(f.writers, w)
}

// RequestBuffer registers a buffer config and returns its index. Requests
// after CreateBuffers return -1.
func (f *Film) RequestBuffer(t BufferType, output BufferOutput, postfix string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.created {
		return -1
	}
	f.configs = append(f.configs, BufferConfig{Type: t, Output: output, Postfix: postfix})
	return len(f.configs) - 1
}

// RequestGroup registers a named buffer group and returns its index.
// Requests after CreateBuffers return -1.
func (f *Film) RequestGroup(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.created {
		return -1
	}
	f.groups = append(f.groups, NewBufferGroup(name))
	return len(f.groups) - 1
}

// CreateBuffers allocates every group's buffers. Without explicit requests a
// single default group with one per-pixel framebuffer is created. With
// WriteResumeFLM set, an existing <filename>.flm is merged in.
func (f *Film) CreateBuffers() error {
	f.mu.Lock()
	if f.created {
		f.mu.Unlock()
		return ErrBuffersCreated
	}
	if len(f.configs) == 0 {
		f.configs = append(f.configs, BufferConfig{Type: BufferPerPixel, Output: OutputFramebuffer})
	}
	if len(f.groups) == 0 {
		f.groups = append(f.groups, NewBufferGroup("default"))
	}
	for _, g := range f.groups {
		g.CreateBuffers(f.configs, f.xCount, f.yCount)
	}
	f.created = true
	f.mu.Unlock()

	if !f.opts.WriteResumeFLM {
		return nil
	}
	path := f.opts.Filename + ".flm"
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	f.logger.Infof("Reading film status from file %s", path)
	if _, err := f.LoadResumeFilm(path); err != nil {
		return fmt.Errorf("resume from %s: %w", path, err)
	}
	return nil
}

// AddSample validates, filters and accumulates one sample
func (f *Film) AddSample(s Sample) {
	y := s.XYZ.Luminance()
	if s.XYZ.IsNaN() || s.XYZ.IsInf() || y < -1e-5 || math32.IsInf(y, 0) ||
		math32.IsNaN(s.Alpha) || math32.IsInf(s.Alpha, 0) {
		f.rejected.Add(1)
		if f.opts.Debug {
			f.logger.Warningf("Out of bound intensity in AddSample: %v, sample discarded", y)
		}
		return
	}

	f.mu.Lock()
	if !f.created || s.Group < 0 || s.Group >= len(f.groups) || s.Buffer < 0 || s.Buffer >= len(f.configs) {
		f.mu.Unlock()
		f.rejected.Add(1)
		return
	}
	if !f.acceptLocked(y) {
		f.mu.Unlock()
		f.outliers.Add(1)
		return
	}
	group := f.groups[s.Group]
	if group.Enabled {
		f.splatLocked(group.Buffers[s.Buffer], s)
	}
	f.mu.Unlock()
	f.accepted.Add(1)

	f.maybeWrite()
}

// acceptLocked applies the warm-up maximum. The sample that completes the
// warm-up is itself accepted unchecked.
func (f *Film) acceptLocked(y float32) bool {
	if f.warmupComplete {
		return y <= f.maxY
	}
	if f.opts.Debug {
		f.maxY = math32.Inf(1)
		f.warmupComplete = true
	} else if f.warmupSamples < f.warmupTarget {
		if y > f.maxY {
			f.maxY = y
		}
		f.warmupSamples++
	} else {
		f.warmupComplete = true
	}
	return true
}

func (f *Film) splatLocked(b *Buffer, s Sample) {
	t := f.filter
	dx := s.X - 0.5
	dy := s.Y - 0.5
	x0 := max(int(math32.Ceil(dx-t.xWidth)), f.xStart)
	x1 := min(int(math32.Floor(dx+t.xWidth)), f.xStart+f.xCount-1)
	y0 := max(int(math32.Ceil(dy-t.yWidth)), f.yStart)
	y1 := min(int(math32.Floor(dy+t.yWidth)), f.yStart+f.yCount-1)
	if x1 < x0 || y1 < y0 {
		return
	}
	for y := y0; y <= y1; y++ {
		fy := math32.Abs(float32(y) - dy)
		for x := x0; x <= x1; x++ {
			w := t.weight(math32.Abs(float32(x)-dx), fy)
			b.Add(x-f.xStart, y-f.yStart, s.XYZ, s.Alpha, w)
		}
	}
}

// AddSampleCount adds n sample units to the default group
func (f *Film) AddSampleCount(n float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.groups) > 0 {
		f.groups[0].NumberOfSamples += n
	}
}

// NumberOfSamples returns the total sample count over all groups
func (f *Film) NumberOfSamples() float64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.numberOfSamplesLocked()
}

func (f *Film) numberOfSamplesLocked() float64 {
	var n float64
	for _, g := range f.groups {
		n += g.NumberOfSamples
	}
	return n
}

// SamplesPerPixel returns the total sample count divided by the pixel count
func (f *Film) SamplesPerPixel() float64 {
	return f.NumberOfSamples() / float64(f.xCount*f.yCount)
}

// Stats returns a copy of the running counters
func (f *Film) Stats() Stats {
	n := f.NumberOfSamples()
	return Stats{
		Accepted:        f.accepted.Load(),
		Rejected:        f.rejected.Load(),
		Outliers:        f.outliers.Load(),
		NumberOfSamples: n,
		SamplesPerPixel: n / float64(f.xCount*f.yCount),
	}
}

// SetGroupEnabled enables or disables accumulation and output of a group
func (f *Film) SetGroupEnabled(group int, enabled bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if group >= 0 && group < len(f.groups) {
		f.groups[group].Enabled = enabled
	}
}

// SetGroupScale sets the output scale of a group
func (f *Film) SetGroupScale(group int, scale float32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if group >= 0 && group < len(f.groups) {
		f.groups[group].Scale = scale
	}
}

// GetData returns the composited framebuffer value of buffer pixel (x, y):
// every enabled group's framebuffer buffers, normalized by type and scaled.
func (f *Film) GetData(x, y int) (core.XYZ, float32) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	var xyz core.XYZ
	var alpha float32
	for _, g := range f.groups {
		if !g.Enabled {
			continue
		}
		for i, cfg := range f.configs {
			if cfg.Output&OutputFramebuffer == 0 {
				continue
			}
			c, a := f.normalizedLocked(g, i, x, y)
			xyz = xyz.Add(c.Scale(g.Scale))
			alpha += a
		}
	}
	return xyz, alpha
}

func (f *Film) normalizedLocked(g *BufferGroup, buffer, x, y int) (core.XYZ, float32) {
	b := g.Buffers[buffer]
	switch f.configs[buffer].Type {
	case BufferPerScreen:
		if g.NumberOfSamples == 0 {
			return core.XYZ{}, 0
		}
		p := b.Pixels[y*b.Width+x]
		inv := float32(float64(f.xCount*f.yCount) / g.NumberOfSamples)
		return p.L.Scale(inv), p.Alpha * inv
	case BufferRaw:
		p := b.Pixels[y*b.Width+x]
		return p.L, p.Alpha
	default:
		return b.GetData(x, y)
	}
}

// Snapshot returns a deep copy of all groups taken under the read lock
func (f *Film) Snapshot() *Snapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.snapshotLocked()
}

func (f *Film) snapshotLocked() *Snapshot {
	s := &Snapshot{
		Types:  make([]BufferType, len(f.configs)),
		Groups: make([]*BufferGroup, len(f.groups)),
	}
	for i, c := range f.configs {
		s.Types[i] = c.Type
	}
	for i, g := range f.groups {
		s.Groups[i] = g.Clone()
	}
	return s
}

// maybeWrite runs the periodic output on the calling goroutine if the
// interval elapsed and no other write is in progress
func (f *Film) maybeWrite() {
	if f.opts.WriteInterval <= 0 {
		return
	}
	if time.Since(time.Unix(0, f.lastWrite.Load())) < f.opts.WriteInterval {
		return
	}
	if !f.writeMu.TryLock() {
		return
	}
	defer f.writeMu.Unlock()
	f.lastWrite.Store(time.Now().UnixNano())
	if err := f.writeImageLocked(); err != nil {
		f.logger.Errorf("Periodic film write failed: %v", err)
	}
}

// WriteImage writes the framebuffer and every standalone buffer through the
// registered writers, and the resume checkpoint if enabled
func (f *Film) WriteImage() error {
	f.writeMu.Lock()
	defer f.writeMu.Unlock()
	return f.writeImageLocked()
}

func (f *Film) writeImageLocked() error {
	var errs []error
	if f.opts.WriteResumeFLM {
		if err := f.WriteResumeFilm(f.opts.Filename + ".flm"); err != nil {
			f.logger.Criticalf("Cannot write resume film: %v", err)
			errs = append(errs, err)
		}
	}
	if len(f.writers) == 0 {
		return errors.Join(errs...)
	}
	for _, img := range f.images() {
		for _, w := range f.writers {
			if err := w.WriteImage(img); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// images renders the framebuffer composite plus one image per standalone
// buffer of each enabled group
func (f *Film) images() []*Image {
	f.mu.RLock()
	defer f.mu.RUnlock()

	frame := f.newImage("")
	var out []*Image
	for _, g := range f.groups {
		if !g.Enabled {
			continue
		}
		for i, cfg := range f.configs {
			var standalone *Image
			if cfg.Output&OutputStandalone != 0 {
				standalone = f.newImage(cfg.Postfix)
				out = append(out, standalone)
			}
			for y := 0; y < f.yCount; y++ {
				for x := 0; x < f.xCount; x++ {
					c, a := f.normalizedLocked(g, i, x, y)
					o := y*f.xCount + x
					if cfg.Output&OutputFramebuffer != 0 {
						frame.XYZ[o] = frame.XYZ[o].Add(c.Scale(g.Scale))
						frame.Alpha[o] += a
					}
					if standalone != nil {
						standalone.XYZ[o] = c
						standalone.Alpha[o] = a
					}
				}
			}
		}
	}
	return append([]*Image{frame}, out...)
}

func (f *Film) newImage(postfix string) *Image {
	n := f.xCount * f.yCount
	return &Image{
		Width:   f.xCount,
		Height:  f.yCount,
		XOffset: f.xStart,
		YOffset: f.yStart,
		Postfix: postfix,
		XYZ:     make([]core.XYZ, n),
		Alpha:   make([]float32, n),
	}
}

// Composite returns the current framebuffer composite
func (f *Film) Composite() *Image {
	return f.images()[0]
}
