package film

import (
	"bufio"
	"fmt"
	"io"

	"github.com/df07/go-render-farm/pkg/wire"
)

// Upper bounds applied while decoding a snapshot, before anything is
// allocated from peer-supplied counts.
const (
	maxGroups       = 1024
	maxConfigs      = 64
	maxBufferPixels = 1 << 26
	transmitLevel   = wire.BestSpeed
)

// Snapshot is a self-contained copy of a film's accumulated state. Only the
// sample counts and buffers of its groups are transmitted.
type Snapshot struct {
	Types  []BufferType
	Groups []*BufferGroup
}

// NumberOfSamples returns the sample count summed over groups
func (s *Snapshot) NumberOfSamples() float64 {
	var n float64
	for _, g := range s.Groups {
		n += g.NumberOfSamples
	}
	return n
}

// Encode writes the uncompressed little-endian snapshot layout
func (s *Snapshot) Encode(w io.Writer) error {
	bw := bufio.NewWriter(w)
	ww := wire.NewWriter(bw)
	ww.WriteInt32(int32(len(s.Groups)))
	ww.WriteInt32(int32(len(s.Types)))
	for _, t := range s.Types {
		ww.WriteInt32(int32(t))
	}
	for _, g := range s.Groups {
		ww.WriteFloat64(g.NumberOfSamples)
		for _, b := range g.Buffers {
			ww.WriteInt32(int32(b.Width))
			ww.WriteInt32(int32(b.Height))
			for i := range b.Pixels {
				p := &b.Pixels[i]
				ww.WriteFloat32(p.L.X)
				ww.WriteFloat32(p.L.Y)
				ww.WriteFloat32(p.L.Z)
				ww.WriteFloat32(p.Alpha)
				ww.WriteFloat32(p.WeightSum)
			}
		}
	}
	if err := ww.Err(); err != nil {
		return err
	}
	return bw.Flush()
}

// Layout is the shape a snapshot must have to be merged into a film
type Layout struct {
	Groups        int
	Types         []BufferType
	Width, Height int
}

func (l *Layout) checkCounts(groups, configs int) error {
	if groups != l.Groups {
		return fmt.Errorf("%w: got %d, have %d", ErrGroupMismatch, groups, l.Groups)
	}
	if configs != len(l.Types) {
		return fmt.Errorf("%w: got %d, have %d", ErrConfigMismatch, configs, len(l.Types))
	}
	return nil
}

func (l *Layout) checkType(i int, t BufferType) error {
	if t != l.Types[i] {
		return fmt.Errorf("%w: buffer %d is %v, have %v", ErrTypeMismatch, i, t, l.Types[i])
	}
	return nil
}

func (l *Layout) checkSize(w, h int) error {
	if w != l.Width || h != l.Height {
		return fmt.Errorf("%w: got %dx%d, have %dx%d", ErrResolutionMismatch, w, h, l.Width, l.Height)
	}
	return nil
}

// DecodeSnapshot reads the uncompressed snapshot layout
func DecodeSnapshot(r io.Reader) (*Snapshot, error) {
	return decodeSnapshot(r, nil)
}

// decodeSnapshot reads a snapshot. With a non-nil layout every count, type
// and resolution is checked as soon as it is read, so a mismatching peer
// never gets buffers allocated for it.
func decodeSnapshot(r io.Reader, layout *Layout) (*Snapshot, error) {
	rr := wire.NewReader(bufio.NewReader(r))
	groupCount := rr.ReadInt32()
	configCount := rr.ReadInt32()
	if err := rr.Err(); err != nil {
		return nil, err
	}
	if groupCount < 0 || groupCount > maxGroups || configCount < 0 || configCount > maxConfigs {
		return nil, fmt.Errorf("%w: %d groups, %d buffers", wire.ErrCorrupt, groupCount, configCount)
	}
	if layout != nil {
		if err := layout.checkCounts(int(groupCount), int(configCount)); err != nil {
			return nil, err
		}
	}

	s := &Snapshot{
		Types:  make([]BufferType, configCount),
		Groups: make([]*BufferGroup, groupCount),
	}
	for i := range s.Types {
		s.Types[i] = BufferType(rr.ReadInt32())
		if err := rr.Err(); err != nil {
			return nil, err
		}
		if layout != nil {
			if err := layout.checkType(i, s.Types[i]); err != nil {
				return nil, err
			}
		}
	}
	for gi := range s.Groups {
		g := NewBufferGroup("")
		g.NumberOfSamples = rr.ReadFloat64()
		g.Buffers = make([]*Buffer, configCount)
		for bi := range g.Buffers {
			w, h := int(rr.ReadInt32()), int(rr.ReadInt32())
			if err := rr.Err(); err != nil {
				return nil, err
			}
			if w <= 0 || h <= 0 || w*h > maxBufferPixels {
				return nil, fmt.Errorf("%w: buffer %dx%d", wire.ErrCorrupt, w, h)
			}
			if layout != nil {
				if err := layout.checkSize(w, h); err != nil {
					return nil, err
				}
			}
			b := NewBuffer(w, h)
			for i := range b.Pixels {
				p := &b.Pixels[i]
				p.L.X = rr.ReadFloat32()
				p.L.Y = rr.ReadFloat32()
				p.L.Z = rr.ReadFloat32()
				p.Alpha = rr.ReadFloat32()
				p.WeightSum = rr.ReadFloat32()
			}
			if err := rr.Err(); err != nil {
				return nil, err
			}
			g.Buffers[bi] = b
		}
		s.Groups[gi] = g
	}
	if err := rr.Err(); err != nil {
		return nil, err
	}
	return s, nil
}

// WriteSnapshot writes the gzip-compressed snapshot
func WriteSnapshot(w io.Writer, s *Snapshot) error {
	zw, err := wire.Compress(w, transmitLevel)
	if err != nil {
		return err
	}
	if err := s.Encode(zw); err != nil {
		zw.Close()
		return err
	}
	return zw.Close()
}

// ReadSnapshot reads a gzip-compressed snapshot. The stream is consumed to
// its end so a truncated or corrupted stream is always reported.
func ReadSnapshot(r io.Reader) (*Snapshot, error) {
	return readSnapshot(r, nil)
}

func readSnapshot(r io.Reader, layout *Layout) (*Snapshot, error) {
	zr, err := wire.Decompress(r)
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	s, err := decodeSnapshot(zr, layout)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(io.Discard, zr); err != nil {
		return nil, err
	}
	return s, nil
}

// TransmitFilm writes a compressed snapshot of the film to w. With clear set
// the film is reset in the same critical section the snapshot is taken in;
// if the write then fails the snapshot is merged back so no samples are lost.
func (f *Film) TransmitFilm(w io.Writer, clear bool) error {
	var snap *Snapshot
	if clear {
		f.mu.Lock()
		if !f.created {
			f.mu.Unlock()
			return ErrBuffersNotCreated
		}
		snap = f.snapshotLocked()
		for _, g := range f.groups {
			g.Clear()
		}
		f.mu.Unlock()
	} else {
		f.mu.RLock()
		if !f.created {
			f.mu.RUnlock()
			return ErrBuffersNotCreated
		}
		snap = f.snapshotLocked()
		f.mu.RUnlock()
	}

	f.logger.Infof("Transferring %d pixels (%.0f samples)", f.xCount*f.yCount, snap.NumberOfSamples())
	if err := WriteSnapshot(w, snap); err != nil {
		if clear {
			if _, rerr := f.MergeSnapshot(snap); rerr != nil {
				f.logger.Errorf("Cannot restore film after failed transmit: %v", rerr)
			}
		}
		return fmt.Errorf("transmit film: %w", err)
	}
	return nil
}

// UpdateFilm reads a compressed snapshot from r and merges it into the film.
// The snapshot is fully read and validated before the film is touched; on
// any error the film is unchanged. It returns the merged sample count.
func (f *Film) UpdateFilm(r io.Reader) (float64, error) {
	layout, err := f.Layout()
	if err != nil {
		return 0, err
	}
	snap, err := readSnapshot(r, layout)
	if err != nil {
		f.logger.Errorf("Error while reading samples: %v", err)
		return 0, err
	}
	n, err := f.MergeSnapshot(snap)
	if err != nil {
		f.logger.Errorf("Rejected film update: %v", err)
		return 0, err
	}
	f.logger.Infof("Received %.0f samples", n)
	return n, nil
}

// MergeSnapshot validates s against the film layout and adds it
func (f *Film) MergeSnapshot(s *Snapshot) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.validateLocked(s); err != nil {
		return 0, err
	}
	for i, g := range f.groups {
		_ = g.Merge(s.Groups[i])
	}
	return s.NumberOfSamples(), nil
}

// Layout returns the shape snapshots merged into the film must have
func (f *Film) Layout() (*Layout, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if !f.created {
		return nil, ErrBuffersNotCreated
	}
	return f.layoutLocked(), nil
}

func (f *Film) layoutLocked() *Layout {
	l := &Layout{Groups: len(f.groups), Width: f.xCount, Height: f.yCount}
	for _, c := range f.configs {
		l.Types = append(l.Types, c.Type)
	}
	return l
}

func (f *Film) validateLocked(s *Snapshot) error {
	if !f.created {
		return ErrBuffersNotCreated
	}
	l := f.layoutLocked()
	if err := l.checkCounts(len(s.Groups), len(s.Types)); err != nil {
		return err
	}
	for i, t := range s.Types {
		if err := l.checkType(i, t); err != nil {
			return err
		}
	}
	for _, g := range s.Groups {
		if len(g.Buffers) != len(l.Types) {
			return fmt.Errorf("%w: group has %d buffers", ErrConfigMismatch, len(g.Buffers))
		}
		for _, b := range g.Buffers {
			if err := l.checkSize(b.Width, b.Height); err != nil {
				return err
			}
		}
	}
	return nil
}
