// Package wire implements the byte-level encoding shared by the render farm
// protocol and the film checkpoint format: little-endian primitives, a gzip
// stream layer, length-prefixed compressed blocks and the line/file framing
// used by the command stream.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

var (
	ErrCorrupt  = errors.New("wire: corrupt or truncated data")
	ErrTooLarge = errors.New("wire: block exceeds size limit")
)

// Writer writes little-endian primitives. The first write error sticks: later
// writes become no-ops and the error is reported by Err.
type Writer struct {
	w   io.Writer
	buf [8]byte
	n   int64
	err error
}

// NewWriter creates a primitive writer on top of w
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

func (w *Writer) write(b []byte) {
	if w.err != nil {
		return
	}
	n, err := w.w.Write(b)
	w.n += int64(n)
	w.err = err
}

// WriteInt32 writes a little-endian int32
func (w *Writer) WriteInt32(v int32) {
	binary.LittleEndian.PutUint32(w.buf[:4], uint32(v))
	w.write(w.buf[:4])
}

// WriteUint32 writes a little-endian uint32
func (w *Writer) WriteUint32(v uint32) {
	binary.LittleEndian.PutUint32(w.buf[:4], v)
	w.write(w.buf[:4])
}

// WriteFloat32 writes a little-endian IEEE-754 float32
func (w *Writer) WriteFloat32(v float32) {
	binary.LittleEndian.PutUint32(w.buf[:4], math.Float32bits(v))
	w.write(w.buf[:4])
}

// WriteFloat64 writes a little-endian IEEE-754 float64
func (w *Writer) WriteFloat64(v float64) {
	binary.LittleEndian.PutUint64(w.buf[:8], math.Float64bits(v))
	w.write(w.buf[:8])
}

// Written returns the number of bytes written so far
func (w *Writer) Written() int64 {
	return w.n
}

// Err returns the first error encountered
func (w *Writer) Err() error {
	return w.err
}

// Reader reads little-endian primitives with the same sticky-error
// behaviour as Writer. A short read is reported as ErrCorrupt.
type Reader struct {
	r   io.Reader
	buf [8]byte
	err error
}

// NewReader creates a primitive reader on top of r
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

func (r *Reader) read(n int) []byte {
	if r.err != nil {
		return nil
	}
	if _, err := io.ReadFull(r.r, r.buf[:n]); err != nil {
		r.err = dataError(err)
		return nil
	}
	return r.buf[:n]
}

// ReadInt32 reads a little-endian int32
func (r *Reader) ReadInt32() int32 {
	b := r.read(4)
	if b == nil {
		return 0
	}
	return int32(binary.LittleEndian.Uint32(b))
}

// ReadUint32 reads a little-endian uint32
func (r *Reader) ReadUint32() uint32 {
	b := r.read(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

// ReadFloat32 reads a little-endian float32
func (r *Reader) ReadFloat32() float32 {
	b := r.read(4)
	if b == nil {
		return 0
	}
	return math.Float32frombits(binary.LittleEndian.Uint32(b))
}

// ReadFloat64 reads a little-endian float64
func (r *Reader) ReadFloat64() float64 {
	b := r.read(8)
	if b == nil {
		return 0
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(b))
}

// Err returns the first error encountered
func (r *Reader) Err() error {
	return r.err
}

// dataError maps premature end of stream to ErrCorrupt and keeps the cause.
func dataError(err error) error {
	if errors.Is(err, ErrCorrupt) {
		return err
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: %v", ErrCorrupt, io.ErrUnexpectedEOF)
	}
	return err
}
