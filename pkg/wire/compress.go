package wire

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
)

// Compression levels accepted by Compress.
const (
	BestSpeed          = gzip.BestSpeed
	BestCompression    = gzip.BestCompression
	DefaultCompression = gzip.DefaultCompression
)

// Compress wraps w with a gzip writer. The caller must Close the returned
// writer to flush the trailer; closing does not close w.
func Compress(w io.Writer, level int) (io.WriteCloser, error) {
	return gzip.NewWriterLevel(w, level)
}

// Decompress wraps r with a gzip reader whose failures surface as ErrCorrupt.
// The stream must be consumed to the end for the checksum to be verified.
func Decompress(r io.Reader) (io.ReadCloser, error) {
	zr, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return &strictReader{zr: zr}, nil
}

type strictReader struct {
	zr *gzip.Reader
}

func (s *strictReader) Read(p []byte) (int, error) {
	n, err := s.zr.Read(p)
	if err != nil && !errors.Is(err, io.EOF) {
		return n, corruptError(err)
	}
	return n, err
}

func (s *strictReader) Close() error {
	return s.zr.Close()
}

func corruptError(err error) error {
	if errors.Is(err, ErrCorrupt) {
		return err
	}
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, gzip.ErrChecksum) || errors.Is(err, gzip.ErrHeader) {
		return fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return err
}

// CompressBytes gzips data in memory
func CompressBytes(data []byte, level int) ([]byte, error) {
	var buf bytes.Buffer
	zw, err := Compress(&buf, level)
	if err != nil {
		return nil, err
	}
	if _, err := zw.Write(data); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecompressBytes inflates a complete gzip stream held in memory
func DecompressBytes(data []byte) ([]byte, error) {
	zr, err := Decompress(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// WriteBlock writes a uint32 length prefix followed by the gzip-compressed
// payload.
func WriteBlock(w io.Writer, payload []byte) error {
	compressed, err := CompressBytes(payload, BestCompression)
	if err != nil {
		return err
	}
	pw := NewWriter(w)
	pw.WriteUint32(uint32(len(compressed)))
	if err := pw.Err(); err != nil {
		return err
	}
	_, err = w.Write(compressed)
	return err
}

// ReadBlock reads a block written by WriteBlock. Compressed sizes above
// maxSize are rejected without reading the payload.
func ReadBlock(r io.Reader, maxSize uint32) ([]byte, error) {
	pr := NewReader(r)
	size := pr.ReadUint32()
	if err := pr.Err(); err != nil {
		return nil, err
	}
	if maxSize > 0 && size > maxSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrTooLarge, size)
	}

	compressed := make([]byte, size)
	if _, err := io.ReadFull(r, compressed); err != nil {
		return nil, dataError(err)
	}
	return DecompressBytes(compressed)
}
