package wire

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// EndOfFile is the sentinel line terminating a transferred file.
const EndOfFile = "LUX_END_FILE"

// ErrMissingSentinel is returned when a file payload is not followed by the
// EndOfFile line.
var ErrMissingSentinel = errors.New("wire: missing " + EndOfFile + " sentinel")

// ReadLine reads one newline-terminated line, stripping "\n" or "\r\n". A
// final line without a newline is returned with a nil error; io.EOF is only
// returned when nothing was read.
func ReadLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && line != "" {
			return strings.TrimRight(line, "\r"), nil
		}
		return "", err
	}
	return strings.TrimRight(line[:len(line)-1], "\r"), nil
}

// WriteLine writes s followed by a newline
func WriteLine(w io.Writer, s string) error {
	_, err := io.WriteString(w, s+"\n")
	return err
}

// WriteFile writes a file payload: its decimal length on one line, the raw
// bytes, a newline and the EndOfFile sentinel line.
func WriteFile(w io.Writer, data []byte) error {
	if _, err := fmt.Fprintf(w, "%d\n", len(data)); err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\n"+EndOfFile+"\n")
	return err
}

// ReadFile reads a payload written by WriteFile into dst and returns the
// number of bytes copied.
func ReadFile(r *bufio.Reader, dst io.Writer) (int64, error) {
	line, err := ReadLine(r)
	if err != nil {
		return 0, dataError(err)
	}
	size, err := strconv.ParseInt(strings.TrimSpace(line), 10, 64)
	if err != nil || size < 0 {
		return 0, fmt.Errorf("%w: bad file length %q", ErrCorrupt, line)
	}

	n, err := io.CopyN(dst, r, size)
	if err != nil {
		return n, dataError(err)
	}

	// Newline closing the payload, then the sentinel.
	if _, err := ReadLine(r); err != nil {
		return n, dataError(err)
	}
	sentinel, err := ReadLine(r)
	if err != nil {
		return n, dataError(err)
	}
	if sentinel != EndOfFile {
		return n, ErrMissingSentinel
	}
	return n, nil
}

// FormatFloats joins v with single spaces using the shortest float32 form
func FormatFloats(v []float32) string {
	var b strings.Builder
	for i, f := range v {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(strconv.FormatFloat(float64(f), 'g', -1, 32))
	}
	return b.String()
}

// ParseFloats parses a line written by FormatFloats
func ParseFloats(s string) ([]float32, error) {
	fields := strings.Fields(s)
	out := make([]float32, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 32)
		if err != nil {
			return nil, err
		}
		out[i] = float32(v)
	}
	return out, nil
}
