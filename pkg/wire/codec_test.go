package wire

import (
	"bufio"
	"bytes"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrimitivesAreLittleEndian(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	w.WriteInt32(-2)
	w.WriteUint32(0x01020304)
	w.WriteFloat32(1.0)
	w.WriteFloat64(-0.5)
	require.NoError(t, w.Err())
	assert.Equal(t, int64(20), w.Written())

	expected := []byte{
		0xfe, 0xff, 0xff, 0xff, // -2
		0x04, 0x03, 0x02, 0x01, // 0x01020304
		0x00, 0x00, 0x80, 0x3f, // 1.0f
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0xe0, 0xbf, // -0.5
	}
	assert.Equal(t, expected, buf.Bytes())

	r := NewReader(bytes.NewReader(buf.Bytes()))
	assert.Equal(t, int32(-2), r.ReadInt32())
	assert.Equal(t, uint32(0x01020304), r.ReadUint32())
	assert.Equal(t, float32(1.0), r.ReadFloat32())
	assert.Equal(t, -0.5, r.ReadFloat64())
	require.NoError(t, r.Err())
}

func TestReaderShortReadIsCorrupt(t *testing.T) {
	r := NewReader(bytes.NewReader([]byte{1, 2}))
	_ = r.ReadInt32()
	require.Error(t, r.Err())
	assert.True(t, errors.Is(r.Err(), ErrCorrupt))

	// Sticky: later reads keep the first error and return zero.
	assert.Equal(t, 0.0, r.ReadFloat64())
	assert.True(t, errors.Is(r.Err(), ErrCorrupt))
}

func TestFloatSpecialValuesSurvive(t *testing.T) {
	values := []float32{0, float32(math.Inf(1)), -1e-30, math.MaxFloat32}
	var buf bytes.Buffer
	w := NewWriter(&buf)
	for _, v := range values {
		w.WriteFloat32(v)
	}
	r := NewReader(&buf)
	for _, v := range values {
		assert.Equal(t, v, r.ReadFloat32())
	}
}

func TestBlockRoundTrip(t *testing.T) {
	payload := []byte(strings.Repeat("param ", 200))
	var buf bytes.Buffer
	require.NoError(t, WriteBlock(&buf, payload))
	assert.Less(t, buf.Len(), len(payload), "block should be compressed")

	got, err := ReadBlock(&buf, 0)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestBlockSizeLimit(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteBlock(&buf, []byte("hello")))

	_, err := ReadBlock(&buf, 4)
	assert.True(t, errors.Is(err, ErrTooLarge))
}

func TestTruncatedCompressedStreamIsDataError(t *testing.T) {
	data, err := CompressBytes(bytes.Repeat([]byte{7}, 4096), BestCompression)
	require.NoError(t, err)

	_, err = DecompressBytes(data[:len(data)-6])
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCorrupt), "got %v", err)

	_, err = DecompressBytes([]byte("not gzip at all"))
	assert.True(t, errors.Is(err, ErrCorrupt), "got %v", err)
}

func TestReadLine(t *testing.T) {
	r := bufio.NewReader(strings.NewReader("ServerConnect\r\nluxGetFilm\nlast"))

	tests := []string{"ServerConnect", "luxGetFilm", "last"}
	for _, expected := range tests {
		line, err := ReadLine(r)
		require.NoError(t, err)
		assert.Equal(t, expected, line)
	}
	_, err := ReadLine(r)
	assert.Error(t, err)
}

func TestFileRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
	}{
		{"empty", nil},
		{"text", []byte("texture data")},
		{"contains sentinel", []byte("x\n" + EndOfFile + "\ny")},
		{"binary", []byte{0, 1, 2, '\n', 255}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, WriteFile(&buf, tt.payload))
			require.NoError(t, WriteLine(&buf, "luxWorldEnd"))

			r := bufio.NewReader(&buf)
			var out bytes.Buffer
			n, err := ReadFile(r, &out)
			require.NoError(t, err)
			assert.Equal(t, int64(len(tt.payload)), n)
			assert.Equal(t, string(tt.payload), out.String())

			next, err := ReadLine(r)
			require.NoError(t, err)
			assert.Equal(t, "luxWorldEnd", next, "stream must stay aligned after the file")
		})
	}
}

func TestFileMissingSentinel(t *testing.T) {
	r := bufio.NewReader(strings.NewReader("3\nabc\nNOPE\n"))
	_, err := ReadFile(r, &bytes.Buffer{})
	assert.True(t, errors.Is(err, ErrMissingSentinel))
}

func TestFloatLine(t *testing.T) {
	v := []float32{0, 1, -2.5, 0.1, 1e-7, 3.4e38}
	line := FormatFloats(v)
	assert.Equal(t, "0 1 -2.5 0.1 1e-07 3.4e+38", line)

	parsed, err := ParseFloats(line)
	require.NoError(t, err)
	assert.Equal(t, v, parsed)

	_, err = ParseFloats("1 two 3")
	assert.Error(t, err)

	empty, err := ParseFloats("")
	require.NoError(t, err)
	assert.Empty(t, empty)
}
