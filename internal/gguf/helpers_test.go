package gguf

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

// le encodes fixed-size values little-endian.
func le(t *testing.T, vals ...any) []byte {
	t.Helper()
	buf := new(bytes.Buffer)
	for _, v := range vals {
		require.NoError(t, binary.Write(buf, binary.LittleEndian, v))
	}
	return buf.Bytes()
}

func writeTestString(buf *bytes.Buffer, s string) {
	_ = binary.Write(buf, binary.LittleEndian, uint64(len(s)))
	_, _ = buf.WriteString(s)
}

// encodeTestValue returns the wire encoding of v without its type code.
func encodeTestValue(t *testing.T, v Value) []byte {
	t.Helper()
	var buf bytes.Buffer
	cw := &countingWriter{w: bufio.NewWriter(&buf)}
	cw.value(v)
	require.NoError(t, cw.err)
	require.NoError(t, cw.w.Flush())
	return buf.Bytes()
}

func newTestReader(t *testing.T, b []byte) *Reader {
	t.Helper()
	r, err := NewReader(bytes.NewReader(b), 16)
	require.NoError(t, err)
	return r
}

// createTestGGUF hand-assembles a container with two metadata entries and one
// F32 tensor descriptor, without any payload.
func createTestGGUF(t *testing.T) []byte {
	t.Helper()
	buf := new(bytes.Buffer)
	buf.WriteString(Magic)
	buf.Write(le(t, Version3, uint64(1), uint64(2)))

	writeTestString(buf, KeyArchitecture)
	buf.Write(le(t, uint32(ValueTypeString)))
	writeTestString(buf, "llama")

	writeTestString(buf, "llama.context_length")
	buf.Write(le(t, uint32(ValueTypeUint32), uint32(4096)))

	writeTestString(buf, "test.weight")
	buf.Write(le(t, uint32(2), uint64(16), uint64(32), uint32(KindF32), uint64(0)))

	return buf.Bytes()
}

// buildFile serializes w and parses the result back.
func buildFile(t *testing.T, w *Writer) ([]byte, *File, *Reader) {
	t.Helper()
	var buf bytes.Buffer
	_, err := w.WriteTo(&buf)
	require.NoError(t, err)

	r := newTestReader(t, buf.Bytes())
	f, err := Parse(r)
	require.NoError(t, err)
	return buf.Bytes(), f, r
}

func testSuperblock() Superblock {
	sb := Superblock{D: 0.5, DMin: -0.25}
	for j := range 8 {
		sb.Scales[j] = uint8(j + 1)
		sb.Mins[j] = uint8(j * 7)
	}
	for i := range sb.Quants {
		sb.Quants[i] = uint8(i % 64)
	}
	return sb
}
