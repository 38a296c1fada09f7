package gguf

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/ggufrt/internal/errdefs"
)

func TestParseHeader(t *testing.T) {
	file, err := Parse(newTestReader(t, createTestGGUF(t)))
	require.NoError(t, err)

	assert.Equal(t, Version3, file.Header.Version)
	assert.Equal(t, uint64(1), file.Header.TensorCount)
	assert.Equal(t, uint64(2), file.Header.MetadataCount)
}

func TestParseMetadata(t *testing.T) {
	file, err := Parse(newTestReader(t, createTestGGUF(t)))
	require.NoError(t, err)

	assert.Equal(t, []string{KeyArchitecture, "llama.context_length"}, file.Keys())
	assert.Equal(t, "llama", file.Architecture())
	assert.Equal(t, 4096, file.ContextLength())

	v, ok := file.Lookup("llama.context_length")
	require.True(t, ok)
	assert.Equal(t, ValueTypeUint32, v.Type())

	_, ok = file.Lookup("missing")
	assert.False(t, ok)
}

func TestParseTensorInfo(t *testing.T) {
	data := createTestGGUF(t)
	file, err := Parse(newTestReader(t, data))
	require.NoError(t, err)

	require.Len(t, file.Tensors, 1)
	info, ok := file.Tensor("test.weight")
	require.True(t, ok)
	assert.Equal(t, []uint64{16, 32}, info.Dimensions)
	assert.Equal(t, 2, info.NDims())
	assert.Equal(t, KindF32, info.Kind)
	assert.Equal(t, uint64(512), info.NumElements())

	size, ok := info.Size()
	require.True(t, ok)
	assert.Equal(t, uint64(2048), size)

	assert.Equal(t, int64(0), file.DataOffset%DefaultAlignment)
	assert.GreaterOrEqual(t, file.DataOffset, int64(len(data)))
	assert.Less(t, file.DataOffset, int64(len(data))+DefaultAlignment)
}

func TestParseInvalidMagic(t *testing.T) {
	data := createTestGGUF(t)
	copy(data, "GGUG")

	_, err := Parse(newTestReader(t, data))
	assert.ErrorIs(t, err, ErrInvalidMagic)
	assert.ErrorIs(t, err, errdefs.ErrFormat)
}

func TestParseUnsupportedVersion(t *testing.T) {
	data := createTestGGUF(t)
	copy(data[4:], le(t, uint32(1)))

	_, err := Parse(newTestReader(t, data))
	assert.ErrorIs(t, err, ErrUnsupportedVersion)
}

func TestParseTruncated(t *testing.T) {
	data := createTestGGUF(t)

	for cut := range len(data) {
		file, err := Parse(newTestReader(t, data[:cut]))
		require.Error(t, err, "cut at %d", cut)
		assert.Nil(t, file)
		cat := errdefs.Category(err)
		assert.True(t, cat == errdefs.ErrIO || cat == errdefs.ErrFormat, "cut at %d: %v", cut, err)
	}
}

func TestParseDuplicateKey(t *testing.T) {
	buf := new(bytes.Buffer)
	buf.WriteString(Magic)
	buf.Write(le(t, Version3, uint64(0), uint64(2)))
	for range 2 {
		writeTestString(buf, "general.name")
		buf.Write(le(t, uint32(ValueTypeString)))
		writeTestString(buf, "x")
	}

	_, err := Parse(newTestReader(t, buf.Bytes()))
	assert.ErrorIs(t, err, ErrDuplicateKey)
}

func TestParseDuplicateTensor(t *testing.T) {
	w := NewWriter()
	w.AddF32("w", []uint64{1}, []float32{1})
	w.AddF32("w", []uint64{1}, []float32{2})

	var buf bytes.Buffer
	_, err := w.WriteTo(&buf)
	require.NoError(t, err)

	_, err = Parse(newTestReader(t, buf.Bytes()))
	assert.ErrorIs(t, err, ErrDuplicateTensor)
}

func TestParseTooManyDims(t *testing.T) {
	buf := new(bytes.Buffer)
	buf.WriteString(Magic)
	buf.Write(le(t, Version3, uint64(1), uint64(0)))
	writeTestString(buf, "deep")
	buf.Write(le(t, uint32(MaxDims+1)))
	buf.Write(make([]byte, 8*(MaxDims+1)+12))

	_, err := Parse(newTestReader(t, buf.Bytes()))
	assert.ErrorIs(t, err, ErrTooManyDims)
}

func TestParseElementCountOverflow(t *testing.T) {
	tests := []struct {
		name string
		dims []uint64
	}{
		{"two dims", []uint64{1 << 32, 1 << 32}},
		{"three dims", []uint64{1 << 20, 1 << 22, 1 << 22}},
		{"max times two", []uint64{math.MaxUint64, 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := new(bytes.Buffer)
			buf.WriteString(Magic)
			buf.Write(le(t, Version3, uint64(1), uint64(0)))
			writeTestString(buf, "huge")
			buf.Write(le(t, uint32(len(tt.dims))))
			buf.Write(le(t, tt.dims))
			buf.Write(le(t, uint32(KindF32), uint64(0)))

			_, err := Parse(newTestReader(t, buf.Bytes()))
			assert.ErrorIs(t, err, ErrElementOverflow)
			assert.ErrorIs(t, err, errdefs.ErrFormat)
		})
	}
}

func TestParseElementCountZeroDim(t *testing.T) {
	buf := new(bytes.Buffer)
	buf.WriteString(Magic)
	buf.Write(le(t, Version3, uint64(1), uint64(0)))
	writeTestString(buf, "empty")
	buf.Write(le(t, uint32(3), uint64(0), uint64(math.MaxUint64), uint64(2)))
	buf.Write(le(t, uint32(KindF32), uint64(0)))

	file, err := Parse(newTestReader(t, buf.Bytes()))
	require.NoError(t, err)
	assert.Zero(t, file.Tensors[0].NumElements())
}

func TestParseAlignment(t *testing.T) {
	w := NewWriter()
	w.SetMetadata(KeyAlignment, Uint32Value(64))
	w.AddF32("a", []uint64{3}, []float32{1, 2, 3})
	w.AddF32("b", []uint64{2}, []float32{4, 5})

	_, file, _ := buildFile(t, w)
	assert.Equal(t, uint64(64), file.Alignment)
	assert.Equal(t, int64(0), file.DataOffset%64)

	b, ok := file.Tensor("b")
	require.True(t, ok)
	assert.Equal(t, uint64(64), b.Offset)
}

func TestParseBadAlignment(t *testing.T) {
	tests := []struct {
		name  string
		value Value
	}{
		{"not a power of two", Uint32Value(48)},
		{"zero", Uint32Value(0)},
		{"above bound", Uint64Value(MaxAlignment << 1)},
		{"top bit", Uint64Value(1 << 63)},
		{"wrong type", StringValue("32")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := new(bytes.Buffer)
			buf.WriteString(Magic)
			buf.Write(le(t, Version3, uint64(0), uint64(1)))
			writeTestString(buf, KeyAlignment)
			buf.Write(le(t, uint32(tt.value.Type())))
			buf.Write(encodeTestValue(t, tt.value))

			_, err := Parse(newTestReader(t, buf.Bytes()))
			assert.ErrorIs(t, err, ErrBadAlignment)
		})
	}
}

func TestParseMaxAlignment(t *testing.T) {
	w := NewWriter()
	w.SetMetadata(KeyAlignment, Uint32Value(MaxAlignment))
	w.AddF32("a", []uint64{2}, []float32{1, 2})

	_, file, _ := buildFile(t, w)
	assert.Equal(t, uint64(MaxAlignment), file.Alignment)
	assert.Equal(t, int64(0), file.DataOffset%MaxAlignment)
}

func TestFileHyperParameters(t *testing.T) {
	w := NewWriter()
	w.SetMetadata(KeyArchitecture, StringValue("llama"))
	w.SetMetadata(KeyName, StringValue("tiny"))
	w.SetMetadata("llama.block_count", Uint32Value(2))
	w.SetMetadata("llama.embedding_length", Uint32Value(64))
	w.SetMetadata("llama.feed_forward_length", Uint64Value(128))
	w.SetMetadata("llama.attention.head_count", Uint32Value(4))
	w.SetMetadata("llama.rope.freq_base", Float32Value(500000))
	w.SetMetadata("llama.attention.layer_norm_rms_epsilon", Float32Value(1e-6))

	_, file, _ := buildFile(t, w)
	assert.Equal(t, "tiny", file.Name())
	assert.Equal(t, 2, file.BlockCount())
	assert.Equal(t, 64, file.EmbeddingLength())
	assert.Equal(t, 128, file.FeedForwardLength())
	assert.Equal(t, 4, file.HeadCount())
	assert.Equal(t, 4, file.HeadCountKV(), "defaults to head count")
	assert.Equal(t, 0, file.RopeDimensionCount())
	assert.Equal(t, float32(500000), file.RopeFreqBase())
	assert.Equal(t, float32(1e-6), file.RMSEpsilon())
}

func TestFileUintAcceptsSignedValues(t *testing.T) {
	w := NewWriter()
	w.SetMetadata(KeyArchitecture, StringValue("llama"))
	w.SetMetadata("llama.block_count", Int32Value(22))
	w.SetMetadata("llama.context_length", Int64Value(2048))
	w.SetMetadata("llama.embedding_length", Int32Value(-1))
	w.SetMetadata(KeyEOS, Int32Value(2))

	_, file, _ := buildFile(t, w)
	assert.Equal(t, 22, file.BlockCount())
	assert.Equal(t, 2048, file.ContextLength())
	assert.Equal(t, 0, file.EmbeddingLength(), "negative values are rejected")

	eos, ok := file.Uint(KeyEOS)
	require.True(t, ok)
	assert.Equal(t, uint64(2), eos)

	_, ok = file.Uint(KeyArchitecture)
	assert.False(t, ok)
}

func TestParseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.gguf")
	data := createTestGGUF(t)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	file, err := ParseFile(path)
	require.NoError(t, err)
	assert.Equal(t, path, file.FilePath)
	assert.Equal(t, int64(len(data)), file.FileSize)

	_, err = ParseFile(filepath.Join(t.TempDir(), "missing.gguf"))
	assert.ErrorIs(t, err, errdefs.ErrIO)
}
