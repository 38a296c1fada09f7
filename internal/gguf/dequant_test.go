package gguf

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/ggufrt/internal/errdefs"
)

func TestUnpackNibbles(t *testing.T) {
	lo, hi := UnpackNibbles(0x3A)
	assert.Equal(t, uint8(10), lo)
	assert.Equal(t, uint8(3), hi)

	lo, hi = UnpackNibbles(0xF0)
	assert.Equal(t, uint8(0), lo)
	assert.Equal(t, uint8(15), hi)
}

func TestUnpack6(t *testing.T) {
	assert.Equal(t, [4]uint8{63, 63, 63, 63}, Unpack6(0xFF, 0xFF, 0xFF))
	assert.Equal(t, [4]uint8{0, 0, 0, 0}, Unpack6(0, 0, 0))

	// Every code survives a pack/unpack cycle in every lane.
	for v := range uint8(64) {
		sb := Superblock{}
		for i := range 4 {
			sb.Quants[i] = v
		}
		raw := sb.AppendQ6K(nil)
		qs := raw[4+scaleBytes:]
		assert.Equal(t, [4]uint8{v, v, v, v}, Unpack6(qs[0], qs[1], qs[2]), "code %d", v)
	}
}

func TestScaleMinK4RoundTrip(t *testing.T) {
	sc := [8]uint8{0, 1, 17, 63, 32, 48, 5, 62}
	m := [8]uint8{63, 2, 0, 31, 16, 33, 60, 1}
	packed := packScaleMinK4(sc, m)

	for j := range 8 {
		gotSc, gotM := scaleMinK4(j, packed[:])
		assert.Equal(t, sc[j], gotSc, "scale %d", j)
		assert.Equal(t, m[j], gotM, "min %d", j)
	}
}

func TestScaleMinK4Vector(t *testing.T) {
	// Sub-blocks 4-7 take their low four bits from bytes 8-11 and their top
	// two bits from bits 6-7 of bytes 0-7.
	q := []byte{0x41, 0x82, 0xC3, 0x04, 0x45, 0x86, 0xC7, 0x08, 0x9A, 0x2B, 0xF0, 0x5E}
	wantSc := [8]uint8{1, 2, 3, 4, 26, 43, 48, 14}
	wantM := [8]uint8{5, 6, 7, 8, 25, 34, 63, 5}

	for j := range 8 {
		sc, m := scaleMinK4(j, q)
		assert.Equal(t, wantSc[j], sc, "scale %d", j)
		assert.Equal(t, wantM[j], m, "min %d", j)
	}

	packed := packScaleMinK4(wantSc, wantM)
	assert.Equal(t, q, packed[:])
}

func decodeRaw(t *testing.T, raw []byte, info TensorInfo) (*Tensor, error) {
	t.Helper()
	return Decode(newTestReader(t, raw), info)
}

func TestDecodeQ4K(t *testing.T) {
	sb := testSuperblock()
	raw := sb.AppendQ4K(nil)
	require.Len(t, raw, KindQ4K.SuperblockBytes())

	tensor, err := decodeRaw(t, raw, TensorInfo{Name: "q4", Dimensions: []uint64{256}, Kind: KindQ4K})
	require.NoError(t, err)
	assert.Equal(t, KindQ4K, tensor.Kind())

	b, ok := tensor.Blocks()
	require.True(t, ok)
	require.Len(t, b.Quants, 256)
	require.Len(t, b.Scales, 8)
	require.Len(t, b.Offsets, 8)

	for j := range 8 {
		assert.Equal(t, float32(0.5)*float32(j+1), b.Scales[j], "scale %d", j)
		assert.Equal(t, float32(-0.25)*float32(j*7), b.Offsets[j], "offset %d", j)
	}
	for i := range 256 {
		q := uint8(i%64) & 0x0F
		require.Equal(t, q, b.Quants[i], "quant %d", i)
		want := float32(q)*b.Scales[i/32] + b.Offsets[i/32]
		require.InDelta(t, want, tensor.At(i), 1e-5, "element %d", i)
	}
}

func TestDecodeQ4KNibbleLayout(t *testing.T) {
	raw := make([]byte, KindQ4K.SuperblockBytes())
	qs := raw[4+scaleBytes:]
	qs[0] = 0x3A
	qs[33] = 0x5C // Group 1, lane 1.

	tensor, err := decodeRaw(t, raw, TensorInfo{Name: "q4", Dimensions: []uint64{256}, Kind: KindQ4K})
	require.NoError(t, err)

	b, _ := tensor.Blocks()
	assert.Equal(t, uint8(10), b.Quants[0])
	assert.Equal(t, uint8(3), b.Quants[32])
	assert.Equal(t, uint8(12), b.Quants[65])
	assert.Equal(t, uint8(5), b.Quants[97])
	assert.Equal(t, uint8(0), b.Quants[1])
}

func TestDecodeQ6K(t *testing.T) {
	sb := testSuperblock()
	raw := sb.AppendQ6K(nil)
	require.Len(t, raw, KindQ6K.SuperblockBytes())

	tensor, err := decodeRaw(t, raw, TensorInfo{Name: "q6", Dimensions: []uint64{16, 16}, Kind: KindQ6K})
	require.NoError(t, err)
	assert.Equal(t, KindQ6K, tensor.Kind())
	assert.Equal(t, []int{16, 16}, tensor.Shape())

	b, ok := tensor.Blocks()
	require.True(t, ok)
	for i := range 256 {
		require.Equal(t, uint8(i%64), b.Quants[i], "quant %d", i)
	}
	assert.Equal(t, float32(4), b.Scales[7])
	assert.Equal(t, float32(-12.25), b.Offsets[7])
	assert.Equal(t, float32(63)*4-12.25, tensor.At(255))
}

func TestDecodeTruncatesToElementCount(t *testing.T) {
	sb := testSuperblock()
	raw := sb.AppendQ4K(nil)
	raw = sb.AppendQ4K(raw)

	tensor, err := decodeRaw(t, raw, TensorInfo{Name: "tail", Dimensions: []uint64{300}, Kind: KindQ4K})
	require.NoError(t, err)

	b, _ := tensor.Blocks()
	assert.Len(t, b.Quants, 300)
	assert.Len(t, b.Scales, 10)
	assert.Len(t, b.Offsets, 10)
	assert.Equal(t, 300, tensor.N)
}

func TestDecodeF32(t *testing.T) {
	want := []float32{1, -2, 3.5, 0}
	tensor, err := decodeRaw(t, le(t, want), TensorInfo{Name: "f", Dimensions: []uint64{2, 2}, Kind: KindF32})
	require.NoError(t, err)

	got, ok := tensor.F32()
	require.True(t, ok)
	assert.Equal(t, want, got)
	assert.Equal(t, KindF32, tensor.Kind())
	assert.Equal(t, float32(3.5), tensor.At(2))
	assert.Equal(t, want, tensor.Dequantize())
}

func TestDecodeUnsupportedKind(t *testing.T) {
	_, err := decodeRaw(t, make([]byte, 64), TensorInfo{Name: "odd", Dimensions: []uint64{8}, Kind: Kind(7), Offset: 96})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnsupportedKind)
	assert.ErrorIs(t, err, errdefs.ErrFormat)
	assert.Contains(t, err.Error(), `"odd"`)
	assert.Contains(t, err.Error(), "offset 96")
	assert.Contains(t, err.Error(), "kind 7")
}

func TestDecodeShortPayload(t *testing.T) {
	sb := testSuperblock()
	raw := sb.AppendQ6K(nil)

	_, err := decodeRaw(t, raw[:100], TensorInfo{Name: "short", Dimensions: []uint64{256}, Kind: KindQ6K})
	assert.ErrorIs(t, err, errdefs.ErrIO)
	assert.Contains(t, err.Error(), `"short"`)
}

func TestQuantizeRoundTrip(t *testing.T) {
	values := make([]float32, 512)
	for i := range values {
		values[i] = float32(math.Sin(float64(i)*0.05)) * 2
	}

	tests := []struct {
		name     string
		kind     Kind
		quantize func([]float32) []byte
		tol      float64
	}{
		{"q4k", KindQ4K, QuantizeQ4K, 0.2},
		{"q6k", KindQ6K, QuantizeQ6K, 0.06},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := tt.quantize(values)
			require.Len(t, raw, 2*tt.kind.SuperblockBytes())

			tensor, err := decodeRaw(t, raw, TensorInfo{Name: tt.name, Dimensions: []uint64{512}, Kind: tt.kind})
			require.NoError(t, err)

			got := tensor.Dequantize()
			if diff := cmp.Diff(values, got, cmpopts.EquateApprox(0, tt.tol)); diff != "" {
				t.Errorf("dequantized values differ (-want +got):\n%s", diff)
			}
		})
	}
}

func TestTensorRow(t *testing.T) {
	sb := testSuperblock()
	tensor, err := decodeRaw(t, sb.AppendQ6K(nil), TensorInfo{Name: "r", Dimensions: []uint64{256}, Kind: KindQ6K})
	require.NoError(t, err)

	row := make([]float32, 40)
	tensor.Row(30, row)
	for i, v := range row {
		assert.InDelta(t, tensor.At(30+i), v, 1e-5)
	}

	assert.Panics(t, func() { tensor.Row(250, make([]float32, 10)) })
}

func TestKind(t *testing.T) {
	assert.Equal(t, "Q4_K", KindQ4K.String())
	assert.Equal(t, "unknown(7)", Kind(7).String())
	assert.True(t, KindQ6K.IsQuantized())
	assert.False(t, KindF32.IsQuantized())

	k, ok := KindFromCode(14)
	assert.True(t, ok)
	assert.Equal(t, KindQ6K, k)
	_, ok = KindFromCode(2)
	assert.False(t, ok)

	assert.Equal(t, uint64(144*2), KindQ4K.PayloadSize(300))
	assert.Equal(t, uint64(40), KindF32.PayloadSize(10))
	assert.Equal(t, uint64(math.MaxUint64), KindF32.PayloadSize(1<<62))
	assert.Equal(t, uint64(math.MaxUint64), KindQ6K.PayloadSize(math.MaxUint64))
}
