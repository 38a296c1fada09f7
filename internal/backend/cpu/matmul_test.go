package cpu

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/born-ml/ggufrt/internal/errdefs"
	"github.com/born-ml/ggufrt/internal/gguf"
)

func TestMatMulF32(t *testing.T) {
	// [[1,3],[2,4]] row-major, shape [in=2, out=2].
	w := f32Tensor([]uint64{2, 2}, []float32{1, 3, 2, 4})

	for name, b := range newTestBackends() {
		t.Run(name, func(t *testing.T) {
			out := []float32{99, 99}
			require.NoError(t, b.MatMul([]float32{1, 2}, w, out))
			assert.Equal(t, []float32{5, 11}, out)
		})
	}
}

func TestMatMulZeroInputPropagatesNonFinite(t *testing.T) {
	inf := float32(math.Inf(1))
	nan := float32(math.NaN())
	// Row 0 is multiplied by a zero input.
	w := f32Tensor([]uint64{2, 3}, []float32{inf, nan, 1, 2, 2, 2})

	for name, b := range newTestBackends() {
		t.Run(name, func(t *testing.T) {
			out := make([]float32, 3)
			require.NoError(t, b.MatMul([]float32{0, 1}, w, out))
			assert.True(t, math.IsNaN(float64(out[0])), "0*Inf")
			assert.True(t, math.IsNaN(float64(out[1])), "0*NaN")
			assert.Equal(t, float32(2), out[2])
		})
	}
}

func TestMatMulQuantizedInline(t *testing.T) {
	w := &gguf.Tensor{
		Name: "w",
		Dims: []uint64{2, 2},
		N:    4,
		Payload: gguf.Q4KData{Blocks: gguf.Blocks{
			Quants:  []uint8{10, 15, 5, 8},
			Scales:  []float32{0.1},
			Offsets: []float32{-0.5},
		}},
	}
	// Dequantized weights: [0.5, 1.0, 0.0, 0.3].
	out := make([]float32, 2)
	require.NoError(t, MatMul([]float32{1, 2}, w, out))
	assert.InDelta(t, 0.5, out[0], 1e-6)
	assert.InDelta(t, 1.6, out[1], 1e-6)
}

func TestMatMulQuantizedMatchesDequantized(t *testing.T) {
	const in, outDim = 48, 96
	rng := rand.New(rand.NewPCG(7, 8))
	values := randomValues(rng, in*outDim)
	input := randomValues(rng, in)

	for _, kind := range []gguf.Kind{gguf.KindQ4K, gguf.KindQ6K} {
		t.Run(kind.String(), func(t *testing.T) {
			q := quantTensor(t, kind, []uint64{in, outDim}, values)
			ref := f32Tensor([]uint64{in, outDim}, q.Dequantize())

			want := make([]float32, outDim)
			require.NoError(t, MatMul(input, ref, want))

			for name, b := range newTestBackends() {
				got := make([]float32, outDim)
				require.NoError(t, b.MatMul(input, q, got))
				if diff := cmp.Diff(want, got, approx(1e-4)); diff != "" {
					t.Errorf("%s: MatMul mismatch (-want +got):\n%s", name, diff)
				}
			}
		})
	}
}

func TestMatMulMatchesGonum(t *testing.T) {
	const in, outDim = 37, 70
	rng := rand.New(rand.NewPCG(11, 12))
	values := randomValues(rng, in*outDim)
	input := randomValues(rng, in)

	x := mat.NewDense(1, in, float64s(input))
	w := mat.NewDense(in, outDim, float64s(values))
	var ref mat.Dense
	ref.Mul(x, w)

	want := make([]float32, outDim)
	for o := range want {
		want[o] = float32(ref.At(0, o))
	}

	for name, b := range newTestBackends() {
		got := make([]float32, outDim)
		require.NoError(t, b.MatMul(input, f32Tensor([]uint64{in, outDim}, values), got))
		if diff := cmp.Diff(want, got, approx(1e-4)); diff != "" {
			t.Errorf("%s: MatMul mismatch (-want +got):\n%s", name, diff)
		}
	}
}

func float64s(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, f := range v {
		out[i] = float64(f)
	}
	return out
}

func TestMatMulParallelMatchesSequential(t *testing.T) {
	const in, outDim = 33, 257
	rng := rand.New(rand.NewPCG(9, 10))
	w := f32Tensor([]uint64{in, outDim}, randomValues(rng, in*outDim))
	input := randomValues(rng, in)

	backends := newTestBackends()
	want := make([]float32, outDim)
	require.NoError(t, backends["scalar"].MatMul(input, w, want))
	got := make([]float32, outDim)
	require.NoError(t, backends["parallel"].MatMul(input, w, got))

	if diff := cmp.Diff(want, got, approx(1e-5)); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestMatMulValidation(t *testing.T) {
	w := f32Tensor([]uint64{2, 3}, make([]float32, 6))

	tests := []struct {
		name  string
		w     *gguf.Tensor
		input []float32
		out   []float32
		msg   string
	}{
		{"rank", f32Tensor([]uint64{6}, make([]float32, 6)), make([]float32, 6), make([]float32, 1), "must be 2-D"},
		{"input", w, make([]float32, 3), make([]float32, 3), "input size 3"},
		{"output", w, make([]float32, 2), make([]float32, 2), "output buffer size 2"},
		{"payload", f32Tensor([]uint64{2, 3}, make([]float32, 4)), make([]float32, 2), make([]float32, 3), "holds 4 elements"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for i := range tt.out {
				tt.out[i] = 42
			}
			err := MatMul(tt.input, tt.w, tt.out)
			require.Error(t, err)
			assert.ErrorIs(t, err, errdefs.ErrValidation)
			assert.Contains(t, err.Error(), tt.msg)
			for _, v := range tt.out {
				assert.Equal(t, float32(42), v, "output untouched on error")
			}
		})
	}
}
