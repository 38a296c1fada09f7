package cpu

import (
	"bytes"
	"math/rand/v2"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/ggufrt/internal/cpuinfo"
	"github.com/born-ml/ggufrt/internal/gguf"
	"github.com/born-ml/ggufrt/internal/parallel"
)

func approx(tol float64) cmp.Option {
	return cmpopts.EquateApprox(0, tol)
}

func newTestBackends() map[string]*CPUBackend {
	return map[string]*CPUBackend{
		"scalar":   New(cpuinfo.Scalar(), WithVariant(VariantScalar), WithParallel(parallel.Sequential())),
		"unrolled": New(cpuinfo.Features{AVX2: true}, WithVariant(VariantUnrolled), WithParallel(parallel.Sequential())),
		"parallel": New(cpuinfo.Features{AVX2: true}, WithVariant(VariantUnrolled), WithParallel(parallel.Config{
			Enabled: true, NumWorkers: 4, MinChunkSize: 8,
		})),
	}
}

func f32Tensor(dims []uint64, values []float32) *gguf.Tensor {
	return &gguf.Tensor{Name: "w", Dims: dims, N: len(values), Payload: gguf.F32Data{Values: values}}
}

// quantTensor encodes values with kind and decodes them back through the codec.
func quantTensor(t *testing.T, kind gguf.Kind, dims []uint64, values []float32) *gguf.Tensor {
	t.Helper()
	var payload []byte
	switch kind {
	case gguf.KindQ4K:
		payload = gguf.QuantizeQ4K(values)
	case gguf.KindQ6K:
		payload = gguf.QuantizeQ6K(values)
	default:
		t.Fatalf("unsupported kind %v", kind)
	}
	r, err := gguf.NewReader(bytes.NewReader(payload), 4096)
	require.NoError(t, err)
	w, err := gguf.Decode(r, gguf.TensorInfo{Name: "w", Dimensions: dims, Kind: kind})
	require.NoError(t, err)
	return w
}

func randomValues(rng *rand.Rand, n int) []float32 {
	v := make([]float32, n)
	for i := range v {
		v[i] = rng.Float32()*2 - 1
	}
	return v
}
