package cpu

import (
	"github.com/born-ml/ggufrt/internal/errdefs"
	"github.com/born-ml/ggufrt/internal/gguf"
	"github.com/born-ml/ggufrt/internal/parallel"
)

// MatMul computes out[o] = Σ_i input[i]*w[i,o] for a weight of shape
// [in, out] stored row-major.
//
// Quantized weights are dequantized one row segment at a time into a
// worker-local buffer; the full matrix is never materialized. All shape checks
// happen before out is written. Output columns are split across workers.
// Every product is accumulated, so a zero input against an Inf or NaN weight
// yields NaN.
func (b *CPUBackend) MatMul(input []float32, w *gguf.Tensor, out []float32) error {
	in, outDim, err := matmulShape(input, w, out)
	if err != nil {
		return err
	}

	clear(out)
	if values, ok := w.F32(); ok {
		return parallel.ForRange(outDim, func(start, end int) error {
			dst := out[start:end]
			for i, x := range input {
				b.axpy(x, values[i*outDim+start:i*outDim+end], dst)
			}
			return nil
		}, b.parallel)
	}

	blocks, ok := w.Blocks()
	if !ok {
		return errdefs.Validation("matmul", "weight %q has no payload", w.Name)
	}
	return parallel.ForRange(outDim, func(start, end int) error {
		dst := out[start:end]
		row := make([]float32, end-start)
		for i := range in {
			blocks.Row(i*outDim+start, row)
			b.axpy(input[i], row, dst)
		}
		return nil
	}, b.parallel)
}

// MatMul runs the scalar kernel on a single goroutine.
func MatMul(input []float32, w *gguf.Tensor, out []float32) error {
	return scalar.MatMul(input, w, out)
}

var scalar = &CPUBackend{variant: VariantScalar, dot: Dot, axpy: Axpy, parallel: parallel.Sequential()}

func matmulShape(input []float32, w *gguf.Tensor, out []float32) (in, outDim int, err error) {
	if len(w.Dims) != 2 {
		return 0, 0, errdefs.Validation("matmul", "weight %q must be 2-D, got %dD %v", w.Name, len(w.Dims), w.Dims)
	}
	in, outDim = int(w.Dims[0]), int(w.Dims[1]) //nolint:gosec // G115: dims of a decoded tensor fit in memory.
	if len(input) != in {
		return 0, 0, errdefs.Validation("matmul", "input size %d doesn't match weight %q input dimension %d", len(input), w.Name, in)
	}
	if len(out) != outDim {
		return 0, 0, errdefs.Validation("matmul", "output buffer size %d doesn't match weight %q output dimension %d", len(out), w.Name, outDim)
	}
	if w.Payload == nil || w.Payload.Len() != in*outDim {
		return 0, 0, errdefs.Validation("matmul", "weight %q holds %d elements, shape needs %d", w.Name, payloadLen(w), in*outDim)
	}
	return in, outDim, nil
}

func payloadLen(w *gguf.Tensor) int {
	if w.Payload == nil {
		return 0
	}
	return w.Payload.Len()
}
