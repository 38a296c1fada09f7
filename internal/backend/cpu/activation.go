package cpu

import (
	"math"

	"github.com/born-ml/ggufrt/internal/errdefs"
)

// Sigmoid returns 1/(1+e^-x) without overflowing for large |x|.
// The exponent is always of a non-positive number, and the result for the
// sign of x is picked with a bit mask.
func Sigmoid(x float32) float32 {
	e := float32(math.Exp(-math.Abs(float64(x))))
	pos := math.Float32bits(1 / (1 + e))
	neg := math.Float32bits(e / (1 + e))
	mask := -(math.Float32bits(x) >> 31) // all ones for negative x
	return math.Float32frombits(pos ^ ((pos ^ neg) & mask))
}

// SiLU returns x*sigmoid(x).
func SiLU(x float32) float32 {
	return x * Sigmoid(x)
}

// SwiGLU computes out[i] = x[i]*sigmoid(x[i])*gate[i]. out may alias x or gate.
func SwiGLU(x, gate, out []float32) error {
	if len(x) != len(gate) || len(x) != len(out) {
		return errdefs.Validation("swiglu", "dimension mismatch: x %d, gate %d, output %d", len(x), len(gate), len(out))
	}
	for i, v := range x {
		out[i] = SiLU(v) * gate[i]
	}
	return nil
}

// SwiGLU is the package-level SwiGLU.
func (b *CPUBackend) SwiGLU(x, gate, out []float32) error {
	return SwiGLU(x, gate, out)
}
