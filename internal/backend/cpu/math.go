package cpu

import (
	"math"

	"github.com/born-ml/ggufrt/internal/errdefs"
)

// RMSNorm computes out[i] = in[i]*weight[i] / sqrt(mean(in²) + eps).
func (b *CPUBackend) RMSNorm(in, weight []float32, eps float32, out []float32) error {
	if len(in) != len(weight) || len(in) != len(out) {
		return errdefs.Validation("rmsnorm", "dimension mismatch: input %d, weight %d, output %d", len(in), len(weight), len(out))
	}
	if len(in) == 0 {
		return errdefs.Validation("rmsnorm", "empty input")
	}
	ss := b.dot(in, in)
	rms := float32(math.Sqrt(float64(ss/float32(len(in)) + eps)))
	inv := 1 / rms
	for i, v := range in {
		out[i] = v * weight[i] * inv
	}
	return nil
}

// Softmax writes the max-subtracted softmax of in to out. in and out may alias.
func Softmax(in, out []float32) error {
	if len(in) == 0 {
		return errdefs.Validation("softmax", "empty input")
	}
	if len(in) != len(out) {
		return errdefs.Validation("softmax", "dimension mismatch: input %d, output %d", len(in), len(out))
	}

	maxVal := in[0]
	for _, v := range in[1:] {
		maxVal = max(maxVal, v)
	}
	var sum float64
	for i, v := range in {
		e := math.Exp(float64(v - maxVal))
		out[i] = float32(e)
		sum += e
	}
	inv := float32(1 / sum)
	for i := range out {
		out[i] *= inv
	}
	return nil
}

// Softmax is the package-level Softmax.
func (b *CPUBackend) Softmax(in, out []float32) error {
	return Softmax(in, out)
}

// ResidualAdd writes in[i]+residual[i] to out. out may alias either input.
func ResidualAdd(in, residual, out []float32) error {
	if len(in) != len(residual) || len(in) != len(out) {
		return errdefs.Validation("residual add", "dimension mismatch: input %d, residual %d, output %d", len(in), len(residual), len(out))
	}
	for i, v := range in {
		out[i] = v + residual[i]
	}
	return nil
}

// ResidualAdd is the package-level ResidualAdd.
func (b *CPUBackend) ResidualAdd(in, residual, out []float32) error {
	return ResidualAdd(in, residual, out)
}

// RMSNorm runs the scalar RMSNorm.
func RMSNorm(in, weight []float32, eps float32, out []float32) error {
	return scalar.RMSNorm(in, weight, eps, out)
}
