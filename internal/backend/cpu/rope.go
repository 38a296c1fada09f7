package cpu

import (
	"math"

	"github.com/born-ml/ggufrt/internal/errdefs"
)

// RoPE rotates the pairs (v[2k], v[2k+1]) with 2k < rotaryDim in place by
// pos*base^(-2k/headDim). Elements past rotaryDim are left unchanged.
func RoPE(v []float32, base float64, pos, headDim, rotaryDim int) error {
	if err := checkRoPE(len(v), headDim, rotaryDim); err != nil {
		return err
	}
	rotate(v, base, pos, headDim, rotaryDim)
	return nil
}

// RoPEHeads applies RoPE to each head of a packed [heads*headDim] vector.
func RoPEHeads(v []float32, heads int, base float64, pos, headDim, rotaryDim int) error {
	if heads <= 0 || len(v) != heads*headDim {
		return errdefs.Validation("rope", "vector of %d elements is not %d heads of %d", len(v), heads, headDim)
	}
	if err := checkRoPE(headDim, headDim, rotaryDim); err != nil {
		return err
	}
	for h := range heads {
		rotate(v[h*headDim:(h+1)*headDim], base, pos, headDim, rotaryDim)
	}
	return nil
}

// RoPE is the package-level RoPE.
func (b *CPUBackend) RoPE(v []float32, base float64, pos, headDim, rotaryDim int) error {
	return RoPE(v, base, pos, headDim, rotaryDim)
}

// RoPEHeads is the package-level RoPEHeads.
func (b *CPUBackend) RoPEHeads(v []float32, heads int, base float64, pos, headDim, rotaryDim int) error {
	return RoPEHeads(v, heads, base, pos, headDim, rotaryDim)
}

func checkRoPE(n, headDim, rotaryDim int) error {
	switch {
	case headDim <= 0:
		return errdefs.Validation("rope", "head dimension %d must be positive", headDim)
	case rotaryDim > headDim:
		return errdefs.Validation("rope", "rotary dimension %d exceeds head dimension %d", rotaryDim, headDim)
	case rotaryDim < 0 || rotaryDim%2 != 0:
		return errdefs.Validation("rope", "rotary dimension %d must be even and non-negative", rotaryDim)
	case n < rotaryDim:
		return errdefs.Validation("rope", "vector of %d elements is shorter than rotary dimension %d", n, rotaryDim)
	}
	return nil
}

func rotate(v []float32, base float64, pos, headDim, rotaryDim int) {
	for i := 0; i < rotaryDim; i += 2 {
		theta := float64(pos) * math.Pow(base, -float64(i)/float64(headDim))
		sin, cos := math.Sincos(theta)
		x0, x1 := float64(v[i]), float64(v[i+1])
		v[i] = float32(x0*cos - x1*sin)
		v[i+1] = float32(x0*sin + x1*cos)
	}
}
