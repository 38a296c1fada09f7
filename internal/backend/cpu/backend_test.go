package cpu

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/born-ml/ggufrt/internal/cpuinfo"
)

func TestNewSelectsVariant(t *testing.T) {
	t.Setenv("GGUFRT_FORCE_SCALAR", "")

	b := New(cpuinfo.Scalar())
	assert.Equal(t, VariantScalar, b.Variant())
	assert.Equal(t, "CPU", b.Name())

	b = New(cpuinfo.Features{NEON: true})
	assert.Equal(t, VariantUnrolled, b.Variant())
	assert.True(t, b.Features().NEON)

	// FMA alone is not a vector extension the wide kernels use.
	b = New(cpuinfo.Features{FMA: true})
	assert.Equal(t, VariantScalar, b.Variant())
}

func TestNewForceScalar(t *testing.T) {
	t.Setenv("GGUFRT_FORCE_SCALAR", "1")

	b := New(cpuinfo.Features{AVX2: true, AVX512F: true})
	assert.Equal(t, VariantScalar, b.Variant())
}

func TestDotVariantsAgree(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	for _, n := range []int{0, 1, 7, 8, 9, 63, 64, 257} {
		a := randomValues(rng, n)
		b := randomValues(rng, n)
		assert.InDelta(t, Dot(a, b), dotUnrolled(a, b), 1e-4, "n=%d", n)
	}
}

func TestAxpyVariantsAgree(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 4))
	for _, n := range []int{1, 8, 13, 100} {
		x := randomValues(rng, n)
		y1 := randomValues(rng, n)
		y2 := append([]float32(nil), y1...)

		Axpy(0.5, x, y1)
		axpyUnrolled(0.5, x, y2)
		assert.Equal(t, y1, y2, "n=%d", n)
	}
}
