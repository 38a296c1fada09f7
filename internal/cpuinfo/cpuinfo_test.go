package cpuinfo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScalar(t *testing.T) {
	f := Scalar()
	assert.False(t, f.HasSIMD())
	assert.Equal(t, "none (scalar fallback)", f.String())
}

func TestString(t *testing.T) {
	assert.Equal(t, "AVX2, FMA", Features{AVX2: true, FMA: true}.String())
	assert.Equal(t, "NEON, DotProd", Features{NEON: true, DotProd: true}.String())
}

func TestHasSIMD(t *testing.T) {
	assert.True(t, Features{AVX2: true}.HasSIMD())
	assert.True(t, Features{NEON: true}.HasSIMD())
	assert.False(t, Features{FMA: true}.HasSIMD())
}

func TestDetectIsStable(t *testing.T) {
	assert.Equal(t, Detect(), Detect())
	assert.NotEmpty(t, Detect().String())
}
