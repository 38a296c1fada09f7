package nn_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/ggufrt/nn"
)

func TestKVCacheAttend(t *testing.T) {
	cache, err := nn.NewKVCache(2, 1, 2)
	require.NoError(t, err)

	require.NoError(t, cache.Append([]float32{1, 0}, []float32{1, 2}))
	require.NoError(t, cache.Append([]float32{1, 0}, []float32{3, 4}))
	require.ErrorIs(t, cache.Append([]float32{1, 0}, []float32{5, 6}), nn.ErrCacheFull)

	// Equal keys give equal weights, so the output is the mean of the values.
	out := make([]float32, 2)
	require.NoError(t, nn.Attend([]float32{1, 0}, cache, 0, out, make([]float32, cache.Cap())))
	assert.InDeltaSlice(t, []float32{2, 3}, out, 1e-6)

	streamed := make([]float32, 2)
	require.NoError(t, nn.AttendStreaming([]float32{1, 0}, cache, 0, streamed, nn.NewOnlineSoftmax(2)))
	assert.InDeltaSlice(t, out, streamed, 1e-6)

	cache.Reset()
	assert.Equal(t, 0, cache.Len())
	assert.Equal(t, "empty", cache.State().String())
}
