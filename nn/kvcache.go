package nn

import (
	"github.com/born-ml/ggufrt/internal/nn"
)

// KVCache is a public alias for internal KV cache implementation.
//
// KVCache stores one key and one value vector per position for
// autoregressive generation.
type KVCache = nn.KVCache

// CacheState is the fill state of a KVCache.
type CacheState = nn.CacheState

// OnlineSoftmax accumulates a softmax-weighted sum in one pass.
type OnlineSoftmax = nn.OnlineSoftmax

// ErrCacheFull is returned by Append once every position is filled.
var ErrCacheFull = nn.ErrCacheFull

// NewKVCache creates a new KV cache.
//
// This is a convenience wrapper for the internal implementation.
// See internal/nn.NewKVCache for detailed documentation.
func NewKVCache(capacity, heads, headDim int) (*KVCache, error) {
	return nn.NewKVCache(capacity, heads, headDim)
}

// NewOnlineSoftmax creates an accumulator for vectors of headDim floats.
func NewOnlineSoftmax(headDim int) *OnlineSoftmax {
	return nn.NewOnlineSoftmax(headDim)
}

// Attend computes single-query attention for one head over the cache.
// scores must hold at least cache.Len() floats.
func Attend(q []float32, cache *KVCache, head int, out, scores []float32) error {
	return nn.Attend(q, cache, head, out, scores)
}

// AttendStreaming computes Attend without a scores buffer.
func AttendStreaming(q []float32, cache *KVCache, head int, out []float32, acc *OnlineSoftmax) error {
	return nn.AttendStreaming(q, cache, head, out, acc)
}
