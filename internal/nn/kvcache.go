package nn

import (
	"errors"
	"fmt"

	"github.com/born-ml/ggufrt/internal/errdefs"
)

// ErrCacheFull is returned by Append once every position is filled.
var ErrCacheFull = errdefs.Sentinel(errdefs.ErrValidation, "KVCache is Full")

// CacheState is the fill state of a KVCache.
type CacheState int

// Cache states.
const (
	CacheEmpty CacheState = iota
	CacheFilling
	CacheFull
)

func (s CacheState) String() string {
	switch s {
	case CacheEmpty:
		return "empty"
	case CacheFilling:
		return "filling"
	case CacheFull:
		return "full"
	default:
		return fmt.Sprintf("CacheState(%d)", int(s))
	}
}

// KVCache stores one key and one value vector of heads*headDim floats per
// position, for up to Cap() positions.
//
// Keys and values live in two flat buffers allocated once; position p, head h
// starts at (p*heads + h)*headDim.
//
// Example:
//
//	cache, _ := nn.NewKVCache(2048, 8, 64)
//	for pos, tok := range tokens {
//	    k, v := project(tok, pos)
//	    if err := cache.Append(k, v); err != nil { ... }
//	}
type KVCache struct {
	keys    []float32
	values  []float32
	pos     int
	cap     int
	heads   int
	headDim int
}

// NewKVCache allocates a cache for capacity positions of heads*headDim floats.
func NewKVCache(capacity, heads, headDim int) (*KVCache, error) {
	if capacity <= 0 || heads <= 0 || headDim <= 0 {
		return nil, errdefs.Validation("new kv cache", "capacity %d, heads %d and head dim %d must be positive", capacity, heads, headDim)
	}
	size := capacity * heads * headDim
	return &KVCache{
		keys:    make([]float32, size),
		values:  make([]float32, size),
		cap:     capacity,
		heads:   heads,
		headDim: headDim,
	}, nil
}

// Append stores k and v at the next position.
//
// It fails with ErrCacheFull when Len() == Cap(), and with a validation error
// when k or v is not heads*headDim long. A failed Append leaves the cache
// unchanged.
func (c *KVCache) Append(k, v []float32) error {
	if c.pos >= c.cap {
		return fmt.Errorf("%w: max len is %d", ErrCacheFull, c.cap)
	}
	stride := c.heads * c.headDim
	if len(k) != stride || len(v) != stride {
		return errdefs.Validation("kv cache append", "input size of k (%d) or v (%d) isn't correct, size should be %d", len(k), len(v), stride)
	}
	start := c.pos * stride
	copy(c.keys[start:start+stride], k)
	copy(c.values[start:start+stride], v)
	c.pos++
	return nil
}

// Key returns the key slice of head at position.
//
// It panics unless position <= Len(), position < Cap() and head < Heads().
// Reading position Len() returns the next, not yet written, slot.
func (c *KVCache) Key(position, head int) []float32 {
	if position < 0 || position > c.pos || position >= c.cap {
		panic(fmt.Sprintf("nn: key position %d out of bounds (len %d, cap %d)", position, c.pos, c.cap))
	}
	return c.slice(c.keys, position, head)
}

// Value returns the value slice of head at position.
//
// It panics unless position < Len() and head < Heads().
func (c *KVCache) Value(position, head int) []float32 {
	if position < 0 || position >= c.pos {
		panic(fmt.Sprintf("nn: value position %d out of bounds (len %d)", position, c.pos))
	}
	return c.slice(c.values, position, head)
}

func (c *KVCache) slice(buf []float32, position, head int) []float32 {
	if head < 0 || head >= c.heads {
		panic(fmt.Sprintf("nn: head index %d out of bounds (heads %d)", head, c.heads))
	}
	start := (position*c.heads + head) * c.headDim
	return buf[start : start+c.headDim : start+c.headDim]
}

// Reset empties the cache without releasing its buffers.
func (c *KVCache) Reset() {
	c.pos = 0
}

// Len returns the number of filled positions.
func (c *KVCache) Len() int { return c.pos }

// Cap returns the maximum number of positions.
func (c *KVCache) Cap() int { return c.cap }

// Heads returns the number of heads per position.
func (c *KVCache) Heads() int { return c.heads }

// HeadDim returns the width of one head.
func (c *KVCache) HeadDim() int { return c.headDim }

// State reports whether the cache is empty, filling or full.
func (c *KVCache) State() CacheState {
	switch {
	case c.pos == 0:
		return CacheEmpty
	case c.pos < c.cap:
		return CacheFilling
	default:
		return CacheFull
	}
}

// IsFull reports whether err is a cache capacity error.
func IsFull(err error) bool {
	return errors.Is(err, ErrCacheFull)
}
