package gguf

import "fmt"

// Payload is the decoded data of a tensor: exactly one of F32Data, Q4KData or Q6KData.
type Payload interface {
	// Len returns the number of elements.
	Len() int
	isPayload()
}

// F32Data holds full-precision values.
type F32Data struct {
	Values []float32
}

// Blocks holds block-quantized values kept in compact form.
//
// Quants has one code per element. Scales and Offsets have one entry per
// 32-element block, and element i dequantizes to
// Quants[i]*Scales[i/32] + Offsets[i/32].
type Blocks struct {
	Quants  []uint8
	Scales  []float32
	Offsets []float32
}

// Q4KData holds 4-bit codes (0..15).
type Q4KData struct {
	Blocks
}

// Q6KData holds 6-bit codes (0..63).
type Q6KData struct {
	Blocks
}

func (F32Data) isPayload() {}
func (Q4KData) isPayload() {}
func (Q6KData) isPayload() {}

// Len returns the number of elements.
func (d F32Data) Len() int { return len(d.Values) }

// Len returns the number of elements.
func (b Blocks) Len() int { return len(b.Quants) }

// At dequantizes element i.
func (b *Blocks) At(i int) float32 {
	blk := i / SubblockElements
	return float32(b.Quants[i])*b.Scales[blk] + b.Offsets[blk]
}

// Row dequantizes len(dst) elements starting at start.
func (b *Blocks) Row(start int, dst []float32) {
	q := b.Quants[start : start+len(dst)]
	for i := range dst {
		blk := (start + i) / SubblockElements
		dst[i] = float32(q[i])*b.Scales[blk] + b.Offsets[blk]
	}
}

// Tensor is a decoded tensor. It is immutable once built.
type Tensor struct {
	Name    string
	Dims    []uint64
	N       int // Element count, the product of Dims.
	Payload Payload
}

// Kind returns the kind of the payload.
func (t *Tensor) Kind() Kind {
	switch t.Payload.(type) {
	case Q4KData, *Q4KData:
		return KindQ4K
	case Q6KData, *Q6KData:
		return KindQ6K
	default:
		return KindF32
	}
}

// Blocks returns the quantized blocks of a Q4K or Q6K tensor.
func (t *Tensor) Blocks() (*Blocks, bool) {
	switch p := t.Payload.(type) {
	case Q4KData:
		return &p.Blocks, true
	case Q6KData:
		return &p.Blocks, true
	case *Q4KData:
		return &p.Blocks, true
	case *Q6KData:
		return &p.Blocks, true
	default:
		return nil, false
	}
}

// F32 returns the values of an F32 tensor.
func (t *Tensor) F32() ([]float32, bool) {
	switch p := t.Payload.(type) {
	case F32Data:
		return p.Values, true
	case *F32Data:
		return p.Values, true
	default:
		return nil, false
	}
}

// At returns the dequantized element i.
func (t *Tensor) At(i int) float32 {
	if v, ok := t.F32(); ok {
		return v[i]
	}
	b, _ := t.Blocks()
	return b.At(i)
}

// Row dequantizes len(dst) consecutive elements starting at start.
func (t *Tensor) Row(start int, dst []float32) {
	if start < 0 || start+len(dst) > t.N {
		panic(fmt.Sprintf("gguf: row [%d, %d) out of range for %q with %d elements",
			start, start+len(dst), t.Name, t.N))
	}
	if v, ok := t.F32(); ok {
		copy(dst, v[start:])
		return
	}
	b, _ := t.Blocks()
	b.Row(start, dst)
}

// Dequantize materializes the whole tensor as float32.
func (t *Tensor) Dequantize() []float32 {
	out := make([]float32, t.N)
	t.Row(0, out)
	return out
}

// Shape returns the dimensions as ints.
func (t *Tensor) Shape() []int {
	shape := make([]int, len(t.Dims))
	for i, d := range t.Dims {
		shape[i] = int(d) //nolint:gosec // G115: dims of a decoded tensor fit in memory.
	}
	return shape
}
