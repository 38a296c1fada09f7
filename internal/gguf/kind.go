package gguf

import (
	"fmt"
	"math"
	"math/bits"
)

// Kind is the quantization kind code of a tensor payload.
//
// Only the three kinds below are decodable; any other code is preserved in
// TensorInfo so it can be reported, and fails at decode time.
type Kind uint32

// Supported payload kinds.
//
//nolint:revive // Names follow the GGML type names.
const (
	KindF32 Kind = 0
	KindQ4K Kind = 12
	KindQ6K Kind = 14
)

// Block geometry shared by the K-quant kinds.
const (
	SuperblockElements = 256
	SubblockElements   = 32
	subblocksPerSuper  = SuperblockElements / SubblockElements
	scaleBytes         = 12
)

// KindTrait describes the on-disk layout of a kind.
type KindTrait struct {
	Name       string
	BlockSize  int // Elements per block.
	BlockBytes int // Bytes per block.
	Quantized  bool
}

var kindTraits = map[Kind]KindTrait{
	KindF32: {Name: "F32", BlockSize: 1, BlockBytes: 4},
	// d, dmin (f16) + 12 scale bytes + 128 bytes of 4-bit values.
	KindQ4K: {Name: "Q4_K", BlockSize: SuperblockElements, BlockBytes: 144, Quantized: true},
	// d, dmin (f16) + 12 scale bytes + 192 bytes of 6-bit values.
	KindQ6K: {Name: "Q6_K", BlockSize: SuperblockElements, BlockBytes: 208, Quantized: true},
}

// Trait returns the layout of k. The zero trait is returned for unknown kinds.
func (k Kind) Trait() KindTrait {
	return kindTraits[k]
}

// Known reports whether k can be decoded.
func (k Kind) Known() bool {
	_, ok := kindTraits[k]
	return ok
}

// IsQuantized reports whether k stores block-quantized values.
func (k Kind) IsQuantized() bool {
	return k.Trait().Quantized
}

// SuperblockBytes returns the bytes per block (4 for F32).
func (k Kind) SuperblockBytes() int {
	return k.Trait().BlockBytes
}

// PayloadSize returns the number of bytes n elements occupy, saturating at
// math.MaxUint64.
func (k Kind) PayloadSize(n uint64) uint64 {
	t := k.Trait()
	if t.BlockSize == 0 {
		return 0
	}
	bs := uint64(t.BlockSize) //nolint:gosec // G115: constant block sizes.
	blocks := n/bs + min(n%bs, 1)
	hi, lo := bits.Mul64(blocks, uint64(t.BlockBytes)) //nolint:gosec // G115: constant block sizes.
	if hi != 0 {
		return math.MaxUint64
	}
	return lo
}

// String returns the GGML name of the kind.
func (k Kind) String() string {
	if t, ok := kindTraits[k]; ok {
		return t.Name
	}
	return fmt.Sprintf("unknown(%d)", uint32(k))
}

// KindFromCode maps a raw kind code to a supported Kind.
func KindFromCode(code uint32) (Kind, bool) {
	k := Kind(code)
	return k, k.Known()
}
