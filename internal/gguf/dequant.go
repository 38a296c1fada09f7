package gguf

import (
	"fmt"
	"io"

	"github.com/born-ml/ggufrt/internal/errdefs"
	"github.com/born-ml/ggufrt/internal/logutil"
)

// ErrUnsupportedKind is returned when a descriptor names a kind this package cannot decode.
var ErrUnsupportedKind = errdefs.Sentinel(errdefs.ErrFormat, "unsupported tensor kind")

// Decode reads the payload of info from the current position of r.
//
// The caller positions r at the start of the payload. F32 payloads are read as
// n consecutive floats. Q4K and Q6K payloads are read superblock by superblock
// and kept as codes plus per-block scale and offset; the result holds exactly
// n codes and ceil(n/32) scale/offset pairs.
func Decode(r *Reader, info TensorInfo) (*Tensor, error) {
	n64 := info.NumElements()
	if n64 > uint64(maxInt) {
		return nil, errdefs.Format("decode tensor", "%q: %d elements", info.Name, n64)
	}
	n := int(n64) //nolint:gosec // G115: checked above.

	if size, ok := info.Size(); ok {
		if rem := r.Remaining(); rem >= 0 && size > uint64(rem) {
			return nil, fmt.Errorf("tensor %q: %w", info.Name,
				errdefs.IO("decode tensor", r.Position(), int64(size), io.ErrUnexpectedEOF)) //nolint:gosec // G115: size > rem >= 0.
		}
	}

	t := &Tensor{
		Name: info.Name,
		Dims: append([]uint64(nil), info.Dimensions...),
		N:    n,
	}

	var err error
	switch info.Kind {
	case KindF32:
		values := make([]float32, n)
		err = r.Float32s(values)
		t.Payload = F32Data{Values: values}
	case KindQ4K:
		var b Blocks
		b, err = decodeBlocks(r, n, KindQ4K)
		t.Payload = Q4KData{Blocks: b}
	case KindQ6K:
		var b Blocks
		b, err = decodeBlocks(r, n, KindQ6K)
		t.Payload = Q6KData{Blocks: b}
	default:
		return nil, fmt.Errorf("tensor %q at offset %d: kind %d: %w",
			info.Name, info.Offset, uint32(info.Kind), ErrUnsupportedKind)
	}
	if err != nil {
		return nil, fmt.Errorf("tensor %q: %w", info.Name, err)
	}

	logutil.Trace("decoded tensor", "name", info.Name, "kind", info.Kind, "elements", n)
	return t, nil
}

const maxInt = int(^uint(0) >> 1)

// decodeBlocks reads ceil(n/256) superblocks of kind k.
func decodeBlocks(r *Reader, n int, k Kind) (Blocks, error) {
	supers := (n + SuperblockElements - 1) / SuperblockElements
	quants := make([]uint8, supers*SuperblockElements)
	scales := make([]float32, supers*subblocksPerSuper)
	offsets := make([]float32, supers*subblocksPerSuper)

	raw := make([]byte, k.SuperblockBytes())
	for s := range supers {
		if err := r.ReadFull(raw); err != nil {
			return Blocks{}, fmt.Errorf("superblock %d: %w", s, err)
		}
		q := quants[s*SuperblockElements : (s+1)*SuperblockElements]
		sc := scales[s*subblocksPerSuper : (s+1)*subblocksPerSuper]
		off := offsets[s*subblocksPerSuper : (s+1)*subblocksPerSuper]
		switch k {
		case KindQ4K:
			decodeQ4KSuperblock(raw, q, sc, off)
		case KindQ6K:
			decodeQ6KSuperblock(raw, q, sc, off)
		}
	}

	nb := (n + SubblockElements - 1) / SubblockElements
	return Blocks{
		Quants:  quants[:n:n],
		Scales:  scales[:nb:nb],
		Offsets: offsets[:nb:nb],
	}, nil
}

// superblockHeader decodes d, dmin and the eight scale/offset pairs shared by
// both K-quant layouts.
func superblockHeader(raw []byte, scales, offsets []float32) {
	d := f16(raw[0], raw[1])
	dmin := f16(raw[2], raw[3])
	packed := raw[4 : 4+scaleBytes]
	for j := range subblocksPerSuper {
		sc, m := scaleMinK4(j, packed)
		scales[j] = d * float32(sc)
		offsets[j] = dmin * float32(m)
	}
}

// decodeQ4KSuperblock unpacks a 144-byte superblock.
//
// The 128 value bytes cover four 64-element groups: byte g*32+l holds element
// g*64+l in its low nibble and element g*64+32+l in its high nibble.
func decodeQ4KSuperblock(raw []byte, quants []uint8, scales, offsets []float32) {
	superblockHeader(raw, scales, offsets)
	qs := raw[4+scaleBytes:]
	for g := range 4 {
		for l := range 32 {
			lo, hi := UnpackNibbles(qs[g*32+l])
			quants[g*64+l] = lo
			quants[g*64+32+l] = hi
		}
	}
}

// decodeQ6KSuperblock unpacks a 208-byte superblock.
// The 192 value bytes pack four 6-bit codes into every three bytes.
func decodeQ6KSuperblock(raw []byte, quants []uint8, scales, offsets []float32) {
	superblockHeader(raw, scales, offsets)
	qs := raw[4+scaleBytes:]
	for t := range SuperblockElements / 4 {
		v := Unpack6(qs[t*3], qs[t*3+1], qs[t*3+2])
		copy(quants[t*4:t*4+4], v[:])
	}
}

// scaleMinK4 extracts the 6-bit scale and offset codes of sub-block j from the
// 12 packed scale bytes.
func scaleMinK4(j int, q []byte) (sc, m uint8) {
	if j < 4 {
		return q[j] & 63, q[j+4] & 63
	}
	sc = (q[j+4] & 0x0F) | ((q[j-4] >> 6) << 4)
	m = (q[j+4] >> 4) | ((q[j] >> 6) << 4)
	return sc, m
}

// UnpackNibbles splits b into its low and high 4-bit halves.
func UnpackNibbles(b byte) (lo, hi uint8) {
	return b & 0x0F, b >> 4
}

// Unpack6 splits three bytes into four 6-bit codes, least significant bits first.
func Unpack6(b0, b1, b2 byte) [4]uint8 {
	return [4]uint8{
		b0 & 0x3F,
		(b0 >> 6) | ((b1 & 0x0F) << 2),
		(b1 >> 4) | ((b2 & 0x03) << 4),
		b2 >> 2,
	}
}
