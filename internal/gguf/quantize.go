package gguf

import (
	"encoding/binary"
	"math"

	"github.com/x448/float16"
)

// Superblock is the logical content of one 256-element K-quant superblock.
type Superblock struct {
	D, DMin float32  // Stored as binary16.
	Scales  [8]uint8 // 6-bit scale codes, one per 32-element sub-block.
	Mins    [8]uint8 // 6-bit offset codes.
	Quants  [SuperblockElements]uint8
}

// AppendQ4K appends the 144-byte Q4K encoding of s to dst.
// Quants are masked to 4 bits.
func (s *Superblock) AppendQ4K(dst []byte) []byte {
	dst = s.appendHeader(dst)
	for g := range 4 {
		for l := range 32 {
			lo := s.Quants[g*64+l] & 0x0F
			hi := s.Quants[g*64+32+l] & 0x0F
			dst = append(dst, lo|hi<<4)
		}
	}
	return dst
}

// AppendQ6K appends the 208-byte Q6K encoding of s to dst.
// Quants are masked to 6 bits.
func (s *Superblock) AppendQ6K(dst []byte) []byte {
	dst = s.appendHeader(dst)
	for t := range SuperblockElements / 4 {
		v0 := s.Quants[t*4] & 0x3F
		v1 := s.Quants[t*4+1] & 0x3F
		v2 := s.Quants[t*4+2] & 0x3F
		v3 := s.Quants[t*4+3] & 0x3F
		dst = append(dst,
			v0|v1<<6,
			v1>>2|v2<<4,
			v2>>4|v3<<2,
		)
	}
	return dst
}

func (s *Superblock) appendHeader(dst []byte) []byte {
	dst = binary.LittleEndian.AppendUint16(dst, float16.Fromfloat32(s.D).Bits())
	dst = binary.LittleEndian.AppendUint16(dst, float16.Fromfloat32(s.DMin).Bits())
	packed := packScaleMinK4(s.Scales, s.Mins)
	return append(dst, packed[:]...)
}

// packScaleMinK4 is the inverse of scaleMinK4.
func packScaleMinK4(sc, m [8]uint8) [scaleBytes]byte {
	var q [scaleBytes]byte
	for j := range 4 {
		q[j] = sc[j]&63 | (sc[j+4]>>4)<<6
		q[j+4] = m[j]&63 | (m[j+4]>>4)<<6
	}
	for j := 4; j < 8; j++ {
		q[j+4] = sc[j]&0x0F | (m[j]&0x0F)<<4
	}
	return q
}

// QuantizeQ4K encodes values as Q4K superblocks, padding the tail with zeros.
func QuantizeQ4K(values []float32) []byte {
	return quantizeK(values, 15, (*Superblock).AppendQ4K)
}

// QuantizeQ6K encodes values as Q6K superblocks, padding the tail with zeros.
func QuantizeQ6K(values []float32) []byte {
	return quantizeK(values, 63, (*Superblock).AppendQ6K)
}

// quantizeK fits each 32-element sub-block with x ~ q*scale + offset where
// offset <= 0, then encodes scales and offsets as 6-bit multiples of d and dmin.
func quantizeK(values []float32, qmax float32, appendBlock func(*Superblock, []byte) []byte) []byte {
	supers := (len(values) + SuperblockElements - 1) / SuperblockElements
	out := make([]byte, 0, supers*KindQ6K.SuperblockBytes())

	for s := range supers {
		var x [SuperblockElements]float32
		copy(x[:], values[s*SuperblockElements:min(len(values), (s+1)*SuperblockElements)])

		var scale, offset [subblocksPerSuper]float32
		var maxScale, minOffset float32
		for j := range subblocksPerSuper {
			lo, hi := x[j*32], x[j*32]
			for _, v := range x[j*32 : j*32+32] {
				lo = min(lo, v)
				hi = max(hi, v)
			}
			offset[j] = min(lo, 0)
			scale[j] = (hi - offset[j]) / qmax
			maxScale = max(maxScale, scale[j])
			minOffset = min(minOffset, offset[j])
		}

		sb := Superblock{
			D:    roundF16(maxScale / 63),
			DMin: roundF16(minOffset / 63),
		}
		for j := range subblocksPerSuper {
			// Round scales up and offsets down so every value stays in range.
			if sb.D > 0 {
				sb.Scales[j] = clampCode(math.Ceil(float64(scale[j] / sb.D)))
			}
			if sb.DMin < 0 {
				sb.Mins[j] = clampCode(math.Ceil(float64(offset[j] / sb.DMin)))
			}
			sc := sb.D * float32(sb.Scales[j])
			off := sb.DMin * float32(sb.Mins[j])
			for l := range 32 {
				q := float32(0)
				if sc > 0 {
					q = float32(math.Round(float64((x[j*32+l] - off) / sc)))
				}
				sb.Quants[j*32+l] = uint8(max(0, min(q, qmax)))
			}
		}
		out = appendBlock(&sb, out)
	}
	return out
}

func clampCode(v float64) uint8 {
	return uint8(max(0, min(v, 63)))
}

func roundF16(v float32) float32 {
	return float16.Fromfloat32(v).Float32()
}

func f16(lo, hi byte) float32 {
	return float16.Frombits(uint16(lo) | uint16(hi)<<8).Float32()
}
