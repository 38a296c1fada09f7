package gguf

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"unicode/utf8"

	"github.com/x448/float16"

	"github.com/born-ml/ggufrt/internal/errdefs"
)

// DefaultBufferSize is the read-ahead used when NewReader gets a non-positive size.
const DefaultBufferSize = 1 << 20

// Reader is a positioned little-endian cursor over a seekable byte source.
//
// Reads go through a large read-ahead buffer. SeekTo moves the underlying source
// and drops the buffer, so the buffered view and the tracked position never
// diverge. A Reader is not safe for concurrent use.
type Reader struct {
	src     io.ReadSeeker
	buf     *bufio.Reader
	pos     int64
	size    int64 // -1 if the source length is unknown.
	scratch [8]byte
}

// NewReader wraps rs, starting at its current position.
func NewReader(rs io.ReadSeeker, bufSize int) (*Reader, error) {
	if bufSize <= 0 {
		bufSize = DefaultBufferSize
	}

	pos, err := rs.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, errdefs.IO("seek", errdefs.NoOffset, 0, err)
	}

	size := int64(-1)
	if end, err := rs.Seek(0, io.SeekEnd); err == nil {
		size = end
	}
	if _, err := rs.Seek(pos, io.SeekStart); err != nil {
		return nil, errdefs.IO("seek", pos, 0, err)
	}

	return &Reader{
		src:  rs,
		buf:  bufio.NewReaderSize(rs, bufSize),
		pos:  pos,
		size: size,
	}, nil
}

// Position returns the offset of the next byte to be read.
func (r *Reader) Position() int64 {
	return r.pos
}

// Size returns the source length, or -1 if unknown.
func (r *Reader) Size() int64 {
	return r.size
}

// Remaining returns the number of unread bytes, or -1 if the size is unknown.
func (r *Reader) Remaining() int64 {
	if r.size < 0 {
		return -1
	}
	return max(r.size-r.pos, 0)
}

// SeekTo moves the cursor to the absolute offset pos.
// The source must report exactly pos after seeking.
func (r *Reader) SeekTo(pos int64) error {
	got, err := r.src.Seek(pos, io.SeekStart)
	if err != nil {
		return errdefs.IO("seek", pos, 0, err)
	}
	if got != pos {
		return errdefs.IO("seek", pos, 0, fmt.Errorf("source reported position %d", got))
	}
	r.buf.Reset(r.src)
	r.pos = pos
	return nil
}

// fill reads exactly len(p) bytes into p.
func (r *Reader) fill(op string, p []byte) error {
	n, err := io.ReadFull(r.buf, p)
	if err != nil {
		start := r.pos
		r.pos += int64(n)
		return errdefs.IO(op, start, int64(len(p)), err)
	}
	r.pos += int64(n)
	return nil
}

// checkLen rejects a declared element count that cannot fit in the rest of the source.
func (r *Reader) checkLen(op string, n, elemSize uint64) error {
	if r.size < 0 || elemSize == 0 {
		return nil
	}
	remaining := uint64(max(r.size-r.pos, 0)) //nolint:gosec // G115: clamped to non-negative.
	if n > remaining/elemSize {
		return &errdefs.Error{
			Kind:    errdefs.ErrFormat,
			Op:      op,
			Details: fmt.Sprintf("declared length %d exceeds remaining %d bytes", n, remaining),
			Offset:  r.pos,
		}
	}
	return nil
}

// Uint8 reads one byte.
func (r *Reader) Uint8() (uint8, error) {
	if err := r.fill("read u8", r.scratch[:1]); err != nil {
		return 0, err
	}
	return r.scratch[0], nil
}

// Int8 reads a signed byte.
func (r *Reader) Int8() (int8, error) {
	v, err := r.Uint8()
	return int8(v), err //nolint:gosec // G115: two's complement reinterpretation.
}

// Uint16 reads a little-endian uint16.
func (r *Reader) Uint16() (uint16, error) {
	if err := r.fill("read u16", r.scratch[:2]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(r.scratch[:2]), nil
}

// Int16 reads a little-endian int16.
func (r *Reader) Int16() (int16, error) {
	v, err := r.Uint16()
	return int16(v), err //nolint:gosec // G115: two's complement reinterpretation.
}

// Uint32 reads a little-endian uint32.
func (r *Reader) Uint32() (uint32, error) {
	if err := r.fill("read u32", r.scratch[:4]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(r.scratch[:4]), nil
}

// Int32 reads a little-endian int32.
func (r *Reader) Int32() (int32, error) {
	v, err := r.Uint32()
	return int32(v), err //nolint:gosec // G115: two's complement reinterpretation.
}

// Uint64 reads a little-endian uint64.
func (r *Reader) Uint64() (uint64, error) {
	if err := r.fill("read u64", r.scratch[:8]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(r.scratch[:8]), nil
}

// Int64 reads a little-endian int64.
func (r *Reader) Int64() (int64, error) {
	v, err := r.Uint64()
	return int64(v), err //nolint:gosec // G115: two's complement reinterpretation.
}

// Float32 reads an IEEE-754 binary32.
func (r *Reader) Float32() (float32, error) {
	v, err := r.Uint32()
	return math.Float32frombits(v), err
}

// Float64 reads an IEEE-754 binary64.
func (r *Reader) Float64() (float64, error) {
	v, err := r.Uint64()
	return math.Float64frombits(v), err
}

// Float16 reads an IEEE-754 binary16 and widens it to float32.
func (r *Reader) Float16() (float32, error) {
	v, err := r.Uint16()
	if err != nil {
		return 0, err
	}
	return float16.Frombits(v).Float32(), nil
}

// Bool reads a byte that must be 0 or 1.
func (r *Reader) Bool() (bool, error) {
	start := r.pos
	v, err := r.Uint8()
	if err != nil {
		return false, err
	}
	switch v {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, &errdefs.Error{
			Kind:    errdefs.ErrFormat,
			Op:      "read bool",
			Details: fmt.Sprintf("invalid bool byte %d", v),
			Offset:  start,
		}
	}
}

// Str reads a u64 length followed by that many UTF-8 bytes.
func (r *Reader) Str() (string, error) {
	n, err := r.Uint64()
	if err != nil {
		return "", err
	}
	if err := r.checkLen("read string", n, 1); err != nil {
		return "", err
	}
	start := r.pos
	b := make([]byte, n)
	if err := r.fill("read string", b); err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", &errdefs.Error{Kind: errdefs.ErrFormat, Op: "read string", Offset: start, Size: int64(n), Err: ErrInvalidUTF8} //nolint:gosec // G115: bounded by checkLen.
	}
	return string(b), nil
}

// Bytes reads exactly n raw bytes.
func (r *Reader) Bytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if err := r.ReadFull(b); err != nil {
		return nil, err
	}
	return b, nil
}

// ReadFull fills p from the stream.
func (r *Reader) ReadFull(p []byte) error {
	return r.fill("read bytes", p)
}

// Float32s fills dst with consecutive little-endian float32 values.
func (r *Reader) Float32s(dst []float32) error {
	const chunk = 4096
	var raw [chunk * 4]byte
	for len(dst) > 0 {
		n := min(len(dst), chunk)
		b := raw[:n*4]
		if err := r.fill("read f32 array", b); err != nil {
			return err
		}
		for i := range n {
			dst[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
		}
		dst = dst[n:]
	}
	return nil
}

// Value reads one value of type t. Arrays are read recursively.
func (r *Reader) Value(t ValueType) (Value, error) {
	switch t {
	case ValueTypeUint8:
		v, err := r.Uint8()
		return Uint8Value(v), err
	case ValueTypeInt8:
		v, err := r.Int8()
		return Int8Value(v), err
	case ValueTypeUint16:
		v, err := r.Uint16()
		return Uint16Value(v), err
	case ValueTypeInt16:
		v, err := r.Int16()
		return Int16Value(v), err
	case ValueTypeUint32:
		v, err := r.Uint32()
		return Uint32Value(v), err
	case ValueTypeInt32:
		v, err := r.Int32()
		return Int32Value(v), err
	case ValueTypeUint64:
		v, err := r.Uint64()
		return Uint64Value(v), err
	case ValueTypeInt64:
		v, err := r.Int64()
		return Int64Value(v), err
	case ValueTypeFloat32:
		v, err := r.Float32()
		return Float32Value(v), err
	case ValueTypeFloat64:
		v, err := r.Float64()
		return Float64Value(v), err
	case ValueTypeBool:
		v, err := r.Bool()
		return BoolValue(v), err
	case ValueTypeString:
		v, err := r.Str()
		return StringValue(v), err
	case ValueTypeArray:
		return r.Array()
	default:
		return Value{}, fmt.Errorf("value type %d at offset %d: %w", uint32(t), r.pos, ErrUnknownValueType)
	}
}

// Array reads a u32 element type, a u64 length and that many values.
func (r *Reader) Array() (Value, error) {
	start := r.pos
	code, err := r.Uint32()
	if err != nil {
		return Value{}, err
	}
	elem := ValueType(code)
	if !elem.Valid() {
		return Value{}, fmt.Errorf("array element type %d at offset %d: %w", code, start, ErrUnknownValueType)
	}
	n, err := r.Uint64()
	if err != nil {
		return Value{}, err
	}
	if err := r.checkLen("read array", n, elem.minEncodedSize()); err != nil {
		return Value{}, err
	}

	items := make([]Value, n)
	for i := range items {
		if items[i], err = r.Value(elem); err != nil {
			return Value{}, fmt.Errorf("array item %d: %w", i, err)
		}
	}
	return ArrayValue(elem, items), nil
}
