package gguf

import (
	"bufio"
	"cmp"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"math"
	"slices"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Writer assembles a container in memory and serializes it with WriteTo.
//
// Tensors are laid out in the order they are added, each payload starting at
// an offset aligned to general.alignment relative to the payload region.
type Writer struct {
	metadata *orderedmap.OrderedMap[string, Value]
	tensors  []pendingTensor
	version  uint32
}

type pendingTensor struct {
	info    TensorInfo
	payload []byte
	fixed   bool // Offset was given explicitly.
}

// NewWriter returns an empty version 3 container.
func NewWriter() *Writer {
	return &Writer{
		metadata: orderedmap.New[string, Value](),
		version:  Version3,
	}
}

// SetVersion overrides the header version.
func (w *Writer) SetVersion(v uint32) {
	w.version = v
}

// SetMetadata adds or replaces a metadata entry. Entries keep first-insertion order.
func (w *Writer) SetMetadata(key string, v Value) {
	w.metadata.Set(key, v)
}

// AddTensor appends a tensor. The payload must already be encoded for kind.
func (w *Writer) AddTensor(name string, dims []uint64, kind Kind, payload []byte) {
	w.tensors = append(w.tensors, pendingTensor{
		info:    TensorInfo{Name: name, Dimensions: dims, Kind: kind},
		payload: payload,
	})
}

// AddF32 appends an F32 tensor.
func (w *Writer) AddF32(name string, dims []uint64, values []float32) {
	payload := make([]byte, 0, len(values)*4)
	for _, v := range values {
		payload = binary.LittleEndian.AppendUint32(payload, math.Float32bits(v))
	}
	w.AddTensor(name, dims, KindF32, payload)
}

// AddTensorAt appends a descriptor with an explicit offset. Its payload is
// written at that offset, which may overlap or leave gaps.
func (w *Writer) AddTensorAt(info TensorInfo, payload []byte) {
	w.tensors = append(w.tensors, pendingTensor{info: info, payload: payload, fixed: true})
}

func (w *Writer) alignment() uint64 {
	if v, ok := w.metadata.Get(KeyAlignment); ok {
		if a, ok := v.Uint(); ok && a > 0 {
			return a
		}
	}
	return DefaultAlignment
}

// Layout assigns payload offsets and returns the directory as it will be written.
func (w *Writer) Layout() []TensorInfo {
	align := int64(w.alignment()) //nolint:gosec // G115: alignment is small.
	var next int64
	infos := make([]TensorInfo, len(w.tensors))
	for i := range w.tensors {
		t := &w.tensors[i]
		if !t.fixed {
			t.info.Offset = uint64(next) //nolint:gosec // G115: non-negative.
			next = alignOffset(next+int64(len(t.payload)), uint64(align)) //nolint:gosec // G115: non-negative.
		}
		infos[i] = t.info
	}
	return infos
}

// WriteTo serializes the container to out.
func (w *Writer) WriteTo(out io.Writer) (int64, error) {
	cw := &countingWriter{w: bufio.NewWriter(out)}
	infos := w.Layout()

	cw.raw([]byte(Magic))
	cw.u32(w.version)
	cw.u64(uint64(len(infos)))
	cw.u64(uint64(w.metadata.Len())) //nolint:gosec // G115: non-negative.

	for pair := w.metadata.Oldest(); pair != nil; pair = pair.Next() {
		cw.str(pair.Key)
		cw.u32(uint32(pair.Value.Type()))
		cw.value(pair.Value)
	}

	for _, info := range infos {
		slog.Debug("write tensor info", "name", info.Name, "kind", info.Kind, "offset", info.Offset)
		cw.str(info.Name)
		cw.u32(uint32(len(info.Dimensions))) //nolint:gosec // G115: rank is small.
		for _, d := range info.Dimensions {
			cw.u64(d)
		}
		cw.u32(uint32(info.Kind))
		cw.u64(info.Offset)
	}

	base := alignOffset(cw.n, w.alignment())
	cw.pad(base - cw.n)

	// Payloads in offset order so the stream only moves forward.
	order := make([]int, len(infos))
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int {
		return cmp.Compare(infos[a].Offset, infos[b].Offset)
	})
	for _, i := range order {
		target := base + int64(infos[i].Offset) //nolint:gosec // G115: offsets are small in practice.
		if gap := target - cw.n; gap > 0 {
			cw.pad(gap)
		} else if gap < 0 {
			return cw.n, fmt.Errorf("tensor %q: payload at %d overlaps previous payload", infos[i].Name, target)
		}
		cw.raw(w.tensors[i].payload)
	}

	if cw.err == nil {
		cw.err = cw.w.Flush()
	}
	return cw.n, cw.err
}

// countingWriter tracks the byte count and keeps the first error.
type countingWriter struct {
	w   *bufio.Writer
	n   int64
	err error
	buf [8]byte
}

func (c *countingWriter) raw(p []byte) {
	if c.err != nil {
		return
	}
	n, err := c.w.Write(p)
	c.n += int64(n)
	c.err = err
}

func (c *countingWriter) pad(n int64) {
	for range n {
		c.raw([]byte{0})
	}
}

func (c *countingWriter) u8(v uint8) { c.raw([]byte{v}) }

func (c *countingWriter) u16(v uint16) {
	binary.LittleEndian.PutUint16(c.buf[:2], v)
	c.raw(c.buf[:2])
}

func (c *countingWriter) u32(v uint32) {
	binary.LittleEndian.PutUint32(c.buf[:4], v)
	c.raw(c.buf[:4])
}

func (c *countingWriter) u64(v uint64) {
	binary.LittleEndian.PutUint64(c.buf[:8], v)
	c.raw(c.buf[:8])
}

func (c *countingWriter) str(s string) {
	c.u64(uint64(len(s)))
	c.raw([]byte(s))
}

//nolint:gosec // G115: values were range-checked when built.
func (c *countingWriter) value(v Value) {
	switch v.typ {
	case ValueTypeUint8:
		c.u8(uint8(v.u))
	case ValueTypeInt8:
		c.u8(uint8(v.i))
	case ValueTypeUint16:
		c.u16(uint16(v.u))
	case ValueTypeInt16:
		c.u16(uint16(v.i))
	case ValueTypeUint32:
		c.u32(uint32(v.u))
	case ValueTypeInt32:
		c.u32(uint32(v.i))
	case ValueTypeUint64:
		c.u64(v.u)
	case ValueTypeInt64:
		c.u64(uint64(v.i))
	case ValueTypeFloat32:
		c.u32(math.Float32bits(float32(v.f)))
	case ValueTypeFloat64:
		c.u64(math.Float64bits(v.f))
	case ValueTypeBool:
		if v.b {
			c.u8(1)
		} else {
			c.u8(0)
		}
	case ValueTypeString:
		c.str(v.s)
	case ValueTypeArray:
		c.u32(uint32(v.elem))
		c.u64(uint64(len(v.items)))
		for _, item := range v.items {
			c.value(item)
		}
	}
}
