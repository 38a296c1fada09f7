// Package gguf reads GGUF model containers and decodes their tensor payloads.
//
// A container is a little-endian stream made of a fixed header, a list of typed
// metadata entries, a tensor directory and an aligned payload region. This
// package parses the first three eagerly and decodes payloads on demand into
// Tensor values whose quantized data is kept in block form.
//
// Specification: https://github.com/ggerganov/ggml/blob/master/docs/gguf.md
package gguf

import (
	"fmt"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Magic is the four-byte tag every container starts with.
const Magic = "GGUF"

// MagicGGUFLE is Magic read as a little-endian uint32.
const MagicGGUFLE uint32 = 0x46554747

// Supported container versions.
const (
	Version2 uint32 = 2
	Version3 uint32 = 3 // Current version.
)

// DefaultAlignment is the payload alignment when general.alignment is absent.
const DefaultAlignment = 32

// MaxDims bounds the rank of a tensor descriptor.
const MaxDims = 8

// MaxAlignment bounds the general.alignment metadata value.
const MaxAlignment = 1 << 20

// Well-known metadata keys.
const (
	KeyArchitecture = "general.architecture"
	KeyName         = "general.name"
	KeyAlignment    = "general.alignment"
	KeyTokenizer    = "tokenizer.ggml.model"
	KeyPretokenizer = "tokenizer.ggml.pretokenizer"
	KeyTokens       = "tokenizer.ggml.tokens"
	KeyScores       = "tokenizer.ggml.scores"
	KeyTokenTypes   = "tokenizer.ggml.token_type"
	KeyMerges       = "tokenizer.ggml.merges"
	KeyBOS          = "tokenizer.ggml.bos_token_id"
	KeyEOS          = "tokenizer.ggml.eos_token_id"
	KeyUNK          = "tokenizer.ggml.unknown_token_id"
	KeyAddBOS       = "tokenizer.ggml.add_bos_token"
	KeyAddEOS       = "tokenizer.ggml.add_eos_token"
)

// ValueType represents the type of a metadata value.
type ValueType uint32

// Metadata value types as defined in the GGUF format.
const (
	ValueTypeUint8   ValueType = 0
	ValueTypeInt8    ValueType = 1
	ValueTypeUint16  ValueType = 2
	ValueTypeInt16   ValueType = 3
	ValueTypeUint32  ValueType = 4
	ValueTypeInt32   ValueType = 5
	ValueTypeFloat32 ValueType = 6
	ValueTypeBool    ValueType = 7
	ValueTypeString  ValueType = 8
	ValueTypeArray   ValueType = 9
	ValueTypeUint64  ValueType = 10
	ValueTypeInt64   ValueType = 11
	ValueTypeFloat64 ValueType = 12
)

var valueTypeNames = map[ValueType]string{
	ValueTypeUint8:   "uint8",
	ValueTypeInt8:    "int8",
	ValueTypeUint16:  "uint16",
	ValueTypeInt16:   "int16",
	ValueTypeUint32:  "uint32",
	ValueTypeInt32:   "int32",
	ValueTypeFloat32: "float32",
	ValueTypeBool:    "bool",
	ValueTypeString:  "string",
	ValueTypeArray:   "array",
	ValueTypeUint64:  "uint64",
	ValueTypeInt64:   "int64",
	ValueTypeFloat64: "float64",
}

// String returns the string representation of the value type.
func (t ValueType) String() string {
	if name, ok := valueTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", t)
}

// Valid reports whether t is one of the thirteen defined type codes.
func (t ValueType) Valid() bool {
	return t <= ValueTypeFloat64
}

// minEncodedSize is the smallest number of bytes one value of type t can occupy.
func (t ValueType) minEncodedSize() uint64 {
	switch t {
	case ValueTypeUint8, ValueTypeInt8, ValueTypeBool:
		return 1
	case ValueTypeUint16, ValueTypeInt16:
		return 2
	case ValueTypeUint32, ValueTypeInt32, ValueTypeFloat32:
		return 4
	case ValueTypeString, ValueTypeUint64, ValueTypeInt64, ValueTypeFloat64:
		return 8
	case ValueTypeArray:
		return 12
	default:
		return 1
	}
}

// Header represents the fixed container header.
type Header struct {
	Version       uint32
	TensorCount   uint64
	MetadataCount uint64
}

// TensorInfo describes one entry of the tensor directory.
type TensorInfo struct {
	Name       string
	Dimensions []uint64 // Row-major, slowest-varying first.
	Kind       Kind
	Offset     uint64 // Relative to File.DataOffset.
}

// NDims returns the number of dimensions.
func (t TensorInfo) NDims() int {
	return len(t.Dimensions)
}

// NumElements returns the product of the dimensions. Parse rejects
// descriptors whose product does not fit in a uint64.
func (t TensorInfo) NumElements() uint64 {
	n := uint64(1)
	for _, d := range t.Dimensions {
		n *= d
	}
	return n
}

// Size returns the payload size in bytes, or false if the kind is not supported.
func (t TensorInfo) Size() (uint64, bool) {
	if !t.Kind.Known() {
		return 0, false
	}
	return t.Kind.PayloadSize(t.NumElements()), true
}

// File represents a parsed container: header, metadata and tensor directory.
type File struct {
	Header     Header
	Metadata   *orderedmap.OrderedMap[string, Value] // In file order.
	Tensors    []TensorInfo                          // In directory order.
	Alignment  uint64
	DataOffset int64 // Absolute start of the payload region.

	// Source info, set by ParseFile.
	FilePath string
	FileSize int64

	index map[string]int
}

// Lookup returns the metadata value stored under key.
func (f *File) Lookup(key string) (Value, bool) {
	return f.Metadata.Get(key)
}

// Keys returns the metadata keys in file order.
func (f *File) Keys() []string {
	keys := make([]string, 0, f.Metadata.Len())
	for pair := f.Metadata.Oldest(); pair != nil; pair = pair.Next() {
		keys = append(keys, pair.Key)
	}
	return keys
}

// Tensor finds a directory entry by name.
func (f *File) Tensor(name string) (TensorInfo, bool) {
	i, ok := f.index[name]
	if !ok {
		return TensorInfo{}, false
	}
	return f.Tensors[i], true
}

// Architecture returns the model architecture (e.g., "llama").
func (f *File) Architecture() string {
	return f.str(KeyArchitecture)
}

// Name returns the model name.
func (f *File) Name() string {
	return f.str(KeyName)
}

func (f *File) str(key string) string {
	if v, ok := f.Lookup(key); ok {
		if s, ok := v.Str(); ok {
			return s
		}
	}
	return ""
}

// Uint returns an integer metadata value of any width. Signed values are
// accepted when non-negative.
func (f *File) Uint(key string) (uint64, bool) {
	v, ok := f.Lookup(key)
	if !ok {
		return 0, false
	}
	if n, ok := v.Uint(); ok {
		return n, true
	}
	if n, ok := v.Int(); ok && n >= 0 {
		return uint64(n), true
	}
	return 0, false
}

// Float returns a floating point metadata value of either width.
func (f *File) Float(key string) (float64, bool) {
	v, ok := f.Lookup(key)
	if !ok {
		return 0, false
	}
	return v.Float()
}

func (f *File) archInt(suffix string) int {
	n, _ := f.Uint(f.Architecture() + "." + suffix)
	return int(n) //nolint:gosec // G115: hyper-parameters are small.
}

// ContextLength returns the maximum context length.
func (f *File) ContextLength() int {
	return f.archInt("context_length")
}

// EmbeddingLength returns the embedding dimension.
func (f *File) EmbeddingLength() int {
	return f.archInt("embedding_length")
}

// BlockCount returns the number of transformer blocks.
func (f *File) BlockCount() int {
	return f.archInt("block_count")
}

// FeedForwardLength returns the FFN intermediate size.
func (f *File) FeedForwardLength() int {
	return f.archInt("feed_forward_length")
}

// HeadCount returns the number of attention heads.
func (f *File) HeadCount() int {
	return f.archInt("attention.head_count")
}

// HeadCountKV returns the number of KV heads, defaulting to HeadCount.
func (f *File) HeadCountKV() int {
	if kv := f.archInt("attention.head_count_kv"); kv != 0 {
		return kv
	}
	return f.HeadCount()
}

// RopeDimensionCount returns the rotary dimension, or 0 if absent.
func (f *File) RopeDimensionCount() int {
	return f.archInt("rope.dimension_count")
}

// RopeFreqBase returns the rotary base frequency (default 10000).
func (f *File) RopeFreqBase() float32 {
	if v, ok := f.Float(f.Architecture() + ".rope.freq_base"); ok {
		return float32(v)
	}
	return 10000
}

// RMSEpsilon returns the RMS normalization epsilon (default 1e-5).
func (f *File) RMSEpsilon() float32 {
	if v, ok := f.Float(f.Architecture() + ".attention.layer_norm_rms_epsilon"); ok {
		return float32(v)
	}
	return 1e-5
}

// alignOffset rounds offset up to a multiple of alignment.
func alignOffset(offset int64, alignment uint64) int64 {
	if alignment == 0 {
		alignment = DefaultAlignment
	}
	a := int64(alignment) //nolint:gosec // G115: alignment is validated to be small.
	return offset + (a-offset%a)%a
}
