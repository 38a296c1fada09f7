// Package loader opens GGUF checkpoints and decodes their tensors.
//
// This package wraps the internal store and exports the API the CLI and
// library users need: a lazily decoding, name-keyed tensor cache plus
// embedding lookup.
//
// Example usage:
//
//	import (
//	    "github.com/born-ml/ggufrt/loader"
//	)
//
//	store, err := loader.Open("path/to/model.gguf")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer store.Close()
//
//	fmt.Printf("Architecture: %s\n", store.File().Architecture())
//
//	// Decode one tensor by its container or canonical name
//	w, err := store.LoadOne("blk.0.attn_q.weight")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(w.Kind(), w.Shape())
package loader

import (
	"io"

	"github.com/born-ml/ggufrt/internal/gguf"
	"github.com/born-ml/ggufrt/internal/loader"
)

// Store owns an open checkpoint and the tensors decoded from it.
type Store = loader.Store

// Option configures a Store.
type Option = loader.Option

// Tensor is a decoded tensor. Quantized tensors keep their superblocks.
type Tensor = gguf.Tensor

// TensorInfo is one entry of the tensor directory.
type TensorInfo = gguf.TensorInfo

// File is the parsed header, metadata and tensor directory.
type File = gguf.File

// Value is a typed metadata value.
type Value = gguf.Value

// Kind identifies the storage encoding of a tensor.
type Kind = gguf.Kind

// Supported tensor kinds.
const (
	KindF32 = gguf.KindF32
	KindQ4K = gguf.KindQ4K
	KindQ6K = gguf.KindQ6K
)

// Open opens the checkpoint at path and parses its directory. No tensor
// payload is read until LoadOne or LoadAll.
//
// Example:
//
//	store, err := loader.Open("path/to/model.gguf", loader.WithBufferSize(4<<20))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer store.Close()
//
//	for _, info := range store.Directory() {
//	    fmt.Println(info.Name, info.Kind, info.Dimensions)
//	}
func Open(path string, opts ...Option) (*Store, error) {
	return loader.Open(path, opts...)
}

// New parses a checkpoint from rs. The caller keeps ownership of rs.
func New(rs io.ReadSeeker, opts ...Option) (*Store, error) {
	return loader.New(rs, opts...)
}

// WithBufferSize sets the read-ahead buffer size.
func WithBufferSize(n int) Option {
	return loader.WithBufferSize(n)
}

// MapName converts a Hugging Face style weight name to the container name.
// Names already in container form are returned unchanged.
func MapName(name string) string {
	return loader.MapName(name)
}

// LookupEmbeddings returns the rows of an embedding table for ids.
func LookupEmbeddings(t *Tensor, ids []uint32) ([][]float32, error) {
	return loader.LookupEmbeddings(t, ids)
}
