package loader

import (
	"github.com/born-ml/ggufrt/internal/errdefs"
	"github.com/born-ml/ggufrt/internal/gguf"
)

// EmbeddingTensorNames lists the embedding table names in lookup order.
var EmbeddingTensorNames = []string{
	"token_embd.weight",
	"tok_embeddings.weight",
	"embeddings.weight",
}

// EmbeddingShape returns (hidden, vocab) for a 2-D embedding table stored in
// either orientation. The smaller dimension is taken as the hidden size.
func EmbeddingShape(dims []uint64) (hidden, vocab int, err error) {
	if len(dims) != 2 {
		return 0, 0, errdefs.Validation("embedding shape", "expected 2-D embedding tensor, got %dD %v", len(dims), dims)
	}
	a, b := int(dims[0]), int(dims[1]) //nolint:gosec // G115: dims of a decoded tensor fit in memory.
	if a < b {
		return a, b, nil
	}
	return b, a, nil
}

// embeddingName returns the first candidate present in the directory.
func (s *Store) embeddingName() (string, error) {
	for _, name := range EmbeddingTensorNames {
		if s.Has(name) {
			return name, nil
		}
	}
	return "", errdefs.NotFound("embedding lookup", EmbeddingTensorNames[0])
}

// EmbeddingTensor returns the embedding table, loading it on first use.
func (s *Store) EmbeddingTensor() (*gguf.Tensor, error) {
	name, err := s.embeddingName()
	if err != nil {
		return nil, err
	}
	return s.LoadOne(name)
}

// Embed returns one hidden-size row per token id, dequantizing quantized
// tables on the fly.
func (s *Store) Embed(ids []uint32) ([][]float32, error) {
	t, err := s.EmbeddingTensor()
	if err != nil {
		return nil, err
	}
	return LookupEmbeddings(t, ids)
}

// EmbedFrom is like Embed but reads from the named table.
func (s *Store) EmbedFrom(name string, ids []uint32) ([][]float32, error) {
	t, err := s.LoadOne(name)
	if err != nil {
		return nil, err
	}
	return LookupEmbeddings(t, ids)
}

// LookupEmbeddings selects rows of t. Row id starts at element id*hidden.
// All ids are checked before any row is produced.
func LookupEmbeddings(t *gguf.Tensor, ids []uint32) ([][]float32, error) {
	hidden, vocab, err := EmbeddingShape(t.Dims)
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		if int(id) >= vocab {
			return nil, errdefs.Validation("embedding lookup", "token id %d is out of vocabulary range [0, %d)", id, vocab)
		}
	}

	out := make([][]float32, len(ids))
	for i, id := range ids {
		row := make([]float32, hidden)
		t.Row(int(id)*hidden, row)
		out[i] = row
	}
	return out, nil
}

// EmbeddingDim returns the hidden size of a cached embedding table.
// It never decodes; the table must have been loaded.
func (s *Store) EmbeddingDim() (int, error) {
	t, err := s.cachedEmbedding()
	if err != nil {
		return 0, err
	}
	hidden, _, err := EmbeddingShape(t.Dims)
	return hidden, err
}

// VocabSize returns the vocabulary size of a cached embedding table.
func (s *Store) VocabSize() (int, error) {
	t, err := s.cachedEmbedding()
	if err != nil {
		return 0, err
	}
	_, vocab, err := EmbeddingShape(t.Dims)
	return vocab, err
}

func (s *Store) cachedEmbedding() (*gguf.Tensor, error) {
	for _, name := range EmbeddingTensorNames {
		if t, ok := s.Get(name); ok {
			return t, nil
		}
	}
	return nil, errdefs.NotFound("embedding", EmbeddingTensorNames[0])
}
