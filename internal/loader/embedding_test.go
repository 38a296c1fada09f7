package loader

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/ggufrt/internal/errdefs"
	"github.com/born-ml/ggufrt/internal/gguf"
)

func TestEmbeddingShape(t *testing.T) {
	hidden, vocab, err := EmbeddingShape([]uint64{4096, 32000})
	require.NoError(t, err)
	assert.Equal(t, 4096, hidden)
	assert.Equal(t, 32000, vocab)

	hidden, vocab, err = EmbeddingShape([]uint64{32000, 4096})
	require.NoError(t, err)
	assert.Equal(t, 4096, hidden)
	assert.Equal(t, 32000, vocab)

	_, _, err = EmbeddingShape([]uint64{10})
	assert.ErrorIs(t, err, errdefs.ErrValidation)
}

func TestEmbed(t *testing.T) {
	s := newTestStore(t, testWriter())

	rows, err := s.Embed([]uint32{0, 5, 2})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{
		{0, 1, 2, 3},
		{50, 51, 52, 53},
		{20, 21, 22, 23},
	}, rows)

	hidden, err := s.EmbeddingDim()
	require.NoError(t, err)
	assert.Equal(t, 4, hidden)
	vocab, err := s.VocabSize()
	require.NoError(t, err)
	assert.Equal(t, 6, vocab)
}

func TestEmbedOutOfRange(t *testing.T) {
	s := newTestStore(t, testWriter())

	_, err := s.Embed([]uint32{1, 6})
	require.Error(t, err)
	assert.ErrorIs(t, err, errdefs.ErrValidation)
	assert.Contains(t, err.Error(), "token id 6 is out of vocabulary range [0, 6)")

	rows, err := s.Embed([]uint32{5})
	require.NoError(t, err)
	assert.Len(t, rows[0], 4)
}

func TestEmbedQuantized(t *testing.T) {
	values := make([]float32, 64*8)
	for i := range values {
		values[i] = float32(i%64)/32 - 1
	}
	w := gguf.NewWriter()
	w.AddTensor("tok_embeddings.weight", []uint64{8, 64}, gguf.KindQ4K, gguf.QuantizeQ4K(values))
	s := newTestStore(t, w)

	rows, err := s.Embed([]uint32{3})
	require.NoError(t, err)
	require.Len(t, rows[0], 8)

	tbl, ok := s.Get("tok_embeddings.weight")
	require.True(t, ok)
	for j, v := range rows[0] {
		assert.Equal(t, tbl.At(3*8+j), v)
		assert.InDelta(t, values[3*8+j], v, 0.2)
	}
}

func TestEmbedMissingTable(t *testing.T) {
	w := gguf.NewWriter()
	w.AddF32(OutputNorm, []uint64{4}, []float32{1, 2, 3, 4})
	s := newTestStore(t, w)

	_, err := s.Embed([]uint32{0})
	assert.ErrorIs(t, err, errdefs.ErrNotFound)

	_, err = s.EmbeddingDim()
	assert.ErrorIs(t, err, errdefs.ErrNotFound)
}

func TestEmbedFrom(t *testing.T) {
	s := newTestStore(t, testWriter())

	_, err := s.EmbedFrom(OutputNorm, []uint32{0})
	assert.ErrorIs(t, err, errdefs.ErrValidation, "1-D table")

	rows, err := s.EmbedFrom(TokenEmbedding, []uint32{1})
	require.NoError(t, err)
	assert.Equal(t, []float32{10, 11, 12, 13}, rows[0])
}
