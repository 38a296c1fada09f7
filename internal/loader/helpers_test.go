package loader

import (
	"bytes"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/born-ml/ggufrt/internal/gguf"
)

// embeddingValues returns a [hidden, vocab] table where row id holds
// id*10, id*10+1, ...
func embeddingValues(hidden, vocab int) []float32 {
	v := make([]float32, hidden*vocab)
	for id := range vocab {
		for j := range hidden {
			v[id*hidden+j] = float32(id*10 + j)
		}
	}
	return v
}

// testWriter builds a small llama-style checkpoint.
func testWriter() *gguf.Writer {
	w := gguf.NewWriter()
	w.SetMetadata(gguf.KeyArchitecture, gguf.StringValue(ArchitectureLLaMA))
	w.SetMetadata("llama.embedding_length", gguf.Uint32Value(4))
	w.AddF32(OutputNorm, []uint64{4}, []float32{1, 1, 1, 1})
	w.AddF32(TokenEmbedding, []uint64{4, 6}, embeddingValues(4, 6))
	return w
}

func encode(t *testing.T, w *gguf.Writer) []byte {
	t.Helper()
	var buf bytes.Buffer
	_, err := w.WriteTo(&buf)
	require.NoError(t, err)
	return buf.Bytes()
}

func newTestStore(t *testing.T, w *gguf.Writer) *Store {
	t.Helper()
	s, err := New(bytes.NewReader(encode(t, w)),
		WithBufferSize(64),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	require.NoError(t, err)
	return s
}
