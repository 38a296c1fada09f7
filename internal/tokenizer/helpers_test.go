package tokenizer

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/born-ml/ggufrt/internal/gguf"
)

// spmVocab is a small SentencePiece table. "hello" merges to "hell" "o"
// because "hell" outscores "llo".
func spmVocab() *Vocabulary {
	return &Vocabulary{
		Values: []string{"<unk>", "<s>", "</s>", "h", "e", "l", "o", "he", "ll", "hell", "llo", "▁o", "<0xC3>", "<0xA9>"},
		Types:  []int32{2, 3, 3, 1, 1, 1, 1, 1, 1, 1, 1, 1, 6, 6},
		Scores: []float32{0, 0, 0, -10, -10, -10, -10, -1, -0.5, -2, -3, -1, 0, 0},
		BOS:    1,
		EOS:    2,
		UNK:    0,
	}
}

// bpeVocab is a small byte-level table with ranked merges.
func bpeVocab() *Vocabulary {
	return &Vocabulary{
		Values: []string{"<|endoftext|>", "h", "e", "l", "o", "Ġ", "w", "r", "d", "he", "ll", "hell", "Ġw", "or", "Ġwor", "ld"},
		Types:  []int32{3, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1},
		Merges: []string{"h e", "l l", "he ll", "Ġ w", "o r", "Ġw or", "l d"},
		BOS:    -1,
		EOS:    0,
		UNK:    -1,
	}
}

func int32sValue(items []int32) gguf.Value {
	values := make([]gguf.Value, len(items))
	for i, v := range items {
		values[i] = gguf.Int32Value(v)
	}
	return gguf.ArrayValue(gguf.ValueTypeInt32, values)
}

// vocabWriter stores v under the tokenizer.ggml keys.
func vocabWriter(model string, v *Vocabulary) *gguf.Writer {
	w := gguf.NewWriter()
	w.SetMetadata(gguf.KeyArchitecture, gguf.StringValue("llama"))
	w.SetMetadata(gguf.KeyTokenizer, gguf.StringValue(model))
	w.SetMetadata(gguf.KeyTokens, gguf.StringsValue(v.Values))
	w.SetMetadata(gguf.KeyTokenTypes, int32sValue(v.Types))
	if v.Scores != nil {
		w.SetMetadata(gguf.KeyScores, gguf.Float32sValue(v.Scores))
	}
	if v.Merges != nil {
		w.SetMetadata(gguf.KeyMerges, gguf.StringsValue(v.Merges))
	}
	if v.BOS >= 0 {
		w.SetMetadata(gguf.KeyBOS, gguf.Uint32Value(uint32(v.BOS)))
	}
	if v.EOS >= 0 {
		w.SetMetadata(gguf.KeyEOS, gguf.Uint32Value(uint32(v.EOS)))
	}
	return w
}

func parse(t *testing.T, w *gguf.Writer) *gguf.File {
	t.Helper()
	var buf bytes.Buffer
	_, err := w.WriteTo(&buf)
	require.NoError(t, err)
	r, err := gguf.NewReader(bytes.NewReader(buf.Bytes()), 64)
	require.NoError(t, err)
	f, err := gguf.Parse(r)
	require.NoError(t, err)
	return f
}
