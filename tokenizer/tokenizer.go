// Package tokenizer provides text tokenization for GGUF checkpoints.
//
// This package wraps the internal tokenizer implementations and provides
// a clean public API for tokenization tasks.
//
// Supported tokenizers:
//   - SentencePiece: score-ordered merges with byte fallback ("llama")
//   - BPE: byte-level BPE driven by ranked merges ("gpt2")
//   - TikToken: OpenAI encodings, for checkpoints without a vocabulary
//
// Example usage:
//
//	import (
//	    "github.com/born-ml/ggufrt/loader"
//	    "github.com/born-ml/ggufrt/tokenizer"
//	)
//
//	store, err := loader.Open("model.gguf")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer store.Close()
//
//	tok, err := tokenizer.FromGGUF(store.File())
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Encode text
//	tokens, err := tok.Encode("Hello, world!")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Decode tokens
//	text, err := tok.Decode(tokens)
package tokenizer

import (
	"github.com/born-ml/ggufrt/internal/gguf"
	"github.com/born-ml/ggufrt/internal/tokenizer"
)

// Tokenizer is the core interface for text tokenization.
//
// All tokenizer implementations must implement this interface.
type Tokenizer = tokenizer.Tokenizer

// Vocabulary is the token table stored under tokenizer.ggml.*.
type Vocabulary = tokenizer.Vocabulary

// ErrUnsupportedModel is returned for a tokenizer model that cannot be run.
var ErrUnsupportedModel = tokenizer.ErrUnsupportedModel

// FromGGUF builds the tokenizer described by the metadata of f.
//
// Returns an error wrapping ErrUnsupportedModel when tokenizer.ggml.model
// names neither "llama" nor "gpt2".
func FromGGUF(f *gguf.File) (Tokenizer, error) {
	return tokenizer.FromGGUF(f)
}

// LoadVocabulary reads the token table of f without building a tokenizer.
func LoadVocabulary(f *gguf.File) (*Vocabulary, error) {
	return tokenizer.LoadVocabulary(f)
}

// NewTikToken creates a new TikToken tokenizer with the specified encoding.
//
// Supported encodings: "cl100k_base", "p50k_base", "r50k_base". An empty
// name uses GGUFRT_ENCODING, then "cl100k_base".
func NewTikToken(encodingName string) (Tokenizer, error) {
	tok, err := tokenizer.NewTikToken(encodingName)
	if err != nil {
		return nil, err
	}
	return tok, nil
}
