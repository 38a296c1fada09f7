// Package tokenizer converts between text and token ids.
//
// Containers carry their vocabulary under the tokenizer.ggml.* metadata keys.
// FromGGUF reads it and returns a SentencePiece tokenizer for
// tokenizer.ggml.model "llama" or a byte-level BytePairEncoding for "gpt2".
// TikToken wraps a named tiktoken encoding for containers without a
// vocabulary.
//
// Example usage:
//
//	f, err := gguf.ParseFile("model.gguf")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	tok, err := tokenizer.FromGGUF(f)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	ids, err := tok.Encode("Hello, world!")
package tokenizer
