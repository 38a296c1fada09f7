package tokenizer

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"

	"github.com/born-ml/ggufrt/internal/envconfig"
)

// Known tiktoken encodings and their <|endoftext|> ids.
var tiktokenEOS = map[string]int32{
	"cl100k_base": 100257,
	"p50k_base":   50256,
	"r50k_base":   50256,
}

// Known tiktoken vocabulary sizes, excluding special tokens.
var tiktokenVocab = map[string]int{
	"cl100k_base": 100256,
	"p50k_base":   50281,
	"r50k_base":   50257,
}

// TikToken wraps a tiktoken encoding. It is used by the run command for
// containers that carry no tokenizer.ggml vocabulary.
type TikToken struct {
	encoding *tiktoken.Tiktoken
	name     string
}

var _ Tokenizer = (*TikToken)(nil)

// NewTikToken loads the named encoding, or GGUFRT_ENCODING when name is empty.
func NewTikToken(name string) (*TikToken, error) {
	if name == "" {
		name = envconfig.Encoding()
	}
	if name == "" {
		name = "cl100k_base"
	}
	encoding, err := tiktoken.GetEncoding(name)
	if err != nil {
		return nil, fmt.Errorf("load tiktoken encoding %q: %w", name, err)
	}
	return &TikToken{encoding: encoding, name: name}, nil
}

// Name returns the encoding name.
func (t *TikToken) Name() string { return t.name }

// Encode converts text to token IDs. Special tokens in text are encoded as
// plain text.
func (t *TikToken) Encode(text string) ([]int32, error) {
	tokens := t.encoding.Encode(text, nil, nil)
	out := make([]int32, len(tokens))
	for i, tok := range tokens {
		out[i] = int32(tok) //nolint:gosec // G115: tiktoken ids fit in int32.
	}
	return out, nil
}

// Decode converts token IDs back to text.
func (t *TikToken) Decode(tokens []int32) (string, error) {
	ids := make([]int, len(tokens))
	for i, tok := range tokens {
		if tok < 0 {
			return "", fmt.Errorf("decode: negative token id %d", tok)
		}
		ids[i] = int(tok)
	}
	return t.encoding.Decode(ids), nil
}

// VocabSize returns the size of the known encoding, or 0 for others.
func (t *TikToken) VocabSize() int { return tiktokenVocab[t.name] }

// BosToken returns -1; tiktoken encodings have no BOS token.
func (t *TikToken) BosToken() int32 { return -1 }

// EosToken returns <|endoftext|> for known encodings and -1 otherwise.
func (t *TikToken) EosToken() int32 {
	if id, ok := tiktokenEOS[t.name]; ok {
		return id
	}
	return -1
}

// IsSpecialToken reports whether token is <|endoftext|> or lies above the
// ordinary vocabulary of a known encoding.
func (t *TikToken) IsSpecialToken(token int32) bool {
	if token >= 0 && token == t.EosToken() {
		return true
	}
	n, ok := tiktokenVocab[t.name]
	return ok && int(token) >= n
}
