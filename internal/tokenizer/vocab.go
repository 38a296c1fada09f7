package tokenizer

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/born-ml/ggufrt/internal/errdefs"
	"github.com/born-ml/ggufrt/internal/gguf"
)

// Token types stored under tokenizer.ggml.token_type.
const (
	TokenTypeNormal      int32 = 1
	TokenTypeUnknown     int32 = 2
	TokenTypeControl     int32 = 3
	TokenTypeUserDefined int32 = 4
	TokenTypeUnused      int32 = 5
	TokenTypeByte        int32 = 6
)

// Tokenizer model names stored under tokenizer.ggml.model.
const (
	ModelSentencePiece = "llama"
	ModelBPE           = "gpt2"
)

// ErrUnsupportedModel is returned for a tokenizer.ggml.model this package
// cannot run.
var ErrUnsupportedModel = errdefs.Sentinel(errdefs.ErrValidation, "unsupported tokenizer model")

// Vocabulary is the token table of a container.
type Vocabulary struct {
	Values []string
	Types  []int32
	Scores []float32
	Merges []string

	BOS, EOS, UNK  int32 // -1 when absent.
	AddBOS, AddEOS bool

	valuesOnce sync.Once
	values     map[string]int32

	mergeOnce sync.Once
	merge     map[string]int

	specialOnce sync.Once
	special     []string
}

// ID returns the id of token, or -1.
func (v *Vocabulary) ID(token string) int32 {
	v.valuesOnce.Do(func() {
		v.values = make(map[string]int32, len(v.Values))
		for i, value := range v.Values {
			v.values[value] = int32(i) //nolint:gosec // G115: vocabularies are far below 2^31.
		}
	})
	if id, ok := v.values[token]; ok {
		return id
	}
	return -1
}

// Token returns the text of id, or "" when id is out of range.
func (v *Vocabulary) Token(id int32) string {
	if id < 0 || int(id) >= len(v.Values) {
		return ""
	}
	return v.Values[id]
}

// Type returns the token type of id. Tokens without a type are normal.
func (v *Vocabulary) Type(id int32) int32 {
	if id < 0 || int(id) >= len(v.Types) {
		return TokenTypeNormal
	}
	return v.Types[id]
}

// Score returns the merge score of id, or 0.
func (v *Vocabulary) Score(id int32) float32 {
	if id < 0 || int(id) >= len(v.Scores) {
		return 0
	}
	return v.Scores[id]
}

// Merge returns the rank of the merge "left right", or -1.
func (v *Vocabulary) Merge(left, right string) int {
	v.mergeOnce.Do(func() {
		v.merge = make(map[string]int, len(v.Merges))
		for i, m := range v.Merges {
			v.merge[m] = i
		}
	})
	if rank, ok := v.merge[left+" "+right]; ok {
		return rank
	}
	return -1
}

// IsSpecial reports whether id is BOS, EOS, UNK or a control token.
func (v *Vocabulary) IsSpecial(id int32) bool {
	if id < 0 {
		return false
	}
	if id == v.BOS || id == v.EOS || id == v.UNK {
		return true
	}
	return v.Type(id) == TokenTypeControl
}

// specialTokens lists control and user-defined tokens, longest first so that
// a token is never split by a shorter one it contains.
func (v *Vocabulary) specialTokens() []string {
	v.specialOnce.Do(func() {
		for i, t := range v.Types {
			if i >= len(v.Values) || v.Values[i] == "" {
				continue
			}
			if t == TokenTypeControl || t == TokenTypeUserDefined {
				v.special = append(v.special, v.Values[i])
			}
		}
		slices.SortStableFunc(v.special, func(a, b string) int { return len(b) - len(a) })
	})
	return v.special
}

// addSpecials applies AddBOS and AddEOS to ids.
func (v *Vocabulary) addSpecials(ids []int32) []int32 {
	if v.AddBOS && v.BOS >= 0 {
		if len(ids) > 0 && ids[0] == v.BOS {
			slog.Warn("adding bos token to prompt which already has it", "id", v.BOS)
		}
		ids = append([]int32{v.BOS}, ids...)
	}
	if v.AddEOS && v.EOS >= 0 {
		ids = append(ids, v.EOS)
	}
	return ids
}

// LoadVocabulary reads the tokenizer.ggml.* entries of f.
func LoadVocabulary(f *gguf.File) (*Vocabulary, error) {
	v, ok := f.Lookup(gguf.KeyTokens)
	if !ok {
		return nil, errdefs.NotFound("load vocabulary", gguf.KeyTokens)
	}
	values, ok := v.Strings()
	if !ok {
		return nil, errdefs.Format("load vocabulary", "%s is %s, expected array of string", gguf.KeyTokens, v.Type())
	}

	vocab := &Vocabulary{Values: values, BOS: -1, EOS: -1, UNK: -1}

	if v, ok := f.Lookup(gguf.KeyScores); ok {
		if vocab.Scores, ok = v.Float32s(); !ok {
			return nil, errdefs.Format("load vocabulary", "%s is %s, expected array of float", gguf.KeyScores, v.Type())
		}
	}
	if v, ok := f.Lookup(gguf.KeyTokenTypes); ok {
		if vocab.Types, ok = v.Int32s(); !ok {
			return nil, errdefs.Format("load vocabulary", "%s is %s, expected array of integer", gguf.KeyTokenTypes, v.Type())
		}
	}
	if v, ok := f.Lookup(gguf.KeyMerges); ok {
		if vocab.Merges, ok = v.Strings(); !ok {
			return nil, errdefs.Format("load vocabulary", "%s is %s, expected array of string", gguf.KeyMerges, v.Type())
		}
	}
	specials := []struct {
		key string
		dst *int32
	}{
		{gguf.KeyBOS, &vocab.BOS},
		{gguf.KeyEOS, &vocab.EOS},
		{gguf.KeyUNK, &vocab.UNK},
	}
	for _, sp := range specials {
		id, ok := f.Uint(sp.key)
		if !ok {
			continue
		}
		if id >= uint64(len(values)) {
			return nil, errdefs.Validation("load vocabulary", "%s = %d is outside vocabulary of %d tokens", sp.key, id, len(values))
		}
		*sp.dst = int32(id) //nolint:gosec // G115: checked against the vocabulary size.
	}

	vocab.AddBOS = boolOr(f, gguf.KeyAddBOS, vocab.BOS >= 0 && modelName(f) == ModelSentencePiece)
	vocab.AddEOS = boolOr(f, gguf.KeyAddEOS, false)
	return vocab, nil
}

// FromGGUF builds the tokenizer described by the metadata of f.
func FromGGUF(f *gguf.File) (Tokenizer, error) {
	vocab, err := LoadVocabulary(f)
	if err != nil {
		return nil, err
	}

	switch name := modelName(f); name {
	case ModelSentencePiece:
		if len(vocab.Scores) != len(vocab.Values) {
			return nil, errdefs.Validation("load tokenizer", "%d scores for %d tokens", len(vocab.Scores), len(vocab.Values))
		}
		return NewSentencePiece(vocab), nil
	case ModelBPE:
		var pre []string
		if v, ok := f.Lookup(gguf.KeyPretokenizer); ok {
			if s, ok := v.Str(); ok && s != "" {
				pre = append(pre, s)
			}
		}
		return NewBytePairEncoding(vocab, pre...)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedModel, name)
	}
}

func modelName(f *gguf.File) string {
	if v, ok := f.Lookup(gguf.KeyTokenizer); ok {
		if s, ok := v.Str(); ok {
			return s
		}
	}
	return ""
}

func boolOr(f *gguf.File, key string, def bool) bool {
	if v, ok := f.Lookup(key); ok {
		if b, ok := v.Bool(); ok {
			return b
		}
	}
	return def
}
