package tokenizer

import "strings"

// Tokenizer converts between text and token ids.
type Tokenizer interface {
	// Encode converts text to token IDs.
	Encode(text string) ([]int32, error)

	// Decode converts token IDs back to text.
	Decode(tokens []int32) (string, error)

	// VocabSize returns the total vocabulary size.
	VocabSize() int

	// BosToken returns the beginning-of-sequence token ID.
	// Returns -1 if not applicable.
	BosToken() int32

	// EosToken returns the end-of-sequence token ID.
	// Returns -1 if not applicable.
	EosToken() int32

	// IsSpecialToken checks if a token ID is a special token.
	IsSpecialToken(token int32) bool
}

// fragment is a piece of input text, already resolved to ids when it is a
// special token.
type fragment struct {
	value string
	ids   []int32
}

// splitSpecial cuts s around every occurrence of the vocabulary's special
// tokens so they are never merged with surrounding text.
func splitSpecial(v *Vocabulary, s string) []fragment {
	fragments := []fragment{{value: s}}
	for _, special := range v.specialTokens() {
		id := v.ID(special)
		for i := 0; i < len(fragments); i++ {
			frag := fragments[i]
			if len(frag.ids) > 0 {
				continue
			}

			var middle []fragment
			switch at := strings.Index(frag.value, special); {
			case at < 0:
				continue
			case at > 0:
				middle = append(middle, fragment{value: frag.value[:at]})
				fallthrough
			default:
				middle = append(middle, fragment{value: special, ids: []int32{id}})
				if rest := frag.value[at+len(special):]; rest != "" {
					middle = append(middle, fragment{value: rest})
				}
			}

			fragments = append(fragments[:i], append(middle, fragments[i+1:]...)...)
		}
	}
	return fragments
}
