package tokenizer

import (
	"cmp"
	"fmt"
	"strings"

	"github.com/dlclark/regexp2"
	heap "github.com/emirpasic/gods/v2/trees/binaryheap"

	"github.com/born-ml/ggufrt/internal/errdefs"
	"github.com/born-ml/ggufrt/internal/logutil"
)

// DefaultPretokenizer is the GPT-2 byte-level split pattern.
const DefaultPretokenizer = `'s|'t|'re|'ve|'m|'ll|'d| ?\p{L}+| ?\p{N}+| ?[^\s\p{L}\p{N}]+|\s+(?!\S)|\s+`

// BytePairEncoding implements byte-level BPE driven by the ranked merges of
// tokenizer.ggml.merges.
type BytePairEncoding struct {
	vocab   *Vocabulary
	regexps []*regexp2.Regexp
}

var _ Tokenizer = (*BytePairEncoding)(nil)

// NewBytePairEncoding compiles the pretokenizer patterns, applied in order.
// With none, DefaultPretokenizer is used.
func NewBytePairEncoding(vocab *Vocabulary, pretokenizers ...string) (*BytePairEncoding, error) {
	if len(pretokenizers) == 0 {
		pretokenizers = []string{DefaultPretokenizer}
	}

	bpe := &BytePairEncoding{vocab: vocab}
	for _, p := range pretokenizers {
		re, err := regexp2.Compile(p, regexp2.RE2)
		if err != nil {
			return nil, errdefs.Format("compile pretokenizer", "%q: %v", p, err)
		}
		bpe.regexps = append(bpe.regexps, re)
	}
	return bpe, nil
}

// Vocabulary returns the token table.
func (bpe *BytePairEncoding) Vocabulary() *Vocabulary { return bpe.vocab }

// VocabSize returns the number of tokens.
func (bpe *BytePairEncoding) VocabSize() int { return len(bpe.vocab.Values) }

// BosToken returns the beginning-of-sequence id or -1.
func (bpe *BytePairEncoding) BosToken() int32 { return bpe.vocab.BOS }

// EosToken returns the end-of-sequence id or -1.
func (bpe *BytePairEncoding) EosToken() int32 { return bpe.vocab.EOS }

// IsSpecialToken reports whether token is a control token.
func (bpe *BytePairEncoding) IsSpecialToken(token int32) bool { return bpe.vocab.IsSpecial(token) }

// split applies each pretokenizer to the pieces produced by the previous one.
// Text between matches is kept as its own piece.
func (bpe *BytePairEncoding) split(s string) []string {
	parts := []string{s}
	for _, re := range bpe.regexps {
		var next []string
		for _, part := range parts {
			r := []rune(part)
			var offset int
			m, _ := re.FindRunesMatch(r)
			for ; m != nil; m, _ = re.FindNextMatch(m) {
				if m.Index > offset {
					next = append(next, string(r[offset:m.Index]))
				}
				next = append(next, m.String())
				offset = m.Index + m.Length
			}
			if offset < len(r) {
				next = append(next, string(r[offset:]))
			}
		}
		parts = next
	}
	return parts
}

// rank is a candidate merge of two adjacent pieces.
type rank struct {
	a, b  int
	rank  int
	value string
}

// Encode converts text to token IDs.
func (bpe *BytePairEncoding) Encode(s string) ([]int32, error) {
	var ids []int32
	for _, frag := range splitSpecial(bpe.vocab, s) {
		if len(frag.ids) > 0 {
			ids = append(ids, frag.ids...)
			continue
		}
		for _, piece := range bpe.split(frag.value) {
			ids = bpe.encodePiece(ids, byteLevel(piece))
		}
	}

	ids = bpe.vocab.addSpecials(ids)
	logutil.Trace("encoded", "string", s, "ids", ids)
	return ids, nil
}

func (bpe *BytePairEncoding) encodePiece(ids []int32, text string) []int32 {
	if id := bpe.vocab.ID(text); id >= 0 {
		return append(ids, id)
	}

	runes := []rune(text)
	merges := make([]merge, len(runes))
	for r := range runes {
		merges[r] = merge{p: r - 1, n: r + 1, runes: []rune{runes[r]}}
	}

	pairwise := func(a, b int) *rank {
		if a < 0 || b >= len(runes) {
			return nil
		}
		left, right := string(merges[a].runes), string(merges[b].runes)
		r := bpe.vocab.Merge(left, right)
		if r < 0 {
			return nil
		}
		return &rank{a: a, b: b, rank: r, value: left + right}
	}

	pairs := heap.NewWith(func(x, y *rank) int {
		if c := cmp.Compare(x.rank, y.rank); c != 0 {
			return c
		}
		return cmp.Compare(x.a, y.a)
	})
	for i := range len(runes) - 1 {
		if p := pairwise(i, i+1); p != nil {
			pairs.Push(p)
		}
	}

	for !pairs.Empty() {
		p, _ := pairs.Pop()
		left, right := merges[p.a], merges[p.b]
		if len(left.runes) == 0 || len(right.runes) == 0 || string(left.runes)+string(right.runes) != p.value {
			continue
		}
		if bpe.vocab.ID(p.value) < 0 {
			continue
		}

		merges[p.a].runes = append(left.runes, right.runes...)
		merges[p.b].runes = nil
		merges[p.a].n = right.n
		if right.n < len(merges) {
			merges[right.n].p = p.a
		}

		if next := pairwise(merges[p.a].p, p.a); next != nil {
			pairs.Push(next)
		}
		if next := pairwise(p.a, merges[p.a].n); next != nil {
			pairs.Push(next)
		}
	}

	for _, m := range merges {
		if len(m.runes) == 0 {
			continue
		}
		if id := bpe.vocab.ID(string(m.runes)); id >= 0 {
			ids = append(ids, id)
		} else if bpe.vocab.UNK >= 0 {
			ids = append(ids, bpe.vocab.UNK)
		}
	}
	return ids
}

// Decode converts token IDs back to text.
func (bpe *BytePairEncoding) Decode(ids []int32) (string, error) {
	var sb strings.Builder
	for _, id := range ids {
		if id < 0 || int(id) >= len(bpe.vocab.Values) {
			return "", fmt.Errorf("decode: token id %d is out of vocabulary range [0, %d)", id, len(bpe.vocab.Values))
		}
		if bpe.vocab.Type(id) == TokenTypeControl {
			sb.WriteString(bpe.vocab.Values[id])
			continue
		}
		for _, r := range bpe.vocab.Values[id] {
			if b, ok := unByteLevel(r); ok {
				sb.WriteByte(b)
			}
		}
	}
	return sb.String(), nil
}

// byteLevel maps every byte of s to the printable rune GPT-2 vocabularies use
// for it.
func byteLevel(s string) string {
	var sb strings.Builder
	for _, b := range []byte(s) {
		r := rune(b)
		switch {
		case r == 0x00ad:
			r = 0x0143
		case r <= 0x0020:
			r += 0x0100
		case r >= 0x007f && r <= 0x00a0:
			r += 0x00a2
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// unByteLevel inverts byteLevel. U+0100 stands for NUL, which is dropped.
func unByteLevel(r rune) (byte, bool) {
	switch {
	case r == 0x0100:
		return 0, false
	case r == 0x0143:
		return 0xad, true
	case r > 0x0100 && r <= 0x0120:
		return byte(r - 0x0100), true
	case r > 0x0120 && r <= 0x0142:
		return byte(r - 0x00a2), true
	default:
		return byte(r), true //nolint:gosec // G115: other runes of a byte-level vocabulary are below 0x100.
	}
}
