package tokenizer

import (
	"container/heap"
	"fmt"
	"strconv"
	"strings"

	"github.com/born-ml/ggufrt/internal/logutil"
)

const spmWhitespaceSep = "▁"

// SentencePiece merges adjacent pieces greedily by vocabulary score, falling
// back to <0xXX> byte tokens for pieces the vocabulary lacks.
type SentencePiece struct {
	vocab *Vocabulary
}

var _ Tokenizer = (*SentencePiece)(nil)

// NewSentencePiece returns a SentencePiece tokenizer over vocab.
func NewSentencePiece(vocab *Vocabulary) *SentencePiece {
	logutil.Trace("sentencepiece vocabulary", "tokens", len(vocab.Values), "bos", vocab.BOS, "eos", vocab.EOS)
	return &SentencePiece{vocab: vocab}
}

// Vocabulary returns the token table.
func (spm *SentencePiece) Vocabulary() *Vocabulary { return spm.vocab }

// VocabSize returns the number of tokens.
func (spm *SentencePiece) VocabSize() int { return len(spm.vocab.Values) }

// BosToken returns the beginning-of-sequence id or -1.
func (spm *SentencePiece) BosToken() int32 { return spm.vocab.BOS }

// EosToken returns the end-of-sequence id or -1.
func (spm *SentencePiece) EosToken() int32 { return spm.vocab.EOS }

// IsSpecialToken reports whether token is a control token.
func (spm *SentencePiece) IsSpecialToken(token int32) bool { return spm.vocab.IsSpecial(token) }

// Encode converts text to token IDs.
func (spm *SentencePiece) Encode(s string) ([]int32, error) {
	var ids []int32
	for _, frag := range splitSpecial(spm.vocab, s) {
		if len(frag.ids) > 0 {
			ids = append(ids, frag.ids...)
			continue
		}
		ids = spm.encodeFragment(ids, strings.ReplaceAll(frag.value, " ", spmWhitespaceSep))
	}

	ids = spm.vocab.addSpecials(ids)
	logutil.Trace("encoded", "string", s, "ids", ids)
	return ids, nil
}

func (spm *SentencePiece) encodeFragment(ids []int32, text string) []int32 {
	if id := spm.vocab.ID(text); id >= 0 {
		return append(ids, id)
	}

	runes := []rune(text)
	merges := make([]merge, len(runes))
	for r := range runes {
		merges[r] = merge{p: r - 1, n: r + 1, runes: []rune{runes[r]}}
	}

	pairwise := func(a, b int) *candidate {
		if a < 0 || b >= len(runes) {
			return nil
		}
		left, right := string(merges[a].runes), string(merges[b].runes)
		id := spm.vocab.ID(left + right)
		if id < 0 {
			return nil
		}
		return &candidate{a: a, b: b, score: spm.vocab.Score(id), size: len(left) + len(right)}
	}

	q := &queue{}
	for i := range len(runes) - 1 {
		if c := pairwise(i, i+1); c != nil {
			heap.Push(q, c)
		}
	}

	for q.Len() > 0 {
		c := heap.Pop(q).(*candidate) //nolint:forcetypeassert // queue only holds candidates.
		left, right := merges[c.a], merges[c.b]
		// Stale entry: one side was merged away since it was queued.
		if len(left.runes) == 0 || len(right.runes) == 0 || len(string(left.runes))+len(string(right.runes)) != c.size {
			continue
		}

		merges[c.a].runes = append(left.runes, right.runes...)
		merges[c.b].runes = nil
		merges[c.a].n = right.n
		if right.n < len(merges) {
			merges[right.n].p = c.a
		}

		if next := pairwise(merges[c.a].p, c.a); next != nil {
			heap.Push(q, next)
		}
		if next := pairwise(c.a, merges[c.a].n); next != nil {
			heap.Push(q, next)
		}
	}

	for _, m := range merges {
		if len(m.runes) == 0 {
			continue
		}
		token := string(m.runes)
		if id := spm.vocab.ID(token); id >= 0 {
			ids = append(ids, id)
			continue
		}
		for _, b := range []byte(token) {
			byteToken := fmt.Sprintf("<0x%02X>", b)
			if id := spm.vocab.ID(byteToken); id >= 0 {
				ids = append(ids, id)
			} else if spm.vocab.UNK >= 0 {
				ids = append(ids, spm.vocab.UNK)
			}
		}
	}
	return ids
}

// Decode converts token IDs back to text. Byte tokens are emitted as raw bytes.
func (spm *SentencePiece) Decode(ids []int32) (string, error) {
	var sb strings.Builder
	for _, id := range ids {
		if id < 0 || int(id) >= len(spm.vocab.Values) {
			return "", fmt.Errorf("decode: token id %d is out of vocabulary range [0, %d)", id, len(spm.vocab.Values))
		}
		data := spm.vocab.Values[id]
		if isByteToken(data) {
			b, err := strconv.ParseUint(data[1:5], 0, 8)
			if err != nil {
				return "", fmt.Errorf("decode byte token %q: %w", data, err)
			}
			sb.WriteByte(byte(b))
			continue
		}
		sb.WriteString(strings.ReplaceAll(data, spmWhitespaceSep, " "))
	}
	return sb.String(), nil
}

func isByteToken(s string) bool {
	return len(s) == 6 && strings.HasPrefix(s, "<0x") && strings.HasSuffix(s, ">")
}

// merge is a piece of the input linked to its live neighbours.
type merge struct {
	p, n  int
	runes []rune
}

type candidate struct {
	a, b  int
	score float32
	size  int
}

// queue orders candidates by descending score, leftmost first on ties.
type queue []*candidate

func (q queue) Len() int { return len(q) }

func (q queue) Less(i, j int) bool {
	return q[i].score > q[j].score || (q[i].score == q[j].score && q[i].a < q[j].a)
}

func (q queue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *queue) Push(x any) { *q = append(*q, x.(*candidate)) } //nolint:forcetypeassert // heap.Interface.

func (q *queue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}
