package nn

import (
	"math"

	"github.com/born-ml/ggufrt/internal/backend/cpu"
	"github.com/born-ml/ggufrt/internal/errdefs"
)

// Attend computes single-query scaled dot-product attention for one head
// over positions [0, cache.Len()):
//
//	out = Σ_p softmax(q·K[p]/sqrt(headDim))[p] * V[p]
//
// scores is caller-owned scratch of at least cache.Len() floats. With grouped
// heads, head is the key/value head the query head maps to.
func Attend(q []float32, cache *KVCache, head int, out, scores []float32) error {
	n, err := checkAttend(q, cache, head, out)
	if err != nil {
		return err
	}
	if len(scores) < n {
		return errdefs.Validation("attend", "scores scratch holds %d, need %d", len(scores), n)
	}

	scale := float32(1 / math.Sqrt(float64(cache.headDim)))
	scores = scores[:n]
	for p := range n {
		scores[p] = cpu.Dot(q, cache.Key(p, head)) * scale
	}
	if err := cpu.Softmax(scores, scores); err != nil {
		return err
	}

	clear(out)
	for p, w := range scores {
		cpu.Axpy(w, cache.Value(p, head), out)
	}
	return nil
}

// AttendStreaming computes the same result as Attend in one pass over the
// cache, using acc instead of a scores buffer. acc must have been created for
// cache.HeadDim().
func AttendStreaming(q []float32, cache *KVCache, head int, out []float32, acc *OnlineSoftmax) error {
	n, err := checkAttend(q, cache, head, out)
	if err != nil {
		return err
	}
	if acc.headDim != cache.headDim {
		return errdefs.Validation("attend", "accumulator head dim %d, cache head dim %d", acc.headDim, cache.headDim)
	}

	scale := float32(1 / math.Sqrt(float64(cache.headDim)))
	acc.Reset()
	for p := range n {
		acc.Add(cpu.Dot(q, cache.Key(p, head))*scale, cache.Value(p, head))
	}
	acc.Normalize(out)
	return nil
}

func checkAttend(q []float32, cache *KVCache, head int, out []float32) (int, error) {
	switch {
	case len(q) != cache.headDim:
		return 0, errdefs.Validation("attend", "query size %d, head dim %d", len(q), cache.headDim)
	case len(out) != cache.headDim:
		return 0, errdefs.Validation("attend", "output size %d, head dim %d", len(out), cache.headDim)
	case head < 0 || head >= cache.heads:
		return 0, errdefs.Validation("attend", "head %d out of range [0, %d)", head, cache.heads)
	case cache.Len() == 0:
		return 0, errdefs.Validation("attend", "empty cache")
	}
	return cache.Len(), nil
}
