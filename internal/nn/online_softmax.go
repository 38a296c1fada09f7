package nn

import "math"

// OnlineSoftmax computes a softmax-weighted sum of vectors incrementally,
// without storing the scores.
//
// It keeps the running maximum and the running sum of exp(score - max). When
// a new score raises the maximum, the accumulated output and sum are rescaled
// by exp(oldMax - newMax), so every exponent stays non-positive.
//
// Example:
//
//	acc := nn.NewOnlineSoftmax(64)
//	for p := range n {
//	    acc.Add(score[p], value[p])
//	}
//	acc.Normalize(out)
type OnlineSoftmax struct {
	maxVal  float32   // Running maximum.
	sumExp  float32   // Running sum of exp(x - max).
	output  []float32 // Accumulated weighted output [headDim].
	headDim int
}

// NewOnlineSoftmax creates an empty accumulator for vectors of headDim floats.
func NewOnlineSoftmax(headDim int) *OnlineSoftmax {
	return &OnlineSoftmax{
		maxVal:  float32(math.Inf(-1)),
		output:  make([]float32, headDim),
		headDim: headDim,
	}
}

// Add accumulates value weighted by exp(score). value must hold headDim floats.
func (o *OnlineSoftmax) Add(score float32, value []float32) {
	if len(value) != o.headDim {
		panic("nn: OnlineSoftmax.Add: value length must be headDim")
	}

	if score > o.maxVal {
		correction := float32(math.Exp(float64(o.maxVal - score)))
		o.sumExp *= correction
		for i := range o.output {
			o.output[i] *= correction
		}
		o.maxVal = score
	}

	w := float32(math.Exp(float64(score - o.maxVal)))
	o.sumExp += w
	for i, v := range value {
		o.output[i] += w * v
	}
}

// Normalize writes the weighted sum divided by the sum of weights to dst.
// dst is zeroed if nothing was added.
func (o *OnlineSoftmax) Normalize(dst []float32) {
	if o.sumExp == 0 {
		clear(dst)
		return
	}
	inv := 1 / o.sumExp
	for i := range dst {
		dst[i] = o.output[i] * inv
	}
}

// Reset clears the accumulator for the next query.
func (o *OnlineSoftmax) Reset() {
	o.maxVal = float32(math.Inf(-1))
	o.sumExp = 0
	clear(o.output)
}
