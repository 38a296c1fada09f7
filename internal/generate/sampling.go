// Package generate runs autoregressive text generation on top of a model that
// produces next-token logits one position at a time.
package generate

import (
	"cmp"
	"math"
	"math/rand/v2"
	"slices"

	"github.com/born-ml/ggufrt/internal/backend/cpu"
)

// SamplingConfig configures the sampling strategy for text generation.
type SamplingConfig struct {
	// Temperature controls randomness. 0 = greedy, 1 = normal, >1 = more random.
	Temperature float32

	// TopK limits sampling to top K tokens. 0 = disabled.
	TopK int

	// TopP (nucleus sampling) limits to tokens with cumulative prob < P. 1.0 = disabled.
	TopP float32

	// MinP filters tokens with prob < max_prob * MinP. 0 = disabled.
	MinP float32

	// Repetition control
	RepeatPenalty    float32 // Penalty for repeated tokens. 1.0 = no penalty.
	FrequencyPenalty float32 // Penalty based on frequency. 0 = disabled.
	PresencePenalty  float32 // Penalty for presence. 0 = disabled.
	RepeatWindow     int     // Number of tokens to consider. 0 = all.

	// Seed for reproducibility. -1 = random.
	Seed int64
}

// DefaultSamplingConfig returns sensible defaults for text generation.
func DefaultSamplingConfig() SamplingConfig {
	return SamplingConfig{
		Temperature:   1.0,
		TopP:          1.0,
		RepeatPenalty: 1.0,
		RepeatWindow:  64,
		Seed:          -1,
	}
}

// GreedySamplingConfig returns a configuration that always picks the most
// likely token.
func GreedySamplingConfig() SamplingConfig {
	c := DefaultSamplingConfig()
	c.Temperature = 0
	return c
}

// Sampler samples tokens from logits using configurable strategies.
type Sampler struct {
	config SamplingConfig
	rng    *rand.Rand
}

// NewSampler creates a new sampler with the given configuration.
func NewSampler(config SamplingConfig) *Sampler {
	var seed uint64
	if config.Seed >= 0 {
		seed = uint64(config.Seed)
	} else {
		seed = rand.Uint64() //nolint:gosec // G404: sampling does not need a CSPRNG.
	}
	return &Sampler{
		config: config,
		rng:    rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)), //nolint:gosec // G404: seeded for reproducibility.
	}
}

// Sample returns the next token ID from logits. logits is not modified and
// must not be empty.
//
// Penalties are applied first, then temperature. A zero temperature returns
// the argmax; otherwise Top-K, Top-P and Min-P filters run in that order
// before drawing from the remaining distribution.
func (s *Sampler) Sample(logits []float32, previousTokens []int32) int32 {
	logits = slices.Clone(logits)

	if s.config.RepeatPenalty != 1.0 && s.config.RepeatPenalty > 0 && len(previousTokens) > 0 {
		s.applyRepetitionPenalty(logits, previousTokens)
	}
	if s.config.FrequencyPenalty != 0 || s.config.PresencePenalty != 0 {
		s.applyFrequencyPenalty(logits, previousTokens)
	}

	if s.config.Temperature <= 0 {
		return argmax(logits)
	}
	if s.config.Temperature != 1.0 {
		for i := range logits {
			logits[i] /= s.config.Temperature
		}
	}

	if s.config.TopK > 0 && s.config.TopK < len(logits) {
		s.topKFilter(logits)
	}
	if s.config.TopP < 1.0 && s.config.TopP > 0 {
		s.topPFilter(logits)
	}
	if s.config.MinP > 0 {
		s.minPFilter(logits)
	}

	return s.multinomial(probabilities(logits))
}

func argmax(logits []float32) int32 {
	return int32(slices.Index(logits, slices.Max(logits))) //nolint:gosec // G115: vocab size fits in int32.
}

// window returns the tail of prev considered for penalties.
func (s *Sampler) window(prev []int32) []int32 {
	if w := s.config.RepeatWindow; w > 0 && len(prev) > w {
		return prev[len(prev)-w:]
	}
	return prev
}

// applyRepetitionPenalty penalizes tokens that appeared recently.
func (s *Sampler) applyRepetitionPenalty(logits []float32, prev []int32) {
	penalty := s.config.RepeatPenalty
	seen := make(map[int32]struct{})
	for _, tok := range s.window(prev) {
		if _, ok := seen[tok]; ok || tok < 0 || int(tok) >= len(logits) {
			continue
		}
		seen[tok] = struct{}{}
		if logits[tok] > 0 {
			logits[tok] /= penalty
		} else {
			logits[tok] *= penalty
		}
	}
}

// applyFrequencyPenalty subtracts FrequencyPenalty per occurrence and
// PresencePenalty once for every token in the window.
func (s *Sampler) applyFrequencyPenalty(logits []float32, prev []int32) {
	freq := make(map[int32]int)
	for _, tok := range s.window(prev) {
		freq[tok]++
	}
	for tok, count := range freq {
		if tok < 0 || int(tok) >= len(logits) {
			continue
		}
		logits[tok] -= s.config.FrequencyPenalty*float32(count) + s.config.PresencePenalty
	}
}

var negInf = float32(math.Inf(-1))

// topKFilter keeps the K largest logits. Ties with the K-th value are kept.
func (s *Sampler) topKFilter(logits []float32) {
	sorted := slices.Clone(logits)
	slices.SortFunc(sorted, func(a, b float32) int { return cmp.Compare(b, a) })
	threshold := sorted[s.config.TopK-1]
	for i := range logits {
		if logits[i] < threshold {
			logits[i] = negInf
		}
	}
}

// topPFilter keeps the smallest prefix of tokens, by descending probability,
// whose mass exceeds TopP.
func (s *Sampler) topPFilter(logits []float32) {
	probs := probabilities(logits)
	order := make([]int, len(probs))
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int { return cmp.Compare(probs[b], probs[a]) })

	var sum float32
	keep := len(order)
	for i, idx := range order {
		sum += probs[idx]
		if sum > s.config.TopP {
			keep = i + 1
			break
		}
	}
	for _, idx := range order[keep:] {
		logits[idx] = negInf
	}
}

// minPFilter drops tokens with prob < max_prob * MinP.
func (s *Sampler) minPFilter(logits []float32) {
	probs := probabilities(logits)
	threshold := slices.Max(probs) * s.config.MinP
	for i, p := range probs {
		if p < threshold {
			logits[i] = negInf
		}
	}
}

// multinomial samples from a categorical distribution.
func (s *Sampler) multinomial(probs []float32) int32 {
	r := s.rng.Float32()
	var sum float32
	for i, p := range probs {
		sum += p
		if r < sum {
			return int32(i) //nolint:gosec // G115: vocab size fits in int32.
		}
	}
	// Rounding left r above the total; take the last token with any mass.
	for i := len(probs) - 1; i > 0; i-- {
		if probs[i] > 0 {
			return int32(i) //nolint:gosec // G115: vocab size fits in int32.
		}
	}
	return 0
}

// probabilities is cpu.Softmax into a fresh slice. logits always holds at
// least one finite value here.
func probabilities(logits []float32) []float32 {
	probs := make([]float32, len(logits))
	if err := cpu.Softmax(logits, probs); err != nil {
		panic(err)
	}
	return probs
}
