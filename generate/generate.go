// Package generate provides text generation on top of a loaded checkpoint.
//
// This package wraps the internal generate implementations and provides
// a clean public API for text generation tasks.
//
// Components:
//   - Model: a llama-family decoder run one token at a time
//   - Sampler: Sampling strategies (greedy, top-k, top-p, min-p, temperature)
//   - TextGenerator: High-level text generation interface
//
// Example usage:
//
//	import (
//	    "github.com/born-ml/ggufrt/backend/cpu"
//	    "github.com/born-ml/ggufrt/generate"
//	    "github.com/born-ml/ggufrt/loader"
//	    "github.com/born-ml/ggufrt/tokenizer"
//	)
//
//	store, _ := loader.Open("model.gguf")
//	defer store.Close()
//
//	model, _ := generate.LoadModel(store, cpu.New())
//	tok, _ := tokenizer.FromGGUF(store.File())
//
//	gen := generate.NewTextGenerator(model, tok, generate.GreedySamplingConfig())
//	text, err := gen.Generate(ctx, "Once upon a time", generate.DefaultGenerateConfig())
package generate

import (
	"github.com/born-ml/ggufrt/internal/backend/cpu"
	"github.com/born-ml/ggufrt/internal/generate"
	"github.com/born-ml/ggufrt/internal/loader"
	"github.com/born-ml/ggufrt/internal/model"
	"github.com/born-ml/ggufrt/internal/tokenizer"
)

// Sampling Configuration

// SamplingConfig configures the sampling strategy for text generation.
//
// Parameters:
//   - Temperature: Controls randomness (0 = greedy, 1 = normal, >1 = more random)
//   - TopK: Limits sampling to top K tokens (0 = disabled)
//   - TopP: Nucleus sampling, limits to tokens with cumulative prob < P (1.0 = disabled)
//   - MinP: Filters tokens with prob < max_prob * MinP (0 = disabled)
//   - RepeatPenalty: Penalty for repeated tokens (1.0 = no penalty)
//   - FrequencyPenalty: Penalty based on token frequency (0 = disabled)
//   - PresencePenalty: Penalty for token presence (0 = disabled)
//   - RepeatWindow: Number of tokens to consider for penalties (0 = all)
//   - Seed: Random seed for reproducibility (-1 = random)
type SamplingConfig = generate.SamplingConfig

// DefaultSamplingConfig returns sensible defaults for text generation.
//
// Defaults:
//   - Temperature: 1.0
//   - TopK: 0 (disabled)
//   - TopP: 1.0 (disabled)
//   - MinP: 0.0 (disabled)
//   - RepeatPenalty: 1.0 (no penalty)
//   - RepeatWindow: 64
//   - Seed: -1 (random)
func DefaultSamplingConfig() SamplingConfig {
	return generate.DefaultSamplingConfig()
}

// GreedySamplingConfig returns a configuration that always picks the most
// likely token.
func GreedySamplingConfig() SamplingConfig {
	return generate.GreedySamplingConfig()
}

// Sampler

// Sampler samples tokens from logits using configurable strategies.
type Sampler = generate.Sampler

// NewSampler creates a new sampler with the given configuration.
//
// Example:
//
//	config := generate.SamplingConfig{
//	    Temperature: 0.7,
//	    TopK:        50,
//	    Seed:        42,
//	}
//	sampler := generate.NewSampler(config)
//	token := sampler.Sample(logits, nil)
func NewSampler(config SamplingConfig) *Sampler {
	return generate.NewSampler(config)
}

// Generation Configuration

// GenerateConfig configures text generation.
//
// Parameters:
//   - MaxTokens: Maximum number of tokens to generate
//   - MinTokens: Minimum number of tokens before stopping
//   - StopStrings: Strings that trigger stopping
//   - StopTokens: Token IDs that trigger stopping
//   - EchoPrompt: Include prompt in output
//   - Sampling: Sampling configuration
//
//nolint:revive // GenerateConfig is clearer than Config
type GenerateConfig = generate.GenerateConfig

// DefaultGenerateConfig returns sensible defaults for generation.
//
// Defaults:
//   - MaxTokens: 256
//   - MinTokens: 0
//   - EchoPrompt: false
func DefaultGenerateConfig() GenerateConfig {
	return generate.DefaultGenerateConfig()
}

// GenerateResult is a single result from streaming generation.
//
//nolint:revive // GenerateResult is clearer than Result
type GenerateResult = generate.GenerateResult

// Stop reasons reported in GenerateResult.Reason.
const (
	ReasonEOS        = generate.ReasonEOS
	ReasonMaxTokens  = generate.ReasonMaxTokens
	ReasonStopString = generate.ReasonStopString
	ReasonStopToken  = generate.ReasonStopToken
	ReasonContext    = generate.ReasonContext
)

// Model

// Model is a loaded llama-family decoder.
type Model = model.Model

// ModelConfig holds the hyper-parameters read from metadata.
type ModelConfig = model.Config

// ModelOption configures LoadModel.
type ModelOption = model.Option

// LoadModel reads hyper-parameters and weights from store.
//
// Example:
//
//	m, err := generate.LoadModel(store, cpu.New(), generate.WithContextLength(2048))
func LoadModel(store *loader.Store, backend *cpu.CPUBackend, opts ...ModelOption) (*Model, error) {
	return model.Load(store, backend, opts...)
}

// WithContextLength caps the attention cache capacity of a loaded model.
func WithContextLength(n int) ModelOption {
	return model.WithContextLength(n)
}

// TextGenerator

// LLMModel is the interface for language models used in generation.
type LLMModel = generate.LLMModel

// TextGenerator generates text using an LLM.
type TextGenerator = generate.TextGenerator

// GeneratorOption configures a TextGenerator.
type GeneratorOption = generate.GeneratorOption

// NewTextGenerator creates a new text generator.
//
// Example:
//
//	config := generate.DefaultSamplingConfig()
//	config.Temperature = 0.7
//
//	gen := generate.NewTextGenerator(model, tok, config)
//	result, err := gen.Generate(ctx, "Hello, world!", generate.DefaultGenerateConfig())
func NewTextGenerator(
	model LLMModel,
	tok tokenizer.Tokenizer,
	samplingConfig SamplingConfig,
	opts ...GeneratorOption,
) *TextGenerator {
	return generate.NewTextGenerator(model, tok, samplingConfig, opts...)
}
