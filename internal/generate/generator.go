package generate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/born-ml/ggufrt/internal/errdefs"
	"github.com/born-ml/ggufrt/internal/nn"
	"github.com/born-ml/ggufrt/internal/tokenizer"
)

// Stop reasons reported in GenerateResult.Reason.
const (
	ReasonEOS        = "eos"
	ReasonMaxTokens  = "max_tokens"
	ReasonStopString = "stop_string"
	ReasonStopToken  = "stop_token"
	ReasonContext    = "context_full"
)

// GenerateConfig configures text generation.
//
//nolint:revive // GenerateConfig is clearer than Config
type GenerateConfig struct {
	// MaxTokens is the maximum number of tokens to generate.
	MaxTokens int

	// MinTokens is the minimum number of tokens before stopping.
	MinTokens int

	// StopStrings are strings that trigger stopping.
	StopStrings []string

	// StopTokens are token IDs that trigger stopping.
	StopTokens []int32

	// EchoPrompt includes the prompt in output.
	EchoPrompt bool

	// Sampling is the sampling configuration.
	Sampling SamplingConfig
}

// DefaultGenerateConfig returns sensible defaults for generation.
func DefaultGenerateConfig() GenerateConfig {
	return GenerateConfig{
		MaxTokens: 256,
		Sampling:  DefaultSamplingConfig(),
	}
}

// GenerateResult is a single result from streaming generation.
//
//nolint:revive // GenerateResult is clearer than Result
type GenerateResult struct {
	Token   string // Decoded token text
	TokenID int32  // Token ID
	Done    bool   // Is generation complete
	Reason  string // One of the Reason constants when Done
	Error   error  // Error if any
}

// LLMModel produces next-token logits one position at a time.
//
// Forward must be called with pos equal to the number of tokens consumed
// since the last Reset.
type LLMModel interface {
	Forward(token int32, pos int) ([]float32, error)
	VocabSize() int
	Reset()
}

// TextGenerator generates text using an LLM.
type TextGenerator struct {
	model     LLMModel
	tokenizer tokenizer.Tokenizer
	sampler   *Sampler
	log       *slog.Logger
}

// GeneratorOption configures a TextGenerator.
type GeneratorOption func(*TextGenerator)

// WithLogger sets the logger used for generation statistics.
func WithLogger(l *slog.Logger) GeneratorOption {
	return func(g *TextGenerator) { g.log = l }
}

// NewTextGenerator creates a new text generator.
func NewTextGenerator(model LLMModel, tok tokenizer.Tokenizer, samplingConfig SamplingConfig, opts ...GeneratorOption) *TextGenerator {
	g := &TextGenerator{
		model:     model,
		tokenizer: tok,
		sampler:   NewSampler(samplingConfig),
		log:       slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate generates text from a prompt.
func (g *TextGenerator) Generate(ctx context.Context, prompt string, config GenerateConfig) (string, error) {
	inputIDs, err := g.tokenizer.Encode(prompt)
	if err != nil {
		return "", fmt.Errorf("encode prompt: %w", err)
	}

	var result strings.Builder
	if config.EchoPrompt {
		result.WriteString(prompt)
	}

	err = g.generate(ctx, inputIDs, config, func(res GenerateResult) bool {
		result.WriteString(res.Token)
		return true
	})
	if err != nil {
		return "", err
	}
	return result.String(), nil
}

// GenerateStream generates text and returns a channel of results. The
// channel is closed after the final result; a failure is delivered as a
// result with Error set. Cancelling ctx stops generation.
func (g *TextGenerator) GenerateStream(ctx context.Context, prompt string, config GenerateConfig) (<-chan GenerateResult, error) {
	inputIDs, err := g.tokenizer.Encode(prompt)
	if err != nil {
		return nil, fmt.Errorf("encode prompt: %w", err)
	}

	ch := make(chan GenerateResult, 1)
	go func() {
		defer close(ch)

		send := func(res GenerateResult) bool {
			select {
			case ch <- res:
				return true
			case <-ctx.Done():
				return false
			}
		}

		if config.EchoPrompt {
			if !send(GenerateResult{Token: prompt}) {
				return
			}
		}

		if err := g.generate(ctx, inputIDs, config, send); err != nil {
			send(GenerateResult{Done: true, Error: err})
		}
	}()
	return ch, nil
}

// generate resets the model, feeds the prompt and samples until a stop
// condition. callback returning false ends generation without error.
func (g *TextGenerator) generate(ctx context.Context, inputIDs []int32, config GenerateConfig, callback func(GenerateResult) bool) error {
	if len(inputIDs) == 0 {
		return errdefs.Validation("generate", "empty input")
	}
	if config.MaxTokens <= 0 {
		return errdefs.Validation("generate", "max tokens must be positive, got %d", config.MaxTokens)
	}

	start := time.Now()
	g.model.Reset()

	var logits []float32
	var err error
	for pos, id := range inputIDs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if logits, err = g.model.Forward(id, pos); err != nil {
			return fmt.Errorf("prefill token %d at position %d: %w", id, pos, err)
		}
	}
	prefill := time.Since(start)

	history := slices.Clone(inputIDs)
	generated := make([]int32, 0, config.MaxTokens)
	defer func() {
		g.log.Debug("generation finished", "prompt_tokens", len(inputIDs), "generated", len(generated),
			"prefill", prefill, "elapsed", time.Since(start))
	}()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		next := g.sampler.Sample(logits, history)
		generated = append(generated, next)
		history = append(history, next)

		text, err := g.tokenizer.Decode([]int32{next})
		if err != nil {
			return fmt.Errorf("decode token %d: %w", next, err)
		}

		done, reason := g.checkStopConditions(next, generated, config)
		if !callback(GenerateResult{Token: text, TokenID: next, Done: done, Reason: reason}) || done {
			return nil
		}

		logits, err = g.model.Forward(next, len(history)-1)
		if errors.Is(err, nn.ErrCacheFull) {
			callback(GenerateResult{Done: true, Reason: ReasonContext})
			return nil
		}
		if err != nil {
			return fmt.Errorf("forward token %d at position %d: %w", next, len(history)-1, err)
		}
	}
}

// checkStopConditions checks if generation should stop. MinTokens holds back
// every stop condition except MaxTokens.
func (g *TextGenerator) checkStopConditions(token int32, generated []int32, config GenerateConfig) (bool, string) {
	if len(generated) >= config.MaxTokens {
		return true, ReasonMaxTokens
	}
	if len(generated) < config.MinTokens {
		return false, ""
	}

	if eos := g.tokenizer.EosToken(); eos >= 0 && token == eos {
		return true, ReasonEOS
	}
	if slices.Contains(config.StopTokens, token) {
		return true, ReasonStopToken
	}
	if len(config.StopStrings) > 0 {
		text, err := g.tokenizer.Decode(generated)
		if err == nil {
			for _, stop := range config.StopStrings {
				if strings.HasSuffix(text, stop) {
					return true, ReasonStopString
				}
			}
		}
	}
	return false, ""
}
