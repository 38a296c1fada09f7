package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/born-ml/ggufrt/internal/backend/cpu"
	"github.com/born-ml/ggufrt/internal/cpuinfo"
	"github.com/born-ml/ggufrt/internal/errdefs"
	"github.com/born-ml/ggufrt/internal/generate"
	"github.com/born-ml/ggufrt/internal/gguf"
	"github.com/born-ml/ggufrt/internal/loader"
	"github.com/born-ml/ggufrt/internal/model"
	"github.com/born-ml/ggufrt/internal/parallel"
	"github.com/born-ml/ggufrt/internal/tokenizer"
)

type runOptions struct {
	prompt        string
	maxTokens     int
	contextLength int
	threads       int
	scalar        bool
	sampling      generate.SamplingConfig
}

func newRunCmd() *cobra.Command {
	opts := runOptions{sampling: generate.DefaultSamplingConfig()}
	cmd := &cobra.Command{
		Use:   "run FILE",
		Short: "Generate text from a prompt",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runModel(cmd, args[0], opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.prompt, "prompt", "p", "", "Prompt text (default: read from piped stdin)")
	flags.IntVarP(&opts.maxTokens, "max-tokens", "n", 128, "Maximum number of tokens to generate")
	flags.IntVar(&opts.contextLength, "ctx", 0, "Attention cache capacity (default: model context length)")
	flags.IntVarP(&opts.threads, "threads", "t", 0, "Kernel worker goroutines (default: GGUFRT_NUM_THREADS or CPU count)")
	flags.BoolVar(&opts.scalar, "scalar", false, "Use the scalar kernels")
	flags.Float32Var(&opts.sampling.Temperature, "temperature", opts.sampling.Temperature, "Sampling temperature, 0 for greedy")
	flags.IntVar(&opts.sampling.TopK, "top-k", opts.sampling.TopK, "Top-K filter, 0 to disable")
	flags.Float32Var(&opts.sampling.TopP, "top-p", opts.sampling.TopP, "Top-P filter, 1 to disable")
	flags.Float32Var(&opts.sampling.MinP, "min-p", opts.sampling.MinP, "Min-P filter, 0 to disable")
	flags.Float32Var(&opts.sampling.RepeatPenalty, "repeat-penalty", opts.sampling.RepeatPenalty, "Repetition penalty, 1 to disable")
	flags.Int64Var(&opts.sampling.Seed, "seed", opts.sampling.Seed, "Random seed, -1 for random")
	return cmd
}

var errNoPrompt = errors.New("no prompt: pass --prompt or pipe text on stdin")

// readPrompt returns the --prompt value, or the whole of stdin when it is
// not a terminal.
func readPrompt(cmd *cobra.Command, prompt string) (string, error) {
	if prompt != "" {
		return prompt, nil
	}
	in := cmd.InOrStdin()
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) { //nolint:gosec // G115: file descriptors fit in int.
		return "", errNoPrompt
	}
	b, err := io.ReadAll(in)
	if err != nil {
		return "", fmt.Errorf("read prompt: %w", err)
	}
	if prompt = strings.TrimSpace(string(b)); prompt == "" {
		return "", errNoPrompt
	}
	return prompt, nil
}

func runModel(cmd *cobra.Command, path string, opts runOptions) error {
	prompt, err := readPrompt(cmd, opts.prompt)
	if err != nil {
		return err
	}

	st, err := loader.Open(path)
	if err != nil {
		return err
	}
	defer st.Close()

	tok, err := newTokenizer(st.File())
	if err != nil {
		return err
	}

	var backendOpts []cpu.Option
	if opts.threads > 0 {
		cfg := parallel.DefaultConfig()
		cfg.NumWorkers = opts.threads
		cfg.Enabled = opts.threads > 1
		backendOpts = append(backendOpts, cpu.WithParallel(cfg))
	}
	if opts.scalar {
		backendOpts = append(backendOpts, cpu.WithVariant(cpu.VariantScalar))
	}
	backend := cpu.New(cpuinfo.Detect(), backendOpts...)

	var modelOpts []model.Option
	if opts.contextLength > 0 {
		modelOpts = append(modelOpts, model.WithContextLength(opts.contextLength))
	}
	m, err := model.Load(st, backend, modelOpts...)
	if err != nil {
		return err
	}
	if tok.VocabSize() > m.VocabSize() {
		slog.Warn("tokenizer vocabulary is larger than the model output", "tokenizer", tok.VocabSize(), "model", m.VocabSize())
	}

	gen := generate.NewTextGenerator(m, tok, opts.sampling)
	stream, err := gen.GenerateStream(cmd.Context(), prompt, generate.GenerateConfig{
		MaxTokens: opts.maxTokens,
		Sampling:  opts.sampling,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	var reason string
	for res := range stream {
		if res.Error != nil {
			return res.Error
		}
		if res.Done && res.TokenID == tok.EosToken() {
			reason = res.Reason
			continue
		}
		fmt.Fprint(out, res.Token)
		if res.Done {
			reason = res.Reason
		}
	}
	fmt.Fprintln(out)
	slog.Info("generation stopped", "reason", reason)
	return nil
}

// newTokenizer prefers the vocabulary stored in the container and falls back
// to a tiktoken encoding when there is none.
func newTokenizer(f *gguf.File) (tokenizer.Tokenizer, error) {
	tok, err := tokenizer.FromGGUF(f)
	if errors.Is(err, errdefs.ErrNotFound) {
		slog.Warn("container has no vocabulary, using tiktoken", "error", err)
		tt, err := tokenizer.NewTikToken("")
		if err != nil {
			return nil, err
		}
		return tt, nil
	}
	return tok, err
}
