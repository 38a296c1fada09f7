// Package model runs a llama-family decoder one token at a time on top of the
// tensor store and the CPU kernels.
package model

import (
	"fmt"
	"log/slog"

	"github.com/born-ml/ggufrt/internal/backend/cpu"
	"github.com/born-ml/ggufrt/internal/envconfig"
	"github.com/born-ml/ggufrt/internal/errdefs"
	"github.com/born-ml/ggufrt/internal/gguf"
	"github.com/born-ml/ggufrt/internal/loader"
	"github.com/born-ml/ggufrt/internal/nn"
	"github.com/born-ml/ggufrt/internal/parallel"
)

// Config holds the hyper-parameters read from metadata.
type Config struct {
	Architecture      string
	EmbeddingLength   int
	BlockCount        int
	HeadCount         int
	HeadCountKV       int
	HeadDim           int
	RotaryDim         int
	FeedForwardLength int
	ContextLength     int
	VocabSize         int
	RMSEpsilon        float32
	RopeFreqBase      float64
}

// KVDim returns the width of one position's keys (or values).
func (c Config) KVDim() int {
	return c.HeadCountKV * c.HeadDim
}

type layer struct {
	attnNorm []float32
	wq       *gguf.Tensor
	wk       *gguf.Tensor
	wv       *gguf.Tensor
	wo       *gguf.Tensor
	ffnNorm  []float32
	gate     *gguf.Tensor
	up       *gguf.Tensor
	down     *gguf.Tensor
	cache    *nn.KVCache
}

// Model is a loaded decoder with its per-layer attention caches.
// It is not safe for concurrent use.
type Model struct {
	cfg     Config
	backend *cpu.CPUBackend
	embd    *gguf.Tensor
	layers  []layer
	outNorm []float32
	output  *gguf.Tensor // nil when tied to embd
	heads   parallel.Config
	log     *slog.Logger

	// Activations, reused across calls.
	x, xb, xb2 []float32
	q, k, v    []float32
	att        []float32
	hb, hb2    []float32
	scores     [][]float32 // one per query head
	row        []float32   // tied output scratch
}

// Option configures Load.
type Option func(*options)

type options struct {
	contextLength int
	logger        *slog.Logger
}

// WithContextLength caps the attention cache capacity.
func WithContextLength(n int) Option {
	return func(o *options) { o.contextLength = n }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// Load reads hyper-parameters from st's metadata and loads the weights it
// needs. The cache capacity is the model context length unless overridden by
// WithContextLength or GGUFRT_CONTEXT_LENGTH.
func Load(st *loader.Store, backend *cpu.CPUBackend, opts ...Option) (*Model, error) {
	o := options{
		contextLength: int(envconfig.ContextLength()), //nolint:gosec // G115: context lengths are small.
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	f := st.File()
	cfg := Config{
		Architecture:      f.Architecture(),
		EmbeddingLength:   f.EmbeddingLength(),
		BlockCount:        f.BlockCount(),
		HeadCount:         f.HeadCount(),
		HeadCountKV:       f.HeadCountKV(),
		FeedForwardLength: f.FeedForwardLength(),
		ContextLength:     f.ContextLength(),
		RMSEpsilon:        f.RMSEpsilon(),
		RopeFreqBase:      float64(f.RopeFreqBase()),
	}
	if o.contextLength > 0 && (cfg.ContextLength == 0 || o.contextLength < cfg.ContextLength) {
		cfg.ContextLength = o.contextLength
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.HeadDim = cfg.EmbeddingLength / cfg.HeadCount
	cfg.RotaryDim = f.RopeDimensionCount()
	if cfg.RotaryDim == 0 {
		cfg.RotaryDim = cfg.HeadDim
	}

	m := &Model{
		cfg:     cfg,
		backend: backend,
		heads:   parallel.Config{Enabled: true, NumWorkers: envconfig.NumThreads(), MinChunkSize: 4},
		log:     o.logger,
	}
	if err := m.loadWeights(st); err != nil {
		return nil, err
	}
	m.allocState()

	o.logger.Info("model loaded",
		"arch", cfg.Architecture,
		"blocks", cfg.BlockCount,
		"embedding", cfg.EmbeddingLength,
		"heads", cfg.HeadCount,
		"kv_heads", cfg.HeadCountKV,
		"vocab", cfg.VocabSize,
		"context", cfg.ContextLength,
		"tensors", st.Len())
	return m, nil
}

func (c Config) validate() error {
	switch {
	case c.EmbeddingLength <= 0 || c.BlockCount <= 0 || c.HeadCount <= 0:
		return errdefs.Validation("load model", "%s: embedding_length %d, block_count %d and head_count %d must be positive",
			c.Architecture, c.EmbeddingLength, c.BlockCount, c.HeadCount)
	case c.EmbeddingLength%c.HeadCount != 0:
		return errdefs.Validation("load model", "embedding length %d is not divisible by %d heads", c.EmbeddingLength, c.HeadCount)
	case c.HeadCountKV <= 0 || c.HeadCount%c.HeadCountKV != 0:
		return errdefs.Validation("load model", "%d heads cannot be grouped over %d kv heads", c.HeadCount, c.HeadCountKV)
	case c.ContextLength <= 0:
		return errdefs.Validation("load model", "context length %d must be positive", c.ContextLength)
	}
	return nil
}

func (m *Model) loadWeights(st *loader.Store) error {
	cfg := &m.cfg
	dim, kvDim := cfg.EmbeddingLength, cfg.KVDim()

	embd, err := st.EmbeddingTensor()
	if err != nil {
		return err
	}
	hidden, vocab, err := loader.EmbeddingShape(embd.Dims)
	if err != nil {
		return err
	}
	if hidden != dim {
		return errdefs.Validation("load model", "embedding table hidden size %d, embedding_length %d", hidden, dim)
	}
	m.embd = embd
	cfg.VocabSize = vocab

	if m.outNorm, err = loadVector(st, loader.OutputNorm, dim); err != nil {
		return err
	}
	if st.Has(loader.Output) {
		if m.output, err = loadMatrix(st, loader.Output, dim, vocab); err != nil {
			return err
		}
	} else {
		m.log.Debug("output projection tied to token embedding")
	}

	m.layers = make([]layer, cfg.BlockCount)
	for i := range m.layers {
		l := &m.layers[i]
		if l.attnNorm, err = loadVector(st, loader.BlockTensor(i, loader.AttnNorm), dim); err != nil {
			return err
		}
		if l.ffnNorm, err = loadVector(st, loader.BlockTensor(i, loader.FFNNorm), dim); err != nil {
			return err
		}
		mats := []struct {
			dst     **gguf.Tensor
			part    string
			in, out int
		}{
			{&l.wq, loader.AttnQ, dim, dim},
			{&l.wk, loader.AttnK, dim, kvDim},
			{&l.wv, loader.AttnV, dim, kvDim},
			{&l.wo, loader.AttnOutput, dim, dim},
		}
		for _, mat := range mats {
			if *mat.dst, err = loadMatrix(st, loader.BlockTensor(i, mat.part), mat.in, mat.out); err != nil {
				return err
			}
		}

		// The FFN width comes from the gate projection when metadata omits it.
		if l.gate, err = loadMatrix(st, loader.BlockTensor(i, loader.FFNGate), dim, -1); err != nil {
			return err
		}
		ffn := int(l.gate.Dims[1]) //nolint:gosec // G115: dims of a decoded tensor fit in memory.
		if cfg.FeedForwardLength == 0 {
			cfg.FeedForwardLength = ffn
		} else if ffn != cfg.FeedForwardLength {
			return errdefs.Validation("load model", "%s: width %d, feed_forward_length %d", l.gate.Name, ffn, cfg.FeedForwardLength)
		}
		if l.up, err = loadMatrix(st, loader.BlockTensor(i, loader.FFNUp), dim, ffn); err != nil {
			return err
		}
		if l.down, err = loadMatrix(st, loader.BlockTensor(i, loader.FFNDown), ffn, dim); err != nil {
			return err
		}

		if l.cache, err = nn.NewKVCache(cfg.ContextLength, cfg.HeadCountKV, cfg.HeadDim); err != nil {
			return err
		}
	}
	return nil
}

// loadMatrix loads a [in, out] weight. A negative out accepts any width.
func loadMatrix(st *loader.Store, name string, in, out int) (*gguf.Tensor, error) {
	t, err := st.LoadOne(name)
	if err != nil {
		return nil, err
	}
	shape := t.Shape()
	if len(shape) != 2 || shape[0] != in || (out >= 0 && shape[1] != out) {
		return nil, errdefs.Validation("load model", "%s: shape %v, want [%d %d]", name, shape, in, out)
	}
	return t, nil
}

func loadVector(st *loader.Store, name string, n int) ([]float32, error) {
	t, err := st.LoadOne(name)
	if err != nil {
		return nil, err
	}
	if t.N != n {
		return nil, errdefs.Validation("load model", "%s: %d elements, want %d", name, t.N, n)
	}
	return t.Dequantize(), nil
}

func (m *Model) allocState() {
	cfg := m.cfg
	dim, kvDim := cfg.EmbeddingLength, cfg.KVDim()
	m.x = make([]float32, dim)
	m.xb = make([]float32, dim)
	m.xb2 = make([]float32, dim)
	m.q = make([]float32, dim)
	m.k = make([]float32, kvDim)
	m.v = make([]float32, kvDim)
	m.att = make([]float32, dim)
	m.hb = make([]float32, cfg.FeedForwardLength)
	m.hb2 = make([]float32, cfg.FeedForwardLength)
	m.scores = make([][]float32, cfg.HeadCount)
	for h := range m.scores {
		m.scores[h] = make([]float32, cfg.ContextLength)
	}
	if m.output == nil {
		m.row = make([]float32, dim)
	}
}

// Config returns the model hyper-parameters.
func (m *Model) Config() Config {
	return m.cfg
}

// VocabSize returns the number of logits Forward produces.
func (m *Model) VocabSize() int {
	return m.cfg.VocabSize
}

// Len returns the number of positions already processed.
func (m *Model) Len() int {
	return m.layers[0].cache.Len()
}

// Reset clears every attention cache.
func (m *Model) Reset() {
	for i := range m.layers {
		m.layers[i].cache.Reset()
	}
}

// Forward runs token through every block at position pos and returns the
// logits. Positions must be fed in order: pos must equal Len().
// After an error the caches may disagree and the model must be Reset.
func (m *Model) Forward(token int32, pos int) ([]float32, error) {
	if pos != m.Len() {
		return nil, errdefs.Validation("forward", "position %d, cache holds %d positions", pos, m.Len())
	}
	if pos >= m.cfg.ContextLength {
		return nil, fmt.Errorf("forward at position %d: %w: max len is %d", pos, nn.ErrCacheFull, m.cfg.ContextLength)
	}
	if token < 0 {
		return nil, errdefs.Validation("forward", "token id %d is out of vocabulary range [0, %d)", token, m.cfg.VocabSize)
	}
	rows, err := loader.LookupEmbeddings(m.embd, []uint32{uint32(token)})
	if err != nil {
		return nil, err
	}
	copy(m.x, rows[0])

	for i := range m.layers {
		if err := m.block(&m.layers[i], pos); err != nil {
			return nil, fmt.Errorf("block %d: %w", i, err)
		}
	}

	b := m.backend
	if err := b.RMSNorm(m.x, m.outNorm, m.cfg.RMSEpsilon, m.xb); err != nil {
		return nil, err
	}
	logits := make([]float32, m.cfg.VocabSize)
	if m.output != nil {
		if err := b.MatMul(m.xb, m.output, logits); err != nil {
			return nil, err
		}
		return logits, nil
	}
	for id := range logits {
		m.embd.Row(id*m.cfg.EmbeddingLength, m.row)
		logits[id] = b.Dot(m.xb, m.row)
	}
	return logits, nil
}

func (m *Model) block(l *layer, pos int) error {
	cfg := m.cfg
	b := m.backend

	// Attention.
	if err := b.RMSNorm(m.x, l.attnNorm, cfg.RMSEpsilon, m.xb); err != nil {
		return err
	}
	for _, p := range []struct {
		w   *gguf.Tensor
		out []float32
	}{{l.wq, m.q}, {l.wk, m.k}, {l.wv, m.v}} {
		if err := b.MatMul(m.xb, p.w, p.out); err != nil {
			return err
		}
	}
	if err := b.RoPEHeads(m.q, cfg.HeadCount, cfg.RopeFreqBase, pos, cfg.HeadDim, cfg.RotaryDim); err != nil {
		return err
	}
	if err := b.RoPEHeads(m.k, cfg.HeadCountKV, cfg.RopeFreqBase, pos, cfg.HeadDim, cfg.RotaryDim); err != nil {
		return err
	}
	if err := l.cache.Append(m.k, m.v); err != nil {
		return err
	}

	group := cfg.HeadCount / cfg.HeadCountKV
	hd := cfg.HeadDim
	err := parallel.ForRange(cfg.HeadCount, func(start, end int) error {
		for h := start; h < end; h++ {
			if err := nn.Attend(m.q[h*hd:(h+1)*hd], l.cache, h/group, m.att[h*hd:(h+1)*hd], m.scores[h]); err != nil {
				return err
			}
		}
		return nil
	}, m.heads)
	if err != nil {
		return err
	}
	if err := b.MatMul(m.att, l.wo, m.xb2); err != nil {
		return err
	}
	if err := b.ResidualAdd(m.x, m.xb2, m.x); err != nil {
		return err
	}

	// Feed-forward.
	if err := b.RMSNorm(m.x, l.ffnNorm, cfg.RMSEpsilon, m.xb); err != nil {
		return err
	}
	if err := b.MatMul(m.xb, l.gate, m.hb); err != nil {
		return err
	}
	if err := b.MatMul(m.xb, l.up, m.hb2); err != nil {
		return err
	}
	if err := b.SwiGLU(m.hb, m.hb2, m.hb); err != nil {
		return err
	}
	if err := b.MatMul(m.hb, l.down, m.xb2); err != nil {
		return err
	}
	return b.ResidualAdd(m.x, m.xb2, m.x)
}
