// Package cpu implements the inference kernels on the CPU.
//
// Kernels work on caller-owned float32 slices and never allocate shared state,
// so they are safe to call concurrently on independent buffers. Weights are
// decoded tensors from internal/gguf; quantized weights are dequantized inline.
package cpu

import (
	"log/slog"

	"github.com/born-ml/ggufrt/internal/cpuinfo"
	"github.com/born-ml/ggufrt/internal/envconfig"
	"github.com/born-ml/ggufrt/internal/parallel"
)

// Variant names the inner-loop implementation chosen at construction.
type Variant string

// Kernel variants.
const (
	VariantScalar   Variant = "scalar"
	VariantUnrolled Variant = "unrolled8"
)

// CPUBackend dispatches kernels to the variant selected for the host CPU.
type CPUBackend struct {
	features cpuinfo.Features
	variant  Variant
	dot      func(a, b []float32) float32
	axpy     func(alpha float32, x, y []float32)
	parallel parallel.Config
}

// Option configures a CPUBackend.
type Option func(*CPUBackend)

// WithParallel overrides the worker configuration used by MatMul.
func WithParallel(cfg parallel.Config) Option {
	return func(b *CPUBackend) { b.parallel = cfg }
}

// WithVariant forces a kernel variant regardless of the detected features.
func WithVariant(v Variant) Option {
	return func(b *CPUBackend) { b.setVariant(v) }
}

// New creates a CPU backend for features. A CPU with any vector extension
// gets the unrolled variant; otherwise, or when GGUFRT_FORCE_SCALAR is set,
// the scalar variant is used.
func New(features cpuinfo.Features, opts ...Option) *CPUBackend {
	b := &CPUBackend{
		features: features,
		parallel: parallel.DefaultConfig(),
	}
	if features.HasSIMD() && !envconfig.ForceScalar() {
		b.setVariant(VariantUnrolled)
	} else {
		b.setVariant(VariantScalar)
	}
	for _, opt := range opts {
		opt(b)
	}
	slog.Debug("cpu backend", "variant", b.variant, "features", features.String(), "workers", b.parallel.NumWorkers)
	return b
}

func (b *CPUBackend) setVariant(v Variant) {
	switch v {
	case VariantUnrolled:
		b.variant, b.dot, b.axpy = v, dotUnrolled, axpyUnrolled
	default:
		b.variant, b.dot, b.axpy = VariantScalar, Dot, Axpy
	}
}

// Name returns the backend name.
func (b *CPUBackend) Name() string {
	return "CPU"
}

// Variant returns the selected kernel variant.
func (b *CPUBackend) Variant() Variant {
	return b.variant
}

// Features returns the capability snapshot the backend was built with.
func (b *CPUBackend) Features() cpuinfo.Features {
	return b.features
}

// Dot returns the dot product of a and b[:len(a)].
func (b *CPUBackend) Dot(x, y []float32) float32 {
	return b.dot(x, y)
}
