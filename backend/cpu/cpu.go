// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package cpu

import (
	internalcpu "github.com/born-ml/ggufrt/internal/backend/cpu"
	"github.com/born-ml/ggufrt/internal/cpuinfo"
	"github.com/born-ml/ggufrt/internal/parallel"
)

// Backend is the CPU kernel set.
type Backend = internalcpu.CPUBackend

// Option configures a Backend.
type Option = internalcpu.Option

// Variant names a kernel implementation.
type Variant = internalcpu.Variant

// ParallelConfig controls how MatMul splits output columns across goroutines.
type ParallelConfig = parallel.Config

// Kernel variants.
const (
	VariantScalar   = internalcpu.VariantScalar
	VariantUnrolled = internalcpu.VariantUnrolled
)

// New creates a backend for the features of the running CPU.
//
// Example:
//
//	backend := cpu.New(cpu.WithParallel(cpu.ParallelConfig{Enabled: true, NumWorkers: 4, MinChunkSize: 64}))
//	fmt.Println(backend.Name())
func New(opts ...Option) *Backend {
	return internalcpu.New(cpuinfo.Detect(), opts...)
}

// WithParallel sets the worker configuration used by MatMul.
func WithParallel(cfg ParallelConfig) Option {
	return internalcpu.WithParallel(cfg)
}

// WithVariant forces a kernel variant.
func WithVariant(v Variant) Option {
	return internalcpu.WithVariant(v)
}
