// Package parallel splits kernel loops across a bounded number of goroutines.
package parallel

import (
	"golang.org/x/sync/errgroup"

	"github.com/born-ml/ggufrt/internal/envconfig"
)

// Config controls parallel execution behavior.
type Config struct {
	Enabled      bool // Whether parallel execution is enabled.
	NumWorkers   int  // Number of worker goroutines to use.
	MinChunkSize int  // Minimum items per goroutine to avoid overhead.
}

// DefaultConfig returns defaults based on GGUFRT_NUM_THREADS or the CPU count.
func DefaultConfig() Config {
	n := envconfig.NumThreads()
	return Config{
		Enabled:      n > 1,
		NumWorkers:   n,
		MinChunkSize: 64,
	}
}

// Sequential returns a Config that never spawns goroutines.
func Sequential() Config {
	return Config{NumWorkers: 1, MinChunkSize: 1}
}

// ForRange calls f on disjoint [start, end) chunks covering [0, n).
// Falls back to a single call if parallelism is disabled or n is too small.
// The first error returned by f is returned once every chunk has finished.
func ForRange(n int, f func(start, end int) error, cfg Config) error {
	if n <= 0 {
		return nil
	}
	if !cfg.Enabled || cfg.NumWorkers <= 1 || n < 2*cfg.MinChunkSize {
		return f(0, n)
	}

	chunkSize := max((n+cfg.NumWorkers-1)/cfg.NumWorkers, cfg.MinChunkSize)

	var g errgroup.Group
	g.SetLimit(cfg.NumWorkers)
	for start := 0; start < n; start += chunkSize {
		end := min(start+chunkSize, n)
		g.Go(func() error {
			return f(start, end)
		})
	}
	return g.Wait()
}

// For executes f(i) for i in [0, n) with optional parallelism.
func For(n int, f func(i int), cfg Config) {
	_ = ForRange(n, func(start, end int) error {
		for i := start; i < end; i++ {
			f(i)
		}
		return nil
	}, cfg)
}
