// Package parallel fans independent work items out over goroutines.
//
// The CPU convolution kernels use it to spread output planes across cores.
// A work item is a whole plane, so chunks are small compared to the
// element-wise cutoffs used elsewhere.
package parallel

import (
	"runtime"
	"sync"
)

// Config controls parallel execution behavior.
type Config struct {
	Enabled      bool // Whether parallel execution is enabled.
	NumWorkers   int  // Number of worker goroutines to use.
	MinChunkSize int  // Minimum items per goroutine to avoid overhead.
}

// DefaultConfig returns defaults based on CPU count.
func DefaultConfig() Config {
	n := runtime.NumCPU()
	return Config{
		Enabled:      n > 1,
		NumWorkers:   n,
		MinChunkSize: 4,
	}
}

// Sequential returns a config that runs every item on the calling goroutine.
func Sequential() Config {
	return Config{NumWorkers: 1, MinChunkSize: 1}
}

// WithWorkers returns a copy of cfg using n workers. n <= 1 disables parallelism.
func (cfg Config) WithWorkers(n int) Config {
	if n <= 1 {
		return Sequential()
	}
	cfg.Enabled = true
	cfg.NumWorkers = n
	if cfg.MinChunkSize <= 0 {
		cfg.MinChunkSize = 1
	}
	return cfg
}

// For executes f(i) for i in [0, n).
// Falls back to sequential execution if parallelism is disabled or n is too small.
func For(n int, f func(i int), cfg Config) {
	if !cfg.Enabled || cfg.NumWorkers <= 1 || n < 2*cfg.MinChunkSize {
		for i := 0; i < n; i++ {
			f(i)
		}
		return
	}

	var wg sync.WaitGroup
	chunkSize := max((n+cfg.NumWorkers-1)/cfg.NumWorkers, cfg.MinChunkSize, 1)

	for start := 0; start < n; start += chunkSize {
		end := min(start+chunkSize, n)
		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			for i := s; i < e; i++ {
				f(i)
			}
		}(start, end)
	}
	wg.Wait()
}

// ForBatch runs f for every (b, c) in [0, batch) x [0, channels).
func ForBatch(batch, channels int, f func(b, c int), cfg Config) {
	if channels == 0 {
		return
	}
	For(batch*channels, func(k int) {
		f(k/channels, k%channels)
	}, cfg)
}
