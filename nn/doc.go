// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package nn provides the attention building blocks of the decoder.
//
// # Overview
//
// This package contains:
//   - KVCache: fixed-capacity per-position key/value storage
//   - Attend: single-query scaled dot-product attention over a cache
//   - AttendStreaming: the same computation with an online softmax
//
// # Basic Usage
//
//	import "github.com/born-ml/ggufrt/nn"
//
//	func main() {
//	    cache, err := nn.NewKVCache(2048, 8, 64)
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//
//	    // Append one position, then attend over everything cached
//	    if err := cache.Append(k, v); err != nil {
//	        log.Fatal(err)
//	    }
//	    out := make([]float32, 64)
//	    scores := make([]float32, cache.Cap())
//	    _ = nn.Attend(q, cache, 0, out, scores)
//	}
//
// # Capacity
//
// Append fails with an error matching ErrCacheFull once Cap() positions are
// stored. Reset empties the cache without reallocating.
package nn
