// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package cpu provides the pure Go compute kernels used for inference.
//
// # Overview
//
// The backend works on plain float32 slices and on tensors decoded by the
// loader package. Quantized weights stay packed; MatMul dequantizes each row
// as it goes.
//
// # Basic Usage
//
//	import (
//	    "github.com/born-ml/ggufrt/backend/cpu"
//	    "github.com/born-ml/ggufrt/loader"
//	)
//
//	func main() {
//	    backend := cpu.New()
//
//	    store, _ := loader.Open("model.gguf")
//	    defer store.Close()
//	    w, _ := store.LoadOne("blk.0.attn_q.weight")
//
//	    out := make([]float32, w.Shape()[1])
//	    _ = backend.MatMul(x, w, out)
//	}
//
// # Variants
//
// New picks the unrolled variant when the CPU supports it. The
// GGUFRT_FORCE_SCALAR environment variable or WithVariant(VariantScalar)
// selects the reference loops.
//
// # Thread Safety
//
// A Backend holds no per-call state and is safe for concurrent use.
package cpu
