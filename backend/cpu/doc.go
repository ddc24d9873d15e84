// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package cpu provides a pure Go CPU backend for tensor operations.
//
// # Overview
//
// This package implements a CPU backend with:
//   - Pure Go implementation (no CGO)
//   - Grouped direct convolution with input and kernel gradients
//   - Float32 and Float64 support
//   - NumPy-compatible broadcasting
//
// # Basic Usage
//
//	import (
//	    "github.com/born-ml/sparseconv/backend/cpu"
//	    "github.com/born-ml/sparseconv/nn"
//	    "github.com/born-ml/sparseconv/tensor"
//	)
//
//	func main() {
//	    backend := cpu.New()
//
//	    layer, err := nn.NewSoftMaskedConv2D(3, 8, 3, 1, 1, nn.DefaultMaskInitialValue, backend)
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    x := tensor.Randn[float32](tensor.Shape{1, 3, 32, 32}, 0, 1, backend)
//	    y := layer.Forward(x)
//	}
//
// # Parallelism
//
// Convolution kernels fan out over independent (batch, channel) planes on
// runtime.NumCPU() workers. NewSequential keeps them on one goroutine, which
// is useful for deterministic profiling.
package cpu
