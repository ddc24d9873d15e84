// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor provides the public tensor types used by the sparseconv layers.
//
// # Overview
//
// Tensors are dense, row-major and floating point. This package provides:
//   - Generic type-safe tensors (Tensor[T, B])
//   - NumPy-style broadcasting for element-wise operations
//   - Grouped 2D convolution configured by Conv2DConfig
//
// # Basic Usage
//
//	import (
//	    "github.com/born-ml/sparseconv/backend/cpu"
//	    "github.com/born-ml/sparseconv/tensor"
//	)
//
//	func main() {
//	    backend := cpu.New()
//
//	    x := tensor.Zeros[float32](tensor.Shape{1, 3, 8, 8}, backend)
//	    k := tensor.Randn[float32](tensor.Shape{4, 3, 3, 3}, 0, 0.1, backend)
//	    y := x.Conv2D(k, tensor.SquareConv(1, 1)) // Shape: [1, 4, 8, 8]
//	}
//
// # Broadcasting
//
//	a := tensor.Zeros[float32](tensor.Shape{3, 1}, backend) // (3, 1)
//	b := tensor.Ones[float32](tensor.Shape{3, 4}, backend)  // (3, 4)
//	c := a.Add(b)                                           // (3, 4)
//
// Every operation returns a new tensor. Use CopyFrom to update a tensor in
// place, which keeps the identity of its RawTensor stable for the gradient tape.
package tensor
