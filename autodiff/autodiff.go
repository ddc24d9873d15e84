// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package autodiff provides automatic differentiation capabilities.
//
// This package implements reverse-mode automatic differentiation (backpropagation)
// using a gradient tape. It wraps any backend to add autodiff capabilities.
//
// Example:
//
//	import (
//	    "github.com/born-ml/sparseconv/autodiff"
//	    "github.com/born-ml/sparseconv/backend/cpu"
//	    "github.com/born-ml/sparseconv/nn"
//	)
//
//	func main() {
//	    backend := autodiff.New(cpu.New())
//	    layer, _ := nn.NewSoftMaskedConv2D(3, 8, 3, 1, 1, nn.DefaultMaskInitialValue, backend)
//
//	    backend.Tape().StartRecording()
//	    out, _ := layer.ForwardMasked(x, 1, false)
//	    grads := autodiff.Backward(out, backend)
//	    nn.CollectGrads(layer.Parameters(), grads)
//	}
package autodiff

import (
	"github.com/born-ml/sparseconv/internal/autodiff"
	"github.com/born-ml/sparseconv/internal/tensor"
)

// Backend is the autodiff-enabled backend.
type Backend[B tensor.Backend] = autodiff.AutodiffBackend[B]

// New creates a new autodiff backend wrapping the given backend.
func New[B tensor.Backend](backend B) *Backend[B] {
	return autodiff.New(backend)
}

// GradientTape records operations for automatic differentiation.
type GradientTape = autodiff.GradientTape

// NewGradientTape creates a new gradient tape.
func NewGradientTape() *GradientTape {
	return autodiff.NewGradientTape()
}

// BackwardCapable interface for backends that support backpropagation.
type BackwardCapable = autodiff.BackwardCapable

// Backward computes gradients via backpropagation, seeding the output
// gradient with ones.
func Backward[T tensor.DType, B BackwardCapable](t *tensor.Tensor[T, B], backend B) map[*tensor.RawTensor]*tensor.RawTensor {
	return autodiff.Backward(t, backend)
}
