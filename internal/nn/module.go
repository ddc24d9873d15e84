// Package nn implements the convolution modules of the pruning core.
//
// This package provides:
//   - Module interface: base interface for all NN components
//   - Parameter: trainable parameters with gradient tracking
//   - Conv2D: grouped 2D convolution with optional bias
//   - SoftMaskedConv2D: convolution gated by a trainable per-weight mask
//   - ComputeMask, NextLogits: the mask evaluation policy
//   - Decompose, SparseConv, ZeroConv: rewriting a pruned convolution into
//     smaller convolutions and zero placeholders
//   - Sequential: container for stacking layers
package nn

import (
	"github.com/born-ml/sparseconv/internal/tensor"
)

// Module is the base interface for all neural network components.
//
// Every NN module must implement:
//   - Forward: Compute output from input
//   - Parameters: Return all trainable parameters
//   - StateDict / LoadStateDict: Named tensors for persistence
//
// Type parameter B must satisfy the tensor.Backend interface.
type Module[B tensor.Backend] interface {
	// Forward computes the output of the module given an input tensor.
	Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B]

	// Parameters returns all trainable parameters of this module.
	// Returns an empty slice for modules without trainable parameters.
	Parameters() []*Parameter[B]

	// StateDict returns every persistent tensor of the module by name,
	// including non-trainable buffers.
	StateDict() map[string]*tensor.RawTensor

	// LoadStateDict copies the named tensors into the module in place.
	LoadStateDict(stateDict map[string]*tensor.RawTensor) error
}
