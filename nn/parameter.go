// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package nn

import (
	"github.com/born-ml/sparseconv/internal/nn"
	"github.com/born-ml/sparseconv/tensor"
)

// Parameter represents a trainable parameter in a neural network.
//
// Example:
//
//	w := layer.Weight().Tensor()
//	grad := layer.MaskWeight().Grad() // nil before CollectGrads
//
// Note: Parameter is implemented as a type alias because it is used as a return type
// in the Module interface. Go's type system requires exact type matches for interface
// implementations, so we cannot use an interface here.
type Parameter[B tensor.Backend] = nn.Parameter[B]

// NewParameter creates a new parameter with the given name and tensor.
func NewParameter[B tensor.Backend](name string, t *tensor.Tensor[float32, B]) *Parameter[B] {
	return nn.NewParameter(name, t)
}

// CollectGrads copies the gradients computed by autodiff.Backward onto the
// parameters that have one.
func CollectGrads[B tensor.Backend](params []*Parameter[B], grads map[*tensor.RawTensor]*tensor.RawTensor) {
	nn.CollectGrads(params, grads)
}
