// Package optim implements optimization algorithms for training the
// convolution modules.
//
// This package provides:
//   - Optimizer interface: Base interface for all optimizers
//   - SGD: Stochastic Gradient Descent with momentum
//
// Example usage:
//
//	layer, _ := nn.NewSoftMaskedConv2D(3, 8, 3, 1, 1, nn.DefaultMaskInitialValue, backend)
//	optimizer := optim.NewSGD(layer.Parameters(), optim.SGDConfig{LR: 0.01}, backend)
//
//	for step := range steps {
//	    backend.Tape().StartRecording()
//	    output, _ := layer.ForwardMasked(input, temperature, false)
//	    loss := lossFunc(output)
//	    grads := autodiff.Backward(loss, backend)
//	    backend.Tape().Clear()
//
//	    optimizer.Step(grads)
//	    optimizer.ZeroGrad()
//	}
package optim

import (
	"github.com/born-ml/sparseconv/internal/nn"
	"github.com/born-ml/sparseconv/internal/tensor"
)

// Optimizer is the base interface for all optimization algorithms.
type Optimizer interface {
	// Step applies gradient updates to all parameters in place.
	//
	// grads maps each parameter's RawTensor to its gradient, as returned
	// by autodiff.Backward. Parameters without an entry are skipped.
	Step(grads map[*tensor.RawTensor]*tensor.RawTensor)

	// ZeroGrad clears all parameter gradients.
	ZeroGrad()

	// GetLR returns the current learning rate.
	GetLR() float32
}

// getGradient safely retrieves gradient for a parameter.
//
// Returns nil if no gradient is found (parameter wasn't part of computation graph).
func getGradient[B tensor.Backend](param *nn.Parameter[B], grads map[*tensor.RawTensor]*tensor.RawTensor) *tensor.RawTensor {
	if param == nil {
		return nil
	}
	return grads[param.Tensor().Raw()]
}
