// Package ops defines the differentiable operations recorded on a gradient tape.
//
// Each operation keeps references to its inputs and output from the forward
// pass and maps an output gradient to one gradient per input:
//   - AddOp, SubOp, MulOp: element-wise arithmetic with broadcast reduction
//   - MulScalarOp, AddScalarOp, ClampMaxOp: tensor-scalar operations
//   - SigmoidOp, AbsOp: element-wise functions
//   - SumDimOp, ReshapeOp, CatOp, NarrowOp: reductions and shape changes
//   - Conv2DOp: grouped 2D convolution
package ops

import "github.com/born-ml/sparseconv/internal/tensor"

// Operation represents a differentiable operation in the computation graph.
// Each operation records its inputs and output during the forward pass,
// and computes input gradients during the backward pass.
type Operation interface {
	// Backward computes gradients for inputs given the output gradient.
	// Returns a slice of gradients corresponding to each input tensor.
	// A nil entry means no gradient flows to that input.
	Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor

	// Inputs returns the input tensors for this operation.
	Inputs() []*tensor.RawTensor

	// Output returns the output tensor produced by this operation.
	Output() *tensor.RawTensor
}

// unary holds the bookkeeping shared by single-input operations.
type unary struct {
	input  *tensor.RawTensor
	output *tensor.RawTensor
}

// Inputs returns the input tensors.
func (u *unary) Inputs() []*tensor.RawTensor {
	return []*tensor.RawTensor{u.input}
}

// Output returns the output tensor.
func (u *unary) Output() *tensor.RawTensor {
	return u.output
}

// binary holds the bookkeeping shared by two-input operations.
type binary struct {
	a, b   *tensor.RawTensor
	output *tensor.RawTensor
}

// Inputs returns the input tensors.
func (o *binary) Inputs() []*tensor.RawTensor {
	return []*tensor.RawTensor{o.a, o.b}
}

// Output returns the output tensor.
func (o *binary) Output() *tensor.RawTensor {
	return o.output
}
