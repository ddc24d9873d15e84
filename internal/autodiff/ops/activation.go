package ops

import "github.com/born-ml/sparseconv/internal/tensor"

// SigmoidOp represents the sigmoid activation operation: σ(x) = 1 / (1 + exp(-x)).
type SigmoidOp struct {
	unary
}

// NewSigmoidOp creates a new sigmoid operation.
func NewSigmoidOp(input, output *tensor.RawTensor) *SigmoidOp {
	return &SigmoidOp{unary{input: input, output: output}}
}

// Backward computes the gradient for sigmoid.
//
// dσ/dx = σ(x) * (1 - σ(x)), computed from the saved output.
func (op *SigmoidOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	oneMinus := backend.AddScalar(backend.MulScalar(op.output, -1), 1)
	derivative := backend.Mul(op.output, oneMinus)
	return []*tensor.RawTensor{backend.Mul(outputGrad, derivative)}
}

// AbsOp represents output = |input|.
type AbsOp struct {
	unary
}

// NewAbsOp creates a new AbsOp.
func NewAbsOp(input, output *tensor.RawTensor) *AbsOp {
	return &AbsOp{unary{input: input, output: output}}
}

// Backward computes d|x|/dx = sign(x), with sign(0) = 0.
func (op *AbsOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	sign := backend.Sub(backend.Step(op.input), backend.Step(backend.MulScalar(op.input, -1)))
	return []*tensor.RawTensor{backend.Mul(outputGrad, sign)}
}
