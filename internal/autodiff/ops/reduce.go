package ops

import "github.com/born-ml/sparseconv/internal/tensor"

// SumDimOp represents a sum along one dimension.
type SumDimOp struct {
	unary
	dim     int
	keepDim bool
}

// NewSumDimOp creates a new SumDimOp. dim must already be normalized.
func NewSumDimOp(input, output *tensor.RawTensor, dim int, keepDim bool) *SumDimOp {
	return &SumDimOp{unary: unary{input: input, output: output}, dim: dim, keepDim: keepDim}
}

// Backward broadcasts the gradient back over the reduced dimension.
func (op *SumDimOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	grad := outputGrad
	if !op.keepDim {
		kept := op.input.Shape().Clone()
		kept[op.dim] = 1
		grad = backend.Reshape(grad, kept)
	}
	zeros := tensor.MustNewRaw(op.input.Shape(), op.input.DType(), backend.Device())
	return []*tensor.RawTensor{backend.Add(zeros, grad)}
}
