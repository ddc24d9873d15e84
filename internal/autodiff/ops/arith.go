package ops

import "github.com/born-ml/sparseconv/internal/tensor"

// AddOp represents element-wise addition: output = a + b.
type AddOp struct{ binary }

// NewAddOp creates a new AddOp.
func NewAddOp(a, b, output *tensor.RawTensor) *AddOp {
	return &AddOp{binary{a: a, b: b, output: output}}
}

// Backward passes the gradient through to both inputs, summed over any
// broadcast dimensions.
func (op *AddOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	return []*tensor.RawTensor{
		reduceBroadcast(outputGrad, op.a.Shape(), backend),
		reduceBroadcast(outputGrad, op.b.Shape(), backend),
	}
}

// SubOp represents element-wise subtraction: output = a - b.
type SubOp struct{ binary }

// NewSubOp creates a new SubOp.
func NewSubOp(a, b, output *tensor.RawTensor) *SubOp {
	return &SubOp{binary{a: a, b: b, output: output}}
}

// Backward computes d(a-b)/da = 1 and d(a-b)/db = -1.
func (op *SubOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	return []*tensor.RawTensor{
		reduceBroadcast(outputGrad, op.a.Shape(), backend),
		reduceBroadcast(backend.MulScalar(outputGrad, -1), op.b.Shape(), backend),
	}
}

// MulOp represents element-wise multiplication: output = a * b.
type MulOp struct{ binary }

// NewMulOp creates a new MulOp.
func NewMulOp(a, b, output *tensor.RawTensor) *MulOp {
	return &MulOp{binary{a: a, b: b, output: output}}
}

// Backward computes d(a*b)/da = b and d(a*b)/db = a.
func (op *MulOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	return []*tensor.RawTensor{
		reduceBroadcast(backend.Mul(outputGrad, op.b), op.a.Shape(), backend),
		reduceBroadcast(backend.Mul(outputGrad, op.a), op.b.Shape(), backend),
	}
}
