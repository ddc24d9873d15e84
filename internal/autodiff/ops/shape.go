package ops

import "github.com/born-ml/sparseconv/internal/tensor"

// ReshapeOp represents a change of shape without a change of data.
type ReshapeOp struct {
	unary
}

// NewReshapeOp creates a new ReshapeOp.
func NewReshapeOp(input, output *tensor.RawTensor) *ReshapeOp {
	return &ReshapeOp{unary{input: input, output: output}}
}

// Backward reshapes the gradient back to the input shape.
func (op *ReshapeOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	return []*tensor.RawTensor{backend.Reshape(outputGrad, op.input.Shape())}
}

// CatOp represents concatenation along one dimension.
type CatOp struct {
	inputs []*tensor.RawTensor
	output *tensor.RawTensor
	dim    int
}

// NewCatOp creates a new CatOp. dim must already be normalized.
func NewCatOp(inputs []*tensor.RawTensor, output *tensor.RawTensor, dim int) *CatOp {
	return &CatOp{inputs: inputs, output: output, dim: dim}
}

// Inputs returns the input tensors.
func (op *CatOp) Inputs() []*tensor.RawTensor {
	return op.inputs
}

// Output returns the output tensor.
func (op *CatOp) Output() *tensor.RawTensor {
	return op.output
}

// Backward splits the gradient back into the input extents.
func (op *CatOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	grads := make([]*tensor.RawTensor, len(op.inputs))
	offset := 0
	for i, in := range op.inputs {
		size := in.Shape()[op.dim]
		grads[i] = backend.Narrow(outputGrad, op.dim, offset, size)
		offset += size
	}
	return grads
}

// NarrowOp represents taking [start, start+length) along one dimension.
type NarrowOp struct {
	unary
	dim, start, length int
}

// NewNarrowOp creates a new NarrowOp. dim must already be normalized.
func NewNarrowOp(input, output *tensor.RawTensor, dim, start, length int) *NarrowOp {
	return &NarrowOp{unary: unary{input: input, output: output}, dim: dim, start: start, length: length}
}

// Backward places the gradient back at its offset and fills the rest of the
// input extent with zeros.
func (op *NarrowOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	shape := op.input.Shape()
	parts := make([]*tensor.RawTensor, 0, 3)
	if op.start > 0 {
		parts = append(parts, zerosAlong(shape, op.dim, op.start, op.input.DType(), backend))
	}
	parts = append(parts, outputGrad)
	if rest := shape[op.dim] - op.start - op.length; rest > 0 {
		parts = append(parts, zerosAlong(shape, op.dim, rest, op.input.DType(), backend))
	}
	if len(parts) == 1 {
		return []*tensor.RawTensor{outputGrad.Clone()}
	}
	return []*tensor.RawTensor{backend.Cat(parts, op.dim)}
}

func zerosAlong(shape tensor.Shape, dim, size int, dtype tensor.DataType, backend tensor.Backend) *tensor.RawTensor {
	s := shape.Clone()
	s[dim] = size
	return tensor.MustNewRaw(s, dtype, backend.Device())
}
