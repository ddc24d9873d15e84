package ops

import (
	"fmt"

	"github.com/born-ml/sparseconv/internal/tensor"
)

// MulScalarOp represents output = input * scalar.
type MulScalarOp struct {
	unary
	scalar float64
}

// NewMulScalarOp creates a new MulScalarOp.
func NewMulScalarOp(input, output *tensor.RawTensor, scalar float64) *MulScalarOp {
	return &MulScalarOp{unary: unary{input: input, output: output}, scalar: scalar}
}

// Backward scales the gradient by the same scalar.
func (op *MulScalarOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	return []*tensor.RawTensor{backend.MulScalar(outputGrad, op.scalar)}
}

// AddScalarOp represents output = input + scalar.
type AddScalarOp struct {
	unary
}

// NewAddScalarOp creates a new AddScalarOp.
func NewAddScalarOp(input, output *tensor.RawTensor) *AddScalarOp {
	return &AddScalarOp{unary{input: input, output: output}}
}

// Backward passes the gradient through unchanged.
func (op *AddScalarOp) Backward(outputGrad *tensor.RawTensor, _ tensor.Backend) []*tensor.RawTensor {
	return []*tensor.RawTensor{outputGrad.Clone()}
}

// ClampMaxOp represents output = min(input, maxVal).
type ClampMaxOp struct {
	unary
	maxVal float64
}

// NewClampMaxOp creates a new ClampMaxOp.
func NewClampMaxOp(input, output *tensor.RawTensor, maxVal float64) *ClampMaxOp {
	return &ClampMaxOp{unary: unary{input: input, output: output}, maxVal: maxVal}
}

// Backward passes the gradient where input <= maxVal and zeroes it where the
// clamp was active.
func (op *ClampMaxOp) Backward(outputGrad *tensor.RawTensor, _ tensor.Backend) []*tensor.RawTensor {
	grad := outputGrad.Clone()
	switch grad.DType() {
	case tensor.Float32:
		maskAbove(grad.AsFloat32(), op.input.AsFloat32(), float32(op.maxVal))
	case tensor.Float64:
		maskAbove(grad.AsFloat64(), op.input.AsFloat64(), op.maxVal)
	default:
		panic(fmt.Sprintf("clampmax backward: unsupported dtype %s", grad.DType()))
	}
	return []*tensor.RawTensor{grad}
}

func maskAbove[T float32 | float64](grad, input []T, limit T) {
	for i, v := range input {
		if v > limit {
			grad[i] = 0
		}
	}
}
