package cpu

import (
	"fmt"

	"github.com/born-ml/sparseconv/internal/tensor"
)

// Reshape returns a copy of x with a new shape.
// The element count must not change.
func (cpu *CPUBackend) Reshape(x *tensor.RawTensor, newShape tensor.Shape) *tensor.RawTensor {
	if err := newShape.Validate(); err != nil {
		panic(fmt.Sprintf("reshape: %v", err))
	}
	if newShape.NumElements() != x.NumElements() {
		panic(fmt.Sprintf("reshape: cannot reshape %v (%d elements) to %v (%d elements)",
			x.Shape(), x.NumElements(), newShape, newShape.NumElements()))
	}
	view, err := x.Clone().WithShape(newShape)
	if err != nil {
		panic(fmt.Sprintf("reshape: %v", err))
	}
	return view
}

// Cat concatenates tensors along the specified dimension.
//
// All tensors must have the same shape except along the concatenation dimension.
// Supports negative dim indexing (-1 = last dimension).
//
// Example:
//
//	a := tensor.Zeros[float32](tensor.Shape{2, 3}, backend)
//	b := tensor.Zeros[float32](tensor.Shape{2, 5}, backend)
//	c := backend.Cat([]*tensor.RawTensor{a.Raw(), b.Raw()}, 1) // Shape: [2, 8]
func (cpu *CPUBackend) Cat(tensors []*tensor.RawTensor, dim int) *tensor.RawTensor {
	if len(tensors) == 0 {
		panic("cat: at least one tensor required")
	}

	shape := tensors[0].Shape()
	ndim := len(shape)
	dtype := tensors[0].DType()
	dim = shape.NormalizeDim(dim)

	totalDim := 0
	for i, t := range tensors {
		tShape := t.Shape()
		if len(tShape) != ndim {
			panic(fmt.Sprintf("cat: tensor %d has %d dimensions, expected %d", i, len(tShape), ndim))
		}
		if t.DType() != dtype {
			panic(fmt.Sprintf("cat: tensor %d has dtype %s, expected %s", i, t.DType(), dtype))
		}
		for d := 0; d < ndim; d++ {
			if d == dim {
				totalDim += tShape[d]
			} else if tShape[d] != shape[d] {
				panic(fmt.Sprintf("cat: tensor %d dimension %d is %d, expected %d", i, d, tShape[d], shape[d]))
			}
		}
	}

	outShape := shape.Clone()
	outShape[dim] = totalDim
	result := cpu.newResult("cat", outShape, dtype)

	// Contiguous layout: each tensor contributes one block of
	// size(dim)*inner elements per outer index.
	outer, _, inner := splitAt(shape, dim)
	elem := dtype.Size()
	dst := result.Data()
	off := 0
	for o := 0; o < outer; o++ {
		for _, t := range tensors {
			block := t.Shape()[dim] * inner * elem
			copy(dst[off:off+block], t.Data()[o*block:(o+1)*block])
			off += block
		}
	}
	return result
}

// Narrow returns x[..., start:start+length, ...] along dim as a new tensor.
func (cpu *CPUBackend) Narrow(x *tensor.RawTensor, dim, start, length int) *tensor.RawTensor {
	shape := x.Shape()
	dim = shape.NormalizeDim(dim)
	if start < 0 || length <= 0 || start+length > shape[dim] {
		panic(fmt.Sprintf("narrow: range [%d, %d) out of bounds for dimension %d of size %d",
			start, start+length, dim, shape[dim]))
	}

	outShape := shape.Clone()
	outShape[dim] = length
	result := cpu.newResult("narrow", outShape, x.DType())

	outer, size, inner := splitAt(shape, dim)
	elem := x.DType().Size()
	row := size * inner * elem
	block := length * inner * elem
	skip := start * inner * elem
	src, dst := x.Data(), result.Data()
	for o := 0; o < outer; o++ {
		copy(dst[o*block:(o+1)*block], src[o*row+skip:o*row+skip+block])
	}
	return result
}
