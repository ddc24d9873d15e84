package cpu

import (
	"fmt"

	"github.com/born-ml/sparseconv/internal/tensor"
)

// SumDim sums tensor elements along the specified dimension.
//
// Parameters:
//   - dim: dimension to reduce (supports negative indexing: -1 = last dim)
//   - keepDim: if true, keep the reduced dimension with size 1; if false, remove it
//
// Example:
//
//	x := tensor.Zeros[float32](tensor.Shape{2, 3, 4}, backend)
//	y := backend.SumDim(x.Raw(), -1, true)  // shape: [2, 3, 1]
//	z := backend.SumDim(x.Raw(), 0, false)  // shape: [3, 4]
func (cpu *CPUBackend) SumDim(x *tensor.RawTensor, dim int, keepDim bool) *tensor.RawTensor {
	shape := x.Shape()
	dim = shape.NormalizeDim(dim)

	var outShape tensor.Shape
	if keepDim {
		outShape = shape.Clone()
		outShape[dim] = 1
	} else {
		outShape = make(tensor.Shape, 0, len(shape)-1)
		outShape = append(outShape, shape[:dim]...)
		outShape = append(outShape, shape[dim+1:]...)
	}

	result := cpu.newResult("sumdim", outShape, x.DType())
	outer, size, inner := splitAt(shape, dim)

	switch x.DType() {
	case tensor.Float32:
		sumDim(result.AsFloat32(), x.AsFloat32(), outer, size, inner)
	case tensor.Float64:
		sumDim(result.AsFloat64(), x.AsFloat64(), outer, size, inner)
	default:
		panic(fmt.Sprintf("sumdim: unsupported dtype %s", x.DType()))
	}
	return result
}

func sumDim[T float](out, in []T, outer, size, inner int) {
	for o := 0; o < outer; o++ {
		dst := out[o*inner : (o+1)*inner]
		for s := 0; s < size; s++ {
			src := in[(o*size+s)*inner : (o*size+s+1)*inner]
			for i, v := range src {
				dst[i] += v
			}
		}
	}
}

// splitAt returns the element counts before dim, along dim and after dim.
func splitAt(shape tensor.Shape, dim int) (outer, size, inner int) {
	outer, inner = 1, 1
	for _, d := range shape[:dim] {
		outer *= d
	}
	for _, d := range shape[dim+1:] {
		inner *= d
	}
	return outer, shape[dim], inner
}
