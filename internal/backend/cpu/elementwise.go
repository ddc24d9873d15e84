package cpu

import (
	"fmt"
	"math"

	"github.com/born-ml/sparseconv/internal/tensor"
)

type binaryOp int

const (
	opAdd binaryOp = iota
	opSub
	opMul
)

func (op binaryOp) String() string {
	switch op {
	case opAdd:
		return "add"
	case opSub:
		return "sub"
	default:
		return "mul"
	}
}

func binaryKernel[T float](op binaryOp) func(x, y T) T {
	switch op {
	case opAdd:
		return func(x, y T) T { return x + y }
	case opSub:
		return func(x, y T) T { return x - y }
	default:
		return func(x, y T) T { return x * y }
	}
}

// Add performs element-wise addition with NumPy-style broadcasting.
func (cpu *CPUBackend) Add(a, b *tensor.RawTensor) *tensor.RawTensor {
	return cpu.binary(opAdd, a, b)
}

// Sub performs element-wise subtraction with broadcasting.
func (cpu *CPUBackend) Sub(a, b *tensor.RawTensor) *tensor.RawTensor {
	return cpu.binary(opSub, a, b)
}

// Mul performs element-wise multiplication with broadcasting.
func (cpu *CPUBackend) Mul(a, b *tensor.RawTensor) *tensor.RawTensor {
	return cpu.binary(opMul, a, b)
}

func (cpu *CPUBackend) binary(op binaryOp, a, b *tensor.RawTensor) *tensor.RawTensor {
	checkSameDType(op.String(), a, b)

	outShape, _, err := tensor.BroadcastShapes(a.Shape(), b.Shape())
	if err != nil {
		panic(fmt.Sprintf("%s: %v", op, err))
	}
	result := cpu.newResult(op.String(), outShape, a.DType())

	switch a.DType() {
	case tensor.Float32:
		broadcastApply(result.AsFloat32(), a.AsFloat32(), b.AsFloat32(),
			outShape, a.Shape(), b.Shape(), binaryKernel[float32](op))
	case tensor.Float64:
		broadcastApply(result.AsFloat64(), a.AsFloat64(), b.AsFloat64(),
			outShape, a.Shape(), b.Shape(), binaryKernel[float64](op))
	default:
		panic(fmt.Sprintf("%s: unsupported dtype %s", op, a.DType()))
	}
	return result
}

// broadcastApply evaluates f over the broadcast of a and b into out.
func broadcastApply[T float](out, a, b []T, outShape, aShape, bShape tensor.Shape, f func(x, y T) T) {
	if aShape.Equal(bShape) {
		for i := range out {
			out[i] = f(a[i], b[i])
		}
		return
	}

	aStrides := broadcastStrides(aShape, outShape)
	bStrides := broadcastStrides(bShape, outShape)
	idx := make([]int, len(outShape))

	for i := range out {
		aOff, bOff := 0, 0
		for d, v := range idx {
			aOff += v * aStrides[d]
			bOff += v * bStrides[d]
		}
		out[i] = f(a[aOff], b[bOff])

		for d := len(idx) - 1; d >= 0; d-- {
			idx[d]++
			if idx[d] < outShape[d] {
				break
			}
			idx[d] = 0
		}
	}
}

// broadcastStrides returns strides of shape aligned to outShape, with zero
// stride on every broadcast dimension.
func broadcastStrides(shape, outShape tensor.Shape) []int {
	strides := make([]int, len(outShape))
	src := shape.ComputeStrides()
	lead := len(outShape) - len(shape)
	for d, dim := range shape {
		if dim != 1 {
			strides[d+lead] = src[d]
		}
	}
	return strides
}

// MulScalar multiplies every element by scalar.
func (cpu *CPUBackend) MulScalar(x *tensor.RawTensor, scalar float64) *tensor.RawTensor {
	return cpu.unary("mulscalar", x,
		func(v float32) float32 { return v * float32(scalar) },
		func(v float64) float64 { return v * scalar })
}

// AddScalar adds scalar to every element.
func (cpu *CPUBackend) AddScalar(x *tensor.RawTensor, scalar float64) *tensor.RawTensor {
	return cpu.unary("addscalar", x,
		func(v float32) float32 { return v + float32(scalar) },
		func(v float64) float64 { return v + scalar })
}

// ClampMax returns min(x, maxVal) element-wise.
func (cpu *CPUBackend) ClampMax(x *tensor.RawTensor, maxVal float64) *tensor.RawTensor {
	return cpu.unary("clampmax", x,
		func(v float32) float32 { return min(v, float32(maxVal)) },
		func(v float64) float64 { return min(v, maxVal) })
}

// Sigmoid applies σ(x) = 1 / (1 + exp(-x)).
func (cpu *CPUBackend) Sigmoid(x *tensor.RawTensor) *tensor.RawTensor {
	return cpu.unary("sigmoid", x,
		func(v float32) float32 { return float32(1.0 / (1.0 + math.Exp(float64(-v)))) },
		func(v float64) float64 { return 1.0 / (1.0 + math.Exp(-v)) })
}

// Step returns 1 where x > 0 and 0 elsewhere.
func (cpu *CPUBackend) Step(x *tensor.RawTensor) *tensor.RawTensor {
	return cpu.unary("step", x, step[float32], step[float64])
}

// Abs returns |x| element-wise.
func (cpu *CPUBackend) Abs(x *tensor.RawTensor) *tensor.RawTensor {
	return cpu.unary("abs", x,
		func(v float32) float32 { return float32(math.Abs(float64(v))) },
		math.Abs)
}

func step[T float](v T) T {
	if v > 0 {
		return 1
	}
	return 0
}

func (cpu *CPUBackend) unary(op string, x *tensor.RawTensor, f32 func(float32) float32, f64 func(float64) float64) *tensor.RawTensor {
	result := cpu.newResult(op, x.Shape(), x.DType())
	switch x.DType() {
	case tensor.Float32:
		mapInto(result.AsFloat32(), x.AsFloat32(), f32)
	case tensor.Float64:
		mapInto(result.AsFloat64(), x.AsFloat64(), f64)
	default:
		panic(fmt.Sprintf("%s: unsupported dtype %s", op, x.DType()))
	}
	return result
}

func mapInto[T float](out, in []T, f func(T) T) {
	for i, v := range in {
		out[i] = f(v)
	}
}
