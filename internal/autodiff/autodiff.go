// Package autodiff implements automatic differentiation using the decorator pattern.
//
// AutodiffBackend wraps any Backend implementation and adds gradient
// tracking through a GradientTape.
//
// Architecture:
//   - Decorator pattern: AutodiffBackend[B] wraps any Backend implementation
//   - GradientTape: Records operations during forward pass
//   - Operation interface: Each op implements its backward pass
//   - Reverse-mode AD: Computes gradients using the chain rule
//
// Step is the one operation that is never recorded: its derivative is zero
// almost everywhere, so it acts as a gradient stop. Binary masks derived
// from logits therefore carry no gradient back to the logits.
//
// Usage:
//
//	backend := autodiff.New(cpu.New())
//	backend.Tape().StartRecording()
//
//	x, _ := tensor.FromSlice([]float32{2.0}, tensor.Shape{1}, backend)
//	y := x.Mul(x) // y = x²
//
//	grads := autodiff.Backward(y, backend)
//	fmt.Println(grads[x.Raw()].AsFloat32()) // dy/dx = 2x = [4]
package autodiff

import (
	"github.com/born-ml/sparseconv/internal/autodiff/ops"
	"github.com/born-ml/sparseconv/internal/tensor"
)

// AutodiffBackend wraps a Backend and adds automatic differentiation.
// It implements the tensor.Backend interface and records operations in a GradientTape.
//
// Type parameter B must satisfy the tensor.Backend interface.
type AutodiffBackend[B tensor.Backend] struct {
	inner B             // Wrapped backend
	tape  *GradientTape // Records operations for backpropagation
}

// New creates a new AutodiffBackend wrapping the given backend.
func New[B tensor.Backend](backend B) *AutodiffBackend[B] {
	return &AutodiffBackend[B]{
		inner: backend,
		tape:  NewGradientTape(),
	}
}

// Tape returns the gradient tape for manual control.
func (b *AutodiffBackend[B]) Tape() *GradientTape {
	return b.tape
}

// Inner returns the wrapped backend for direct access.
func (b *AutodiffBackend[B]) Inner() B {
	return b.inner
}

// Name returns the backend name.
func (b *AutodiffBackend[B]) Name() string {
	return "Autodiff(" + b.inner.Name() + ")"
}

// Device returns the compute device.
func (b *AutodiffBackend[B]) Device() tensor.Device {
	return b.inner.Device()
}

func (b *AutodiffBackend[B]) record(op ops.Operation) {
	if b.tape.IsRecording() {
		b.tape.Record(op)
	}
}

// Add performs element-wise addition and records the operation.
func (b *AutodiffBackend[B]) Add(a, c *tensor.RawTensor) *tensor.RawTensor {
	result := b.inner.Add(a, c)
	b.record(ops.NewAddOp(a, c, result))
	return result
}

// Sub performs element-wise subtraction and records the operation.
func (b *AutodiffBackend[B]) Sub(a, c *tensor.RawTensor) *tensor.RawTensor {
	result := b.inner.Sub(a, c)
	b.record(ops.NewSubOp(a, c, result))
	return result
}

// Mul performs element-wise multiplication and records the operation.
func (b *AutodiffBackend[B]) Mul(a, c *tensor.RawTensor) *tensor.RawTensor {
	result := b.inner.Mul(a, c)
	b.record(ops.NewMulOp(a, c, result))
	return result
}

// MulScalar multiplies by a scalar and records the operation.
func (b *AutodiffBackend[B]) MulScalar(x *tensor.RawTensor, scalar float64) *tensor.RawTensor {
	result := b.inner.MulScalar(x, scalar)
	b.record(ops.NewMulScalarOp(x, result, scalar))
	return result
}

// AddScalar adds a scalar and records the operation.
func (b *AutodiffBackend[B]) AddScalar(x *tensor.RawTensor, scalar float64) *tensor.RawTensor {
	result := b.inner.AddScalar(x, scalar)
	b.record(ops.NewAddScalarOp(x, result))
	return result
}

// ClampMax clamps from above and records the operation.
func (b *AutodiffBackend[B]) ClampMax(x *tensor.RawTensor, maxVal float64) *tensor.RawTensor {
	result := b.inner.ClampMax(x, maxVal)
	b.record(ops.NewClampMaxOp(x, result, maxVal))
	return result
}

// Sigmoid applies the sigmoid and records the operation.
func (b *AutodiffBackend[B]) Sigmoid(x *tensor.RawTensor) *tensor.RawTensor {
	result := b.inner.Sigmoid(x)
	b.record(ops.NewSigmoidOp(x, result))
	return result
}

// Step thresholds at zero. Not recorded: the result carries no gradient.
func (b *AutodiffBackend[B]) Step(x *tensor.RawTensor) *tensor.RawTensor {
	return b.inner.Step(x)
}

// Abs applies |x| and records the operation.
func (b *AutodiffBackend[B]) Abs(x *tensor.RawTensor) *tensor.RawTensor {
	result := b.inner.Abs(x)
	b.record(ops.NewAbsOp(x, result))
	return result
}

// SumDim sums along a dimension and records the operation.
func (b *AutodiffBackend[B]) SumDim(x *tensor.RawTensor, dim int, keepDim bool) *tensor.RawTensor {
	result := b.inner.SumDim(x, dim, keepDim)
	b.record(ops.NewSumDimOp(x, result, x.Shape().NormalizeDim(dim), keepDim))
	return result
}

// Reshape changes the shape and records the operation.
func (b *AutodiffBackend[B]) Reshape(x *tensor.RawTensor, newShape tensor.Shape) *tensor.RawTensor {
	result := b.inner.Reshape(x, newShape)
	b.record(ops.NewReshapeOp(x, result))
	return result
}

// Cat concatenates along a dimension and records the operation.
func (b *AutodiffBackend[B]) Cat(tensors []*tensor.RawTensor, dim int) *tensor.RawTensor {
	result := b.inner.Cat(tensors, dim)
	inputs := append([]*tensor.RawTensor(nil), tensors...)
	b.record(ops.NewCatOp(inputs, result, result.Shape().NormalizeDim(dim)))
	return result
}

// Narrow slices along a dimension and records the operation.
func (b *AutodiffBackend[B]) Narrow(x *tensor.RawTensor, dim, start, length int) *tensor.RawTensor {
	result := b.inner.Narrow(x, dim, start, length)
	b.record(ops.NewNarrowOp(x, result, x.Shape().NormalizeDim(dim), start, length))
	return result
}

// Conv2D performs a grouped 2D convolution and records the operation.
func (b *AutodiffBackend[B]) Conv2D(input, kernel *tensor.RawTensor, cfg tensor.Conv2DConfig) *tensor.RawTensor {
	result := b.inner.Conv2D(input, kernel, cfg)
	b.record(ops.NewConv2DOp(input, kernel, result, cfg))
	return result
}

// Conv2DInputBackward delegates to the wrapped backend. Not recorded.
func (b *AutodiffBackend[B]) Conv2DInputBackward(input, kernel, grad *tensor.RawTensor, cfg tensor.Conv2DConfig) *tensor.RawTensor {
	return b.inner.Conv2DInputBackward(input, kernel, grad, cfg)
}

// Conv2DKernelBackward delegates to the wrapped backend. Not recorded.
func (b *AutodiffBackend[B]) Conv2DKernelBackward(input, kernel, grad *tensor.RawTensor, cfg tensor.Conv2DConfig) *tensor.RawTensor {
	return b.inner.Conv2DKernelBackward(input, kernel, grad, cfg)
}
