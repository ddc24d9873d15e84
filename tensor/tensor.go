// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor

import (
	"github.com/born-ml/sparseconv/internal/tensor"
)

// DType is a constraint for tensor element types: float32 or float64.
type DType = tensor.DType

// DataType represents the underlying data type of a tensor.
type DataType = tensor.DataType

// Data type constants.
const (
	Float32 DataType = tensor.Float32
	Float64 DataType = tensor.Float64
)

// Device represents the device where tensor data resides.
type Device = tensor.Device

// Device constants.
const (
	CPU    Device = tensor.CPU
	CUDA   Device = tensor.CUDA
	Metal  Device = tensor.Metal
	WebGPU Device = tensor.WebGPU
)

// Shape represents the dimensions of a tensor.
// Example: Shape{2, 3, 4} represents a 3D tensor with dimensions 2×3×4.
type Shape = tensor.Shape

// RawTensor is the low-level tensor representation: a contiguous byte
// buffer plus shape and type information.
//
// Most users should use the high-level Tensor[T, B] type instead.
type RawTensor = tensor.RawTensor

// Backend defines the operations a compute backend must implement.
//
// Implementations:
//   - backend/cpu: Pure Go
//
// Decorator backends:
//   - autodiff: Automatic differentiation (wraps any backend)
type Backend = tensor.Backend

// Conv2DConfig configures a 2D convolution: per-axis stride and padding plus a group count.
type Conv2DConfig = tensor.Conv2DConfig

// SquareConv returns a Conv2DConfig with equal stride and padding on both
// spatial axes and a single group.
func SquareConv(stride, padding int) Conv2DConfig {
	return tensor.SquareConv(stride, padding)
}

// ConvOutputSize returns the output length of one spatial axis.
func ConvOutputSize(dim, kernel, padding, stride int) int {
	return tensor.ConvOutputSize(dim, kernel, padding, stride)
}

// Tensor is a generic type-safe tensor.
//
// T is the element type (float32 or float64).
// B is the backend implementation.
//
// Example:
//
//	backend := cpu.New()
//	x := tensor.Zeros[float32](tensor.Shape{2, 3}, backend)
//	y := tensor.Ones[float32](tensor.Shape{2, 3}, backend)
//	z := x.Add(y)
type Tensor[T DType, B Backend] = tensor.Tensor[T, B]

// Creation functions

// Zeros creates a tensor filled with zeros.
//
// Example:
//
//	backend := cpu.New()
//	x := tensor.Zeros[float32](tensor.Shape{2, 3}, backend)
func Zeros[T DType, B Backend](shape Shape, b B) *Tensor[T, B] {
	return tensor.Zeros[T, B](shape, b)
}

// Ones creates a tensor filled with ones.
func Ones[T DType, B Backend](shape Shape, b B) *Tensor[T, B] {
	return tensor.Ones[T, B](shape, b)
}

// Full creates a tensor filled with a specific value.
//
// Example:
//
//	backend := cpu.New()
//	logits := tensor.Full[float32](tensor.Shape{8, 3, 3, 3}, -2, backend)
func Full[T DType, B Backend](shape Shape, value T, b B) *Tensor[T, B] {
	return tensor.Full[T, B](shape, value, b)
}

// Randn creates a tensor with values drawn from N(mean, std²).
func Randn[T DType, B Backend](shape Shape, mean, std float64, b B) *Tensor[T, B] {
	return tensor.Randn[T, B](shape, mean, std, b)
}

// Uniform creates a tensor with values drawn uniformly from [low, high).
func Uniform[T DType, B Backend](shape Shape, low, high float64, b B) *Tensor[T, B] {
	return tensor.Uniform[T, B](shape, low, high, b)
}

// FromSlice creates a tensor from a Go slice.
//
// Example:
//
//	backend := cpu.New()
//	data := []float32{1, 2, 3, 4, 5, 6}
//	x, err := tensor.FromSlice(data, tensor.Shape{2, 3}, backend)
func FromSlice[T DType, B Backend](data []T, shape Shape, b B) (*Tensor[T, B], error) {
	return tensor.FromSlice[T, B](data, shape, b)
}

// New creates a tensor from a raw tensor.
//
// This is a low-level function. Most users should use creation functions like
// Zeros, Ones, or FromSlice instead.
func New[T DType, B Backend](raw *RawTensor, b B) *Tensor[T, B] {
	return tensor.New[T, B](raw, b)
}

// NewRaw creates a new raw tensor with the given shape, dtype, and device.
func NewRaw(shape Shape, dtype DataType, device Device) (*RawTensor, error) {
	return tensor.NewRaw(shape, dtype, device)
}

// Cat concatenates tensors along a dimension.
//
// Example:
//
//	a := tensor.Ones[float32](tensor.Shape{1, 2, 4, 4}, backend)
//	b := tensor.Zeros[float32](tensor.Shape{1, 3, 4, 4}, backend)
//	c := tensor.Cat([]*tensor.Tensor[float32, B]{a, b}, 1) // Shape: [1, 5, 4, 4]
func Cat[T DType, B Backend](tensors []*Tensor[T, B], dim int) *Tensor[T, B] {
	return tensor.Cat(tensors, dim)
}
