package tensor

import "math/rand"

// Zeros creates a tensor filled with zeros.
//
// Example:
//
//	backend := cpu.New()
//	t := tensor.Zeros[float32](Shape{3, 4}, backend)
func Zeros[T DType, B Backend](shape Shape, b B) *Tensor[T, B] {
	raw, err := NewRaw(shape, inferDataType[T](), b.Device())
	if err != nil {
		panic(err)
	}
	return New[T, B](raw, b)
}

// ZerosOn creates a zero tensor on an explicit device.
// The backend is kept for later operations on the result.
func ZerosOn[T DType, B Backend](shape Shape, device Device, b B) *Tensor[T, B] {
	raw, err := NewRaw(shape, inferDataType[T](), device)
	if err != nil {
		panic(err)
	}
	return New[T, B](raw, b)
}

// Ones creates a tensor filled with ones.
func Ones[T DType, B Backend](shape Shape, b B) *Tensor[T, B] {
	return Full[T](shape, T(1), b)
}

// Full creates a tensor filled with a specific value.
//
// Example:
//
//	t := tensor.Full[float32](Shape{3, 3}, -2, backend)
func Full[T DType, B Backend](shape Shape, value T, b B) *Tensor[T, B] {
	t := Zeros[T, B](shape, b)
	data := t.Data()
	for i := range data {
		data[i] = value
	}
	return t
}

// Randn creates a tensor with values drawn from N(mean, std²).
// Note: Uses math/rand (not crypto/rand) - appropriate for weight initialization.
func Randn[T DType, B Backend](shape Shape, mean, std float64, b B) *Tensor[T, B] {
	t := Zeros[T, B](shape, b)
	data := t.Data()
	for i := range data {
		data[i] = T(mean + std*rand.NormFloat64()) //nolint:gosec // G404: not security-critical
	}
	return t
}

// Uniform creates a tensor with values drawn uniformly from [low, high).
func Uniform[T DType, B Backend](shape Shape, low, high float64, b B) *Tensor[T, B] {
	t := Zeros[T, B](shape, b)
	data := t.Data()
	for i := range data {
		data[i] = T(low + (high-low)*rand.Float64()) //nolint:gosec // G404: not security-critical
	}
	return t
}
