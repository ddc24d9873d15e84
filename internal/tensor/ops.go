package tensor

// Add performs element-wise addition with broadcasting.
//
// Example:
//
//	a := tensor.Ones[float32](Shape{3, 1}, backend)
//	b := tensor.Ones[float32](Shape{3, 5}, backend)
//	c := a.Add(b) // Shape: [3, 5]
func (t *Tensor[T, B]) Add(other *Tensor[T, B]) *Tensor[T, B] {
	return New[T, B](t.backend.Add(t.raw, other.raw), t.backend)
}

// Sub performs element-wise subtraction with broadcasting.
func (t *Tensor[T, B]) Sub(other *Tensor[T, B]) *Tensor[T, B] {
	return New[T, B](t.backend.Sub(t.raw, other.raw), t.backend)
}

// Mul performs element-wise multiplication with broadcasting.
func (t *Tensor[T, B]) Mul(other *Tensor[T, B]) *Tensor[T, B] {
	return New[T, B](t.backend.Mul(t.raw, other.raw), t.backend)
}

// MulScalar multiplies every element by scalar.
func (t *Tensor[T, B]) MulScalar(scalar T) *Tensor[T, B] {
	return New[T, B](t.backend.MulScalar(t.raw, float64(scalar)), t.backend)
}

// AddScalar adds scalar to every element.
func (t *Tensor[T, B]) AddScalar(scalar T) *Tensor[T, B] {
	return New[T, B](t.backend.AddScalar(t.raw, float64(scalar)), t.backend)
}

// ClampMax returns min(t, maxVal) element-wise.
func (t *Tensor[T, B]) ClampMax(maxVal T) *Tensor[T, B] {
	return New[T, B](t.backend.ClampMax(t.raw, float64(maxVal)), t.backend)
}

// Sigmoid applies σ(x) = 1 / (1 + exp(-x)) element-wise.
func (t *Tensor[T, B]) Sigmoid() *Tensor[T, B] {
	return New[T, B](t.backend.Sigmoid(t.raw), t.backend)
}

// Step returns 1 where t > 0 and 0 elsewhere.
// The result carries no gradient.
func (t *Tensor[T, B]) Step() *Tensor[T, B] {
	return New[T, B](t.backend.Step(t.raw), t.backend)
}

// Abs returns |t| element-wise.
func (t *Tensor[T, B]) Abs() *Tensor[T, B] {
	return New[T, B](t.backend.Abs(t.raw), t.backend)
}

// SumDim sums along dim, optionally keeping it as a size-1 dimension.
func (t *Tensor[T, B]) SumDim(dim int, keepDim bool) *Tensor[T, B] {
	return New[T, B](t.backend.SumDim(t.raw, dim, keepDim), t.backend)
}

// Reshape returns a tensor with the same data but different shape.
// The new shape must have the same number of elements.
func (t *Tensor[T, B]) Reshape(newShape ...int) *Tensor[T, B] {
	return New[T, B](t.backend.Reshape(t.raw, Shape(newShape)), t.backend)
}

// Narrow returns the slice [start, start+length) of dimension dim.
//
// Example:
//
//	w := tensor.Zeros[float32](Shape{8, 3, 3, 3}, backend)
//	rows := w.Narrow(0, 2, 4) // Shape: [4, 3, 3, 3]
func (t *Tensor[T, B]) Narrow(dim, start, length int) *Tensor[T, B] {
	return New[T, B](t.backend.Narrow(t.raw, dim, start, length), t.backend)
}

// Conv2D convolves t ([N, C_in, H, W]) with kernel ([C_out, C_in/groups, K_h, K_w]).
func (t *Tensor[T, B]) Conv2D(kernel *Tensor[T, B], cfg Conv2DConfig) *Tensor[T, B] {
	return New[T, B](t.backend.Conv2D(t.raw, kernel.raw, cfg), t.backend)
}

// Cat concatenates tensors along dim. All tensors must share the backend of
// the first one and agree on every other dimension.
func Cat[T DType, B Backend](tensors []*Tensor[T, B], dim int) *Tensor[T, B] {
	if len(tensors) == 0 {
		panic("cat: no tensors")
	}
	raws := make([]*RawTensor, len(tensors))
	for i, t := range tensors {
		raws[i] = t.raw
	}
	b := tensors[0].backend
	return New[T, B](b.Cat(raws, dim), b)
}
