package tensor

// Backend defines the interface that all compute backends must implement.
// Backends handle the actual computation for tensor operations.
//
// Implementations:
//   - CPU: pure Go kernels (internal/backend/cpu)
//   - Autodiff: decorator recording operations on a gradient tape (internal/autodiff)
//
// Every operation returns a freshly allocated RawTensor; inputs are never
// modified.
type Backend interface {
	// Element-wise binary operations with NumPy-style broadcasting
	Add(a, b *RawTensor) *RawTensor
	Sub(a, b *RawTensor) *RawTensor
	Mul(a, b *RawTensor) *RawTensor

	// Scalar operations (element-wise with scalar)
	MulScalar(x *RawTensor, scalar float64) *RawTensor
	AddScalar(x *RawTensor, scalar float64) *RawTensor
	ClampMax(x *RawTensor, maxVal float64) *RawTensor // min(x, maxVal)

	// Element-wise functions
	Sigmoid(x *RawTensor) *RawTensor
	Step(x *RawTensor) *RawTensor // 1 where x > 0, else 0
	Abs(x *RawTensor) *RawTensor

	// Reduction
	SumDim(x *RawTensor, dim int, keepDim bool) *RawTensor

	// Shape and manipulation
	Reshape(x *RawTensor, newShape Shape) *RawTensor
	Cat(tensors []*RawTensor, dim int) *RawTensor
	Narrow(x *RawTensor, dim, start, length int) *RawTensor // x[..., start:start+length, ...]

	// Convolution
	//
	// Input:  [N, C_in, H, W]
	// Kernel: [C_out, C_in/groups, K_h, K_w]
	// Output: [N, C_out, H_out, W_out]
	Conv2D(input, kernel *RawTensor, cfg Conv2DConfig) *RawTensor
	Conv2DInputBackward(input, kernel, grad *RawTensor, cfg Conv2DConfig) *RawTensor
	Conv2DKernelBackward(input, kernel, grad *RawTensor, cfg Conv2DConfig) *RawTensor

	// Metadata
	Name() string
	Device() Device
}
