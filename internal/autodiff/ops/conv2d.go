package ops

import "github.com/born-ml/sparseconv/internal/tensor"

// Conv2DOp represents a grouped 2D convolution.
//
// Forward:
//
//	output[n, oc, h, w] = sum over the group's input channels and kernel
//	window of input[n, ic, h*stride+kh-pad, w*stride+kw-pad] * kernel[oc, ic', kh, kw]
//
// Backward:
//   - input gradient: gradient scattered back through the kernel
//   - kernel gradient: correlation of input with the output gradient
type Conv2DOp struct {
	binary
	cfg tensor.Conv2DConfig
}

// NewConv2DOp creates a new Conv2DOp.
func NewConv2DOp(input, kernel, output *tensor.RawTensor, cfg tensor.Conv2DConfig) *Conv2DOp {
	return &Conv2DOp{binary: binary{a: input, b: kernel, output: output}, cfg: cfg}
}

// Backward computes gradients for input and kernel.
func (op *Conv2DOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	return []*tensor.RawTensor{
		backend.Conv2DInputBackward(op.a, op.b, outputGrad, op.cfg),
		backend.Conv2DKernelBackward(op.a, op.b, outputGrad, op.cfg),
	}
}
