package nn

import (
	"github.com/born-ml/sparseconv/internal/tensor"
)

// Parameter represents a trainable parameter in a neural network.
//
// The tensor identity never changes over the parameter's lifetime: updates
// (optimizer steps, pruning, rewinding, loading) write into its buffer, so
// gradients looked up by RawTensor stay valid.
//
// Example:
//
//	weight := nn.NewParameter("weight", weightTensor)
//	w := weight.Tensor()
//	grad := weight.Grad()
type Parameter[B tensor.Backend] struct {
	name   string                     // Parameter name (e.g., "weight", "mask_weight")
	tensor *tensor.Tensor[float32, B] // The parameter tensor
	grad   *tensor.Tensor[float32, B] // Gradient tensor (set after a backward pass)
}

// NewParameter creates a new trainable parameter.
func NewParameter[B tensor.Backend](name string, t *tensor.Tensor[float32, B]) *Parameter[B] {
	return &Parameter[B]{
		name:   name,
		tensor: t,
	}
}

// Name returns the parameter name.
func (p *Parameter[B]) Name() string {
	return p.name
}

// Tensor returns the parameter tensor.
func (p *Parameter[B]) Tensor() *tensor.Tensor[float32, B] {
	return p.tensor
}

// Grad returns the gradient tensor, or nil before a backward pass.
func (p *Parameter[B]) Grad() *tensor.Tensor[float32, B] {
	return p.grad
}

// SetGrad sets the gradient tensor.
func (p *Parameter[B]) SetGrad(grad *tensor.Tensor[float32, B]) {
	p.grad = grad
}

// ZeroGrad clears the gradient tensor.
func (p *Parameter[B]) ZeroGrad() {
	p.grad = nil
}

// CollectGrads stores the gradient of every parameter found in grads.
// Parameters absent from grads get a nil gradient.
func CollectGrads[B tensor.Backend](params []*Parameter[B], grads map[*tensor.RawTensor]*tensor.RawTensor) {
	for _, p := range params {
		raw, ok := grads[p.tensor.Raw()]
		if !ok {
			p.grad = nil
			continue
		}
		p.grad = tensor.New[float32, B](raw, p.tensor.Backend())
	}
}
