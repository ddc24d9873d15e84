package optim

import (
	"fmt"

	"github.com/born-ml/sparseconv/internal/nn"
	"github.com/born-ml/sparseconv/internal/tensor"
)

// SGD implements Stochastic Gradient Descent optimizer with optional momentum.
//
// Update rule without momentum:
//
//	param = param - lr * gradient
//
// Update rule with momentum:
//
//	velocity = momentum * velocity + gradient
//	param = param - lr * velocity
//
// Parameters are updated in place, so modules that hold them (and any
// gradient maps keyed by their RawTensor) stay valid across steps.
type SGD[B tensor.Backend] struct {
	params     []*nn.Parameter[B]
	lr         float32
	momentum   float32
	velocities map[*nn.Parameter[B]]*tensor.Tensor[float32, B]
	backend    B
}

// SGDConfig holds configuration for SGD optimizer.
type SGDConfig struct {
	LR       float32 // Learning rate (default: 0.01)
	Momentum float32 // Momentum factor (default: 0.0, range: [0, 1))
}

// NewSGD creates a new SGD optimizer.
//
// Example:
//
//	sgd := optim.NewSGD(layer.Parameters(), optim.SGDConfig{
//	    LR:       0.01,
//	    Momentum: 0.9,
//	}, backend)
func NewSGD[B tensor.Backend](params []*nn.Parameter[B], config SGDConfig, backend B) *SGD[B] {
	if config.LR == 0 {
		config.LR = 0.01
	}

	return &SGD[B]{
		params:     params,
		lr:         config.LR,
		momentum:   config.Momentum,
		velocities: make(map[*nn.Parameter[B]]*tensor.Tensor[float32, B]),
		backend:    backend,
	}
}

// Step performs a single optimization step.
//
// Parameters with no gradient (not in computational graph) are skipped.
func (s *SGD[B]) Step(grads map[*tensor.RawTensor]*tensor.RawTensor) {
	for _, param := range s.params {
		grad := getGradient(param, grads)
		if grad == nil {
			continue
		}

		update := tensor.New[float32, B](grad, s.backend)
		if s.momentum != 0 {
			update = s.accumulate(param, update)
		}

		// param -= lr * update
		updated := param.Tensor().Detach().Sub(update.MulScalar(s.lr))
		if err := param.Tensor().CopyFrom(updated); err != nil {
			panic(fmt.Sprintf("sgd: parameter %s: %v", param.Name(), err))
		}
	}
}

// accumulate updates the velocity of param and returns it.
func (s *SGD[B]) accumulate(param *nn.Parameter[B], grad *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	velocity, exists := s.velocities[param]
	if !exists {
		velocity = tensor.Zeros[float32](param.Tensor().Shape(), s.backend)
		s.velocities[param] = velocity
	}

	// velocity = momentum * velocity + grad
	next := velocity.MulScalar(s.momentum).Add(grad)
	if err := velocity.CopyFrom(next); err != nil {
		panic(fmt.Sprintf("sgd: velocity %s: %v", param.Name(), err))
	}
	return velocity
}

// ZeroGrad clears gradients for all parameters.
func (s *SGD[B]) ZeroGrad() {
	for _, param := range s.params {
		param.ZeroGrad()
	}
}

// GetLR returns the current learning rate.
func (s *SGD[B]) GetLR() float32 {
	return s.lr
}

// SetLR updates the learning rate.
func (s *SGD[B]) SetLR(lr float32) {
	s.lr = lr
}

// StateDict returns the optimizer state for serialization.
//
// State keys: "velocity.{param_index}" -> velocity tensor. Without momentum
// the map is empty.
func (s *SGD[B]) StateDict() map[string]*tensor.RawTensor {
	stateDict := make(map[string]*tensor.RawTensor)
	if s.momentum == 0 {
		return stateDict
	}

	for i, param := range s.params {
		velocity, exists := s.velocities[param]
		if !exists {
			continue // not stepped yet
		}
		stateDict[fmt.Sprintf("velocity.%d", i)] = velocity.Raw()
	}
	return stateDict
}

// LoadStateDict restores velocity buffers. Returns an error if a velocity
// shape does not match its parameter.
func (s *SGD[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	if s.momentum == 0 {
		return nil
	}

	s.velocities = make(map[*nn.Parameter[B]]*tensor.Tensor[float32, B])
	for i, param := range s.params {
		velocityRaw, exists := stateDict[fmt.Sprintf("velocity.%d", i)]
		if !exists {
			continue
		}
		if !velocityRaw.Shape().Equal(param.Tensor().Shape()) {
			return fmt.Errorf("velocity shape mismatch for parameter %d: expected %v, got %v",
				i, param.Tensor().Shape(), velocityRaw.Shape())
		}
		s.velocities[param] = tensor.New[float32, B](velocityRaw.Clone(), s.backend)
	}
	return nil
}
