package nn

import (
	"fmt"
	"strings"

	"github.com/born-ml/sparseconv/internal/tensor"
)

// Sequential is a container module that chains multiple modules together.
//
// Each module's output becomes the next module's input.
//
// Example:
//
//	sparse, _ := nn.Decompose[B](conv)
//	model := nn.NewSequential[B](sparse, nn.NewConv2D[B](8, 4, 1, 1, 1, 0, false, backend))
//	output := model.Forward(input)
type Sequential[B tensor.Backend] struct {
	modules []Module[B]
}

// NewSequential creates a new Sequential container.
func NewSequential[B tensor.Backend](modules ...Module[B]) *Sequential[B] {
	return &Sequential[B]{
		modules: modules,
	}
}

// Forward applies all modules in sequence.
func (s *Sequential[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	output := input
	for _, module := range s.modules {
		output = module.Forward(output)
	}
	return output
}

// Parameters returns all trainable parameters from all modules.
func (s *Sequential[B]) Parameters() []*Parameter[B] {
	var params []*Parameter[B]
	for _, module := range s.modules {
		params = append(params, module.Parameters()...)
	}
	return params
}

// Add appends a module to the sequence.
func (s *Sequential[B]) Add(module Module[B]) {
	s.modules = append(s.modules, module)
}

// Len returns the number of modules in the sequence.
func (s *Sequential[B]) Len() int {
	return len(s.modules)
}

// Module returns the module at the given index.
//
// Panics if index is out of bounds.
func (s *Sequential[B]) Module(index int) Module[B] {
	if index < 0 || index >= len(s.modules) {
		panic("Sequential.Module: index out of bounds")
	}
	return s.modules[index]
}

// Replace swaps the module at index. It is how a pruned layer is exchanged
// for its decomposition.
func (s *Sequential[B]) Replace(index int, module Module[B]) Module[B] {
	old := s.Module(index)
	s.modules[index] = module
	return old
}

// StateDict returns parameters prefixed with their module index
// ("0.weight", "1.conv1.bias", ...).
func (s *Sequential[B]) StateDict() map[string]*tensor.RawTensor {
	stateDict := make(map[string]*tensor.RawTensor)
	for i, module := range s.modules {
		for name, raw := range module.StateDict() {
			stateDict[fmt.Sprintf("%d.%s", i, name)] = raw
		}
	}
	return stateDict
}

// LoadStateDict loads index-prefixed parameters into each module.
// Modules with no matching entries are skipped.
func (s *Sequential[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	for i, module := range s.modules {
		prefix := fmt.Sprintf("%d.", i)
		moduleStateDict := make(map[string]*tensor.RawTensor)
		for key, raw := range stateDict {
			if name, ok := strings.CutPrefix(key, prefix); ok {
				moduleStateDict[name] = raw
			}
		}

		if len(moduleStateDict) > 0 {
			if err := module.LoadStateDict(moduleStateDict); err != nil {
				return fmt.Errorf("failed to load module %d: %w", i, err)
			}
		}
	}
	return nil
}

// String lists the contained modules.
func (s *Sequential[B]) String() string {
	var sb strings.Builder
	sb.WriteString("Sequential(\n")
	for i, module := range s.modules {
		desc := "Module"
		if str, ok := module.(fmt.Stringer); ok {
			desc = str.String()
		}
		fmt.Fprintf(&sb, "  (%d): %s\n", i, strings.ReplaceAll(desc, "\n", "\n  "))
	}
	sb.WriteString(")")
	return sb.String()
}
