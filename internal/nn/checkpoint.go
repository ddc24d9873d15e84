package nn

import (
	"fmt"
	"strconv"

	"github.com/born-ml/sparseconv/internal/serialization"
	"github.com/born-ml/sparseconv/internal/tensor"
)

// Metadata keys written by SaveState.
const (
	MetaModule = "module" // String() of the saved module
	MetaFormat = "format" // state layout version
)

// StateFormat is the state layout version written by SaveState.
const StateFormat = 1

// SaveState writes the module's state dict to a SafeTensors file.
//
// extra is merged into the file metadata; the module description and
// format version are always recorded.
//
// Example:
//
//	layer, _ := nn.NewSoftMaskedConv2D[B](3, 8, 3, 1, 1, nn.DefaultMaskInitialValue, backend)
//	err := nn.SaveState("layer.safetensors", layer, map[string]string{"temperature": "1"})
func SaveState[B tensor.Backend](path string, m Module[B], extra map[string]string) error {
	meta := make(map[string]string, len(extra)+2)
	for k, v := range extra {
		meta[k] = v
	}
	if s, ok := m.(fmt.Stringer); ok {
		meta[MetaModule] = s.String()
	}
	meta[MetaFormat] = strconv.Itoa(StateFormat)

	if err := serialization.WriteFile(path, m.StateDict(), meta); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}

// LoadState reads a SafeTensors file written by SaveState into m and
// returns the file metadata.
//
// The module must already have the saved architecture; every tensor is
// copied into the existing parameters.
func LoadState[B tensor.Backend](path string, m Module[B]) (map[string]string, error) {
	f, err := serialization.ReadFile(path, tensor.CPU)
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}
	if err := m.LoadStateDict(f.Tensors); err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}
	return f.Metadata, nil
}

// loadTensor copies stateDict[name] into dst in place.
func loadTensor[B tensor.Backend](stateDict map[string]*tensor.RawTensor, name string, dst *tensor.Tensor[float32, B]) error {
	raw, ok := stateDict[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrMissingTensor, name)
	}
	if err := dst.Raw().CopyFrom(raw); err != nil {
		return fmt.Errorf("%s: %w: %w", name, ErrInvalidShape, err)
	}
	return nil
}
