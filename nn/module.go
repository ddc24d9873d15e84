// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package nn

import (
	"github.com/born-ml/sparseconv/internal/nn"
	"github.com/born-ml/sparseconv/tensor"
)

// Module is the base interface for all neural network components.
//
// Every NN module must implement:
//   - Forward: Compute output from input
//   - Parameters: Return all trainable parameters
//   - StateDict / LoadStateDict: Named tensors for persistence
//
// Type parameter B must satisfy the tensor.Backend interface.
type Module[B tensor.Backend] = nn.Module[B]

// Sequential chains modules, feeding each output into the next module.
type Sequential[B tensor.Backend] = nn.Sequential[B]

// NewSequential creates a Sequential from the given modules.
//
// Example:
//
//	model := nn.NewSequential[*cpu.Backend](masked, other)
func NewSequential[B tensor.Backend](modules ...Module[B]) *Sequential[B] {
	return nn.NewSequential(modules...)
}

// SaveState writes the state dict of m to a SafeTensors file. extra is
// stored in the file metadata next to the module description.
func SaveState[B tensor.Backend](path string, m Module[B], extra map[string]string) error {
	return nn.SaveState(path, m, extra)
}

// LoadState loads a SafeTensors file written by SaveState into m and
// returns the file metadata.
func LoadState[B tensor.Backend](path string, m Module[B]) (map[string]string, error) {
	return nn.LoadState(path, m)
}
