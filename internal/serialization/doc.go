// Package serialization reads and writes tensors in the SafeTensors format.
//
// File layout:
//
//	[8 bytes: header_size (uint64 LE)]
//	[header_size bytes: JSON header]
//	[tensor data: raw bytes, tensors in alphabetical order]
//
// The JSON header maps each tensor name to its dtype, shape and data
// offsets, plus an optional "__metadata__" string map. Writers add a
// SHA-256 of the data section under the "checksum" metadata key; readers
// verify it when present.
//
// Example usage:
//
//	err := serialization.WriteFile("layer.safetensors", module.StateDict(), map[string]string{
//	    "kind": "soft_masked_conv2d",
//	})
//
//	f, err := serialization.ReadFile("layer.safetensors", tensor.CPU)
//	err = module.LoadStateDict(f.Tensors)
package serialization
