// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package nn provides the soft-masked convolution, its mask policy and the
// sparse decomposer.
//
// # Overview
//
// This package contains:
//   - Layers: Conv2D, SoftMaskedConv2D, ZeroConv, SparseConv
//   - Mask policy: ComputeMask, NextLogits, MaskScaling
//   - Decomposition: Decompose, ChannelRuns, ChannelActivity
//   - Utilities: Sequential, Module interface, Parameter, SaveState, LoadState
//
// # Training a Mask
//
//	backend := autodiff.New(cpu.New())
//	layer, err := nn.NewSoftMaskedConv2D(3, 8, 3, 1, 1, nn.DefaultMaskInitialValue, backend)
//	if err != nil {
//	    return err
//	}
//
//	out, err := layer.ForwardMasked(x, temperature, false)
//	// ... loss, backward, optimizer step ...
//
//	layer.Prune(temperature) // at the end of a round
//
// # Lottery Tickets
//
// Checkpoint snapshots the weights; RewindWeights restores them. Forward
// with ticket=true uses the hard mask, which keeps the weights whose mask
// logit is positive.
//
// # Decomposition
//
// Decompose splits a trained convolution into contiguous runs of active
// and all-zero output channels. Active runs become smaller convolutions,
// zero runs become ZeroConv placeholders that produce zeros of the right
// shape without touching the input:
//
//	sparse, err := nn.Decompose(layer, nn.WithMaskSource(nn.RecomputeHardMask))
//	y := sparse.Forward(x) // same values as the ticket forward pass
//
// A decomposed layer can replace the original inside a Sequential:
//
//	model.Replace(0, sparse)
package nn
