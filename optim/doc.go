// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package optim provides optimization algorithms for training mask logits
// and convolution weights.
//
// # Overview
//
// This package contains:
//   - SGD: Stochastic Gradient Descent with momentum
//   - Optimizer interface for custom optimizers
//
// # Basic Usage
//
//	backend := autodiff.New(cpu.New())
//	layer, _ := nn.NewSoftMaskedConv2D(3, 8, 3, 1, 1, nn.DefaultMaskInitialValue, backend)
//	optimizer := optim.NewSGD(layer.Parameters(), optim.SGDConfig{LR: 0.1}, backend)
//
//	for round := range rounds {
//	    for step := range steps {
//	        backend.Tape().Clear()
//	        backend.Tape().StartRecording()
//	        out, _ := layer.ForwardMasked(x, temperature, false)
//	        grads := autodiff.Backward(out, backend)
//	        optimizer.Step(grads)
//	    }
//	    layer.Prune(temperature)
//	}
//
// Parameters are updated in place, so modules that hold them stay valid.
package optim
