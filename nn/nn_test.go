// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package nn_test

import (
	"errors"
	"testing"

	"github.com/born-ml/sparseconv/autodiff"
	"github.com/born-ml/sparseconv/backend/cpu"
	"github.com/born-ml/sparseconv/nn"
	"github.com/born-ml/sparseconv/tensor"
)

// TestModuleInterface verifies that concrete types implement Module interface.
func TestModuleInterface(t *testing.T) {
	backend := cpu.New()

	masked, err := nn.NewSoftMaskedConv2D(2, 3, 3, 1, 1, nn.DefaultMaskInitialValue, backend)
	if err != nil {
		t.Fatalf("NewSoftMaskedConv2D failed: %v", err)
	}
	zero, err := nn.NewZeroConv[*cpu.Backend](3, nn.Square(3), nn.Square(1), nn.Square(1))
	if err != nil {
		t.Fatalf("NewZeroConv failed: %v", err)
	}

	tests := []struct {
		name   string
		module nn.Module[*cpu.Backend]
	}{
		{name: "Conv2D", module: nn.NewConv2D(2, 3, 3, 3, 1, 1, true, backend)},
		{name: "SoftMaskedConv2D", module: masked},
		{name: "ZeroConv", module: zero},
		{name: "Sequential", module: nn.NewSequential[*cpu.Backend](masked)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := tensor.Randn[float32](tensor.Shape{1, 2, 5, 5}, 0, 1, backend)
			output := tt.module.Forward(input)

			if !output.Shape().Equal(tensor.Shape{1, 3, 5, 5}) {
				t.Errorf("Forward shape = %v, want [1 3 5 5]", output.Shape())
			}
			if tt.module.StateDict() == nil {
				t.Error("StateDict() returned nil, expected non-nil map")
			}
		})
	}
}

// TestMaskPolicy verifies the exported mask helpers.
func TestMaskPolicy(t *testing.T) {
	backend := cpu.New()
	logits, err := tensor.FromSlice([]float32{-2, 3, -4}, tensor.Shape{3}, backend)
	if err != nil {
		t.Fatalf("FromSlice failed: %v", err)
	}

	scale := nn.MaskScaling(-2)
	hard := nn.ComputeMask(logits, 1, true, -2).Data()
	want := []float32{0, scale, 0}
	for i := range want {
		if hard[i] != want[i] {
			t.Errorf("hard mask[%d] = %v, want %v", i, hard[i], want[i])
		}
	}

	next := nn.NextLogits(logits, 2, -2).Data()
	wantNext := []float32{-4, -2, -8}
	for i := range wantNext {
		if next[i] != wantNext[i] {
			t.Errorf("NextLogits[%d] = %v, want %v", i, next[i], wantNext[i])
		}
	}
}

// TestDecompose verifies that a decomposed hard-masked layer reproduces the
// ticket forward pass.
func TestDecompose(t *testing.T) {
	backend := cpu.New()
	layer, err := nn.NewSoftMaskedConv2D(2, 4, 3, 1, 1, nn.DefaultMaskInitialValue, backend)
	if err != nil {
		t.Fatalf("NewSoftMaskedConv2D failed: %v", err)
	}

	if _, err := nn.Decompose[*cpu.Backend](layer); !errors.Is(err, nn.ErrNoStoredMask) {
		t.Errorf("Decompose without stored mask: err = %v, want ErrNoStoredMask", err)
	}

	// Keep output channels 1 and 2.
	logits := layer.MaskWeight().Tensor()
	per := logits.NumElements() / 4
	data := logits.Data()
	for i := per; i < 3*per; i++ {
		data[i] = 1
	}

	sparse, err := nn.Decompose[*cpu.Backend](layer, nn.WithMaskSource(nn.RecomputeHardMask))
	if err != nil {
		t.Fatalf("Decompose failed: %v", err)
	}

	runs := sparse.Runs()
	wantRuns := []nn.ChannelRun{{Start: 0, End: 1}, {Start: 1, End: 3, Active: true}, {Start: 3, End: 4}}
	if len(runs) != len(wantRuns) {
		t.Fatalf("Runs() = %v, want %v", runs, wantRuns)
	}
	for i := range wantRuns {
		if runs[i] != wantRuns[i] {
			t.Errorf("Runs()[%d] = %v, want %v", i, runs[i], wantRuns[i])
		}
	}

	x := tensor.Randn[float32](tensor.Shape{1, 2, 6, 6}, 0, 1, backend)
	ticket, err := layer.ForwardMasked(x, 1, true)
	if err != nil {
		t.Fatalf("ForwardMasked failed: %v", err)
	}
	want := ticket.Data()
	got := sparse.Forward(x).Data()
	for i := range want {
		if diff := want[i] - got[i]; diff > 1e-4 || diff < -1e-4 {
			t.Fatalf("Forward[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

// TestGradients verifies that mask logits receive gradients through the
// public autodiff API.
func TestGradients(t *testing.T) {
	backend := autodiff.New(cpu.New())
	layer, err := nn.NewSoftMaskedConv2D(1, 2, 3, 1, 1, nn.DefaultMaskInitialValue, backend)
	if err != nil {
		t.Fatalf("NewSoftMaskedConv2D failed: %v", err)
	}

	x := tensor.Randn[float32](tensor.Shape{1, 1, 4, 4}, 0, 1, backend)
	backend.Tape().StartRecording()
	out, err := layer.ForwardMasked(x, 1, false)
	if err != nil {
		t.Fatalf("ForwardMasked failed: %v", err)
	}
	grads := autodiff.Backward(out, backend)
	nn.CollectGrads(layer.Parameters(), grads)

	if layer.MaskWeight().Grad() == nil {
		t.Error("mask logits have no gradient")
	}
	if layer.Weight().Grad() == nil {
		t.Error("weight has no gradient")
	}
}
