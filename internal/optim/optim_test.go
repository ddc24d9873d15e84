package optim_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/sparseconv/internal/autodiff"
	"github.com/born-ml/sparseconv/internal/backend/cpu"
	"github.com/born-ml/sparseconv/internal/nn"
	"github.com/born-ml/sparseconv/internal/optim"
	"github.com/born-ml/sparseconv/internal/tensor"
)

type Backend = *autodiff.AutodiffBackend[*cpu.CPUBackend]

func scalarParam(t *testing.T, backend Backend, name string, v float32) *nn.Parameter[Backend] {
	t.Helper()
	x, err := tensor.FromSlice([]float32{v}, tensor.Shape{1}, backend)
	require.NoError(t, err)
	return nn.NewParameter(name, x)
}

func gradOf(t *testing.T, param *nn.Parameter[Backend], v float32) map[*tensor.RawTensor]*tensor.RawTensor {
	t.Helper()
	grad, err := tensor.NewRaw(tensor.Shape{1}, tensor.Float32, tensor.CPU)
	require.NoError(t, err)
	grad.AsFloat32()[0] = v
	return map[*tensor.RawTensor]*tensor.RawTensor{param.Tensor().Raw(): grad}
}

func TestSGD_SimpleUpdate(t *testing.T) {
	backend := autodiff.New(cpu.New())
	param := scalarParam(t, backend, "x", 2)
	raw := param.Tensor().Raw()

	sgd := optim.NewSGD([]*nn.Parameter[Backend]{param}, optim.SGDConfig{LR: 0.1}, backend)
	sgd.Step(gradOf(t, param, 1))

	assert.InDelta(t, 1.9, param.Tensor().Data()[0], 1e-6)
	assert.Same(t, raw, param.Tensor().Raw(), "update must be in place")
}

func TestSGD_WithMomentum(t *testing.T) {
	backend := autodiff.New(cpu.New())
	param := scalarParam(t, backend, "x", 1)
	sgd := optim.NewSGD([]*nn.Parameter[Backend]{param}, optim.SGDConfig{LR: 0.1, Momentum: 0.9}, backend)

	// v1 = 1, x = 1 - 0.1 = 0.9
	sgd.Step(gradOf(t, param, 1))
	assert.InDelta(t, 0.9, param.Tensor().Data()[0], 1e-6)

	// v2 = 0.9 + 1 = 1.9, x = 0.9 - 0.19 = 0.71
	sgd.Step(gradOf(t, param, 1))
	assert.InDelta(t, 0.71, param.Tensor().Data()[0], 1e-6)
}

func TestSGD_SkipsMissingGradients(t *testing.T) {
	backend := autodiff.New(cpu.New())
	a := scalarParam(t, backend, "a", 1)
	b := scalarParam(t, backend, "b", 5)
	sgd := optim.NewSGD([]*nn.Parameter[Backend]{a, b}, optim.SGDConfig{LR: 0.5}, backend)

	sgd.Step(gradOf(t, a, 2))

	assert.InDelta(t, 0.0, a.Tensor().Data()[0], 1e-6)
	assert.Equal(t, float32(5), b.Tensor().Data()[0])
}

func TestSGD_DefaultsAndLR(t *testing.T) {
	backend := autodiff.New(cpu.New())
	sgd := optim.NewSGD[Backend](nil, optim.SGDConfig{}, backend)
	assert.Equal(t, float32(0.01), sgd.GetLR())

	sgd.SetLR(0.2)
	assert.Equal(t, float32(0.2), sgd.GetLR())

	var _ optim.Optimizer = sgd
}

func TestSGD_ZeroGrad(t *testing.T) {
	backend := autodiff.New(cpu.New())
	param := scalarParam(t, backend, "x", 1)
	param.SetGrad(param.Tensor().Clone())

	sgd := optim.NewSGD([]*nn.Parameter[Backend]{param}, optim.SGDConfig{LR: 0.1}, backend)
	sgd.ZeroGrad()
	assert.Nil(t, param.Grad())
}

func TestSGD_StateDict(t *testing.T) {
	backend := autodiff.New(cpu.New())
	param := scalarParam(t, backend, "x", 1)
	sgd := optim.NewSGD([]*nn.Parameter[Backend]{param}, optim.SGDConfig{LR: 0.1, Momentum: 0.9}, backend)

	assert.Empty(t, sgd.StateDict(), "no velocity before the first step")
	sgd.Step(gradOf(t, param, 1))

	state := sgd.StateDict()
	require.Contains(t, state, "velocity.0")
	assert.Equal(t, []float32{1}, state["velocity.0"].AsFloat32())

	// Restored velocity continues the momentum sequence.
	restoredParam := scalarParam(t, backend, "x", 0.9)
	restored := optim.NewSGD([]*nn.Parameter[Backend]{restoredParam}, optim.SGDConfig{LR: 0.1, Momentum: 0.9}, backend)
	require.NoError(t, restored.LoadStateDict(state))
	restored.Step(gradOf(t, restoredParam, 1))
	assert.InDelta(t, 0.71, restoredParam.Tensor().Data()[0], 1e-6)

	bad, err := tensor.NewRaw(tensor.Shape{2}, tensor.Float32, tensor.CPU)
	require.NoError(t, err)
	assert.Error(t, restored.LoadStateDict(map[string]*tensor.RawTensor{"velocity.0": bad}))
}

func TestSGD_StateDictWithoutMomentum(t *testing.T) {
	backend := autodiff.New(cpu.New())
	param := scalarParam(t, backend, "x", 1)
	sgd := optim.NewSGD([]*nn.Parameter[Backend]{param}, optim.SGDConfig{LR: 0.1}, backend)
	sgd.Step(gradOf(t, param, 1))

	assert.Empty(t, sgd.StateDict())
	assert.NoError(t, sgd.LoadStateDict(nil))
}

// TestSGD_TrainsMaskLogits checks that a soft-mask training step moves both
// weight and mask logits.
func TestSGD_TrainsMaskLogits(t *testing.T) {
	backend := autodiff.New(cpu.New())
	layer, err := nn.NewSoftMaskedConv2D(1, 2, 1, 0, 1, nn.DefaultMaskInitialValue, backend)
	require.NoError(t, err)

	weightBefore := append([]float32(nil), layer.Weight().Tensor().Data()...)
	logitsBefore := append([]float32(nil), layer.MaskWeight().Tensor().Data()...)

	input, err := tensor.FromSlice([]float32{1, 2, 3, 4}, tensor.Shape{1, 1, 2, 2}, backend)
	require.NoError(t, err)

	backend.Tape().StartRecording()
	out, err := layer.ForwardMasked(input, 1, false)
	require.NoError(t, err)
	grads := autodiff.Backward(out, backend)
	backend.Tape().Clear()
	backend.Tape().StopRecording()

	sgd := optim.NewSGD(layer.Parameters(), optim.SGDConfig{LR: 0.1}, backend)
	sgd.Step(grads)

	assert.NotEqual(t, weightBefore, layer.Weight().Tensor().Data())
	assert.NotEqual(t, logitsBefore, layer.MaskWeight().Tensor().Data())
}
