package nn

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/sparseconv/internal/logger"
	"github.com/born-ml/sparseconv/internal/tensor"
)

func TestChannelRuns(t *testing.T) {
	tests := []struct {
		name     string
		activity []bool
		want     []ChannelRun
	}{
		{"empty", nil, nil},
		{"all active", []bool{true, true, true}, []ChannelRun{{0, 3, true}}},
		{"all zero", []bool{false, false}, []ChannelRun{{0, 2, false}}},
		{"alternating", []bool{false, true, false, true}, []ChannelRun{
			{0, 1, false}, {1, 2, true}, {2, 3, false}, {3, 4, true},
		}},
		{"blocks", []bool{true, true, false, false, false, true}, []ChannelRun{
			{0, 2, true}, {2, 5, false}, {5, 6, true},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runs := ChannelRuns(tt.activity)
			assert.Equal(t, tt.want, runs)

			// Runs partition the channels.
			next := 0
			for _, r := range runs {
				assert.Equal(t, next, r.Start)
				assert.Positive(t, r.Len())
				next = r.End
			}
			assert.Equal(t, len(tt.activity), next)
		})
	}
}

func TestChannelRun_String(t *testing.T) {
	assert.Equal(t, "[1, 3) active", ChannelRun{1, 3, true}.String())
	assert.Equal(t, "[0, 1) zero", ChannelRun{0, 1, false}.String())
}

func TestChannelActivity(t *testing.T) {
	backend := newBackend()
	w, err := tensor.FromSlice([]float32{
		0, 0, 0, 0, // channel 0
		1, -1, 0, 0, // channel 1: signed sum is zero
		0, 0, 0, 0, // channel 2
		0, 0, 0, -1e-3, // channel 3
	}, tensor.Shape{4, 1, 2, 2}, backend)
	require.NoError(t, err)

	assert.Equal(t, []bool{false, true, false, true}, ChannelActivity(w))
}

// TestDecompose_PlainConv zeroes channels {0, 2} of a 3->4 convolution and
// checks the layout and output of the decomposition.
func TestDecompose_PlainConv(t *testing.T) {
	backend := newBackend()
	conv := NewConv2D(3, 4, 3, 3, 1, 1, true, backend)
	zeroChannels(conv.Weight().Tensor(), 0, 2)
	copy(conv.Bias().Tensor().Data(), []float32{0, 0.5, 0, -0.25})

	sparse, err := Decompose[Backend](conv)
	require.NoError(t, err)

	assert.Equal(t, []ChannelRun{{0, 1, false}, {1, 2, true}, {2, 3, false}, {3, 4, true}}, sparse.Runs())
	tags := make([]string, 0, 4)
	for _, seg := range sparse.Segments() {
		tags = append(tags, seg.Tag())
	}
	assert.Equal(t, []string{"zero1", "conv1", "zero2", "conv2"}, tags)
	assert.Equal(t, 4, sparse.OutChannels())
	assert.Equal(t, 3, sparse.InChannels())
	assert.Equal(t, 2, sparse.ActiveChannels())

	active, ok := sparse.Segments()[1].(*ActiveSegment[Backend])
	require.True(t, ok)
	sub := active.Conv()
	assert.Equal(t, 1, sub.OutChannels())
	assert.Equal(t, 3, sub.InChannels())
	assert.Equal(t, Square(3), sub.Spec().Kernel)
	require.NotNil(t, sub.Bias())
	assert.Equal(t, []float32{0.5}, sub.Bias().Tensor().Data())
	assert.Equal(t, conv.Weight().Tensor().Data()[27:54], sub.Weight().Tensor().Data())

	_, ok = sparse.Segments()[0].(*ZeroSegment[Backend])
	assert.True(t, ok)

	input := ramp(t, tensor.Shape{2, 3, 6, 5}, -1, 0.01, backend)
	want := conv.Forward(input)
	got := sparse.Forward(input)
	assert.Equal(t, want.Shape(), got.Shape())
	requireClose(t, want.Data(), got.Data(), 1e-5)
}

func TestDecompose_DoesNotMutateSource(t *testing.T) {
	backend := newBackend()
	conv := NewConv2D(2, 3, 3, 3, 1, 0, true, backend)
	zeroChannels(conv.Weight().Tensor(), 1)
	before := append([]float32(nil), conv.Weight().Tensor().Data()...)

	sparse, err := Decompose[Backend](conv)
	require.NoError(t, err)
	assert.Equal(t, before, conv.Weight().Tensor().Data())

	// Sub-convolutions own their weights.
	for _, p := range sparse.Parameters() {
		clear(p.Tensor().Data())
	}
	assert.Equal(t, before, conv.Weight().Tensor().Data())
}

func TestDecompose_AllActiveAndAllZero(t *testing.T) {
	backend := newBackend()
	input := ramp(t, tensor.Shape{1, 2, 4, 4}, 0, 0.1, backend)

	conv := NewConv2D(2, 3, 3, 3, 2, 1, false, backend)
	sparse, err := Decompose[Backend](conv)
	require.NoError(t, err)
	require.Len(t, sparse.Segments(), 1)
	assert.Equal(t, "conv1", sparse.Segments()[0].Tag())
	requireClose(t, conv.Forward(input).Data(), sparse.Forward(input).Data(), 1e-5)

	zeroChannels(conv.Weight().Tensor(), 0, 1, 2)
	sparse, err = Decompose[Backend](conv)
	require.NoError(t, err)
	require.Len(t, sparse.Segments(), 1)
	assert.Equal(t, "zero1", sparse.Segments()[0].Tag())
	assert.Empty(t, sparse.Parameters())

	out := sparse.Forward(input)
	assert.Equal(t, tensor.Shape{1, 3, 2, 2}, out.Shape())
	for _, v := range out.Data() {
		assert.Zero(t, v)
	}
}

// TestDecompose_MaskedConv covers the 3->4 masked layer with output channels
// {0, 2} pruned by the hard mask.
func TestDecompose_MaskedConv(t *testing.T) {
	backend := newBackend()
	layer := newMasked(t, 3, 4, 3, 1, 1, backend)
	logits := layer.MaskWeight().Tensor().Data()
	for c := range 4 {
		if c%2 == 1 {
			for i := c * 27; i < (c+1)*27; i++ {
				logits[i] = 1
			}
		}
	}
	input := ramp(t, tensor.Shape{1, 3, 5, 5}, -0.5, 0.02, backend)

	want, err := layer.ForwardMasked(input, 1, true)
	require.NoError(t, err)

	sparse, err := Decompose[Backend](layer)
	require.NoError(t, err)
	assert.Equal(t, []ChannelRun{{0, 1, false}, {1, 2, true}, {2, 3, false}, {3, 4, true}}, sparse.Runs())

	for _, seg := range sparse.Segments() {
		if active, ok := seg.(*ActiveSegment[Backend]); ok {
			assert.Nil(t, active.Conv().Bias(), "masked sources have no bias")
			assert.Equal(t, 1, active.Conv().Groups())
		}
	}

	got := sparse.Forward(input)
	assert.Equal(t, tensor.Shape{1, 4, 5, 5}, got.Shape())
	requireClose(t, want.Data(), got.Data(), 1e-4)
}

func TestDecompose_MaskSource(t *testing.T) {
	backend := newBackend()
	layer := newMasked(t, 2, 3, 1, 0, 1, backend)
	copy(layer.MaskWeight().Tensor().Data()[2:4], []float32{3, 3}) // channel 1

	_, err := Decompose[Backend](layer)
	assert.ErrorIs(t, err, ErrNoStoredMask)

	sparse, err := Decompose[Backend](layer, WithMaskSource(RecomputeHardMask))
	require.NoError(t, err)
	assert.Equal(t, []ChannelRun{{0, 1, false}, {1, 2, true}, {2, 3, false}}, sparse.Runs())
	assert.Nil(t, layer.Mask(), "recomputing must not store a mask")

	// A stored soft mask keeps every channel.
	_, err = layer.MaterializeMask(1, false)
	require.NoError(t, err)
	sparse, err = Decompose[Backend](layer, WithMaskSource(StoredMask))
	require.NoError(t, err)
	assert.Equal(t, []ChannelRun{{0, 3, true}}, sparse.Runs())

	_, err = Decompose[Backend](layer, WithMaskSource(MaskSource(7)))
	assert.Error(t, err)
}

func TestParseMaskSource(t *testing.T) {
	for in, want := range map[string]MaskSource{
		"":               StoredMask,
		"stored":         StoredMask,
		"recompute-hard": RecomputeHardMask,
		"hard":           RecomputeHardMask,
	} {
		got, err := ParseMaskSource(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := ParseMaskSource("soft")
	assert.Error(t, err)
	assert.Equal(t, "recompute-hard", RecomputeHardMask.String())
	assert.Equal(t, "MaskSource(9)", MaskSource(9).String())
}

func newGrouped(t *testing.T, in, out, groups int, backend Backend) *Conv2D[Backend] {
	t.Helper()
	conv, err := NewConv2DFromSpec(Conv2DSpec{
		InChannels:  in,
		OutChannels: out,
		Kernel:      Square(3),
		Stride:      Square(1),
		Padding:     Square(1),
		Groups:      groups,
		Bias:        true,
	}, backend)
	require.NoError(t, err)
	return conv
}

func TestDecompose_Grouped(t *testing.T) {
	backend := newBackend()
	conv := newGrouped(t, 6, 6, 3, backend)
	zeroChannels(conv.Weight().Tensor(), 2, 3) // all of group 1
	copy(conv.Bias().Tensor().Data(), []float32{1, 2, 0, 0, 3, 4})

	sparse, err := Decompose[Backend](conv)
	require.NoError(t, err)
	require.Equal(t, []ChannelRun{{0, 2, true}, {2, 4, false}, {4, 6, true}}, sparse.Runs())

	last, ok := sparse.Segments()[2].(*ActiveSegment[Backend])
	require.True(t, ok)
	start, channels := last.InputWindow()
	assert.Equal(t, 4, start)
	assert.Equal(t, 2, channels)
	assert.Equal(t, 1, last.Conv().Groups())
	assert.Equal(t, []float32{3, 4}, last.Conv().Bias().Tensor().Data())

	input := ramp(t, tensor.Shape{2, 6, 4, 4}, 1, -0.01, backend)
	requireClose(t, conv.Forward(input).Data(), sparse.Forward(input).Data(), 1e-5)
}

func TestDecompose_GroupedMultiGroupRun(t *testing.T) {
	backend := newBackend()
	conv := newGrouped(t, 4, 8, 4, backend)
	zeroChannels(conv.Weight().Tensor(), 0, 1) // group 0
	clear(conv.Bias().Tensor().Data())

	sparse, err := Decompose[Backend](conv)
	require.NoError(t, err)
	require.Equal(t, []ChannelRun{{0, 2, false}, {2, 8, true}}, sparse.Runs())

	active, ok := sparse.Segments()[1].(*ActiveSegment[Backend])
	require.True(t, ok)
	assert.Equal(t, 3, active.Conv().Groups())
	assert.Equal(t, 3, active.Conv().InChannels())
	start, channels := active.InputWindow()
	assert.Equal(t, 1, start)
	assert.Equal(t, 3, channels)

	input := ramp(t, tensor.Shape{1, 4, 5, 3}, 0.3, 0.02, backend)
	requireClose(t, conv.Forward(input).Data(), sparse.Forward(input).Data(), 1e-5)

	// A run covering every group keeps the source grouping.
	full, err := Decompose[Backend](newGrouped(t, 4, 8, 4, backend))
	require.NoError(t, err)
	whole, ok := full.Segments()[0].(*ActiveSegment[Backend])
	require.True(t, ok)
	assert.Equal(t, 4, whole.Conv().Groups())
}

func TestDecompose_Depthwise(t *testing.T) {
	backend := newBackend()
	conv := newGrouped(t, 3, 3, 3, backend)
	zeroChannels(conv.Weight().Tensor(), 1)
	copy(conv.Bias().Tensor().Data(), []float32{0.1, 0, -0.1})

	sparse, err := Decompose[Backend](conv)
	require.NoError(t, err)
	assert.Equal(t, []ChannelRun{{0, 1, true}, {1, 2, false}, {2, 3, true}}, sparse.Runs())

	input := ramp(t, tensor.Shape{1, 3, 4, 4}, -0.2, 0.03, backend)
	requireClose(t, conv.Forward(input).Data(), sparse.Forward(input).Data(), 1e-5)
}

func TestDecompose_GroupBoundary(t *testing.T) {
	backend := newBackend()
	conv := newGrouped(t, 4, 4, 2, backend)
	zeroChannels(conv.Weight().Tensor(), 1) // half of group 0

	_, err := Decompose[Backend](conv)
	assert.ErrorIs(t, err, ErrGroupBoundary)
}

func TestDecompose_Errors(t *testing.T) {
	_, err := Decompose[Backend](&Conv2D[Backend]{})
	assert.ErrorIs(t, err, ErrEmptyConvolution)

	_, err = Decompose[Backend](&SoftMaskedConv2D[Backend]{})
	assert.ErrorIs(t, err, ErrEmptyConvolution)

	zero, err := NewZeroConv[Backend](2, Square(1), Square(0), Square(1))
	require.NoError(t, err)
	_, err = Decompose[Backend](zero)
	assert.ErrorIs(t, err, ErrUnsupportedSource)
}

func TestDecompose_Logging(t *testing.T) {
	backend := newBackend()
	conv := NewConv2D(2, 3, 1, 1, 1, 0, false, backend)
	zeroChannels(conv.Weight().Tensor(), 2)

	var buf bytes.Buffer
	_, err := Decompose[Backend](conv, WithLogger(logger.JSON(&buf, slog.LevelDebug)))
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, `"msg":"segment emitted"`)
	assert.Contains(t, out, `"tag":"zero1"`)
	assert.Contains(t, out, `"active_channels":2`)
}

func TestSparseConv_StateDict(t *testing.T) {
	backend := newBackend()
	conv := NewConv2D(2, 4, 3, 3, 1, 1, true, backend)
	zeroChannels(conv.Weight().Tensor(), 1)

	src, err := Decompose[Backend](conv)
	require.NoError(t, err)

	state := src.StateDict()
	keys := make([]string, 0, len(state))
	for k := range state {
		keys = append(keys, k)
	}
	assert.ElementsMatch(t, []string{"conv1.weight", "conv1.bias", "conv2.weight", "conv2.bias"}, keys)

	dst, err := Decompose[Backend](conv)
	require.NoError(t, err)
	for _, p := range dst.Parameters() {
		clear(p.Tensor().Data())
	}
	require.NoError(t, dst.LoadStateDict(state))

	input := ramp(t, tensor.Shape{1, 2, 3, 3}, 0, 0.1, backend)
	requireClose(t, src.Forward(input).Data(), dst.Forward(input).Data(), 1e-6)

	delete(state, "conv2.bias")
	err = dst.LoadStateDict(state)
	assert.ErrorIs(t, err, ErrMissingTensor)
	assert.Contains(t, err.Error(), "conv2")
}

func TestSparseConv_String(t *testing.T) {
	backend := newBackend()
	conv := NewConv2D(1, 2, 1, 1, 1, 0, false, backend)
	zeroChannels(conv.Weight().Tensor(), 0)

	sparse, err := Decompose[Backend](conv)
	require.NoError(t, err)
	assert.Equal(t, "SparseConv(\n"+
		"  (zero1): ZeroConv(channels=1, kernel_size=(1, 1), stride=(1, 1), padding=(0, 0))\n"+
		"  (conv1): Conv2D(in_channels=1, out_channels=1, kernel_size=(1, 1), stride=(1, 1), padding=(0, 0), groups=1, bias=false)\n"+
		")", sparse.String())
}
