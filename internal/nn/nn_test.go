package nn

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/born-ml/sparseconv/internal/autodiff"
	"github.com/born-ml/sparseconv/internal/backend/cpu"
	"github.com/born-ml/sparseconv/internal/tensor"
)

type Backend = *autodiff.AutodiffBackend[*cpu.CPUBackend]

func newBackend() Backend {
	return autodiff.New(cpu.New())
}

// ramp returns a tensor filled with start, start+step, ...
func ramp(t *testing.T, shape tensor.Shape, start, step float32, backend Backend) *tensor.Tensor[float32, Backend] {
	t.Helper()
	data := make([]float32, shape.NumElements())
	for i := range data {
		data[i] = start + float32(i)*step
	}
	x, err := tensor.FromSlice(data, shape, backend)
	require.NoError(t, err)
	return x
}

// zeroChannels clears the given output channels of a [out, ...] weight.
func zeroChannels(w *tensor.Tensor[float32, Backend], channels ...int) {
	rest := w.NumElements() / w.Shape()[0]
	data := w.Data()
	for _, c := range channels {
		clear(data[c*rest : (c+1)*rest])
	}
}

func requireClose(t *testing.T, want, got []float32, delta float64) {
	t.Helper()
	require.Len(t, got, len(want))
	for i := range want {
		require.InDelta(t, want[i], got[i], delta, "index %d", i)
	}
}
