package cpu

import (
	"testing"

	"github.com/born-ml/sparseconv/internal/parallel"
	"github.com/born-ml/sparseconv/internal/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func raw32(t *testing.T, shape tensor.Shape, data []float32) *tensor.RawTensor {
	t.Helper()
	r, err := tensor.NewRaw(shape, tensor.Float32, tensor.CPU)
	require.NoError(t, err)
	copy(r.AsFloat32(), data)
	return r
}

func raw64(t *testing.T, shape tensor.Shape, data []float64) *tensor.RawTensor {
	t.Helper()
	r, err := tensor.NewRaw(shape, tensor.Float64, tensor.CPU)
	require.NoError(t, err)
	copy(r.AsFloat64(), data)
	return r
}

func TestCPUBackend_Metadata(t *testing.T) {
	b := New()
	assert.Equal(t, "CPU", b.Name())
	assert.Equal(t, tensor.CPU, b.Device())
}

func TestCPUBackend_BinaryBroadcast(t *testing.T) {
	b := New()
	x := raw32(t, tensor.Shape{2, 3}, []float32{1, 2, 3, 4, 5, 6})
	col := raw32(t, tensor.Shape{2, 1}, []float32{10, 20})
	row := raw32(t, tensor.Shape{3}, []float32{1, 0, -1})

	assert.Equal(t, []float32{11, 12, 13, 24, 25, 26}, b.Add(x, col).AsFloat32())
	assert.Equal(t, []float32{0, 2, 4, 3, 5, 7}, b.Sub(x, row).AsFloat32())
	assert.Equal(t, []float32{1, 0, -3, 4, 0, -6}, b.Mul(x, row).AsFloat32())
	assert.Equal(t, tensor.Shape{2, 3}, b.Mul(row, x).Shape())
}

func TestCPUBackend_BinaryIncompatible(t *testing.T) {
	b := New()
	x := raw32(t, tensor.Shape{2, 3}, make([]float32, 6))
	y := raw32(t, tensor.Shape{2, 4}, make([]float32, 8))
	assert.Panics(t, func() { b.Add(x, y) })
}

func TestCPUBackend_Unary(t *testing.T) {
	b := New()
	x := raw64(t, tensor.Shape{4}, []float64{-2, 0, 0.5, 3})

	assert.Equal(t, []float64{-4, 0, 1, 6}, b.MulScalar(x, 2).AsFloat64())
	assert.Equal(t, []float64{-1, 1, 1.5, 4}, b.AddScalar(x, 1).AsFloat64())
	assert.Equal(t, []float64{-2, 0, 0.5, 1}, b.ClampMax(x, 1).AsFloat64())
	assert.Equal(t, []float64{0, 0, 1, 1}, b.Step(x).AsFloat64())
	assert.Equal(t, []float64{2, 0, 0.5, 3}, b.Abs(x).AsFloat64())

	sig := b.Sigmoid(x).AsFloat64()
	assert.InDelta(t, 0.5, sig[1], 1e-12)
	assert.InDelta(t, 0.952574, sig[3], 1e-6)

	// Inputs are never modified.
	assert.Equal(t, []float64{-2, 0, 0.5, 3}, x.AsFloat64())
}

func TestCPUBackend_SumDim(t *testing.T) {
	b := New()
	x := raw32(t, tensor.Shape{2, 3}, []float32{1, 2, 3, 4, 5, 6})

	rows := b.SumDim(x, 1, false)
	assert.Equal(t, tensor.Shape{2}, rows.Shape())
	assert.Equal(t, []float32{6, 15}, rows.AsFloat32())

	cols := b.SumDim(x, 0, true)
	assert.Equal(t, tensor.Shape{1, 3}, cols.Shape())
	assert.Equal(t, []float32{5, 7, 9}, cols.AsFloat32())

	last := b.SumDim(x, -1, true)
	assert.Equal(t, tensor.Shape{2, 1}, last.Shape())

	assert.Panics(t, func() { b.SumDim(x, 2, false) })
}

func TestCPUBackend_ReshapeCopies(t *testing.T) {
	b := New()
	x := raw32(t, tensor.Shape{2, 3}, []float32{1, 2, 3, 4, 5, 6})

	y := b.Reshape(x, tensor.Shape{3, 2})
	assert.Equal(t, tensor.Shape{3, 2}, y.Shape())
	y.AsFloat32()[0] = 100
	assert.Equal(t, float32(1), x.AsFloat32()[0])

	assert.Panics(t, func() { b.Reshape(x, tensor.Shape{4, 2}) })
}

func TestCPUBackend_CatNarrow(t *testing.T) {
	b := New()
	a := raw32(t, tensor.Shape{2, 1, 2}, []float32{1, 2, 3, 4})
	c := raw32(t, tensor.Shape{2, 2, 2}, []float32{5, 6, 7, 8, 9, 10, 11, 12})

	cat := b.Cat([]*tensor.RawTensor{a, c}, 1)
	assert.Equal(t, tensor.Shape{2, 3, 2}, cat.Shape())
	assert.Equal(t, []float32{1, 2, 5, 6, 7, 8, 3, 4, 9, 10, 11, 12}, cat.AsFloat32())

	back := b.Narrow(cat, 1, 1, 2)
	assert.Equal(t, c.AsFloat32(), back.AsFloat32())
	first := b.Narrow(cat, 1, 0, 1)
	assert.Equal(t, a.AsFloat32(), first.AsFloat32())

	assert.Panics(t, func() { b.Narrow(cat, 1, 2, 2) })
	assert.Panics(t, func() { b.Cat(nil, 0) })
	assert.Panics(t, func() { b.Cat([]*tensor.RawTensor{a, c}, 0) })
}

func TestCPUBackend_Conv2D(t *testing.T) {
	b := New()

	// 1x1x3x3 input, 1x1x2x2 kernel of ones, no padding.
	input := raw32(t, tensor.Shape{1, 1, 3, 3}, []float32{1, 2, 3, 4, 5, 6, 7, 8, 9})
	kernel := raw32(t, tensor.Shape{1, 1, 2, 2}, []float32{1, 1, 1, 1})

	out := b.Conv2D(input, kernel, tensor.SquareConv(1, 0))
	assert.Equal(t, tensor.Shape{1, 1, 2, 2}, out.Shape())
	assert.Equal(t, []float32{12, 16, 24, 28}, out.AsFloat32())

	padded := b.Conv2D(input, kernel, tensor.SquareConv(1, 1))
	assert.Equal(t, tensor.Shape{1, 1, 4, 4}, padded.Shape())
	assert.Equal(t, float32(1), padded.AsFloat32()[0])
	assert.Equal(t, float32(9), padded.AsFloat32()[15])
}

func TestCPUBackend_Conv2DPerAxis(t *testing.T) {
	b := New()
	input := raw32(t, tensor.Shape{1, 1, 4, 5}, make([]float32, 20))
	kernel := raw32(t, tensor.Shape{2, 1, 3, 1}, make([]float32, 6))

	cfg := tensor.Conv2DConfig{Stride: [2]int{1, 2}, Padding: [2]int{1, 0}, Groups: 1}
	out := b.Conv2D(input, kernel, cfg)
	assert.Equal(t, tensor.Shape{1, 2, 4, 3}, out.Shape())
}

func TestCPUBackend_Conv2DGrouped(t *testing.T) {
	b := New()

	// Depthwise: two channels, each convolved with its own 1x1 kernel.
	input := raw32(t, tensor.Shape{1, 2, 1, 2}, []float32{1, 2, 3, 4})
	kernel := raw32(t, tensor.Shape{2, 1, 1, 1}, []float32{10, -1})
	cfg := tensor.Conv2DConfig{Stride: [2]int{1, 1}, Groups: 2}

	out := b.Conv2D(input, kernel, cfg)
	assert.Equal(t, []float32{10, 20, -3, -4}, out.AsFloat32())

	bad := raw32(t, tensor.Shape{2, 2, 1, 1}, make([]float32, 4))
	assert.Panics(t, func() { b.Conv2D(input, bad, cfg) })
}

func TestCPUBackend_Conv2DInvalidOutput(t *testing.T) {
	b := New()
	input := raw32(t, tensor.Shape{1, 1, 2, 2}, make([]float32, 4))
	kernel := raw32(t, tensor.Shape{1, 1, 3, 3}, make([]float32, 9))
	assert.Panics(t, func() { b.Conv2D(input, kernel, tensor.SquareConv(1, 0)) })
}

func TestCPUBackend_Conv2DParallelMatchesSequential(t *testing.T) {
	seq := NewWithConfig(parallel.Sequential())
	par := NewWithConfig(parallel.DefaultConfig().WithWorkers(4))

	input := raw64(t, tensor.Shape{2, 4, 5, 5}, ramp(2*4*5*5))
	kernel := raw64(t, tensor.Shape{6, 2, 3, 3}, ramp(6*2*3*3))
	cfg := tensor.Conv2DConfig{Stride: [2]int{2, 1}, Padding: [2]int{1, 1}, Groups: 2}

	assert.Equal(t, seq.Conv2D(input, kernel, cfg).AsFloat64(), par.Conv2D(input, kernel, cfg).AsFloat64())
}

// ramp returns deterministic values in [-1, 1).
func ramp(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = float64((i*7)%23)/11.5 - 1
	}
	return out
}

// TestCPUBackend_Conv2DBackwardNumeric checks both backward kernels against
// central finite differences of sum(conv(x, k) * g).
func TestCPUBackend_Conv2DBackwardNumeric(t *testing.T) {
	b := New()
	cfg := tensor.Conv2DConfig{Stride: [2]int{2, 1}, Padding: [2]int{1, 0}, Groups: 2}

	input := raw64(t, tensor.Shape{2, 4, 4, 3}, ramp(2*4*4*3))
	kernel := raw64(t, tensor.Shape{4, 2, 2, 2}, ramp(4*2*2*2))
	out := b.Conv2D(input, kernel, cfg)
	upstream := raw64(t, out.Shape(), ramp(out.NumElements()))

	loss := func() float64 {
		y := b.Conv2D(input, kernel, cfg).AsFloat64()
		var s float64
		for i, v := range y {
			s += v * upstream.AsFloat64()[i]
		}
		return s
	}

	const eps = 1e-6
	numeric := func(data []float64, i int) float64 {
		orig := data[i]
		data[i] = orig + eps
		plus := loss()
		data[i] = orig - eps
		minus := loss()
		data[i] = orig
		return (plus - minus) / (2 * eps)
	}

	dx := b.Conv2DInputBackward(input, kernel, upstream, cfg).AsFloat64()
	for i := range dx {
		assert.InDelta(t, numeric(input.AsFloat64(), i), dx[i], 1e-5, "input grad %d", i)
	}

	dk := b.Conv2DKernelBackward(input, kernel, upstream, cfg).AsFloat64()
	for i := range dk {
		assert.InDelta(t, numeric(kernel.AsFloat64(), i), dk[i], 1e-5, "kernel grad %d", i)
	}
}
