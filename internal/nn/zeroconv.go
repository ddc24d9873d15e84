package nn

import (
	"fmt"

	"github.com/born-ml/sparseconv/internal/tensor"
)

// ZeroConv stands in for a run of pruned output channels.
//
// It produces the zero tensor a convolution with the same geometry would
// have produced for those channels: [N, channels, H', W'] with, per axis,
// H' = floor((H - kernel + 2*padding) / stride) + 1. It has no parameters,
// allocates its output on the input's device and records nothing for
// differentiation.
type ZeroConv[B tensor.Backend] struct {
	channels int
	kernel   [2]int
	padding  [2]int
	stride   [2]int
}

// NewZeroConv creates a zero placeholder. Use Square for scalar geometry.
//
// Returns ErrInvalidShape for a non-positive channel count, kernel or
// stride, or a negative padding.
func NewZeroConv[B tensor.Backend](channels int, kernel, padding, stride [2]int) (*ZeroConv[B], error) {
	switch {
	case channels <= 0:
		return nil, fmt.Errorf("zeroconv: channels %d: %w", channels, ErrInvalidShape)
	case kernel[0] <= 0 || kernel[1] <= 0:
		return nil, fmt.Errorf("zeroconv: kernel size %v: %w", kernel, ErrInvalidShape)
	case stride[0] <= 0 || stride[1] <= 0:
		return nil, fmt.Errorf("zeroconv: stride %v: %w", stride, ErrInvalidShape)
	case padding[0] < 0 || padding[1] < 0:
		return nil, fmt.Errorf("zeroconv: padding %v: %w", padding, ErrInvalidShape)
	}
	return &ZeroConv[B]{channels: channels, kernel: kernel, padding: padding, stride: stride}, nil
}

// OutputShape returns the output shape for an [N, C, H, W] input.
func (z *ZeroConv[B]) OutputShape(input tensor.Shape) (tensor.Shape, error) {
	if len(input) != 4 {
		return nil, fmt.Errorf("zeroconv: expected 4D input [N,C,H,W], got %v: %w", input, ErrInvalidShape)
	}
	h := tensor.ConvOutputSize(input[2], z.kernel[0], z.padding[0], z.stride[0])
	w := tensor.ConvOutputSize(input[3], z.kernel[1], z.padding[1], z.stride[1])
	if h <= 0 || w <= 0 {
		return nil, fmt.Errorf("zeroconv: input %dx%d gives output %dx%d: %w", input[2], input[3], h, w, ErrInvalidOutputSize)
	}
	return tensor.Shape{input[0], z.channels, h, w}, nil
}

// Forward returns zeros of the output shape. Panics if the input is not 4D
// or the output would be empty.
func (z *ZeroConv[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	shape, err := z.OutputShape(input.Shape())
	if err != nil {
		panic(err.Error())
	}
	return tensor.ZerosOn[float32](shape, input.Device(), input.Backend())
}

// Parameters returns nil: ZeroConv has nothing to train.
func (z *ZeroConv[B]) Parameters() []*Parameter[B] {
	return nil
}

// StateDict returns an empty map.
func (z *ZeroConv[B]) StateDict() map[string]*tensor.RawTensor {
	return map[string]*tensor.RawTensor{}
}

// LoadStateDict ignores its input.
func (z *ZeroConv[B]) LoadStateDict(map[string]*tensor.RawTensor) error {
	return nil
}

// Channels returns the number of zero channels produced.
func (z *ZeroConv[B]) Channels() int {
	return z.channels
}

// String returns a string representation of the layer.
func (z *ZeroConv[B]) String() string {
	return fmt.Sprintf("ZeroConv(channels=%d, kernel_size=(%d, %d), stride=(%d, %d), padding=(%d, %d))",
		z.channels, z.kernel[0], z.kernel[1], z.stride[0], z.stride[1], z.padding[0], z.padding[1])
}
