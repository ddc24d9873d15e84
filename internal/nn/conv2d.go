package nn

import (
	"fmt"

	"github.com/born-ml/sparseconv/internal/tensor"
)

// Conv2DSpec describes the geometry of a Conv2D layer.
//
// Kernel, Stride and Padding are per spatial axis (height, width).
// Groups defaults to 1 when zero.
type Conv2DSpec struct {
	InChannels  int
	OutChannels int
	Kernel      [2]int
	Stride      [2]int
	Padding     [2]int
	Groups      int
	Bias        bool
}

// Square returns a two-axis size with the same value on both axes.
func Square(n int) [2]int {
	return [2]int{n, n}
}

// Validate reports ErrInvalidShape for any non-positive channel count,
// kernel size or stride, negative padding, or channels not divisible by groups.
func (s Conv2DSpec) Validate() error {
	groups := s.groups()
	switch {
	case s.InChannels <= 0 || s.OutChannels <= 0:
		return fmt.Errorf("conv2d: channels in=%d, out=%d: %w", s.InChannels, s.OutChannels, ErrInvalidShape)
	case s.Kernel[0] <= 0 || s.Kernel[1] <= 0:
		return fmt.Errorf("conv2d: kernel size %v: %w", s.Kernel, ErrInvalidShape)
	case s.Stride[0] <= 0 || s.Stride[1] <= 0:
		return fmt.Errorf("conv2d: stride %v: %w", s.Stride, ErrInvalidShape)
	case s.Padding[0] < 0 || s.Padding[1] < 0:
		return fmt.Errorf("conv2d: padding %v: %w", s.Padding, ErrInvalidShape)
	case groups <= 0 || s.InChannels%groups != 0 || s.OutChannels%groups != 0:
		return fmt.Errorf("conv2d: channels in=%d, out=%d not divisible by groups %d: %w",
			s.InChannels, s.OutChannels, groups, ErrInvalidShape)
	}
	return nil
}

func (s Conv2DSpec) groups() int {
	if s.Groups == 0 {
		return 1
	}
	return s.Groups
}

// config returns the backend convolution config.
func (s Conv2DSpec) config() tensor.Conv2DConfig {
	return tensor.Conv2DConfig{Stride: s.Stride, Padding: s.Padding, Groups: s.groups()}
}

// weightShape returns [out_channels, in_channels/groups, kernel_h, kernel_w].
func (s Conv2DSpec) weightShape() tensor.Shape {
	return tensor.Shape{s.OutChannels, s.InChannels / s.groups(), s.Kernel[0], s.Kernel[1]}
}

// Conv2D is a 2D convolutional layer.
//
// Performs convolution: output = Conv2D(input, weight) + bias
//
// Input shape:  [batch, in_channels, height, width]
// Weight shape: [out_channels, in_channels/groups, kernel_h, kernel_w]
// Bias shape:   [out_channels]
// Output shape: [batch, out_channels, out_h, out_w]
//
// Where, per axis:
//
//	out = floor((in + 2*padding - kernel) / stride) + 1
//
// Example:
//
//	conv := nn.NewConv2D(3, 16, 3, 3, 1, 1, true, backend)
//	output := conv.Forward(input) // [N, 16, H, W]
type Conv2D[B tensor.Backend] struct {
	spec Conv2DSpec

	weight *Parameter[B] // [out_channels, in_channels/groups, kernel_h, kernel_w]
	bias   *Parameter[B] // [out_channels] or nil

	backend B
}

// NewConv2D creates a square-stride, square-padding 2D convolution with
// Xavier initialization and a single group.
//
// Panics on invalid geometry; use NewConv2DFromSpec to get an error instead.
func NewConv2D[B tensor.Backend](
	inChannels, outChannels int,
	kernelH, kernelW int,
	stride, padding int,
	useBias bool,
	backend B,
) *Conv2D[B] {
	conv, err := NewConv2DFromSpec(Conv2DSpec{
		InChannels:  inChannels,
		OutChannels: outChannels,
		Kernel:      [2]int{kernelH, kernelW},
		Stride:      Square(stride),
		Padding:     Square(padding),
		Groups:      1,
		Bias:        useBias,
	}, backend)
	if err != nil {
		panic(err.Error())
	}
	return conv
}

// NewConv2DFromSpec creates a 2D convolution from a full spec.
//
// Initialization:
//   - Weights: Xavier/Glorot uniform initialization
//   - Bias: Zeros
func NewConv2DFromSpec[B tensor.Backend](spec Conv2DSpec, backend B) (*Conv2D[B], error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	spec.Groups = spec.groups()

	shape := spec.weightShape()
	fanIn, fanOut := convFans(shape)
	weight := Xavier(fanIn, fanOut, shape, backend)

	var bias *tensor.Tensor[float32, B]
	if spec.Bias {
		bias = tensor.Zeros[float32](tensor.Shape{spec.OutChannels}, backend)
	}
	return newConv2DWith(spec, weight, bias, backend), nil
}

// newConv2DWith wraps existing tensors without copying them.
func newConv2DWith[B tensor.Backend](spec Conv2DSpec, weight, bias *tensor.Tensor[float32, B], backend B) *Conv2D[B] {
	c := &Conv2D[B]{
		spec:    spec,
		weight:  NewParameter("weight", weight),
		backend: backend,
	}
	if bias != nil {
		c.bias = NewParameter("bias", bias)
	}
	return c
}

// Forward performs the forward pass.
//
// Input: [batch, in_channels, height, width]
// Output: [batch, out_channels, out_h, out_w].
func (c *Conv2D[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	inputShape := input.Shape()
	if len(inputShape) != 4 {
		panic(fmt.Sprintf("conv2d: expected 4D input [N,C,H,W], got %dD", len(inputShape)))
	}
	if inputShape[1] != c.spec.InChannels {
		panic(fmt.Sprintf("conv2d: input channels %d != expected %d", inputShape[1], c.spec.InChannels))
	}

	output := input.Conv2D(c.weight.Tensor(), c.spec.config())

	if c.bias != nil {
		// Bias [out] broadcast as [1, out, 1, 1].
		output = output.Add(c.bias.Tensor().Reshape(1, c.spec.OutChannels, 1, 1))
	}

	return output
}

// Parameters returns all trainable parameters.
func (c *Conv2D[B]) Parameters() []*Parameter[B] {
	if c.bias != nil {
		return []*Parameter[B]{c.weight, c.bias}
	}
	return []*Parameter[B]{c.weight}
}

// StateDict returns "weight" and, when present, "bias".
func (c *Conv2D[B]) StateDict() map[string]*tensor.RawTensor {
	state := map[string]*tensor.RawTensor{"weight": c.weight.Tensor().Raw()}
	if c.bias != nil {
		state["bias"] = c.bias.Tensor().Raw()
	}
	return state
}

// LoadStateDict copies "weight" and, when the layer has one, "bias".
func (c *Conv2D[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	if err := loadTensor(stateDict, "weight", c.weight.Tensor()); err != nil {
		return err
	}
	if c.bias != nil {
		return loadTensor(stateDict, "bias", c.bias.Tensor())
	}
	return nil
}

// String returns a string representation of the layer.
func (c *Conv2D[B]) String() string {
	return fmt.Sprintf("Conv2D(in_channels=%d, out_channels=%d, kernel_size=(%d, %d), stride=(%d, %d), padding=(%d, %d), groups=%d, bias=%v)",
		c.spec.InChannels, c.spec.OutChannels,
		c.spec.Kernel[0], c.spec.Kernel[1],
		c.spec.Stride[0], c.spec.Stride[1],
		c.spec.Padding[0], c.spec.Padding[1],
		c.spec.Groups, c.bias != nil)
}

// Spec returns the layer geometry.
func (c *Conv2D[B]) Spec() Conv2DSpec {
	return c.spec
}

// Weight returns the weight parameter.
func (c *Conv2D[B]) Weight() *Parameter[B] {
	return c.weight
}

// Bias returns the bias parameter, or nil.
func (c *Conv2D[B]) Bias() *Parameter[B] {
	return c.bias
}

// OutChannels returns the number of output channels.
func (c *Conv2D[B]) OutChannels() int {
	return c.spec.OutChannels
}

// InChannels returns the number of input channels.
func (c *Conv2D[B]) InChannels() int {
	return c.spec.InChannels
}

// Groups returns the number of channel groups.
func (c *Conv2D[B]) Groups() int {
	return c.spec.Groups
}

// ComputeOutputSize computes output spatial dimensions for given input size.
//
// Returns: [out_height, out_width].
func (c *Conv2D[B]) ComputeOutputSize(inputH, inputW int) [2]int {
	return c.spec.config().OutputSize(inputH, inputW, c.spec.Kernel)
}
