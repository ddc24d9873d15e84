package nn

import (
	"fmt"

	"github.com/born-ml/sparseconv/internal/autodiff"
	"github.com/born-ml/sparseconv/internal/tensor"
)

// DefaultMaskInitialValue is the initial mask logit used when none is given.
const DefaultMaskInitialValue float32 = -2

// SoftMaskedConv2D is a convolution whose every weight is gated by a
// trainable mask logit.
//
// Tensors (all [out_channels, in_channels, kernel, kernel]):
//   - weight: trainable, Xavier-normal initialized
//   - mask_weight: trainable logits, filled with the mask initial value
//   - init_weight: non-trainable snapshot written by Checkpoint and read by
//     RewindWeights
//
// The layer has no bias and a single group. Forward and the lifecycle calls
// (Prune, Checkpoint, RewindWeights) mutate module state and must not run
// concurrently on the same layer.
type SoftMaskedConv2D[B tensor.Backend] struct {
	inChannels       int
	outChannels      int
	kernelSize       int
	padding          int
	stride           int
	maskInitialValue float32

	weight     *Parameter[B]
	maskWeight *Parameter[B]
	initWeight *tensor.Tensor[float32, B]
	mask       *tensor.Tensor[float32, B] // last materialized mask, nil until first use

	backend B
}

// tapeBackend is a backend that records operations for differentiation.
type tapeBackend interface {
	Tape() *autodiff.GradientTape
}

// NewSoftMaskedConv2D creates a soft-masked convolution.
//
// Returns ErrInvalidShape if inChannels, outChannels, kernelSize or stride
// is non-positive, or padding is negative.
func NewSoftMaskedConv2D[B tensor.Backend](
	inChannels, outChannels, kernelSize, padding, stride int,
	maskInitialValue float32,
	backend B,
) (*SoftMaskedConv2D[B], error) {
	spec := Conv2DSpec{
		InChannels:  inChannels,
		OutChannels: outChannels,
		Kernel:      Square(kernelSize),
		Stride:      Square(stride),
		Padding:     Square(padding),
		Groups:      1,
	}
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("soft masked %w", err)
	}

	shape := spec.weightShape()
	fanIn, fanOut := convFans(shape)

	return &SoftMaskedConv2D[B]{
		inChannels:       inChannels,
		outChannels:      outChannels,
		kernelSize:       kernelSize,
		padding:          padding,
		stride:           stride,
		maskInitialValue: maskInitialValue,
		weight:           NewParameter("weight", XavierNormal(fanIn, fanOut, shape, backend)),
		maskWeight:       NewParameter("mask_weight", tensor.Full[float32](shape, maskInitialValue, backend)),
		initWeight:       tensor.Zeros[float32](shape, backend),
		backend:          backend,
	}, nil
}

func (c *SoftMaskedConv2D[B]) spec() Conv2DSpec {
	return Conv2DSpec{
		InChannels:  c.inChannels,
		OutChannels: c.outChannels,
		Kernel:      Square(c.kernelSize),
		Stride:      Square(c.stride),
		Padding:     Square(c.padding),
		Groups:      1,
	}
}

// ForwardMasked convolves input with weight ⊙ mask, where the mask is
// ComputeMask(mask_weight, temperature, ticket, maskInitialValue).
//
// The mask is cached and available through Mask afterwards. With ticket
// false, gradients flow to both weight and mask_weight; with ticket true only
// weight receives a gradient.
func (c *SoftMaskedConv2D[B]) ForwardMasked(
	input *tensor.Tensor[float32, B],
	temperature float32,
	ticket bool,
) (*tensor.Tensor[float32, B], error) {
	shape := input.Shape()
	if len(shape) != 4 || shape[1] != c.inChannels {
		return nil, fmt.Errorf("soft masked conv2d: input %v, want [N, %d, H, W]: %w", shape, c.inChannels, ErrInvalidShape)
	}
	out := c.spec().config().OutputSize(shape[2], shape[3], Square(c.kernelSize))
	if out[0] <= 0 || out[1] <= 0 {
		return nil, fmt.Errorf("soft masked conv2d: input %dx%d gives output %dx%d: %w",
			shape[2], shape[3], out[0], out[1], ErrInvalidOutputSize)
	}

	mask, err := c.MaterializeMask(temperature, ticket)
	if err != nil {
		return nil, err
	}
	effective := c.weight.Tensor().Mul(mask)
	return input.Conv2D(effective, c.spec().config()), nil
}

// Forward runs ForwardMasked with temperature 1 and a soft mask.
// Panics on error.
func (c *SoftMaskedConv2D[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	out, err := c.ForwardMasked(input, 1, false)
	if err != nil {
		panic(err.Error())
	}
	return out
}

// MaterializeMask computes and caches the mask without running a convolution.
func (c *SoftMaskedConv2D[B]) MaterializeMask(temperature float32, ticket bool) (*tensor.Tensor[float32, B], error) {
	if err := c.checkMaskShape(); err != nil {
		return nil, err
	}
	c.mask = ComputeMask(c.maskWeight.Tensor(), temperature, ticket, c.maskInitialValue)
	return c.mask, nil
}

func (c *SoftMaskedConv2D[B]) checkMaskShape() error {
	w, m := c.weight.Tensor().Shape(), c.maskWeight.Tensor().Shape()
	if !w.Equal(m) {
		return fmt.Errorf("soft masked conv2d: weight %v, mask_weight %v: %w", w, m, ErrMaskShapeMismatch)
	}
	return nil
}

// Mask returns the last materialized mask, or nil if none has been computed.
func (c *SoftMaskedConv2D[B]) Mask() *tensor.Tensor[float32, B] {
	return c.mask
}

// Density returns the fraction of non-zero entries in the stored mask.
func (c *SoftMaskedConv2D[B]) Density() (float64, error) {
	if c.mask == nil {
		return 0, fmt.Errorf("soft masked conv2d: density: %w", ErrNoStoredMask)
	}
	data := c.mask.Data()
	nonZero := 0
	for _, v := range data {
		if v != 0 {
			nonZero++
		}
	}
	return float64(nonZero) / float64(len(data)), nil
}

// Prune replaces mask_weight in place with
// NextLogits(mask_weight, temperature, maskInitialValue).
// The update is not recorded for differentiation: on a backend with a
// gradient tape, recording is paused while it runs.
//
// The stored mask is not refreshed. Density and decomposition with the stored
// mask keep reporting the last materialized mask until the next forward pass
// or MaterializeMask call.
func (c *SoftMaskedConv2D[B]) Prune(temperature float32) error {
	if tb, ok := any(c.backend).(tapeBackend); ok {
		if tape := tb.Tape(); tape.IsRecording() {
			tape.StopRecording()
			defer tape.StartRecording()
		}
	}

	logits := c.maskWeight.Tensor()
	next := NextLogits(logits.Detach(), temperature, c.maskInitialValue)
	if err := logits.CopyFrom(next); err != nil {
		return fmt.Errorf("soft masked conv2d: prune: %w", err)
	}
	return nil
}

// Checkpoint copies the current weight into init_weight.
// Later calls overwrite the snapshot.
func (c *SoftMaskedConv2D[B]) Checkpoint() error {
	if err := c.initWeight.CopyFrom(c.weight.Tensor()); err != nil {
		return fmt.Errorf("soft masked conv2d: checkpoint: %w", err)
	}
	return nil
}

// RewindWeights copies init_weight back into weight in place. The mask
// logits and the stored mask are left untouched.
func (c *SoftMaskedConv2D[B]) RewindWeights() error {
	if err := c.weight.Tensor().CopyFrom(c.initWeight); err != nil {
		return fmt.Errorf("soft masked conv2d: rewind: %w", err)
	}
	return nil
}

// Parameters returns weight and mask_weight. init_weight is not trainable.
func (c *SoftMaskedConv2D[B]) Parameters() []*Parameter[B] {
	return []*Parameter[B]{c.weight, c.maskWeight}
}

// StateDict returns weight, mask_weight and init_weight.
func (c *SoftMaskedConv2D[B]) StateDict() map[string]*tensor.RawTensor {
	return map[string]*tensor.RawTensor{
		"weight":      c.weight.Tensor().Raw(),
		"mask_weight": c.maskWeight.Tensor().Raw(),
		"init_weight": c.initWeight.Raw(),
	}
}

// LoadStateDict copies weight, mask_weight and init_weight in place.
// The cached mask is dropped.
func (c *SoftMaskedConv2D[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	for name, dst := range map[string]*tensor.Tensor[float32, B]{
		"weight":      c.weight.Tensor(),
		"mask_weight": c.maskWeight.Tensor(),
		"init_weight": c.initWeight,
	} {
		if err := loadTensor(stateDict, name, dst); err != nil {
			return err
		}
	}
	c.mask = nil
	return nil
}

// Weight returns the weight parameter.
func (c *SoftMaskedConv2D[B]) Weight() *Parameter[B] {
	return c.weight
}

// MaskWeight returns the mask logit parameter.
func (c *SoftMaskedConv2D[B]) MaskWeight() *Parameter[B] {
	return c.maskWeight
}

// InitWeight returns the checkpointed weight snapshot.
func (c *SoftMaskedConv2D[B]) InitWeight() *tensor.Tensor[float32, B] {
	return c.initWeight
}

// MaskInitialValue returns the initial mask logit.
func (c *SoftMaskedConv2D[B]) MaskInitialValue() float32 {
	return c.maskInitialValue
}

// InChannels returns the number of input channels.
func (c *SoftMaskedConv2D[B]) InChannels() int {
	return c.inChannels
}

// OutChannels returns the number of output channels.
func (c *SoftMaskedConv2D[B]) OutChannels() int {
	return c.outChannels
}

// KernelSize returns the square kernel size.
func (c *SoftMaskedConv2D[B]) KernelSize() int {
	return c.kernelSize
}

// Stride returns the stride.
func (c *SoftMaskedConv2D[B]) Stride() int {
	return c.stride
}

// Padding returns the padding.
func (c *SoftMaskedConv2D[B]) Padding() int {
	return c.padding
}

// String returns a string representation of the layer.
func (c *SoftMaskedConv2D[B]) String() string {
	return fmt.Sprintf("SoftMaskedConv2D(in_channels=%d, out_channels=%d, kernel_size=%d, stride=%d, padding=%d, mask_init_value=%g)",
		c.inChannels, c.outChannels, c.kernelSize, c.stride, c.padding, c.maskInitialValue)
}
