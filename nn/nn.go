// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package nn

import (
	"log/slog"

	"github.com/born-ml/sparseconv/internal/logger"
	"github.com/born-ml/sparseconv/internal/nn"
	"github.com/born-ml/sparseconv/tensor"
)

// Errors returned by the layers and the decomposer.
var (
	ErrInvalidShape      = nn.ErrInvalidShape
	ErrInvalidOutputSize = nn.ErrInvalidOutputSize
	ErrMaskShapeMismatch = nn.ErrMaskShapeMismatch
	ErrEmptyConvolution  = nn.ErrEmptyConvolution
	ErrGroupBoundary     = nn.ErrGroupBoundary
	ErrNoStoredMask      = nn.ErrNoStoredMask
	ErrUnsupportedSource = nn.ErrUnsupportedSource
	ErrMissingTensor     = nn.ErrMissingTensor
)

// Layers

// Conv2DSpec describes the geometry of a convolution.
type Conv2DSpec = nn.Conv2DSpec

// Square returns a two-axis size with the same value on both axes.
func Square(n int) [2]int {
	return nn.Square(n)
}

// Conv2D represents a 2D convolutional layer with optional groups and bias.
type Conv2D[B tensor.Backend] = nn.Conv2D[B]

// NewConv2D creates a new 2D convolutional layer.
//
// Example:
//
//	backend := cpu.New()
//	conv := nn.NewConv2D(1, 32, 3, 3, 1, 1, true, backend)  // in_channels=1, out_channels=32, kernel=3x3, stride=1, padding=1, useBias=true
func NewConv2D[B tensor.Backend](
	inChannels, outChannels int,
	kernelH, kernelW int,
	stride, padding int,
	useBias bool,
	backend B,
) *Conv2D[B] {
	return nn.NewConv2D(inChannels, outChannels, kernelH, kernelW, stride, padding, useBias, backend)
}

// NewConv2DFromSpec creates a convolution from a full spec, including groups.
func NewConv2DFromSpec[B tensor.Backend](spec Conv2DSpec, backend B) (*Conv2D[B], error) {
	return nn.NewConv2DFromSpec(spec, backend)
}

// DefaultMaskInitialValue is the mask logit every new SoftMaskedConv2D starts from.
const DefaultMaskInitialValue = nn.DefaultMaskInitialValue

// SoftMaskedConv2D is a bias-free convolution whose weight is multiplied by
// a learned mask before every forward pass.
type SoftMaskedConv2D[B tensor.Backend] = nn.SoftMaskedConv2D[B]

// NewSoftMaskedConv2D creates a soft-masked convolution.
//
// Example:
//
//	layer, err := nn.NewSoftMaskedConv2D(3, 8, 3, 1, 1, nn.DefaultMaskInitialValue, backend)
func NewSoftMaskedConv2D[B tensor.Backend](
	inChannels, outChannels, kernelSize, padding, stride int,
	maskInitialValue float32,
	backend B,
) (*SoftMaskedConv2D[B], error) {
	return nn.NewSoftMaskedConv2D(inChannels, outChannels, kernelSize, padding, stride, maskInitialValue, backend)
}

// ZeroConv produces the all-zero output of a pruned convolution without
// reading its input.
type ZeroConv[B tensor.Backend] = nn.ZeroConv[B]

// NewZeroConv creates a ZeroConv producing channels output channels.
func NewZeroConv[B tensor.Backend](channels int, kernel, padding, stride [2]int) (*ZeroConv[B], error) {
	return nn.NewZeroConv[B](channels, kernel, padding, stride)
}

// Mask policy

// MaskScaling returns 1 + exp(-maskInitialValue), the factor that makes the
// soft mask equal 1 at the initial logit.
func MaskScaling(maskInitialValue float32) float32 {
	return nn.MaskScaling(maskInitialValue)
}

// ComputeMask returns the soft mask sigmoid(temperature·logits)·scale, or
// the hard mask step(logits)·scale when ticket is true.
func ComputeMask[B tensor.Backend](
	logits *tensor.Tensor[float32, B],
	temperature float32,
	ticket bool,
	maskInitialValue float32,
) *tensor.Tensor[float32, B] {
	return nn.ComputeMask(logits, temperature, ticket, maskInitialValue)
}

// NextLogits returns min(temperature·logits, maskInitialValue).
func NextLogits[B tensor.Backend](
	logits *tensor.Tensor[float32, B],
	temperature float32,
	maskInitialValue float32,
) *tensor.Tensor[float32, B] {
	return nn.NextLogits(logits, temperature, maskInitialValue)
}

// Decomposition

// MaskSource selects the mask a masked convolution is decomposed with.
type MaskSource = nn.MaskSource

// Mask sources.
const (
	StoredMask        = nn.StoredMask
	RecomputeHardMask = nn.RecomputeHardMask
)

// ParseMaskSource parses "stored" or "recompute-hard".
func ParseMaskSource(s string) (MaskSource, error) {
	return nn.ParseMaskSource(s)
}

// DecomposeOption configures Decompose.
type DecomposeOption = nn.DecomposeOption

// WithMaskSource selects the mask used for masked sources. Default StoredMask.
func WithMaskSource(s MaskSource) DecomposeOption {
	return nn.WithMaskSource(s)
}

// WithLogger logs every emitted segment at debug level to l.
func WithLogger(l *slog.Logger) DecomposeOption {
	return nn.WithLogger(logger.New(l.Handler()))
}

// ChannelRun is a maximal span [Start, End) of output channels sharing the
// same activity.
type ChannelRun = nn.ChannelRun

// ChannelActivity reports, per output channel, whether any weight is non-zero.
func ChannelActivity[B tensor.Backend](weight *tensor.Tensor[float32, B]) []bool {
	return nn.ChannelActivity(weight)
}

// ChannelRuns groups per-channel activity into maximal runs.
func ChannelRuns(activity []bool) []ChannelRun {
	return nn.ChannelRuns(activity)
}

// Segment is one entry of a decomposed convolution.
type Segment[B tensor.Backend] = nn.Segment[B]

// ActiveSegment reproduces a run of active channels with a smaller convolution.
type ActiveSegment[B tensor.Backend] = nn.ActiveSegment[B]

// ZeroSegment stands in for a run of all-zero channels.
type ZeroSegment[B tensor.Backend] = nn.ZeroSegment[B]

// SparseConv is a decomposed convolution.
type SparseConv[B tensor.Backend] = nn.SparseConv[B]

// Decompose splits source, a *Conv2D or *SoftMaskedConv2D, into a SparseConv.
// The source is not modified.
func Decompose[B tensor.Backend](source Module[B], opts ...DecomposeOption) (*SparseConv[B], error) {
	return nn.Decompose(source, opts...)
}
