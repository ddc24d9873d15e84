package nn

import (
	"errors"

	"github.com/born-ml/sparseconv/internal/serialization"
)

// Errors returned by the convolution modules and the decomposer.
var (
	// ErrInvalidShape reports a non-positive dimension or a malformed input.
	ErrInvalidShape = errors.New("invalid shape")

	// ErrInvalidOutputSize reports a geometry whose output would be empty.
	ErrInvalidOutputSize = errors.New("invalid output size")

	// ErrMaskShapeMismatch reports mask logits whose shape differs from the weight.
	ErrMaskShapeMismatch = errors.New("mask shape does not match weight shape")

	// ErrEmptyConvolution reports decomposition of a convolution with no output channels.
	ErrEmptyConvolution = errors.New("convolution has no output channels")

	// ErrGroupBoundary reports a channel run that splits a convolution group.
	ErrGroupBoundary = errors.New("channel run does not align with group boundary")

	// ErrNoStoredMask reports a masked convolution that has not materialized a mask yet.
	ErrNoStoredMask = errors.New("no stored mask")

	// ErrUnsupportedSource reports a module that cannot be decomposed.
	ErrUnsupportedSource = errors.New("unsupported decomposition source")

	// ErrMissingTensor reports a state dict without a required entry.
	ErrMissingTensor = serialization.ErrMissingTensor
)
