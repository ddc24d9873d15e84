package tensor

import "fmt"

// Conv2DConfig holds the geometry of a 2D convolution that is not carried
// by the input and kernel shapes.
//
// Stride and Padding are per spatial axis: index 0 is height, index 1 is width.
// Groups splits input and output channels into independent blocks; the kernel
// shape is then [C_out, C_in/Groups, K_h, K_w].
type Conv2DConfig struct {
	Stride  [2]int
	Padding [2]int
	Groups  int
}

// SquareConv returns a config with equal stride and padding on both axes and
// a single group.
func SquareConv(stride, padding int) Conv2DConfig {
	return Conv2DConfig{
		Stride:  [2]int{stride, stride},
		Padding: [2]int{padding, padding},
		Groups:  1,
	}
}

// Validate checks that strides are positive, paddings non-negative and
// groups positive.
func (c Conv2DConfig) Validate() error {
	for axis := 0; axis < 2; axis++ {
		if c.Stride[axis] <= 0 {
			return fmt.Errorf("invalid stride %v", c.Stride)
		}
		if c.Padding[axis] < 0 {
			return fmt.Errorf("invalid padding %v", c.Padding)
		}
	}
	if c.Groups <= 0 {
		return fmt.Errorf("invalid groups %d", c.Groups)
	}
	return nil
}

// ConvOutputSize applies the convolution output-size formula to one axis:
//
//	floor((dim - kernel + 2*padding) / stride) + 1
//
// The division floors toward negative infinity, so a kernel larger than the
// padded input yields a non-positive size.
func ConvOutputSize(dim, kernel, padding, stride int) int {
	num := dim - kernel + 2*padding
	q := num / stride
	if num%stride != 0 && num < 0 {
		q--
	}
	return q + 1
}

// OutputSize returns [out_h, out_w] for the given input and kernel sizes.
func (c Conv2DConfig) OutputSize(h, w int, kernel [2]int) [2]int {
	return [2]int{
		ConvOutputSize(h, kernel[0], c.Padding[0], c.Stride[0]),
		ConvOutputSize(w, kernel[1], c.Padding[1], c.Stride[1]),
	}
}
