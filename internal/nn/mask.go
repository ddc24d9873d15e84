package nn

import (
	"math"

	"github.com/born-ml/sparseconv/internal/tensor"
)

// MaskScaling returns 1 / sigmoid(maskInitialValue), the factor that makes
// a mask evaluated at its initial logits equal to one.
func MaskScaling(maskInitialValue float32) float32 {
	return float32(1.0 + math.Exp(-float64(maskInitialValue)))
}

// ComputeMask turns mask logits into a multiplicative mask of the same shape.
//
// With ticket set the mask is the hard threshold 1[logits > 0], which carries
// no gradient. Otherwise it is sigmoid(temperature * logits), differentiable
// in logits. Both branches are scaled by MaskScaling(maskInitialValue), so a
// hard mask takes the values 0 and MaskScaling, and a soft mask at
// temperature 1 with logits at maskInitialValue is exactly one.
func ComputeMask[B tensor.Backend](
	logits *tensor.Tensor[float32, B],
	temperature float32,
	ticket bool,
	maskInitialValue float32,
) *tensor.Tensor[float32, B] {
	var mask *tensor.Tensor[float32, B]
	if ticket {
		mask = logits.Step()
	} else {
		mask = logits.MulScalar(temperature).Sigmoid()
	}
	return mask.MulScalar(MaskScaling(maskInitialValue))
}

// NextLogits returns min(temperature * logits, maskInitialValue) element-wise
// as a new tensor. logits is not modified.
//
// Repeated application with temperature < 1 contracts logits toward zero;
// with temperature > 1 it sharpens them until the cap is reached. Logits
// never exceed maskInitialValue afterwards.
func NextLogits[B tensor.Backend](
	logits *tensor.Tensor[float32, B],
	temperature float32,
	maskInitialValue float32,
) *tensor.Tensor[float32, B] {
	return logits.MulScalar(temperature).ClampMax(maskInitialValue)
}
