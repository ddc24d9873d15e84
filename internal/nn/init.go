package nn

import (
	"math"
	"math/rand"

	"github.com/born-ml/sparseconv/internal/tensor"
)

// Xavier (Glorot) uniform initialization for weights.
//
// Initializes weights with values drawn from a uniform distribution:
// U(-sqrt(6/(fan_in + fan_out)), sqrt(6/(fan_in + fan_out)))
func Xavier[B tensor.Backend](fanIn, fanOut int, shape tensor.Shape, backend B) *tensor.Tensor[float32, B] {
	bound := math.Sqrt(6.0 / float64(fanIn+fanOut))

	t := tensor.Zeros[float32](shape, backend)
	data := t.Data()
	for i := range data {
		//nolint:gosec // Using math/rand for weight initialization (not security-critical)
		data[i] = float32((rand.Float64()*2.0 - 1.0) * bound)
	}
	return t
}

// XavierNormal (Glorot) normal initialization for weights.
//
// Initializes weights with values drawn from N(0, 2/(fan_in + fan_out)).
func XavierNormal[B tensor.Backend](fanIn, fanOut int, shape tensor.Shape, backend B) *tensor.Tensor[float32, B] {
	std := math.Sqrt(2.0 / float64(fanIn+fanOut))
	return tensor.Randn[float32](shape, 0, std, backend)
}

// convFans returns fan_in and fan_out of a [out, in/groups, kh, kw] kernel.
func convFans(shape tensor.Shape) (fanIn, fanOut int) {
	receptive := shape[2] * shape[3]
	return shape[1] * receptive, shape[0] * receptive
}
