package cpu

import (
	"fmt"

	"github.com/born-ml/sparseconv/internal/parallel"
	"github.com/born-ml/sparseconv/internal/tensor"
)

// Conv2DInputBackward computes the gradient of a grouped Conv2D with respect
// to its input.
//
// Each output gradient value is scattered back through the kernel onto the
// input positions it was computed from. Work is split per (batch, group), so
// no two goroutines write the same input channel.
//
// Returns: [N, C_in, H, W].
func (cpu *CPUBackend) Conv2DInputBackward(input, kernel, grad *tensor.RawTensor, cfg tensor.Conv2DConfig) *tensor.RawTensor {
	g := resolveConv("conv2d input backward", input, kernel, cfg)
	checkGradShape("conv2d input backward", grad, g)
	result := cpu.newResult("conv2d input backward", input.Shape(), input.DType())

	switch input.DType() {
	case tensor.Float32:
		conv2dInputBackward(result.AsFloat32(), kernel.AsFloat32(), grad.AsFloat32(), g, cpu.parallel)
	case tensor.Float64:
		conv2dInputBackward(result.AsFloat64(), kernel.AsFloat64(), grad.AsFloat64(), g, cpu.parallel)
	default:
		panic(fmt.Sprintf("conv2d input backward: unsupported dtype %s", input.DType()))
	}
	return result
}

// Conv2DKernelBackward computes the gradient of a grouped Conv2D with respect
// to its kernel, summed over the batch.
//
// Returns: [C_out, C_in/groups, K_h, K_w].
func (cpu *CPUBackend) Conv2DKernelBackward(input, kernel, grad *tensor.RawTensor, cfg tensor.Conv2DConfig) *tensor.RawTensor {
	g := resolveConv("conv2d kernel backward", input, kernel, cfg)
	checkGradShape("conv2d kernel backward", grad, g)
	result := cpu.newResult("conv2d kernel backward", kernel.Shape(), kernel.DType())

	switch input.DType() {
	case tensor.Float32:
		conv2dKernelBackward(result.AsFloat32(), input.AsFloat32(), grad.AsFloat32(), g, cpu.parallel)
	case tensor.Float64:
		conv2dKernelBackward(result.AsFloat64(), input.AsFloat64(), grad.AsFloat64(), g, cpu.parallel)
	default:
		panic(fmt.Sprintf("conv2d kernel backward: unsupported dtype %s", input.DType()))
	}
	return result
}

func checkGradShape(op string, grad *tensor.RawTensor, g convGeometry) {
	want := tensor.Shape{g.n, g.cOut, g.hOut, g.wOut}
	if !grad.Shape().Equal(want) {
		panic(fmt.Sprintf("%s: gradient shape %v, expected %v", op, grad.Shape(), want))
	}
}

func conv2dInputBackward[T float](dx, k, grad []T, g convGeometry, cfg parallel.Config) {
	inPlane := g.h * g.w
	outPlane := g.hOut * g.wOut
	kSize := g.cInG * g.kh * g.kw

	parallel.ForBatch(g.n, g.groups, func(b, grp int) {
		firstIn := grp * g.cInG
		for oc := grp * g.cOutG; oc < (grp+1)*g.cOutG; oc++ {
			gradPlane := grad[(b*g.cOut+oc)*outPlane:]
			kern := k[oc*kSize : (oc+1)*kSize]

			for oh := 0; oh < g.hOut; oh++ {
				for ow := 0; ow < g.wOut; ow++ {
					gv := gradPlane[oh*g.wOut+ow]
					if gv == 0 {
						continue
					}
					for ic := 0; ic < g.cInG; ic++ {
						dst := dx[(b*g.cIn+firstIn+ic)*inPlane:]
						kc := kern[ic*g.kh*g.kw:]
						for ki := 0; ki < g.kh; ki++ {
							ih := oh*g.sh - g.ph + ki
							if ih < 0 || ih >= g.h {
								continue
							}
							for kj := 0; kj < g.kw; kj++ {
								iw := ow*g.sw - g.pw + kj
								if iw < 0 || iw >= g.w {
									continue
								}
								dst[ih*g.w+iw] += gv * kc[ki*g.kw+kj]
							}
						}
					}
				}
			}
		}
	}, cfg)
}

func conv2dKernelBackward[T float](dk, in, grad []T, g convGeometry, cfg parallel.Config) {
	inPlane := g.h * g.w
	outPlane := g.hOut * g.wOut
	kSize := g.cInG * g.kh * g.kw

	parallel.For(g.cOut, func(oc int) {
		firstIn := (oc / g.cOutG) * g.cInG
		dst := dk[oc*kSize : (oc+1)*kSize]

		for b := 0; b < g.n; b++ {
			gradPlane := grad[(b*g.cOut+oc)*outPlane:]
			for ic := 0; ic < g.cInG; ic++ {
				src := in[(b*g.cIn+firstIn+ic)*inPlane:]
				dc := dst[ic*g.kh*g.kw:]
				for ki := 0; ki < g.kh; ki++ {
					for kj := 0; kj < g.kw; kj++ {
						var sum T
						for oh := 0; oh < g.hOut; oh++ {
							ih := oh*g.sh - g.ph + ki
							if ih < 0 || ih >= g.h {
								continue
							}
							for ow := 0; ow < g.wOut; ow++ {
								iw := ow*g.sw - g.pw + kj
								if iw < 0 || iw >= g.w {
									continue
								}
								sum += gradPlane[oh*g.wOut+ow] * src[ih*g.w+iw]
							}
						}
						dc[ki*g.kw+kj] += sum
					}
				}
			}
		}
	}, cfg)
}
