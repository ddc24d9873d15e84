package cpu

import (
	"fmt"

	"github.com/born-ml/sparseconv/internal/parallel"
	"github.com/born-ml/sparseconv/internal/tensor"
)

// convGeometry is the resolved shape information of one convolution call.
type convGeometry struct {
	n, cIn, h, w       int
	cOut, cInG, kh, kw int
	hOut, wOut         int
	sh, sw, ph, pw     int
	groups, cOutG      int
}

// resolveConv validates input, kernel and cfg and returns the geometry.
// Panics with an op-prefixed message on any mismatch.
func resolveConv(op string, input, kernel *tensor.RawTensor, cfg tensor.Conv2DConfig) convGeometry {
	inputShape := input.Shape()
	kernelShape := kernel.Shape()

	if len(inputShape) != 4 {
		panic(fmt.Sprintf("%s: input must be 4D [N,C,H,W], got %dD", op, len(inputShape)))
	}
	if len(kernelShape) != 4 {
		panic(fmt.Sprintf("%s: kernel must be 4D [C_out,C_in/groups,K_h,K_w], got %dD", op, len(kernelShape)))
	}
	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("%s: %v", op, err))
	}
	checkSameDType(op, input, kernel)

	g := convGeometry{
		n: inputShape[0], cIn: inputShape[1], h: inputShape[2], w: inputShape[3],
		cOut: kernelShape[0], cInG: kernelShape[1], kh: kernelShape[2], kw: kernelShape[3],
		sh: cfg.Stride[0], sw: cfg.Stride[1], ph: cfg.Padding[0], pw: cfg.Padding[1],
		groups: cfg.Groups,
	}

	if g.cIn%g.groups != 0 || g.cOut%g.groups != 0 {
		panic(fmt.Sprintf("%s: channels (in=%d, out=%d) not divisible by groups %d", op, g.cIn, g.cOut, g.groups))
	}
	if g.cIn/g.groups != g.cInG {
		panic(fmt.Sprintf("%s: input channels %d / groups %d != kernel channels %d", op, g.cIn, g.groups, g.cInG))
	}
	g.cOutG = g.cOut / g.groups

	out := cfg.OutputSize(g.h, g.w, [2]int{g.kh, g.kw})
	g.hOut, g.wOut = out[0], out[1]
	if g.hOut <= 0 || g.wOut <= 0 {
		panic(fmt.Sprintf("%s: invalid output dimensions: out_h=%d, out_w=%d (check kernel/stride/padding)", op, g.hOut, g.wOut))
	}
	return g
}

// Conv2D performs a grouped 2D convolution by direct summation.
//
// Input shape:  [N, C_in, H, W]
// Kernel shape: [C_out, C_in/groups, K_h, K_w]
// Output shape: [N, C_out, H_out, W_out]
//
// Output channel oc reads only the input channels of its group
// oc / (C_out/groups). Padding is implicit zeros. Every (batch, out channel)
// plane is independent and computed in parallel.
func (cpu *CPUBackend) Conv2D(input, kernel *tensor.RawTensor, cfg tensor.Conv2DConfig) *tensor.RawTensor {
	g := resolveConv("conv2d", input, kernel, cfg)
	output := cpu.newResult("conv2d", tensor.Shape{g.n, g.cOut, g.hOut, g.wOut}, input.DType())

	switch input.DType() {
	case tensor.Float32:
		conv2d(output.AsFloat32(), input.AsFloat32(), kernel.AsFloat32(), g, cpu.parallel)
	case tensor.Float64:
		conv2d(output.AsFloat64(), input.AsFloat64(), kernel.AsFloat64(), g, cpu.parallel)
	default:
		panic(fmt.Sprintf("conv2d: unsupported dtype %s", input.DType()))
	}
	return output
}

func conv2d[T float](out, in, k []T, g convGeometry, cfg parallel.Config) {
	inPlane := g.h * g.w
	outPlane := g.hOut * g.wOut
	kSize := g.cInG * g.kh * g.kw

	parallel.ForBatch(g.n, g.cOut, func(b, oc int) {
		firstIn := (oc / g.cOutG) * g.cInG
		dst := out[(b*g.cOut+oc)*outPlane : (b*g.cOut+oc+1)*outPlane]
		kern := k[oc*kSize : (oc+1)*kSize]

		for oh := 0; oh < g.hOut; oh++ {
			for ow := 0; ow < g.wOut; ow++ {
				var sum T
				for ic := 0; ic < g.cInG; ic++ {
					src := in[(b*g.cIn+firstIn+ic)*inPlane:]
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
							sum += src[ih*g.w+iw] * kc[ki*g.kw+kj]
						}
					}
				}
				dst[oh*g.wOut+ow] = sum
			}
		}
	}, cfg)
}
