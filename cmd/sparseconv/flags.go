package main

import (
	"github.com/urfave/cli/v3"

	"github.com/born-ml/sparseconv/internal/nn"
)

// geometry holds the init flags.
type geometry struct {
	in, out                 int
	kernel, padding, stride int
	maskInit                float64
}

func geometryFlags(g *geometry) []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{Name: "in", Usage: "input channels", Value: 3, Destination: &g.in},
		&cli.IntFlag{Name: "out", Usage: "output channels", Value: 8, Destination: &g.out},
		&cli.IntFlag{Name: "kernel", Aliases: []string{"k"}, Usage: "square kernel size", Value: 3, Destination: &g.kernel},
		&cli.IntFlag{Name: "padding", Aliases: []string{"p"}, Usage: "zero padding", Value: 1, Destination: &g.padding},
		&cli.IntFlag{Name: "stride", Aliases: []string{"s"}, Usage: "stride", Value: 1, Destination: &g.stride},
		&cli.Float64Flag{
			Name:        "mask-init",
			Usage:       "initial mask logit",
			Value:       float64(nn.DefaultMaskInitialValue),
			Destination: &g.maskInit,
		},
	}
}

// maskOptions selects how a mask is evaluated before inspection or decomposition.
type maskOptions struct {
	temperature float64
	ticket      bool
	source      string
}

func maskFlags(m *maskOptions) []cli.Flag {
	return []cli.Flag{
		&cli.Float64Flag{
			Name:        "temperature",
			Aliases:     []string{"t"},
			Usage:       "mask temperature",
			Value:       1,
			Destination: &m.temperature,
		},
		&cli.BoolFlag{
			Name:        "ticket",
			Usage:       "evaluate the hard (0/1) mask",
			Value:       true,
			Destination: &m.ticket,
		},
	}
}

func layerFlag(path *string) cli.Flag {
	return &cli.StringFlag{
		Name:        "layer",
		Aliases:     []string{"l"},
		Usage:       "path to the layer .safetensors file",
		Required:    true,
		Destination: path,
	}
}
