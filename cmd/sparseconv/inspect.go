package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/born-ml/sparseconv/internal/backend/cpu"
	"github.com/born-ml/sparseconv/internal/logger"
	"github.com/born-ml/sparseconv/internal/nn"
)

// inspectReport summarizes a layer under one mask evaluation.
type inspectReport struct {
	Path           string   `json:"path"`
	Module         string   `json:"module"`
	Temperature    float64  `json:"temperature"`
	Ticket         bool     `json:"ticket"`
	Density        float64  `json:"density"`
	OutChannels    int      `json:"out_channels"`
	ActiveChannels int      `json:"active_channels"`
	Runs           []string `json:"runs"`
	PruneSteps     int      `json:"prune_steps"`
	Checkpointed   bool     `json:"checkpointed"`
}

func (a *app) inspectCmd() *cli.Command {
	var (
		path   string
		mask   maskOptions
		asJSON bool
	)

	return &cli.Command{
		Name:  "inspect",
		Usage: "Show mask density and channel activity of a layer",
		Flags: append(maskFlags(&mask),
			layerFlag(&path),
			&cli.BoolFlag{Name: "json", Usage: "print the report as JSON", Destination: &asJSON},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			applyMaskConfig(cmd, a.cfg, &mask)

			f, err := loadLayerFile(path, cpu.New())
			if err != nil {
				return err
			}
			report, err := inspectLayer(path, f, mask)
			if err != nil {
				return err
			}
			log.Debug("layer inspected", "path", path, "density", report.Density)

			if asJSON {
				enc := json.NewEncoder(a.out)
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}
			return report.write(a.out)
		},
	}
}

func inspectLayer(path string, f *layerFile, mask maskOptions) (*inspectReport, error) {
	l := f.layer
	maskTensor, err := l.MaterializeMask(float32(mask.temperature), mask.ticket)
	if err != nil {
		return nil, err
	}
	density, err := l.Density()
	if err != nil {
		return nil, err
	}

	effective := l.Weight().Tensor().Mul(maskTensor)
	runs := nn.ChannelRuns(nn.ChannelActivity(effective))

	report := &inspectReport{
		Path:         path,
		Module:       l.String(),
		Temperature:  mask.temperature,
		Ticket:       mask.ticket,
		Density:      density,
		OutChannels:  l.OutChannels(),
		Runs:         make([]string, len(runs)),
		PruneSteps:   f.pruneSteps,
		Checkpointed: f.checkpoint,
	}
	for i, r := range runs {
		report.Runs[i] = r.String()
		if r.Active {
			report.ActiveChannels += r.Len()
		}
	}
	return report, nil
}

func (r *inspectReport) write(w io.Writer) error {
	_, err := fmt.Fprintf(w,
		"layer:        %s\n"+
			"module:       %s\n"+
			"mask:         temperature=%g ticket=%v\n"+
			"density:      %.4f\n"+
			"active:       %d/%d channels\n"+
			"runs:         %s\n"+
			"prune steps:  %d\n"+
			"checkpointed: %v\n",
		r.Path, r.Module, r.Temperature, r.Ticket, r.Density,
		r.ActiveChannels, r.OutChannels, strings.Join(r.Runs, ", "),
		r.PruneSteps, r.Checkpointed)
	return err
}
