package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/born-ml/sparseconv/internal/backend/cpu"
	"github.com/born-ml/sparseconv/internal/logger"
	"github.com/born-ml/sparseconv/internal/nn"
)

func (a *app) decomposeCmd() *cli.Command {
	var (
		path     string
		out      string
		manifest string
		mask     maskOptions
	)

	return &cli.Command{
		Name:  "decompose",
		Usage: "Rewrite a pruned layer into smaller convolutions and zero placeholders",
		Flags: append(maskFlags(&mask),
			layerFlag(&path),
			&cli.StringFlag{
				Name:        "mask-source",
				Usage:       "mask used for decomposition (stored, recompute-hard)",
				Value:       "stored",
				Destination: &mask.source,
			},
			&cli.StringFlag{
				Name:        "out",
				Aliases:     []string{"o"},
				Usage:       "write the decomposed state to this .safetensors file",
				Destination: &out,
			},
			&cli.StringFlag{
				Name:        "manifest",
				Usage:       "write a JSON manifest (default: <out>.json when --out is set)",
				Destination: &manifest,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			applyMaskConfig(cmd, a.cfg, &mask)

			source, err := nn.ParseMaskSource(mask.source)
			if err != nil {
				return err
			}

			f, err := loadLayerFile(path, cpu.New())
			if err != nil {
				return err
			}
			if source == nn.StoredMask {
				// A freshly loaded layer has no stored mask; evaluate one now.
				if _, err := f.layer.MaterializeMask(float32(mask.temperature), mask.ticket); err != nil {
					return err
				}
			}

			sparse, err := nn.Decompose[*cpu.CPUBackend](f.layer, nn.WithMaskSource(source), nn.WithLogger(log))
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			log.Info("layer decomposed",
				"path", path,
				"segments", len(sparse.Segments()),
				"active_channels", sparse.ActiveChannels(),
				"out_channels", sparse.OutChannels())

			if out != "" {
				if err := nn.SaveState[*cpu.CPUBackend](out, sparse, map[string]string{"source": path}); err != nil {
					return err
				}
				if manifest == "" {
					manifest = strings.TrimSuffix(out, ".safetensors") + ".json"
				}
			}
			if manifest != "" {
				m := newManifest(path, source, sparse)
				m.State = out
				if err := m.WriteFile(manifest); err != nil {
					return err
				}
				log.Info("manifest written", "path", manifest, "id", m.ID)
			}

			_, err = fmt.Fprintln(a.out, sparse.String())
			return err
		},
	}
}
