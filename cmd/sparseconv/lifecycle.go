package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/born-ml/sparseconv/internal/backend/cpu"
	"github.com/born-ml/sparseconv/internal/logger"
)

func (a *app) initCmd() *cli.Command {
	var (
		path  string
		force bool
		g     geometry
	)

	return &cli.Command{
		Name:  "init",
		Usage: "Create a new soft-masked convolution layer",
		Flags: append(geometryFlags(&g),
			layerFlag(&path),
			&cli.BoolFlag{Name: "force", Aliases: []string{"f"}, Usage: "overwrite an existing file", Destination: &force},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			applyGeometryConfig(cmd, a.cfg, &g)

			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}

			f, err := newLayerFile(g, cpu.New())
			if err != nil {
				return err
			}
			if err := f.save(path); err != nil {
				return err
			}

			log.Info("layer created", "path", path, "layer", f.layer.String())
			_, err = fmt.Fprintln(a.out, f.layer.String())
			return err
		},
	}
}

func (a *app) pruneCmd() *cli.Command {
	var (
		path        string
		temperature float64
		steps       int
	)

	return &cli.Command{
		Name:  "prune",
		Usage: "Update mask logits to min(temperature * logits, mask initial value)",
		Flags: []cli.Flag{
			layerFlag(&path),
			&cli.Float64Flag{
				Name:        "temperature",
				Aliases:     []string{"t"},
				Usage:       "pruning temperature",
				Value:       1,
				Destination: &temperature,
			},
			&cli.IntFlag{Name: "steps", Usage: "number of pruning updates", Value: 1, Destination: &steps},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if a.cfg.Temperature != nil && !cmd.IsSet("temperature") {
				temperature = *a.cfg.Temperature
			}
			if steps < 1 {
				return fmt.Errorf("steps must be positive, got %d", steps)
			}

			return a.update(ctx, path, "pruned", func(f *layerFile) error {
				for range steps {
					if err := f.layer.Prune(float32(temperature)); err != nil {
						return err
					}
					f.pruneSteps++
				}
				return nil
			}, "temperature", temperature, "steps", steps)
		},
	}
}

func (a *app) checkpointCmd() *cli.Command {
	var path string

	return &cli.Command{
		Name:  "checkpoint",
		Usage: "Snapshot the current weights for a later rewind",
		Flags: []cli.Flag{layerFlag(&path)},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return a.update(ctx, path, "checkpointed", func(f *layerFile) error {
				if err := f.layer.Checkpoint(); err != nil {
					return err
				}
				f.checkpoint = true
				return nil
			})
		},
	}
}

func (a *app) rewindCmd() *cli.Command {
	var path string

	return &cli.Command{
		Name:  "rewind",
		Usage: "Restore the weights saved by checkpoint, keeping the mask",
		Flags: []cli.Flag{layerFlag(&path)},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return a.update(ctx, path, "rewound", func(f *layerFile) error {
				if !f.checkpoint {
					logger.FromContext(ctx).Warn("rewinding a layer that was never checkpointed", "path", path)
				}
				return f.layer.RewindWeights()
			})
		},
	}
}

// update loads the layer at path, applies fn and writes it back.
func (a *app) update(ctx context.Context, path, action string, fn func(*layerFile) error, logArgs ...any) error {
	log := logger.FromContext(ctx)

	f, err := loadLayerFile(path, cpu.New())
	if err != nil {
		return err
	}
	if err := fn(f); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	if err := f.save(path); err != nil {
		return err
	}

	log.Info("layer "+action, append([]any{"path", path}, logArgs...)...)
	_, err = fmt.Fprintf(a.out, "%s: %s\n", path, action)
	return err
}
