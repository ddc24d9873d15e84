package main

import (
	"context"
	"fmt"
	"io"

	"github.com/urfave/cli/v3"

	"github.com/born-ml/sparseconv/internal/logger"
)

// app holds the state shared by every command.
type app struct {
	out    io.Writer
	errOut io.Writer

	configFile string
	logLevel   string
	logFormat  string

	cfg Config
}

func newApp(out, errOut io.Writer) *cli.Command {
	a := &app{out: out, errOut: errOut}

	return &cli.Command{
		Name:    "sparseconv",
		Usage:   "Soft-masked convolution pruning and decomposition",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Usage:       "path to config.yaml (default: $XDG_CONFIG_HOME/sparseconv/config.yaml)",
				Destination: &a.configFile,
			},
			&cli.StringFlag{
				Name:        "log-level",
				Usage:       "log level (debug, info, warn, error)",
				Value:       "info",
				Destination: &a.logLevel,
			},
			&cli.StringFlag{
				Name:        "log-format",
				Usage:       "log format (text, json)",
				Value:       "text",
				Destination: &a.logFormat,
			},
		},
		Before: a.before,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return cli.ShowAppHelp(cmd)
		},
		Commands: []*cli.Command{
			a.initCmd(),
			a.pruneCmd(),
			a.checkpointCmd(),
			a.rewindCmd(),
			a.inspectCmd(),
			a.decomposeCmd(),
			a.manifestCmd(),
			a.versionCmd(),
		},
	}
}

// before loads the config file and installs the logger in the context.
func (a *app) before(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	path := a.configFile
	explicit := cmd.IsSet("config")
	if !explicit {
		path = configPath()
	}

	cfg, err := LoadConfig(path, explicit)
	if err != nil {
		return ctx, err
	}
	a.cfg = cfg
	applyLogConfig(cmd, cfg, &a.logLevel, &a.logFormat)

	switch a.logFormat {
	case "text", "json":
	default:
		return ctx, fmt.Errorf("unknown log format %q", a.logFormat)
	}

	log := logger.ForFormat(a.logFormat, a.errOut, logger.ParseLevel(a.logLevel))
	return logger.WithContext(ctx, log), nil
}

func (a *app) versionCmd() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Print version information",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			_, err := fmt.Fprintf(a.out, "sparseconv %s\n", version)
			return err
		},
	}
}
