package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

// Config represents the sparseconv configuration file
// (~/.config/sparseconv/config.yaml). Pointer fields distinguish "not set"
// from zero values.
type Config struct {
	// Layer geometry used by init
	InChannels       *int     `yaml:"in_channels"`
	OutChannels      *int     `yaml:"out_channels"`
	KernelSize       *int     `yaml:"kernel_size"`
	Padding          *int     `yaml:"padding"`
	Stride           *int     `yaml:"stride"`
	MaskInitialValue *float64 `yaml:"mask_initial_value"`

	// Mask evaluation
	Temperature *float64 `yaml:"temperature"`
	Ticket      *bool    `yaml:"ticket"`
	MaskSource  string   `yaml:"mask_source"`

	// Output
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

func configPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "sparseconv", "config.yaml")
}

// LoadConfig reads the config file at path. A missing file yields a zero
// Config unless required is set.
func LoadConfig(path string, required bool) (Config, error) {
	if path == "" {
		return Config{}, nil
	}
	//nolint:gosec // G304: config path is chosen by the user
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && !required {
			return Config{}, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// applyLogConfig applies config file logging defaults when the matching
// flags were not explicitly set.
func applyLogConfig(c *cli.Command, cfg Config, level, format *string) {
	if cfg.LogLevel != "" && !c.IsSet("log-level") {
		*level = cfg.LogLevel
	}
	if cfg.LogFormat != "" && !c.IsSet("log-format") {
		*format = cfg.LogFormat
	}
}

// applyGeometryConfig applies config file geometry defaults to init.
func applyGeometryConfig(c *cli.Command, cfg Config, g *geometry) {
	setInt := func(flag string, v *int, dst *int) {
		if v != nil && !c.IsSet(flag) {
			*dst = *v
		}
	}
	setInt("in", cfg.InChannels, &g.in)
	setInt("out", cfg.OutChannels, &g.out)
	setInt("kernel", cfg.KernelSize, &g.kernel)
	setInt("padding", cfg.Padding, &g.padding)
	setInt("stride", cfg.Stride, &g.stride)
	if cfg.MaskInitialValue != nil && !c.IsSet("mask-init") {
		g.maskInit = *cfg.MaskInitialValue
	}
}

// applyMaskConfig applies config file mask evaluation defaults.
func applyMaskConfig(c *cli.Command, cfg Config, m *maskOptions) {
	if cfg.Temperature != nil && !c.IsSet("temperature") {
		m.temperature = *cfg.Temperature
	}
	if cfg.Ticket != nil && !c.IsSet("ticket") {
		m.ticket = *cfg.Ticket
	}
	if cfg.MaskSource != "" && !c.IsSet("mask-source") {
		m.source = cfg.MaskSource
	}
}
