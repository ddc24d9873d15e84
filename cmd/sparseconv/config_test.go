package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/sparseconv/internal/backend/cpu"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
in_channels: 4
out_channels: 6
kernel_size: 5
mask_initial_value: -3
temperature: 0.5
ticket: false
mask_source: recompute-hard
log_level: debug
`)
	cfg, err := LoadConfig(path, true)
	require.NoError(t, err)

	require.NotNil(t, cfg.InChannels)
	assert.Equal(t, 4, *cfg.InChannels)
	assert.Equal(t, 6, *cfg.OutChannels)
	assert.Equal(t, 5, *cfg.KernelSize)
	assert.Nil(t, cfg.Padding)
	assert.Equal(t, -3.0, *cfg.MaskInitialValue)
	assert.Equal(t, 0.5, *cfg.Temperature)
	assert.False(t, *cfg.Ticket)
	assert.Equal(t, "recompute-hard", cfg.MaskSource)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadConfig_Missing(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope.yaml")

	cfg, err := LoadConfig(missing, false)
	require.NoError(t, err)
	assert.Equal(t, Config{}, cfg)

	_, err = LoadConfig(missing, true)
	assert.Error(t, err)

	cfg, err = LoadConfig("", false)
	require.NoError(t, err)
	assert.Equal(t, Config{}, cfg)
}

func TestLoadConfig_Malformed(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, "in_channels: [1, 2\n"), true)
	assert.ErrorContains(t, err, "parse config")
}

func TestConfig_DefaultsAndFlagOverride(t *testing.T) {
	cfgPath := writeConfig(t, "in_channels: 4\nout_channels: 6\nkernel_size: 1\npadding: 0\nmask_initial_value: -3\n")
	path := filepath.Join(t.TempDir(), "layer.safetensors")

	// --out is explicit and wins over the config file.
	mustRun(t, "--config", cfgPath, "init", "--layer", path, "--out", "2")

	f, err := loadLayerFile(path, cpu.New())
	require.NoError(t, err)
	assert.Equal(t, 4, f.layer.InChannels())
	assert.Equal(t, 2, f.layer.OutChannels())
	assert.Equal(t, 1, f.layer.KernelSize())
	assert.Equal(t, 0, f.layer.Padding())
	assert.Equal(t, float32(-3), f.layer.MaskInitialValue())
}

func TestConfig_DefaultLocation(t *testing.T) {
	home := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(home, "sparseconv"), 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(home, "sparseconv", "config.yaml"), []byte("out_channels: 7\n"), 0o600))

	path := filepath.Join(t.TempDir(), "layer.safetensors")
	app := newApp(os.Stdout, os.Stderr)
	t.Setenv("XDG_CONFIG_HOME", home)
	require.NoError(t, app.Run(context.Background(), []string{"sparseconv", "init", "--layer", path}))

	f, err := loadLayerFile(path, cpu.New())
	require.NoError(t, err)
	assert.Equal(t, 7, f.layer.OutChannels())
}

func TestConfig_ExplicitMissingFails(t *testing.T) {
	_, _, err := run(t, "--config", filepath.Join(t.TempDir(), "missing.yaml"), "version")
	assert.ErrorContains(t, err, "read config")
}
