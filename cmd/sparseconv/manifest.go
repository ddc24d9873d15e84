package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/urfave/cli/v3"

	"github.com/born-ml/sparseconv/internal/backend/cpu"
	"github.com/born-ml/sparseconv/internal/logger"
	"github.com/born-ml/sparseconv/internal/nn"
)

// Manifest describes a decomposed layer: where it came from and how its
// output channels map to segments.
type Manifest struct {
	ID             string            `json:"id"`
	CreatedAt      time.Time         `json:"created_at"`
	Source         string            `json:"source"`
	State          string            `json:"state,omitempty"`
	MaskSource     string            `json:"mask_source"`
	InChannels     int               `json:"in_channels"`
	OutChannels    int               `json:"out_channels"`
	ActiveChannels int               `json:"active_channels"`
	Segments       []ManifestSegment `json:"segments"`
}

// ManifestSegment is one segment of a decomposition.
type ManifestSegment struct {
	Tag        string `json:"tag"`
	Kind       string `json:"kind"` // "conv" or "zero"
	Start      int    `json:"start"`
	End        int    `json:"end"`
	InputStart int    `json:"input_start,omitempty"`
	InputCount int    `json:"input_channels,omitempty"`
	Module     string `json:"module"`
}

func newManifest(source string, maskSource nn.MaskSource, sparse *nn.SparseConv[*cpu.CPUBackend]) *Manifest {
	m := &Manifest{
		ID:             uuid.NewString(),
		CreatedAt:      time.Now().UTC(),
		Source:         source,
		MaskSource:     maskSource.String(),
		InChannels:     sparse.InChannels(),
		OutChannels:    sparse.OutChannels(),
		ActiveChannels: sparse.ActiveChannels(),
	}

	for _, seg := range sparse.Segments() {
		run := seg.Run()
		entry := ManifestSegment{
			Tag:   seg.Tag(),
			Kind:  "zero",
			Start: run.Start,
			End:   run.End,
		}
		if s, ok := seg.(fmt.Stringer); ok {
			entry.Module = s.String()
		}
		if active, ok := seg.(*nn.ActiveSegment[*cpu.CPUBackend]); ok {
			entry.Kind = "conv"
			entry.InputStart, entry.InputCount = active.InputWindow()
		}
		m.Segments = append(m.Segments, entry)
	}
	return m
}

// WriteFile writes the manifest as indented JSON.
func (m *Manifest) WriteFile(path string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o600); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

// readManifest reads a manifest written by WriteFile.
func readManifest(path string) (*Manifest, error) {
	//nolint:gosec // G304: manifest path is chosen by the user
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	if _, err := uuid.Parse(m.ID); err != nil {
		return nil, fmt.Errorf("manifest id %q: %w", m.ID, err)
	}
	return &m, nil
}

// write prints the manifest as a summary followed by one line per segment.
func (m *Manifest) write(w io.Writer) error {
	state := m.State
	if state == "" {
		state = "-"
	}
	if _, err := fmt.Fprintf(w,
		"id:          %s\n"+
			"created:     %s\n"+
			"source:      %s\n"+
			"state:       %s\n"+
			"mask source: %s\n"+
			"active:      %d/%d channels (in_channels=%d)\n",
		m.ID, m.CreatedAt.Format(time.RFC3339), m.Source, state, m.MaskSource,
		m.ActiveChannels, m.OutChannels, m.InChannels); err != nil {
		return err
	}
	for _, seg := range m.Segments {
		if _, err := fmt.Fprintf(w, "  %-6s [%d, %d) %s\n", seg.Tag, seg.Start, seg.End, seg.Module); err != nil {
			return err
		}
	}
	return nil
}

func (a *app) manifestCmd() *cli.Command {
	return &cli.Command{
		Name:      "manifest",
		Usage:     "Show a decomposition manifest",
		ArgsUsage: "<manifest.json>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() != 1 {
				return fmt.Errorf("expected one manifest path, got %d arguments", cmd.Args().Len())
			}
			path := cmd.Args().First()

			m, err := readManifest(path)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			logger.FromContext(ctx).Debug("manifest read", "path", path, "id", m.ID, "segments", len(m.Segments))
			return m.write(a.out)
		},
	}
}
