package main

import (
	"fmt"
	"strconv"

	"github.com/born-ml/sparseconv/internal/backend/cpu"
	"github.com/born-ml/sparseconv/internal/nn"
	"github.com/born-ml/sparseconv/internal/serialization"
	"github.com/born-ml/sparseconv/internal/tensor"
)

type layer = nn.SoftMaskedConv2D[*cpu.CPUBackend]

// Metadata keys describing a stored layer.
const (
	metaInChannels  = "in_channels"
	metaOutChannels = "out_channels"
	metaKernelSize  = "kernel_size"
	metaPadding     = "padding"
	metaStride      = "stride"
	metaMaskInit    = "mask_initial_value"
	metaPruneSteps  = "prune_steps"
	metaCheckpoint  = "checkpointed"
)

// layerFile is a layer together with the lifecycle metadata stored beside it.
type layerFile struct {
	layer      *layer
	pruneSteps int
	checkpoint bool
}

func newLayerFile(g geometry, backend *cpu.CPUBackend) (*layerFile, error) {
	l, err := nn.NewSoftMaskedConv2D(g.in, g.out, g.kernel, g.padding, g.stride, float32(g.maskInit), backend)
	if err != nil {
		return nil, err
	}
	return &layerFile{layer: l}, nil
}

func (f *layerFile) metadata() map[string]string {
	l := f.layer
	return map[string]string{
		metaInChannels:  strconv.Itoa(l.InChannels()),
		metaOutChannels: strconv.Itoa(l.OutChannels()),
		metaKernelSize:  strconv.Itoa(l.KernelSize()),
		metaPadding:     strconv.Itoa(l.Padding()),
		metaStride:      strconv.Itoa(l.Stride()),
		metaMaskInit:    strconv.FormatFloat(float64(l.MaskInitialValue()), 'g', -1, 32),
		metaPruneSteps:  strconv.Itoa(f.pruneSteps),
		metaCheckpoint:  strconv.FormatBool(f.checkpoint),
	}
}

func (f *layerFile) save(path string) error {
	return nn.SaveState[*cpu.CPUBackend](path, f.layer, f.metadata())
}

// loadLayerFile rebuilds a layer from the geometry in the file metadata and
// loads its tensors.
func loadLayerFile(path string, backend *cpu.CPUBackend) (*layerFile, error) {
	file, err := serialization.ReadFile(path, tensor.CPU)
	if err != nil {
		return nil, fmt.Errorf("load layer: %w", err)
	}

	meta := metaReader{meta: file.Metadata}
	g := geometry{
		in:       meta.getInt(metaInChannels),
		out:      meta.getInt(metaOutChannels),
		kernel:   meta.getInt(metaKernelSize),
		padding:  meta.getInt(metaPadding),
		stride:   meta.getInt(metaStride),
		maskInit: meta.getFloat(metaMaskInit),
	}
	f := &layerFile{
		pruneSteps: meta.optionalInt(metaPruneSteps),
		checkpoint: meta.optionalBool(metaCheckpoint),
	}
	if meta.err != nil {
		return nil, fmt.Errorf("load layer %s: %w", path, meta.err)
	}

	f.layer, err = nn.NewSoftMaskedConv2D(g.in, g.out, g.kernel, g.padding, g.stride, float32(g.maskInit), backend)
	if err != nil {
		return nil, fmt.Errorf("load layer %s: %w", path, err)
	}
	if err := f.layer.LoadStateDict(file.Tensors); err != nil {
		return nil, fmt.Errorf("load layer %s: %w", path, err)
	}
	return f, nil
}

// metaReader parses metadata values, keeping the first error.
type metaReader struct {
	meta map[string]string
	err  error
}

func (r *metaReader) lookup(key string) (string, bool) {
	v, ok := r.meta[key]
	if !ok && r.err == nil {
		r.err = fmt.Errorf("missing metadata %q", key)
	}
	return v, ok
}

func (r *metaReader) getInt(key string) int {
	v, ok := r.lookup(key)
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil && r.err == nil {
		r.err = fmt.Errorf("metadata %q: %w", key, err)
	}
	return n
}

func (r *metaReader) getFloat(key string) float64 {
	v, ok := r.lookup(key)
	if !ok {
		return 0
	}
	x, err := strconv.ParseFloat(v, 32)
	if err != nil && r.err == nil {
		r.err = fmt.Errorf("metadata %q: %w", key, err)
	}
	return x
}

func (r *metaReader) optionalInt(key string) int {
	if _, ok := r.meta[key]; !ok {
		return 0
	}
	return r.getInt(key)
}

func (r *metaReader) optionalBool(key string) bool {
	v, ok := r.meta[key]
	if !ok {
		return false
	}
	b, err := strconv.ParseBool(v)
	if err != nil && r.err == nil {
		r.err = fmt.Errorf("metadata %q: %w", key, err)
	}
	return b
}
