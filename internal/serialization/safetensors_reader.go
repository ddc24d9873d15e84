package serialization

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/goccy/go-json"

	"github.com/born-ml/sparseconv/internal/tensor"
)

// File is a decoded SafeTensors file.
type File struct {
	Metadata map[string]string
	Tensors  map[string]*tensor.RawTensor
}

// Tensor returns the named tensor, or ErrMissingTensor.
func (f *File) Tensor(name string) (*tensor.RawTensor, error) {
	raw, ok := f.Tensors[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingTensor, name)
	}
	return raw, nil
}

// Read decodes a SafeTensors stream, placing tensors on device.
//
// The header size is capped at MaxHeaderSize, every tensor range is checked
// against the data section, and the checksum is verified when present.
func Read(r io.Reader, device tensor.Device) (*File, error) {
	var headerSize uint64
	if err := binary.Read(r, binary.LittleEndian, &headerSize); err != nil {
		return nil, fmt.Errorf("failed to read header size: %w", err)
	}
	if headerSize > MaxHeaderSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrHeaderTooLarge, headerSize)
	}

	headerBytes := make([]byte, headerSize)
	if _, err := io.ReadFull(r, headerBytes); err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	var entries map[string]json.RawMessage
	if err := json.Unmarshal(headerBytes, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse header JSON: %w", err)
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read tensor data: %w", err)
	}

	f := &File{
		Metadata: map[string]string{},
		Tensors:  make(map[string]*tensor.RawTensor, len(entries)),
	}
	if meta, ok := entries[MetadataKey]; ok {
		if err := json.Unmarshal(meta, &f.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
		delete(entries, MetadataKey)
	}

	if sum, ok := f.Metadata[ChecksumKey]; ok {
		if err := ValidateChecksum(data, sum); err != nil {
			return nil, err
		}
	}

	infos := make(map[string]TensorInfo, len(entries))
	spans := make([]span, 0, len(entries))
	for name, msg := range entries {
		if err := ValidateTensorName(name); err != nil {
			return nil, err
		}
		var info TensorInfo
		if err := json.Unmarshal(msg, &info); err != nil {
			return nil, fmt.Errorf("failed to unmarshal tensor %s: %w", name, err)
		}
		infos[name] = info
		spans = append(spans, span{name: name, start: info.DataOffsets[0], end: info.DataOffsets[1]})
	}
	if err := validateSpans(spans, int64(len(data))); err != nil {
		return nil, err
	}

	for name, info := range infos {
		raw, err := decodeTensor(name, info, data, device)
		if err != nil {
			return nil, err
		}
		f.Tensors[name] = raw
	}
	return f, nil
}

// ReadFile reads a SafeTensors file from path.
func ReadFile(path string, device tensor.Device) (*File, error) {
	//nolint:gosec // G304: File path comes from user input, which is expected for model loading
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer func() {
		_ = file.Close() // Read-only; close errors carry no information
	}()

	return Read(file, device)
}

func decodeTensor(name string, info TensorInfo, data []byte, device tensor.Device) (*tensor.RawTensor, error) {
	dtype, err := safeTensorsToDType(info.DType)
	if err != nil {
		return nil, fmt.Errorf("tensor %s: %w", name, err)
	}

	size := info.DataOffsets[1] - info.DataOffsets[0]
	need, ok := byteSize(info.Shape, dtype.Size())
	if !ok || need != size {
		return nil, &ValidationError{
			Err:     ErrShapeMismatch,
			Tensor:  name,
			Details: fmt.Sprintf("shape %v does not fit %d data bytes", info.Shape, size),
		}
	}

	shape := make(tensor.Shape, len(info.Shape))
	for i, dim := range info.Shape {
		shape[i] = int(dim)
	}
	raw, err := tensor.NewRaw(shape, dtype, device)
	if err != nil {
		return nil, fmt.Errorf("tensor %s: %w: %w", name, ErrShapeMismatch, err)
	}
	copy(raw.Data(), data[info.DataOffsets[0]:info.DataOffsets[1]])
	return raw, nil
}

// byteSize returns the byte length of a tensor with the given shape. It
// reports false for a non-positive dimension or a size that overflows int.
func byteSize(shape []int64, elemSize int) (int64, bool) {
	limit := int64(math.MaxInt / elemSize)
	n := int64(1)
	for _, dim := range shape {
		if dim <= 0 || dim > limit/n {
			return 0, false
		}
		n *= dim
	}
	return n * int64(elemSize), true
}

// safeTensorsToDType converts a SafeTensors dtype string to tensor.DataType.
func safeTensorsToDType(code string) (tensor.DataType, error) {
	switch code {
	case "F32":
		return tensor.Float32, nil
	case "F64":
		return tensor.Float64, nil
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedDType, code)
	}
}
