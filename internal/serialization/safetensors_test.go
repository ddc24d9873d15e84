package serialization

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/sparseconv/internal/tensor"
)

func rawFloat32(t *testing.T, shape tensor.Shape, values ...float32) *tensor.RawTensor {
	t.Helper()
	raw, err := tensor.NewRaw(shape, tensor.Float32, tensor.CPU)
	require.NoError(t, err)
	copy(raw.AsFloat32(), values)
	return raw
}

func TestRoundTrip(t *testing.T) {
	weight := rawFloat32(t, tensor.Shape{2, 1, 1, 2}, 1, -2, 3, -4)
	f64, err := tensor.NewRaw(tensor.Shape{3}, tensor.Float64, tensor.CPU)
	require.NoError(t, err)
	copy(f64.AsFloat64(), []float64{0.5, 1.5, 2.5})

	var buf bytes.Buffer
	err = Write(&buf, map[string]*tensor.RawTensor{
		"weight":      weight,
		"mask_weight": f64,
	}, map[string]string{"kind": "test"})
	require.NoError(t, err)

	f, err := Read(&buf, tensor.CPU)
	require.NoError(t, err)

	assert.Equal(t, "test", f.Metadata["kind"])
	assert.NotEmpty(t, f.Metadata[ChecksumKey])
	require.Len(t, f.Tensors, 2)

	got, err := f.Tensor("weight")
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{2, 1, 1, 2}, got.Shape())
	assert.Equal(t, []float32{1, -2, 3, -4}, got.AsFloat32())

	got, err = f.Tensor("mask_weight")
	require.NoError(t, err)
	assert.Equal(t, tensor.Float64, got.DType())
	assert.Equal(t, []float64{0.5, 1.5, 2.5}, got.AsFloat64())

	_, err = f.Tensor("bias")
	assert.ErrorIs(t, err, ErrMissingTensor)
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "layer.safetensors")
	tensors := map[string]*tensor.RawTensor{"w": rawFloat32(t, tensor.Shape{2}, 7, 8)}

	require.NoError(t, WriteFile(path, tensors, nil))

	f, err := ReadFile(path, tensor.CPU)
	require.NoError(t, err)
	assert.Equal(t, []float32{7, 8}, f.Tensors["w"].AsFloat32())
}

func TestReadFile_Missing(t *testing.T) {
	_, err := ReadFile(filepath.Join(t.TempDir(), "nope.safetensors"), tensor.CPU)
	assert.Error(t, err)
}

func TestWrite_DeterministicOrder(t *testing.T) {
	tensors := map[string]*tensor.RawTensor{
		"b": rawFloat32(t, tensor.Shape{1}, 2),
		"a": rawFloat32(t, tensor.Shape{1}, 1),
		"c": rawFloat32(t, tensor.Shape{1}, 3),
	}

	var first, second bytes.Buffer
	require.NoError(t, Write(&first, tensors, nil))
	require.NoError(t, Write(&second, tensors, nil))
	assert.Equal(t, first.Bytes(), second.Bytes())

	// Data section follows the header in name order.
	data := first.Bytes()
	size := binary.LittleEndian.Uint64(data[:8])
	f, err := Read(bytes.NewReader(data), tensor.CPU)
	require.NoError(t, err)
	assert.Equal(t, []float32{1}, f.Tensors["a"].AsFloat32())
	assert.Len(t, data[8+size:], 12)
}

func TestWrite_InvalidName(t *testing.T) {
	var buf bytes.Buffer
	err := Write(&buf, map[string]*tensor.RawTensor{
		"../escape": rawFloat32(t, tensor.Shape{1}, 1),
	}, nil)
	assert.ErrorIs(t, err, ErrInvalidTensorName)
}

func TestRead_ChecksumMismatch(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, map[string]*tensor.RawTensor{
		"w": rawFloat32(t, tensor.Shape{2}, 1, 2),
	}, nil))

	data := buf.Bytes()
	data[len(data)-1] ^= 0xFF

	_, err := Read(bytes.NewReader(data), tensor.CPU)
	assert.ErrorIs(t, err, ErrChecksumMismatch)
}

// encode builds a file from a raw JSON header and data, without a checksum.
func encode(header string, data []byte) []byte {
	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.LittleEndian, uint64(len(header)))
	buf.WriteString(header)
	buf.Write(data)
	return buf.Bytes()
}

func TestRead_Validation(t *testing.T) {
	tests := []struct {
		name   string
		header string
		data   []byte
		want   error
	}{
		{
			name:   "out of bounds",
			header: `{"w":{"dtype":"F32","shape":[2],"data_offsets":[0,8]}}`,
			data:   make([]byte, 4),
			want:   ErrOutOfBounds,
		},
		{
			name:   "overlap",
			header: `{"a":{"dtype":"F32","shape":[2],"data_offsets":[0,8]},"b":{"dtype":"F32","shape":[2],"data_offsets":[4,12]}}`,
			data:   make([]byte, 12),
			want:   ErrOffsetOverlap,
		},
		{
			name:   "size does not match shape",
			header: `{"w":{"dtype":"F32","shape":[3],"data_offsets":[0,8]}}`,
			data:   make([]byte, 8),
			want:   ErrShapeMismatch,
		},
		{
			name:   "shape larger than data",
			header: `{"w":{"dtype":"F32","shape":[35184372088832],"data_offsets":[0,4]}}`,
			data:   make([]byte, 4),
			want:   ErrShapeMismatch,
		},
		{
			name:   "element count overflows",
			header: `{"w":{"dtype":"F32","shape":[4611686018427387904,2],"data_offsets":[0,0]}}`,
			want:   ErrShapeMismatch,
		},
		{
			name:   "zero dimension",
			header: `{"w":{"dtype":"F32","shape":[0,2],"data_offsets":[0,0]}}`,
			want:   ErrShapeMismatch,
		},
		{
			name:   "unsupported dtype",
			header: `{"w":{"dtype":"BF16","shape":[2],"data_offsets":[0,4]}}`,
			data:   make([]byte, 4),
			want:   ErrUnsupportedDType,
		},
		{
			name:   "path in name",
			header: `{"a/b":{"dtype":"F32","shape":[1],"data_offsets":[0,4]}}`,
			data:   make([]byte, 4),
			want:   ErrInvalidTensorName,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Read(bytes.NewReader(encode(tt.header, tt.data)), tensor.CPU)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestRead_HeaderTooLarge(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, uint64(MaxHeaderSize+1)))

	_, err := Read(&buf, tensor.CPU)
	assert.ErrorIs(t, err, ErrHeaderTooLarge)
}

func TestRead_Truncated(t *testing.T) {
	_, err := Read(bytes.NewReader([]byte{1, 2, 3}), tensor.CPU)
	assert.Error(t, err)

	_, err = Read(bytes.NewReader(encode(`{"w":`, nil)), tensor.CPU)
	assert.Error(t, err)
}

func TestValidationError_Message(t *testing.T) {
	err := &ValidationError{Err: ErrOffsetOverlap, Tensor: "a", Tensor2: "b", Details: "x"}
	assert.Contains(t, err.Error(), `"a" and "b"`)
	assert.ErrorIs(t, err, ErrOffsetOverlap)

	err = &ValidationError{Err: ErrInvalidTensorName, Details: "empty name"}
	assert.Equal(t, "invalid tensor name: empty name", err.Error())
}

func TestValidateTensorName(t *testing.T) {
	assert.NoError(t, ValidateTensorName("s0.conv.weight"))
	assert.ErrorIs(t, ValidateTensorName(""), ErrInvalidTensorName)
	assert.ErrorIs(t, ValidateTensorName("a\x00b"), ErrInvalidTensorName)
	assert.ErrorIs(t, ValidateTensorName(string(make([]byte, MaxTensorNameLen+1))), ErrInvalidTensorName)
}

func TestChecksum(t *testing.T) {
	sum := ComputeChecksum([]byte("abc"))
	assert.Len(t, sum, 64)
	assert.NoError(t, ValidateChecksum([]byte("abc"), sum))
	assert.ErrorIs(t, ValidateChecksum([]byte("abd"), sum), ErrChecksumMismatch)
}

func TestWriteFile_BadDir(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o600))

	err := WriteFile(filepath.Join(blocker, "x.safetensors"), nil, nil)
	assert.Error(t, err)
}
