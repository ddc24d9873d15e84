package serialization

import (
	"fmt"
	"sort"
	"strings"
)

// Validation limits for resource protection.
const (
	MaxHeaderSize    = 100 * 1024 * 1024 // 100MB - maximum header size
	MaxTensorCount   = 100_000           // Maximum number of tensors in a file
	MaxTensorNameLen = 4096              // Maximum tensor name length
)

// span is the byte range of one tensor in the data section.
type span struct {
	name       string
	start, end int64
}

// validateSpans checks for negative, out-of-bounds and overlapping ranges.
func validateSpans(spans []span, dataSize int64) error {
	if len(spans) > MaxTensorCount {
		return &ValidationError{
			Err:     ErrTooManyTensors,
			Details: fmt.Sprintf("got %d, max %d", len(spans), MaxTensorCount),
		}
	}

	sorted := append([]span(nil), spans...)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].start < sorted[j].start
	})

	for i, s := range sorted {
		if s.start < 0 || s.end < s.start || s.end > dataSize {
			return &ValidationError{
				Err:     ErrOutOfBounds,
				Tensor:  s.name,
				Details: fmt.Sprintf("range [%d, %d) outside data section of %d bytes", s.start, s.end, dataSize),
			}
		}
		if i < len(sorted)-1 {
			next := sorted[i+1]
			if s.end > next.start {
				return &ValidationError{
					Err:     ErrOffsetOverlap,
					Tensor:  s.name,
					Tensor2: next.name,
					Details: fmt.Sprintf("regions [%d-%d] and [%d-%d] overlap", s.start, s.end, next.start, next.end),
				}
			}
		}
	}
	return nil
}

// ValidateTensorName rejects empty, oversized, path-like and NUL-containing names.
func ValidateTensorName(name string) error {
	switch {
	case name == "":
		return &ValidationError{Err: ErrInvalidTensorName, Details: "empty name"}
	case len(name) > MaxTensorNameLen:
		return &ValidationError{
			Err:     ErrInvalidTensorName,
			Tensor:  name,
			Details: fmt.Sprintf("length %d > max %d", len(name), MaxTensorNameLen),
		}
	case strings.Contains(name, ".."):
		return &ValidationError{Err: ErrInvalidTensorName, Tensor: name, Details: "contains '..'"}
	case strings.ContainsAny(name, "/\\"):
		return &ValidationError{Err: ErrInvalidTensorName, Tensor: name, Details: "contains path separator"}
	case strings.Contains(name, "\x00"):
		return &ValidationError{Err: ErrInvalidTensorName, Tensor: name, Details: "contains null byte"}
	}
	return nil
}
