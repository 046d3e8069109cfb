package nearest

import (
	"errors"
	"fmt"
)

// Errors
var (
	ErrInvalidDimension  = errors.New("nearest: dimensionality must be between 1 and the batch scalar budget")
	ErrDimensionMismatch = errors.New("nearest: vector dimensionality does not match assigner")
	ErrInvalidBatchSize  = errors.New("nearest: batch size must be positive")
	ErrNoCentroids       = errors.New("nearest: no centroid set has been prepared")
	ErrEmptyCentroids    = errors.New("nearest: centroid set is empty")
	ErrNilDevice         = errors.New("nearest: compute device is nil")
	ErrClosed            = errors.New("nearest: assigner is closed")
)

func dimensionError(index, got, want int) error {
	return fmt.Errorf("%w: element %d has %d coordinates, want %d", ErrDimensionMismatch, index, got, want)
}
