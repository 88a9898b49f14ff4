package dac

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidSliceSize rejects a non-positive minimum slice size.
	ErrInvalidSliceSize = errors.New("minimum slice size must be positive")

	// ErrInvalidRange rejects a range whose end lies before its start.
	ErrInvalidRange = errors.New("invalid index range")
)

// SliceError reports the failure of one slice. Its status in the returned
// array is 0.
type SliceError struct {
	Index    int
	Interval Interval
	Err      error
}

func (e *SliceError) Error() string {
	return fmt.Sprintf("slice %d %v: %v", e.Index, e.Interval, e.Err)
}

func (e *SliceError) Unwrap() error {
	return e.Err
}
