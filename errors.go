package cbuffer

import (
	"errors"
	"fmt"
)

var (
	// ErrAllocation is matched by every AllocationError.
	ErrAllocation = errors.New("cbuffer: allocation failed")
	// ErrIndexOutOfRange is matched by every IndexOutOfRangeError.
	ErrIndexOutOfRange = errors.New("cbuffer: index out of range")
)

// AllocationError is returned when storage for a buffer could not be
// allocated or reallocated. Use errors.Is(err, ErrAllocation) to detect it.
type AllocationError struct {
	// Count is the number of elements that was requested.
	Count int
	// ElemSize is the size of a single element in bytes.
	ElemSize uintptr
	// Err is the underlying cause, if any.
	Err error
}

func newAllocationError(count int, elemSize uintptr, err error) *AllocationError {
	return &AllocationError{
		Count:    count,
		ElemSize: elemSize,
		Err:      err,
	}
}

func (e *AllocationError) Error() string {
	msg := fmt.Sprintf("cbuffer: failed to allocate %d elements of %d bytes", e.Count, e.ElemSize)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *AllocationError) Is(target error) bool { return target == ErrAllocation }

func (e *AllocationError) Unwrap() error { return e.Err }

// IndexOutOfRangeError is returned by checked element access when the index
// is outside [0, Count). Use errors.Is(err, ErrIndexOutOfRange) to detect it.
type IndexOutOfRangeError struct {
	Index int
	Count int
}

func (e *IndexOutOfRangeError) Error() string {
	return fmt.Sprintf("cbuffer: index %d out of range [0:%d]", e.Index, e.Count)
}

func (e *IndexOutOfRangeError) Is(target error) bool { return target == ErrIndexOutOfRange }
