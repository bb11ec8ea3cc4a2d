package cbuffer

import (
	"errors"
	"fmt"
	"reflect"
	"unsafe"
)

// Allocator provides raw memory outside of the Go heap. Implementations are
// not required to be safe for concurrent use.
type Allocator interface {
	// Allocate returns a zeroed block of size bytes aligned to align. Size is
	// never 0.
	Allocate(size, align uintptr) (unsafe.Pointer, error)
	// Reallocate resizes the block at ptr from oldSize to newSize bytes and
	// returns its (possibly moved) address. The first min(oldSize, newSize)
	// bytes are preserved, bytes past oldSize have unspecified content. If an
	// error is returned the original block must still be valid.
	Reallocate(ptr unsafe.Pointer, oldSize, newSize, align uintptr) (unsafe.Pointer, error)
	// Free releases the block at ptr with the given size.
	Free(ptr unsafe.Pointer, size uintptr) error
}

var (
	errNegativeCount = errors.New("negative element count")
	errSizeOverflow  = errors.New("size overflows uintptr")
)

// storageSize returns the number of bytes needed to store n elements of
// elemSize bytes each.
func storageSize(n int, elemSize uintptr) (uintptr, error) {
	if n < 0 {
		return 0, errNegativeCount
	}
	if elemSize != 0 && uintptr(n) > ^uintptr(0)/elemSize {
		return 0, errSizeOverflow
	}
	return uintptr(n) * elemSize, nil
}

// makeSlice allocates a zeroed slice on the Go heap, turning the runtime panic
// for impossible lengths into an error.
func makeSlice[T any](n int) (s []T, err error) {
	defer func() {
		if r := recover(); r != nil {
			s = nil
			err = fmt.Errorf("%v", r)
		}
	}()
	return make([]T, n), nil
}

// hasPointers reports whether values of type t contain Go pointers, which
// must not be stored in memory the garbage collector can't see.
func hasPointers(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Pointer, reflect.UnsafePointer, reflect.Map, reflect.Slice,
		reflect.String, reflect.Interface, reflect.Func, reflect.Chan:
		return true
	case reflect.Array:
		return t.Len() > 0 && hasPointers(t.Elem())
	case reflect.Struct:
		for i := range t.NumField() {
			if hasPointers(t.Field(i).Type) {
				return true
			}
		}
		return false
	default:
		return false
	}
}
