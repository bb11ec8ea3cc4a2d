//go:build cgo

package cbuffer

// #include <stdlib.h>
import "C"

import (
	"errors"
	"fmt"
	"unsafe"
)

// maxCAlign is the alignment malloc guarantees on all supported platforms.
const maxCAlign = 16

var errOutOfMemory = errors.New("out of memory")

// CAllocator allocates storage with the C allocator (calloc, realloc and
// free). It is only available when cgo is enabled.
type CAllocator struct{}

var _ Allocator = CAllocator{}

func (CAllocator) Allocate(size, align uintptr) (unsafe.Pointer, error) {
	if align > maxCAlign {
		return nil, fmt.Errorf("alignment %d exceeds %d", align, maxCAlign)
	}
	ptr := C.calloc(C.size_t(size), 1)
	if ptr == nil {
		return nil, errOutOfMemory
	}
	return ptr, nil
}

func (CAllocator) Reallocate(ptr unsafe.Pointer, _, newSize, align uintptr) (unsafe.Pointer, error) {
	if align > maxCAlign {
		return nil, fmt.Errorf("alignment %d exceeds %d", align, maxCAlign)
	}
	// On failure realloc leaves the original block untouched.
	newPtr := C.realloc(ptr, C.size_t(newSize))
	if newPtr == nil {
		return nil, errOutOfMemory
	}
	return newPtr, nil
}

func (CAllocator) Free(ptr unsafe.Pointer, _ uintptr) error {
	C.free(ptr)
	return nil
}
