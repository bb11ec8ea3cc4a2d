//go:build linux || darwin || freebsd || netbsd || openbsd

package cbuffer

import (
	"errors"
	"fmt"
	"math"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// MmapAllocator allocates storage in anonymous private memory mappings. The
// kernel zeroes new mappings and every allocation is page aligned.
type MmapAllocator struct{}

var _ Allocator = MmapAllocator{}

func (MmapAllocator) Allocate(size, align uintptr) (unsafe.Pointer, error) {
	if err := checkMmapRequest(size, align); err != nil {
		return nil, err
	}

	data, err := unix.Mmap(-1, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("failed to map %d bytes: %w", size, err)
	}
	return unsafe.Pointer(unsafe.SliceData(data)), nil
}

// Reallocate maps a new region, copies the preserved bytes and unmaps the old
// region.
func (a MmapAllocator) Reallocate(ptr unsafe.Pointer, oldSize, newSize, align uintptr) (unsafe.Pointer, error) {
	newPtr, err := a.Allocate(newSize, align)
	if err != nil {
		return nil, err
	}

	copy(unsafe.Slice((*byte)(newPtr), newSize), unsafe.Slice((*byte)(ptr), min(oldSize, newSize)))

	if err := a.Free(ptr, oldSize); err != nil {
		// Keep the old region valid, drop the new one.
		_ = a.Free(newPtr, newSize)
		return nil, err
	}
	return newPtr, nil
}

func (MmapAllocator) Free(ptr unsafe.Pointer, size uintptr) error {
	if ptr == nil || size == 0 {
		return nil
	}
	// unix.Munmap finds the mapping by its first and last byte, so a slice
	// rebuilt from the pointer and size identifies it.
	if err := unix.Munmap(unsafe.Slice((*byte)(ptr), size)); err != nil {
		return fmt.Errorf("failed to unmap %d bytes: %w", size, err)
	}
	return nil
}

func checkMmapRequest(size, align uintptr) error {
	if size == 0 {
		return errors.New("invalid mapping size 0")
	}
	if size > math.MaxInt {
		return fmt.Errorf("mapping size %d exceeds %d", size, math.MaxInt)
	}
	if pageSize := uintptr(os.Getpagesize()); align > pageSize {
		return fmt.Errorf("alignment %d exceeds the page size %d", align, pageSize)
	}
	return nil
}
