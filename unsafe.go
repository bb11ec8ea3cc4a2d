package cbuffer

import (
	"unsafe"
)

// Unsafe returns the address of the buffer's storage and its size in bytes.
// The address is nil for an empty buffer. Nothing guards the memory behind the
// address: it is invalidated by Resize and Free, and reads or writes outside
// of the returned size are undefined.
func (b *Buffer[T]) Unsafe() (unsafe.Pointer, uintptr) {
	b.copyCheck()
	if len(b.data) == 0 {
		return nil, 0
	}
	return unsafe.Pointer(unsafe.SliceData(b.data)), uintptr(b.ByteSize())
}

// UnsafeSlice returns a slice aliasing the buffer's storage. The slice is
// invalidated by Resize and Free.
func (b *Buffer[T]) UnsafeSlice() []T {
	b.copyCheck()
	return b.data
}

// UnsafeBytes returns the buffer's storage as a byte slice. The slice is
// invalidated by Resize and Free.
func (b *Buffer[T]) UnsafeBytes() []byte {
	ptr, size := b.Unsafe()
	if ptr == nil {
		return nil
	}
	return unsafe.Slice((*byte)(ptr), size)
}

// UnsafeAs reinterprets the start of the buffer's storage as a pointer to U.
// It returns nil for an empty buffer. The caller is responsible for alignment
// and for not accessing memory past ByteSize.
func UnsafeAs[U, T any](b *Buffer[T]) *U {
	ptr, _ := b.Unsafe()
	return (*U)(ptr)
}

// UnsafeSliceAs reinterprets the buffer's storage as a slice of U. The length
// of the slice is ByteSize divided by the size of U, trailing bytes that don't
// fill a whole U are not part of the slice. The caller is responsible for
// alignment.
func UnsafeSliceAs[U, T any](b *Buffer[T]) []U {
	ptr, size := b.Unsafe()
	var zero U
	if ptr == nil || unsafe.Sizeof(zero) == 0 {
		return nil
	}
	return unsafe.Slice((*U)(ptr), size/unsafe.Sizeof(zero))
}

// Pointer returns the address of the buffer's storage as an integer, 0 if the
// buffer is empty.
func (b *Buffer[T]) Pointer() uintptr {
	ptr, _ := b.Unsafe()
	return uintptr(ptr)
}

// PointerAndSize returns the pointer and byte size in a single uint64.
// The higher 32 bits are the pointer, and the lower 32 bits are the size.
// This matches the calling convention of 32-bit WebAssembly exports, on 64-bit
// hosts the pointer is truncated.
func (b *Buffer[T]) PointerAndSize() uint64 {
	ptr, size := b.Unsafe()
	return PackPointerAndSize(uintptr(ptr), uint32(size))
}

// PackPointerAndSize packs a 32-bit pointer and size into a single uint64.
func PackPointerAndSize(ptr uintptr, size uint32) uint64 {
	return (uint64(uint32(ptr)) << 32) | uint64(size)
}

// UnpackPointerAndSize is the inverse of PackPointerAndSize.
func UnpackPointerAndSize(v uint64) (ptr, size uint32) {
	return uint32(v >> 32), uint32(v)
}
