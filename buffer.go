// Package cbuffer implements Buffer, a manually managed array of fixed-size
// elements backed by a single contiguous block of memory.
//
// The storage of a Buffer is explicitly allocated, zero-initialized when it
// is allocated or grown, and released exactly once by Free. It can live on the
// Go heap (the default) or outside of it through an Allocator, in which case
// the memory is C-compatible and can be handed to low-level APIs. Element
// access through At, Ref and Set is bounds-checked, raw access through the
// Unsafe* functions is not.
//
// A Buffer is not safe for concurrent use and must not be copied by value,
// use Clone to get an independent copy.
package cbuffer

import (
	"fmt"
	"iter"
	"log/slog"
	"reflect"
	"unsafe"
)

// Buffer is a contiguous, zero-initialized array of elements of type T. The
// zero value is an empty buffer that allocates on the Go heap.
type Buffer[T any] struct {
	_ noCopy

	// addr points to the buffer itself and is used to detect copies by value.
	addr *Buffer[T]
	// data holds the live elements, len(data) == cap(data) and data is nil
	// when the buffer is empty.
	data []T
	opts options
}

// New returns an empty buffer. It does not allocate storage.
func New[T any](opt ...Option) *Buffer[T] {
	return newBuffer[T](newOptions(opt))
}

func newBuffer[T any](opts options) *Buffer[T] {
	b := &Buffer[T]{opts: opts}
	b.addr = b
	return b
}

// Make returns a buffer with n zeroed elements.
func Make[T any](n int, opt ...Option) (*Buffer[T], error) {
	return makeBuffer[T](n, newOptions(opt))
}

func makeBuffer[T any](n int, opts options) (*Buffer[T], error) {
	b := newBuffer[T](opts)
	data, err := b.allocate(n)
	if err != nil {
		return nil, err
	}
	b.data = data
	return b, nil
}

// FromPointer returns a buffer with n elements copied from the memory at src.
// If src is nil the elements are zeroed. The caller guarantees that src points
// to at least n elements.
func FromPointer[T any](src *T, n int, opt ...Option) (*Buffer[T], error) {
	b, err := Make[T](n, opt...)
	if err != nil {
		return nil, err
	}
	if src != nil && n > 0 {
		copy(b.data, unsafe.Slice(src, n))
	}
	return b, nil
}

// FromSlice returns a buffer holding a copy of src.
func FromSlice[T any](src []T, opt ...Option) (*Buffer[T], error) {
	return FromPointer(unsafe.SliceData(src), len(src), opt...)
}

// Of returns a buffer holding the given values in order. Use OfWith to
// configure the buffer.
func Of[T any](values ...T) (*Buffer[T], error) {
	return FromSlice(values)
}

// OfWith is like Of, but applies the options to the buffer.
func OfWith[T any](opt []Option, values ...T) (*Buffer[T], error) {
	return FromSlice(values, opt...)
}

// Clone returns a deep copy of the buffer that uses the same options.
func (b *Buffer[T]) Clone() (*Buffer[T], error) {
	c, err := makeBuffer[T](len(b.data), b.opts)
	if err != nil {
		return nil, err
	}
	copy(c.data, b.data)
	return c, nil
}

// Count returns the number of elements in the buffer.
func (b *Buffer[T]) Count() int {
	return len(b.data)
}

// ByteSize returns the size of the buffer's storage in bytes.
func (b *Buffer[T]) ByteSize() int {
	return len(b.data) * int(b.ElemSize())
}

// ElemSize returns the size of a single element in bytes.
func (b *Buffer[T]) ElemSize() uintptr {
	var zero T
	return unsafe.Sizeof(zero)
}

// At returns the element at index i.
func (b *Buffer[T]) At(i int) (T, error) {
	if err := b.checkIndex(i); err != nil {
		var zero T
		return zero, err
	}
	return b.data[i], nil
}

// Ref returns a pointer to the element at index i. The pointer is invalidated
// by Resize and Free.
func (b *Buffer[T]) Ref(i int) (*T, error) {
	b.copyCheck()
	if err := b.checkIndex(i); err != nil {
		return nil, err
	}
	return &b.data[i], nil
}

// Set stores v at index i.
func (b *Buffer[T]) Set(i int, v T) error {
	b.copyCheck()
	if err := b.checkIndex(i); err != nil {
		return err
	}
	b.data[i] = v
	return nil
}

func (b *Buffer[T]) checkIndex(i int) error {
	if i < 0 || i >= len(b.data) {
		return &IndexOutOfRangeError{Index: i, Count: len(b.data)}
	}
	return nil
}

// All returns an iterator over the indices and elements of the buffer. The
// bounds are checked on every step, so the buffer may be resized or freed
// while iterating; iteration stops once the index reaches the current count.
func (b *Buffer[T]) All() iter.Seq2[int, T] {
	return func(yield func(int, T) bool) {
		for i := 0; i < len(b.data); i++ {
			if !yield(i, b.data[i]) {
				return
			}
		}
	}
}

// Values returns an iterator over the elements of the buffer. See All.
func (b *Buffer[T]) Values() iter.Seq[T] {
	return func(yield func(T) bool) {
		for i := 0; i < len(b.data); i++ {
			if !yield(b.data[i]) {
				return
			}
		}
	}
}

// Resize changes the number of elements to n. Existing elements up to
// min(Count, n) are preserved and new elements are zeroed. Resizing to 0
// releases the storage. If the storage can't be reallocated an AllocationError
// is returned and the buffer is left unchanged.
func (b *Buffer[T]) Resize(n int) error {
	b.copyCheck()

	switch {
	case n == len(b.data):
		return nil
	case n < 0:
		return newAllocationError(n, b.ElemSize(), errNegativeCount)
	case n == 0:
		b.release()
		return nil
	}

	var (
		data []T
		err  error
	)
	if len(b.data) == 0 {
		data, err = b.allocate(n)
	} else {
		data, err = b.reallocate(n)
	}
	if err != nil {
		return err
	}

	b.data = data
	return nil
}

// Fill sets every element to v.
func (b *Buffer[T]) Fill(v T) {
	b.copyCheck()
	for i := range b.data {
		b.data[i] = v
	}
}

// Map replaces every element with fn applied to it, in index order.
func (b *Buffer[T]) Map(fn func(T) T) {
	b.copyCheck()
	for i := range b.data {
		b.data[i] = fn(b.data[i])
	}
}

// MapErr replaces every element with fn applied to it, in index order, and
// stops at the first error. Elements before the failing one stay transformed,
// there is no rollback.
func (b *Buffer[T]) MapErr(fn func(T) (T, error)) error {
	b.copyCheck()
	for i := range b.data {
		v, err := fn(b.data[i])
		if err != nil {
			return fmt.Errorf("failed to transform element %d: %w", i, err)
		}
		b.data[i] = v
	}
	return nil
}

// Free releases the storage and leaves an empty buffer behind. Calling Free on
// an empty buffer is a no-op, so storage is never released twice.
func (b *Buffer[T]) Free() {
	b.copyCheck()
	b.release()
}

func (b *Buffer[T]) allocate(n int) ([]T, error) {
	elemSize := b.ElemSize()
	size, err := b.checkSize(n)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}

	if !b.offHeap() {
		data, err := makeSlice[T](n)
		if err != nil {
			return nil, newAllocationError(n, elemSize, err)
		}
		return data, nil
	}

	if typ := reflect.TypeFor[T](); hasPointers(typ) {
		return nil, newAllocationError(n, elemSize, fmt.Errorf("element type %v contains Go pointers", typ))
	}

	ptr, err := b.opts.allocator.Allocate(size, b.elemAlign())
	if err != nil {
		return nil, newAllocationError(n, elemSize, err)
	}
	if ptr == nil {
		return nil, newAllocationError(n, elemSize, nil)
	}
	return unsafe.Slice((*T)(ptr), n), nil
}

// reallocate returns storage for n elements holding the current elements. The
// current storage stays valid if an error is returned.
func (b *Buffer[T]) reallocate(n int) ([]T, error) {
	elemSize := b.ElemSize()
	size, err := b.checkSize(n)
	if err != nil {
		return nil, err
	}

	if !b.offHeap() {
		data, err := makeSlice[T](n)
		if err != nil {
			return nil, newAllocationError(n, elemSize, err)
		}
		copy(data, b.data)
		return data, nil
	}

	oldSize := uintptr(len(b.data)) * elemSize
	ptr, err := b.opts.allocator.Reallocate(unsafe.Pointer(unsafe.SliceData(b.data)), oldSize, size, b.elemAlign())
	if err != nil {
		return nil, newAllocationError(n, elemSize, err)
	}
	if ptr == nil {
		return nil, newAllocationError(n, elemSize, nil)
	}

	data := unsafe.Slice((*T)(ptr), n)
	if n > len(b.data) {
		// Allocators don't zero memory on reallocation.
		clear(data[len(b.data):])
	}
	return data, nil
}

func (b *Buffer[T]) release() {
	data := b.data
	b.data = nil
	if len(data) == 0 || !b.offHeap() {
		return
	}

	size := uintptr(len(data)) * b.ElemSize()
	if err := b.opts.allocator.Free(unsafe.Pointer(unsafe.SliceData(data)), size); err != nil {
		b.logger().Error("failed to release buffer storage", "count", len(data), "bytes", size, "error", err)
	}
}

func (b *Buffer[T]) checkSize(n int) (uintptr, error) {
	size, err := storageSize(n, b.ElemSize())
	if err != nil {
		return 0, newAllocationError(n, b.ElemSize(), err)
	}
	if b.opts.maxBytes > 0 && size > b.opts.maxBytes {
		return 0, newAllocationError(n, b.ElemSize(), fmt.Errorf("%d bytes exceeds the limit of %d bytes", size, b.opts.maxBytes))
	}
	return size, nil
}

// offHeap reports whether the storage comes from the configured allocator.
// Zero-sized elements never need memory and always stay on the Go heap.
func (b *Buffer[T]) offHeap() bool {
	return b.opts.allocator != nil && b.ElemSize() > 0
}

func (b *Buffer[T]) elemAlign() uintptr {
	var zero T
	return unsafe.Alignof(zero)
}

func (b *Buffer[T]) logger() *slog.Logger {
	if b.opts.logger == nil {
		return slog.Default()
	}
	return b.opts.logger
}

func (b *Buffer[T]) copyCheck() {
	if b.addr == nil {
		b.addr = b
	} else if b.addr != b {
		panic("cbuffer: illegal use of non-zero Buffer copied by value")
	}
}

// noCopy may be embedded into structs which must not be copied after the
// first use. See https://golang.org/issues/8005#issuecomment-190753527.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}
