package cbuffer

import (
	"math"
	"testing"
	"unsafe"

	"github.com/matryer/is"
)

func TestBuffer_Unsafe(t *testing.T) {
	t.Run("should return nil for an empty buffer", func(t *testing.T) {
		is := is.New(t)
		b := New[uint64]()

		ptr, size := b.Unsafe()
		is.True(ptr == nil)
		is.Equal(size, uintptr(0))
		is.Equal(b.UnsafeBytes(), nil)
		is.Equal(UnsafeAs[byte](b), nil)
		is.Equal(UnsafeSliceAs[byte](b), nil)
	})

	t.Run("should expose the storage and its byte size", func(t *testing.T) {
		is := is.New(t)
		b, err := Of[uint32](1, 2, 3)
		is.NoErr(err)

		ptr, size := b.Unsafe()
		is.Equal(size, uintptr(12))
		is.True(ptr == unsafe.Pointer(&b.UnsafeSlice()[0]))
		is.Equal(len(b.UnsafeBytes()), 12)
	})

	t.Run("should write through a reinterpreted view", func(t *testing.T) {
		is := is.New(t)
		b, err := Make[uint32](2)
		is.NoErr(err)

		for i := range UnsafeSliceAs[byte](b) {
			UnsafeSliceAs[byte](b)[i] = 0xFF
		}
		v, err := b.At(1)
		is.NoErr(err)
		is.Equal(v, uint32(math.MaxUint32))

		*UnsafeAs[uint64](b) = 0
		is.Equal(collect(b), []uint32{0, 0})
	})

	t.Run("should drop trailing bytes that don't fill an element", func(t *testing.T) {
		is := is.New(t)
		b, err := Make[uint32](3)
		is.NoErr(err)

		is.Equal(len(UnsafeSliceAs[uint64](b)), 1)
		is.Equal(len(UnsafeSliceAs[uint16](b)), 6)
		is.Equal(len(UnsafeSliceAs[struct{}](b)), 0)
	})
}

func TestBuffer_PointerAndSize(t *testing.T) {
	t.Run("should correctly encode pointer and size", func(t *testing.T) {
		is := is.New(t)
		b, err := Make[byte](256)
		is.NoErr(err)

		packed := b.PointerAndSize()
		is.True(packed != 0)

		// This simulates a 32-bit wasm architecture. On a 64-bit test host the
		// decoded pointer is the truncated 64-bit pointer.
		ptr, size := UnpackPointerAndSize(packed)
		is.Equal(ptr, uint32(b.Pointer()))
		is.Equal(int(size), b.ByteSize())
		is.Equal(size, uint32(256))
	})

	t.Run("should use the byte size for wider elements", func(t *testing.T) {
		is := is.New(t)
		b, err := Make[uint64](4)
		is.NoErr(err)

		_, size := UnpackPointerAndSize(b.PointerAndSize())
		is.Equal(size, uint32(32))
	})

	t.Run("should return 0 for an empty buffer", func(t *testing.T) {
		is := is.New(t)
		b := New[byte]()
		is.Equal(b.PointerAndSize(), uint64(0))
	})

	t.Run("should round trip packed values", func(t *testing.T) {
		is := is.New(t)
		ptr, size := UnpackPointerAndSize(PackPointerAndSize(1024, 17))
		is.Equal(ptr, uint32(1024))
		is.Equal(size, uint32(17))
	})
}
