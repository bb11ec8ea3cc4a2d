//go:build linux || darwin || freebsd || netbsd || openbsd

package cbuffer

import (
	"errors"
	"os"
	"testing"

	"github.com/matryer/is"
)

func TestMmapAllocator(t *testing.T) {
	t.Run("should allocate zeroed page aligned storage", func(t *testing.T) {
		is := is.New(t)
		b, err := Make[uint64](1000, WithAllocator(MmapAllocator{}))
		is.NoErr(err)
		defer b.Free()

		is.Equal(b.Pointer()%uintptr(os.Getpagesize()), uintptr(0))
		for v := range b.Values() {
			is.Equal(v, uint64(0))
		}
	})

	t.Run("should preserve elements when resized", func(t *testing.T) {
		is := is.New(t)
		b, err := FromSlice([]int32{1, 2, 3}, WithAllocator(MmapAllocator{}))
		is.NoErr(err)
		defer b.Free()

		is.NoErr(b.Resize(100_000))
		is.Equal(b.Count(), 100_000)
		is.Equal(collect(b)[:4], []int32{1, 2, 3, 0})
		last, err := b.At(99_999)
		is.NoErr(err)
		is.Equal(last, int32(0))

		is.NoErr(b.Resize(2))
		is.Equal(collect(b), []int32{1, 2})

		is.NoErr(b.Resize(0))
		is.Equal(b.Pointer(), uintptr(0))
	})

	t.Run("should reject alignments above the page size", func(t *testing.T) {
		is := is.New(t)
		_, err := MmapAllocator{}.Allocate(8, uintptr(os.Getpagesize())*2)
		is.True(err != nil)
	})

	t.Run("should reject elements with Go pointers", func(t *testing.T) {
		is := is.New(t)
		_, err := Make[[]byte](1, WithAllocator(MmapAllocator{}))
		is.True(errors.Is(err, ErrAllocation))
	})
}
