//go:build cgo

package cbuffer

import (
	"testing"

	"github.com/matryer/is"
)

func TestCAllocator(t *testing.T) {
	t.Run("should allocate zeroed storage", func(t *testing.T) {
		is := is.New(t)
		b, err := Make[float64](512, WithAllocator(CAllocator{}))
		is.NoErr(err)
		defer b.Free()

		for v := range b.Values() {
			is.Equal(v, 0.0)
		}
	})

	t.Run("should zero grown elements after realloc", func(t *testing.T) {
		is := is.New(t)
		b, err := Make[uint16](4, WithAllocator(CAllocator{}))
		is.NoErr(err)
		defer b.Free()

		b.Fill(7)
		is.NoErr(b.Resize(1 << 16))
		is.Equal(collect(b)[:6], []uint16{7, 7, 7, 7, 0, 0})
		for i := 4; i < b.Count(); i++ {
			v, err := b.At(i)
			is.NoErr(err)
			is.Equal(v, uint16(0))
		}
	})

	t.Run("should reject alignments malloc can't guarantee", func(t *testing.T) {
		is := is.New(t)
		_, err := CAllocator{}.Allocate(64, 64)
		is.True(err != nil)
	})
}
