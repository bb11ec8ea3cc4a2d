package cbuffer

import (
	"errors"
	"reflect"
	"testing"

	"github.com/matryer/is"
)

func TestHasPointers(t *testing.T) {
	type pointerless struct {
		A int64
		B [4]float32
		C struct{ D bool }
	}
	type withPointer struct {
		A int64
		B []byte
	}

	testCases := []struct {
		typ  reflect.Type
		want bool
	}{
		{typ: reflect.TypeFor[int](), want: false},
		{typ: reflect.TypeFor[complex128](), want: false},
		{typ: reflect.TypeFor[[8]uint16](), want: false},
		{typ: reflect.TypeFor[pointerless](), want: false},
		{typ: reflect.TypeFor[[0]*int](), want: false},
		{typ: reflect.TypeFor[*int](), want: true},
		{typ: reflect.TypeFor[string](), want: true},
		{typ: reflect.TypeFor[any](), want: true},
		{typ: reflect.TypeFor[map[int]int](), want: true},
		{typ: reflect.TypeFor[func()](), want: true},
		{typ: reflect.TypeFor[[2]withPointer](), want: true},
	}

	for _, tc := range testCases {
		t.Run(tc.typ.String(), func(t *testing.T) {
			is := is.New(t)
			is.Equal(hasPointers(tc.typ), tc.want)
		})
	}
}

func TestStorageSize(t *testing.T) {
	t.Run("should multiply count and element size", func(t *testing.T) {
		is := is.New(t)
		size, err := storageSize(10, 8)
		is.NoErr(err)
		is.Equal(size, uintptr(80))

		size, err = storageSize(10, 0)
		is.NoErr(err)
		is.Equal(size, uintptr(0))
	})

	t.Run("should detect invalid sizes", func(t *testing.T) {
		is := is.New(t)
		_, err := storageSize(-1, 8)
		is.True(errors.Is(err, errNegativeCount))

		_, err = storageSize(int(^uint(0)>>1), 4)
		is.True(errors.Is(err, errSizeOverflow))
	})
}
