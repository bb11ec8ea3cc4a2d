package simd

import (
	"errors"
	"slices"
	"testing"

	"github.com/lovromazgon/cbuffer"
	"github.com/matryer/is"
)

func mustOf(t *testing.T, values ...float64) *cbuffer.Buffer[float64] {
	t.Helper()
	b, err := cbuffer.Of(values...)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestScale(t *testing.T) {
	t.Run("should match Map", func(t *testing.T) {
		is := is.New(t)
		values := []float64{1, -2, 3.5, 0, 8, 13, 21, 34, 55}
		got := mustOf(t, values...)
		want := mustOf(t, values...)

		Scale(got, 2)
		want.Map(func(x float64) float64 { return x * 2 })

		is.Equal(slices.Collect(got.Values()), slices.Collect(want.Values()))
	})

	t.Run("should do nothing on an empty buffer", func(t *testing.T) {
		is := is.New(t)
		b := cbuffer.New[float64]()
		Scale(b, 3)
		is.Equal(b.Count(), 0)
	})
}

func TestMul(t *testing.T) {
	is := is.New(t)
	dst := mustOf(t, 1, 2, 3, 4, 5)
	src := mustOf(t, 2, 2, 0.5, -1, 0)

	is.NoErr(Mul(dst, src))
	is.Equal(slices.Collect(dst.Values()), []float64{2, 4, 1.5, -4, 0})
	is.Equal(slices.Collect(src.Values()), []float64{2, 2, 0.5, -1, 0})
}

func TestAdd(t *testing.T) {
	is := is.New(t)
	dst := mustOf(t, 1, 2, 3)
	src := mustOf(t, 10, 20, 30)

	is.NoErr(Add(dst, src))
	is.Equal(slices.Collect(dst.Values()), []float64{11, 22, 33})
}

func TestCountMismatch(t *testing.T) {
	is := is.New(t)
	dst := mustOf(t, 1, 2, 3)
	src := mustOf(t, 1)

	is.True(errors.Is(Mul(dst, src), ErrCountMismatch))
	is.True(errors.Is(Add(dst, src), ErrCountMismatch))
	is.Equal(slices.Collect(dst.Values()), []float64{1, 2, 3})
}
