// Package simd provides vectorized elementwise transforms for float64
// buffers. The transforms run over the raw storage of the buffers and are
// equivalent to Buffer.Map with the corresponding arithmetic.
package simd

import (
	"errors"
	"fmt"

	"github.com/cwbudde/algo-vecmath"
	"github.com/lovromazgon/cbuffer"
)

// ErrCountMismatch is returned when two buffers combined elementwise don't
// have the same number of elements.
var ErrCountMismatch = errors.New("simd: buffer counts don't match")

// Scale multiplies every element of b by k.
func Scale(b *cbuffer.Buffer[float64], k float64) {
	data := b.UnsafeSlice()
	if len(data) == 0 {
		return
	}
	vecmath.ScaleBlock(data, data, k)
}

// Mul multiplies every element of dst by the element of src at the same index.
func Mul(dst, src *cbuffer.Buffer[float64]) error {
	if err := checkCounts(dst, src); err != nil {
		return err
	}
	if dst.Count() == 0 {
		return nil
	}
	vecmath.MulBlockInPlace(dst.UnsafeSlice(), src.UnsafeSlice())
	return nil
}

// Add adds the element of src at the same index to every element of dst.
func Add(dst, src *cbuffer.Buffer[float64]) error {
	if err := checkCounts(dst, src); err != nil {
		return err
	}
	if dst.Count() == 0 {
		return nil
	}
	vecmath.AddBlockInPlace(dst.UnsafeSlice(), src.UnsafeSlice())
	return nil
}

func checkCounts(dst, src *cbuffer.Buffer[float64]) error {
	if dst.Count() != src.Count() {
		return fmt.Errorf("%w: %d != %d", ErrCountMismatch, dst.Count(), src.Count())
	}
	return nil
}
