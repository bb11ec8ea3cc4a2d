//go:build linux || darwin || freebsd || netbsd || openbsd

package wasmmem

import (
	"context"
	"os"
	"testing"
	"unsafe"

	"github.com/lovromazgon/cbuffer"
	"github.com/matryer/is"
)

func TestAllocator_MmapLinearMemory(t *testing.T) {
	is := is.New(t)
	ctx := WithMemoryAllocator(context.Background(),
		WithBufferOptions(
			cbuffer.WithAllocator(cbuffer.MmapAllocator{}),
			cbuffer.WithMaxBytes(4*pageSize),
		),
	)

	mem, closeFn := instantiate(ctx, t, 1)
	defer closeFn()

	// Mapped storage starts at a page boundary, Go heap storage of this size
	// is not guaranteed to.
	data, ok := mem.Read(0, 1)
	is.True(ok)
	is.Equal(uintptr(unsafe.Pointer(unsafe.SliceData(data)))%uintptr(os.Getpagesize()), uintptr(0))

	is.True(mem.Write(pageSize-2, []byte{7, 8}))
	_, ok = mem.Grow(1)
	is.True(ok)

	got, ok := mem.Read(pageSize-2, 4)
	is.True(ok)
	is.Equal(got, []byte{7, 8, 0, 0})

	_, ok = mem.Grow(4) // past the byte limit
	is.True(!ok)
	is.Equal(mem.Size(), uint32(2*pageSize))
}
