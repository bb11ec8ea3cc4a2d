// Package wasmmem backs WebAssembly linear memories with cbuffer buffers, so
// that the memory of a guest module is allocated, grown and released by a
// cbuffer.Allocator instead of the Go heap.
package wasmmem

import (
	"context"
	"log/slog"
	"math"

	"github.com/lovromazgon/cbuffer"
	"github.com/tetratelabs/wazero/experimental"
)

type options struct {
	logger     *slog.Logger
	bufferOpts []cbuffer.Option
}

var defaultOptions = options{
	logger: slog.Default(),
}

// Option configures the Allocator.
type Option interface {
	apply(*options)
}

// funcOption wraps a function that modifies options into an implementation of
// the Option interface.
type funcOption func(*options)

func (f funcOption) apply(o *options) { f(o) }

// WithLogger sets the logger used to report failed reallocations.
func WithLogger(l *slog.Logger) Option {
	return funcOption(func(o *options) { o.logger = l })
}

// WithBufferOptions sets the options of the buffers backing linear memories,
// e.g. the cbuffer.Allocator to use.
func WithBufferOptions(opt ...cbuffer.Option) Option {
	return funcOption(func(o *options) { o.bufferOpts = append(o.bufferOpts, opt...) })
}

// Allocator implements experimental.MemoryAllocator. The linear memories it
// creates may move when they grow, so they can't back shared memories.
type Allocator struct {
	opts options
}

var _ experimental.MemoryAllocator = (*Allocator)(nil)

func NewAllocator(opt ...Option) *Allocator {
	opts := defaultOptions
	for _, o := range opt {
		o.apply(&opts)
	}
	return &Allocator{opts: opts}
}

// WithMemoryAllocator returns a context that makes wazero back the memories of
// modules instantiated with it by buffers.
func WithMemoryAllocator(ctx context.Context, opt ...Option) context.Context {
	return experimental.WithMemoryAllocator(ctx, NewAllocator(opt...))
}

// Allocate returns an empty linear memory, wazero reallocates it to the
// initial size of the memory right away.
func (a *Allocator) Allocate(_, maxSize uint64) experimental.LinearMemory {
	return &linearMemory{
		buf:    cbuffer.New[byte](a.opts.bufferOpts...),
		max:    maxSize,
		logger: a.opts.logger,
	}
}

type linearMemory struct {
	buf    *cbuffer.Buffer[byte]
	max    uint64
	logger *slog.Logger
}

// Reallocate resizes the memory to size bytes. New bytes are zeroed. It
// returns nil if the memory can't be grown, which wazero reports to the guest
// as a failed memory.grow.
func (m *linearMemory) Reallocate(size uint64) []byte {
	if size > m.max || size > math.MaxInt {
		m.logger.Debug("linear memory size exceeds the limit", "size", size, "max", m.max)
		return nil
	}

	if err := m.buf.Resize(int(size)); err != nil {
		m.logger.Debug("failed to reallocate linear memory", "size", size, "error", err)
		return nil
	}
	if size == 0 {
		return []byte{}
	}
	return m.buf.UnsafeBytes()
}

// Free releases the memory.
func (m *linearMemory) Free() {
	m.buf.Free()
}
