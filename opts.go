package cbuffer

import "log/slog"

type options struct {
	logger    *slog.Logger
	allocator Allocator
	// maxBytes limits the size of a single allocation, 0 means no limit.
	maxBytes uintptr
}

var defaultOptions = options{
	logger: slog.Default(),
}

// Option configures a Buffer.
type Option interface {
	apply(opt *options)
}

// optionFunc wraps a function that modifies options into an implementation of
// the Option interface.
type optionFunc func(*options)

func (f optionFunc) apply(opt *options) { f(opt) }

func newOptions(opt []Option) options {
	opts := defaultOptions
	for _, o := range opt {
		o.apply(&opts)
	}
	if opts.logger == nil {
		opts.logger = slog.Default()
	}
	return opts
}

// WithLogger sets the logger used to report failures that can't be returned
// to the caller, e.g. an allocator failing to release memory.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(opt *options) { opt.logger = l })
}

// WithAllocator sets the allocator that provides the backing storage. By
// default storage is allocated on the Go heap.
func WithAllocator(a Allocator) Option {
	return optionFunc(func(opt *options) { opt.allocator = a })
}

// WithMaxBytes limits the size of the backing storage. Any allocation or
// reallocation above the limit fails with an AllocationError.
func WithMaxBytes(n uintptr) Option {
	return optionFunc(func(opt *options) { opt.maxBytes = n })
}
