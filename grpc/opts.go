package grpc

import (
	"log/slog"

	"github.com/lovromazgon/cbuffer"
	"github.com/lovromazgon/cbuffer/wasmmem"
)

type clientOptions struct {
	logger                *slog.Logger
	maxConcurrentRequests int
	bufferOpts            []cbuffer.Option
	// linearMemory makes the instantiated module's memory a cbuffer.Buffer.
	linearMemory     bool
	linearMemoryOpts []wasmmem.Option
}

var defaultClientOptions = clientOptions{
	logger:                slog.Default(),
	maxConcurrentRequests: 2,
}

type serverOptions struct {
	logger     *slog.Logger
	bufferOpts []cbuffer.Option
}

var defaultServerOptions = serverOptions{
	logger: slog.Default(),
}

// ClientOption configures the client.
type ClientOption interface {
	applyClient(*clientOptions)
}

// funcClientOption wraps a function that modifies clientOptions into an
// implementation of the ClientOption interface.
type funcClientOption func(*clientOptions)

func (f funcClientOption) applyClient(o *clientOptions) { f(o) }

// ServerOption configures the server.
type ServerOption interface {
	applyServer(*serverOptions)
}

// funcServerOption wraps a function that modifies serverOptions into an
// implementation of the ServerOption interface.
type funcServerOption func(*serverOptions)

func (f funcServerOption) applyServer(o *serverOptions) { f(o) }

// ClientServerOption is an option that can configure both the Server and
// Client.
type ClientServerOption interface {
	ClientOption
	ServerOption
}

// funcClientServerOption wraps a funcClientOption and funcServerOption to
// create a combined option applicable to both the server and client.
type funcClientServerOption struct {
	funcClientOption
	funcServerOption
}

func newClientOptions(opt []ClientOption) clientOptions {
	opts := defaultClientOptions
	for _, o := range opt {
		o.applyClient(&opts)
	}
	return opts
}

func newServerOptions(opt []ServerOption) serverOptions {
	opts := defaultServerOptions
	for _, o := range opt {
		o.applyServer(&opts)
	}
	return opts
}

// WithLogger returns a ClientServerOption that can set the logger for the
// server or the client.
func WithLogger(l *slog.Logger) ClientServerOption {
	return funcClientServerOption{
		funcClientOption: func(o *clientOptions) { o.logger = l },
		funcServerOption: func(o *serverOptions) { o.logger = l },
	}
}

// WithBufferOptions configures the buffers that stage requests on the client
// and responses on the server.
func WithBufferOptions(opt ...cbuffer.Option) ClientServerOption {
	return funcClientServerOption{
		funcClientOption: func(o *clientOptions) { o.bufferOpts = append(o.bufferOpts, opt...) },
		funcServerOption: func(o *serverOptions) { o.bufferOpts = append(o.bufferOpts, opt...) },
	}
}

// WithMaxConcurrentRequests limits the number of requests the client prepares
// at the same time. Every concurrent request keeps its own staging buffer and
// allocation in the module. Calls into the module are always serialized, a
// guest handles one call at a time.
func WithMaxConcurrentRequests(limit int) ClientOption {
	return funcClientOption(func(o *clientOptions) { o.maxConcurrentRequests = limit })
}

// WithLinearMemory backs the memory of the module instantiated by
// InstantiateModuleAndClient with a cbuffer.Buffer. It has no effect on
// NewClient, which gets an already instantiated module.
func WithLinearMemory(opt ...wasmmem.Option) ClientOption {
	return funcClientOption(func(o *clientOptions) {
		o.linearMemory = true
		o.linearMemoryOpts = append(o.linearMemoryOpts, opt...)
	})
}
