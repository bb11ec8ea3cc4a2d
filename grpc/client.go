package grpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"github.com/lovromazgon/cbuffer"
	"github.com/lovromazgon/cbuffer/wasm"
	"github.com/lovromazgon/cbuffer/wasmmem"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	spb "google.golang.org/genproto/googleapis/rpc/status"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
)

var _ grpc.ClientConnInterface = (*ClientConn)(nil)

// ClientConn sends gRPC requests to a Wasm module through its memory.
type ClientConn struct {
	opts   clientOptions
	module api.Module
	closed atomic.Bool

	// workers is a channel of available workers. The size of the channel is
	// the maximum number of concurrent requests.
	workers chan *worker

	// m serializes every call into the module and every access to its
	// memory. A guest handles one call at a time.
	m        sync.Mutex
	mallocFn api.Function
	freeFn   api.Function
}

// worker holds the state of one in-flight request.
type worker struct {
	id        int
	commandFn api.Function

	// buf stages the method and request before they are written to the module.
	buf *cbuffer.Buffer[byte]
	// modulePointer and moduleSize describe the allocation in the module that
	// receives the request.
	modulePointer uint32
	moduleSize    uint32
}

func InstantiateModuleAndClient[T any](
	ctx context.Context,
	runtime wazero.Runtime,
	source []byte,
	newClient func(grpc.ClientConnInterface) T,
	opt ...ClientOption,
) (api.Module, T, error) {
	var zeroT T
	opts := newClientOptions(opt)

	if opts.linearMemory {
		ctx = wasmmem.WithMemoryAllocator(ctx, opts.linearMemoryOpts...)
	}

	// Configure the module to initialize the reactor.
	config := wazero.NewModuleConfig().
		WithStdout(os.Stdout).
		WithStderr(os.Stderr).
		WithStartFunctions("_initialize")

	wasmModule, err := runtime.InstantiateWithConfig(ctx, source, config)
	if err != nil {
		return nil, zeroT, fmt.Errorf("failed to instantiate Wasm module: %w", err)
	}

	client, err := newClientConn(wasmModule, opts)
	if err != nil {
		_ = wasmModule.Close(ctx)
		return nil, zeroT, fmt.Errorf("failed to instantiate grpc client: %w", err)
	}

	return wasmModule, newClient(client), nil
}

// NewClient returns a client for an instantiated module that exports the
// cbuffer-v1 functions.
func NewClient(module api.Module, opt ...ClientOption) (*ClientConn, error) {
	return newClientConn(module, newClientOptions(opt))
}

func newClientConn(module api.Module, opts clientOptions) (*ClientConn, error) {
	if opts.maxConcurrentRequests < 1 {
		return nil, fmt.Errorf("invalid max concurrent requests %d", opts.maxConcurrentRequests)
	}

	mallocFn, err := getExportedFunction(module, mallocFunctionDefinition)
	if err != nil {
		return nil, fmt.Errorf("failed to get malloc function: %w", err)
	}
	freeFn, err := getExportedFunction(module, freeFunctionDefinition)
	if err != nil {
		return nil, fmt.Errorf("failed to get free function: %w", err)
	}

	workers := make(chan *worker, opts.maxConcurrentRequests)
	for i := range opts.maxConcurrentRequests {
		// Every worker needs its own function instance, they are not safe for
		// concurrent use.
		commandFn, err := getExportedFunction(module, commandFunctionDefinition)
		if err != nil {
			return nil, fmt.Errorf("failed to get command function: %w", err)
		}
		workers <- &worker{
			id:        i,
			commandFn: commandFn,
			buf:       cbuffer.New[byte](opts.bufferOpts...),
		}
	}

	return &ClientConn{
		opts:     opts,
		module:   module,
		workers:  workers,
		mallocFn: mallocFn,
		freeFn:   freeFn,
	}, nil
}

func (c *ClientConn) NewStream(context.Context, *grpc.StreamDesc, string, ...grpc.CallOption) (grpc.ClientStream, error) {
	return nil, errors.New("streams are not supported by Wasm")
}

func (c *ClientConn) Invoke(
	ctx context.Context,
	method string,
	req, resp any,
	_ ...grpc.CallOption,
) error {
	reqMsg, ok := req.(proto.Message)
	if !ok {
		return fmt.Errorf("invalid request type: expected proto.Message, got %T", req)
	}

	respMsg, ok := resp.(proto.Message)
	if !ok {
		return fmt.Errorf("invalid response type: expected proto.Message, got %T", resp)
	}

	if c.closed.Load() {
		return errors.New("client is closed")
	}
	if c.module.IsClosed() {
		return errors.New("module is closed")
	}

	var w *worker
	select {
	case w = <-c.workers:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { c.workers <- w }()

	return c.invoke(ctx, w, method, reqMsg, respMsg)
}

func (c *ClientConn) invoke(ctx context.Context, w *worker, method string, req, resp proto.Message) error {
	logger := c.opts.logger.With("method", method, "worker", w.id)

	// Step 1: Make room for the method and request in the staging buffer. This
	// happens outside of the module lock.
	msgSize := len(method) + proto.Size(req)
	if w.buf.Count() < msgSize {
		logger.DebugContext(ctx, "staging buffer is too small, resizing", "size", msgSize)
		if err := w.buf.Resize(msgSize); err != nil {
			logger.ErrorContext(ctx, "failed to resize staging buffer", "size", msgSize, "error", err)
			return fmt.Errorf("failed to resize staging buffer: %w", err)
		}
	}

	// Step 2: Marshal the method and the request into the staging buffer.
	staging := w.buf.UnsafeBytes()
	n := copy(staging, method)
	reqBytes, err := proto.MarshalOptions{}.MarshalAppend(staging[:n], req)
	if err != nil {
		logger.ErrorContext(ctx, "failed marshalling protobuf command request", "error", err)
		return fmt.Errorf("failed to marshal protobuf command request: %w", err)
	}

	c.m.Lock()
	defer c.m.Unlock()

	// The module may have been closed while waiting for the lock.
	if c.module.IsClosed() {
		return errors.New("module is closed")
	}

	if w.moduleSize < uint32(len(reqBytes)) {
		logger.DebugContext(ctx, "module buffer is too small, reallocating using malloc function", "size", len(reqBytes))
		if err := c.malloc(ctx, w, uint32(len(reqBytes))); err != nil {
			logger.ErrorContext(ctx, "failed to allocate memory in Wasm module", "size", len(reqBytes), "error", err)
			return fmt.Errorf("failed to allocate memory in Wasm module: %w", err)
		}
	}

	// Step 3: Write the request to the Wasm module's memory.
	if !c.module.Memory().Write(w.modulePointer, reqBytes) {
		logger.ErrorContext(ctx, "failed to write to Wasm module memory", "ptr", w.modulePointer, "size", len(reqBytes))
		return fmt.Errorf("failed to write to Wasm module memory at pointer %d with size %d", w.modulePointer, len(reqBytes))
	}

	// Step 4: Call the Wasm function with the pointer and size of the buffer.
	results, err := w.commandFn.Call(
		ctx,
		api.EncodeU32(w.modulePointer),
		api.EncodeU32(uint32(len(method))),
		api.EncodeU32(uint32(len(reqBytes))),
	)
	if err != nil {
		logger.ErrorContext(ctx, "failed to call Wasm function", "function", commandFunctionDefinition.name, "error", err)
		return fmt.Errorf("failed to call Wasm function %q: %w", commandFunctionDefinition.name, err)
	}

	// Step 5: Read the response and release it in the module.
	ptr, size := cbuffer.UnpackPointerAndSize(results[0])
	isStatus := size&wasm.StatusFlag != 0
	size &^= wasm.StatusFlag
	defer c.free(ctx, logger, ptr)

	respBytes, ok := c.module.Memory().Read(ptr, size)
	if !ok {
		logger.ErrorContext(ctx, "failed to read from Wasm module memory", "ptr", ptr, "size", size)
		return fmt.Errorf("failed to read from Wasm module memory at pointer %d with size %d", ptr, size)
	}

	if isStatus {
		return decodeStatus(respBytes)
	}

	if err := proto.Unmarshal(respBytes, resp); err != nil {
		logger.ErrorContext(ctx, "failed to unmarshal protobuf command response", "error", err)
		return fmt.Errorf("failed to unmarshal protobuf command response: %w", err)
	}

	return nil
}

func decodeStatus(b []byte) error {
	var st spb.Status
	if err := proto.Unmarshal(b, &st); err != nil {
		return fmt.Errorf("failed to unmarshal status: %w", err)
	}
	if codes.Code(st.GetCode()) == codes.OK {
		return status.Error(codes.Internal, "module reported an error without a status")
	}
	return status.ErrorProto(&st)
}

// malloc grows the allocation of the worker in the module to size bytes. The
// caller holds c.m.
func (c *ClientConn) malloc(ctx context.Context, w *worker, size uint32) error {
	results, err := c.mallocFn.Call(
		ctx,
		api.EncodeU32(w.modulePointer),
		api.EncodeU32(size),
	)
	if err != nil {
		return fmt.Errorf("failed to call Wasm function %q: %w", mallocFunctionDefinition.name, err)
	}

	ptr := api.DecodeU32(results[0])
	if ptr == 0 {
		return fmt.Errorf("module could not allocate %d bytes", size)
	}

	w.modulePointer = ptr
	w.moduleSize = size
	return nil
}

// free releases an allocation in the module. Failures are only logged, the
// allocation is lost to the module either way. The caller holds c.m.
func (c *ClientConn) free(ctx context.Context, logger *slog.Logger, ptr uint32) {
	if ptr == 0 || c.module.IsClosed() {
		return
	}

	if _, err := c.freeFn.Call(ctx, api.EncodeU32(ptr)); err != nil {
		logger.ErrorContext(ctx, "failed to call Wasm function", "function", freeFunctionDefinition.name, "ptr", ptr, "error", err)
	}
}

// Close waits for in-flight requests, then frees the staging buffers and the
// request allocations in the module. It does not close the module.
func (c *ClientConn) Close(ctx context.Context) error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}

	released := make([]*worker, 0, c.opts.maxConcurrentRequests)
	for range c.opts.maxConcurrentRequests {
		w := <-c.workers
		w.buf.Free()
		c.m.Lock()
		c.free(ctx, c.opts.logger, w.modulePointer)
		c.m.Unlock()
		w.modulePointer, w.moduleSize = 0, 0
		released = append(released, w)
	}
	// Return the workers so that requests that raced with Close don't block.
	for _, w := range released {
		c.workers <- w
	}

	return nil
}
