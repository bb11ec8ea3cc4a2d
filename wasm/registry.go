package wasm

import (
	"fmt"

	"github.com/lovromazgon/cbuffer"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
)

// StatusFlag is set in the size of a packed command result when the payload
// is a marshalled google.rpc.Status instead of a response.
const StatusFlag uint32 = 1 << 31

// Registry owns the buffers handed out to the host. Buffers are identified by
// the address of their storage, which is what the host sees.
type Registry struct {
	opts        []cbuffer.Option
	allocations map[uintptr]*cbuffer.Buffer[byte]
}

func NewRegistry(opt ...cbuffer.Option) *Registry {
	return &Registry{
		opts:        opt,
		allocations: make(map[uintptr]*cbuffer.Buffer[byte]),
	}
}

// SetOptions replaces the options of allocations made from now on. Existing
// allocations keep the options they were made with.
func (r *Registry) SetOptions(opt ...cbuffer.Option) {
	r.opts = opt
}

// Len returns the number of live allocations.
func (r *Registry) Len() int {
	return len(r.allocations)
}

// Malloc allocates a zeroed buffer of size bytes if ptr is 0, otherwise it
// resizes the buffer at ptr, preserving its content. It returns the address of
// the buffer, which changes if the buffer had to be moved. Resizing to 0 frees
// the buffer and returns 0.
func (r *Registry) Malloc(ptr uintptr, size uint32) (uintptr, error) {
	if ptr == 0 {
		if size == 0 {
			return 0, nil
		}
		buf, err := cbuffer.Make[byte](int(size), r.opts...)
		if err != nil {
			return 0, err
		}
		r.allocations[buf.Pointer()] = buf
		return buf.Pointer(), nil
	}

	buf, ok := r.allocations[ptr]
	if !ok {
		return 0, fmt.Errorf("unknown allocation at %#x", ptr)
	}
	if err := buf.Resize(int(size)); err != nil {
		return 0, err
	}

	newPtr := buf.Pointer()
	if newPtr != ptr {
		delete(r.allocations, ptr)
		if newPtr != 0 {
			r.allocations[newPtr] = buf
		}
	}
	return newPtr, nil
}

// Free frees the buffer at ptr. Freeing address 0 is a no-op.
func (r *Registry) Free(ptr uintptr) error {
	if ptr == 0 {
		return nil
	}
	buf, ok := r.allocations[ptr]
	if !ok {
		return fmt.Errorf("unknown allocation at %#x", ptr)
	}
	delete(r.allocations, ptr)
	buf.Free()
	return nil
}

// Bytes returns the first size bytes of the buffer at ptr.
func (r *Registry) Bytes(ptr uintptr, size uint32) ([]byte, error) {
	if size == 0 {
		return nil, nil
	}
	buf, ok := r.allocations[ptr]
	if !ok {
		return nil, fmt.Errorf("unknown allocation at %#x", ptr)
	}
	if int(size) > buf.Count() {
		return nil, fmt.Errorf("size %d exceeds the allocation of %d bytes", size, buf.Count())
	}
	return buf.UnsafeBytes()[:size], nil
}

// StoreResponse copies the response, or the status of err if it is not nil,
// into a new buffer and returns its packed address and size. The host frees
// the buffer once it has read it.
func (r *Registry) StoreResponse(resp []byte, err error) (uint64, error) {
	var flag uint32
	if err != nil {
		resp, err = proto.Marshal(status.Convert(err).Proto())
		if err != nil {
			return 0, fmt.Errorf("failed to marshal status: %w", err)
		}
		flag = StatusFlag
	}

	if uint64(len(resp)) >= uint64(StatusFlag) {
		return 0, fmt.Errorf("response of %d bytes is too large", len(resp))
	}
	if len(resp) == 0 {
		return cbuffer.PackPointerAndSize(0, flag), nil
	}

	buf, err := cbuffer.FromSlice(resp, r.opts...)
	if err != nil {
		return 0, err
	}
	r.allocations[buf.Pointer()] = buf
	return cbuffer.PackPointerAndSize(buf.Pointer(), uint32(len(resp))|flag), nil
}

// Command reads a request written by the host into the buffer at ptr,
// passes it to the handler and stores the result. The first methodSize bytes
// of the request are the full method name, the rest is the request message.
// Failures are reported to the host as a status.
func (r *Registry) Command(h Handler, ptr uintptr, methodSize, bufferSize uint32) uint64 {
	var (
		resp []byte
		err  error
	)
	input, err := r.Bytes(ptr, bufferSize)
	switch {
	case err != nil:
		err = status.Error(codes.Internal, err.Error())
	case methodSize > bufferSize:
		err = status.Errorf(codes.Internal, "method size %d exceeds the buffer size %d", methodSize, bufferSize)
	default:
		resp, err = h.Handle(string(input[:methodSize]), input[methodSize:])
	}

	packed, storeErr := r.StoreResponse(resp, err)
	if storeErr != nil {
		packed, storeErr = r.StoreResponse(nil, status.Error(codes.Internal, storeErr.Error()))
	}
	if storeErr != nil {
		// Nothing can be reported, the host sees an empty status.
		return cbuffer.PackPointerAndSize(0, StatusFlag)
	}
	return packed
}
