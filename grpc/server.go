package grpc

import (
	"context"
	"os"
	"reflect"
	"strings"
	"sync"

	"github.com/lovromazgon/cbuffer"
	"github.com/lovromazgon/cbuffer/wasm"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// serviceInfo wraps information about a service. It is very similar to
// grpc.ServiceDesc and is constructed from it for internal purposes.
type serviceInfo struct {
	// Contains the implementation for the methods in this service.
	serviceImpl any
	methods     map[string]*grpc.MethodDesc
}

var (
	_ grpc.ServiceRegistrar = (*Server)(nil)
	_ wasm.Handler          = (*Server)(nil)
)

// Server dispatches requests received by a Wasm plugin to registered gRPC
// services. It runs inside the single-threaded guest and is not safe for
// concurrent calls to Handle.
type Server struct {
	opts serverOptions

	mu       sync.Mutex // guards following fields
	services map[string]*serviceInfo

	// scratch holds the marshalled response of the last call to Handle.
	scratch *cbuffer.Buffer[byte]
}

func NewServer(opt ...ServerOption) *Server {
	opts := newServerOptions(opt)
	return &Server{
		opts:     opts,
		services: make(map[string]*serviceInfo),
		scratch:  cbuffer.New[byte](opts.bufferOpts...),
	}
}

func (s *Server) RegisterService(sd *grpc.ServiceDesc, ss any) {
	if ss != nil {
		ht := reflect.TypeOf(sd.HandlerType).Elem()
		st := reflect.TypeOf(ss)
		if !st.Implements(ht) {
			s.opts.logger.Error("grpc: Server.RegisterService found an incompatible handler type", "want", ht, "got", st)
			os.Exit(1) // Same as grpc.Server.
		}
	}
	s.register(sd, ss)
}

func (s *Server) register(sd *grpc.ServiceDesc, ss any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.opts.logger.Debug("registering service", "service", sd.ServiceName)
	if _, ok := s.services[sd.ServiceName]; ok {
		s.opts.logger.Error("grpc: Server.RegisterService found duplicate service registration", "service", sd.ServiceName)
		os.Exit(1)
	}
	if len(sd.Streams) > 0 {
		s.opts.logger.Warn("grpc: Server.RegisterService found stream service, streams are not supported in Wasm plugins", "service", sd.ServiceName)
	}

	info := &serviceInfo{
		serviceImpl: ss,
		methods:     make(map[string]*grpc.MethodDesc),
	}
	for i := range sd.Methods {
		d := &sd.Methods[i]
		info.methods[d.MethodName] = d
	}
	s.services[sd.ServiceName] = info
}

// Handle implements the wasm.Handler interface and processes the bytes sent to
// the plugin as a gRPC request. The returned bytes are only valid until the
// next call. Errors are gRPC status errors.
func (s *Server) Handle(fn string, reqBytes []byte) ([]byte, error) {
	// Start a new context for each request.
	ctx := context.Background()

	pos := strings.LastIndex(fn, "/")
	if pos == -1 {
		return s.handleError(status.New(codes.Unimplemented, "malformed method name"), "method", fn)
	}

	service := strings.TrimPrefix(fn[:pos], "/")
	method := fn[pos+1:]

	s.mu.Lock()
	srv, ok := s.services[service]
	s.mu.Unlock()
	if !ok {
		return s.handleError(status.New(codes.Unimplemented, "unknown service "+service), "service", service)
	}
	sd, ok := srv.methods[method]
	if !ok {
		return s.handleError(status.New(codes.Unimplemented, "unknown method "+method), "service", service, "method", method)
	}

	decFn := func(v any) error {
		return protoUnmarshal(reqBytes, v)
	}

	resp, err := sd.Handler(srv.serviceImpl, ctx, decFn, nil)
	if err != nil {
		st, ok := status.FromError(err)
		if !ok {
			st = status.FromContextError(err)
		}
		return s.handleError(st, "service", service, "method", method, "error", err)
	}

	if size := protoSize(resp); s.scratch.Count() < size {
		if err := s.scratch.Resize(size); err != nil {
			return s.handleError(
				status.New(codes.ResourceExhausted, "error allocating response buffer"),
				"service", service, "method", method, "size", size, "error", err,
			)
		}
	}

	respBytes, err := protoMarshalAppend(s.scratch.UnsafeBytes()[:0], resp)
	if err != nil {
		return s.handleError(
			status.New(codes.Internal, "error marshalling response"),
			"service", service, "method", method, "error", err,
		)
	}

	return respBytes, nil
}

func (s *Server) handleError(st *status.Status, args ...any) ([]byte, error) {
	s.opts.logger.Error("grpc: Server.Handle "+st.Message(), args...)
	return nil, st.Err()
}
