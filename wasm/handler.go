package wasm

import (
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Handler is the bridge between the WebAssembly exports and the Wasm plugin.
type Handler interface {
	// Handle gets called for every host call to the Wasm plugin. The returned
	// response may alias memory owned by the handler, it is copied before the
	// next call. A non-nil error is sent to the host as a gRPC status.
	Handle(method string, req []byte) (resp []byte, err error)
}

// HandlerFunc is a function type that implements the Handler interface.
type HandlerFunc func(method string, req []byte) (resp []byte, err error)

func (f HandlerFunc) Handle(method string, req []byte) ([]byte, error) { return f(method, req) }

var errNoHandler = errors.New("no handler set, call wasm.Init() in the plugin code to set a handler")

var noHandler HandlerFunc = func(string, []byte) ([]byte, error) {
	return nil, status.Error(codes.Unimplemented, errNoHandler.Error())
}
