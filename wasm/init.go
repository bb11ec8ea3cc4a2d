//go:build wasm

package wasm

import "github.com/lovromazgon/cbuffer"

var handler Handler = noHandler

// Init needs to be called in an init function in the wasm plugin to initialize
// the wasm call handler. The options configure the buffers that hold requests
// and responses, e.g. cbuffer.WithMaxBytes to limit a single message.
func Init(h Handler, opt ...cbuffer.Option) {
	handler = h
	registry.SetOptions(opt...)
}
