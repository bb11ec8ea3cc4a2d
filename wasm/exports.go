//go:build wasm

package wasm

var registry = NewRegistry()

//go:wasmexport cbuffer-v1-malloc
func malloc(ptr uintptr, size uint32) uintptr {
	newPtr, err := registry.Malloc(ptr, size)
	if err != nil {
		return 0
	}
	return newPtr
}

//go:wasmexport cbuffer-v1-free
func free(ptr uintptr) {
	_ = registry.Free(ptr)
}

//go:wasmexport cbuffer-v1-command
func command(ptr uintptr, methodSize, bufferSize uint32) uint64 {
	return registry.Command(handler, ptr, methodSize, bufferSize)
}
