// Package wasmtest encodes minimal WebAssembly modules for tests, so that
// host code can be exercised without compiling a guest.
package wasmtest

import (
	"github.com/tetratelabs/wazero/api"
)

// Func is an exported function. Body holds the instructions without the
// trailing end opcode.
type Func struct {
	Name    string
	Params  []api.ValueType
	Results []api.ValueType
	Body    []byte
}

// Module describes a module with an optional memory exported as "memory".
type Module struct {
	// MemoryPages is the minimum size of the memory in 64KiB pages. No memory
	// is declared when it is 0.
	MemoryPages uint32
	Funcs       []Func
}

const (
	sectionType     = 1
	sectionFunction = 3
	sectionMemory   = 5
	sectionExport   = 7
	sectionCode     = 10

	externFunc   = 0x00
	externMemory = 0x02
)

// Encode returns the binary encoding of the module.
func (m Module) Encode() []byte {
	out := []byte{0x00, 'a', 's', 'm', 0x01, 0x00, 0x00, 0x00}

	if len(m.Funcs) > 0 {
		types := appendULEB(nil, uint32(len(m.Funcs)))
		funcs := appendULEB(nil, uint32(len(m.Funcs)))
		for i, fn := range m.Funcs {
			types = append(types, 0x60)
			types = appendULEB(types, uint32(len(fn.Params)))
			types = append(types, fn.Params...)
			types = appendULEB(types, uint32(len(fn.Results)))
			types = append(types, fn.Results...)
			funcs = appendULEB(funcs, uint32(i))
		}
		out = appendSection(out, sectionType, types)
		out = appendSection(out, sectionFunction, funcs)
	}

	exportCount := len(m.Funcs)
	if m.MemoryPages > 0 {
		mem := appendULEB(nil, 1)
		mem = append(mem, 0x00) // limits without a maximum
		mem = appendULEB(mem, m.MemoryPages)
		out = appendSection(out, sectionMemory, mem)
		exportCount++
	}

	if exportCount > 0 {
		exports := appendULEB(nil, uint32(exportCount))
		if m.MemoryPages > 0 {
			exports = appendName(exports, "memory")
			exports = append(exports, externMemory, 0x00)
		}
		for i, fn := range m.Funcs {
			exports = appendName(exports, fn.Name)
			exports = append(exports, externFunc)
			exports = appendULEB(exports, uint32(i))
		}
		out = appendSection(out, sectionExport, exports)
	}

	if len(m.Funcs) > 0 {
		code := appendULEB(nil, uint32(len(m.Funcs)))
		for _, fn := range m.Funcs {
			body := []byte{0x00} // no locals
			body = append(body, fn.Body...)
			body = append(body, 0x0b) // end
			code = appendULEB(code, uint32(len(body)))
			code = append(code, body...)
		}
		out = appendSection(out, sectionCode, code)
	}

	return out
}

// I32Const returns the instruction pushing v.
func I32Const(v int32) []byte {
	return appendSLEB([]byte{0x41}, int64(v))
}

// I64Const returns the instruction pushing v.
func I64Const(v int64) []byte {
	return appendSLEB([]byte{0x42}, v)
}

// LocalGet returns the instruction pushing the local (or parameter) i.
func LocalGet(i uint32) []byte {
	return appendULEB([]byte{0x20}, i)
}

func appendSection(out []byte, id byte, content []byte) []byte {
	out = append(out, id)
	out = appendULEB(out, uint32(len(content)))
	return append(out, content...)
}

func appendName(out []byte, name string) []byte {
	out = appendULEB(out, uint32(len(name)))
	return append(out, name...)
}

func appendULEB(out []byte, v uint32) []byte {
	for {
		c := byte(v & 0x7f)
		v >>= 7
		if v == 0 {
			return append(out, c)
		}
		out = append(out, c|0x80)
	}
}

func appendSLEB(out []byte, v int64) []byte {
	for {
		c := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && c&0x40 == 0) || (v == -1 && c&0x40 != 0) {
			return append(out, c)
		}
		out = append(out, c|0x80)
	}
}
