package grpc

import (
	"fmt"
	"slices"
	"strings"

	"github.com/tetratelabs/wazero/api"
)

type functionDefinition struct {
	name        string
	paramTypes  []api.ValueType
	resultTypes []api.ValueType
}

var (
	mallocFunctionDefinition = functionDefinition{
		name: "cbuffer-v1-malloc",
		paramTypes: []api.ValueType{
			api.ValueTypeI32, // u32 (pointer to the existing allocation or 0)
			api.ValueTypeI32, // u32 (requested size)
		},
		resultTypes: []api.ValueType{api.ValueTypeI32}, // u32 (pointer to the allocation, 0 on failure)
	}
	freeFunctionDefinition = functionDefinition{
		name: "cbuffer-v1-free",
		paramTypes: []api.ValueType{
			api.ValueTypeI32, // u32 (pointer to the allocation)
		},
	}
	commandFunctionDefinition = functionDefinition{
		name: "cbuffer-v1-command",
		paramTypes: []api.ValueType{
			api.ValueTypeI32, // u32 (pointer to the request buffer)
			api.ValueTypeI32, // u32 (method size)
			api.ValueTypeI32, // u32 (buffer size)
		},
		resultTypes: []api.ValueType{api.ValueTypeI64}, // u64 (pointer and size of the response packed in a single u64)
	}
)

// getExportedFunction retrieves an exported function from the given module
// and checks that its signature matches the expected definition.
func getExportedFunction(module api.Module, want functionDefinition) (api.Function, error) {
	fn := module.ExportedFunction(want.name)
	if fn == nil {
		return nil, fmt.Errorf("exported function %q does not exist", want.name)
	}

	def := fn.Definition()
	if !slices.Equal(def.ParamTypes(), want.paramTypes) ||
		!slices.Equal(def.ResultTypes(), want.resultTypes) {
		return nil, &functionDefinitionError{
			expected:       want,
			gotParamTypes:  def.ParamTypes(),
			gotResultTypes: def.ResultTypes(),
		}
	}

	return fn, nil
}

type functionDefinitionError struct {
	expected       functionDefinition
	gotParamTypes  []api.ValueType
	gotResultTypes []api.ValueType
}

func (e *functionDefinitionError) Error() string {
	return fmt.Sprintf(
		"exported Wasm function definition mismatch, expected %s, got %s",
		formatSignature(e.expected.name, e.expected.paramTypes, e.expected.resultTypes),
		formatSignature(e.expected.name, e.gotParamTypes, e.gotResultTypes),
	)
}

// formatSignature formats a function as name(i32, i32) -> (i64).
func formatSignature(name string, params, results []api.ValueType) string {
	out := name + "(" + formatValueTypes(params) + ")"
	if len(results) > 0 {
		out += " -> (" + formatValueTypes(results) + ")"
	}
	return out
}

func formatValueTypes(types []api.ValueType) string {
	names := make([]string, len(types))
	for i, typ := range types {
		names[i] = api.ValueTypeName(typ)
	}
	return strings.Join(names, ", ")
}
