package wasm_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinywasm/tinywasm/wasm"
	"github.com/tinywasm/tinywasm/wasmtest"
)

func addModule() []byte {
	m := &wasmtest.Module{}
	m.Types(wasmtest.FuncType([]wasm.ValueType{wasm.ValueTypeI32, wasm.ValueTypeI32}, []wasm.ValueType{wasm.ValueTypeI32}))
	m.Functions(0)
	m.Exports(wasmtest.Export("add", wasm.ExternalFunction, 0))
	m.Code(wasmtest.Code(nil, wasmtest.Cat(
		wasmtest.LocalGet(0),
		wasmtest.LocalGet(1),
		wasmtest.I32Add(),
	)))
	return m.Build()
}

func TestDecodeAddModule(t *testing.T) {
	mod, err := wasm.Decode(addModule())
	require.NoError(t, err)
	require.Len(t, mod.Types, 1)
	require.Len(t, mod.Funcs, 1)
	assert.False(t, mod.Funcs[0].Imported)
	assert.Equal(t, "add", mod.Funcs[0].Name)
	exp, ok := mod.Exports["add"]
	require.True(t, ok)
	assert.EqualValues(t, 0, exp.Desc.Idx)
}

func TestDecodeRejectsBadMagic(t *testing.T) {
	b := addModule()
	b[0] = 0xFF
	_, err := wasm.Decode(b)
	require.Error(t, err)
	var decErr *wasm.DecodeError
	require.ErrorAs(t, err, &decErr)
	assert.Equal(t, wasm.KindBadHeader, decErr.Kind)
}

func TestDecodeRejectsUnsupportedVersion(t *testing.T) {
	b := addModule()
	b[4] = 0x02
	_, err := wasm.Decode(b)
	require.Error(t, err)
	var decErr *wasm.DecodeError
	require.ErrorAs(t, err, &decErr)
	assert.Equal(t, wasm.KindBadHeader, decErr.Kind)
}

func TestDecodeRejectsTruncatedSection(t *testing.T) {
	b := addModule()
	_, err := wasm.Decode(b[:len(b)-2])
	require.Error(t, err)
}

func TestDecodeFunctionCodeCountMismatch(t *testing.T) {
	m := &wasmtest.Module{}
	m.Types(wasmtest.FuncType(nil, nil))
	m.Functions(0, 0) // declares two functions
	m.Code(wasmtest.Code(nil, wasmtest.End())) // only one body
	_, err := wasm.Decode(m.Build())
	require.Error(t, err)
	var decErr *wasm.DecodeError
	require.ErrorAs(t, err, &decErr)
	assert.Equal(t, wasm.KindFunctionCodeCountMismatch, decErr.Kind)
}

func TestDecodeUnbalancedBlockFails(t *testing.T) {
	m := &wasmtest.Module{}
	m.Types(wasmtest.FuncType(nil, nil))
	m.Functions(0)
	// Opens a block but never closes it before the function's own end.
	m.Code(wasmtest.Code(nil, wasmtest.Block(true)))
	_, err := wasm.Decode(m.Build())
	require.Error(t, err)
	var decErr *wasm.DecodeError
	require.ErrorAs(t, err, &decErr)
	assert.Equal(t, wasm.KindUnbalancedLabel, decErr.Kind)
}

func TestDecodeMemoryLimitsMaxLessThanMin(t *testing.T) {
	m := &wasmtest.Module{}
	max := uint32(1)
	m.Memory(2, &max)
	_, err := wasm.Decode(m.Build())
	require.Error(t, err)
	var decErr *wasm.DecodeError
	require.ErrorAs(t, err, &decErr)
	assert.Equal(t, wasm.KindInvalidMemoryLimits, decErr.Kind)
}

func TestDecodeGlobalAndDataSections(t *testing.T) {
	m := &wasmtest.Module{}
	m.Memory(1, nil)
	m.Global(wasm.ValueTypeI32, wasm.Var, 42)
	m.DataSegments(wasmtest.Data(0, 0, []byte("hi")))
	mod, err := wasm.Decode(m.Build())
	require.NoError(t, err)
	require.Len(t, mod.Globals, 1)
	assert.Equal(t, wasm.Var, mod.Globals[0].Type.Mut)
	require.Len(t, mod.Datas, 1)
	assert.Equal(t, []byte("hi"), mod.Datas[0].Init)
}
