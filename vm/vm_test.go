package vm_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinywasm/tinywasm/fuel"
	"github.com/tinywasm/tinywasm/vm"
	"github.com/tinywasm/tinywasm/wasm"
	"github.com/tinywasm/tinywasm/wasmtest"
)

func decode(t *testing.T, b []byte) *wasm.Module {
	t.Helper()
	mod, err := wasm.Decode(b)
	require.NoError(t, err)
	return mod
}

func TestInvokeAdd(t *testing.T) {
	m := &wasmtest.Module{}
	m.Types(wasmtest.FuncType([]wasm.ValueType{wasm.ValueTypeI32, wasm.ValueTypeI32}, []wasm.ValueType{wasm.ValueTypeI32}))
	m.Functions(0)
	m.Exports(wasmtest.Export("add", wasm.ExternalFunction, 0))
	m.Code(wasmtest.Code(nil, wasmtest.Cat(
		wasmtest.LocalGet(0),
		wasmtest.LocalGet(1),
		wasmtest.I32Add(),
	)))

	mod := decode(t, m.Build())
	inst, err := vm.Instantiate(mod, nil)
	require.NoError(t, err)

	results, trap := inst.Invoke("add", wasm.I32(3), wasm.I32(4))
	require.Nil(t, trap)
	require.Len(t, results, 1)
	got, _ := results[0].AsI32()
	assert.EqualValues(t, 7, got)
}

func TestMutableGlobalCounter(t *testing.T) {
	m := &wasmtest.Module{}
	m.Types(wasmtest.FuncType(nil, []wasm.ValueType{wasm.ValueTypeI32}))
	m.Functions(0, 0) // 0: inc, 1: get (both sig () -> i32 for simplicity, inc ignores its "result" by design below)
	m.Global(wasm.ValueTypeI32, wasm.Var, 0)
	m.Exports(
		wasmtest.Export("inc", wasm.ExternalFunction, 0),
		wasmtest.Export("get", wasm.ExternalFunction, 1),
	)
	incBody := wasmtest.Cat(
		wasmtest.GlobalGet(0),
		wasmtest.I32Const(1),
		wasmtest.I32Add(),
		wasmtest.GlobalSet(0),
		wasmtest.GlobalGet(0),
	)
	getBody := wasmtest.GlobalGet(0)
	m.Code(
		wasmtest.Code(nil, incBody),
		wasmtest.Code(nil, getBody),
	)

	mod := decode(t, m.Build())
	inst, err := vm.Instantiate(mod, nil)
	require.NoError(t, err)

	for want := int32(1); want <= 3; want++ {
		results, trap := inst.Invoke("inc")
		require.Nil(t, trap)
		got, _ := results[0].AsI32()
		assert.Equal(t, want, got)
	}

	results, trap := inst.Invoke("get")
	require.Nil(t, trap)
	got, _ := results[0].AsI32()
	assert.EqualValues(t, 3, got)
}

func TestHostImportedFunction(t *testing.T) {
	m := &wasmtest.Module{}
	m.Types(wasmtest.FuncType([]wasm.ValueType{wasm.ValueTypeI32}, nil)) // type 0: host log(i32)
	m.Imports(wasmtest.ImportFunc("env", "log", 0))
	m.Functions(0) // reuses type 0's shape for the exported caller too (params ignored-ish)
	m.Exports(wasmtest.Export("callLog", wasm.ExternalFunction, 1))
	m.Code(wasmtest.Code(nil, wasmtest.Cat(
		wasmtest.LocalGet(0),
		wasmtest.Call(0),
	)))

	mod := decode(t, m.Build())

	var logged []int32
	resolver := vm.NewMapResolver()
	resolver.RegisterFunc("env", "log", func(env vm.HostEnv, args []wasm.Val) ([]wasm.Val, *vm.Trap) {
		v, _ := args[0].AsI32()
		logged = append(logged, v)
		return nil, nil
	})

	inst, err := vm.Instantiate(mod, resolver)
	require.NoError(t, err)

	_, trap := inst.Invoke("callLog", wasm.I32(42))
	require.Nil(t, trap)
	require.Len(t, logged, 1)
	assert.EqualValues(t, 42, logged[0])
}

func TestLoopSums0To9(t *testing.T) {
	m := &wasmtest.Module{}
	m.Types(wasmtest.FuncType(nil, []wasm.ValueType{wasm.ValueTypeI32}))
	m.Functions(0)
	m.Exports(wasmtest.Export("sum", wasm.ExternalFunction, 0))

	// locals: 0 = i (counter), 1 = acc
	body := wasmtest.Cat(
		wasmtest.Loop(true),
		wasmtest.LocalGet(1),
		wasmtest.LocalGet(0),
		wasmtest.I32Add(),
		wasmtest.LocalSet(1),
		wasmtest.LocalGet(0),
		wasmtest.I32Const(1),
		wasmtest.I32Add(),
		wasmtest.LocalSet(0),
		wasmtest.LocalGet(0),
		wasmtest.I32Const(10),
		wasmtest.I32LtS(),
		wasmtest.BrIf(0),
		wasmtest.End(),
		wasmtest.LocalGet(1),
	)
	m.Code(wasmtest.Code([]wasm.ValueType{wasm.ValueTypeI32, wasm.ValueTypeI32}, body))

	mod := decode(t, m.Build())
	inst, err := vm.Instantiate(mod, nil)
	require.NoError(t, err)

	results, trap := inst.Invoke("sum")
	require.Nil(t, trap)
	got, _ := results[0].AsI32()
	assert.EqualValues(t, 45, got)
}

func TestCallIndirectDispatch(t *testing.T) {
	m := &wasmtest.Module{}
	sig := wasmtest.FuncType([]wasm.ValueType{wasm.ValueTypeI32}, []wasm.ValueType{wasm.ValueTypeI32})
	m.Types(sig)
	m.Functions(0, 0) // 0: double, 1: callAt(x) via call_indirect at table slot 0
	m.Table(4, nil)
	m.Elements(wasmtest.Elem(0, 0, 0))
	m.Exports(wasmtest.Export("callAt", wasm.ExternalFunction, 1))
	m.Code(
		wasmtest.Code(nil, wasmtest.Cat(wasmtest.LocalGet(0), wasmtest.LocalGet(0), wasmtest.I32Add())), // double
		wasmtest.Code(nil, wasmtest.Cat( // callAt(x): call_indirect table slot 0 through sig
			wasmtest.LocalGet(0),
			wasmtest.I32Const(0),
			wasmtest.CallIndirect(0),
		)),
	)

	mod := decode(t, m.Build())
	inst, err := vm.Instantiate(mod, nil)
	require.NoError(t, err)

	results, trap := inst.Invoke("callAt", wasm.I32(5))
	require.Nil(t, trap)
	got, _ := results[0].AsI32()
	assert.EqualValues(t, 10, got)
}

func TestCallIndirectUninitializedSlotTraps(t *testing.T) {
	m := &wasmtest.Module{}
	sig := wasmtest.FuncType([]wasm.ValueType{wasm.ValueTypeI32}, []wasm.ValueType{wasm.ValueTypeI32})
	m.Types(sig)
	m.Functions(0)
	m.Table(4, nil) // no Elements: every slot starts uninitialized
	m.Exports(wasmtest.Export("callAt", wasm.ExternalFunction, 0))
	m.Code(wasmtest.Code(nil, wasmtest.Cat(
		wasmtest.LocalGet(0),
		wasmtest.LocalGet(0),
		wasmtest.CallIndirect(0),
	)))

	mod := decode(t, m.Build())
	inst, err := vm.Instantiate(mod, nil)
	require.NoError(t, err)

	_, trap := inst.Invoke("callAt", wasm.I32(0))
	require.NotNil(t, trap)
	assert.Equal(t, vm.TrapUninitializedTableElement, trap.Code)
}

func TestUnreachableTraps(t *testing.T) {
	m := &wasmtest.Module{}
	m.Types(wasmtest.FuncType(nil, nil))
	m.Functions(0)
	m.Exports(wasmtest.Export("boom", wasm.ExternalFunction, 0))
	m.Code(wasmtest.Code(nil, []byte{0x00})) // unreachable

	mod := decode(t, m.Build())
	inst, err := vm.Instantiate(mod, nil)
	require.NoError(t, err)

	_, trap := inst.Invoke("boom")
	require.NotNil(t, trap)
	assert.Equal(t, vm.TrapUnreachable, trap.Code)
}

func TestIntegerDivideByZeroTraps(t *testing.T) {
	m := &wasmtest.Module{}
	m.Types(wasmtest.FuncType([]wasm.ValueType{wasm.ValueTypeI32, wasm.ValueTypeI32}, []wasm.ValueType{wasm.ValueTypeI32}))
	m.Functions(0)
	m.Exports(wasmtest.Export("div", wasm.ExternalFunction, 0))
	m.Code(wasmtest.Code(nil, wasmtest.Cat(
		wasmtest.LocalGet(0),
		wasmtest.LocalGet(1),
		[]byte{0x6D}, // i32.div_s
	)))

	mod := decode(t, m.Build())
	inst, err := vm.Instantiate(mod, nil)
	require.NoError(t, err)

	_, trap := inst.Invoke("div", wasm.I32(10), wasm.I32(0))
	require.NotNil(t, trap)
	assert.Equal(t, vm.TrapIntegerDivideByZero, trap.Code)
}

func TestReturnCarriesResultValue(t *testing.T) {
	m := &wasmtest.Module{}
	m.Types(wasmtest.FuncType(nil, []wasm.ValueType{wasm.ValueTypeI32}))
	m.Functions(0)
	m.Exports(wasmtest.Export("answer", wasm.ExternalFunction, 0))
	m.Code(wasmtest.Code(nil, wasmtest.Cat(
		wasmtest.I32Const(42),
		wasmtest.Return(),
	)))

	mod := decode(t, m.Build())
	inst, err := vm.Instantiate(mod, nil)
	require.NoError(t, err)

	results, trap := inst.Invoke("answer")
	require.Nil(t, trap)
	require.Len(t, results, 1)
	got, _ := results[0].AsI32()
	assert.EqualValues(t, 42, got)
}

func TestBrCarriesResultOutOfBlock(t *testing.T) {
	m := &wasmtest.Module{}
	m.Types(wasmtest.FuncType(nil, []wasm.ValueType{wasm.ValueTypeI32}))
	m.Functions(0)
	m.Exports(wasmtest.Export("answer", wasm.ExternalFunction, 0))
	// Pushes a decoy value before the one the br carries out, so a
	// truncate-before-read bug would either drop the result or return the
	// decoy instead of 42.
	m.Code(wasmtest.Code(nil, wasmtest.Cat(
		wasmtest.Block(false),
		wasmtest.I32Const(7),
		wasmtest.I32Const(42),
		wasmtest.Br(0),
		wasmtest.End(),
	)))

	mod := decode(t, m.Build())
	inst, err := vm.Instantiate(mod, nil)
	require.NoError(t, err)

	results, trap := inst.Invoke("answer")
	require.Nil(t, trap)
	require.Len(t, results, 1)
	got, _ := results[0].AsI32()
	assert.EqualValues(t, 42, got)
}

func TestInvokeUnknownExportTraps(t *testing.T) {
	m := &wasmtest.Module{}
	m.Types(wasmtest.FuncType(nil, nil))
	m.Functions(0)
	m.Code(wasmtest.Code(nil, nil))

	mod := decode(t, m.Build())
	inst, err := vm.Instantiate(mod, nil)
	require.NoError(t, err)

	_, trap := inst.Invoke("nonexistent")
	require.NotNil(t, trap)
	assert.Equal(t, vm.TrapExportNotFound, trap.Code)
}

func TestInvokeSignatureMismatchTraps(t *testing.T) {
	m := &wasmtest.Module{}
	m.Types(wasmtest.FuncType([]wasm.ValueType{wasm.ValueTypeI32, wasm.ValueTypeI32}, []wasm.ValueType{wasm.ValueTypeI32}))
	m.Functions(0)
	m.Exports(wasmtest.Export("add", wasm.ExternalFunction, 0))
	m.Code(wasmtest.Code(nil, wasmtest.Cat(
		wasmtest.LocalGet(0),
		wasmtest.LocalGet(1),
		wasmtest.I32Add(),
	)))

	mod := decode(t, m.Build())
	inst, err := vm.Instantiate(mod, nil)
	require.NoError(t, err)

	_, trap := inst.Invoke("add", wasm.I32(1))
	require.NotNil(t, trap)
	assert.Equal(t, vm.TrapSignatureMismatch, trap.Code)

	_, trap = inst.Invoke("add", wasm.I32(1), wasm.F32(2))
	require.NotNil(t, trap)
	assert.Equal(t, vm.TrapSignatureMismatch, trap.Code)
}

func TestFuelExhaustionTraps(t *testing.T) {
	m := &wasmtest.Module{}
	m.Types(wasmtest.FuncType(nil, []wasm.ValueType{wasm.ValueTypeI32}))
	m.Functions(0)
	m.Exports(wasmtest.Export("addThree", wasm.ExternalFunction, 0))
	m.Code(wasmtest.Code(nil, wasmtest.Cat(
		wasmtest.I32Const(1),
		wasmtest.I32Const(2),
		wasmtest.I32Add(),
	)))

	mod := decode(t, m.Build())
	inst, err := vm.Instantiate(mod, nil, vm.WithFuel(fuel.FlatPolicy{PerOp: 1}, 2))
	require.NoError(t, err)

	_, trap := inst.Invoke("addThree")
	require.NotNil(t, trap)
	assert.Equal(t, vm.TrapOutOfFuel, trap.Code)
}
