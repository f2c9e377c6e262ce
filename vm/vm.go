package vm

import (
	"github.com/tinywasm/tinywasm/wasm"
)

// Invoke calls the exported function named funcName with args and returns
// its results, or a *Trap if execution fails. This is the third of the
// three public operations spec.md §4.6 names: decode (wasm.Decode),
// instantiate (Instantiate), invoke (this). The teacher's equivalent
// (vm.Invoke in the deleted main.go-era API) took a raw function index;
// this one resolves by export name so embedders don't need to know the
// function index space layout.
func (in *Instance) Invoke(funcName string, args ...wasm.Val) ([]wasm.Val, *Trap) {
	idx, err := in.GetFunctionIndex(funcName)
	if err != nil {
		return nil, trapf(TrapExportNotFound, "%s", err)
	}
	if trap := in.checkSignature(idx, args); trap != nil {
		return nil, trap
	}
	return in.call(idx, args)
}

// GetFunctionIndex resolves an exported function's name to its index in
// the function index space, the same lookup the teacher's CLI host
// (main.go, since removed — invocation now goes entirely through exports)
// performed by hand against the module's export section.
func (in *Instance) GetFunctionIndex(name string) (int, error) {
	exp, ok := in.exports[name]
	if !ok {
		return 0, instantiateErrf("no export named %q", name)
	}
	if exp.Desc.Kind != wasm.ExternalFunction {
		return 0, instantiateErrf("export %q is not a function", name)
	}
	return int(exp.Desc.Idx), nil
}

// CallByIndex invokes the function at the given function-index-space
// position directly, bypassing export-name lookup. Useful for host code
// holding a table-derived index (e.g. from a prior call_indirect) or for
// test harnesses assembling modules without an export section.
func (in *Instance) CallByIndex(idx int, args ...wasm.Val) ([]wasm.Val, *Trap) {
	if trap := in.checkSignature(idx, args); trap != nil {
		return nil, trap
	}
	return in.call(idx, args)
}

// checkSignature validates args against funcIdx's declared parameter types
// before a frame is constructed, so a host-supplied call with the wrong
// arity or argument types traps with a named SignatureMismatch instead of
// newFrame silently zero-padding missing locals or call() reading past the
// end of args. Calls originating from bytecode (the call/call_indirect
// opcodes) don't need this: the interpreter already pops exactly
// len(sig.ParamTypes) operands of the right type off the stack, so args is
// trusted by construction there. This check only guards the two public
// entry points where args comes straight from a Go caller.
func (in *Instance) checkSignature(funcIdx int, args []wasm.Val) *Trap {
	if funcIdx < 0 || funcIdx >= len(in.funcs) {
		return trapf(TrapUndefinedTableElement, "function index %d out of range", funcIdx)
	}
	params := in.funcs[funcIdx].sig.ParamTypes
	if len(args) != len(params) {
		return trapf(TrapSignatureMismatch, "expected %d argument(s), got %d", len(params), len(args))
	}
	for i, want := range params {
		if args[i].Type != want {
			return trapf(TrapSignatureMismatch, "argument %d: expected %s, got %s", i, want, args[i].Type)
		}
	}
	return nil
}
