package vm

import (
	"github.com/tinywasm/tinywasm/fuel"
	"github.com/tinywasm/tinywasm/wasm"
)

// Instance is an instantiated module: resolved imports, allocated and
// initialized tables/memories/globals, ready to be called into. It is the
// product of Instantiate, the second of the three public operations
// spec.md §4.6 names (decode, instantiate, invoke).
type Instance struct {
	module    *wasm.Module
	funcs     []*funcInstance
	tables    []*tableInstance
	memories  []*memInstance
	globals   []*globalInstance
	exports   map[string]wasm.Export
	meter     *fuel.Meter
	maxDepth  int
	callDepth int
}

// instanceConfig accumulates Option settings before Instantiate builds the
// Instance; kept separate from Instance itself so Option can be a plain
// function type without exposing instance internals to callers.
type instanceConfig struct {
	meter    *fuel.Meter
	maxDepth int
}

// Option configures optional instantiation behavior (fuel metering, call
// depth limits). See WithFuel and WithMaxCallDepth.
type Option func(*instanceConfig)

// WithMaxCallDepth bounds the call-frame stack, trapping with
// ErrStackOverflow once exceeded. Without this option a default of 1<<16
// applies, generous enough for realistic recursion while still bounding
// a host process's native stack usage from a guest's unbounded recursion.
func WithMaxCallDepth(n int) Option {
	return func(cfg *instanceConfig) { cfg.maxDepth = n }
}

const defaultMaxCallDepth = 1 << 16

// Instantiate binds module to resolver and produces a ready-to-call
// Instance, per spec.md §4.4's ordered pipeline: resolve imports, allocate
// own tables/memories, evaluate global initializers, apply element and
// data segments, then (if present) run the start function. A failure is
// returned as an *InstantiateError, except that an element or data segment
// that does not fit its table or memory, and a trapping start function,
// surface as a *Trap, and a resolver's own error is returned as it is.
func Instantiate(module *wasm.Module, resolver Resolver, opts ...Option) (*Instance, error) {
	cfg := &instanceConfig{maxDepth: defaultMaxCallDepth}
	for _, o := range opts {
		o(cfg)
	}
	if cfg.meter == nil {
		cfg.meter = fuel.NewMeter(fuel.FreePolicy{}, 0)
		cfg.meter.Unlimited = true
	}

	in := &Instance{
		module:   module,
		exports:  module.Exports,
		meter:    cfg.meter,
		maxDepth: cfg.maxDepth,
	}

	if err := in.resolveImports(module, resolver); err != nil {
		return nil, err
	}
	in.instantiateOwnFuncs(module)
	in.instantiateOwnTables(module)
	in.instantiateOwnMemories(module)
	if err := in.instantiateGlobals(module); err != nil {
		return nil, err
	}
	if err := in.applyElements(module); err != nil {
		return nil, err
	}
	if err := in.applyData(module); err != nil {
		return nil, err
	}
	if module.Start != nil {
		if _, trap := in.call(int(*module.Start), nil); trap != nil {
			return nil, trap
		}
	}
	return in, nil
}

func (in *Instance) resolveImports(module *wasm.Module, resolver Resolver) error {
	for _, imp := range module.Imports {
		switch imp.Desc.Kind {
		case wasm.ExternalFunction:
			sig := module.Types[imp.Desc.TypeIdx]
			if resolver == nil {
				return instantiateErrf("no resolver supplied for function import %s.%s", imp.ModuleName, imp.FieldName)
			}
			hf, err := resolver.ResolveFunc(imp.ModuleName, imp.FieldName, sig)
			if err != nil {
				return err
			}
			in.funcs = append(in.funcs, &funcInstance{sig: sig, host: hf, name: imp.FieldName})
		case wasm.ExternalTable:
			t, err := resolver.ResolveTable(imp.ModuleName, imp.FieldName, *imp.Desc.Table)
			if err != nil {
				return err
			}
			in.tables = append(in.tables, t)
		case wasm.ExternalMemory:
			m, err := resolver.ResolveMemory(imp.ModuleName, imp.FieldName, *imp.Desc.Mem)
			if err != nil {
				return err
			}
			in.memories = append(in.memories, m)
		case wasm.ExternalGlobalType:
			v, err := resolver.ResolveGlobal(imp.ModuleName, imp.FieldName, *imp.Desc.GlobalType)
			if err != nil {
				return err
			}
			in.globals = append(in.globals, &globalInstance{Type: *imp.Desc.GlobalType, Value: v})
		}
	}
	return nil
}

func (in *Instance) instantiateOwnFuncs(module *wasm.Module) {
	for _, f := range module.Funcs {
		if f.Imported {
			continue // already appended to in.funcs by resolveImports, in function-index order
		}
		in.funcs = append(in.funcs, &funcInstance{
			sig:        f.Type,
			body:       f.Body,
			localTypes: flattenLocals(f.Type, f.Body),
			name:       f.Name,
		})
	}
}

func flattenLocals(sig wasm.FuncType, body *wasm.Func) []wasm.ValueType {
	types := append([]wasm.ValueType(nil), sig.ParamTypes...)
	for _, le := range body.Locals {
		for i := uint32(0); i < le.Count; i++ {
			types = append(types, le.ValueType)
		}
	}
	return types
}

func (in *Instance) instantiateOwnTables(module *wasm.Module) {
	for _, t := range module.Tables[countImportedTables(module):] {
		in.tables = append(in.tables, newTableInstance(t))
	}
}

func countImportedTables(module *wasm.Module) int {
	n := 0
	for _, imp := range module.Imports {
		if imp.Desc.Kind == wasm.ExternalTable {
			n++
		}
	}
	return n
}

func (in *Instance) instantiateOwnMemories(module *wasm.Module) {
	for _, m := range module.Memories[countImportedMemories(module):] {
		in.memories = append(in.memories, newMemInstance(m))
	}
}

func countImportedMemories(module *wasm.Module) int {
	n := 0
	for _, imp := range module.Imports {
		if imp.Desc.Kind == wasm.ExternalMemory {
			n++
		}
	}
	return n
}

func (in *Instance) instantiateGlobals(module *wasm.Module) error {
	importedGlobals := len(in.globals)
	for i, g := range module.Globals[importedGlobals:] {
		v, err := in.evalConstExpr(g.Init, g.Type.ValueType)
		if err != nil {
			return instantiateErrf("global %d initializer: %s", importedGlobals+i, err)
		}
		in.globals = append(in.globals, &globalInstance{Type: g.Type, Value: v})
	}
	return nil
}

// evalConstExpr evaluates the restricted constant-expression language
// permitted for global initializers and segment offsets (spec.md §4.3):
// a single *.const, or a global.get of an already-resolved (necessarily
// imported) global.
func (in *Instance) evalConstExpr(expr []byte, want wasm.ValueType) (wasm.Val, error) {
	if len(expr) == 0 {
		return wasm.Val{}, instantiateErrf("empty const expression")
	}
	op := expr[0]
	switch op {
	case 0x41: // i32.const
		v, _, err := decodeSleb(expr[1:], 32)
		if err != nil {
			return wasm.Val{}, instantiateErrf("malformed i32.const: %s", err)
		}
		return wasm.I32(int32(v)), nil
	case 0x42: // i64.const
		v, _, err := decodeSleb(expr[1:], 64)
		if err != nil {
			return wasm.Val{}, instantiateErrf("malformed i64.const: %s", err)
		}
		return wasm.I64(v), nil
	case 0x43: // f32.const
		if len(expr) < 5 {
			return wasm.Val{}, instantiateErrf("truncated f32.const")
		}
		return wasm.FromBits(wasm.ValueTypeF32, uint64(leU32(expr[1:5]))), nil
	case 0x44: // f64.const
		if len(expr) < 9 {
			return wasm.Val{}, instantiateErrf("truncated f64.const")
		}
		return wasm.FromBits(wasm.ValueTypeF64, leU64(expr[1:9])), nil
	case 0x23: // global.get
		idx, _, err := decodeUleb(expr[1:], 32)
		if err != nil {
			return wasm.Val{}, instantiateErrf("malformed global.get: %s", err)
		}
		imported := 0
		for _, imp := range in.module.Imports {
			if imp.Desc.Kind == wasm.ExternalGlobalType {
				imported++
			}
		}
		if int(idx) >= imported {
			return wasm.Val{}, instantiateErrf("global.get index %d does not name an imported global in const expr", idx)
		}
		return in.globals[idx].Value, nil
	default:
		return wasm.Val{}, instantiateErrf("opcode 0x%x not permitted in a const expression", op)
	}
}

func (in *Instance) applyElements(module *wasm.Module) error {
	for i, el := range module.Elems {
		if int(el.TableIdx) >= len(in.tables) {
			return instantiateErrf("element segment %d: table index %d out of range", i, el.TableIdx)
		}
		offVal, err := in.evalConstExpr(el.Offset, wasm.ValueTypeI32)
		if err != nil {
			return err
		}
		off, _ := offVal.AsI32()
		table := in.tables[el.TableIdx]
		for j, fi := range el.FuncIdxs {
			if !table.set(uint32(off)+uint32(j), int(fi)) {
				return trapf(TrapElementSegmentOutOfBounds, "element segment %d: offset %d out of table bounds", i, off)
			}
		}
	}
	return nil
}

func (in *Instance) applyData(module *wasm.Module) error {
	for i, d := range module.Datas {
		if int(d.MemIdx) >= len(in.memories) {
			return instantiateErrf("data segment %d: memory index %d out of range", i, d.MemIdx)
		}
		offVal, err := in.evalConstExpr(d.Offset, wasm.ValueTypeI32)
		if err != nil {
			return err
		}
		off, _ := offVal.AsI32()
		if !in.memories[d.MemIdx].write(uint32(off), d.Init) {
			return trapf(TrapDataSegmentOutOfBounds, "data segment %d: offset %d out of memory bounds", i, off)
		}
	}
	return nil
}

// Exports returns the instance's export table, for embedders that want to
// enumerate what a module makes available rather than calling GetExport
// by name directly.
func (in *Instance) Exports() map[string]wasm.Export { return in.exports }
