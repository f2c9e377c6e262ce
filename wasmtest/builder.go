// Package wasmtest builds minimal WebAssembly binaries by hand for use in
// this repository's tests, replacing the teacher's approach of shelling
// out to wat2wasm/wast2json (vm/vm_test.go, vm/wasm_spec_test.go) with
// plain Go so the test suite has no external tool dependency. Each
// exported builder mirrors one section of the binary format closely
// enough that a reader can match it line-for-line against
// https://webassembly.github.io/spec/core/binary/modules.html.
package wasmtest

import (
	"github.com/tinywasm/tinywasm/leb128"
	"github.com/tinywasm/tinywasm/wasm"
)

// Module accumulates section bytes for Build. Most sections are set
// wholesale from caller-encoded entries; Global is the one exception,
// accumulated incrementally in globalEntries since tests build globals up
// one at a time.
type Module struct {
	sections     [12][]byte
	globalEntries [][]byte
}

func u32(v uint32) []byte  { return leb128.EncodeUint32(v) }
func s32(v int32) []byte   { return leb128.EncodeInt32(v) }
func s64(v int64) []byte   { return leb128.EncodeInt64(v) }
func name(s string) []byte { return append(u32(uint32(len(s))), []byte(s)...) }

func vec(items [][]byte) []byte {
	out := u32(uint32(len(items)))
	for _, it := range items {
		out = append(out, it...)
	}
	return out
}

// FuncType encodes a single function type entry for the type section.
func FuncType(params, results []wasm.ValueType) []byte {
	out := []byte{wasm.FuncTypeForm}
	out = append(out, u32(uint32(len(params)))...)
	for _, p := range params {
		out = append(out, byte(p))
	}
	out = append(out, u32(uint32(len(results)))...)
	for _, r := range results {
		out = append(out, byte(r))
	}
	return out
}

// Types sets the type section from a list of encoded FuncType entries.
func (m *Module) Types(entries ...[]byte) *Module {
	m.sections[1] = vec(entries)
	return m
}

// ImportFunc encodes one function import entry.
func ImportFunc(moduleName, field string, typeIdx uint32) []byte {
	out := append(name(moduleName), name(field)...)
	out = append(out, wasm.ExternalFunction)
	return append(out, u32(typeIdx)...)
}

// ImportMemory encodes one memory import entry; a nil max declares no
// maximum.
func ImportMemory(moduleName, field string, min uint32, max *uint32) []byte {
	out := append(name(moduleName), name(field)...)
	out = append(out, wasm.ExternalMemory)
	return append(out, limitsBytes(min, max)...)
}

func limitsBytes(min uint32, max *uint32) []byte {
	if max == nil {
		return append([]byte{0x00}, u32(min)...)
	}
	out := append([]byte{0x01}, u32(min)...)
	return append(out, u32(*max)...)
}

// Imports sets the import section.
func (m *Module) Imports(entries ...[]byte) *Module {
	m.sections[2] = vec(entries)
	return m
}

// Functions sets the function section: one type index per defined function.
func (m *Module) Functions(typeIdxs ...uint32) *Module {
	items := make([][]byte, len(typeIdxs))
	for i, t := range typeIdxs {
		items[i] = u32(t)
	}
	m.sections[3] = vec(items)
	return m
}

// Table encodes the table section for a single funcref table.
func (m *Module) Table(min uint32, max *uint32) *Module {
	entry := append([]byte{wasm.ElemTypeFuncRef}, limitsBytes(min, max)...)
	m.sections[4] = vec([][]byte{entry})
	return m
}

// Memory encodes the memory section for a single memory.
func (m *Module) Memory(min uint32, max *uint32) *Module {
	m.sections[5] = vec([][]byte{limitsBytes(min, max)})
	return m
}

// Global encodes one global entry (mutable or not) with an i32.const
// initializer, appending it to the global section.
func (m *Module) Global(vt wasm.ValueType, mut wasm.Mut, initI32 int32) *Module {
	entry := append([]byte{byte(vt), byte(mut)}, I32Const(initI32)...)
	entry = append(entry, End()...)
	m.globalEntries = append(m.globalEntries, entry)
	m.sections[6] = vec(m.globalEntries)
	return m
}

// Export encodes one export entry.
func Export(fieldName string, kind byte, idx uint32) []byte {
	out := append(name(fieldName), kind)
	return append(out, u32(idx)...)
}

// Exports sets the export section.
func (m *Module) Exports(entries ...[]byte) *Module {
	m.sections[7] = vec(entries)
	return m
}

// Start sets the start section to the given function index.
func (m *Module) Start(idx uint32) *Module {
	m.sections[8] = u32(idx)
	return m
}

// Elem encodes one element-segment entry with an i32.const offset.
func Elem(tableIdx uint32, offset int32, funcIdxs ...uint32) []byte {
	out := append(u32(tableIdx), I32Const(offset)...)
	out = append(out, End()...)
	items := make([][]byte, len(funcIdxs))
	for i, fi := range funcIdxs {
		items[i] = u32(fi)
	}
	return append(out, vec(items)...)
}

// Elements sets the element section.
func (m *Module) Elements(entries ...[]byte) *Module {
	m.sections[9] = vec(entries)
	return m
}

// Data encodes one data-segment entry with an i32.const offset.
func Data(memIdx uint32, offset int32, init []byte) []byte {
	out := append(u32(memIdx), I32Const(offset)...)
	out = append(out, End()...)
	out = append(out, u32(uint32(len(init)))...)
	return append(out, init...)
}

// DataSegments sets the data section.
func (m *Module) DataSegments(entries ...[]byte) *Module {
	m.sections[11] = vec(entries)
	return m
}

// Code encodes one function body: its locals followed by raw instruction
// bytes, terminated with `end`.
func Code(locals []wasm.ValueType, body []byte) []byte {
	grouped := groupLocals(locals)
	out := u32(uint32(len(grouped)))
	for _, g := range grouped {
		out = append(out, u32(g.count)...)
		out = append(out, byte(g.vt))
	}
	out = append(out, body...)
	out = append(out, End()...)
	sized := append(u32(uint32(len(out))), out...)
	return sized
}

type localGroup struct {
	count uint32
	vt    wasm.ValueType
}

func groupLocals(locals []wasm.ValueType) []localGroup {
	var groups []localGroup
	for _, vt := range locals {
		if len(groups) > 0 && groups[len(groups)-1].vt == vt {
			groups[len(groups)-1].count++
			continue
		}
		groups = append(groups, localGroup{count: 1, vt: vt})
	}
	return groups
}

// Code sets the code section. Entries must come from the Code function
// above, which already includes each body's own size prefix.
func (m *Module) Code(bodies ...[]byte) *Module {
	out := u32(uint32(len(bodies)))
	for _, b := range bodies {
		out = append(out, b...)
	}
	m.sections[10] = out
	return m
}

// Build assembles the module header and every populated section, in
// canonical order, into a complete binary.
func (m *Module) Build() []byte {
	out := make([]byte, 0, 64)
	out = append(out, 0x00, 0x61, 0x73, 0x6D) // magic
	out = append(out, 0x01, 0x00, 0x00, 0x00) // version
	for id, body := range m.sections {
		if len(body) == 0 {
			continue
		}
		out = append(out, byte(id))
		out = append(out, u32(uint32(len(body)))...)
		out = append(out, body...)
	}
	return out
}

// Instruction encoding helpers, used both by test bodies built via Code
// and by the Global/Elem/Data const-expr helpers above.

func I32Const(v int32) []byte { return append([]byte{0x41}, s32(v)...) }
func I64Const(v int64) []byte { return append([]byte{0x42}, s64(v)...) }
func End() []byte             { return []byte{0x0B} }
func LocalGet(idx uint32) []byte  { return append([]byte{0x20}, u32(idx)...) }
func LocalSet(idx uint32) []byte  { return append([]byte{0x21}, u32(idx)...) }
func GlobalGet(idx uint32) []byte { return append([]byte{0x23}, u32(idx)...) }
func GlobalSet(idx uint32) []byte { return append([]byte{0x24}, u32(idx)...) }
func Call(idx uint32) []byte      { return append([]byte{0x10}, u32(idx)...) }
func CallIndirect(typeIdx uint32) []byte {
	return append(append([]byte{0x11}, u32(typeIdx)...), 0x00)
}
func Br(depth uint32) []byte   { return append([]byte{0x0C}, u32(depth)...) }
func BrIf(depth uint32) []byte { return append([]byte{0x0D}, u32(depth)...) }
func Return() []byte           { return []byte{0x0F} }
func Block(resultEmpty bool) []byte {
	if resultEmpty {
		return []byte{0x02, byte(wasm.BlockTypeEmpty)}
	}
	return []byte{0x02, byte(wasm.ValueTypeI32)}
}
func Loop(resultEmpty bool) []byte {
	if resultEmpty {
		return []byte{0x03, byte(wasm.BlockTypeEmpty)}
	}
	return []byte{0x03, byte(wasm.ValueTypeI32)}
}

func I32Add() []byte { return []byte{0x6A} }
func I32Sub() []byte { return []byte{0x6B} }
func I32LtS() []byte { return []byte{0x48} }

func cat(bs ...[]byte) []byte {
	var out []byte
	for _, b := range bs {
		out = append(out, b...)
	}
	return out
}

// Cat concatenates instruction byte slices into one body, a small
// convenience so callers don't juggle append chains in test code.
func Cat(bs ...[]byte) []byte { return cat(bs...) }
