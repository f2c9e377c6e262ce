package vm

import "github.com/tinywasm/tinywasm/wasm"

// wasmPageSize is the fixed linear-memory page size WebAssembly 1.0
// mandates, the same constant the wider retrieved pack's wagon-derived
// interpreters name wasmPageSize for.
const wasmPageSize = 65536

// memInstance is one instantiated linear memory: a byte store backed by
// the Containers capability (spec.md §9) plus the limits that bound how
// far memory.grow may extend it.
type memInstance struct {
	data   Containers[byte]
	limits wasm.Limits
}

func newMemInstance(mt wasm.Mem) *memInstance {
	return &memInstance{
		data:   NewSliceContainers[byte](int(mt.Limits.Min) * wasmPageSize),
		limits: mt.Limits,
	}
}

// pages returns the current size in 64KiB pages.
func (m *memInstance) pages() uint32 {
	return uint32(m.data.Len() / wasmPageSize)
}

// grow extends memory by delta pages, returning the previous page count,
// or ok=false if doing so would exceed the declared maximum or the
// 65536 pages a 32-bit address space holds (or the backing Containers
// refuses, e.g. a FixedContainers at capacity).
func (m *memInstance) grow(delta uint32) (uint32, bool) {
	prev := m.pages()
	if uint64(prev)+uint64(delta) > 65536 {
		return prev, false
	}
	if m.limits.HasMax && prev+delta > m.limits.Max {
		return prev, false
	}
	if _, ok := m.data.Grow(int(delta) * wasmPageSize); !ok {
		return prev, false
	}
	return prev, true
}

func (m *memInstance) read(offset, length uint32) ([]byte, bool) {
	if uint64(offset)+uint64(length) > uint64(m.data.Len()) {
		return nil, false
	}
	out := make([]byte, length)
	for i := uint32(0); i < length; i++ {
		b, ok := m.data.Get(int(offset + i))
		if !ok {
			return nil, false
		}
		out[i] = b
	}
	return out, true
}

func (m *memInstance) write(offset uint32, b []byte) bool {
	if uint64(offset)+uint64(len(b)) > uint64(m.data.Len()) {
		return false
	}
	for i, v := range b {
		if !m.data.Set(int(offset)+i, v) {
			return false
		}
	}
	return true
}

// MemSize returns the instance's default memory size in pages. Panics if
// the instance declares no memory, mirroring the teacher's assumption
// that a module using memory instructions has exactly one.
func (in *Instance) MemSize() uint32 {
	return in.memories[0].pages()
}

// ExtendMemory grows the instance's default memory by n pages, returning
// the previous size, or false if the grow was refused.
func (in *Instance) ExtendMemory(n uint32) (uint32, bool) {
	return in.memories[0].grow(n)
}

// MemRead copies length bytes starting at offset out of the instance's
// default memory.
func (in *Instance) MemRead(offset, length uint32) ([]byte, *Trap) {
	if len(in.memories) == 0 {
		return nil, ErrOutOfBoundsMemory
	}
	b, ok := in.memories[0].read(offset, length)
	if !ok {
		return nil, ErrOutOfBoundsMemory
	}
	return b, nil
}

// MemWrite writes data into the instance's default memory starting at
// offset.
func (in *Instance) MemWrite(offset uint32, data []byte) *Trap {
	if len(in.memories) == 0 {
		return ErrOutOfBoundsMemory
	}
	if !in.memories[0].write(offset, data) {
		return ErrOutOfBoundsMemory
	}
	return nil
}

// tableInstance is one instantiated table: a vector of function indices
// (-1 marks an uninitialized slot) plus its declared limits.
type tableInstance struct {
	elems  Containers[int]
	limits wasm.Limits
}

func newTableInstance(tt wasm.Table) *tableInstance {
	c := NewSliceContainers[int](int(tt.Limits.Min))
	for i := 0; i < c.Len(); i++ {
		c.Set(i, -1)
	}
	return &tableInstance{elems: c, limits: tt.Limits}
}

func (t *tableInstance) get(idx uint32) (int, bool) {
	return t.elems.Get(int(idx))
}

func (t *tableInstance) set(idx uint32, funcIdx int) bool {
	return t.elems.Set(int(idx), funcIdx)
}

// globalInstance is one instantiated global's current value. Immutable
// globals are enforced at the call site (interp.go's global.set handler),
// not here.
type globalInstance struct {
	Type  wasm.GlobalType
	Value wasm.Val
}
