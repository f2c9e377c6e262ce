package vm

import (
	"math"
	"math/bits"

	"github.com/tinywasm/tinywasm/number"
	"github.com/tinywasm/tinywasm/opcode"
	"github.com/tinywasm/tinywasm/wasm"
)

// call invokes the function at funcIdx in the function index space with
// args, dispatching to a host function directly or running the bytecode
// interpreter loop for a defined one. This is the single entry point
// call/call_indirect and Instantiate's start-function step all funnel
// through, keeping call-depth accounting in one place.
func (in *Instance) call(funcIdx int, args []wasm.Val) ([]wasm.Val, *Trap) {
	if funcIdx < 0 || funcIdx >= len(in.funcs) {
		return nil, trapf(TrapUndefinedTableElement, "function index %d out of range", funcIdx)
	}
	fi := in.funcs[funcIdx]
	if fi.isHost() {
		env := &hostEnv{inst: in}
		return fi.host(env, args)
	}
	in.callDepth++
	defer func() { in.callDepth-- }()
	if in.callDepth > in.maxDepth {
		return nil, ErrStackOverflow
	}
	frame := newFrame(fi, args)
	frame.pushLabel(label{continuePC: len(frame.code()), arity: len(fi.sig.ReturnTypes), stackBase: 0})
	return in.run(frame)
}

// run drives frame's bytecode to completion (falling off the end, an
// explicit return, or a trap) and returns the function's result values
// popped off the top of its operand stack.
func (in *Instance) run(f *Frame) ([]wasm.Val, *Trap) {
	for !f.atEnd() {
		if trap := in.step(f); trap != nil {
			return nil, trap
		}
	}
	arity := 0
	if fi := f.fn; fi != nil {
		arity = len(fi.sig.ReturnTypes)
	}
	if len(f.stack) < arity {
		return nil, trapf(TrapUnreachable, "function body underflowed its own result arity")
	}
	return append([]wasm.Val(nil), f.stack[len(f.stack)-arity:]...), nil
}

// step executes the single instruction at f.pc, advancing f.pc past it
// (or past the branch target it jumped to) and returns a non-nil *Trap if
// execution must abort.
func (in *Instance) step(f *Frame) *Trap {
	code := f.code()
	op := opcode.Opcode(code[f.pc])
	if !in.meter.Consume(op) {
		return ErrOutOfFuel
	}

	switch op {
	case opcode.Unreachable:
		return ErrUnreachable
	case opcode.Nop:
		f.pc++
	case opcode.Block, opcode.Loop:
		arity := blockArity(in.module, code[f.pc+1])
		end := f.fn.body.Labels.End[f.pc]
		cont := end
		if op == opcode.Loop {
			cont = f.pc
		}
		f.pushLabel(label{continuePC: cont, arity: arity, stackBase: len(f.stack), isLoop: op == opcode.Loop})
		f.pc += 2
	case opcode.If:
		arity := blockArity(in.module, code[f.pc+1])
		cond, trap := f.pop()
		if trap != nil {
			return trap
		}
		v, _ := cond.AsI32()
		end := f.fn.body.Labels.End[f.pc]
		elsePC, hasElse := f.fn.body.Labels.Else[f.pc]
		f.pushLabel(label{continuePC: end, arity: arity, stackBase: len(f.stack)})
		if v != 0 {
			f.pc += 2
		} else if hasElse && elsePC >= 0 {
			f.pc = elsePC + 1
		} else {
			f.pc = end + 1
			f.popLabel()
		}
	case opcode.Else:
		// Reached by falling through the `if` branch's body: skip to end.
		l := f.popLabel()
		f.pc = l.continuePC + 1
	case opcode.End:
		f.popLabel()
		f.pc++
	case opcode.Br:
		depth, n, err := decodeUleb(code[f.pc+1:], 32)
		if err != nil {
			return wrapMalformed(err)
		}
		return in.branch(f, int(depth), f.pc+1+int(n))
	case opcode.BrIf:
		depth, n, err := decodeUleb(code[f.pc+1:], 32)
		if err != nil {
			return wrapMalformed(err)
		}
		cond, trap := f.pop()
		if trap != nil {
			return trap
		}
		v, _ := cond.AsI32()
		next := f.pc + 1 + int(n)
		if v == 0 {
			f.pc = next
			return nil
		}
		return in.branch(f, int(depth), next)
	case opcode.BrTable:
		return in.execBrTable(f)
	case opcode.Return:
		return in.branch(f, len(f.labels)-1, 0)
	case opcode.Call:
		idx, n, err := decodeUleb(code[f.pc+1:], 32)
		if err != nil {
			return wrapMalformed(err)
		}
		f.pc += 1 + int(n)
		args, trap := popArgs(f, in.funcs[idx].sig.ParamTypes)
		if trap != nil {
			return trap
		}
		results, trap := in.call(int(idx), args)
		if trap != nil {
			return trap
		}
		for _, r := range results {
			f.push(r)
		}
	case opcode.CallIndirect:
		return in.execCallIndirect(f)
	case opcode.Drop:
		_, trap := f.pop()
		if trap != nil {
			return trap
		}
		f.pc++
	case opcode.Select:
		c, trap := f.pop()
		if trap != nil {
			return trap
		}
		b, trap := f.pop()
		if trap != nil {
			return trap
		}
		a, trap := f.pop()
		if trap != nil {
			return trap
		}
		cv, _ := c.AsI32()
		if cv != 0 {
			f.push(a)
		} else {
			f.push(b)
		}
		f.pc++
	case opcode.LocalGet:
		idx, n, err := decodeUleb(code[f.pc+1:], 32)
		if err != nil {
			return wrapMalformed(err)
		}
		f.push(f.locals[idx])
		f.pc += 1 + int(n)
	case opcode.LocalSet:
		idx, n, err := decodeUleb(code[f.pc+1:], 32)
		if err != nil {
			return wrapMalformed(err)
		}
		v, trap := f.pop()
		if trap != nil {
			return trap
		}
		f.locals[idx] = v
		f.pc += 1 + int(n)
	case opcode.LocalTee:
		idx, n, err := decodeUleb(code[f.pc+1:], 32)
		if err != nil {
			return wrapMalformed(err)
		}
		v, trap := f.pop()
		if trap != nil {
			return trap
		}
		f.locals[idx] = v
		f.push(v)
		f.pc += 1 + int(n)
	case opcode.GlobalGet:
		idx, n, err := decodeUleb(code[f.pc+1:], 32)
		if err != nil {
			return wrapMalformed(err)
		}
		f.push(in.globals[idx].Value)
		f.pc += 1 + int(n)
	case opcode.GlobalSet:
		idx, n, err := decodeUleb(code[f.pc+1:], 32)
		if err != nil {
			return wrapMalformed(err)
		}
		g := in.globals[idx]
		if g.Type.Mut != wasm.Var {
			return ErrImmutableGlobal
		}
		v, trap := f.pop()
		if trap != nil {
			return trap
		}
		g.Value = v
		f.pc += 1 + int(n)
	case opcode.MemorySize:
		f.push(wasm.I32(int32(in.MemSize())))
		f.pc += 2 // opcode + reserved byte
	case opcode.MemoryGrow:
		delta, trap := f.pop()
		if trap != nil {
			return trap
		}
		d, _ := delta.AsI32()
		if !in.meter.ConsumeGrow(uint32(d)) {
			return ErrOutOfFuel
		}
		prev, ok := in.ExtendMemory(uint32(d))
		if !ok {
			f.push(wasm.I32(-1))
		} else {
			f.push(wasm.I32(int32(prev)))
		}
		f.pc += 2
	case opcode.I32Const:
		v, n, err := decodeSleb(code[f.pc+1:], 32)
		if err != nil {
			return wrapMalformed(err)
		}
		f.push(wasm.I32(int32(v)))
		f.pc += 1 + int(n)
	case opcode.I64Const:
		v, n, err := decodeSleb(code[f.pc+1:], 64)
		if err != nil {
			return wrapMalformed(err)
		}
		f.push(wasm.I64(v))
		f.pc += 1 + int(n)
	case opcode.F32Const:
		f.push(wasm.FromBits(wasm.ValueTypeF32, uint64(leU32(code[f.pc+1:f.pc+5]))))
		f.pc += 5
	case opcode.F64Const:
		f.push(wasm.FromBits(wasm.ValueTypeF64, leU64(code[f.pc+1:f.pc+9])))
		f.pc += 9
	default:
		if opcode.HasMemArg(op) {
			return in.execMemOp(f, op)
		}
		return in.execNumeric(f, op)
	}
	return nil
}

func wrapMalformed(err error) *Trap {
	return trapf(TrapUnreachable, "malformed immediate: %s", err)
}

// branch truncates to the label `depth` levels up and resumes at its
// continuation PC, re-pushing the label first if it's a loop (branching
// to a loop re-enters it, so it must stay active; execution resumes just
// past the loop header so the loop instruction does not push the label a
// second time) and carrying forward
// `arity` result values sitting on top of the stack when leaving a block.
// The result values are read off the top of the stack *before* it's
// truncated to the label's entry height — truncating first would discard
// the very values the branch is supposed to carry out.
// fallbackPC is used only when depth targets a sentinel case (unused here,
// kept for symmetry with br_if's inline fast path).
func (in *Instance) branch(f *Frame, depth int, fallbackPC int) *Trap {
	l, trap := f.branchTarget(depth)
	if trap != nil {
		return trap
	}
	if len(f.stack) < l.arity {
		return trapf(TrapUnreachable, "branch underflowed block arity")
	}
	results := append([]wasm.Val(nil), f.stack[len(f.stack)-l.arity:]...)
	if l.stackBase <= len(f.stack) {
		f.stack = f.stack[:l.stackBase]
	}
	for _, r := range results {
		f.push(r)
	}
	f.pc = l.continuePC
	if l.isLoop {
		f.pushLabel(l)
		f.pc = l.continuePC + 2 // past the loop opcode and its block-type byte
	}
	if !l.isLoop {
		// Land just past the structured instruction we branched to
		// (end/function-exit); the caller of run() collects results off
		// the stack, so no further PC bump is needed for function exit.
		if l.continuePC < len(f.code()) {
			f.pc = l.continuePC + 1
		}
	}
	return nil
}

func (in *Instance) execBrTable(f *Frame) *Trap {
	code := f.code()
	count, n, err := decodeUleb(code[f.pc+1:], 32)
	if err != nil {
		return wrapMalformed(err)
	}
	off := f.pc + 1 + int(n)
	targets := make([]int, count)
	for i := int64(0); i < count; i++ {
		t, m, err := decodeUleb(code[off:], 32)
		if err != nil {
			return wrapMalformed(err)
		}
		targets[i] = int(t)
		off += int(m)
	}
	def, m, err := decodeUleb(code[off:], 32)
	if err != nil {
		return wrapMalformed(err)
	}
	off += int(m)

	idxVal, trap := f.pop()
	if trap != nil {
		return trap
	}
	i, _ := idxVal.AsI32()
	depth := int(def)
	if i >= 0 && int(i) < len(targets) {
		depth = targets[i]
	}
	return in.branch(f, depth, off)
}

func (in *Instance) execCallIndirect(f *Frame) *Trap {
	code := f.code()
	typeIdx, n, err := decodeUleb(code[f.pc+1:], 32)
	if err != nil {
		return wrapMalformed(err)
	}
	f.pc += 1 + int(n) + 1 // + reserved byte
	idxVal, trap := f.pop()
	if trap != nil {
		return trap
	}
	elemIdx, _ := idxVal.AsI32()
	if len(in.tables) == 0 {
		return ErrUndefinedTableElement
	}
	funcIdx, ok := in.tables[0].get(uint32(elemIdx))
	if !ok {
		return ErrUndefinedTableElement
	}
	if funcIdx < 0 {
		return ErrUninitializedTableElement
	}
	if funcIdx >= len(in.funcs) {
		return ErrUndefinedTableElement
	}
	want := in.module.Types[typeIdx]
	got := in.funcs[funcIdx].sig
	if !want.Equal(got) {
		return ErrIndirectCallTypeMismatch
	}
	args, trap := popArgs(f, got.ParamTypes)
	if trap != nil {
		return trap
	}
	results, trap := in.call(funcIdx, args)
	if trap != nil {
		return trap
	}
	for _, r := range results {
		f.push(r)
	}
	return nil
}

func popArgs(f *Frame, paramTypes []wasm.ValueType) ([]wasm.Val, *Trap) {
	args := make([]wasm.Val, len(paramTypes))
	for i := len(paramTypes) - 1; i >= 0; i-- {
		v, trap := f.pop()
		if trap != nil {
			return nil, trap
		}
		args[i] = v
	}
	return args, nil
}

// blockArity resolves a block-type byte to its result arity. WebAssembly
// 1.0's block type is either "empty" (0 results) or a single value type
// (1 result); the multi-value proposal's signature-index encoding isn't
// part of this interpreter's scope (spec.md Non-goals).
func blockArity(module *wasm.Module, b byte) int {
	if uint32(b) == wasm.BlockTypeEmpty {
		return 0
	}
	return 1
}

func (in *Instance) execMemOp(f *Frame, op opcode.Opcode) *Trap {
	code := f.code()
	_, alignN, err := decodeUleb(code[f.pc+1:], 32)
	if err != nil {
		return wrapMalformed(err)
	}
	offsetImm, offN, err := decodeUleb(code[f.pc+1+int(alignN):], 32)
	if err != nil {
		return wrapMalformed(err)
	}
	next := f.pc + 1 + int(alignN) + int(offN)

	if op >= opcode.I32Load && op <= opcode.I64Load32U {
		addrVal, trap := f.pop()
		if trap != nil {
			return trap
		}
		addr, _ := addrVal.AsI32()
		ea := uint64(uint32(addr)) + uint64(uint32(offsetImm))
		v, trap := in.loadValue(op, uint32(ea))
		if trap != nil {
			return trap
		}
		f.push(v)
		f.pc = next
		return nil
	}

	val, trap := f.pop()
	if trap != nil {
		return trap
	}
	addrVal, trap := f.pop()
	if trap != nil {
		return trap
	}
	addr, _ := addrVal.AsI32()
	ea := uint64(uint32(addr)) + uint64(uint32(offsetImm))
	if trap := in.storeValue(op, uint32(ea), val); trap != nil {
		return trap
	}
	f.pc = next
	return nil
}

func (in *Instance) loadValue(op opcode.Opcode, addr uint32) (wasm.Val, *Trap) {
	read := func(n uint32) ([]byte, *Trap) { return in.MemRead(addr, n) }
	switch op {
	case opcode.I32Load:
		b, trap := read(4)
		if trap != nil {
			return wasm.Val{}, trap
		}
		return wasm.I32(int32(leU32(b))), nil
	case opcode.I64Load:
		b, trap := read(8)
		if trap != nil {
			return wasm.Val{}, trap
		}
		return wasm.I64(int64(leU64(b))), nil
	case opcode.F32Load:
		b, trap := read(4)
		if trap != nil {
			return wasm.Val{}, trap
		}
		return wasm.FromBits(wasm.ValueTypeF32, uint64(leU32(b))), nil
	case opcode.F64Load:
		b, trap := read(8)
		if trap != nil {
			return wasm.Val{}, trap
		}
		return wasm.FromBits(wasm.ValueTypeF64, leU64(b)), nil
	case opcode.I32Load8S:
		b, trap := read(1)
		if trap != nil {
			return wasm.Val{}, trap
		}
		return wasm.I32(int32(int8(b[0]))), nil
	case opcode.I32Load8U:
		b, trap := read(1)
		if trap != nil {
			return wasm.Val{}, trap
		}
		return wasm.I32(int32(b[0])), nil
	case opcode.I32Load16S:
		b, trap := read(2)
		if trap != nil {
			return wasm.Val{}, trap
		}
		return wasm.I32(int32(int16(leU16(b)))), nil
	case opcode.I32Load16U:
		b, trap := read(2)
		if trap != nil {
			return wasm.Val{}, trap
		}
		return wasm.I32(int32(leU16(b))), nil
	case opcode.I64Load8S:
		b, trap := read(1)
		if trap != nil {
			return wasm.Val{}, trap
		}
		return wasm.I64(int64(int8(b[0]))), nil
	case opcode.I64Load8U:
		b, trap := read(1)
		if trap != nil {
			return wasm.Val{}, trap
		}
		return wasm.I64(int64(b[0])), nil
	case opcode.I64Load16S:
		b, trap := read(2)
		if trap != nil {
			return wasm.Val{}, trap
		}
		return wasm.I64(int64(int16(leU16(b)))), nil
	case opcode.I64Load16U:
		b, trap := read(2)
		if trap != nil {
			return wasm.Val{}, trap
		}
		return wasm.I64(int64(leU16(b))), nil
	case opcode.I64Load32S:
		b, trap := read(4)
		if trap != nil {
			return wasm.Val{}, trap
		}
		return wasm.I64(int64(int32(leU32(b)))), nil
	case opcode.I64Load32U:
		b, trap := read(4)
		if trap != nil {
			return wasm.Val{}, trap
		}
		return wasm.I64(int64(leU32(b))), nil
	}
	return wasm.Val{}, trapf(TrapUnreachable, "unhandled load opcode %s", op)
}

func (in *Instance) storeValue(op opcode.Opcode, addr uint32, v wasm.Val) *Trap {
	put4 := func(x uint32) []byte { b := make([]byte, 4); putU32(b, x); return b }
	put8 := func(x uint64) []byte { b := make([]byte, 8); putU64(b, x); return b }
	switch op {
	case opcode.I32Store:
		i, _ := v.AsI32()
		return in.MemWrite(addr, put4(uint32(i)))
	case opcode.I64Store:
		i, _ := v.AsI64()
		return in.MemWrite(addr, put8(uint64(i)))
	case opcode.F32Store:
		return in.MemWrite(addr, put4(uint32(v.Bits())))
	case opcode.F64Store:
		return in.MemWrite(addr, put8(v.Bits()))
	case opcode.I32Store8:
		i, _ := v.AsI32()
		return in.MemWrite(addr, []byte{byte(i)})
	case opcode.I32Store16:
		i, _ := v.AsI32()
		b := make([]byte, 2)
		putU16(b, uint16(i))
		return in.MemWrite(addr, b)
	case opcode.I64Store8:
		i, _ := v.AsI64()
		return in.MemWrite(addr, []byte{byte(i)})
	case opcode.I64Store16:
		i, _ := v.AsI64()
		b := make([]byte, 2)
		putU16(b, uint16(i))
		return in.MemWrite(addr, b)
	case opcode.I64Store32:
		i, _ := v.AsI64()
		return in.MemWrite(addr, put4(uint32(i)))
	}
	return trapf(TrapUnreachable, "unhandled store opcode %s", op)
}

func leU16(b []byte) uint16  { return uint16(b[0]) | uint16(b[1])<<8 }
func putU16(b []byte, v uint16) { b[0] = byte(v); b[1] = byte(v >> 8) }
func putU32(b []byte, v uint32) {
	b[0], b[1], b[2], b[3] = byte(v), byte(v>>8), byte(v>>16), byte(v>>24)
}
func putU64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

// execNumeric handles every comparison/arithmetic/conversion/sign-extension
// opcode, the full i32/i64/f32/f64 family spec.md §4.5's table enumerates.
func (in *Instance) execNumeric(f *Frame, op opcode.Opcode) *Trap {
	defer func() { f.pc++ }()
	switch {
	case op == opcode.I32Eqz:
		a, trap := popI32(f)
		if trap != nil {
			return trap
		}
		f.push(boolI32(a == 0))
		return nil
	case op >= opcode.I32Eq && op <= opcode.I32GeU:
		return cmpI32(f, op)
	case op == opcode.I64Eqz:
		a, trap := popI64(f)
		if trap != nil {
			return trap
		}
		f.push(boolI32(a == 0))
		return nil
	case op >= opcode.I64Eq && op <= opcode.I64GeU:
		return cmpI64(f, op)
	case op >= opcode.F32Eq && op <= opcode.F32Ge:
		return cmpF32(f, op)
	case op >= opcode.F64Eq && op <= opcode.F64Ge:
		return cmpF64(f, op)
	case op >= opcode.I32Clz && op <= opcode.I32Rotr:
		return arithI32(f, op)
	case op >= opcode.I64Clz && op <= opcode.I64Rotr:
		return arithI64(f, op)
	case op >= opcode.F32Abs && op <= opcode.F32Copysign:
		return arithF32(f, op)
	case op >= opcode.F64Abs && op <= opcode.F64Copysign:
		return arithF64(f, op)
	case op >= opcode.I32WrapI64 && op <= opcode.F64ReinterpretI64:
		return in.convert(f, op)
	case op >= opcode.I32Extend8S && op <= opcode.I64Extend32S:
		return signExtend(f, op)
	}
	return trapf(TrapUnreachable, "unknown opcode %s", op)
}

func popI32(f *Frame) (int32, *Trap) { v, t := f.pop(); if t != nil { return 0, t }; r, _ := v.AsI32(); return r, nil }
func popI64(f *Frame) (int64, *Trap) { v, t := f.pop(); if t != nil { return 0, t }; r, _ := v.AsI64(); return r, nil }
func popF32(f *Frame) (float32, *Trap) { v, t := f.pop(); if t != nil { return 0, t }; r, _ := v.AsF32(); return r, nil }
func popF64(f *Frame) (float64, *Trap) { v, t := f.pop(); if t != nil { return 0, t }; r, _ := v.AsF64(); return r, nil }

func boolI32(b bool) wasm.Val {
	if b {
		return wasm.I32(1)
	}
	return wasm.I32(0)
}

func cmpI32(f *Frame, op opcode.Opcode) *Trap {
	b, trap := popI32(f)
	if trap != nil {
		return trap
	}
	a, trap := popI32(f)
	if trap != nil {
		return trap
	}
	ua, ub := uint32(a), uint32(b)
	var r bool
	switch op {
	case opcode.I32Eq:
		r = a == b
	case opcode.I32Ne:
		r = a != b
	case opcode.I32LtS:
		r = a < b
	case opcode.I32LtU:
		r = ua < ub
	case opcode.I32GtS:
		r = a > b
	case opcode.I32GtU:
		r = ua > ub
	case opcode.I32LeS:
		r = a <= b
	case opcode.I32LeU:
		r = ua <= ub
	case opcode.I32GeS:
		r = a >= b
	case opcode.I32GeU:
		r = ua >= ub
	}
	f.push(boolI32(r))
	return nil
}

func cmpI64(f *Frame, op opcode.Opcode) *Trap {
	b, trap := popI64(f)
	if trap != nil {
		return trap
	}
	a, trap := popI64(f)
	if trap != nil {
		return trap
	}
	ua, ub := uint64(a), uint64(b)
	var r bool
	switch op {
	case opcode.I64Eq:
		r = a == b
	case opcode.I64Ne:
		r = a != b
	case opcode.I64LtS:
		r = a < b
	case opcode.I64LtU:
		r = ua < ub
	case opcode.I64GtS:
		r = a > b
	case opcode.I64GtU:
		r = ua > ub
	case opcode.I64LeS:
		r = a <= b
	case opcode.I64LeU:
		r = ua <= ub
	case opcode.I64GeS:
		r = a >= b
	case opcode.I64GeU:
		r = ua >= ub
	}
	f.push(boolI32(r))
	return nil
}

func cmpF32(f *Frame, op opcode.Opcode) *Trap {
	b, trap := popF32(f)
	if trap != nil {
		return trap
	}
	a, trap := popF32(f)
	if trap != nil {
		return trap
	}
	var r bool
	switch op {
	case opcode.F32Eq:
		r = a == b
	case opcode.F32Ne:
		r = a != b
	case opcode.F32Lt:
		r = a < b
	case opcode.F32Gt:
		r = a > b
	case opcode.F32Le:
		r = a <= b
	case opcode.F32Ge:
		r = a >= b
	}
	f.push(boolI32(r))
	return nil
}

func cmpF64(f *Frame, op opcode.Opcode) *Trap {
	b, trap := popF64(f)
	if trap != nil {
		return trap
	}
	a, trap := popF64(f)
	if trap != nil {
		return trap
	}
	var r bool
	switch op {
	case opcode.F64Eq:
		r = a == b
	case opcode.F64Ne:
		r = a != b
	case opcode.F64Lt:
		r = a < b
	case opcode.F64Gt:
		r = a > b
	case opcode.F64Le:
		r = a <= b
	case opcode.F64Ge:
		r = a >= b
	}
	f.push(boolI32(r))
	return nil
}

func arithI32(f *Frame, op opcode.Opcode) *Trap {
	if op == opcode.I32Clz || op == opcode.I32Ctz || op == opcode.I32Popcnt {
		a, trap := popI32(f)
		if trap != nil {
			return trap
		}
		ua := uint32(a)
		switch op {
		case opcode.I32Clz:
			f.push(wasm.I32(int32(bits.LeadingZeros32(ua))))
		case opcode.I32Ctz:
			f.push(wasm.I32(int32(bits.TrailingZeros32(ua))))
		case opcode.I32Popcnt:
			f.push(wasm.I32(int32(bits.OnesCount32(ua))))
		}
		return nil
	}
	b, trap := popI32(f)
	if trap != nil {
		return trap
	}
	a, trap := popI32(f)
	if trap != nil {
		return trap
	}
	ua, ub := uint32(a), uint32(b)
	switch op {
	case opcode.I32Add:
		f.push(wasm.I32(a + b))
	case opcode.I32Sub:
		f.push(wasm.I32(a - b))
	case opcode.I32Mul:
		f.push(wasm.I32(a * b))
	case opcode.I32DivS:
		if b == 0 {
			return ErrIntegerDivideByZero
		}
		if a == math.MinInt32 && b == -1 {
			return ErrIntegerOverflow
		}
		f.push(wasm.I32(a / b))
	case opcode.I32DivU:
		if ub == 0 {
			return ErrIntegerDivideByZero
		}
		f.push(wasm.I32(int32(ua / ub)))
	case opcode.I32RemS:
		if b == 0 {
			return ErrIntegerDivideByZero
		}
		if a == math.MinInt32 && b == -1 {
			f.push(wasm.I32(0))
		} else {
			f.push(wasm.I32(a % b))
		}
	case opcode.I32RemU:
		if ub == 0 {
			return ErrIntegerDivideByZero
		}
		f.push(wasm.I32(int32(ua % ub)))
	case opcode.I32And:
		f.push(wasm.I32(a & b))
	case opcode.I32Or:
		f.push(wasm.I32(a | b))
	case opcode.I32Xor:
		f.push(wasm.I32(a ^ b))
	case opcode.I32Shl:
		f.push(wasm.I32(int32(ua << (ub % 32))))
	case opcode.I32ShrS:
		f.push(wasm.I32(a >> (ub % 32)))
	case opcode.I32ShrU:
		f.push(wasm.I32(int32(ua >> (ub % 32))))
	case opcode.I32Rotl:
		f.push(wasm.I32(int32(bits.RotateLeft32(ua, int(ub%32)))))
	case opcode.I32Rotr:
		f.push(wasm.I32(int32(bits.RotateLeft32(ua, -int(ub%32)))))
	}
	return nil
}

func arithI64(f *Frame, op opcode.Opcode) *Trap {
	if op == opcode.I64Clz || op == opcode.I64Ctz || op == opcode.I64Popcnt {
		a, trap := popI64(f)
		if trap != nil {
			return trap
		}
		ua := uint64(a)
		switch op {
		case opcode.I64Clz:
			f.push(wasm.I64(int64(bits.LeadingZeros64(ua))))
		case opcode.I64Ctz:
			f.push(wasm.I64(int64(bits.TrailingZeros64(ua))))
		case opcode.I64Popcnt:
			f.push(wasm.I64(int64(bits.OnesCount64(ua))))
		}
		return nil
	}
	b, trap := popI64(f)
	if trap != nil {
		return trap
	}
	a, trap := popI64(f)
	if trap != nil {
		return trap
	}
	ua, ub := uint64(a), uint64(b)
	switch op {
	case opcode.I64Add:
		f.push(wasm.I64(a + b))
	case opcode.I64Sub:
		f.push(wasm.I64(a - b))
	case opcode.I64Mul:
		f.push(wasm.I64(a * b))
	case opcode.I64DivS:
		if b == 0 {
			return ErrIntegerDivideByZero
		}
		if a == math.MinInt64 && b == -1 {
			return ErrIntegerOverflow
		}
		f.push(wasm.I64(a / b))
	case opcode.I64DivU:
		if ub == 0 {
			return ErrIntegerDivideByZero
		}
		f.push(wasm.I64(int64(ua / ub)))
	case opcode.I64RemS:
		if b == 0 {
			return ErrIntegerDivideByZero
		}
		if a == math.MinInt64 && b == -1 {
			f.push(wasm.I64(0))
		} else {
			f.push(wasm.I64(a % b))
		}
	case opcode.I64RemU:
		if ub == 0 {
			return ErrIntegerDivideByZero
		}
		f.push(wasm.I64(int64(ua % ub)))
	case opcode.I64And:
		f.push(wasm.I64(a & b))
	case opcode.I64Or:
		f.push(wasm.I64(a | b))
	case opcode.I64Xor:
		f.push(wasm.I64(a ^ b))
	case opcode.I64Shl:
		f.push(wasm.I64(int64(ua << (ub % 64))))
	case opcode.I64ShrS:
		f.push(wasm.I64(a >> (ub % 64)))
	case opcode.I64ShrU:
		f.push(wasm.I64(int64(ua >> (ub % 64))))
	case opcode.I64Rotl:
		f.push(wasm.I64(int64(bits.RotateLeft64(ua, int(ub%64)))))
	case opcode.I64Rotr:
		f.push(wasm.I64(int64(bits.RotateLeft64(ua, -int(ub%64)))))
	}
	return nil
}

func arithF32(f *Frame, op opcode.Opcode) *Trap {
	unary := map[opcode.Opcode]func(float32) float32{
		opcode.F32Abs:     func(x float32) float32 { return float32(math.Abs(float64(x))) },
		opcode.F32Neg:     func(x float32) float32 { return -x },
		opcode.F32Ceil:    func(x float32) float32 { return float32(math.Ceil(float64(x))) },
		opcode.F32Floor:   func(x float32) float32 { return float32(math.Floor(float64(x))) },
		opcode.F32Trunc:   func(x float32) float32 { return float32(math.Trunc(float64(x))) },
		opcode.F32Nearest: func(x float32) float32 { return float32(math.RoundToEven(float64(x))) },
		opcode.F32Sqrt:    func(x float32) float32 { return float32(math.Sqrt(float64(x))) },
	}
	if fn, ok := unary[op]; ok {
		a, trap := popF32(f)
		if trap != nil {
			return trap
		}
		f.push(wasm.F32(fn(a)))
		return nil
	}
	b, trap := popF32(f)
	if trap != nil {
		return trap
	}
	a, trap := popF32(f)
	if trap != nil {
		return trap
	}
	switch op {
	case opcode.F32Add:
		f.push(wasm.F32(a + b))
	case opcode.F32Sub:
		f.push(wasm.F32(a - b))
	case opcode.F32Mul:
		f.push(wasm.F32(a * b))
	case opcode.F32Div:
		f.push(wasm.F32(a / b))
	case opcode.F32Min:
		f.push(wasm.F32(fMin32(a, b)))
	case opcode.F32Max:
		f.push(wasm.F32(fMax32(a, b)))
	case opcode.F32Copysign:
		f.push(wasm.F32(float32(math.Copysign(float64(a), float64(b)))))
	}
	return nil
}

func arithF64(f *Frame, op opcode.Opcode) *Trap {
	unary := map[opcode.Opcode]func(float64) float64{
		opcode.F64Abs:     math.Abs,
		opcode.F64Neg:     func(x float64) float64 { return -x },
		opcode.F64Ceil:    math.Ceil,
		opcode.F64Floor:   math.Floor,
		opcode.F64Trunc:   math.Trunc,
		opcode.F64Nearest: math.RoundToEven,
		opcode.F64Sqrt:    math.Sqrt,
	}
	if fn, ok := unary[op]; ok {
		a, trap := popF64(f)
		if trap != nil {
			return trap
		}
		f.push(wasm.F64(fn(a)))
		return nil
	}
	b, trap := popF64(f)
	if trap != nil {
		return trap
	}
	a, trap := popF64(f)
	if trap != nil {
		return trap
	}
	switch op {
	case opcode.F64Add:
		f.push(wasm.F64(a + b))
	case opcode.F64Sub:
		f.push(wasm.F64(a - b))
	case opcode.F64Mul:
		f.push(wasm.F64(a * b))
	case opcode.F64Div:
		f.push(wasm.F64(a / b))
	case opcode.F64Min:
		f.push(wasm.F64(fMin64(a, b)))
	case opcode.F64Max:
		f.push(wasm.F64(fMax64(a, b)))
	case opcode.F64Copysign:
		f.push(wasm.F64(math.Copysign(a, b)))
	}
	return nil
}

// fMin32/fMax32/fMin64/fMax64 implement WebAssembly's float min/max:
// NaN is contagious, and -0 is strictly less than +0 (spec.md §3), unlike
// Go's math.Min/Max which don't guarantee the zero-sign tie-break.
func fMin32(a, b float32) float32 {
	if math.IsNaN(float64(a)) || math.IsNaN(float64(b)) {
		return float32(math.NaN())
	}
	if a == 0 && b == 0 {
		if math.Signbit(float64(a)) {
			return a
		}
		return b
	}
	if a < b {
		return a
	}
	return b
}

func fMax32(a, b float32) float32 {
	if math.IsNaN(float64(a)) || math.IsNaN(float64(b)) {
		return float32(math.NaN())
	}
	if a == 0 && b == 0 {
		if !math.Signbit(float64(a)) {
			return a
		}
		return b
	}
	if a > b {
		return a
	}
	return b
}

func fMin64(a, b float64) float64 {
	if math.IsNaN(a) || math.IsNaN(b) {
		return math.NaN()
	}
	if a == 0 && b == 0 {
		if math.Signbit(a) {
			return a
		}
		return b
	}
	if a < b {
		return a
	}
	return b
}

func fMax64(a, b float64) float64 {
	if math.IsNaN(a) || math.IsNaN(b) {
		return math.NaN()
	}
	if a == 0 && b == 0 {
		if !math.Signbit(a) {
			return a
		}
		return b
	}
	if a > b {
		return a
	}
	return b
}

// convert handles the numeric conversion family (wrap, truncate,
// extend, convert, demote/promote, reinterpret), delegating overflow and
// NaN detection for the trapping truncations to the number package.
func (in *Instance) convert(f *Frame, op opcode.Opcode) *Trap {
	switch op {
	case opcode.I32WrapI64:
		a, trap := popI64(f)
		if trap != nil {
			return trap
		}
		f.push(wasm.I32(int32(a)))
	case opcode.I32TruncF32S, opcode.I32TruncF32U, opcode.I32TruncF64S, opcode.I32TruncF64U,
		opcode.I64TruncF32S, opcode.I64TruncF32U, opcode.I64TruncF64S, opcode.I64TruncF64U:
		return truncToInt(f, op)
	case opcode.I64ExtendI32S:
		a, trap := popI32(f)
		if trap != nil {
			return trap
		}
		f.push(wasm.I64(int64(a)))
	case opcode.I64ExtendI32U:
		a, trap := popI32(f)
		if trap != nil {
			return trap
		}
		f.push(wasm.I64(int64(uint32(a))))
	case opcode.F32ConvertI32S:
		a, trap := popI32(f)
		if trap != nil {
			return trap
		}
		f.push(wasm.F32(float32(a)))
	case opcode.F32ConvertI32U:
		a, trap := popI32(f)
		if trap != nil {
			return trap
		}
		f.push(wasm.F32(float32(uint32(a))))
	case opcode.F32ConvertI64S:
		a, trap := popI64(f)
		if trap != nil {
			return trap
		}
		f.push(wasm.F32(float32(a)))
	case opcode.F32ConvertI64U:
		a, trap := popI64(f)
		if trap != nil {
			return trap
		}
		f.push(wasm.F32(float32(uint64(a))))
	case opcode.F32DemoteF64:
		a, trap := popF64(f)
		if trap != nil {
			return trap
		}
		f.push(wasm.F32(float32(a)))
	case opcode.F64ConvertI32S:
		a, trap := popI32(f)
		if trap != nil {
			return trap
		}
		f.push(wasm.F64(float64(a)))
	case opcode.F64ConvertI32U:
		a, trap := popI32(f)
		if trap != nil {
			return trap
		}
		f.push(wasm.F64(float64(uint32(a))))
	case opcode.F64ConvertI64S:
		a, trap := popI64(f)
		if trap != nil {
			return trap
		}
		f.push(wasm.F64(float64(a)))
	case opcode.F64ConvertI64U:
		a, trap := popI64(f)
		if trap != nil {
			return trap
		}
		f.push(wasm.F64(float64(uint64(a))))
	case opcode.F64PromoteF32:
		a, trap := popF32(f)
		if trap != nil {
			return trap
		}
		f.push(wasm.F64(float64(a)))
	case opcode.I32ReinterpretF32:
		v, trap := f.pop()
		if trap != nil {
			return trap
		}
		f.push(wasm.I32(int32(uint32(v.Bits()))))
	case opcode.I64ReinterpretF64:
		v, trap := f.pop()
		if trap != nil {
			return trap
		}
		f.push(wasm.I64(int64(v.Bits())))
	case opcode.F32ReinterpretI32:
		v, trap := f.pop()
		if trap != nil {
			return trap
		}
		f.push(wasm.FromBits(wasm.ValueTypeF32, v.Bits()&0xFFFFFFFF))
	case opcode.F64ReinterpretI64:
		v, trap := f.pop()
		if trap != nil {
			return trap
		}
		f.push(wasm.FromBits(wasm.ValueTypeF64, v.Bits()))
	}
	return nil
}

func truncToInt(f *Frame, op opcode.Opcode) *Trap {
	var from number.Type
	var bits uint64
	switch op {
	case opcode.I32TruncF32S, opcode.I32TruncF32U, opcode.I64TruncF32S, opcode.I64TruncF32U:
		a, trap := popF32(f)
		if trap != nil {
			return trap
		}
		from, bits = number.F32, uint64(math.Float32bits(a))
	default:
		a, trap := popF64(f)
		if trap != nil {
			return trap
		}
		from, bits = number.F64, math.Float64bits(a)
	}
	var to number.Type
	switch op {
	case opcode.I32TruncF32S, opcode.I32TruncF64S:
		to = number.I32
	case opcode.I32TruncF32U, opcode.I32TruncF64U:
		to = number.U32
	case opcode.I64TruncF32S, opcode.I64TruncF64S:
		to = number.I64
	case opcode.I64TruncF32U, opcode.I64TruncF64U:
		to = number.U64
	}
	truncated, trapCode := number.FloatTruncate(from, to, bits)
	switch trapCode {
	case number.NanTrap:
		return ErrInvalidIntConversion
	case number.ConvertTrap:
		return ErrIntegerOverflow
	}
	switch to {
	case number.I32, number.U32:
		f.push(wasm.I32(int32(uint32(truncated))))
	case number.I64, number.U64:
		f.push(wasm.I64(int64(truncated)))
	}
	return nil
}

func signExtend(f *Frame, op opcode.Opcode) *Trap {
	switch op {
	case opcode.I32Extend8S:
		a, trap := popI32(f)
		if trap != nil {
			return trap
		}
		f.push(wasm.I32(int32(int8(a))))
	case opcode.I32Extend16S:
		a, trap := popI32(f)
		if trap != nil {
			return trap
		}
		f.push(wasm.I32(int32(int16(a))))
	case opcode.I64Extend8S:
		a, trap := popI64(f)
		if trap != nil {
			return trap
		}
		f.push(wasm.I64(int64(int8(a))))
	case opcode.I64Extend16S:
		a, trap := popI64(f)
		if trap != nil {
			return trap
		}
		f.push(wasm.I64(int64(int16(a))))
	case opcode.I64Extend32S:
		a, trap := popI64(f)
		if trap != nil {
			return trap
		}
		f.push(wasm.I64(int64(int32(a))))
	}
	return nil
}
