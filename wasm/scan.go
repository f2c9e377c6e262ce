package wasm

import (
	"github.com/tinywasm/tinywasm/leb128"
	"github.com/tinywasm/tinywasm/opcode"
)

// LabelTable is the decode-time pre-scan cache described in spec.md §9:
// for every block/loop/if opening instruction it records the PC of the
// matching `end`, and for `if` the PC of the matching `else` (or -1 if
// there is none). The interpreter uses this to jump directly to a branch
// target instead of linearly re-scanning bytecode on every `br`/`br_if`/
// block-skip, the same optimization the design notes call out as
// "semantically equivalent, faster in steady state" versus the teacher's
// live block-stack walk.
type LabelTable struct {
	End  map[int]int
	Else map[int]int
}

func newLabelTable() *LabelTable {
	return &LabelTable{End: map[int]int{}, Else: map[int]int{}}
}

type scanFrame struct {
	openPC int
	op     opcode.Opcode
}

// scanLabels walks a function body once, matching every block/loop/if
// opening to its `end` (and every `if` to its `else`, if present). It
// doubles as the decode-time structural check the spec's "validation gap"
// notes call for: an unbalanced nest, a stray `else`, or a malformed block
// type fails here instead of corrupting execution silently later.
func scanLabels(code []byte) (*LabelTable, error) {
	lt := newLabelTable()
	var stack []scanFrame
	pc := 0
	for pc < len(code) {
		op := opcode.Opcode(code[pc])
		switch op {
		case opcode.Block, opcode.Loop, opcode.If:
			if err := checkBlockType(code, pc+1); err != nil {
				return nil, err
			}
			stack = append(stack, scanFrame{openPC: pc, op: op})
			lt.Else[pc] = -1
		case opcode.Else:
			if len(stack) == 0 || stack[len(stack)-1].op != opcode.If {
				return nil, decodeErr(KindUnbalancedLabel, "else without matching if at pc %d", pc)
			}
			lt.Else[stack[len(stack)-1].openPC] = pc
		case opcode.End:
			if len(stack) == 0 {
				// The outermost `end` terminates the function body
				// itself, not a nested block; scanLabels is only ever
				// called on a body that already excludes this final
				// end (see decodeFuncBody), so reaching here means the
				// nesting in the body is unbalanced.
				return nil, decodeErr(KindUnbalancedLabel, "unmatched end at pc %d", pc)
			}
			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			lt.End[top.openPC] = pc
		}
		size, err := instrImmediateSize(op, code, pc+1)
		if err != nil {
			return nil, err
		}
		pc += 1 + size
	}
	if len(stack) != 0 {
		return nil, decodeErr(KindUnbalancedLabel, "%d unclosed block(s)", len(stack))
	}
	return lt, nil
}

func checkBlockType(code []byte, pos int) error {
	if pos >= len(code) {
		return decodeErr(KindUnexpectedEOF, "truncated block type")
	}
	b := code[pos]
	if uint32(b) == BlockTypeEmpty {
		return nil
	}
	switch ValueType(b) {
	case ValueTypeI32, ValueTypeI64, ValueTypeF32, ValueTypeF64:
		return nil
	}
	return decodeErr(KindInvalidBlockType, "invalid block type byte 0x%x", b)
}

// instrImmediateSize returns how many bytes the immediate operand(s) of
// the instruction at code[pos-1] occupy, where pos is the offset right
// after the opcode byte. It does not validate the immediate's semantic
// value (e.g. that a local index is in range) — only module.go and the
// instantiation/interpretation layers do that — it exists purely so the
// pre-scan can walk past instructions uniformly regardless of operand
// shape. Bytes that are not a known opcode are treated as having no
// immediate.
func instrImmediateSize(op opcode.Opcode, code []byte, pos int) (int, error) {
	switch {
	case op == opcode.Block || op == opcode.Loop || op == opcode.If:
		return 1, nil
	case op == opcode.Else || op == opcode.End:
		return 0, nil
	case op == opcode.Br || op == opcode.BrIf || op == opcode.Call:
		return lebSize(code, pos, 32)
	case op == opcode.CallIndirect:
		n, err := lebSize(code, pos, 32)
		if err != nil {
			return 0, err
		}
		return n + 1, nil // typeidx, then a reserved 0x00 byte
	case op >= opcode.LocalGet && op <= opcode.GlobalSet:
		return lebSize(code, pos, 32)
	case op == opcode.BrTable:
		return brTableSize(code, pos)
	case opcode.HasMemArg(op):
		align, err := lebSize(code, pos, 32)
		if err != nil {
			return 0, err
		}
		offset, err := lebSize(code, pos+align, 32)
		if err != nil {
			return 0, err
		}
		return align + offset, nil
	case op == opcode.MemorySize || op == opcode.MemoryGrow:
		if pos >= len(code) {
			return 0, decodeErr(KindUnexpectedEOF, "truncated memory.size/grow")
		}
		return 1, nil // reserved byte
	case op == opcode.I32Const:
		return lebSize(code, pos, 32)
	case op == opcode.I64Const:
		return lebSize(code, pos, 64)
	case op == opcode.F32Const:
		return 4, nil
	case op == opcode.F64Const:
		return 8, nil
	default:
		return 0, nil
	}
}

// lebSize measures the byte length of a LEB128 group starting at pos
// without fully validating overflow (the actual read at execution/decode
// time does that); it exists to let the pre-scan skip past an immediate.
func lebSize(code []byte, pos int, maxBits uint) (int, error) {
	maxBytes := int((maxBits + 6) / 7)
	for i := 0; i < maxBytes; i++ {
		if pos+i >= len(code) {
			return 0, decodeErr(KindUnexpectedEOF, "truncated LEB128 immediate")
		}
		if code[pos+i]&0x80 == 0 {
			return i + 1, nil
		}
	}
	return 0, decodeErr(KindMalformedLeb, "LEB128 immediate longer than %d bytes", maxBytes)
}

// brTableSize measures a br_table's immediate: a vector of `count` label
// indices followed by one mandatory default label index.
func brTableSize(code []byte, pos int) (int, error) {
	count, n, err := leb128.DecodeAt(code, pos, 32, false)
	if err != nil {
		return 0, wrapLebErr(err)
	}
	total := int(n)
	for i := int64(0); i < count+1; i++ {
		_, m, err := leb128.DecodeAt(code, pos+total, 32, false)
		if err != nil {
			return 0, wrapLebErr(err)
		}
		total += int(m)
	}
	return total, nil
}
