package vm

import "github.com/tinywasm/tinywasm/wasm"

// label is one entry of a frame's control-flow stack: an active
// block/loop/if. continuePC is where a branch targeting this label jumps
// to — the label table's recorded `end` PC for block/if, but the label's
// own opening PC for loop, since branching to a loop re-enters it rather
// than falling through (spec.md §4.5's br semantics); branch resumes just
// past that loop header with the label kept active. arity is how many
// operands the label produces (0 or 1 in WebAssembly 1.0) and stackBase is
// the operand stack depth at the moment the label was entered, so a
// branch can truncate the stack back to a known-good height.
type label struct {
	continuePC int
	arity      int
	stackBase  int
	isLoop     bool
}

// Frame is one call's execution state: its locals, its own operand stack,
// and its active label stack, grounded on the teacher's vm.Frame
// (vm/frame.go) but carrying a full per-frame operand/label stack instead
// of indexing into one shared stack with a base pointer — the pre-scanned
// wasm.LabelTable means branch targets are looked up, not walked, so a
// frame-local stack doesn't need the teacher's baseBlockIndex bookkeeping.
type Frame struct {
	fn     *funcInstance
	locals []wasm.Val
	stack  []wasm.Val
	labels []label
	pc     int
}

func newFrame(fn *funcInstance, args []wasm.Val) *Frame {
	locals := make([]wasm.Val, len(fn.localTypes))
	copy(locals, args)
	for i := len(args); i < len(locals); i++ {
		locals[i] = wasm.FromBits(fn.localTypes[i], 0)
	}
	return &Frame{fn: fn, locals: locals}
}

func (f *Frame) push(v wasm.Val) {
	f.stack = append(f.stack, v)
}

func (f *Frame) pop() (wasm.Val, *Trap) {
	if len(f.stack) == 0 {
		return wasm.Val{}, trapf(TrapUnreachable, "operand stack underflow")
	}
	v := f.stack[len(f.stack)-1]
	f.stack = f.stack[:len(f.stack)-1]
	return v, nil
}

func (f *Frame) pushLabel(l label) {
	f.labels = append(f.labels, l)
}

func (f *Frame) popLabel() label {
	l := f.labels[len(f.labels)-1]
	f.labels = f.labels[:len(f.labels)-1]
	return l
}

// branchTarget pops every label above (and including) the one `depth`
// levels up the label stack (0 = innermost) and returns it, leaving the
// operand stack untouched — the caller must pull the label's carried
// result values off the top of the stack before truncating it to
// l.stackBase, since truncating first would discard exactly the values
// the branch is supposed to carry out.
func (f *Frame) branchTarget(depth int) (label, *Trap) {
	if depth >= len(f.labels) {
		return label{}, trapf(TrapUnreachable, "branch depth %d exceeds %d active labels", depth, len(f.labels))
	}
	idx := len(f.labels) - 1 - depth
	l := f.labels[idx]
	f.labels = f.labels[:idx]
	return l, nil
}

func (f *Frame) code() []byte {
	return f.fn.body.Code
}

func (f *Frame) atEnd() bool {
	return f.pc >= len(f.code())
}
