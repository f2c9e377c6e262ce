package vm

import "github.com/tinywasm/tinywasm/wasm"

// HostFunc is a function implemented in Go and exposed to guest code as a
// function import. It receives a HostEnv bound to the instance making the
// call, so it can read/write the caller's own linear memory (spec.md §6) —
// the teacher's main.go host funcs (printBytes, setStorage, getStorage)
// needed exactly this and got it only through package-level globals; here
// it's threaded explicitly instead.
type HostFunc func(env HostEnv, args []wasm.Val) ([]wasm.Val, *Trap)

// HostEnv is the capability surface a HostFunc is given: access back into
// the calling instance's own exported state, scoped so a host function
// can't reach into a different instance by accident.
type HostEnv interface {
	Instance() *Instance
	ReadMemory(offset, length uint32) ([]byte, *Trap)
	WriteMemory(offset uint32, data []byte) *Trap
}

type hostEnv struct {
	inst *Instance
}

func (e *hostEnv) Instance() *Instance { return e.inst }

func (e *hostEnv) ReadMemory(offset, length uint32) ([]byte, *Trap) {
	return e.inst.MemRead(offset, length)
}

func (e *hostEnv) WriteMemory(offset uint32, data []byte) *Trap {
	return e.inst.MemWrite(offset, data)
}

// funcInstance is the function index space entry the interpreter actually
// calls through: either a resolved host function or a decoded body with
// its locals' value types flattened out of the run-length local entries.
type funcInstance struct {
	sig        wasm.FuncType
	host       HostFunc
	body       *wasm.Func
	localTypes []wasm.ValueType // params followed by declared locals, set for non-host funcs
	name       string
}

func (f *funcInstance) isHost() bool { return f.host != nil }
