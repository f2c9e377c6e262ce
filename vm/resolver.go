package vm

import "github.com/tinywasm/tinywasm/wasm"

// Resolver supplies the concrete values a module's imports bind to.
// Grounded on the teacher's main.go Resolver (which only resolved host
// functions by module/field name); generalized to all four import kinds
// per spec.md §4.2, since WebAssembly 1.0 lets a module import tables,
// memories and globals as well as functions.
type Resolver interface {
	ResolveFunc(moduleName, fieldName string, sig wasm.FuncType) (HostFunc, error)
	ResolveTable(moduleName, fieldName string, tt wasm.Table) (*tableInstance, error)
	ResolveMemory(moduleName, fieldName string, mt wasm.Mem) (*memInstance, error)
	ResolveGlobal(moduleName, fieldName string, gt wasm.GlobalType) (wasm.Val, error)
}

// MapResolver is a small in-memory Resolver keyed by "module.field",
// sufficient for embedding scenarios that don't need dynamic lookup (the
// teacher's Resolver in main.go was exactly this shape, just narrowed to
// functions only).
type MapResolver struct {
	Funcs    map[string]HostFunc
	Tables   map[string]*tableInstance
	Memories map[string]*memInstance
	Globals  map[string]wasm.Val
}

// NewMapResolver builds an empty MapResolver ready for registration.
func NewMapResolver() *MapResolver {
	return &MapResolver{
		Funcs:    map[string]HostFunc{},
		Tables:   map[string]*tableInstance{},
		Memories: map[string]*memInstance{},
		Globals:  map[string]wasm.Val{},
	}
}

func importKey(moduleName, fieldName string) string { return moduleName + "." + fieldName }

// RegisterFunc makes fn available as moduleName.fieldName to importers.
func (r *MapResolver) RegisterFunc(moduleName, fieldName string, fn HostFunc) {
	r.Funcs[importKey(moduleName, fieldName)] = fn
}

func (r *MapResolver) ResolveFunc(moduleName, fieldName string, sig wasm.FuncType) (HostFunc, error) {
	fn, ok := r.Funcs[importKey(moduleName, fieldName)]
	if !ok {
		return nil, instantiateErrf("unresolved function import %s.%s", moduleName, fieldName)
	}
	return fn, nil
}

func (r *MapResolver) ResolveTable(moduleName, fieldName string, tt wasm.Table) (*tableInstance, error) {
	t, ok := r.Tables[importKey(moduleName, fieldName)]
	if !ok {
		return nil, instantiateErrf("unresolved table import %s.%s", moduleName, fieldName)
	}
	return t, nil
}

func (r *MapResolver) ResolveMemory(moduleName, fieldName string, mt wasm.Mem) (*memInstance, error) {
	m, ok := r.Memories[importKey(moduleName, fieldName)]
	if !ok {
		return nil, instantiateErrf("unresolved memory import %s.%s", moduleName, fieldName)
	}
	return m, nil
}

func (r *MapResolver) ResolveGlobal(moduleName, fieldName string, gt wasm.GlobalType) (wasm.Val, error) {
	v, ok := r.Globals[importKey(moduleName, fieldName)]
	if !ok {
		return wasm.Val{}, instantiateErrf("unresolved global import %s.%s", moduleName, fieldName)
	}
	return v, nil
}
