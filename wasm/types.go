package wasm

// Magic is WebAssembly's 4-byte magic number (the string '\0asm').
const Magic uint32 = 0x6d736100

// Version is the only binary format version this decoder accepts.
const Version uint32 = 0x1

// ValueType is one of the four WebAssembly 1.0 value types.
type ValueType int8

// The four WebAssembly 1.0 value types, tagged by their binary-format byte.
const (
	ValueTypeI32 ValueType = 0x7F
	ValueTypeI64 ValueType = 0x7E
	ValueTypeF32 ValueType = 0x7D
	ValueTypeF64 ValueType = 0x7C
)

func (vt ValueType) String() string {
	switch vt {
	case ValueTypeI32:
		return "i32"
	case ValueTypeI64:
		return "i64"
	case ValueTypeF32:
		return "f32"
	case ValueTypeF64:
		return "f64"
	default:
		return "invalid"
	}
}

// BlockTypeEmpty marks a block with no result type.
const BlockTypeEmpty uint32 = 0x40

// FuncTypeForm is the signature byte every function type is prefixed with.
const FuncTypeForm byte = 0x60

// ElemTypeFuncRef is the only element type WebAssembly 1.0 supports.
const ElemTypeFuncRef byte = 0x70

// Mut flags whether a global is mutable.
type Mut uint8

// Global mutability flags.
const (
	Const Mut = 0x00
	Var   Mut = 0x01
)

// External kinds used by both imports and exports.
const (
	ExternalFunction   byte = 0x00
	ExternalTable      byte = 0x01
	ExternalMemory     byte = 0x02
	ExternalGlobalType byte = 0x03
)

// FuncType is a function signature: a vector of parameter types followed by
// a vector of result types. WebAssembly 1.0 permits at most one result.
// https://webassembly.github.io/spec/core/binary/types.html#function-types
type FuncType struct {
	ParamTypes  []ValueType
	ReturnTypes []ValueType
}

// Equal reports whether two signatures have identical parameter and result
// types, used by call_indirect's dynamic type check.
func (f FuncType) Equal(o FuncType) bool {
	if len(f.ParamTypes) != len(o.ParamTypes) || len(f.ReturnTypes) != len(o.ReturnTypes) {
		return false
	}
	for i := range f.ParamTypes {
		if f.ParamTypes[i] != o.ParamTypes[i] {
			return false
		}
	}
	for i := range f.ReturnTypes {
		if f.ReturnTypes[i] != o.ReturnTypes[i] {
			return false
		}
	}
	return true
}

// Limits bounds a table or memory's size, in table-elements or pages
// respectively.
// https://webassembly.github.io/spec/core/binary/types.html#limits
type Limits struct {
	HasMax bool
	Min    uint32
	Max    uint32
}

// Mem is a memory type: limits expressed in 64KiB pages.
// https://webassembly.github.io/spec/core/binary/types.html#memory-types
type Mem struct {
	Limits Limits
}

// Table is a table type: limits expressed in elements, element type is
// always funcref in WebAssembly 1.0.
// https://webassembly.github.io/spec/core/binary/types.html#table-types
type Table struct {
	ElemType byte
	Limits   Limits
}

// GlobalType is a global's value type plus its mutability.
// https://webassembly.github.io/spec/core/binary/types.html#global-types
type GlobalType struct {
	ValueType ValueType
	Mut       Mut
}

// ImportDesc is the tagged union of what an import resolves to.
// https://webassembly.github.io/spec/core/binary/modules.html#binary-importdesc
type ImportDesc struct {
	Kind       byte
	TypeIdx    uint32
	Table      *Table
	Mem        *Mem
	GlobalType *GlobalType
}

// Import is a single entry of the import section.
// https://webassembly.github.io/spec/core/binary/modules.html#binary-import
type Import struct {
	ModuleName string
	FieldName  string
	Desc       ImportDesc
}

// ExportDesc is the tagged union of what an export refers to.
// https://webassembly.github.io/spec/core/binary/modules.html#binary-exportdesc
type ExportDesc struct {
	Kind byte
	Idx  uint32
}

// Export is a single entry of the export section.
// https://webassembly.github.io/spec/core/binary/modules.html#export-section
type Export struct {
	Name string
	Desc ExportDesc
}

// Global is a global in the module's index space: its type plus a raw,
// undecoded constant-expression initializer (nil for an imported global,
// whose value comes from the resolver). The initializer is evaluated at
// instantiation time, not at decode time, because it may reference an
// imported global whose value isn't known until import resolution runs
// (spec.md §4.4 step 3).
type Global struct {
	Type GlobalType
	Init []byte
}

// LocalEntry is one run-length-encoded group of locals of the same type.
// https://webassembly.github.io/spec/core/binary/modules.html#binary-local
type LocalEntry struct {
	Count     uint32
	ValueType ValueType
}

// Func is a module-defined function's code: its declared locals and its
// body, with decode-time metadata (the label pre-scan) attached so the
// interpreter never has to rescan bytes to find a branch target.
// https://webassembly.github.io/spec/core/binary/modules.html#binary-func
type Func struct {
	Locals []LocalEntry
	Code   []byte
	Labels *LabelTable
}

// Element is one element-segment entry: a table index, a raw offset
// const-expression, and the function indices to write starting at that
// offset.
// https://webassembly.github.io/spec/core/binary/modules.html#binary-elem
type Element struct {
	TableIdx uint32
	Offset   []byte
	FuncIdxs []uint32
}

// Data is one data-segment entry: a memory index, a raw offset
// const-expression, and the bytes to write starting at that offset.
type Data struct {
	MemIdx uint32
	Offset []byte
	Init   []byte
}

// Function is a function in the module's function index space: imported
// functions occupy the first len(imports-of-kind-func) indices, followed
// by module-defined functions, per spec.md §3.
type Function struct {
	Type     FuncType
	Imported bool
	Import   *Import // set when Imported
	Body     *Func   // set when !Imported
	Name     string  // best-effort, set from the export section if present
}
