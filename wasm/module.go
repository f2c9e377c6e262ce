package wasm

import (
	"github.com/tinywasm/tinywasm/util"
)

// Module is the fully decoded, static representation of a WebAssembly
// binary. It holds everything that can be determined without resolving
// imports: types, the shape of every function/table/memory/global
// (including the function index space, which interleaves imported and
// module-defined functions per spec.md §3), and the raw, unevaluated
// const-expression bytes for globals and segments. Evaluating those bytes
// against a concrete import environment is instantiation's job, not
// decode's — see the vm package.
type Module struct {
	Types    []FuncType
	Imports  []Import
	Funcs    []Function
	Tables   []Table
	Memories []Mem
	Globals  []Global
	Exports  map[string]Export
	Start    *uint32
	Elems    []Element
	Datas    []Data
}

const (
	secCustom   = 0
	secType     = 1
	secImport   = 2
	secFunction = 3
	secTable    = 4
	secMemory   = 5
	secGlobal   = 6
	secExport   = 7
	secStart    = 8
	secElement  = 9
	secCode     = 10
	secData     = 11
)

// Decode parses raw bytes into a Module. It performs the structural and
// syntactic validation described in spec.md §7 (header, section order,
// LEB128 well-formedness, UTF-8 names, function/code count parity, block
// nesting) but does not run the full type-checking pass a conforming
// validator would (see SPEC_FULL.md's design notes on the validation gap);
// malformed type errors surface later, as traps, when the interpreter
// actually exercises them.
func Decode(b []byte) (*Module, error) {
	r := util.NewByteReader(b)

	magic, err := readU32LE(r)
	if err != nil {
		return nil, decodeErr(KindBadHeader, "truncated header")
	}
	if magic != Magic {
		return nil, decodeErr(KindBadHeader, "bad magic 0x%x", magic)
	}
	version, err := readU32LE(r)
	if err != nil {
		return nil, decodeErr(KindBadHeader, "truncated header")
	}
	if version != Version {
		return nil, decodeErr(KindBadHeader, "unsupported version %d", version)
	}

	m := &Module{Exports: map[string]Export{}}
	var funcSigs []uint32 // function-section type indices, paired with code section below
	lastSec := -1

	for r.Remaining() > 0 {
		id, err := readByte(r)
		if err != nil {
			return nil, err
		}
		size, err := readUleb32(r)
		if err != nil {
			return nil, err
		}
		body, err := r.ReadN(size)
		if err != nil {
			return nil, decodeErr(KindUnexpectedEOF, "truncated section %d", id)
		}
		sr := util.NewByteReader(body)

		if id == secCustom {
			continue // custom sections may appear anywhere and are otherwise ignored
		}
		if int(id) <= lastSec {
			return nil, decodeErr(KindDuplicateOrOutOfOrderSection, "section %d out of order", id)
		}
		lastSec = int(id)

		switch id {
		case secType:
			if err := decodeTypeSection(sr, m); err != nil {
				return nil, err
			}
		case secImport:
			if err := decodeImportSection(sr, m); err != nil {
				return nil, err
			}
		case secFunction:
			funcSigs, err = decodeFunctionSection(sr)
			if err != nil {
				return nil, err
			}
		case secTable:
			if err := decodeTableSection(sr, m); err != nil {
				return nil, err
			}
		case secMemory:
			if err := decodeMemorySection(sr, m); err != nil {
				return nil, err
			}
		case secGlobal:
			if err := decodeGlobalSection(sr, m); err != nil {
				return nil, err
			}
		case secExport:
			if err := decodeExportSection(sr, m); err != nil {
				return nil, err
			}
		case secStart:
			idx, err := readUleb32(sr)
			if err != nil {
				return nil, err
			}
			m.Start = &idx
		case secElement:
			if err := decodeElementSection(sr, m); err != nil {
				return nil, err
			}
		case secCode:
			if err := decodeCodeSection(sr, m, funcSigs); err != nil {
				return nil, err
			}
		case secData:
			if err := decodeDataSection(sr, m); err != nil {
				return nil, err
			}
		default:
			return nil, decodeErr(KindUnknownSection, "unknown section id %d", id)
		}
	}

	if len(funcSigs) > 0 && countDefinedFuncs(m) == 0 {
		return nil, decodeErr(KindFunctionCodeCountMismatch, "function section declares %d functions but code section is empty", len(funcSigs))
	}
	applyExportNames(m)
	return m, nil
}

func countDefinedFuncs(m *Module) int {
	n := 0
	for _, f := range m.Funcs {
		if !f.Imported {
			n++
		}
	}
	return n
}

func decodeTypeSection(r *util.ByteReader, m *Module) error {
	n, err := readUleb32(r)
	if err != nil {
		return err
	}
	for i := uint32(0); i < n; i++ {
		form, err := readByte(r)
		if err != nil {
			return err
		}
		if form != FuncTypeForm {
			return decodeErr(KindInvalidValueType, "invalid type section form 0x%x", form)
		}
		ft, err := decodeFuncType(r)
		if err != nil {
			return err
		}
		m.Types = append(m.Types, ft)
	}
	return nil
}

func decodeFuncType(r *util.ByteReader) (FuncType, error) {
	var ft FuncType
	np, err := readUleb32(r)
	if err != nil {
		return ft, err
	}
	for i := uint32(0); i < np; i++ {
		vt, err := readValueType(r)
		if err != nil {
			return ft, err
		}
		ft.ParamTypes = append(ft.ParamTypes, vt)
	}
	nr, err := readUleb32(r)
	if err != nil {
		return ft, err
	}
	for i := uint32(0); i < nr; i++ {
		vt, err := readValueType(r)
		if err != nil {
			return ft, err
		}
		ft.ReturnTypes = append(ft.ReturnTypes, vt)
	}
	return ft, nil
}

func decodeImportSection(r *util.ByteReader, m *Module) error {
	n, err := readUleb32(r)
	if err != nil {
		return err
	}
	for i := uint32(0); i < n; i++ {
		modName, err := readName(r)
		if err != nil {
			return err
		}
		field, err := readName(r)
		if err != nil {
			return err
		}
		kind, err := readByte(r)
		if err != nil {
			return err
		}
		imp := Import{ModuleName: modName, FieldName: field, Desc: ImportDesc{Kind: kind}}
		switch kind {
		case ExternalFunction:
			idx, err := readUleb32(r)
			if err != nil {
				return err
			}
			imp.Desc.TypeIdx = idx
			if int(idx) >= len(m.Types) {
				return decodeErr(KindInvalidValueType, "import function type index %d out of range", idx)
			}
			m.Funcs = append(m.Funcs, Function{Type: m.Types[idx], Imported: true, Import: &imp})
		case ExternalTable:
			et, err := readElemType(r)
			if err != nil {
				return err
			}
			lim, err := readLimits(r)
			if err != nil {
				return err
			}
			t := &Table{ElemType: et, Limits: lim}
			imp.Desc.Table = t
			m.Tables = append(m.Tables, *t)
		case ExternalMemory:
			lim, err := readLimits(r)
			if err != nil {
				return err
			}
			mem := &Mem{Limits: lim}
			imp.Desc.Mem = mem
			m.Memories = append(m.Memories, *mem)
		case ExternalGlobalType:
			gt, err := readGlobalType(r)
			if err != nil {
				return err
			}
			imp.Desc.GlobalType = &gt
			m.Globals = append(m.Globals, Global{Type: gt, Init: nil}) // Init resolved by the importer, not a const-expr
		default:
			return decodeErr(KindInvalidValueType, "invalid import kind 0x%x", kind)
		}
		m.Imports = append(m.Imports, imp)
	}
	return nil
}

func decodeFunctionSection(r *util.ByteReader) ([]uint32, error) {
	n, err := readUleb32(r)
	if err != nil {
		return nil, err
	}
	sigs := make([]uint32, 0, n)
	for i := uint32(0); i < n; i++ {
		idx, err := readUleb32(r)
		if err != nil {
			return nil, err
		}
		sigs = append(sigs, idx)
	}
	return sigs, nil
}

func decodeTableSection(r *util.ByteReader, m *Module) error {
	n, err := readUleb32(r)
	if err != nil {
		return err
	}
	for i := uint32(0); i < n; i++ {
		et, err := readElemType(r)
		if err != nil {
			return err
		}
		lim, err := readLimits(r)
		if err != nil {
			return err
		}
		m.Tables = append(m.Tables, Table{ElemType: et, Limits: lim})
	}
	return nil
}

func decodeMemorySection(r *util.ByteReader, m *Module) error {
	n, err := readUleb32(r)
	if err != nil {
		return err
	}
	for i := uint32(0); i < n; i++ {
		lim, err := readLimits(r)
		if err != nil {
			return err
		}
		m.Memories = append(m.Memories, Mem{Limits: lim})
	}
	return nil
}

func decodeGlobalSection(r *util.ByteReader, m *Module) error {
	n, err := readUleb32(r)
	if err != nil {
		return err
	}
	for i := uint32(0); i < n; i++ {
		gt, err := readGlobalType(r)
		if err != nil {
			return err
		}
		init, err := readExprBytes(r)
		if err != nil {
			return err
		}
		m.Globals = append(m.Globals, Global{Type: gt, Init: init})
	}
	return nil
}

func decodeExportSection(r *util.ByteReader, m *Module) error {
	n, err := readUleb32(r)
	if err != nil {
		return err
	}
	for i := uint32(0); i < n; i++ {
		name, err := readName(r)
		if err != nil {
			return err
		}
		kind, err := readByte(r)
		if err != nil {
			return err
		}
		idx, err := readUleb32(r)
		if err != nil {
			return err
		}
		m.Exports[name] = Export{Name: name, Desc: ExportDesc{Kind: kind, Idx: idx}}
	}
	return nil
}

func decodeElementSection(r *util.ByteReader, m *Module) error {
	n, err := readUleb32(r)
	if err != nil {
		return err
	}
	for i := uint32(0); i < n; i++ {
		tidx, err := readUleb32(r)
		if err != nil {
			return err
		}
		offset, err := readExprBytes(r)
		if err != nil {
			return err
		}
		cnt, err := readUleb32(r)
		if err != nil {
			return err
		}
		idxs := make([]uint32, 0, cnt)
		for j := uint32(0); j < cnt; j++ {
			fi, err := readUleb32(r)
			if err != nil {
				return err
			}
			idxs = append(idxs, fi)
		}
		m.Elems = append(m.Elems, Element{TableIdx: tidx, Offset: offset, FuncIdxs: idxs})
	}
	return nil
}

func decodeCodeSection(r *util.ByteReader, m *Module, sigs []uint32) error {
	n, err := readUleb32(r)
	if err != nil {
		return err
	}
	if int(n) != len(sigs) {
		return decodeErr(KindFunctionCodeCountMismatch, "function section has %d entries, code section has %d", len(sigs), n)
	}
	for i := uint32(0); i < n; i++ {
		size, err := readUleb32(r)
		if err != nil {
			return err
		}
		body, err := r.ReadN(size)
		if err != nil {
			return decodeErr(KindUnexpectedEOF, "truncated code entry %d", i)
		}
		fn, err := decodeFuncBody(body)
		if err != nil {
			return err
		}
		typeIdx := sigs[i]
		if int(typeIdx) >= len(m.Types) {
			return decodeErr(KindInvalidValueType, "code entry %d: type index %d out of range", i, typeIdx)
		}
		m.Funcs = append(m.Funcs, Function{Type: m.Types[typeIdx], Body: fn})
	}
	return nil
}

// decodeFuncBody reads a function body's local declarations, then treats
// the remainder as raw bytecode, pre-scanning it once for label targets.
// The trailing `end` (0x0B) that closes the function itself is stripped
// before scanLabels runs, so every remaining `end` scanLabels sees belongs
// to a nested block/loop/if and must balance exactly.
func decodeFuncBody(body []byte) (*Func, error) {
	r := util.NewByteReader(body)
	n, err := readUleb32(r)
	if err != nil {
		return nil, err
	}
	locals := make([]LocalEntry, 0, n)
	for i := uint32(0); i < n; i++ {
		count, err := readUleb32(r)
		if err != nil {
			return nil, err
		}
		vt, err := readValueType(r)
		if err != nil {
			return nil, err
		}
		locals = append(locals, LocalEntry{Count: count, ValueType: vt})
	}
	code := r.Rest()
	if len(code) == 0 || code[len(code)-1] != 0x0B {
		return nil, decodeErr(KindUnbalancedLabel, "function body missing terminating end")
	}
	code = code[:len(code)-1]
	labels, err := scanLabels(code)
	if err != nil {
		return nil, err
	}
	return &Func{Locals: locals, Code: code, Labels: labels}, nil
}

func decodeDataSection(r *util.ByteReader, m *Module) error {
	n, err := readUleb32(r)
	if err != nil {
		return err
	}
	for i := uint32(0); i < n; i++ {
		midx, err := readUleb32(r)
		if err != nil {
			return err
		}
		offset, err := readExprBytes(r)
		if err != nil {
			return err
		}
		size, err := readUleb32(r)
		if err != nil {
			return err
		}
		init, err := r.ReadN(size)
		if err != nil {
			return decodeErr(KindUnexpectedEOF, "truncated data entry %d", i)
		}
		m.Datas = append(m.Datas, Data{MemIdx: midx, Offset: offset, Init: init})
	}
	return nil
}

// applyExportNames back-fills Function.Name for exported functions, a
// best-effort convenience so error messages and debugging tools can show a
// human-readable name instead of a bare index.
func applyExportNames(m *Module) {
	for name, exp := range m.Exports {
		if exp.Desc.Kind == ExternalFunction && int(exp.Desc.Idx) < len(m.Funcs) {
			m.Funcs[exp.Desc.Idx].Name = name
		}
	}
}

// FuncIndexCount returns the total size of the function index space
// (imported functions followed by module-defined ones).
func (m *Module) FuncIndexCount() int { return len(m.Funcs) }
