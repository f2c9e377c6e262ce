package wasm

import (
	"encoding/binary"
	"unicode/utf8"

	"github.com/tinywasm/tinywasm/leb128"
	"github.com/tinywasm/tinywasm/util"
)

func readByte(r *util.ByteReader) (byte, error) {
	b, err := r.ReadOne()
	if err != nil {
		return 0, decodeErr(KindUnexpectedEOF, "expected a byte")
	}
	return b, nil
}

func readU32LE(r *util.ByteReader) (uint32, error) {
	b, err := r.ReadN(4)
	if err != nil {
		return 0, decodeErr(KindUnexpectedEOF, "expected 4 bytes")
	}
	return binary.LittleEndian.Uint32(b), nil
}

func readU64LE(r *util.ByteReader) (uint64, error) {
	b, err := r.ReadN(8)
	if err != nil {
		return 0, decodeErr(KindUnexpectedEOF, "expected 8 bytes")
	}
	return binary.LittleEndian.Uint64(b), nil
}

func readUleb32(r *util.ByteReader) (uint32, error) {
	v, err := leb128.ReadUint32(r)
	if err != nil {
		return 0, wrapLebErr(err)
	}
	return v, nil
}

func readSleb32(r *util.ByteReader) (int32, error) {
	v, err := leb128.ReadInt32(r)
	if err != nil {
		return 0, wrapLebErr(err)
	}
	return v, nil
}

func readSleb64(r *util.ByteReader) (int64, error) {
	v, err := leb128.ReadInt64(r)
	if err != nil {
		return 0, wrapLebErr(err)
	}
	return v, nil
}

func wrapLebErr(err error) *DecodeError {
	if err == nil {
		return nil
	}
	return decodeErr(KindMalformedLeb, "%s", err.Error())
}

func readName(r *util.ByteReader) (string, error) {
	n, err := readUleb32(r)
	if err != nil {
		return "", err
	}
	b, err := r.ReadN(n)
	if err != nil {
		return "", decodeErr(KindUnexpectedEOF, "expected %d byte name", n)
	}
	if !utf8.Valid(b) {
		return "", decodeErr(KindInvalidUtf8, "invalid utf-8 name")
	}
	return string(b), nil
}

func readValueType(r *util.ByteReader) (ValueType, error) {
	b, err := readByte(r)
	if err != nil {
		return 0, err
	}
	switch ValueType(b) {
	case ValueTypeI32, ValueTypeI64, ValueTypeF32, ValueTypeF64:
		return ValueType(b), nil
	}
	return 0, decodeErr(KindInvalidValueType, "invalid value type byte 0x%x", b)
}

func readMut(r *util.ByteReader) (Mut, error) {
	b, err := readByte(r)
	if err != nil {
		return 0, err
	}
	if b != byte(Const) && b != byte(Var) {
		return 0, decodeErr(KindInvalidValueType, "invalid mutability flag 0x%x", b)
	}
	return Mut(b), nil
}

func readElemType(r *util.ByteReader) (byte, error) {
	b, err := readByte(r)
	if err != nil {
		return 0, err
	}
	// WebAssembly 1.0 only supports funcref tables.
	if b != ElemTypeFuncRef {
		return 0, decodeErr(KindInvalidValueType, "invalid table element type 0x%x", b)
	}
	return b, nil
}

func readLimits(r *util.ByteReader) (Limits, error) {
	var limits Limits
	flag, err := readByte(r)
	if err != nil {
		return limits, err
	}
	switch flag {
	case 0x00:
		limits.Min, err = readUleb32(r)
		if err != nil {
			return limits, err
		}
	case 0x01:
		limits.HasMax = true
		limits.Min, err = readUleb32(r)
		if err != nil {
			return limits, err
		}
		limits.Max, err = readUleb32(r)
		if err != nil {
			return limits, err
		}
		if limits.Max < limits.Min {
			return limits, decodeErr(KindInvalidMemoryLimits, "max %d < min %d", limits.Max, limits.Min)
		}
	default:
		return limits, decodeErr(KindInvalidMemoryLimits, "invalid limits flag 0x%x", flag)
	}
	return limits, nil
}

func readGlobalType(r *util.ByteReader) (GlobalType, error) {
	var gt GlobalType
	vt, err := readValueType(r)
	if err != nil {
		return gt, err
	}
	mut, err := readMut(r)
	if err != nil {
		return gt, err
	}
	gt.ValueType = vt
	gt.Mut = mut
	return gt, nil
}

// readExprBytes consumes bytes up to and including the terminating `end`
// (0x0B) opcode and returns them without the trailing `end`. The
// immediates of the *.const and global.get opcodes are copied whole, so a
// 0x0B byte inside one does not end the expression. Const expressions
// used for global initializers and segment offsets are small and
// restricted (spec.md §4.3), so no structural validation happens here;
// evalConstExpr at instantiation time rejects anything that isn't one of
// the permitted opcodes.
func readExprBytes(r *util.ByteReader) ([]byte, error) {
	var out []byte
	for {
		b, err := readByte(r)
		if err != nil {
			return nil, err
		}
		if b == 0x0B {
			return out, nil
		}
		out = append(out, b)
		var n uint32 // byte length of the opcode's immediate
		switch b {
		case 0x41, 0x42, 0x23: // i32.const, i64.const, global.get
			if _, n, err = leb128.DecodeAt(r.Rest(), 0, 64, b != 0x23); err != nil {
				return nil, wrapLebErr(err)
			}
		case 0x43, 0x44: // f32.const, f64.const
			n = 4 * uint32(b-0x42)
		}
		imm, err := r.ReadN(n)
		if err != nil {
			return nil, decodeErr(KindUnexpectedEOF, "truncated const expression")
		}
		out = append(out, imm...)
	}
}
