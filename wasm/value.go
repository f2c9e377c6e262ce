package wasm

import (
	"fmt"
	"math"
)

// Val is a tagged union over the four WebAssembly value types. Floats are
// stored as raw bits rather than as a Go float32/float64 so that NaN
// payloads survive round trips untouched, per spec.md §3.
type Val struct {
	Type ValueType
	bits uint64
}

// I32 constructs an i32 value.
func I32(v int32) Val { return Val{Type: ValueTypeI32, bits: uint64(uint32(v))} }

// I64 constructs an i64 value.
func I64(v int64) Val { return Val{Type: ValueTypeI64, bits: uint64(v)} }

// F32 constructs an f32 value.
func F32(v float32) Val { return Val{Type: ValueTypeF32, bits: uint64(math.Float32bits(v))} }

// F64 constructs an f64 value.
func F64(v float64) Val { return Val{Type: ValueTypeF64, bits: math.Float64bits(v)} }

// Bits returns the raw bit pattern, widened to 64 bits, regardless of
// type.
func (v Val) Bits() uint64 { return v.bits }

// ErrValueType is returned by the typed accessors below when the value's
// tag doesn't match the accessor.
type ErrValueType struct {
	Want, Got ValueType
}

func (e *ErrValueType) Error() string {
	return fmt.Sprintf("wasm: value type mismatch: want %s, got %s", e.Want, e.Got)
}

// AsI32 returns the value as an int32, failing if Type is not i32.
func (v Val) AsI32() (int32, error) {
	if v.Type != ValueTypeI32 {
		return 0, &ErrValueType{ValueTypeI32, v.Type}
	}
	return int32(uint32(v.bits)), nil
}

// AsI64 returns the value as an int64, failing if Type is not i64.
func (v Val) AsI64() (int64, error) {
	if v.Type != ValueTypeI64 {
		return 0, &ErrValueType{ValueTypeI64, v.Type}
	}
	return int64(v.bits), nil
}

// AsF32 returns the value as a float32, failing if Type is not f32.
func (v Val) AsF32() (float32, error) {
	if v.Type != ValueTypeF32 {
		return 0, &ErrValueType{ValueTypeF32, v.Type}
	}
	return math.Float32frombits(uint32(v.bits)), nil
}

// AsF64 returns the value as a float64, failing if Type is not f64.
func (v Val) AsF64() (float64, error) {
	if v.Type != ValueTypeF64 {
		return 0, &ErrValueType{ValueTypeF64, v.Type}
	}
	return math.Float64frombits(v.bits), nil
}

func (v Val) String() string {
	switch v.Type {
	case ValueTypeI32:
		i, _ := v.AsI32()
		return fmt.Sprintf("i32:%d", i)
	case ValueTypeI64:
		i, _ := v.AsI64()
		return fmt.Sprintf("i64:%d", i)
	case ValueTypeF32:
		f, _ := v.AsF32()
		return fmt.Sprintf("f32:%v", f)
	case ValueTypeF64:
		f, _ := v.AsF64()
		return fmt.Sprintf("f64:%v", f)
	default:
		return "invalid"
	}
}

// FromBits reassembles a Val of the given type from a raw 64-bit payload,
// used by the interpreter to build typed results from raw bit patterns.
func FromBits(t ValueType, bits uint64) Val {
	return Val{Type: t, bits: bits}
}
