// Package leb128 implements the LEB128 variable-length integer encoding
// used throughout the WebAssembly binary format
// (https://webassembly.github.io/spec/core/binary/values.html#integers),
// plus the matching encoder used by this repository's round-trip tests and
// by the wasmtest module builder.
//
// Decoding works against two sources: a streaming util.ByteReader (used by
// the module decoder, which walks a section at a time) and a raw byte
// slice plus offset (used by the interpreter, which decodes instruction
// immediates directly out of a function body without allocating a
// reader). Both paths share the same core algorithm so overflow and
// malformed-encoding detection behave identically either way.
package leb128

import (
	"errors"
	"io"

	"github.com/tinywasm/tinywasm/util"
)

// ErrMalformedLEB is returned when an encoding is longer than the target
// bit width permits, or when the unused high bits of the final byte are
// inconsistent with the signed/unsigned interpretation being decoded.
var ErrMalformedLEB = errors.New("leb128: malformed encoding")

// byteSource abstracts over the two places we pull single bytes from.
type byteSource func() (byte, error)

func decode(next byteSource, bits uint, signed bool) (int64, uint32, error) {
	var (
		result int64
		shift  uint
		b      byte
		count  uint32
	)
	maxBytes := uint32((bits + 6) / 7)
	for {
		nb, err := next()
		if err != nil {
			if err == io.EOF {
				return 0, count, io.ErrUnexpectedEOF
			}
			return 0, count, err
		}
		count++
		b = nb
		if count > maxBytes {
			return 0, count, ErrMalformedLEB
		}
		result |= int64(b&0x7f) << shift
		shift += 7
		if b&0x80 == 0 {
			break
		}
	}

	if count == maxBytes {
		usedBits := bits - uint(maxBytes-1)*7
		mask := byte(0x7f) &^ byte((1<<usedBits)-1)
		extra := b & mask
		if signed {
			signBit := (b >> (usedBits - 1)) & 1
			want := byte(0)
			if signBit == 1 {
				want = mask
			}
			if extra != want {
				return 0, count, ErrMalformedLEB
			}
		} else if extra != 0 {
			return 0, count, ErrMalformedLEB
		}
	}

	if signed && shift < 64 && b&0x40 != 0 {
		result |= -1 << shift
	}
	return result, count, nil
}

// ReadUint32 decodes an unsigned 32-bit LEB128 integer from r.
func ReadUint32(r *util.ByteReader) (uint32, error) {
	v, _, err := decode(r.ReadOne, 32, false)
	return uint32(v), err
}

// ReadInt32 decodes a signed 32-bit LEB128 integer from r.
func ReadInt32(r *util.ByteReader) (int32, error) {
	v, _, err := decode(r.ReadOne, 32, true)
	return int32(v), err
}

// ReadUint64 decodes an unsigned 64-bit LEB128 integer from r.
func ReadUint64(r *util.ByteReader) (uint64, error) {
	v, _, err := decode(r.ReadOne, 64, false)
	return uint64(v), err
}

// ReadInt64 decodes a signed 64-bit LEB128 integer from r.
func ReadInt64(r *util.ByteReader) (int64, error) {
	v, _, err := decode(r.ReadOne, 64, true)
	return v, err
}

// DecodeAt decodes a LEB128 integer directly out of b starting at offset,
// returning the value widened to int64, the number of bytes consumed, and
// an error. It is used by the interpreter to read instruction immediates
// without wrapping the function body in a reader on every call.
func DecodeAt(b []byte, offset int, bits uint, signed bool) (int64, uint32, error) {
	i := offset
	next := func() (byte, error) {
		if i >= len(b) {
			return 0, io.EOF
		}
		v := b[i]
		i++
		return v, nil
	}
	return decode(next, bits, signed)
}

// EncodeUint32 encodes v as an unsigned 32-bit LEB128 sequence.
func EncodeUint32(v uint32) []byte { return encodeUnsigned(uint64(v)) }

// EncodeUint64 encodes v as an unsigned 64-bit LEB128 sequence.
func EncodeUint64(v uint64) []byte { return encodeUnsigned(v) }

// EncodeInt32 encodes v as a signed 32-bit LEB128 sequence.
func EncodeInt32(v int32) []byte { return encodeSigned(int64(v)) }

// EncodeInt64 encodes v as a signed 64-bit LEB128 sequence.
func EncodeInt64(v int64) []byte { return encodeSigned(v) }

func encodeUnsigned(v uint64) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		out = append(out, b)
		if v == 0 {
			break
		}
	}
	return out
}

func encodeSigned(v int64) []byte {
	var out []byte
	more := true
	for more {
		b := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			more = false
		} else {
			b |= 0x80
		}
		out = append(out, b)
	}
	return out
}
