package vm

import (
	"encoding/binary"

	"github.com/tinywasm/tinywasm/leb128"
)

// decodeSleb/decodeUleb/leU32/leU64 adapt the leb128 package's
// slice-and-offset decoder for the small, self-contained byte slices this
// package decodes outside of a module-wide util.ByteReader: const
// expressions (already split out by wasm.Decode) and instruction
// immediates read directly out of a function body during interpretation.
func decodeSleb(b []byte, bits uint) (int64, uint32, error) {
	return leb128.DecodeAt(b, 0, bits, true)
}

func decodeUleb(b []byte, bits uint) (int64, uint32, error) {
	return leb128.DecodeAt(b, 0, bits, false)
}

func leU32(b []byte) uint32 { return binary.LittleEndian.Uint32(b) }
func leU64(b []byte) uint64 { return binary.LittleEndian.Uint64(b) }
