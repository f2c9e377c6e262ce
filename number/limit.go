package number

import "math"

// Min returns the saturating low bound used when a float-to-int
// truncation overflows towards negative infinity.
func Min(t Type) uint64 {
	switch t {
	case I32:
		return 1 << 31 // math.MinInt32 as a zero-extended 32-bit pattern
	case I64:
		return 1 << 63 // math.MinInt64 as a 64-bit pattern
	case U32, U64:
		return 0
	}
	panic("number: invalid type")
}

// Max returns the saturating high bound used when a float-to-int
// truncation overflows towards positive infinity.
func Max(t Type) uint64 {
	switch t {
	case I32:
		return uint64(math.MaxInt32)
	case I64:
		return uint64(math.MaxInt64)
	case U32:
		return uint64(math.MaxUint32)
	case U64:
		return math.MaxUint64
	}
	panic("number: invalid type")
}
