package number

import "math"

// CanTruncate checks if a float (from) can be converted to an int (to)
// without overflowing. value must be a float32 when from is F32, or a
// float64 when from is F64.
func CanTruncate(from, to Type, value interface{}) bool {
	var f float64
	switch from {
	case F32:
		v, ok := value.(float32)
		if !ok {
			panic("number: check value must be float32")
		}
		f = float64(v)
	case F64:
		v, ok := value.(float64)
		if !ok {
			panic("number: check value must be float64")
		}
		f = v
	default:
		panic("number: from must be a float type")
	}

	switch to {
	case I32:
		return f >= math.MinInt32 && f < math.MaxInt32+1
	case U32:
		return f > -1 && f < math.MaxUint32+1
	case I64:
		return f >= math.MinInt64 && f < math.MaxInt64+1
	case U64:
		return f > -1 && f < math.MaxUint64+1
	}
	panic("number: invalid conversion types")
}

// FloatTruncate truncates a float represented by floatBits (the bit
// pattern of a float32 when from is F32, of a float64 when from is F64)
// towards zero into the destination integer type. When the source is NaN
// it returns NanTrap; when the source is finite but out of range for the
// destination it returns the saturating bound in the overflow direction
// together with ConvertTrap, mirroring the trap semantics of
// trunc_s/trunc_u.
func FloatTruncate(from, to Type, floatBits uint64) (uint64, TrapCode) {
	var f float64
	switch from {
	case F32:
		v := math.Float32frombits(uint32(floatBits))
		if math.IsNaN(float64(v)) {
			return 0, NanTrap
		}
		if !CanTruncate(from, to, v) {
			return boundOf(to, math.Signbit(float64(v))), ConvertTrap
		}
		f = float64(v)
	case F64:
		v := math.Float64frombits(floatBits)
		if math.IsNaN(v) {
			return 0, NanTrap
		}
		if !CanTruncate(from, to, v) {
			return boundOf(to, math.Signbit(v)), ConvertTrap
		}
		f = v
	default:
		panic("number: from must be a float type")
	}

	switch to {
	case I32:
		return uint64(uint32(int32(f))), NoTrap
	case I64:
		return uint64(int64(f)), NoTrap
	case U32:
		return uint64(uint32(f)), NoTrap
	case U64:
		return uint64(f), NoTrap
	default:
		panic("number: to must be an integer type")
	}
}

func boundOf(to Type, negative bool) uint64 {
	if negative {
		return Min(to)
	}
	return Max(to)
}
