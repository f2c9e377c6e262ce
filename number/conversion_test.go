package number

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFloatTruncateNaN(t *testing.T) {
	bits := math.Float32bits(float32(math.NaN()))
	_, trap := FloatTruncate(F32, I32, uint64(bits))
	require.Equal(t, NanTrap, trap)
}

func TestFloatTruncateOverflow(t *testing.T) {
	bits := math.Float64bits(1e19)
	v, trap := FloatTruncate(F64, I32, bits)
	require.Equal(t, ConvertTrap, trap)
	require.Equal(t, Max(I32), v)

	bits = math.Float64bits(-1e19)
	v, trap = FloatTruncate(F64, I32, bits)
	require.Equal(t, ConvertTrap, trap)
	require.Equal(t, Min(I32), v)
}

func TestFloatTruncateExact(t *testing.T) {
	bits := math.Float64bits(3.99)
	v, trap := FloatTruncate(F64, I32, bits)
	require.Equal(t, NoTrap, trap)
	require.Equal(t, uint64(3), v)

	bits = math.Float64bits(-3.99)
	v, trap = FloatTruncate(F64, I32, bits)
	require.Equal(t, NoTrap, trap)
	require.Equal(t, uint64(0xFFFFFFFD), v) // -3 as a 32-bit pattern
}
