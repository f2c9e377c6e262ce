package leb128

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tinywasm/tinywasm/util"
)

func TestUint32RoundTrip(t *testing.T) {
	values := []uint32{0, 1, 127, 128, 300, 1 << 20, 0xffffffff}
	for _, v := range values {
		r := util.NewByteReader(EncodeUint32(v))
		got, err := ReadUint32(r)
		require.NoError(t, err)
		require.Equal(t, v, got)
	}
}

func TestInt32RoundTrip(t *testing.T) {
	values := []int32{0, 1, -1, 127, -127, 64, -64, 1 << 20, -(1 << 20), -2147483648, 2147483647}
	for _, v := range values {
		r := util.NewByteReader(EncodeInt32(v))
		got, err := ReadInt32(r)
		require.NoError(t, err)
		require.Equal(t, v, got)
	}
}

func TestUint64RoundTrip(t *testing.T) {
	values := []uint64{0, 1, 1 << 40, 0xffffffffffffffff}
	for _, v := range values {
		r := util.NewByteReader(EncodeUint64(v))
		got, err := ReadUint64(r)
		require.NoError(t, err)
		require.Equal(t, v, got)
	}
}

func TestInt64RoundTrip(t *testing.T) {
	values := []int64{0, -1, 1 << 40, -(1 << 40), -9223372036854775808, 9223372036854775807}
	for _, v := range values {
		r := util.NewByteReader(EncodeInt64(v))
		got, err := ReadInt64(r)
		require.NoError(t, err)
		require.Equal(t, v, got)
	}
}

func TestDecodeAtMatchesReader(t *testing.T) {
	enc := EncodeInt32(-123456)
	fromReader, err := ReadInt32(util.NewByteReader(enc))
	require.NoError(t, err)

	fromSlice, n, err := DecodeAt(enc, 0, 32, true)
	require.NoError(t, err)
	require.Equal(t, uint32(len(enc)), n)
	require.Equal(t, int64(fromReader), fromSlice)
}

func TestUnexpectedEOF(t *testing.T) {
	r := util.NewByteReader([]byte{0x80})
	_, err := ReadUint32(r)
	require.Error(t, err)
}

func TestMalformedOverlongEncoding(t *testing.T) {
	// five continuation bytes encoding a value whose top nibble doesn't
	// fit in 32 bits, with a sixth byte -> exceeds the 5-byte cap for u32.
	r := util.NewByteReader([]byte{0x80, 0x80, 0x80, 0x80, 0x80, 0x01})
	_, err := ReadUint32(r)
	require.ErrorIs(t, err, ErrMalformedLEB)
}
