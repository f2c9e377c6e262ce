// Package util provides the low-level byte cursor the decoder and
// interpreter share to walk a module's bytes without pulling in an
// allocator-heavy io.Reader stack.
package util

import "io"

// ByteReader is a forward-only cursor over an in-memory byte slice. It
// never copies the underlying slice; callers own the backing array for the
// lifetime of the reader.
type ByteReader struct {
	b   []byte
	pos uint32
}

// NewByteReader wraps b in a ByteReader starting at offset 0.
func NewByteReader(b []byte) *ByteReader {
	return &ByteReader{b: b}
}

// ReadOne consumes and returns the next byte, or io.EOF if the reader is
// exhausted.
func (r *ByteReader) ReadOne() (byte, error) {
	if r.pos >= uint32(len(r.b)) {
		return 0, io.EOF
	}
	b := r.b[r.pos]
	r.pos++
	return b, nil
}

// ReadN consumes and returns the next n bytes. It returns io.EOF if fewer
// than n bytes remain.
func (r *ByteReader) ReadN(n uint32) ([]byte, error) {
	if uint64(r.pos)+uint64(n) > uint64(len(r.b)) {
		return nil, io.EOF
	}
	b := r.b[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

// Peek returns the next byte without advancing the cursor. It returns
// io.EOF if the reader is exhausted.
func (r *ByteReader) Peek() (byte, error) {
	if r.pos >= uint32(len(r.b)) {
		return 0, io.EOF
	}
	return r.b[r.pos], nil
}

// Remaining returns the number of unread bytes.
func (r *ByteReader) Remaining() uint32 {
	return uint32(len(r.b)) - r.pos
}

// Rest returns the unread tail of the underlying slice without consuming
// it.
func (r *ByteReader) Rest() []byte {
	return r.b[r.pos:]
}

// Pos returns the current cursor offset, useful for error messages and
// pre-scan bookkeeping.
func (r *ByteReader) Pos() uint32 {
	return r.pos
}

// Len returns the total length of the underlying slice.
func (r *ByteReader) Len() uint32 {
	return uint32(len(r.b))
}
