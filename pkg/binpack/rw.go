// Package binpack is the attribute-driven binary serializer: it maps
// typed message structs to and from bytes using `wire:"..."` struct
// tags, building a reflective plan once per type and caching it. See
// SPEC_FULL.md §4.4.
package binpack

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrNotEnoughBytes is wrapped into a *FieldError when a read runs off
// the end of the buffer.
var ErrNotEnoughBytes = errors.New("binpack: not enough bytes")

// ErrLengthOverflow is wrapped into a *FieldError when a declared
// length does not fit its prefix, or a CompactInteger spans more bytes
// than its target integer type can hold.
var ErrLengthOverflow = errors.New("binpack: length overflow")

// FieldError attaches a deserialization or serialization failure to
// the struct field name that caused it, per spec.md §4.4's error
// taxonomy ("deserialization errors attached to the field name").
type FieldError struct {
	Field string
	Err   error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("binpack: field %s: %v", e.Field, e.Err)
}

func (e *FieldError) Unwrap() error { return e.Err }

func fieldErr(name string, err error) error {
	if err == nil {
		return nil
	}
	return &FieldError{Field: name, Err: err}
}

// writer accumulates encoded bytes.
type writer struct {
	buf []byte
}

func (w *writer) WriteByte(b byte) { w.buf = append(w.buf, b) }
func (w *writer) Write(b []byte)   { w.buf = append(w.buf, b...) }

func (w *writer) WriteUint16(v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	w.Write(b[:])
}

func (w *writer) WriteUint32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	w.Write(b[:])
}

// reader consumes encoded bytes, tracking position for bounds checks.
type reader struct {
	buf []byte
	pos int
}

func (r *reader) remaining() int { return len(r.buf) - r.pos }

func (r *reader) readByte() (byte, error) {
	if r.remaining() < 1 {
		return 0, ErrNotEnoughBytes
	}
	b := r.buf[r.pos]
	r.pos++
	return b, nil
}

func (r *reader) readN(n int) ([]byte, error) {
	if n < 0 || r.remaining() < n {
		return nil, ErrNotEnoughBytes
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

func (r *reader) readRest() []byte {
	b := r.buf[r.pos:]
	r.pos = len(r.buf)
	return b
}

func (r *reader) readUint16() (uint16, error) {
	b, err := r.readN(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

func (r *reader) readUint32() (uint32, error) {
	b, err := r.readN(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}
