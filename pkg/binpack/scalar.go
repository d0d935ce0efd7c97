package binpack

import (
	"encoding/binary"
	"errors"
)

var errBadCompactLength = errors.New("binpack: CompactInteger does not fit target width")

// compactEncodeUnsigned produces the minimal big-endian representation
// of v, stripping leading 0x00 bytes (keeping at least one byte).
func compactEncodeUnsigned(v uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	i := 0
	for i < 7 && buf[i] == 0x00 {
		i++
	}
	return append([]byte(nil), buf[i:]...)
}

// compactEncodeSigned produces the minimal sign-extended two's
// complement representation of v: leading 0xFF bytes are stripped for
// negative values, leading 0x00 bytes for non-negative values, as long
// as doing so does not flip the sign bit of the remaining leading byte.
func compactEncodeSigned(v int64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(v))
	i := 0
	for i < 7 {
		next := buf[i+1]
		if v < 0 {
			if buf[i] == 0xFF && next&0x80 != 0 {
				i++
				continue
			}
		} else {
			if buf[i] == 0x00 && next&0x80 == 0 {
				i++
				continue
			}
		}
		break
	}
	return append([]byte(nil), buf[i:]...)
}

func compactDecodeUnsigned(b []byte) (uint64, error) {
	if len(b) == 0 || len(b) > 8 {
		return 0, ErrLengthOverflow
	}
	var buf [8]byte
	copy(buf[8-len(b):], b)
	return binary.BigEndian.Uint64(buf[:]), nil
}

func compactDecodeSigned(b []byte) (int64, error) {
	if len(b) == 0 || len(b) > 8 {
		return 0, ErrLengthOverflow
	}
	var buf [8]byte
	fill := byte(0x00)
	if b[0]&0x80 != 0 {
		fill = 0xFF
	}
	for i := 0; i < 8-len(b); i++ {
		buf[i] = fill
	}
	copy(buf[8-len(b):], b)
	return int64(binary.BigEndian.Uint64(buf[:])), nil
}

// writeCompactInteger writes the 1-byte length prefix followed by the
// minimal representation of v.
func writeCompactInteger(w *writer, v uint64) {
	enc := compactEncodeUnsigned(v)
	w.WriteByte(byte(len(enc)))
	w.Write(enc)
}

func writeCompactIntegerSigned(w *writer, v int64) {
	enc := compactEncodeSigned(v)
	w.WriteByte(byte(len(enc)))
	w.Write(enc)
}

func readCompactIntegerUnsigned(r *reader) (uint64, error) {
	l, err := r.readByte()
	if err != nil {
		return 0, err
	}
	b, err := r.readN(int(l))
	if err != nil {
		return 0, err
	}
	return compactDecodeUnsigned(b)
}

func readCompactIntegerSigned(r *reader) (int64, error) {
	l, err := r.readByte()
	if err != nil {
		return 0, err
	}
	b, err := r.readN(int(l))
	if err != nil {
		return 0, err
	}
	return compactDecodeSigned(b)
}
