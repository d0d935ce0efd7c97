package binpack

import (
	"encoding/binary"
	"errors"
	"strings"
	"unicode/utf16"
)

var errBadBCDDigit = errors.New("binpack: invalid BCD digit")

func encodeUTF16LE(s string) []byte {
	units := utf16.Encode([]rune(s))
	out := make([]byte, len(units)*2)
	for i, u := range units {
		binary.LittleEndian.PutUint16(out[i*2:], u)
	}
	return out
}

func decodeUTF16LE(b []byte) string {
	units := make([]uint16, len(b)/2)
	for i := range units {
		units[i] = binary.LittleEndian.Uint16(b[i*2:])
	}
	return string(utf16.Decode(units))
}

func encodeUTF16BE(s string) []byte {
	units := utf16.Encode([]rune(s))
	out := make([]byte, len(units)*2)
	for i, u := range units {
		binary.BigEndian.PutUint16(out[i*2:], u)
	}
	return out
}

func decodeUTF16BE(b []byte) string {
	units := make([]uint16, len(b)/2)
	for i := range units {
		units[i] = binary.BigEndian.Uint16(b[i*2:])
	}
	return string(utf16.Decode(units))
}

// writeUnicodeString writes a length-prefixed (1 or 2 byte big-endian)
// UTF-16LE string.
func writeUnicodeString(w *writer, s string, lenPrefix int) error {
	enc := encodeUTF16LE(s)
	switch lenPrefix {
	case 1:
		if len(enc) > 0xFF {
			return ErrLengthOverflow
		}
		w.WriteByte(byte(len(enc)))
	case 2:
		if len(enc) > 0xFFFF {
			return ErrLengthOverflow
		}
		w.WriteUint16(uint16(len(enc)))
	default:
		return errors.New("binpack: unicode string lenprefix must be 1 or 2")
	}
	w.Write(enc)
	return nil
}

func readUnicodeString(r *reader, lenPrefix int) (string, error) {
	var n int
	switch lenPrefix {
	case 1:
		b, err := r.readByte()
		if err != nil {
			return "", err
		}
		n = int(b)
	case 2:
		v, err := r.readUint16()
		if err != nil {
			return "", err
		}
		n = int(v)
	default:
		return "", errors.New("binpack: unicode string lenprefix must be 1 or 2")
	}
	b, err := r.readN(n)
	if err != nil {
		return "", err
	}
	return decodeUTF16LE(b), nil
}

// writeUnicodeStringArray writes the unbounded fixed-width Unicode
// string array: a leading CompactInteger giving the UTF-16BE byte
// width used for every element (the widest element's width), then
// each element zero-padded to that width.
func writeUnicodeStringArray(w *writer, strs []string) {
	encoded := make([][]byte, len(strs))
	width := 0
	for i, s := range strs {
		b := encodeUTF16BE(s)
		encoded[i] = b
		if len(b) > width {
			width = len(b)
		}
	}
	writeCompactInteger(w, uint64(width))
	for _, b := range encoded {
		padded := make([]byte, width)
		copy(padded, b)
		w.Write(padded)
	}
}

// readUnicodeStringArray reads to the end of the buffer; it is only
// valid as the last field of a message.
func readUnicodeStringArray(r *reader) ([]string, error) {
	width64, err := readCompactIntegerUnsigned(r)
	if err != nil {
		return nil, err
	}
	width := int(width64)
	if width == 0 {
		if r.remaining() != 0 {
			return nil, ErrLengthOverflow
		}
		return nil, nil
	}
	var out []string
	for r.remaining() > 0 {
		chunk, err := r.readN(width)
		if err != nil {
			return nil, err
		}
		s := decodeUTF16BE(chunk)
		out = append(out, strings.TrimRight(s, "\x00"))
	}
	return out, nil
}

func bcdDigit(c byte) (byte, error) {
	if c < '0' || c > '9' {
		return 0, errBadBCDDigit
	}
	return c - '0', nil
}

func bcdPack(s string) ([]byte, error) {
	if len(s)%2 != 0 {
		s += "0"
	}
	out := make([]byte, len(s)/2)
	for i := range out {
		hi, err := bcdDigit(s[i*2])
		if err != nil {
			return nil, err
		}
		lo, err := bcdDigit(s[i*2+1])
		if err != nil {
			return nil, err
		}
		out[i] = hi<<4 | lo
	}
	return out, nil
}

func bcdUnpack(b []byte) (string, error) {
	out := make([]byte, len(b)*2)
	for i, bb := range b {
		hi := (bb >> 4) & 0x0F
		lo := bb & 0x0F
		if hi > 9 || lo > 9 {
			return "", errBadBCDDigit
		}
		out[i*2] = '0' + hi
		out[i*2+1] = '0' + lo
	}
	return string(out), nil
}

// writeBCDFixed right-pads s with '0' to 2*byteLen characters, then
// packs it into byteLen BCD bytes.
func writeBCDFixed(w *writer, s string, byteLen int) error {
	if len(s) > 2*byteLen {
		return ErrLengthOverflow
	}
	padded := s + strings.Repeat("0", 2*byteLen-len(s))
	packed, err := bcdPack(padded)
	if err != nil {
		return err
	}
	w.Write(packed)
	return nil
}

func readBCDFixed(r *reader, byteLen int) (string, error) {
	b, err := r.readN(byteLen)
	if err != nil {
		return "", err
	}
	return bcdUnpack(b)
}

// writeBCDUnbounded packs s (padded to even length) and writes it with
// no length prefix; it must be the last field.
func writeBCDUnbounded(w *writer, s string) error {
	packed, err := bcdPack(s)
	if err != nil {
		return err
	}
	w.Write(packed)
	return nil
}

func readBCDUnbounded(r *reader) (string, error) {
	return bcdUnpack(r.readRest())
}

// writeBCDLengthPrefixed writes a 1-byte length (in BCD bytes) then
// the packed BCD bytes.
func writeBCDLengthPrefixed(w *writer, s string) error {
	if len(s)%2 != 0 {
		s += "0"
	}
	packed, err := bcdPack(s)
	if err != nil {
		return err
	}
	if len(packed) > 0xFF {
		return ErrLengthOverflow
	}
	w.WriteByte(byte(len(packed)))
	w.Write(packed)
	return nil
}

func readBCDLengthPrefixed(r *reader) (string, error) {
	l, err := r.readByte()
	if err != nil {
		return "", err
	}
	b, err := r.readN(int(l))
	if err != nil {
		return "", err
	}
	return bcdUnpack(b)
}
