package binpack

import (
	"encoding/binary"
	"reflect"
)

// bitMember is one named field packed into a shared bit-field group.
// Positions are counted from the least significant bit of the group's
// storage unit.
type bitMember struct {
	path   []int
	name   string
	pos    int
	width  int
	isBool bool
}

func encodeBitGroup(w *writer, structVal reflect.Value, members []bitMember, size int) {
	var acc uint64
	for _, m := range members {
		fv := structVal.FieldByIndex(m.path)
		var raw uint64
		if m.isBool {
			if fv.Bool() {
				raw = 1
			}
		} else {
			raw = fv.Uint() & ((uint64(1) << uint(m.width)) - 1)
		}
		acc |= raw << uint(m.pos)
	}
	buf := make([]byte, size)
	switch size {
	case 1:
		buf[0] = byte(acc)
	case 2:
		binary.BigEndian.PutUint16(buf, uint16(acc))
	case 4:
		binary.BigEndian.PutUint32(buf, uint32(acc))
	}
	w.Write(buf)
}

func decodeBitGroup(r *reader, structVal reflect.Value, members []bitMember, size int) error {
	b, err := r.readN(size)
	if err != nil {
		return err
	}
	var acc uint64
	switch size {
	case 1:
		acc = uint64(b[0])
	case 2:
		acc = uint64(binary.BigEndian.Uint16(b))
	case 4:
		acc = uint64(binary.BigEndian.Uint32(b))
	}
	for _, m := range members {
		mask := (uint64(1) << uint(m.width)) - 1
		raw := (acc >> uint(m.pos)) & mask
		fv := structVal.FieldByIndex(m.path)
		if m.isBool {
			fv.SetBool(raw != 0)
		} else {
			fv.SetUint(raw)
		}
	}
	return nil
}
