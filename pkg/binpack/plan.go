package binpack

import (
	"fmt"
	"reflect"
	"sync"
	"time"
)

// planField is one step of a build-once serialization plan: either a
// single struct field, or (for bit-field groups) several fields packed
// into one shared storage unit.
type planField struct {
	name   string
	encode func(sv reflect.Value, w *writer) error
	decode func(sv reflect.Value, r *reader) error
}

type plan struct {
	fields []planField
}

var planCache sync.Map // reflect.Type -> *plan

// getPlan returns the cached plan for t (a struct or pointer-to-struct
// type), building and caching it on first use. A malformed annotation
// is a program error: buildPlan panics, matching spec.md §4.4 ("missing
// annotation on a string field is a program error (throw at plan
// time)").
func getPlan(t reflect.Type) *plan {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if cached, ok := planCache.Load(t); ok {
		return cached.(*plan)
	}
	p := buildPlan(t)
	actual, _ := planCache.LoadOrStore(t, p)
	return actual.(*plan)
}

func buildPlan(t reflect.Type) *plan {
	if t.Kind() != reflect.Struct {
		panic(fmt.Sprintf("binpack: %s is not a struct", t))
	}
	raw := collectRawFields(t, nil)
	fields := buildPlanFields(raw)
	return &plan{fields: fields}
}

// rawField is one leaf struct field with its full index path (so that
// anonymous-embedded fields, e.g. a shared CommandHeader, are addressed
// through reflect.Value.FieldByIndex after flattening).
type rawField struct {
	path  []int
	field reflect.StructField
	spec  tagSpec
	has   bool
}

func collectRawFields(t reflect.Type, prefix []int) []rawField {
	var out []rawField
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		path := append(append([]int(nil), prefix...), i)

		if f.Anonymous && f.Type.Kind() == reflect.Struct {
			tag := f.Tag.Get("wire")
			if tag == "" {
				out = append(out, collectRawFields(f.Type, path)...)
				continue
			}
		}
		if f.PkgPath != "" {
			// unexported field, not addressable via reflection from
			// another package; skip.
			continue
		}

		spec, has := parseTag(f.Tag.Get("wire"))
		out = append(out, rawField{path: path, field: f, spec: spec, has: has})
	}
	return out
}

func buildPlanFields(raw []rawField) []planField {
	var out []planField
	for i := 0; i < len(raw); i++ {
		rf := raw[i]
		if !rf.has {
			if rf.field.Type.Kind() == reflect.String && rf.field.Tag.Get("wire") == "" {
				panic(fmt.Sprintf("binpack: string field %s has no wire tag", rf.field.Name))
			}
			continue
		}
		if rf.spec.kind == "bits" {
			group := rf.spec.strOpt("group", rf.field.Name)
			size := rf.spec.intOpt("size", 1)
			var members []bitMember
			j := i
			for j < len(raw) && raw[j].has && raw[j].spec.kind == "bits" &&
				raw[j].spec.strOpt("group", raw[j].field.Name) == group {
				m := raw[j]
				members = append(members, bitMember{
					path:   m.path,
					name:   m.field.Name,
					pos:    m.spec.intOpt("pos", 0),
					width:  m.spec.intOpt("width", 1),
					isBool: m.field.Type.Kind() == reflect.Bool,
				})
				j++
			}
			out = append(out, bitGroupPlanField(group, members, size))
			i = j - 1
			continue
		}
		out = append(out, buildScalarPlanField(rf))
	}
	return out
}

func bitGroupPlanField(group string, members []bitMember, size int) planField {
	return planField{
		name: "bits:" + group,
		encode: func(sv reflect.Value, w *writer) error {
			encodeBitGroup(w, sv, members, size)
			return nil
		},
		decode: func(sv reflect.Value, r *reader) error {
			return decodeBitGroup(r, sv, members, size)
		},
	}
}

func buildScalarPlanField(rf rawField) planField {
	name := rf.field.Name
	path := rf.path
	spec := rf.spec

	fv := func(sv reflect.Value) reflect.Value { return sv.FieldByIndex(path) }

	switch spec.kind {
	case "u8":
		return planField{name: name,
			encode: func(sv reflect.Value, w *writer) error { w.WriteByte(byte(fv(sv).Uint())); return nil },
			decode: func(sv reflect.Value, r *reader) error {
				b, err := r.readByte()
				if err != nil {
					return err
				}
				fv(sv).SetUint(uint64(b))
				return nil
			},
		}
	case "i8":
		return planField{name: name,
			encode: func(sv reflect.Value, w *writer) error { w.WriteByte(byte(int8(fv(sv).Int()))); return nil },
			decode: func(sv reflect.Value, r *reader) error {
				b, err := r.readByte()
				if err != nil {
					return err
				}
				fv(sv).SetInt(int64(int8(b)))
				return nil
			},
		}
	case "u16":
		return planField{name: name,
			encode: func(sv reflect.Value, w *writer) error { w.WriteUint16(uint16(fv(sv).Uint())); return nil },
			decode: func(sv reflect.Value, r *reader) error {
				v, err := r.readUint16()
				if err != nil {
					return err
				}
				fv(sv).SetUint(uint64(v))
				return nil
			},
		}
	case "i16":
		return planField{name: name,
			encode: func(sv reflect.Value, w *writer) error { w.WriteUint16(uint16(int16(fv(sv).Int()))); return nil },
			decode: func(sv reflect.Value, r *reader) error {
				v, err := r.readUint16()
				if err != nil {
					return err
				}
				fv(sv).SetInt(int64(int16(v)))
				return nil
			},
		}
	case "u32":
		return planField{name: name,
			encode: func(sv reflect.Value, w *writer) error { w.WriteUint32(uint32(fv(sv).Uint())); return nil },
			decode: func(sv reflect.Value, r *reader) error {
				v, err := r.readUint32()
				if err != nil {
					return err
				}
				fv(sv).SetUint(uint64(v))
				return nil
			},
		}
	case "i32":
		return planField{name: name,
			encode: func(sv reflect.Value, w *writer) error { w.WriteUint32(uint32(int32(fv(sv).Int()))); return nil },
			decode: func(sv reflect.Value, r *reader) error {
				v, err := r.readUint32()
				if err != nil {
					return err
				}
				fv(sv).SetInt(int64(int32(v)))
				return nil
			},
		}
	case "compact":
		signed := rf.field.Type.Kind() == reflect.Int || rf.field.Type.Kind() == reflect.Int8 ||
			rf.field.Type.Kind() == reflect.Int16 || rf.field.Type.Kind() == reflect.Int32 ||
			rf.field.Type.Kind() == reflect.Int64
		return planField{name: name,
			encode: func(sv reflect.Value, w *writer) error {
				if signed {
					writeCompactIntegerSigned(w, fv(sv).Int())
				} else {
					writeCompactInteger(w, fv(sv).Uint())
				}
				return nil
			},
			decode: func(sv reflect.Value, r *reader) error {
				if signed {
					v, err := readCompactIntegerSigned(r)
					if err != nil {
						return err
					}
					fv(sv).SetInt(v)
				} else {
					v, err := readCompactIntegerUnsigned(r)
					if err != nil {
						return err
					}
					fv(sv).SetUint(v)
				}
				return nil
			},
		}
	case "unicode":
		lenPrefix := spec.intOpt("lenprefix", 2)
		return planField{name: name,
			encode: func(sv reflect.Value, w *writer) error {
				return writeUnicodeString(w, fv(sv).String(), lenPrefix)
			},
			decode: func(sv reflect.Value, r *reader) error {
				s, err := readUnicodeString(r, lenPrefix)
				if err != nil {
					return err
				}
				fv(sv).SetString(s)
				return nil
			},
		}
	case "unicodearray":
		return planField{name: name,
			encode: func(sv reflect.Value, w *writer) error {
				writeUnicodeStringArray(w, fv(sv).Interface().([]string))
				return nil
			},
			decode: func(sv reflect.Value, r *reader) error {
				out, err := readUnicodeStringArray(r)
				if err != nil {
					return err
				}
				fv(sv).Set(reflect.ValueOf(out))
				return nil
			},
		}
	case "bcd":
		switch {
		case spec.flags["unbounded"]:
			return planField{name: name,
				encode: func(sv reflect.Value, w *writer) error { return writeBCDUnbounded(w, fv(sv).String()) },
				decode: func(sv reflect.Value, r *reader) error {
					s, err := readBCDUnbounded(r)
					if err != nil {
						return err
					}
					fv(sv).SetString(s)
					return nil
				},
			}
		case spec.flags["lenprefix"]:
			return planField{name: name,
				encode: func(sv reflect.Value, w *writer) error { return writeBCDLengthPrefixed(w, fv(sv).String()) },
				decode: func(sv reflect.Value, r *reader) error {
					s, err := readBCDLengthPrefixed(r)
					if err != nil {
						return err
					}
					fv(sv).SetString(s)
					return nil
				},
			}
		default:
			n := spec.intOpt("fixed", 0)
			if n == 0 {
				panic(fmt.Sprintf("binpack: field %s: bcd requires fixed=N, unbounded, or lenprefix", name))
			}
			return planField{name: name,
				encode: func(sv reflect.Value, w *writer) error { return writeBCDFixed(w, fv(sv).String(), n) },
				decode: func(sv reflect.Value, r *reader) error {
					s, err := readBCDFixed(r, n)
					if err != nil {
						return err
					}
					fv(sv).SetString(s)
					return nil
				},
			}
		}
	case "bytes":
		switch {
		case spec.flags["unbounded"]:
			return planField{name: name,
				encode: func(sv reflect.Value, w *writer) error {
					writeBytesUnbounded(w, fv(sv).Bytes())
					return nil
				},
				decode: func(sv reflect.Value, r *reader) error {
					fv(sv).SetBytes(readBytesUnbounded(r))
					return nil
				},
			}
		case spec.opts["lenprefix"] != "":
			lp := spec.intOpt("lenprefix", 1)
			return planField{name: name,
				encode: func(sv reflect.Value, w *writer) error {
					return writeBytesLengthPrefixed(w, fv(sv).Bytes(), lp)
				},
				decode: func(sv reflect.Value, r *reader) error {
					b, err := readBytesLengthPrefixed(r, lp)
					if err != nil {
						return err
					}
					fv(sv).SetBytes(b)
					return nil
				},
			}
		default:
			n := spec.intOpt("fixed", 0)
			if n == 0 {
				panic(fmt.Sprintf("binpack: field %s: bytes requires fixed=N, lenprefix=N, or unbounded", name))
			}
			return planField{name: name,
				encode: func(sv reflect.Value, w *writer) error { return writeBytesFixed(w, fv(sv).Bytes(), n) },
				decode: func(sv reflect.Value, r *reader) error {
					b, err := readBytesFixed(r, n)
					if err != nil {
						return err
					}
					fv(sv).SetBytes(b)
					return nil
				},
			}
		}
	case "objects":
		lenPrefix := spec.intOpt("lenprefix", 2)
		elemType := rf.field.Type.Elem()
		elemIsPtr := elemType.Kind() == reflect.Ptr
		structType := elemType
		if elemIsPtr {
			structType = elemType.Elem()
		}
		return planField{name: name,
			encode: func(sv reflect.Value, w *writer) error {
				return encodeObjectArray(w, fv(sv), lenPrefix)
			},
			decode: func(sv reflect.Value, r *reader) error {
				return decodeObjectArray(r, fv(sv), rf.field.Type, structType, elemIsPtr, lenPrefix)
			},
		}
	case "date":
		return timePlanField(name, fv, writeDate, readDate)
	case "time":
		return timePlanField(name, fv, writeTime, readTime)
	case "datetime":
		return timePlanField(name, fv, writeDateTime, readDateTime)
	case "mmpcontents":
		return planField{name: name,
			encode: func(sv reflect.Value, w *writer) error {
				return writeMultipleMessageContents(w, fv(sv).Interface().([][]byte))
			},
			decode: func(sv reflect.Value, r *reader) error {
				out, err := readMultipleMessageContents(r)
				if err != nil {
					return err
				}
				fv(sv).Set(reflect.ValueOf(out))
				return nil
			},
		}
	default:
		panic(fmt.Sprintf("binpack: field %s: unknown wire kind %q", name, spec.kind))
	}
	panic("unreachable")
}

func timePlanField(name string, fv func(reflect.Value) reflect.Value, enc func(*writer, *time.Time), dec func(*reader) (*time.Time, error)) planField {
	return planField{name: name,
		encode: func(sv reflect.Value, w *writer) error {
			v := fv(sv).Interface().(*time.Time)
			enc(w, v)
			return nil
		},
		decode: func(sv reflect.Value, r *reader) error {
			v, err := dec(r)
			if err != nil {
				return err
			}
			fv(sv).Set(reflect.ValueOf(v))
			return nil
		},
	}
}

func encodeObjectArray(w *writer, sliceVal reflect.Value, lenPrefix int) error {
	n := sliceVal.Len()
	switch lenPrefix {
	case 1:
		if n > 0xFF {
			return ErrLengthOverflow
		}
		w.WriteByte(byte(n))
	case 2:
		if n > 0xFFFF {
			return ErrLengthOverflow
		}
		w.WriteUint16(uint16(n))
	default:
		return ErrLengthOverflow
	}
	for i := 0; i < n; i++ {
		elem := sliceVal.Index(i)
		elemStruct := elem
		if elem.Kind() == reflect.Ptr {
			elemStruct = elem.Elem()
		}
		p := getPlan(elemStruct.Type())
		if err := p.encodeInto(elemStruct, w); err != nil {
			return err
		}
	}
	return nil
}

func decodeObjectArray(r *reader, sliceField reflect.Value, sliceType, structType reflect.Type, elemIsPtr bool, lenPrefix int) error {
	var n int
	switch lenPrefix {
	case 1:
		b, err := r.readByte()
		if err != nil {
			return err
		}
		n = int(b)
	case 2:
		v, err := r.readUint16()
		if err != nil {
			return err
		}
		n = int(v)
	default:
		return ErrLengthOverflow
	}
	out := reflect.MakeSlice(sliceType, n, n)
	p := getPlan(structType)
	for i := 0; i < n; i++ {
		structVal := reflect.New(structType).Elem()
		if err := p.decodeInto(structVal, r); err != nil {
			return err
		}
		if elemIsPtr {
			ptr := reflect.New(structType)
			ptr.Elem().Set(structVal)
			out.Index(i).Set(ptr)
		} else {
			out.Index(i).Set(structVal)
		}
	}
	sliceField.Set(out)
	return nil
}

func (p *plan) encodeInto(sv reflect.Value, w *writer) error {
	for _, f := range p.fields {
		if err := f.encode(sv, w); err != nil {
			return fieldErr(f.name, err)
		}
	}
	return nil
}

func (p *plan) decodeInto(sv reflect.Value, r *reader) error {
	for _, f := range p.fields {
		if err := f.decode(sv, r); err != nil {
			return fieldErr(f.name, err)
		}
	}
	return nil
}
