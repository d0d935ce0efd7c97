package binpack

import (
	"errors"
	"reflect"
)

var errMustBePointer = errors.New("binpack: Unmarshal target must be a pointer to struct")

// Marshal serializes v (a pointer to a struct annotated with `wire:"..."`
// tags) into its wire representation. The struct's serialization plan
// is built once per type and cached; a malformed tag panics the first
// time a type is used (spec.md §4.4: a program error, not a runtime
// Result).
func Marshal(v interface{}) ([]byte, error) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Ptr {
		rv = reflect.New(reflect.TypeOf(v))
		rv.Elem().Set(reflect.ValueOf(v))
	}
	sv := rv.Elem()
	p := getPlan(sv.Type())
	w := &writer{}
	if err := p.encodeInto(sv, w); err != nil {
		return nil, err
	}
	return w.buf, nil
}

// Unmarshal deserializes data into v (a pointer to a struct annotated
// with `wire:"..."` tags).
func Unmarshal(data []byte, v interface{}) error {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Ptr {
		return errNotAPointer
	}
	sv := rv.Elem()
	p := getPlan(sv.Type())
	r := &reader{buf: data}
	return p.decodeInto(sv, r)
}

var errNotAPointer = &FieldError{Field: "<root>", Err: errMustBePointer}
