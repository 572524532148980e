package bencode

import (
	"math"
	"reflect"
	"strings"
	"sync"
)

// Converts a Go value to its bencode Value. Types that implement Marshaler take precedence over
// their kind.
func toValue(v reflect.Value) (Value, error) {
	if !v.IsValid() {
		return nil, &MarshalTypeError{nil}
	}
	if bv, ok := asValue(v); ok {
		return bv, nil
	}
	if m, ok := asMarshaler(v); ok {
		b, err := m.MarshalBencode()
		if err != nil {
			return nil, &MarshalerError{v.Type(), err}
		}
		bv, err := Decode(b)
		if err != nil {
			return nil, &MarshalerError{v.Type(), err}
		}
		return bv, nil
	}
	switch v.Kind() {
	case reflect.Bool:
		if v.Bool() {
			return Int(1), nil
		}
		return Int(0), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return Int(v.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u := v.Uint()
		if u > math.MaxInt64 {
			return nil, &MarshalTypeError{v.Type()}
		}
		return Int(u), nil
	case reflect.String:
		return String(v.String()), nil
	case reflect.Slice:
		if v.Type().Elem().Kind() == reflect.Uint8 {
			return String(append([]byte{}, v.Bytes()...)), nil
		}
		if v.IsNil() {
			return List{}, nil
		}
		return listValue(v)
	case reflect.Array:
		if v.Type().Elem().Kind() == reflect.Uint8 {
			b := make(String, v.Len())
			for i := range b {
				b[i] = byte(v.Index(i).Uint())
			}
			return b, nil
		}
		return listValue(v)
	case reflect.Map:
		return mapValue(v)
	case reflect.Struct:
		d := Dict{}
		if err := structFields(v, d); err != nil {
			return nil, err
		}
		return d, nil
	case reflect.Ptr, reflect.Interface:
		if v.IsNil() {
			return nil, &MarshalTypeError{v.Type()}
		}
		return toValue(v.Elem())
	default:
		return nil, &MarshalTypeError{v.Type()}
	}
}

func asMarshaler(v reflect.Value) (Marshaler, bool) {
	if v.Type().Implements(marshalerType) {
		if v.Kind() == reflect.Ptr && v.IsNil() {
			return nil, false
		}
		return v.Interface().(Marshaler), true
	}
	if v.CanAddr() && v.Addr().Type().Implements(marshalerType) {
		return v.Addr().Interface().(Marshaler), true
	}
	return nil, false
}

func listValue(v reflect.Value) (Value, error) {
	l := make(List, 0, v.Len())
	for i := 0; i < v.Len(); i++ {
		e, err := toValue(v.Index(i))
		if err != nil {
			return nil, err
		}
		l = append(l, e)
	}
	return l, nil
}

func mapValue(v reflect.Value) (Value, error) {
	if v.Type().Key().Kind() != reflect.String {
		return nil, &MarshalTypeError{v.Type()}
	}
	d := make(Dict, v.Len())
	iter := v.MapRange()
	for iter.Next() {
		e := iter.Value()
		if isNilValue(e) {
			continue
		}
		bv, err := toValue(e)
		if err != nil {
			return nil, err
		}
		d[iter.Key().String()] = bv
	}
	return d, nil
}

func structFields(v reflect.Value, d Dict) error {
	for _, f := range getStructFields(v.Type()) {
		fv := v.Field(f.index)
		if f.embedded {
			if fv.Kind() == reflect.Ptr {
				if fv.IsNil() {
					continue
				}
				fv = fv.Elem()
			}
			if err := structFields(fv, d); err != nil {
				return err
			}
			continue
		}
		if isNilValue(fv) {
			continue
		}
		if f.tag.OmitEmpty() && isEmptyValue(fv) {
			continue
		}
		bv, err := toValue(fv)
		if err != nil {
			return err
		}
		d[f.name] = bv
	}
	return nil
}

func isNilValue(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Ptr, reflect.Interface:
		return v.IsNil()
	}
	return false
}

func isEmptyValue(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Array, reflect.Map, reflect.Slice, reflect.String:
		return v.Len() == 0
	case reflect.Bool:
		return !v.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int() == 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return v.Uint() == 0
	case reflect.Float32, reflect.Float64:
		return v.Float() == 0
	case reflect.Interface, reflect.Ptr:
		return v.IsNil()
	}
	return false
}

type tag []string

func parseTag(s string) tag {
	return strings.Split(s, ",")
}

func (me tag) Ignore() bool {
	return len(me) != 0 && me[0] == "-"
}

func (me tag) Key() string {
	if len(me) == 0 {
		return ""
	}
	return me[0]
}

func (me tag) hasOpt(opt string) bool {
	if len(me) < 2 {
		return false
	}
	for _, s := range me[1:] {
		if s == opt {
			return true
		}
	}
	return false
}

func (me tag) OmitEmpty() bool {
	return me.hasOpt("omitempty")
}

func (me tag) IgnoreUnmarshalTypeError() bool {
	return me.hasOpt("ignore_unmarshal_type_error")
}

type structField struct {
	index int
	name  string
	tag   tag
	// Anonymous struct fields without a key have their fields flattened into the parent.
	embedded bool
}

var structFieldsCache sync.Map // map[reflect.Type][]structField

func getStructFields(t reflect.Type) []structField {
	if cached, ok := structFieldsCache.Load(t); ok {
		return cached.([]structField)
	}
	var fields []structField
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		tag := parseTag(f.Tag.Get("bencode"))
		if tag.Ignore() {
			continue
		}
		if f.Anonymous && tag.Key() == "" {
			ft := f.Type
			if ft.Kind() == reflect.Ptr {
				ft = ft.Elem()
			}
			if ft.Kind() == reflect.Struct && f.IsExported() {
				fields = append(fields, structField{index: i, tag: tag, embedded: true})
				continue
			}
		}
		if !f.IsExported() {
			continue
		}
		name := tag.Key()
		if name == "" {
			name = f.Name
		}
		fields = append(fields, structField{index: i, name: name, tag: tag})
	}
	structFieldsCache.Store(t, fields)
	return fields
}
