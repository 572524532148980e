package bencode

import (
	"fmt"
	"reflect"
)

func typeErr(val Value, t reflect.Type) error {
	return &UnmarshalTypeError{
		Value: describe(val),
		Type:  t,
	}
}

func describe(val Value) string {
	switch val := val.(type) {
	case Int:
		return fmt.Sprintf("integer %d", int64(val))
	case String:
		if len(val) > 32 {
			return fmt.Sprintf("string of length %d", len(val))
		}
		return fmt.Sprintf("string %q", []byte(val))
	case List:
		return fmt.Sprintf("list of length %d", len(val))
	case Dict:
		return fmt.Sprintf("dict with %d keys", len(val))
	}
	return "nil"
}

// Stores val into v, which must be settable.
func setValue(v reflect.Value, val Value) error {
	if v.Kind() == reflect.Ptr {
		if v.IsNil() {
			v.Set(reflect.New(v.Type().Elem()))
		}
		return setValue(v.Elem(), val)
	}
	if v.CanAddr() && v.Addr().Type().Implements(unmarshalerType) {
		return v.Addr().Interface().(Unmarshaler).UnmarshalBencode(Encode(val))
	}
	if v.Type() == valueType {
		v.Set(reflect.ValueOf(&val).Elem())
		return nil
	}
	if v.Kind() == reflect.Interface {
		if v.NumMethod() != 0 {
			return typeErr(val, v.Type())
		}
		v.Set(reflect.ValueOf(native(val)))
		return nil
	}
	switch val := val.(type) {
	case Int:
		return setInt(v, int64(val))
	case String:
		return setString(v, val)
	case List:
		return setList(v, val)
	case Dict:
		return setDict(v, val)
	}
	return typeErr(val, v.Type())
}

func setInt(v reflect.Value, n int64) error {
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if v.OverflowInt(n) {
			return typeErr(Int(n), v.Type())
		}
		v.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		if n < 0 || v.OverflowUint(uint64(n)) {
			return typeErr(Int(n), v.Type())
		}
		v.SetUint(uint64(n))
	case reflect.Bool:
		v.SetBool(n != 0)
	default:
		return typeErr(Int(n), v.Type())
	}
	return nil
}

func setString(v reflect.Value, s String) error {
	switch v.Kind() {
	case reflect.String:
		v.SetString(string(s))
	case reflect.Slice:
		if v.Type().Elem().Kind() != reflect.Uint8 {
			return typeErr(s, v.Type())
		}
		b := reflect.MakeSlice(v.Type(), len(s), len(s))
		reflect.Copy(b, reflect.ValueOf([]byte(s)))
		v.Set(b)
	case reflect.Array:
		if v.Type().Elem().Kind() != reflect.Uint8 || v.Len() != len(s) {
			return typeErr(s, v.Type())
		}
		reflect.Copy(v, reflect.ValueOf([]byte(s)))
	default:
		return typeErr(s, v.Type())
	}
	return nil
}

func setList(v reflect.Value, l List) error {
	switch v.Kind() {
	case reflect.Slice:
		s := reflect.MakeSlice(v.Type(), len(l), len(l))
		for i, e := range l {
			if err := setValue(s.Index(i), e); err != nil {
				return err
			}
		}
		v.Set(s)
	case reflect.Array:
		if v.Len() != len(l) {
			return typeErr(l, v.Type())
		}
		for i, e := range l {
			if err := setValue(v.Index(i), e); err != nil {
				return err
			}
		}
	default:
		return typeErr(l, v.Type())
	}
	return nil
}

func setDict(v reflect.Value, d Dict) error {
	switch v.Kind() {
	case reflect.Map:
		t := v.Type()
		if t.Key().Kind() != reflect.String {
			return typeErr(d, t)
		}
		if v.IsNil() {
			v.Set(reflect.MakeMapWithSize(t, len(d)))
		}
		for k, e := range d {
			ev := reflect.New(t.Elem()).Elem()
			if err := setValue(ev, e); err != nil {
				return err
			}
			v.SetMapIndex(reflect.ValueOf(k).Convert(t.Key()), ev)
		}
		return nil
	case reflect.Struct:
		return setStruct(v, d)
	default:
		return typeErr(d, v.Type())
	}
}

// Keys without a matching field are ignored.
func setStruct(v reflect.Value, d Dict) error {
	for _, f := range getStructFields(v.Type()) {
		fv := v.Field(f.index)
		if f.embedded {
			if fv.Kind() == reflect.Ptr {
				if fv.IsNil() {
					fv.Set(reflect.New(fv.Type().Elem()))
				}
				fv = fv.Elem()
			}
			if err := setStruct(fv, d); err != nil {
				return err
			}
			continue
		}
		e, ok := d[f.name]
		if !ok {
			continue
		}
		err := setValue(fv, e)
		if err == nil {
			continue
		}
		if _, isTypeErr := err.(*UnmarshalTypeError); isTypeErr && f.tag.IgnoreUnmarshalTypeError() {
			continue
		}
		return fmt.Errorf("parsing field %q: %w", f.name, err)
	}
	return nil
}
