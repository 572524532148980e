package bencode

import (
	"reflect"
)

var (
	marshalerType   = reflect.TypeOf((*Marshaler)(nil)).Elem()
	unmarshalerType = reflect.TypeOf((*Unmarshaler)(nil)).Elem()
	valueType       = reflect.TypeOf((*Value)(nil)).Elem()
)

// The Value for a reflect.Value whose dynamic type already is one, or None.
func asValue(v reflect.Value) (Value, bool) {
	if !v.IsValid() || !v.Type().Implements(valueType) {
		return nil, false
	}
	if v.Kind() == reflect.Interface && v.IsNil() {
		return nil, false
	}
	ret, ok := v.Interface().(Value)
	return ret, ok && ret != nil
}
