package bencode

import (
	"slices"
)

// Value is a decoded bencode value. It is always one of Int, String, List or Dict. A nil String,
// List or Dict encodes the same as an empty one, and decodes as the empty, non-nil form.
type Value interface {
	bencodeValue()
}

type (
	Int    int64
	String []byte
	List   []Value
	// Keys are raw byte strings. Iteration order for encoding is given by Keys.
	Dict map[string]Value
)

func (Int) bencodeValue()    {}
func (String) bencodeValue() {}
func (List) bencodeValue()   {}
func (Dict) bencodeValue()   {}

// Keys returns the keys in ascending byte order, the order they are encoded in.
func (d Dict) Keys() []string {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Str is a convenience for building String values from Go strings.
func Str(s string) String {
	return String(s)
}

// Converts a Value to the plain Go types Unmarshal produces for an empty interface: int64,
// string, []interface{} and map[string]interface{}.
func native(v Value) interface{} {
	switch v := v.(type) {
	case Int:
		return int64(v)
	case String:
		return string(v)
	case List:
		ret := make([]interface{}, 0, len(v))
		for _, e := range v {
			ret = append(ret, native(e))
		}
		return ret
	case Dict:
		ret := make(map[string]interface{}, len(v))
		for k, e := range v {
			ret[k] = native(e)
		}
		return ret
	default:
		panic(v)
	}
}
