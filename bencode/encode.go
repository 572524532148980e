package bencode

import (
	"bytes"
	"io"
	"strconv"
)

// Encode returns the canonical encoding of v. Dict keys are always written in ascending byte
// order, so equal values encode to identical bytes regardless of how they were built.
func Encode(v Value) []byte {
	var buf bytes.Buffer
	writeValue(&buf, v)
	return buf.Bytes()
}

// Encoder writes canonically encoded values to a stream.
type Encoder struct {
	w io.Writer
}

func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w}
}

// Encode marshals v and writes it out.
func (e *Encoder) Encode(v interface{}) error {
	b, err := Marshal(v)
	if err != nil {
		return err
	}
	_, err = e.w.Write(b)
	return err
}

func writeValue(buf *bytes.Buffer, v Value) {
	switch v := v.(type) {
	case Int:
		buf.WriteByte('i')
		buf.WriteString(strconv.FormatInt(int64(v), 10))
		buf.WriteByte('e')
	case String:
		writeString(buf, v)
	case List:
		buf.WriteByte('l')
		for _, e := range v {
			writeValue(buf, e)
		}
		buf.WriteByte('e')
	case Dict:
		buf.WriteByte('d')
		for _, k := range v.Keys() {
			writeString(buf, []byte(k))
			writeValue(buf, v[k])
		}
		buf.WriteByte('e')
	default:
		panic("bencode: encoding nil Value")
	}
}

func writeString(buf *bytes.Buffer, s []byte) {
	buf.WriteString(strconv.Itoa(len(s)))
	buf.WriteByte(':')
	buf.Write(s)
}
