package bencode

import (
	"errors"
	"reflect"
	"strconv"
)

//----------------------------------------------------------------------------
// Errors
//----------------------------------------------------------------------------

// ErrMalformedEncoding is matched by every SyntaxError, so callers can test for bad input with
// errors.Is without caring about the offset.
var ErrMalformedEncoding = errors.New("bencode: malformed encoding")

// In case if marshaler cannot encode a type in bencode, it will return this
// error. Typical example of such type is float32/float64 which has no bencode
// representation
type MarshalTypeError struct {
	Type reflect.Type
}

func (this *MarshalTypeError) Error() string {
	if this.Type == nil {
		return "bencode: unsupported type: nil"
	}
	return "bencode: unsupported type: " + this.Type.String()
}

// Unmarshal argument must be a non-nil value of some pointer type.
type UnmarshalInvalidArgError struct {
	Type reflect.Type
}

func (e *UnmarshalInvalidArgError) Error() string {
	if e.Type == nil {
		return "bencode: Unmarshal(nil)"
	}

	if e.Type.Kind() != reflect.Ptr {
		return "bencode: Unmarshal(non-pointer " + e.Type.String() + ")"
	}
	return "bencode: Unmarshal(nil " + e.Type.String() + ")"
}

// Unmarshaler spotted a value that was not appropriate for a given specific Go
// value
type UnmarshalTypeError struct {
	Value string
	Type  reflect.Type
}

func (e *UnmarshalTypeError) Error() string {
	return "bencode: value (" + e.Value + ") is not appropriate for type: " +
		e.Type.String()
}

type SyntaxError struct {
	Offset int64  // location of the error
	What   string // error description
}

func (e *SyntaxError) Error() string {
	return "bencode: syntax error (offset: " +
		strconv.FormatInt(e.Offset, 10) +
		"): " + e.What
}

func (e *SyntaxError) Unwrap() error {
	return ErrMalformedEncoding
}

type MarshalerError struct {
	Type reflect.Type
	Err  error
}

func (e *MarshalerError) Error() string {
	return "bencode: error calling MarshalBencode for type " + e.Type.String() + ": " + e.Err.Error()
}

func (e *MarshalerError) Unwrap() error {
	return e.Err
}

// Returned by Decode and Unmarshal when a complete value was read but input remains. For
// Unmarshal the target has still been filled in.
type ErrUnusedTrailingBytes struct {
	NumUnusedBytes int
}

func (me ErrUnusedTrailingBytes) Error() string {
	return "bencode: " + strconv.Itoa(me.NumUnusedBytes) + " unused trailing bytes"
}

//----------------------------------------------------------------------------
// Interfaces
//----------------------------------------------------------------------------

// Marshaler returns the complete bencoding of a value. The output is decoded again and
// re-encoded canonically, so it must be a single well-formed value.
type Marshaler interface {
	MarshalBencode() ([]byte, error)
}

// Unmarshaler receives the canonical encoding of the value being unmarshalled into it.
type Unmarshaler interface {
	UnmarshalBencode([]byte) error
}

//----------------------------------------------------------------------------
// Stateless interface
//----------------------------------------------------------------------------

func Marshal(v interface{}) ([]byte, error) {
	val, err := toValue(reflect.ValueOf(v))
	if err != nil {
		return nil, err
	}
	return Encode(val), nil
}

func MustMarshal(v interface{}) []byte {
	b, err := Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

func Unmarshal(data []byte, v interface{}) error {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return &UnmarshalInvalidArgError{reflect.TypeOf(v)}
	}
	val, rest, err := DecodePrefix(data)
	if err != nil {
		return err
	}
	err = setValue(rv.Elem(), val)
	if err != nil {
		return err
	}
	if len(rest) != 0 {
		return ErrUnusedTrailingBytes{len(rest)}
	}
	return nil
}
