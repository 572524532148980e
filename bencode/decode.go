package bencode

import (
	"bytes"
	"fmt"
	"strconv"
)

// Nesting beyond this is rejected rather than recursing further.
const maxNestingDepth = 1 << 10

// Decode parses exactly one value from b. Remaining input is reported with
// ErrUnusedTrailingBytes, along with the decoded value.
func Decode(b []byte) (Value, error) {
	v, rest, err := DecodePrefix(b)
	if err != nil {
		return nil, err
	}
	if len(rest) != 0 {
		return v, ErrUnusedTrailingBytes{len(rest)}
	}
	return v, nil
}

// DecodePrefix parses one value from the front of b, and returns the input that follows it.
func DecodePrefix(b []byte) (v Value, rest []byte, err error) {
	p := parser{input: b}
	v, rest, err = p.value(b, 0)
	if err != nil {
		return nil, b, err
	}
	return
}

// Each step takes the remaining input and returns the value read plus what's left after it. The
// original input is only kept to report offsets.
type parser struct {
	input []byte
}

func (p parser) errorf(at []byte, format string, args ...interface{}) error {
	return &SyntaxError{
		Offset: int64(len(p.input) - len(at)),
		What:   fmt.Sprintf(format, args...),
	}
}

func (p parser) value(b []byte, depth int) (Value, []byte, error) {
	if len(b) == 0 {
		return nil, b, p.errorf(b, "unexpected end of input")
	}
	if depth > maxNestingDepth {
		return nil, b, p.errorf(b, "nesting deeper than %d", maxNestingDepth)
	}
	switch c := b[0]; {
	case c == 'i':
		return p.integer(b)
	case c == 'l':
		return p.list(b, depth)
	case c == 'd':
		return p.dict(b, depth)
	case c >= '0' && c <= '9':
		return p.string(b)
	default:
		return nil, b, p.errorf(b, "unexpected %q", c)
	}
}

func (p parser) integer(b []byte) (Value, []byte, error) {
	end := bytes.IndexByte(b[1:], 'e')
	if end == -1 {
		return nil, b, p.errorf(b, "integer missing terminating 'e'")
	}
	digits := b[1 : 1+end]
	if !validInteger(digits) {
		return nil, b, p.errorf(b, "invalid integer %q", digits)
	}
	n, err := strconv.ParseInt(string(digits), 10, 64)
	if err != nil {
		return nil, b, p.errorf(b, "integer %q: %v", digits, err)
	}
	return Int(n), b[1+end+1:], nil
}

// Minimal decimal form only: no sign other than a leading '-', no leading zeroes, no "-0".
func validInteger(b []byte) bool {
	if len(b) != 0 && b[0] == '-' {
		b = b[1:]
		if len(b) != 0 && b[0] == '0' {
			return false
		}
	}
	return validUnsigned(b)
}

func validUnsigned(b []byte) bool {
	if len(b) == 0 {
		return false
	}
	if b[0] == '0' && len(b) > 1 {
		return false
	}
	for _, c := range b {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func (p parser) string(b []byte) (Value, []byte, error) {
	colon := bytes.IndexByte(b, ':')
	if colon == -1 {
		return nil, b, p.errorf(b, "string length missing ':' separator")
	}
	digits := b[:colon]
	if !validUnsigned(digits) {
		return nil, b, p.errorf(b, "invalid string length %q", digits)
	}
	length, err := strconv.ParseInt(string(digits), 10, 64)
	if err != nil {
		return nil, b, p.errorf(b, "string length %q: %v", digits, err)
	}
	rest := b[colon+1:]
	if length > int64(len(rest)) {
		return nil, b, p.errorf(b, "string length %d exceeds remaining input of %d bytes", length, len(rest))
	}
	return String(bytes.Clone(rest[:length])), rest[length:], nil
}

func (p parser) list(b []byte, depth int) (Value, []byte, error) {
	ret := List{}
	rest := b[1:]
	for {
		if len(rest) == 0 {
			return nil, b, p.errorf(rest, "list missing terminating 'e'")
		}
		if rest[0] == 'e' {
			return ret, rest[1:], nil
		}
		var (
			v   Value
			err error
		)
		v, rest, err = p.value(rest, depth+1)
		if err != nil {
			return nil, b, err
		}
		ret = append(ret, v)
	}
}

func (p parser) dict(b []byte, depth int) (Value, []byte, error) {
	ret := Dict{}
	rest := b[1:]
	for {
		if len(rest) == 0 {
			return nil, b, p.errorf(rest, "dict missing terminating 'e'")
		}
		if rest[0] == 'e' {
			return ret, rest[1:], nil
		}
		if c := rest[0]; c < '0' || c > '9' {
			return nil, b, p.errorf(rest, "dict key must be a byte string, got %q", c)
		}
		key, afterKey, err := p.string(rest)
		if err != nil {
			return nil, b, err
		}
		var v Value
		v, rest, err = p.value(afterKey, depth+1)
		if err != nil {
			return nil, b, err
		}
		// A repeated key replaces the earlier value.
		ret[string(key.(String))] = v
	}
}
