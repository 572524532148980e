package bencode

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type random_decode_test struct {
	data     string
	expected interface{}
}

var random_decode_tests = []random_decode_test{
	{"i57e", int64(57)},
	{"i-9223372036854775808e", int64(-9223372036854775808)},
	{"i0e", int64(0)},
	{"5:hello", "hello"},
	{"0:", ""},
	{"29:unicode test проверка", "unicode test проверка"},
	{"d1:ai5e1:b5:helloe", map[string]interface{}{"a": int64(5), "b": "hello"}},
	{"li5ei10ei15ei20e7:bencodee",
		[]interface{}{int64(5), int64(10), int64(15), int64(20), "bencode"}},
	{"ldedee", []interface{}{map[string]interface{}{}, map[string]interface{}{}}},
	{"le", []interface{}{}},
	{"d1:rde1:t3:\x9a\x87\x011:v4:TR%=1:y1:re", map[string]interface{}{
		"r": map[string]interface{}{},
		"t": "\x9a\x87\x01",
		"v": "TR%=",
		"y": "r",
	}},
}

func TestRandomDecode(t *testing.T) {
	for _, test := range random_decode_tests {
		var value interface{}
		err := Unmarshal([]byte(test.data), &value)
		if err != nil {
			t.Error(err, test.data)
			continue
		}
		assert.EqualValues(t, test.expected, value)
	}
}

func TestDecodeValues(t *testing.T) {
	v, err := Decode([]byte("d3:cow3:moo4:spaml1:a1:bee"))
	require.NoError(t, err)
	assert.Equal(t, Dict{
		"cow":  String("moo"),
		"spam": List{String("a"), String("b")},
	}, v)
	v, err = Decode([]byte("0:"))
	require.NoError(t, err)
	assert.NotNil(t, v)
	assert.Equal(t, String{}, v)
}

func TestLoneE(t *testing.T) {
	var v int
	err := Unmarshal([]byte("e"), &v)
	se := err.(*SyntaxError)
	require.EqualValues(t, 0, se.Offset)
}

func TestMalformed(t *testing.T) {
	for _, s := range []string{
		"",
		"i42",
		"ie",
		"i-e",
		"i-0e",
		"i03e",
		"i+3e",
		"i1.5e",
		"i9223372036854775808e",
		"5:abc",
		"5abc",
		"05:hello",
		"l",
		"li1e",
		"d",
		"d3:key",
		"di1ei2ee",
		"x",
	} {
		_, err := Decode([]byte(s))
		assert.ErrorIs(t, err, ErrMalformedEncoding, "%q", s)
		var se *SyntaxError
		assert.True(t, errors.As(err, &se), "%q", s)
	}
}

func TestSyntaxErrorOffset(t *testing.T) {
	_, err := Decode([]byte("li1ei2ex"))
	var se *SyntaxError
	require.ErrorAs(t, err, &se)
	assert.EqualValues(t, 7, se.Offset)
}

func TestDecodeTrailing(t *testing.T) {
	v, err := Decode([]byte("i1ei2e"))
	assert.Equal(t, ErrUnusedTrailingBytes{3}, err)
	assert.Equal(t, Int(1), v)
	v, rest, err := DecodePrefix([]byte("i1ei2e"))
	require.NoError(t, err)
	assert.Equal(t, Int(1), v)
	assert.Equal(t, []byte("i2e"), rest)
}

func TestDecodeDuplicateKeyLaterWins(t *testing.T) {
	v, err := Decode([]byte("d1:ai1e1:ai2ee"))
	require.NoError(t, err)
	assert.Equal(t, Dict{"a": Int(2)}, v)
}

func TestDecodeDepthLimit(t *testing.T) {
	b := make([]byte, 0, 2*(maxNestingDepth+2))
	for i := 0; i < maxNestingDepth+2; i++ {
		b = append(b, 'l')
	}
	for i := 0; i < maxNestingDepth+2; i++ {
		b = append(b, 'e')
	}
	_, err := Decode(b)
	assert.ErrorIs(t, err, ErrMalformedEncoding)
}

type unmarshaler_int struct {
	x int
}

func (this *unmarshaler_int) UnmarshalBencode(data []byte) error {
	return Unmarshal(data, &this.x)
}

type unmarshaler_string struct {
	x string
}

func (this *unmarshaler_string) UnmarshalBencode(data []byte) error {
	this.x = string(data)
	return nil
}

func TestUnmarshalerBencode(t *testing.T) {
	var i unmarshaler_int
	var ss []unmarshaler_string
	require.NoError(t, Unmarshal([]byte("i71e"), &i))
	assert.Equal(t, 71, i.x)
	require.NoError(t, Unmarshal([]byte("l5:hello5:fruit3:waye"), &ss))
	assert.Equal(t, "5:hello", ss[0].x)
	assert.Equal(t, "5:fruit", ss[1].x)
	assert.Equal(t, "3:way", ss[2].x)
}

func TestUnmarshalerReceivesCanonicalBytes(t *testing.T) {
	var s struct {
		Info Bytes `bencode:"info"`
	}
	require.NoError(t, Unmarshal([]byte("d4:infod1:bi2e1:ai1eee"), &s))
	assert.EqualValues(t, "d1:ai1e1:bi2ee", s.Info)
}

func TestIgnoreUnmarshalTypeError(t *testing.T) {
	s := struct {
		Ignore int `bencode:",ignore_unmarshal_type_error"`
		Normal int
	}{}
	require.Error(t, Unmarshal([]byte("d6:Normal5:helloe"), &s))
	assert.Nil(t, Unmarshal([]byte("d6:Ignore5:helloe"), &s))
	require.Nil(t, Unmarshal([]byte("d6:Ignorei42ee"), &s))
	assert.EqualValues(t, 42, s.Ignore)
}

func TestUnmarshalTypeErrors(t *testing.T) {
	var u uint8
	var ute *UnmarshalTypeError
	assert.ErrorAs(t, Unmarshal([]byte("i256e"), &u), &ute)
	assert.ErrorAs(t, Unmarshal([]byte("i-1e"), &u), &ute)
	var a [2]byte
	assert.ErrorAs(t, Unmarshal([]byte("3:abc"), &a), &ute)
	require.NoError(t, Unmarshal([]byte("2:ab"), &a))
	assert.Equal(t, [2]byte{'a', 'b'}, a)
}

func TestUnmarshalInvalidArg(t *testing.T) {
	var i int
	var uia *UnmarshalInvalidArgError
	assert.ErrorAs(t, Unmarshal([]byte("i1e"), i), &uia)
	assert.ErrorAs(t, Unmarshal([]byte("i1e"), nil), &uia)
}

// Test unmarshalling []byte into something that has the same kind but
// different type.
func TestDecodeCustomSlice(t *testing.T) {
	type flag byte
	var fs3, fs2 []flag
	// We do a longer slice then a shorter slice to see if the buffers are
	// shared.
	require.NoError(t, Unmarshal([]byte("3:\x01\x10\xff"), &fs3))
	require.NoError(t, Unmarshal([]byte("2:\x04\x0f"), &fs2))
	assert.EqualValues(t, []flag{1, 16, 255}, fs3)
	assert.EqualValues(t, []flag{4, 15}, fs2)
}

func TestUnmarshalUnusedBytes(t *testing.T) {
	var i int
	require.EqualValues(t, ErrUnusedTrailingBytes{1}, Unmarshal([]byte("i42ee"), &i))
	assert.EqualValues(t, 42, i)
}

func TestUnmarshalIntoValue(t *testing.T) {
	var v Value
	require.NoError(t, Unmarshal([]byte("l1:ai3ee"), &v))
	assert.Equal(t, List{String("a"), Int(3)}, v)
}
