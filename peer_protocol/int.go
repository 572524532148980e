package peer_protocol

import (
	"bytes"
	"encoding/binary"
	"io"
)

// A big-endian 32-bit protocol integer.
type Integer uint32

func (i *Integer) Read(r io.Reader) error {
	return binary.Read(r, binary.BigEndian, i)
}

func (i *Integer) UnmarshalBinary(b []byte) error {
	return i.Read(bytes.NewReader(b))
}

func (i Integer) Int() int {
	return int(i)
}

func (i Integer) Int64() int64 {
	return int64(i)
}

func (i Integer) Uint32() uint32 {
	return uint32(i)
}
