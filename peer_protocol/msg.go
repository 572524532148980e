package peer_protocol

import (
	"bufio"
	"bytes"
	"encoding"
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// This is a lazy union representing all the possible fields for messages. Go doesn't have ADTs, and
// I didn't choose to use type-assertions. Fields are ordered to minimize struct size and padding.
type Message struct {
	Piece    []byte
	Bitfield []bool
	// The body of a message with an unrecognized type, after the tag.
	Payload              []byte
	Index, Begin, Length Integer
	Type                 MessageType
	Keepalive            bool
}

var _ interface {
	encoding.BinaryUnmarshaler
	encoding.BinaryMarshaler
} = (*Message)(nil)

func MakeRequestMessage(rs RequestSpec) Message {
	return Message{
		Type:   Request,
		Index:  rs.Index,
		Begin:  rs.Begin,
		Length: rs.Length,
	}
}

func MakeCancelMessage(piece, offset, length Integer) Message {
	return Message{
		Type:   Cancel,
		Index:  piece,
		Begin:  offset,
		Length: length,
	}
}

func (msg Message) RequestSpec() (ret RequestSpec) {
	return RequestSpec{
		msg.Index,
		msg.Begin,
		func() Integer {
			if msg.Type == Piece {
				return Integer(len(msg.Piece))
			} else {
				return msg.Length
			}
		}(),
	}
}

func (msg Message) String() string {
	if msg.Keepalive {
		return "Keepalive"
	}
	switch msg.Type {
	case Have:
		return fmt.Sprintf("Have(%d)", msg.Index)
	case Bitfield:
		return fmt.Sprintf("Bitfield(%d bits)", len(msg.Bitfield))
	case Request, Cancel:
		return fmt.Sprintf("%v%v", msg.Type, msg.RequestSpec())
	case Piece:
		return fmt.Sprintf("Piece%v", msg.RequestSpec())
	}
	if !msg.Type.Known() {
		return fmt.Sprintf("%v(%d bytes)", msg.Type, len(msg.Payload))
	}
	return msg.Type.String()
}

func (msg Message) MustMarshalBinary() []byte {
	b, err := msg.MarshalBinary()
	if err != nil {
		panic(err)
	}
	return b
}

// Writes the message body, without the length prefix. Keepalives have no body.
func (msg Message) WriteTo(w io.Writer) (n int64, err error) {
	dw := newDataWriter(w)
	defer func() {
		n = dw.GetBytesWritten()
	}()
	if msg.Keepalive {
		return
	}

	err = dw.WriteByte(byte(msg.Type))
	if err != nil {
		return
	}

	switch msg.Type {
	case Choke, Unchoke, Interested, NotInterested:
	case Have:
		err = dw.BinaryWrite(binary.BigEndian, msg.Index)
	case Request, Cancel:
		for _, i := range []Integer{msg.Index, msg.Begin, msg.Length} {
			err = dw.BinaryWrite(binary.BigEndian, i)
			if err != nil {
				break
			}
		}
	case Bitfield:
		_, err = dw.Write(MarshalBitfield(msg.Bitfield))
	case Piece:
		for _, i := range []Integer{msg.Index, msg.Begin} {
			err = dw.BinaryWrite(binary.BigEndian, i)
			if err != nil {
				return
			}
		}
		written, err := dw.Write(msg.Piece)
		if err != nil {
			break
		}
		if written != len(msg.Piece) {
			panic(written)
		}
	default:
		_, err = dw.Write(msg.Payload)
	}
	return
}

const (
	msgTypeLen  = 1 // byte
	msgIndexLen = 4 // uint32
	msgBeginLen = 4 // uint32
)

// The length of the message body, which is what the length prefix holds.
func (msg Message) GetDataLength() (length int) {
	if msg.Keepalive {
		return
	}
	length += msgTypeLen
	switch msg.Type {
	case Choke, Unchoke, Interested, NotInterested:
	case Have:
		length += msgIndexLen
	case Request, Cancel:
		length += msgIndexLen + msgBeginLen + msgBeginLen
	case Bitfield:
		length += (len(msg.Bitfield) + 7) / 8
	case Piece:
		length += msgIndexLen + msgBeginLen + len(msg.Piece)
	default:
		length += len(msg.Payload)
	}
	return
}

func (msg Message) MarshalBinary() (data []byte, err error) {
	length := msg.GetDataLength()
	if int64(length) > math.MaxUint32 {
		return nil, fmt.Errorf("message body length %d overflows length prefix", length)
	}
	var buf bytes.Buffer
	buf.Grow(4 + length)
	err = binary.Write(&buf, binary.BigEndian, uint32(length))
	if err != nil {
		return
	}
	_, err = msg.WriteTo(&buf)
	if err != nil {
		return
	}
	if buf.Len() != 4+length {
		panic(buf.Len())
	}
	data = buf.Bytes()
	return
}

func (me *Message) UnmarshalBinary(b []byte) error {
	d := Decoder{
		R:         bufio.NewReader(bytes.NewReader(b)),
		MaxLength: math.MaxUint32,
	}
	err := d.Decode(me)
	if err != nil {
		return err
	}
	if d.R.Buffered() != 0 {
		return fmt.Errorf("%d trailing bytes", d.R.Buffered())
	}
	return nil
}

// Bits are packed most significant first. Trailing bits in the last byte are zero.
func MarshalBitfield(bf []bool) (b []byte) {
	b = make([]byte, (len(bf)+7)/8)
	for i, have := range bf {
		if !have {
			continue
		}
		c := b[i/8]
		c |= 1 << uint(7-i%8)
		b[i/8] = c
	}
	return
}

func UnmarshalBitfield(b []byte) (bf []bool) {
	for _, c := range b {
		for i := 7; i >= 0; i-- {
			bf = append(bf, (c>>uint(i))&1 == 1)
		}
	}
	return
}

type dataWriter struct {
	writer io.Writer
	n      int64
}

func (d *dataWriter) BinaryWrite(order binary.ByteOrder, data any) error {
	err := binary.Write(d.writer, order, data)
	if err != nil {
		return err
	}
	d.n += int64(binary.Size(data))
	return nil
}

func (d *dataWriter) Write(bytes []byte) (int, error) {
	n, err := d.writer.Write(bytes)
	d.n += int64(n)
	return n, err
}

func (d *dataWriter) WriteByte(b byte) error {
	_, err := d.Write([]byte{b})
	return err
}

func (d *dataWriter) GetBytesWritten() int64 {
	return d.n
}

func newDataWriter(writer io.Writer) *dataWriter {
	return &dataWriter{writer, 0}
}
