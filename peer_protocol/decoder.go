package peer_protocol

import (
	"bufio"
	"fmt"
	"io"

	"github.com/pkg/errors"
)

// The largest frame a downloader needs: a piece message carrying a 16 KiB block, with room for
// bitfields of very large torrents.
const DefaultMaxLength = 1 << 18

var ErrMessageTooLong = errors.New("message too long")

type Decoder struct {
	R         *bufio.Reader
	MaxLength Integer // Limit on the length prefix, which excludes the prefix itself.
}

// io.EOF is returned if the source terminates cleanly on a message boundary. Decode blocks until a
// whole frame is available.
func (d *Decoder) Decode(msg *Message) (err error) {
	*msg = Message{}
	var length Integer
	err = length.Read(d.R)
	if err != nil {
		if err == io.EOF {
			return
		}
		return fmt.Errorf("reading message length: %w", err)
	}
	if length > d.MaxLength {
		return errors.Wrapf(ErrMessageTooLong, "length %d exceeds %d", length, d.MaxLength)
	}
	if length == 0 {
		msg.Keepalive = true
		return
	}
	r := d.R
	// From this point onwards, EOF is unexpected
	defer func() {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
	}()
	c, err := r.ReadByte()
	if err != nil {
		return
	}
	length--
	msg.Type = MessageType(c)
	readBody := func() ([]byte, error) {
		b := make([]byte, length)
		_, err := io.ReadFull(r, b)
		length = 0
		return b, err
	}
	// Can return directly in cases when err is not nil, or length is known to be zero.
	switch msg.Type {
	case Choke, Unchoke, Interested, NotInterested:
	case Have:
		if length < 4 {
			return d.short(msg.Type, length)
		}
		length -= 4
		err = msg.Index.Read(r)
	case Request, Cancel:
		if length < 12 {
			return d.short(msg.Type, length)
		}
		for _, data := range []*Integer{&msg.Index, &msg.Begin, &msg.Length} {
			err = data.Read(r)
			if err != nil {
				break
			}
		}
		length -= 12
	case Bitfield:
		var b []byte
		b, err = readBody()
		msg.Bitfield = UnmarshalBitfield(b)
		return
	case Piece:
		if length < 8 {
			return d.short(msg.Type, length)
		}
		for _, pi := range []*Integer{&msg.Index, &msg.Begin} {
			err := pi.Read(r)
			if err != nil {
				return err
			}
		}
		length -= 8
		msg.Piece, err = readBody()
		return
	default:
		msg.Payload, err = readBody()
		return
	}
	if err == nil && length != 0 {
		// Consume the rest of the frame so the stream stays aligned for the caller's error handling.
		_, _ = r.Discard(int(length))
		err = fmt.Errorf("%v unused bytes in message type %v", length, msg.Type)
	}
	return
}

func (d *Decoder) short(t MessageType, length Integer) error {
	_, _ = d.R.Discard(int(length))
	return fmt.Errorf("%v message body too short: %d bytes", t, length)
}
