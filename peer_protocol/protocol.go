package peer_protocol

import (
	"fmt"
)

const (
	Protocol = "\x13BitTorrent protocol"
)

type MessageType byte

// Only Cancel and below are interpreted. Other tags are carried opaquely in Message.Payload.
const (
	Choke         MessageType = iota
	Unchoke                   // 1
	Interested                // 2
	NotInterested             // 3
	Have                      // 4
	Bitfield                  // 5
	Request                   // 6
	Piece                     // 7
	Cancel                    // 8
)

func (mt MessageType) Known() bool {
	return mt <= Cancel
}

func (mt MessageType) String() string {
	switch mt {
	case Choke:
		return "Choke"
	case Unchoke:
		return "Unchoke"
	case Interested:
		return "Interested"
	case NotInterested:
		return "NotInterested"
	case Have:
		return "Have"
	case Bitfield:
		return "Bitfield"
	case Request:
		return "Request"
	case Piece:
		return "Piece"
	case Cancel:
		return "Cancel"
	default:
		return fmt.Sprintf("MessageType(%d)", byte(mt))
	}
}

// Identifies a block: the piece, the byte offset within it, and the length.
type RequestSpec struct {
	Index, Begin, Length Integer
}

func (me RequestSpec) String() string {
	return fmt.Sprintf("{%d %d %d}", me.Index, me.Begin, me.Length)
}
