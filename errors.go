package torrent

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"

	pp "github.com/anacrolix/leech/peer_protocol"
)

var (
	ErrHandshakeMismatch = pp.ErrHandshakeMismatch
	ErrInfoHashMismatch  = pp.ErrInfoHashMismatch
	// The peer sent something not allowed in the connection's current state, or a malformed frame.
	ErrProtocolViolation = errors.New("protocol violation")
	// A piece message that doesn't match an outstanding request. Also matches ErrProtocolViolation.
	ErrUnexpectedPiece = errors.New("unexpected piece")
	ErrDisconnected    = errors.New("peer disconnected")
	ErrTimeout         = errors.New("timed out")
	// Asked to download a piece the peer hasn't announced.
	ErrPeerLacksPiece = errors.New("peer lacks piece")
	// No usable peers remain while pieces are outstanding.
	ErrNoPeersAvailable = errors.New("no peers available")
)

func protocolViolation(format string, args ...interface{}) error {
	return errors.Wrapf(ErrProtocolViolation, format, args...)
}

type unexpectedPieceError struct {
	pp.RequestSpec
	reason string
}

func (me unexpectedPieceError) Error() string {
	return fmt.Sprintf("%v: %v: piece %v", ErrProtocolViolation, ErrUnexpectedPiece, me.reason)
}

func (me unexpectedPieceError) Is(target error) bool {
	return target == ErrUnexpectedPiece || target == ErrProtocolViolation
}

// A piece's data didn't match its hash. Attempts counts failures so far for the piece.
type PieceHashMismatchError struct {
	Index    int
	Attempts int
}

func (me PieceHashMismatchError) Error() string {
	if me.Attempts > 1 {
		return fmt.Sprintf("piece %d failed hash check %d times", me.Index, me.Attempts)
	}
	return fmt.Sprintf("piece %d failed hash check", me.Index)
}

// Returned when the peer pool is exhausted before every piece was verified.
type NoPeersAvailableError struct {
	// Pieces not verified, in ascending order.
	Pending []int
	// The last error that caused a peer to be dropped, if any.
	LastErr error
}

func (me NoPeersAvailableError) Error() string {
	var sb strings.Builder
	sb.WriteString(ErrNoPeersAvailable.Error())
	fmt.Fprintf(&sb, " with %d pieces incomplete", len(me.Pending))
	if len(me.Pending) != 0 {
		const maxListed = 10
		listed := me.Pending[:min(len(me.Pending), maxListed)]
		fmt.Fprintf(&sb, " %v", listed)
		if len(me.Pending) > maxListed {
			sb.WriteString("...")
		}
	}
	if me.LastErr != nil {
		fmt.Fprintf(&sb, ": last error: %v", me.LastErr)
	}
	return sb.String()
}

func (me NoPeersAvailableError) Unwrap() []error {
	if me.LastErr == nil {
		return []error{ErrNoPeersAvailable}
	}
	return []error{ErrNoPeersAvailable, me.LastErr}
}
