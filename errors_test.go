package torrent

import (
	"errors"
	"testing"

	"github.com/go-quicktest/qt"

	pp "github.com/anacrolix/leech/peer_protocol"
)

func TestUnexpectedPieceErrorIs(t *testing.T) {
	var err error = unexpectedPieceError{pp.RequestSpec{Index: 1, Begin: 2, Length: 3}, "not requested"}
	qt.Check(t, qt.ErrorIs(err, ErrUnexpectedPiece))
	qt.Check(t, qt.ErrorIs(err, ErrProtocolViolation))
	qt.Check(t, qt.IsFalse(errors.Is(err, ErrDisconnected)))
}

func TestNoPeersAvailableError(t *testing.T) {
	err := NoPeersAvailableError{Pending: []int{3, 5}}
	qt.Check(t, qt.ErrorIs(error(err), ErrNoPeersAvailable))
	qt.Check(t, qt.Equals(err.Error(), "no peers available with 2 pieces incomplete [3 5]"))

	err.LastErr = PieceHashMismatchError{Index: 3, Attempts: 2}
	var hashErr PieceHashMismatchError
	qt.Check(t, qt.IsTrue(errors.As(error(err), &hashErr)))
	qt.Check(t, qt.Equals(hashErr.Index, 3))
	qt.Check(t, qt.Equals(err.Error(), "no peers available with 2 pieces incomplete [3 5]: last error: piece 3 failed hash check 2 times"))

	err.Pending = make([]int, 12)
	qt.Check(t, qt.StringContains(err.Error(), "with 12 pieces incomplete [0 0 0 0 0 0 0 0 0 0]...: last error"))
}

func TestProtocolViolationWraps(t *testing.T) {
	err := protocolViolation("bad %s", "thing")
	qt.Check(t, qt.ErrorIs(err, ErrProtocolViolation))
	qt.Check(t, qt.Equals(err.Error(), "bad thing: protocol violation"))
}
