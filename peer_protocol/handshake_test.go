package peer_protocol

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	qt "github.com/go-quicktest/qt"
	"github.com/stretchr/testify/require"

	"github.com/anacrolix/leech/metainfo"
)

var (
	testInfoHash = metainfo.HashBytes([]byte("info"))
	testPeerID   = [20]byte{'-', 'L', 'E', '0', '0', '0', '1', '-'}
)

func rawHandshake(protocol string, ih metainfo.Hash, peerID [20]byte) []byte {
	b := []byte(protocol)
	b = append(b, make([]byte, 8)...)
	b = append(b, ih[:]...)
	b = append(b, peerID[:]...)
	return b
}

// Runs Handshake against a fake remote that sends reply and records what we sent.
func handshakeWithReply(t *testing.T, ctx context.Context, reply []byte) (HandshakeResult, []byte, error) {
	a, b := net.Pipe()
	t.Cleanup(func() {
		a.Close()
		b.Close()
	})
	received := make(chan []byte, 1)
	go func() {
		go b.Write(reply)
		buf := make([]byte, HandshakeLength)
		io.ReadFull(b, buf)
		received <- buf
	}()
	res, err := Handshake(ctx, a, testInfoHash, testPeerID, PeerExtensionBits{})
	a.Close()
	return res, <-received, err
}

func TestHandshakeSuccess(t *testing.T) {
	var remoteID [20]byte
	copy(remoteID[:], "remote peer id......")
	res, sent, err := handshakeWithReply(t, context.Background(), rawHandshake(Protocol, testInfoHash, remoteID))
	qt.Assert(t, qt.IsNil(err))
	qt.Check(t, qt.Equals(res.PeerID, remoteID))
	qt.Check(t, qt.Equals(res.Hash, testInfoHash))
	qt.Check(t, qt.DeepEquals(sent, rawHandshake(Protocol, testInfoHash, testPeerID)))
}

func TestHandshakeProtocolMismatch(t *testing.T) {
	_, _, err := handshakeWithReply(t, context.Background(), rawHandshake("\x13BitTorrent protocoX", testInfoHash, testPeerID))
	qt.Assert(t, qt.ErrorIs(err, ErrHandshakeMismatch))
	_, _, err = handshakeWithReply(t, context.Background(), rawHandshake("\x12BitTorrent protocol", testInfoHash, testPeerID)[:HandshakeLength])
	qt.Assert(t, qt.ErrorIs(err, ErrHandshakeMismatch))
}

// A short reply with the wrong length byte is a mismatch, without waiting for a full handshake.
func TestHandshakeShortReplyWrongLength(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, _, err := handshakeWithReply(t, ctx, []byte("\x05short"))
	qt.Assert(t, qt.ErrorIs(err, ErrHandshakeMismatch))
	qt.Check(t, qt.IsNil(ctx.Err()))
}

func TestHandshakeInfoHashMismatch(t *testing.T) {
	_, _, err := handshakeWithReply(t, context.Background(), rawHandshake(Protocol, metainfo.HashBytes([]byte("other")), testPeerID))
	qt.Assert(t, qt.ErrorIs(err, ErrInfoHashMismatch))
}

func TestHandshakeContextDeadline(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()
	go io.Copy(io.Discard, b)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := Handshake(ctx, a, testInfoHash, testPeerID, PeerExtensionBits{})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestExtensionBits(t *testing.T) {
	bits := NewPeerExtensionBytes(ExtensionBitLtep)
	qt.Assert(t, qt.Equals(bits[5], byte(0x10)))
	qt.Assert(t, qt.IsTrue(bits.GetBit(ExtensionBitLtep)))
	qt.Assert(t, qt.IsFalse(bits.GetBit(ExtensionBitDht)))
}
