package peer_protocol

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/anacrolix/missinggo/v2/panicif"
	"github.com/pkg/errors"

	"github.com/anacrolix/leech/metainfo"
)

var (
	// The peer's handshake doesn't start with the protocol length byte and literal.
	ErrHandshakeMismatch = errors.New("handshake protocol mismatch")
	// The peer is serving a different torrent.
	ErrInfoHashMismatch = errors.New("handshake info hash mismatch")
)

const HandshakeLength = len(Protocol) + 8 + 20 + 20

type ExtensionBit uint

// https://www.bittorrent.org/beps/bep_0004.html
const (
	ExtensionBitDht  = 0 // http://www.bittorrent.org/beps/bep_0005.html
	ExtensionBitFast = 2 // http://www.bittorrent.org/beps/bep_0006.html
	// LibTorrent Extension Protocol, http://www.bittorrent.org/beps/bep_0010.html
	ExtensionBitLtep = 20
)

// The reserved bytes of the handshake. We send zeroes unless told otherwise, and don't act on what
// the peer sends.
type PeerExtensionBits [8]byte

var bitTags = []struct {
	bit ExtensionBit
	tag string
}{
	// Ordered by their bit position left to right.
	{ExtensionBitLtep, "ltep"},
	{ExtensionBitFast, "fast"},
	{ExtensionBitDht, "dht"},
}

func (pex PeerExtensionBits) String() string {
	pexHex := hex.EncodeToString(pex[:])
	tags := make([]string, 0, len(bitTags))
	for _, bitTag := range bitTags {
		if pex.GetBit(bitTag.bit) {
			tags = append(tags, bitTag.tag)
		}
	}
	return fmt.Sprintf("%v (%s)", pexHex, strings.Join(tags, ", "))
}

func NewPeerExtensionBytes(bits ...ExtensionBit) (ret PeerExtensionBits) {
	for _, b := range bits {
		ret.SetBit(b, true)
	}
	return
}

func (pex *PeerExtensionBits) SetBit(bit ExtensionBit, on bool) {
	if on {
		pex[7-bit/8] |= 1 << (bit % 8)
	} else {
		pex[7-bit/8] &^= 1 << (bit % 8)
	}
}

func (pex PeerExtensionBits) GetBit(bit ExtensionBit) bool {
	return pex[7-bit/8]&(1<<(bit%8)) != 0
}

type HandshakeResult struct {
	PeerExtensionBits
	PeerID [20]byte
	metainfo.Hash
}

type deadliner interface {
	SetDeadline(time.Time) error
}

// Applies ctx to sock if it supports deadlines: the context deadline becomes the socket deadline,
// and cancellation forces pending IO to fail. The returned func undoes both.
func applyContextDeadline(ctx context.Context, sock io.ReadWriter) (cleanup func()) {
	dl, ok := sock.(deadliner)
	if !ok {
		return func() {}
	}
	if d, ok := ctx.Deadline(); ok {
		dl.SetDeadline(d)
	}
	stop := context.AfterFunc(ctx, func() {
		dl.SetDeadline(time.Unix(1, 0))
	})
	return func() {
		if stop() {
			dl.SetDeadline(time.Time{})
		}
	}
}

// The socket deadline can fire fractionally before the context's own timer.
func contextError(ctx context.Context) error {
	if err := context.Cause(ctx); err != nil {
		return err
	}
	if d, ok := ctx.Deadline(); ok && !time.Now().Before(d) {
		return context.DeadlineExceeded
	}
	return nil
}

func handshakeWriter(w io.Writer, b []byte, done chan<- error) {
	_, err := w.Write(b)
	done <- err
}

// Sends our handshake for ih and reads the peer's concurrently, so neither side waits on the
// other. The peer ID isn't validated. If ctx ends first, the error is the context's.
func Handshake(
	ctx context.Context,
	sock io.ReadWriter,
	ih metainfo.Hash,
	peerID [20]byte,
	extensions PeerExtensionBits,
) (
	res HandshakeResult, err error,
) {
	defer applyContextDeadline(ctx, sock)()
	defer func() {
		if err == nil {
			return
		}
		if ctxErr := contextError(ctx); ctxErr != nil {
			err = fmt.Errorf("%w: %w", ctxErr, err)
		}
	}()

	out := make([]byte, 0, HandshakeLength)
	out = append(out, Protocol...)
	out = append(out, extensions[:]...)
	out = append(out, ih[:]...)
	out = append(out, peerID[:]...)
	writeDone := make(chan error, 1)
	go handshakeWriter(sock, out, writeDone)

	b := make([]byte, HandshakeLength)
	// Check the length byte first, so a peer speaking something else fails fast, even if it sends
	// less than a whole handshake.
	_, err = io.ReadFull(sock, b[:1])
	if err != nil {
		return res, fmt.Errorf("while reading: %w", err)
	}
	if b[0] != Protocol[0] {
		return res, errors.Wrapf(ErrHandshakeMismatch, "unexpected protocol length byte %#x", b[0])
	}
	_, err = io.ReadFull(sock, b[1:])
	if err != nil {
		return res, fmt.Errorf("while reading: %w", err)
	}

	p := b[:len(Protocol)]
	if string(p) != Protocol {
		return res, errors.Wrapf(ErrHandshakeMismatch, "unexpected protocol string %q", string(p))
	}
	b = b[len(p):]
	read := func(dst []byte) {
		n := copy(dst, b)
		panicif.NotEq(n, len(dst))
		b = b[n:]
	}
	read(res.PeerExtensionBits[:])
	read(res.Hash[:])
	read(res.PeerID[:])
	panicif.NotEq(len(b), 0)
	if res.Hash != ih {
		return res, errors.Wrapf(ErrInfoHashMismatch, "peer sent %v, want %v", res.Hash, ih)
	}
	err = <-writeDone
	if err != nil {
		err = fmt.Errorf("error writing: %w", err)
	}
	return
}
