package torrent

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/netip"
	"os"
	"time"

	"github.com/RoaringBitmap/roaring"
	"github.com/anacrolix/chansync"
	"github.com/anacrolix/log"
	"github.com/anacrolix/missinggo/v2/panicif"
	"github.com/anacrolix/sync"
	pkgerrors "github.com/pkg/errors"

	"github.com/anacrolix/leech/metainfo"
	pp "github.com/anacrolix/leech/peer_protocol"
)

type PeerConnState int32

const (
	PeerConnConnecting PeerConnState = iota
	PeerConnHandshakeSent
	PeerConnHandshakeVerified
	PeerConnAwaitingBitfield
	PeerConnIdle
	PeerConnRequesting
	PeerConnClosed
)

func (me PeerConnState) String() string {
	switch me {
	case PeerConnConnecting:
		return "connecting"
	case PeerConnHandshakeSent:
		return "handshake sent"
	case PeerConnHandshakeVerified:
		return "handshake verified"
	case PeerConnAwaitingBitfield:
		return "awaiting bitfield"
	case PeerConnIdle:
		return "idle"
	case PeerConnRequesting:
		return "requesting"
	case PeerConnClosed:
		return "closed"
	default:
		return fmt.Sprintf("PeerConnState(%d)", int32(me))
	}
}

// A connection to a peer that we download from. One piece is downloaded at a time. Availability is
// tracked from the peer's bitfield and any later have messages.
type PeerConn struct {
	cfg       *ClientConfig
	conn      net.Conn
	logger    log.Logger
	decoder   pp.Decoder
	numPieces int

	RemoteAddr        string
	PeerID            PeerID
	PeerExtensionBits pp.PeerExtensionBits

	writeMu sync.Mutex
	closed  chansync.SetOnce

	mu          sync.Mutex
	state       PeerConnState
	closeErr    error
	peerChoking bool
	// We've told the peer we're interested.
	weInterested bool
	peerPieces   *roaring.Bitmap
	// The piece being downloaded, if any.
	download *pieceDownload
	// Replies the peer may still send, per request. Requests discarded by a choke or cancelled
	// are kept, since the peer may answer them anyway.
	requested map[pp.RequestSpec]int
	// Broadcast on choke changes, new availability, block arrival and close.
	stateChanged chansync.BroadcastCond
}

// Dials addr and sets up a PeerConn for the torrent with the given info hash.
func DialPeer(
	ctx context.Context,
	cfg *ClientConfig,
	addr netip.AddrPort,
	infoHash metainfo.Hash,
	peerID PeerID,
	numPieces int,
) (*PeerConn, error) {
	if cfg.DialRateLimiter != nil {
		if err := cfg.DialRateLimiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	dialCtx := ctx
	if cfg.NominalDialTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, cfg.NominalDialTimeout)
		defer cancel()
	}
	conn, err := cfg.dialContext(dialCtx, "tcp", addr.String())
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "dialing %v", addr)
	}
	return NewPeerConn(ctx, cfg, conn, infoHash, peerID, numPieces)
}

// Takes ownership of conn, performing the handshake and reading the peer's first message. conn is
// closed on error.
func NewPeerConn(
	ctx context.Context,
	cfg *ClientConfig,
	conn net.Conn,
	infoHash metainfo.Hash,
	peerID PeerID,
	numPieces int,
) (_ *PeerConn, err error) {
	c := &PeerConn{
		cfg:        cfg,
		conn:       conn,
		numPieces:  numPieces,
		RemoteAddr: conn.RemoteAddr().String(),
		state:      PeerConnConnecting,
		// Peers start out choking us.
		peerChoking: true,
		peerPieces:  roaring.New(),
		requested:   make(map[pp.RequestSpec]int),
		decoder: pp.Decoder{
			R:         bufio.NewReader(conn),
			MaxLength: cfg.MaxMessageLength,
		},
	}
	c.logger = cfg.Logger.WithNames("peerconn").WithContextText(c.RemoteAddr)
	defer func() {
		if err != nil {
			c.closeWithError(err)
		}
	}()
	if cfg.HandshakesTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.HandshakesTimeout)
		defer cancel()
	}
	c.setState(PeerConnHandshakeSent)
	res, err := pp.Handshake(ctx, conn, infoHash, peerID, cfg.Extensions)
	if err != nil {
		return nil, fmt.Errorf("handshaking with %v: %w", c.RemoteAddr, err)
	}
	c.PeerID = res.PeerID
	c.PeerExtensionBits = res.PeerExtensionBits
	c.setState(PeerConnHandshakeVerified)
	c.logger.Levelf(log.Debug, "handshake complete with %v, extensions %v", c.PeerID, c.PeerExtensionBits)
	c.setState(PeerConnAwaitingBitfield)
	err = c.readFirstMessage(ctx)
	if err != nil {
		return nil, err
	}
	c.setState(PeerConnIdle)
	go c.readLoop()
	go c.keepAliveLoop()
	return c, nil
}

func (c *PeerConn) setState(s PeerConnState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == PeerConnClosed {
		return
	}
	c.state = s
	c.stateChanged.Broadcast()
}

func (c *PeerConn) State() PeerConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// The peer must open with a bitfield. A have is tolerated, for peers that start with nothing.
// Keepalives are skipped.
func (c *PeerConn) readFirstMessage(ctx context.Context) error {
	if d, ok := ctx.Deadline(); ok {
		c.conn.SetReadDeadline(d)
		defer c.conn.SetReadDeadline(time.Time{})
	}
	for {
		var msg pp.Message
		err := c.decoder.Decode(&msg)
		if err != nil {
			return c.classifyReadError(err)
		}
		if msg.Keepalive {
			continue
		}
		return c.onFirstMessage(msg)
	}
}

func (c *PeerConn) onFirstMessage(msg pp.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch msg.Type {
	case pp.Bitfield:
		return c.onBitfield(msg.Bitfield)
	case pp.Have:
		c.logger.Levelf(log.Debug, "peer sent have before bitfield")
		return c.onHave(msg.Index)
	default:
		return protocolViolation("expected bitfield as first message, got %v", msg)
	}
}

// Must hold mu.
func (c *PeerConn) onBitfield(bf []bool) error {
	if len(bf) != (c.numPieces+7)/8*8 {
		return protocolViolation("bitfield has %d bits, expected %d pieces", len(bf), c.numPieces)
	}
	for i, have := range bf {
		if !have {
			continue
		}
		if i >= c.numPieces {
			return protocolViolation("bitfield has spare bit %d set", i)
		}
		c.peerPieces.AddInt(i)
	}
	c.stateChanged.Broadcast()
	return nil
}

// Must hold mu.
func (c *PeerConn) onHave(index pp.Integer) error {
	if index.Int64() >= int64(c.numPieces) {
		return protocolViolation("have for piece %d, torrent has %d", index, c.numPieces)
	}
	c.peerPieces.AddInt(index.Int())
	c.stateChanged.Broadcast()
	return nil
}

func (c *PeerConn) readLoop() {
	for {
		if c.cfg.ReadTimeout > 0 {
			c.conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
		}
		var msg pp.Message
		err := c.decoder.Decode(&msg)
		if err != nil {
			c.closeWithError(c.classifyReadError(err))
			return
		}
		peerMessagesReceived.WithLabelValues(messageTypeLabel(msg)).Inc()
		err = c.handleMessage(msg)
		if err != nil {
			c.closeWithError(err)
			return
		}
	}
}

func messageTypeLabel(msg pp.Message) string {
	if msg.Keepalive {
		return "keepalive"
	}
	if !msg.Type.Known() {
		return "unknown"
	}
	return msg.Type.String()
}

func (c *PeerConn) classifyReadError(err error) error {
	if c.closed.IsSet() {
		return ErrDisconnected
	}
	var netErr net.Error
	switch {
	case errors.Is(err, os.ErrDeadlineExceeded):
		return pkgerrors.Wrap(ErrTimeout, err.Error())
	case errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, io.ErrClosedPipe),
		errors.Is(err, net.ErrClosed),
		errors.As(err, &netErr):
		return pkgerrors.Wrap(ErrDisconnected, err.Error())
	default:
		return protocolViolation("reading message: %v", err)
	}
}

func (c *PeerConn) handleMessage(msg pp.Message) error {
	if msg.Keepalive {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	switch msg.Type {
	case pp.Choke:
		if !c.peerChoking {
			c.logger.Levelf(log.Debug, "choked")
		}
		c.peerChoking = true
		// The peer discards our requests when it chokes us.
		if c.download != nil {
			c.download.requeueOutstanding()
		}
		c.stateChanged.Broadcast()
	case pp.Unchoke:
		c.peerChoking = false
		c.stateChanged.Broadcast()
	case pp.Interested, pp.NotInterested, pp.Request, pp.Cancel:
		// We don't upload.
	case pp.Have:
		return c.onHave(msg.Index)
	case pp.Bitfield:
		return protocolViolation("bitfield after first message")
	case pp.Piece:
		return c.onPiece(msg)
	default:
		c.logger.Levelf(log.Debug, "ignoring %v", msg)
	}
	return nil
}

// Must hold mu.
func (c *PeerConn) onPiece(msg pp.Message) error {
	rs := msg.RequestSpec()
	if c.requested[rs] == 0 {
		return unexpectedPieceError{rs, fmt.Sprintf("%v was not requested", rs)}
	}
	c.requested[rs]--
	if c.requested[rs] == 0 {
		delete(c.requested, rs)
	}
	d := c.download
	if d == nil || msg.Index != d.index {
		// Answers a request from an abandoned download.
		return nil
	}
	bi, ok := d.blockIndex(msg.Begin, rs.Length)
	if !ok {
		return nil
	}
	switch d.states[bi] {
	case blockReceived:
		// Requested again after a choke, and answered twice.
		c.logger.Levelf(log.Debug, "duplicate block %v", rs)
		return nil
	case blockRequested:
		d.outstanding--
	case blockPending:
		// Sent despite choking us.
	}
	copy(d.buf[msg.Begin:], msg.Piece)
	d.states[bi] = blockReceived
	d.received++
	d.lastProgress = time.Now()
	blocksReceived.Inc()
	c.stateChanged.Broadcast()
	return nil
}

func (c *PeerConn) write(msg pp.Message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.closed.IsSet() {
		return c.closeError()
	}
	if c.cfg.WriteTimeout > 0 {
		c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	}
	_, err := c.conn.Write(msg.MustMarshalBinary())
	if err != nil {
		err = pkgerrors.Wrapf(ErrDisconnected, "writing %v: %v", msg, err)
		c.closeWithError(err)
	}
	return err
}

func (c *PeerConn) keepAliveLoop() {
	if c.cfg.KeepAliveTimeout <= 0 {
		return
	}
	ticker := time.NewTicker(c.cfg.KeepAliveTimeout)
	defer ticker.Stop()
	for {
		select {
		case <-c.closed.Done():
			return
		case <-ticker.C:
			if c.write(pp.Message{Keepalive: true}) != nil {
				return
			}
		}
	}
}

// The first error wins. Closing is terminal.
func (c *PeerConn) closeWithError(err error) {
	c.mu.Lock()
	if c.closeErr == nil {
		c.closeErr = err
	}
	c.state = PeerConnClosed
	c.stateChanged.Broadcast()
	c.mu.Unlock()
	if !c.closed.Set() {
		return
	}
	c.logger.Levelf(log.Debug, "closing: %v", err)
	c.conn.Close()
}

func (c *PeerConn) closeError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	panicif.Nil(c.closeErr)
	return c.closeErr
}

func (c *PeerConn) Close() error {
	c.closeWithError(pkgerrors.Wrap(ErrDisconnected, "closed locally"))
	return nil
}

// Closed is signalled when the connection closes for any reason.
func (c *PeerConn) Closed() <-chan struct{} {
	return c.closed.Done()
}

func (c *PeerConn) PeerHasPiece(index int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.peerPieces.ContainsInt(index)
}

func (c *PeerConn) PeerChoking() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.peerChoking
}

// A snapshot of the pieces the peer has announced.
func (c *PeerConn) PeerPieces() *roaring.Bitmap {
	ret, _ := c.peerPiecesChanged()
	return ret
}

// Returns a snapshot of the peer's pieces, and a channel signalled on the next change to them
// (or any other state change).
func (c *PeerConn) peerPiecesChanged() (*roaring.Bitmap, chansync.Signaled) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.peerPieces.Clone(), c.stateChanged.Signaled()
}

type blockState uint8

const (
	blockPending blockState = iota
	blockRequested
	blockReceived
)

type pieceDownload struct {
	index        pp.Integer
	buf          []byte
	blocks       []ChunkSpec
	states       []blockState
	outstanding  int
	received     int
	lastProgress time.Time
}

func newPieceDownload(index int, size int64) *pieceDownload {
	blocks := pieceBlocks(size, BlockMax)
	return &pieceDownload{
		index:        pp.Integer(index),
		buf:          make([]byte, size),
		blocks:       blocks,
		states:       make([]blockState, len(blocks)),
		lastProgress: time.Now(),
	}
}

func (d *pieceDownload) blockIndex(begin, length pp.Integer) (int, bool) {
	if begin%BlockMax != 0 {
		return 0, false
	}
	i := int(begin / BlockMax)
	if i >= len(d.blocks) || d.blocks[i].Length != length {
		return 0, false
	}
	return i, true
}

func (d *pieceDownload) complete() bool {
	return d.received == len(d.blocks)
}

func (d *pieceDownload) requestSpec(i int) pp.RequestSpec {
	return pp.RequestSpec{Index: d.index, Begin: d.blocks[i].Begin, Length: d.blocks[i].Length}
}

// Marks pending blocks as requested, up to the window, returning them.
func (d *pieceDownload) nextRequests(window int) (ret []pp.RequestSpec) {
	for i, s := range d.states {
		if d.outstanding >= window {
			break
		}
		if s != blockPending {
			continue
		}
		d.states[i] = blockRequested
		d.outstanding++
		ret = append(ret, d.requestSpec(i))
	}
	return
}

func (d *pieceDownload) requeueOutstanding() {
	for i, s := range d.states {
		if s == blockRequested {
			d.states[i] = blockPending
		}
	}
	d.outstanding = 0
}

// Downloads a piece of the given size, returning its data in order. The data is not verified.
// Only one piece can be downloaded at a time.
func (c *PeerConn) DownloadPiece(ctx context.Context, index int, size int64) (_ []byte, err error) {
	c.mu.Lock()
	if c.state == PeerConnClosed {
		c.mu.Unlock()
		return nil, c.closeError()
	}
	panicif.NotNil(c.download)
	if !c.peerPieces.ContainsInt(index) {
		c.mu.Unlock()
		return nil, pkgerrors.Wrapf(ErrPeerLacksPiece, "piece %d", index)
	}
	d := newPieceDownload(index, size)
	c.download = d
	c.state = PeerConnRequesting
	sendInterested := !c.weInterested
	c.weInterested = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if err != nil {
			c.cancelOutstanding(d)
		}
		c.download = nil
		if c.state == PeerConnRequesting {
			c.state = PeerConnIdle
		}
	}()
	if sendInterested {
		err = c.write(pp.Message{Type: pp.Interested})
		if err != nil {
			return
		}
	}
	timer := time.NewTimer(c.cfg.RequestTimeout)
	defer timer.Stop()
	for {
		c.mu.Lock()
		if c.state == PeerConnClosed {
			err = c.closeErr
			c.mu.Unlock()
			return
		}
		if d.complete() {
			c.mu.Unlock()
			return d.buf, nil
		}
		var reqs []pp.RequestSpec
		if !c.peerChoking {
			reqs = d.nextRequests(c.cfg.MaxOutstandingRequests)
			for _, rs := range reqs {
				c.requested[rs]++
			}
		}
		stalledFor := time.Since(d.lastProgress)
		changed := c.stateChanged.Signaled()
		c.mu.Unlock()
		if stalledFor >= c.cfg.RequestTimeout {
			return nil, pkgerrors.Wrapf(ErrTimeout, "no progress on piece %d for %v", index, stalledFor)
		}
		for _, rs := range reqs {
			err = c.write(pp.MakeRequestMessage(rs))
			if err != nil {
				return
			}
			requestsSent.Inc()
		}
		timer.Reset(c.cfg.RequestTimeout - stalledFor)
		select {
		case <-changed:
		case <-timer.C:
		case <-ctx.Done():
			err = ctx.Err()
			if errors.Is(err, context.DeadlineExceeded) {
				err = pkgerrors.Wrapf(ErrTimeout, "downloading piece %d: %v", index, err)
			}
			return
		}
	}
}

// Sends cancels for requested blocks not yet received. Must hold mu.
func (c *PeerConn) cancelOutstanding(d *pieceDownload) {
	if c.state == PeerConnClosed {
		return
	}
	var cancels []pp.RequestSpec
	for i, s := range d.states {
		if s == blockRequested {
			cancels = append(cancels, d.requestSpec(i))
		}
	}
	d.requeueOutstanding()
	if len(cancels) == 0 {
		return
	}
	go func() {
		for _, rs := range cancels {
			if c.write(pp.MakeCancelMessage(rs.Index, rs.Begin, rs.Length)) != nil {
				return
			}
		}
	}()
}
