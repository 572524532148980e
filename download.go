package torrent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/netip"
	"sync/atomic"
	"time"

	"github.com/RoaringBitmap/roaring"
	"github.com/anacrolix/chansync"
	"github.com/anacrolix/log"
	"github.com/anacrolix/missinggo/v2/panicif"
	"github.com/anacrolix/sync"
	"golang.org/x/sync/errgroup"

	"github.com/anacrolix/leech/metainfo"
	"github.com/anacrolix/leech/storage"
)

// Downloads the pieces of one torrent from a set of peers, verifies them, and writes them to a
// sink at their offsets in the torrent.
type Downloader struct {
	cfg      *ClientConfig
	logger   log.Logger
	info     *metainfo.Info
	infoHash metainfo.Hash
	hashes   metainfo.PieceHashes
	sink     io.WriterAt
	peerID   PeerID
	// Optional. Pieces recorded complete are skipped, and pieces verified are recorded.
	Completion storage.PieceCompletion

	table *pieceTable

	mu    sync.Mutex
	conns []*PeerConn
	// Pieces each session sent bad data for, indexed like conns.
	bad     []*roaring.Bitmap
	live    int
	lastErr error
	started bool
	// Broadcast when a session is dropped.
	connsChanged chansync.BroadcastCond

	written      atomic.Int64
	hashFailures atomic.Int64
	dropped      atomic.Int64
}

type DownloadStats struct {
	PiecesTotal    int
	PiecesPending  int
	PiecesInFlight int
	PiecesVerified int
	BytesWritten   int64
	HashFailures   int64
	ActivePeers    int
	DroppedPeers   int64
}

func NewDownloader(
	cfg *ClientConfig,
	info *metainfo.Info,
	infoHash metainfo.Hash,
	sink io.WriterAt,
) (*Downloader, error) {
	if err := info.Validate(); err != nil {
		return nil, err
	}
	hashes, err := info.PieceHashes()
	if err != nil {
		return nil, err
	}
	return &Downloader{
		cfg:      cfg,
		logger:   cfg.Logger.WithNames("download").WithContextText(infoHash.HexString()),
		info:     info,
		infoHash: infoHash,
		hashes:   hashes,
		sink:     sink,
		peerID:   cfg.peerID(),
		table:    newPieceTable(hashes.Len()),
	}, nil
}

// Opens sessions to the given peers concurrently, adding those that complete the handshake.
// Failures are logged and otherwise ignored. Returns the number of sessions added.
func (d *Downloader) Connect(ctx context.Context, peers []netip.AddrPort) int {
	var (
		g     errgroup.Group
		added atomic.Int32
	)
	g.SetLimit(max(d.cfg.HalfOpenConns, 1))
	for _, addr := range peers {
		g.Go(func() error {
			c, err := DialPeer(ctx, d.cfg, addr, d.infoHash, d.peerID, d.info.NumPieces())
			if err != nil {
				d.logger.Levelf(log.Info, "discarding peer %v: %v", addr, err)
				d.recordErr(err)
				return nil
			}
			d.AddConns(c)
			added.Add(1)
			return nil
		})
	}
	g.Wait()
	return int(added.Load())
}

// Adds established sessions. Must be called before Run.
func (d *Downloader) AddConns(cs ...*PeerConn) {
	d.mu.Lock()
	defer d.mu.Unlock()
	panicif.True(d.started)
	d.conns = append(d.conns, cs...)
	d.live += len(cs)
}

func (d *Downloader) recordErr(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lastErr = err
}

// Marks pieces that a previous run completed, according to Completion.
func (d *Downloader) loadCompletion() {
	if d.Completion == nil {
		return
	}
	for i := range d.hashes.Len() {
		c, err := d.Completion.Get(metainfo.PieceKey{InfoHash: d.infoHash, Index: i})
		if err != nil {
			d.logger.Levelf(log.Warning, "getting completion for piece %d: %v", i, err)
			continue
		}
		if c.Ok && c.Complete {
			d.table.markPreviouslyVerified(i)
		}
	}
	if _, _, verified := d.table.counts(); verified != 0 {
		d.logger.Levelf(log.Info, "resuming with %d/%d pieces complete", verified, d.hashes.Len())
	}
}

// Downloads until every piece is verified, returning the bytes written to the sink. Fails with a
// NoPeersAvailableError if the sessions are exhausted first. The sessions are closed on return.
// Run may only be called once.
func (d *Downloader) Run(ctx context.Context) (written int64, err error) {
	d.mu.Lock()
	panicif.True(d.started)
	d.started = true
	conns := d.conns
	for range conns {
		d.bad = append(d.bad, roaring.New())
	}
	d.mu.Unlock()
	defer func() {
		for _, c := range conns {
			c.Close()
		}
	}()
	d.loadCompletion()
	if d.table.done() {
		return 0, nil
	}
	if len(conns) == 0 {
		return 0, d.noPeersError()
	}
	g, gctx := errgroup.WithContext(ctx)
	for id, c := range conns {
		g.Go(func() error {
			return d.worker(gctx, id, c)
		})
	}
	err = g.Wait()
	written = d.written.Load()
	if err != nil {
		return
	}
	if d.table.done() {
		d.logger.Levelf(log.Info, "download complete, wrote %d bytes", written)
		return
	}
	if ctx.Err() != nil {
		return written, ctx.Err()
	}
	return written, d.noPeersError()
}

func (d *Downloader) noPeersError() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return NoPeersAvailableError{
		Pending: d.table.remaining(),
		LastErr: d.lastErr,
	}
}

func (d *Downloader) dropConn(c *PeerConn, err error) {
	reason := "other"
	switch {
	case errors.Is(err, ErrTimeout):
		reason = "timeout"
	case errors.Is(err, ErrProtocolViolation):
		reason = "protocol violation"
	case errors.Is(err, ErrDisconnected):
		reason = "disconnected"
	}
	d.logger.Levelf(log.Info, "dropping peer %v: %v", c.RemoteAddr, err)
	peerConnsDropped.WithLabelValues(reason).Inc()
	d.dropped.Add(1)
	c.closeWithError(err)
	d.mu.Lock()
	d.lastErr = err
	d.live--
	d.connsChanged.Broadcast()
	d.mu.Unlock()
}

func (d *Downloader) liveConns() (int, chansync.Signaled) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.live, d.connsChanged.Signaled()
}

// Drives one session until the download completes, the session is dropped, or ctx ends. Only
// errors that should abort the whole download are returned.
func (d *Downloader) worker(ctx context.Context, id int, c *PeerConn) error {
	var (
		consecutiveTimeouts int
		// The last attempt timed out, so don't claim until the peer unchokes us.
		awaitUnchoke bool
	)
	idleTimeout := func() bool {
		consecutiveTimeouts++
		if d.cfg.MaxConsecutiveTimeouts > 0 && consecutiveTimeouts >= d.cfg.MaxConsecutiveTimeouts {
			d.dropConn(c, fmt.Errorf("%w: %d consecutive timeouts", ErrTimeout, consecutiveTimeouts))
			return true
		}
		return false
	}
	for {
		if ctx.Err() != nil {
			return nil
		}
		if c.State() == PeerConnClosed {
			d.dropConn(c, c.closeError())
			return nil
		}
		avail, peerChanged := c.peerPiecesChanged()
		_, connsChanged := d.liveConns()
		avail.AndNot(d.servableElsewhere(id))
		if awaitUnchoke && c.PeerChoking() {
			avail = nil
		} else {
			awaitUnchoke = false
		}
		index, ok, tableChanged, done := d.table.claim(id, avail)
		if done {
			return nil
		}
		if !ok {
			if d.wait(ctx, peerChanged, tableChanged, connsChanged) && idleTimeout() {
				return nil
			}
			continue
		}
		err := d.downloadPiece(ctx, id, c, index)
		if err == nil {
			consecutiveTimeouts = 0
			d.setBad(id, index, false)
			continue
		}
		if ctx.Err() != nil {
			return nil
		}
		var hashErr PieceHashMismatchError
		switch {
		case errors.As(err, &hashErr):
			d.setBad(id, index, true)
			if d.cfg.MaxPieceAttempts > 0 && hashErr.Attempts >= d.cfg.MaxPieceAttempts {
				d.dropConn(c, err)
				return nil
			}
		case errors.Is(err, ErrTimeout):
			d.logger.Levelf(log.Debug, "peer %v: %v", c.RemoteAddr, err)
			d.recordErr(err)
			awaitUnchoke = true
			if idleTimeout() {
				return nil
			}
		case errors.Is(err, errSinkWrite):
			return err
		case errors.Is(err, ErrPeerLacksPiece):
		default:
			d.dropConn(c, err)
			return nil
		}
	}
}

func (d *Downloader) setBad(id, index int, bad bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if bad {
		d.bad[id].AddInt(index)
		// Sessions deferring the piece to this one may have to take it after all.
		d.connsChanged.Broadcast()
	} else {
		d.bad[id].Remove(uint32(index))
	}
}

// Returns the pieces session id sent bad data for that another live session has, and hasn't
// itself sent bad data for. The session leaves those to the others.
func (d *Downloader) servableElsewhere(id int) *roaring.Bitmap {
	ret := roaring.New()
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.bad[id].IsEmpty() {
		return ret
	}
	for other, c := range d.conns {
		if other == id || c.State() == PeerConnClosed {
			continue
		}
		has := c.PeerPieces()
		has.And(d.bad[id])
		has.AndNot(d.bad[other])
		ret.Or(has)
	}
	return ret
}

// Waits for something that might make a piece claimable. Returns true if it timed out.
func (d *Downloader) wait(ctx context.Context, peerChanged, tableChanged, connsChanged chansync.Signaled) bool {
	timer := time.NewTimer(d.cfg.PieceTimeout)
	defer timer.Stop()
	select {
	case <-peerChanged:
	case <-tableChanged:
	case <-connsChanged:
	case <-ctx.Done():
	case <-timer.C:
		return true
	}
	return false
}

var errSinkWrite = errors.New("writing to sink")

// Downloads, verifies and writes out a claimed piece, settling its state in the table.
func (d *Downloader) downloadPiece(ctx context.Context, id int, c *PeerConn, index int) error {
	piece := d.info.Piece(index)
	pieceCtx, cancel := context.WithTimeout(ctx, d.cfg.PieceTimeout)
	data, err := c.DownloadPiece(pieceCtx, index, piece.Length())
	cancel()
	if err != nil {
		d.table.release(index, id, false)
		return err
	}
	if metainfo.HashBytes(data) != d.hashes.Get(index) {
		failures := d.table.release(index, id, true)
		d.hashFailures.Add(1)
		pieceHashFailures.Inc()
		err = PieceHashMismatchError{Index: index, Attempts: failures}
		d.logger.Levelf(log.Warning, "%v, from %v", err, c.RemoteAddr)
		d.recordErr(err)
		return err
	}
	_, err = d.sink.WriteAt(data, piece.Offset())
	if err != nil {
		d.table.release(index, id, false)
		return fmt.Errorf("%w: piece %d: %w", errSinkWrite, index, err)
	}
	d.table.markVerified(index, id)
	d.written.Add(int64(len(data)))
	bytesWritten.Add(float64(len(data)))
	piecesVerified.Inc()
	if d.Completion != nil {
		err = d.Completion.Set(metainfo.PieceKey{InfoHash: d.infoHash, Index: index}, true)
		if err != nil {
			d.logger.Levelf(log.Warning, "recording completion of piece %d: %v", index, err)
		}
	}
	d.logger.Levelf(log.Debug, "verified piece %d from %v", index, c.RemoteAddr)
	return nil
}

// The peer ID sent in handshakes, for announcing to trackers.
func (d *Downloader) PeerID() PeerID {
	return d.peerID
}

func (d *Downloader) Stats() (ret DownloadStats) {
	ret.PiecesPending, ret.PiecesInFlight, ret.PiecesVerified = d.table.counts()
	ret.PiecesTotal = d.hashes.Len()
	ret.BytesWritten = d.written.Load()
	ret.HashFailures = d.hashFailures.Load()
	ret.DroppedPeers = d.dropped.Load()
	ret.ActivePeers, _ = d.liveConns()
	return
}

// Downloads the torrent described by mi from peers into sink, returning the number of bytes
// written.
func Download(
	ctx context.Context,
	cfg *ClientConfig,
	mi *metainfo.MetaInfo,
	peers []netip.AddrPort,
	sink io.WriterAt,
) (int64, error) {
	info, err := mi.UnmarshalInfo()
	if err != nil {
		return 0, err
	}
	d, err := NewDownloader(cfg, &info, mi.HashInfoBytes(), sink)
	if err != nil {
		return 0, err
	}
	d.Connect(ctx, peers)
	return d.Run(ctx)
}
