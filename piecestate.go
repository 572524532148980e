package torrent

import (
	"github.com/RoaringBitmap/roaring"
	"github.com/anacrolix/chansync"
	"github.com/anacrolix/missinggo/v2/panicif"
	"github.com/anacrolix/sync"
)

type pieceState uint8

const (
	piecePending pieceState = iota
	pieceInFlight
	pieceVerified
)

func (me pieceState) String() string {
	switch me {
	case piecePending:
		return "pending"
	case pieceInFlight:
		return "in flight"
	case pieceVerified:
		return "verified"
	default:
		return "unknown"
	}
}

// The single source of truth for which pieces still need downloading, and who is downloading
// them. Every transition happens under mu, so a piece is never held by two owners.
type pieceTable struct {
	mu       sync.Mutex
	states   []pieceState
	owners   []int
	failures []int
	// Indexes in piecePending.
	pending     *roaring.Bitmap
	numVerified int
	// Broadcast whenever a piece changes state.
	changed chansync.BroadcastCond
}

func newPieceTable(numPieces int) *pieceTable {
	t := &pieceTable{
		states:   make([]pieceState, numPieces),
		owners:   make([]int, numPieces),
		failures: make([]int, numPieces),
		pending:  roaring.New(),
	}
	t.pending.AddRange(0, uint64(numPieces))
	return t
}

// Takes the lowest pending piece in avail for owner. If none is available, the returned channel
// is signalled on the next state change. done is set once every piece is verified.
func (t *pieceTable) claim(owner int, avail *roaring.Bitmap) (index int, ok bool, changed chansync.Signaled, done bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.numVerified == len(t.states) {
		done = true
		return
	}
	changed = t.changed.Signaled()
	if avail == nil {
		return
	}
	candidates := roaring.And(t.pending, avail)
	if candidates.IsEmpty() {
		return
	}
	index = int(candidates.Minimum())
	panicif.NotEq(t.states[index], piecePending)
	t.pending.Remove(uint32(index))
	t.states[index] = pieceInFlight
	t.owners[index] = owner
	ok = true
	return
}

// Returns an in-flight piece to pending. If failed, the piece's failure count is incremented.
// Returns the failure count.
func (t *pieceTable) release(index, owner int, failed bool) (failures int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.checkOwner(index, owner)
	t.states[index] = piecePending
	t.pending.AddInt(index)
	if failed {
		t.failures[index]++
	}
	t.changed.Broadcast()
	return t.failures[index]
}

func (t *pieceTable) markVerified(index, owner int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.checkOwner(index, owner)
	t.states[index] = pieceVerified
	t.numVerified++
	t.changed.Broadcast()
}

// For pieces already known to be complete before any downloading starts.
func (t *pieceTable) markPreviouslyVerified(index int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.states[index] != piecePending {
		return
	}
	t.pending.Remove(uint32(index))
	t.states[index] = pieceVerified
	t.numVerified++
	t.changed.Broadcast()
}

func (t *pieceTable) checkOwner(index, owner int) {
	panicif.NotEq(t.states[index], pieceInFlight)
	panicif.NotEq(t.owners[index], owner)
}

func (t *pieceTable) done() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.numVerified == len(t.states)
}

func (t *pieceTable) state(index int) pieceState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.states[index]
}

// Indexes not yet verified, ascending.
func (t *pieceTable) remaining() (ret []int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, s := range t.states {
		if s != pieceVerified {
			ret = append(ret, i)
		}
	}
	return
}

func (t *pieceTable) counts() (pending, inFlight, verified int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	pending = int(t.pending.GetCardinality())
	verified = t.numVerified
	inFlight = len(t.states) - pending - verified
	return
}
