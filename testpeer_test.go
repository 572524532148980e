package torrent

import (
	"bufio"
	"bytes"
	"io"
	"net"
	"net/netip"
	"sync"
	"testing"

	g "github.com/anacrolix/generics"
	"github.com/stretchr/testify/require"

	"github.com/anacrolix/leech/metainfo"
	pp "github.com/anacrolix/leech/peer_protocol"
)

var seederPeerID = [20]byte{'-', 'S', 'D', '0', '0', '0', '1', '-'}

// Builds a single-file torrent for data.
func testTorrent(t testing.TB, data []byte, pieceLength int64) (*metainfo.MetaInfo, *metainfo.Info) {
	pieces, err := metainfo.GeneratePieces(bytes.NewReader(data), pieceLength)
	require.NoError(t, err)
	var mi metainfo.MetaInfo
	require.NoError(t, mi.SetInfo(metainfo.Info{
		Name:        "test",
		PieceLength: pieceLength,
		Length:      int64(len(data)),
		Pieces:      pieces,
	}))
	info, err := mi.UnmarshalInfo()
	require.NoError(t, err)
	return &mi, &info
}

// A peer on loopback that serves a torrent's data, with switches for misbehaviour.
type testSeeder struct {
	info     *metainfo.Info
	infoHash metainfo.Hash
	data     []byte

	// Sent in the handshake instead of infoHash.
	handshakeInfoHash g.Option[metainfo.Hash]
	// Sent after the handshake instead of a bitfield.
	firstMessages []pp.Message
	// Pieces in the bitfield. Nil means all of them.
	pieces []int
	neverUnchoke bool
	// Chokes and unchokes in response to the first request, discarding it.
	chokeFirstRequest bool
	// Return true to send corrupted data for a request.
	corrupt func(index int) bool
	// Hang up on a request for this piece.
	disconnectOn g.Option[int]
	// Answer requests with data for the following piece.
	sendUnexpected bool

	l        net.Listener
	mu       sync.Mutex
	requests map[int]int
	conns    []net.Conn
}

func newTestSeeder(mi *metainfo.MetaInfo, info *metainfo.Info, data []byte) *testSeeder {
	return &testSeeder{
		info:     info,
		infoHash: mi.HashInfoBytes(),
		data:     data,
		requests: make(map[int]int),
	}
}

// Starts serving, returning the address to dial.
func (s *testSeeder) start(t testing.TB) netip.AddrPort {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	s.l = l
	t.Cleanup(s.close)
	go func() {
		for {
			c, err := l.Accept()
			if err != nil {
				return
			}
			s.mu.Lock()
			s.conns = append(s.conns, c)
			s.mu.Unlock()
			go s.serve(c)
		}
	}()
	return l.Addr().(*net.TCPAddr).AddrPort()
}

func (s *testSeeder) close() {
	s.l.Close()
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.conns {
		c.Close()
	}
}

// Requests received, by piece index.
func (s *testSeeder) requestCount(index int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[index]
}

func (s *testSeeder) totalRequests() (n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range s.requests {
		n += v
	}
	return
}

func (s *testSeeder) bitfield() []bool {
	n := s.info.NumPieces()
	bf := make([]bool, n)
	if s.pieces == nil {
		for i := range bf {
			bf[i] = true
		}
	}
	for _, i := range s.pieces {
		bf[i] = true
	}
	return bf
}

func (s *testSeeder) serve(c net.Conn) {
	defer c.Close()
	ih := s.handshakeInfoHash.UnwrapOr(s.infoHash)
	hs := append([]byte(pp.Protocol), make([]byte, 8)...)
	hs = append(hs, ih[:]...)
	hs = append(hs, seederPeerID[:]...)
	if _, err := c.Write(hs); err != nil {
		return
	}
	if _, err := io.ReadFull(c, make([]byte, pp.HandshakeLength)); err != nil {
		return
	}
	first := s.firstMessages
	if first == nil {
		first = []pp.Message{{Type: pp.Bitfield, Bitfield: s.bitfield()}}
	}
	for _, msg := range first {
		if _, err := c.Write(msg.MustMarshalBinary()); err != nil {
			return
		}
	}
	dec := pp.Decoder{R: bufio.NewReader(c), MaxLength: pp.DefaultMaxLength}
	choked := false
	for {
		var msg pp.Message
		if dec.Decode(&msg) != nil {
			return
		}
		var reply []pp.Message
		switch msg.Type {
		case pp.Interested:
			if !s.neverUnchoke {
				reply = append(reply, pp.Message{Type: pp.Unchoke})
			}
		case pp.Request:
			index := msg.Index.Int()
			s.mu.Lock()
			s.requests[index]++
			s.mu.Unlock()
			if s.disconnectOn.Ok && s.disconnectOn.Value == index {
				return
			}
			if s.chokeFirstRequest && !choked {
				choked = true
				reply = append(reply, pp.Message{Type: pp.Choke}, pp.Message{Type: pp.Unchoke})
				break
			}
			reply = append(reply, s.pieceMessage(msg.RequestSpec()))
		}
		for _, m := range reply {
			if _, err := c.Write(m.MustMarshalBinary()); err != nil {
				return
			}
		}
	}
}

func (s *testSeeder) pieceMessage(rs pp.RequestSpec) pp.Message {
	index := rs.Index.Int()
	if s.sendUnexpected {
		index = (index + 1) % s.info.NumPieces()
	}
	off := int64(index)*s.info.PieceLength + int64(rs.Begin)
	end := min(off+int64(rs.Length), int64(len(s.data)))
	block := append([]byte(nil), s.data[off:end]...)
	if s.corrupt != nil && s.corrupt(index) {
		block[0] ^= 0xff
	}
	return pp.Message{
		Type:  pp.Piece,
		Index: pp.Integer(index),
		Begin: rs.Begin,
		Piece: block,
	}
}

func randomData(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i*7 + i/251)
	}
	return b
}
