package tracker

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"net/url"
	"testing"

	"github.com/anacrolix/dht/v2/krpc"
	"github.com/go-quicktest/qt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anacrolix/leech/bencode"
)

func TestUnmarshalHTTPResponsePeerDicts(t *testing.T) {
	var hr HttpResponse
	require.NoError(t, bencode.Unmarshal(
		[]byte("d5:peersl"+
			"d2:ip7:1.2.3.47:peer id20:thisisthe20bytepeeri4:porti9999ee"+
			"d2:ip39:2001:0db8:85a3:0000:0000:8a2e:0370:73347:peer id20:thisisthe20bytepeeri4:porti9998ee"+
			"e"+
			"6:peers618:123412341234123456"+
			"e"),
		&hr))

	require.Len(t, hr.Peers.List, 2)
	assert.False(t, hr.Peers.Compact)
	assert.Equal(t, []byte("thisisthe20bytepeeri"), hr.Peers.List[0].ID)
	assert.Equal(t, netip.MustParseAddrPort("1.2.3.4:9999"), hr.Peers.List[0].Addr)
	assert.Equal(t, netip.MustParseAddrPort("[2001:db8:85a3::8a2e:370:7334]:9998"), hr.Peers.List[1].Addr)

	require.Len(t, hr.Peers6, 1)
	assert.EqualValues(t, "1234123412341234", hr.Peers6[0].IP)
	assert.EqualValues(t, 0x3536, hr.Peers6[0].Port)
}

func TestUnmarshalHttpResponseCompactPeers(t *testing.T) {
	var hr HttpResponse
	require.NoError(t, bencode.Unmarshal(
		[]byte("d8:intervali1800e5:peers12:\x7f\x00\x00\x01\x1a\xe1\x0a\x00\x00\x02\x00\x50e"),
		&hr,
	))
	qt.Assert(t, qt.IsTrue(hr.Peers.Compact))
	qt.Check(t, qt.Equals(hr.Interval, int32(1800)))
	qt.Assert(t, qt.HasLen(hr.Peers.List, 2))
	qt.Check(t, qt.Equals(hr.Peers.List[0].Addr, netip.MustParseAddrPort("127.0.0.1:6881")))
	qt.Check(t, qt.Equals(hr.Peers.List[1].Addr, netip.MustParseAddrPort("10.0.0.2:80")))
}

func TestUnmarshalHttpResponseCompactPeersBadLength(t *testing.T) {
	var hr HttpResponse
	require.Error(t, bencode.Unmarshal([]byte("d5:peers5:abcdee"), &hr))
}

func TestUnmarshalHttpResponseNoPeers(t *testing.T) {
	var hr HttpResponse
	require.NoError(t, bencode.Unmarshal(
		[]byte("d6:peers618:123412341234123456e"),
		&hr,
	))
	require.Len(t, hr.Peers.List, 0)
	assert.Len(t, hr.Peers6, 1)
}

func TestUnmarshalHttpResponsePeers6NotCompact(t *testing.T) {
	var hr HttpResponse
	require.Error(t, bencode.Unmarshal(
		[]byte("d6:peers6lee"),
		&hr,
	))
}

func TestPeersMarshalRoundTrip(t *testing.T) {
	peers := []Peer{
		{Addr: netip.MustParseAddrPort("1.2.3.4:5")},
		{Addr: netip.MustParseAddrPort("9.8.7.6:65535")},
	}
	b, err := bencode.Marshal(Peers{List: peers, Compact: true})
	require.NoError(t, err)
	qt.Check(t, qt.Equals(string(b), "12:\x01\x02\x03\x04\x00\x05\x09\x08\x07\x06\xff\xff"))
	var ps Peers
	require.NoError(t, bencode.Unmarshal(b, &ps))
	qt.Check(t, qt.DeepEquals(ps, Peers{List: peers, Compact: true}))
}

// Checks that infohash bytes that correspond to spaces are escaped with %20 instead of +. See
// https://github.com/anacrolix/torrent/issues/534
func TestSetAnnounceInfohashParamWithSpaces(t *testing.T) {
	someUrl := &url.URL{}
	ihBytes := [20]uint8{
		0x2b, 0x76, 0xa, 0xa1, 0x78, 0x93, 0x20, 0x30, 0xc8, 0x47,
		0xdc, 0xdf, 0x8e, 0xae, 0xbf, 0x56, 0xa, 0x1b, 0xd1, 0x6c,
	}
	setAnnounceParams(someUrl, &AnnounceRequest{InfoHash: ihBytes})
	t.Logf("%q", someUrl)
	qt.Assert(t, qt.Equals(someUrl.Query().Get("info_hash"), string(ihBytes[:])))
	qt.Check(t, qt.StringContains(
		someUrl.String(),
		"info_hash=%2Bv%0A%A1x%93%200%C8G%DC%DF%8E%AE%BFV%0A%1B%D1l"))
}

func TestSetAnnounceParamsLeftAndEvent(t *testing.T) {
	u := &url.URL{}
	setAnnounceParams(u, &AnnounceRequest{Left: -1, Event: Started, Port: 6881})
	q := u.Query()
	qt.Check(t, qt.Equals(q.Get("left"), "9223372036854775807"))
	qt.Check(t, qt.Equals(q.Get("event"), "started"))
	qt.Check(t, qt.Equals(q.Get("port"), "6881"))
	qt.Check(t, qt.Equals(q.Get("compact"), "1"))
}

func TestAnnounce(t *testing.T) {
	var gotQuery url.Values
	var gotUserAgent string
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		gotUserAgent = r.UserAgent()
		w.Write(bencode.MustMarshal(HttpResponse{
			Interval:   60,
			Complete:   3,
			Incomplete: 1,
			Peers: Peers{
				Compact: true,
				List:    []Peer{{Addr: netip.MustParseAddrPort("127.0.0.1:6881")}},
			},
			Peers6: krpc.CompactIPv6NodeAddrs{{IP: net.ParseIP("::1"), Port: 6882}},
		}))
	}))
	defer s.Close()
	ar := AnnounceRequest{
		InfoHash: [20]byte{1, 2, 3},
		PeerId:   [20]byte{'-', 'L', 'E'},
		Left:     100,
		Port:     1234,
	}
	resp, err := Announce(context.Background(), s.URL+"/announce", ar, AnnounceOpt{UserAgent: "test-agent"})
	require.NoError(t, err)
	qt.Check(t, qt.Equals(resp.Interval, int32(60)))
	qt.Check(t, qt.Equals(resp.Seeders, int32(3)))
	qt.Check(t, qt.Equals(resp.Leechers, int32(1)))
	qt.Assert(t, qt.HasLen(resp.Peers, 2))
	qt.Check(t, qt.Equals(resp.Peers[0].Addr, netip.MustParseAddrPort("127.0.0.1:6881")))
	qt.Check(t, qt.Equals(resp.Peers[1].Addr, netip.MustParseAddrPort("[::1]:6882")))
	qt.Check(t, qt.Equals(gotUserAgent, "test-agent"))
	qt.Check(t, qt.Equals(gotQuery.Get("info_hash"), string(ar.InfoHash[:])))
	qt.Check(t, qt.Equals(gotQuery.Get("left"), "100"))
	qt.Check(t, qt.Equals(gotQuery.Get("event"), ""))
}

func TestAnnounceFailureReason(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("d14:failure reason13:not a torrente"))
	}))
	defer s.Close()
	_, err := Announce(context.Background(), s.URL, AnnounceRequest{}, AnnounceOpt{})
	qt.Check(t, qt.ErrorMatches(err, `tracker gave failure reason: "not a torrent"`))
}

func TestAnnounceBadStatus(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer s.Close()
	_, err := Announce(context.Background(), s.URL, AnnounceRequest{}, AnnounceOpt{})
	qt.Check(t, qt.ErrorMatches(err, `response from tracker: 403 Forbidden: .*`))
}

func TestAnnounceBadScheme(t *testing.T) {
	_, err := Announce(context.Background(), "udp://tracker.example:6969", AnnounceRequest{}, AnnounceOpt{})
	qt.Check(t, qt.ErrorIs(err, ErrBadScheme))
}

func TestAnnounceEventText(t *testing.T) {
	var e AnnounceEvent
	require.NoError(t, e.UnmarshalText([]byte("completed")))
	qt.Check(t, qt.Equals(e, Completed))
	qt.Check(t, qt.IsNotNil(e.UnmarshalText([]byte("bogus"))))
	qt.Check(t, qt.Equals(AnnounceEvent(9).String(), ""))
}
