package tracker

import (
	"fmt"

	"github.com/anacrolix/dht/v2/krpc"

	"github.com/anacrolix/leech/bencode"
)

type HttpResponse struct {
	FailureReason string `bencode:"failure reason,omitempty"`
	Interval      int32  `bencode:"interval,omitempty"`
	TrackerId     string `bencode:"tracker id,omitempty"`
	Complete      int32  `bencode:"complete,omitempty"`
	Incomplete    int32  `bencode:"incomplete,omitempty"`
	Peers         Peers  `bencode:"peers,omitempty"`
	// BEP 7
	Peers6 krpc.CompactIPv6NodeAddrs `bencode:"peers6,omitempty"`
}

// The peers key, in either the compact string form, or a list of dicts.
type Peers struct {
	List    []Peer
	Compact bool
}

var (
	_ bencode.Unmarshaler = (*Peers)(nil)
	_ bencode.Marshaler   = Peers{}
)

func (me Peers) MarshalBencode() ([]byte, error) {
	if me.Compact {
		cnas := make([]krpc.NodeAddr, 0, len(me.List))
		for _, p := range me.List {
			na := nodeAddrFromPeer(p)
			na.IP = na.IP.To4()
			cnas = append(cnas, na)
		}
		return krpc.CompactIPv4NodeAddrs(cnas).MarshalBencode()
	}
	dicts := make([]dictPeer, 0, len(me.List))
	for _, p := range me.List {
		dicts = append(dicts, p.toDict())
	}
	return bencode.Marshal(dicts)
}

func (me *Peers) UnmarshalBencode(b []byte) (err error) {
	v, err := bencode.Decode(b)
	if err != nil {
		return
	}
	switch v := v.(type) {
	case bencode.String:
		trackerResponsePeers.WithLabelValues("compact").Inc()
		var cnas krpc.CompactIPv4NodeAddrs
		err = cnas.UnmarshalBinary(v)
		if err != nil {
			return
		}
		me.Compact = true
		me.List, err = peersFromNodeAddrs(cnas)
		return
	case bencode.List:
		trackerResponsePeers.WithLabelValues("list").Inc()
		me.Compact = false
		var dicts []dictPeer
		err = bencode.Unmarshal(b, &dicts)
		if err != nil {
			return
		}
		for _, d := range dicts {
			var p Peer
			err = p.fromDict(d)
			if err != nil {
				return
			}
			me.List = append(me.List, p)
		}
		return
	default:
		trackerResponsePeers.WithLabelValues("unhandled").Inc()
		return fmt.Errorf("unsupported peers type: %T", v)
	}
}
