package tracker

import (
	"fmt"
	"net/netip"

	"github.com/anacrolix/dht/v2/krpc"
)

type Peer struct {
	Addr netip.AddrPort
	// Only present in the non-compact form.
	ID []byte
}

func (p Peer) String() string {
	if len(p.ID) != 0 {
		return fmt.Sprintf("%x at %s", p.ID, p.Addr)
	}
	return p.Addr.String()
}

// The non-compact form in BEP 3.
type dictPeer struct {
	IP   string `bencode:"ip"`
	Port uint16 `bencode:"port"`
	ID   []byte `bencode:"peer id,omitempty"`
}

func (p *Peer) fromDict(d dictPeer) error {
	addr, err := netip.ParseAddr(d.IP)
	if err != nil {
		return fmt.Errorf("parsing peer ip: %w", err)
	}
	p.Addr = netip.AddrPortFrom(addr.Unmap(), d.Port)
	p.ID = d.ID
	return nil
}

func (p Peer) toDict() dictPeer {
	return dictPeer{
		IP:   p.Addr.Addr().String(),
		Port: p.Addr.Port(),
		ID:   p.ID,
	}
}

func peerFromNodeAddr(na krpc.NodeAddr) (p Peer, err error) {
	addr, ok := netip.AddrFromSlice(na.IP)
	if !ok {
		err = fmt.Errorf("bad peer ip: %v", na.IP)
		return
	}
	p.Addr = netip.AddrPortFrom(addr.Unmap(), uint16(na.Port))
	return
}

func nodeAddrFromPeer(p Peer) krpc.NodeAddr {
	return krpc.NodeAddr{
		IP:   p.Addr.Addr().AsSlice(),
		Port: int(p.Addr.Port()),
	}
}

func peersFromNodeAddrs(nas []krpc.NodeAddr) (ret []Peer, err error) {
	for _, na := range nas {
		p, err := peerFromNodeAddr(na)
		if err != nil {
			return nil, err
		}
		ret = append(ret, p)
	}
	return
}
