package torrent

import (
	"crypto/rand"
	"encoding/hex"
)

type PeerID [20]byte

func (me PeerID) String() string {
	if me[0] == '-' && me[7] == '-' {
		return string(me[:8]) + hex.EncodeToString(me[8:])
	}
	return hex.EncodeToString(me[:])
}

// Uses the configured peer ID, or the BEP 20 prefix padded with random bytes.
func (cfg *ClientConfig) peerID() (ret PeerID) {
	if cfg.PeerID != "" {
		copy(ret[:], cfg.PeerID)
		return
	}
	n := copy(ret[:], cfg.Bep20)
	_, err := rand.Read(ret[n:])
	if err != nil {
		panic(err)
	}
	return
}
