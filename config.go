package torrent

import (
	"context"
	"net"
	"time"

	"github.com/anacrolix/log"
	"golang.org/x/time/rate"

	pp "github.com/anacrolix/leech/peer_protocol"
	"github.com/anacrolix/leech/version"
)

// Probably not safe to modify this after it's given to a Downloader, or to pass it to multiple
// Downloaders.
type ClientConfig struct {
	// User-provided peer ID. If not present, one is generated from Bep20.
	PeerID string
	// Peer ID client identifier prefix. We'll update this occasionally to reflect changes to client
	// behaviour that other clients may depend on.
	Bep20 string
	// The port reported to trackers. Nothing listens on it, we only download.
	ListenPort int
	// HTTPUserAgent changes default UserAgent for HTTP requests
	HTTPUserAgent string
	// Reserved handshake bytes to send.
	Extensions pp.PeerExtensionBits

	// Defines DialContext func to use for peer connections. Defaults to a net.Dialer.
	DialContext func(ctx context.Context, network, addr string) (net.Conn, error)
	// Peer dial timeout.
	NominalDialTimeout time.Duration
	// Limits the rate of outgoing dials. Nil means unlimited.
	DialRateLimiter *rate.Limiter
	// Maximum dials and handshakes in progress at once.
	HalfOpenConns int
	// Bounds the handshake exchange and the wait for the peer's first message.
	HandshakesTimeout time.Duration

	// How long a download waits for an unchoke, or between blocks, before giving up on the piece.
	RequestTimeout time.Duration
	// Upper bound on downloading a single piece from one peer.
	PieceTimeout time.Duration
	// A peer that sends nothing at all for this long is considered gone.
	ReadTimeout time.Duration
	// Bounds each write to a peer.
	WriteTimeout time.Duration
	// Send keepalives this often.
	KeepAliveTimeout time.Duration
	// Requests pipelined to a peer for the piece being downloaded.
	MaxOutstandingRequests int
	// Frames longer than this from a peer are a protocol violation.
	MaxMessageLength pp.Integer

	// A session that sends bad data for a piece that has failed verification this many times is
	// dropped. Zero retries forever.
	MaxPieceAttempts int
	// A peer that times out this many times in a row without delivering a piece is dropped.
	MaxConsecutiveTimeouts int

	// Perform logging and any other behaviour that will help debug.
	Debug  bool `help:"enable debugging"`
	Logger log.Logger
}

func NewDefaultClientConfig() *ClientConfig {
	cc := &ClientConfig{
		HTTPUserAgent:          version.DefaultHttpUserAgent,
		Bep20:                  version.DefaultBep20Prefix,
		ListenPort:             42069,
		NominalDialTimeout:     20 * time.Second,
		DialRateLimiter:        rate.NewLimiter(10, 10),
		HalfOpenConns:          25,
		HandshakesTimeout:      4 * time.Second,
		RequestTimeout:         30 * time.Second,
		PieceTimeout:           2 * time.Minute,
		ReadTimeout:            150 * time.Second,
		WriteTimeout:           30 * time.Second,
		KeepAliveTimeout:       time.Minute,
		MaxOutstandingRequests: 5,
		MaxMessageLength:       pp.DefaultMaxLength,
		MaxConsecutiveTimeouts: 3,
		Logger:                 log.Default.WithNames("leech"),
	}
	return cc
}

func (cfg *ClientConfig) dialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	if cfg.DialContext != nil {
		return cfg.DialContext(ctx, network, addr)
	}
	var d net.Dialer
	return d.DialContext(ctx, network, addr)
}
