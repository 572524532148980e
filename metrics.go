package torrent

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Process-wide counters, exported on the default prometheus registry.
var (
	peerMessagesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "leech",
		Name:      "peer_messages_received_total",
		Help:      "Messages received from peers, by type.",
	}, []string{"type"})
	blocksReceived = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "leech",
		Name:      "blocks_received_total",
		Help:      "Wanted blocks received from peers.",
	})
	requestsSent = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "leech",
		Name:      "requests_sent_total",
	})
	piecesVerified = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "leech",
		Name:      "pieces_verified_total",
	})
	pieceHashFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "leech",
		Name:      "piece_hash_failures_total",
	})
	peerConnsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "leech",
		Name:      "peer_conns_dropped_total",
		Help:      "Peer sessions abandoned by the downloader, by reason.",
	}, []string{"reason"})
	bytesWritten = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "leech",
		Name:      "bytes_written_total",
		Help:      "Verified piece data written to the sink.",
	})
)
