package tracker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	trackerAnnounces = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "leech",
		Subsystem: "tracker",
		Name:      "announces_total",
		Help:      "Tracker announces, by outcome.",
	}, []string{"result"})
	trackerResponsePeers = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "leech",
		Subsystem: "tracker",
		Name:      "response_peers_total",
		Help:      "Peers keys in tracker responses, by encoding.",
	}, []string{"encoding"})
)
