// Package tracker announces to HTTP trackers to discover peers for a torrent.
package tracker

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/anacrolix/log"
)

const DefaultTrackerAnnounceTimeout = 15 * time.Second

var ErrBadScheme = errors.New("unknown scheme")

// Marshalled as query parameters by Announce.
type AnnounceRequest struct {
	InfoHash   [20]byte
	PeerId     [20]byte
	Downloaded int64
	Left       int64 // If less than 0, math.MaxInt64 will be used for HTTP trackers instead.
	Uploaded   int64
	// Apparently this is optional. None can be used for announces done at
	// regular intervals.
	Event   AnnounceEvent
	Key     int32
	NumWant int32 // How many peer addresses are desired. -1 for default.
	Port    uint16
}

type AnnounceResponse struct {
	Interval int32 // Minimum seconds the local peer should wait before next announce.
	Leechers int32
	Seeders  int32
	Peers    []Peer
}

type AnnounceOpt struct {
	UserAgent  string
	HostHeader string
	// Defaults to http.DefaultClient.
	HTTPClient *http.Client
	// Defaults to log.Default.
	Logger *log.Logger
}

// Announces to the tracker at trackerURL, with a timeout of DefaultTrackerAnnounceTimeout unless
// ctx has an earlier deadline.
func Announce(ctx context.Context, trackerURL string, ar AnnounceRequest, opt AnnounceOpt) (AnnounceResponse, error) {
	u, err := url.Parse(trackerURL)
	if err != nil {
		return AnnounceResponse{}, err
	}
	switch u.Scheme {
	case "http", "https":
	default:
		return AnnounceResponse{}, ErrBadScheme
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultTrackerAnnounceTimeout)
		defer cancel()
	}
	return announceHttp(ctx, u, ar, opt)
}
