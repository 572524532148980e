package tracker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/anacrolix/log"

	"github.com/anacrolix/leech/bencode"
	"github.com/anacrolix/leech/version"
)

func setAnnounceParams(_url *url.URL, ar *AnnounceRequest) {
	q := _url.Query()

	q.Set("key", strconv.FormatInt(int64(ar.Key), 10))
	q.Set("peer_id", string(ar.PeerId[:]))
	// AFAICT, port is mandatory, and there's no implied port key.
	q.Set("port", fmt.Sprintf("%d", ar.Port))
	q.Set("uploaded", strconv.FormatInt(ar.Uploaded, 10))
	q.Set("downloaded", strconv.FormatInt(ar.Downloaded, 10))

	// The AWS S3 tracker returns "400 Bad Request: left(-1) was not in the valid range 0 -
	// 9223372036854775807" if left is out of range, or "500 Internal Server Error: Internal Server
	// Error" if omitted entirely.
	left := ar.Left
	if left < 0 {
		left = math.MaxInt64
	}
	q.Set("left", strconv.FormatInt(left, 10))

	if ar.Event != None {
		q.Set("event", ar.Event.String())
	}
	// http://stackoverflow.com/questions/17418004/why-does-tracker-server-not-understand-my-request-bittorrent-protocol
	q.Set("compact", "1")
	if ar.NumWant != 0 {
		q.Set("numwant", strconv.FormatInt(int64(ar.NumWant), 10))
	}
	qstr := strings.ReplaceAll(q.Encode(), "+", "%20")

	// Some trackers don't decode '+' in the info hash as a space.
	ihq := url.Values{"info_hash": {string(ar.InfoHash[:])}}.Encode()
	ihq = strings.ReplaceAll(ihq, "+", "%20")
	if qstr != "" {
		ihq += "&"
	}
	_url.RawQuery = ihq + qstr
}

func announceHttp(ctx context.Context, _url *url.URL, ar AnnounceRequest, opt AnnounceOpt) (ret AnnounceResponse, err error) {
	logger := log.Default
	if opt.Logger != nil {
		logger = *opt.Logger
	}
	logger = logger.WithNames("tracker")
	defer func() {
		result := "ok"
		if err != nil {
			result = "error"
		}
		trackerAnnounces.WithLabelValues(result).Inc()
	}()
	u := *_url
	setAnnounceParams(&u, &ar)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return
	}
	userAgent := opt.UserAgent
	if userAgent == "" {
		userAgent = version.DefaultHttpUserAgent
	}
	req.Header.Set("User-Agent", userAgent)
	if opt.HostHeader != "" {
		req.Host = opt.HostHeader
	}
	client := opt.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return
	}
	defer resp.Body.Close()
	var buf bytes.Buffer
	io.Copy(&buf, resp.Body)
	if resp.StatusCode != http.StatusOK {
		err = fmt.Errorf("response from tracker: %s: %q", resp.Status, buf.Bytes())
		return
	}
	var trackerResponse HttpResponse
	err = bencode.Unmarshal(buf.Bytes(), &trackerResponse)
	var unusedTrailingBytes bencode.ErrUnusedTrailingBytes
	if errors.As(err, &unusedTrailingBytes) {
		logger.Levelf(log.Debug, "ignoring %d trailing bytes in announce response", unusedTrailingBytes.NumUnusedBytes)
		err = nil
	} else if err != nil {
		err = fmt.Errorf("error decoding %q: %w", buf.Bytes(), err)
		return
	}
	if trackerResponse.FailureReason != "" {
		err = fmt.Errorf("tracker gave failure reason: %q", trackerResponse.FailureReason)
		return
	}
	ret.Interval = trackerResponse.Interval
	ret.Leechers = trackerResponse.Incomplete
	ret.Seeders = trackerResponse.Complete
	ret.Peers = append(ret.Peers, trackerResponse.Peers.List...)
	peers6, err := peersFromNodeAddrs(trackerResponse.Peers6)
	if err != nil {
		err = fmt.Errorf("parsing peers6: %w", err)
		return
	}
	ret.Peers = append(ret.Peers, peers6...)
	logger.Levelf(log.Debug, "announce to %v returned %d peers", _url.Host, len(ret.Peers))
	return
}
