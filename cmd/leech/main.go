// Downloads a torrent from its peers into a directory.
//
// Example run:
// $ leech -peers 10.0.0.2:6881 -peers 10.0.0.3:6881 -outDir /tmp ubuntu.iso.torrent
// 1.000285467s: "ubuntu.iso": 4.2 MB/1.2 GB, 16/4636 pieces verified (5 in flight), 2 peers: 4.2 MB/s
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/netip"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/anacrolix/log"
	"github.com/anacrolix/tagflag"
	"github.com/davecgh/go-spew/spew"
	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	torrent "github.com/anacrolix/leech"
	"github.com/anacrolix/leech/metainfo"
	"github.com/anacrolix/leech/storage"
	"github.com/anacrolix/leech/tracker"
)

var flags = struct {
	Peers       []string `help:"peer address to download from, repeatable; trackers are asked if none are given"`
	OutDir      string   `help:"directory to write torrent data into"`
	Mmap        bool     `help:"memory-map torrent data"`
	Resume      bool     `help:"record verified pieces in OutDir, and skip them on later runs"`
	Port        int      `help:"port reported to trackers"`
	Info        bool     `help:"dump the torrent info and exit"`
	MetricsAddr string   `help:"serve prometheus metrics on this address"`
	Debug       bool
	tagflag.StartPos
	Torrent string `help:"torrent metainfo file"`
}{
	OutDir: ".",
	Port:   42069,
}

func main() {
	tagflag.Parse(&flags, tagflag.Description("Downloads a torrent from its peers into OutDir."))
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := mainErr(ctx); err != nil {
		log.Levelf(log.Error, "error: %v", err)
		stop()
		os.Exit(1)
	}
}

func mainErr(ctx context.Context) error {
	mi, err := metainfo.LoadFromFile(flags.Torrent)
	if err != nil {
		return fmt.Errorf("loading torrent file %q: %w", flags.Torrent, err)
	}
	info, err := mi.UnmarshalInfo()
	if err != nil {
		return fmt.Errorf("unmarshalling info: %w", err)
	}
	if flags.Info {
		fmt.Printf("info hash: %v\n", mi.HashInfoBytes().HexString())
		spew.Dump(info)
		return nil
	}
	if flags.MetricsAddr != "" {
		go func() {
			err := http.ListenAndServe(flags.MetricsAddr, promhttp.Handler())
			log.Levelf(log.Warning, "serving metrics: %v", err)
		}()
	}
	cfg := torrent.NewDefaultClientConfig()
	cfg.ListenPort = flags.Port
	cfg.Debug = flags.Debug
	if !flags.Debug {
		cfg.Logger = cfg.Logger.FilterLevel(log.Info)
	}
	var ts storage.TorrentImpl
	if flags.Mmap {
		ts, err = storage.NewMMap(flags.OutDir, &info)
	} else {
		ts, err = storage.NewFile(flags.OutDir, &info)
	}
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer ts.Close()
	d, err := torrent.NewDownloader(cfg, &info, mi.HashInfoBytes(), ts)
	if err != nil {
		return err
	}
	if flags.Resume {
		pc := storage.PieceCompletionForDir(flags.OutDir)
		defer pc.Close()
		d.Completion = pc
	}
	peers, err := parsePeers(flags.Peers)
	if err != nil {
		return err
	}
	if len(peers) == 0 {
		peers = announce(ctx, cfg, mi, &info, d.PeerID())
	}
	cfg.Logger.Levelf(log.Info, "connecting to %d peers", len(peers))
	if d.Connect(ctx, peers) == 0 && len(peers) != 0 {
		cfg.Logger.Levelf(log.Warning, "no peers completed the handshake")
	}
	progressCtx, stopProgress := context.WithCancel(ctx)
	defer stopProgress()
	go progress(progressCtx, d, info.Name, info.TotalLength())
	started := time.Now()
	written, err := d.Run(ctx)
	stopProgress()
	if err != nil {
		var noPeers torrent.NoPeersAvailableError
		if errors.As(err, &noPeers) {
			return fmt.Errorf("%w (%d pieces outstanding)", err, len(noPeers.Pending))
		}
		return err
	}
	fmt.Printf(
		"downloaded %q: wrote %s in %v\n",
		info.Name,
		humanize.Bytes(uint64(written)),
		time.Since(started).Round(time.Millisecond))
	return nil
}

func parsePeers(ss []string) (ret []netip.AddrPort, err error) {
	for _, s := range ss {
		addr, err := netip.ParseAddrPort(s)
		if err != nil {
			return nil, fmt.Errorf("parsing peer address %q: %w", s, err)
		}
		ret = append(ret, addr)
	}
	return
}

// Asks each tracker in turn for peers until one gives some.
func announce(
	ctx context.Context,
	cfg *torrent.ClientConfig,
	mi *metainfo.MetaInfo,
	info *metainfo.Info,
	peerID torrent.PeerID,
) (ret []netip.AddrPort) {
	for _, url := range mi.UpvertedAnnounceList().DistinctValues() {
		resp, err := tracker.Announce(ctx, url, tracker.AnnounceRequest{
			InfoHash: mi.HashInfoBytes(),
			PeerId:   peerID,
			Left:     info.TotalLength(),
			Event:    tracker.Started,
			NumWant:  -1,
			Port:     uint16(cfg.ListenPort),
		}, tracker.AnnounceOpt{
			UserAgent: cfg.HTTPUserAgent,
			Logger:    &cfg.Logger,
		})
		if err != nil {
			cfg.Logger.Levelf(log.Warning, "announcing to %q: %v", url, err)
			continue
		}
		cfg.Logger.Levelf(log.Info, "%q returned %d peers", url, len(resp.Peers))
		for _, p := range resp.Peers {
			ret = append(ret, p.Addr)
		}
		if len(ret) != 0 {
			return
		}
	}
	return
}

func progress(ctx context.Context, d *torrent.Downloader, name string, length int64) {
	start := time.Now()
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	var lastWritten int64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		stats := d.Stats()
		fmt.Printf(
			"%v: %q: %s/%s, %d/%d pieces verified (%d in flight), %d peers: %s/s\n",
			time.Since(start).Round(time.Millisecond),
			name,
			humanize.Bytes(uint64(stats.BytesWritten)),
			humanize.Bytes(uint64(length)),
			stats.PiecesVerified,
			stats.PiecesTotal,
			stats.PiecesInFlight,
			stats.ActivePeers,
			humanize.Bytes(uint64(stats.BytesWritten-lastWritten)),
		)
		lastWritten = stats.BytesWritten
	}
}
