package torrent_test

import (
	"context"
	"log"
	"net/netip"
	"os"

	torrent "github.com/anacrolix/leech"
	"github.com/anacrolix/leech/metainfo"
	"github.com/anacrolix/leech/storage"
)

func Example() {
	mi, err := metainfo.LoadFromFile("ubuntu.torrent")
	if err != nil {
		log.Fatal(err)
	}
	info, err := mi.UnmarshalInfo()
	if err != nil {
		log.Fatal(err)
	}
	sink, err := storage.NewFile(os.TempDir(), &info)
	if err != nil {
		log.Fatal(err)
	}
	defer sink.Close()
	peers := []netip.AddrPort{netip.MustParseAddrPort("127.0.0.1:6881")}
	n, err := torrent.Download(context.Background(), torrent.NewDefaultClientConfig(), mi, peers, sink)
	if err != nil {
		log.Fatal(err)
	}
	log.Printf("ermahgerd, torrent downloaded: %d bytes", n)
}
