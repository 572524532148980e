/*
Package torrent downloads a single torrent from a known set of peers.

Simple example:

	mi, _ := metainfo.LoadFromFile("ubuntu.iso.torrent")
	info, _ := mi.UnmarshalInfo()
	ts, _ := storage.NewFile(".", &info)
	defer ts.Close()
	n, err := torrent.Download(ctx, torrent.NewDefaultClientConfig(), mi, peers, ts)
	log.Printf("wrote %d bytes: %v", n, err)

A Downloader splits the torrent into pieces, which are claimed by one PeerConn at a time,
requested in blocks, verified against their SHA-1 hashes, and written to the sink at their
offsets. Pieces that fail verification are retried, from another peer if one is available.
*/
package torrent
