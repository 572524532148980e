package storage

import (
	"io"
)

// Data storage for a single torrent, addressed by torrent offset.
type TorrentImpl interface {
	io.ReaderAt
	io.WriterAt
	Close() error
}
