package metainfo

import (
	"strings"
)

// Information specific to a single file inside the MetaInfo structure.
type FileInfo struct {
	Length int64    `bencode:"length"`
	Path   []string `bencode:"path"`

	// The offset of the file within the concatenated torrent data. Only set by
	// Info.UpvertedFiles.
	TorrentOffset int64 `bencode:"-"`
}

func (fi *FileInfo) DisplayPath(info *Info) string {
	if info.IsDir() {
		return strings.Join(fi.Path, "/")
	} else {
		return info.Name
	}
}
