package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/edsrzf/mmap-go"

	"github.com/anacrolix/leech/metainfo"
	"github.com/anacrolix/leech/mmap_span"
)

// Memory-maps each of the torrent's files, with the same layout as NewFile. Files are created and
// sized up front.
func NewMMap(baseDir string, info *metainfo.Info) (_ TorrentImpl, err error) {
	files, err := infoFilePaths(baseDir, info)
	if err != nil {
		return
	}
	mMaps := make([]mmap.MMap, 0, len(files))
	defer func() {
		if err != nil {
			for _, mm := range mMaps {
				if mm != nil {
					mm.Unmap()
				}
			}
		}
	}()
	for i, fe := range files {
		var mm mmap.MMap
		mm, err = mmapFile(fe.path, fe.length)
		if err != nil {
			err = fmt.Errorf("file %d %q: %w", i, fe.path, err)
			return
		}
		mMaps = append(mMaps, mm)
	}
	return mmap_span.New(mMaps, info.FileSegmentsIndex()), nil
}

func mmapFile(name string, size int64) (ret mmap.MMap, err error) {
	dir := filepath.Dir(name)
	err = os.MkdirAll(dir, 0o750)
	if err != nil {
		err = fmt.Errorf("making directory %q: %w", dir, err)
		return
	}
	file, err := os.OpenFile(name, os.O_CREATE|os.O_RDWR, 0o640)
	if err != nil {
		return
	}
	defer file.Close()
	fi, err := file.Stat()
	if err != nil {
		return
	}
	if fi.Size() < size {
		err = file.Truncate(size)
		if err != nil {
			return
		}
	}
	if size == 0 {
		// Can't mmap() regions with length 0.
		return
	}
	intLen := int(size)
	if int64(intLen) != size {
		err = errors.New("size too large for system")
		return
	}
	ret, err = mmap.MapRegion(file, intLen, mmap.RDWR, 0, 0)
	if err != nil {
		err = fmt.Errorf("mapping region: %w", err)
		return
	}
	return
}
