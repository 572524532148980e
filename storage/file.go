package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/anacrolix/leech/metainfo"
	"github.com/anacrolix/leech/segments"
)

// Stores a torrent's files beneath a directory, laid out as the metainfo describes. Files are
// created on first write.
type fileTorrentImpl struct {
	info  *metainfo.Info
	files []fileExtent
	index segments.Index

	mu      sync.Mutex
	handles []*os.File
	closed  bool
}

type fileExtent struct {
	path   string
	length int64
}

var _ TorrentImpl = (*fileTorrentImpl)(nil)

func NewFile(baseDir string, info *metainfo.Info) (TorrentImpl, error) {
	files, err := infoFilePaths(baseDir, info)
	if err != nil {
		return nil, err
	}
	return &fileTorrentImpl{
		info:    info,
		files:   files,
		index:   info.FileSegmentsIndex(),
		handles: make([]*os.File, len(files)),
	}, nil
}

// The on-disk path of each file in the torrent. A single-file torrent is stored at baseDir/Name,
// and a multi-file torrent beneath baseDir/Name/.
func infoFilePaths(baseDir string, info *metainfo.Info) (ret []fileExtent, err error) {
	name, err := ToSafeFilePath(info.Name)
	if err != nil {
		return nil, fmt.Errorf("torrent name %q: %w", info.Name, err)
	}
	root := filepath.Join(baseDir, name)
	for _, fi := range info.UpvertedFiles() {
		if !info.IsDir() {
			ret = append(ret, fileExtent{root, fi.Length})
			continue
		}
		var rel string
		rel, err = ToSafeFilePath(fi.Path...)
		if err != nil {
			return nil, fmt.Errorf("file %q: %w", fi.DisplayPath(info), err)
		}
		ret = append(ret, fileExtent{filepath.Join(root, rel), fi.Length})
	}
	return
}

// Must hold mu.
func (fts *fileTorrentImpl) openFile(i int, create bool) (f *os.File, err error) {
	if fts.closed {
		return nil, os.ErrClosed
	}
	if f = fts.handles[i]; f != nil {
		return
	}
	fe := fts.files[i]
	flags := os.O_RDWR
	if create {
		flags |= os.O_CREATE
		err = os.MkdirAll(filepath.Dir(fe.path), 0o750)
		if err != nil {
			return
		}
	}
	f, err = os.OpenFile(fe.path, flags, 0o640)
	if err != nil {
		return
	}
	fts.handles[i] = f
	return
}

func (fts *fileTorrentImpl) WriteAt(p []byte, off int64) (n int, err error) {
	fts.mu.Lock()
	defer fts.mu.Unlock()
	covered := fts.index.Locate(segments.Extent{Start: off, Length: int64(len(p))}, func(i int, e segments.Extent) bool {
		var f *os.File
		f, err = fts.openFile(i, true)
		if err != nil {
			return false
		}
		var n1 int
		n1, err = f.WriteAt(p[:e.Length], e.Start)
		n += n1
		p = p[n1:]
		return err == nil
	})
	if err == nil && !covered {
		err = io.ErrShortWrite
	}
	return
}

func (fts *fileTorrentImpl) ReadAt(p []byte, off int64) (n int, err error) {
	fts.mu.Lock()
	defer fts.mu.Unlock()
	covered := fts.index.Locate(segments.Extent{Start: off, Length: int64(len(p))}, func(i int, e segments.Extent) bool {
		var f *os.File
		f, err = fts.openFile(i, false)
		if err != nil {
			return false
		}
		var n1 int
		n1, err = f.ReadAt(p[:e.Length], e.Start)
		n += n1
		p = p[n1:]
		return err == nil
	})
	if err == nil && !covered {
		err = io.EOF
	}
	return
}

func (fts *fileTorrentImpl) Close() (err error) {
	fts.mu.Lock()
	defer fts.mu.Unlock()
	fts.closed = true
	for i, f := range fts.handles {
		if f != nil {
			err = errors.Join(err, f.Close())
			fts.handles[i] = nil
		}
	}
	return
}
