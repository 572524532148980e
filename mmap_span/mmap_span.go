package mmap_span

import (
	"errors"
	"io"
	"io/fs"
	"sync"

	"github.com/edsrzf/mmap-go"

	"github.com/anacrolix/leech/segments"
)

// Presents a sequence of memory-mapped files as one contiguous span. Zero-length files have nil
// mappings.
type MMapSpan struct {
	mu             sync.RWMutex
	closed         bool
	mMaps          []mmap.MMap
	segmentLocater segments.Index
}

func New(mMaps []mmap.MMap, index segments.Index) *MMapSpan {
	return &MMapSpan{
		mMaps:          mMaps,
		segmentLocater: index,
	}
}

func (ms *MMapSpan) Flush() (err error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	for _, mMap := range ms.mMaps {
		if mMap == nil {
			continue
		}
		err = errors.Join(err, mMap.Flush())
	}
	return
}

func (ms *MMapSpan) Close() (err error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	for _, mMap := range ms.mMaps {
		if mMap == nil {
			continue
		}
		err = errors.Join(err, mMap.Unmap())
	}
	ms.mMaps = nil
	ms.closed = true
	return
}

func (ms *MMapSpan) ReadAt(p []byte, off int64) (n int, err error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	if ms.closed {
		return 0, fs.ErrClosed
	}
	n = ms.locateCopy(func(a, b []byte) (_, _ []byte) { return a, b }, p, off)
	if n != len(p) {
		err = io.EOF
	}
	return
}

func (ms *MMapSpan) WriteAt(p []byte, off int64) (n int, err error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	if ms.closed {
		return 0, fs.ErrClosed
	}
	n = ms.locateCopy(func(a, b []byte) (_, _ []byte) { return b, a }, p, off)
	if n != len(p) {
		err = io.ErrShortWrite
	}
	return
}

func (ms *MMapSpan) locateCopy(
	copyArgs func(remainingArgument, mmapped []byte) (dst, src []byte),
	p []byte,
	off int64,
) (n int) {
	ms.segmentLocater.Locate(
		segments.Extent{Start: off, Length: int64(len(p))},
		func(i int, e segments.Extent) bool {
			mMapBytes := ms.mMaps[i][e.Start : e.Start+e.Length]
			_n := copy(copyArgs(p, mMapBytes))
			p = p[_n:]
			n += _n
			return true
		},
	)
	return
}
