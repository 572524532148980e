package storage

import (
	"io"
	"sync"
)

// A TorrentImpl that keeps the whole torrent in memory. Useful for small torrents and tests.
type Memory struct {
	mu   sync.Mutex
	data []byte
	// Offsets of writes, in the order they occurred.
	writes []int64
}

var _ TorrentImpl = (*Memory)(nil)

func NewMemory(size int64) *Memory {
	return &Memory{data: make([]byte, size)}
}

func (me *Memory) WriteAt(p []byte, off int64) (n int, err error) {
	me.mu.Lock()
	defer me.mu.Unlock()
	if off < 0 || off > int64(len(me.data)) {
		return 0, io.ErrShortWrite
	}
	n = copy(me.data[off:], p)
	if n != len(p) {
		err = io.ErrShortWrite
	}
	me.writes = append(me.writes, off)
	return
}

func (me *Memory) ReadAt(p []byte, off int64) (n int, err error) {
	me.mu.Lock()
	defer me.mu.Unlock()
	if off >= int64(len(me.data)) {
		return 0, io.EOF
	}
	n = copy(p, me.data[off:])
	if n != len(p) {
		err = io.EOF
	}
	return
}

// A copy of the current contents.
func (me *Memory) Bytes() []byte {
	me.mu.Lock()
	defer me.mu.Unlock()
	return append([]byte(nil), me.data...)
}

// The offsets written to so far.
func (me *Memory) WriteOffsets() []int64 {
	me.mu.Lock()
	defer me.mu.Unlock()
	return append([]int64(nil), me.writes...)
}

func (me *Memory) Close() error {
	return nil
}
