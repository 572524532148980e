package storage

import (
	"sync"

	g "github.com/anacrolix/generics"

	"github.com/anacrolix/leech/metainfo"
)

type mapPieceCompletion struct {
	mu sync.RWMutex
	m  map[metainfo.PieceKey]bool
}

var _ PieceCompletion = (*mapPieceCompletion)(nil)

func NewMapPieceCompletion() PieceCompletion {
	return &mapPieceCompletion{m: make(map[metainfo.PieceKey]bool)}
}

func (me *mapPieceCompletion) Close() error {
	me.mu.Lock()
	defer me.mu.Unlock()
	clear(me.m)
	return nil
}

func (me *mapPieceCompletion) Get(pk metainfo.PieceKey) (c Completion, err error) {
	me.mu.RLock()
	defer me.mu.RUnlock()
	var opt g.Option[bool]
	if v, ok := me.m[pk]; ok {
		opt.Set(v)
	}
	c.Complete, c.Ok = opt.AsTuple()
	return
}

func (me *mapPieceCompletion) Set(pk metainfo.PieceKey, complete bool) error {
	me.mu.Lock()
	defer me.mu.Unlock()
	me.m[pk] = complete
	return nil
}
