package storage

import (
	"os"

	"github.com/anacrolix/log"

	"github.com/anacrolix/leech/metainfo"
)

type Completion struct {
	Complete bool
	// False if the completion is unknown.
	Ok bool
}

type PieceCompletionGetSetter interface {
	Get(metainfo.PieceKey) (Completion, error)
	Set(_ metainfo.PieceKey, complete bool) error
}

// Implementations track the completion of pieces. It must be concurrent-safe.
type PieceCompletion interface {
	PieceCompletionGetSetter
	Close() error
}

// Opens the default persistent piece completion in dir, falling back to memory if that fails.
func PieceCompletionForDir(dir string) (ret PieceCompletion) {
	os.MkdirAll(dir, 0o700)
	ret, err := NewBoltPieceCompletion(dir)
	if err != nil {
		log.Levelf(log.Warning, "couldn't open piece completion db in %q: %s", dir, err)
		ret = NewMapPieceCompletion()
	}
	return
}
