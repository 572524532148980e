package metainfo

import (
	"fmt"
)

// PieceHashes is the parsed form of the info dict "pieces" field: one SHA1 per piece, in piece
// order.
type PieceHashes []Hash

// ParsePieceHashes splits the concatenated digests. It fails only if the input isn't a whole number
// of digests.
func ParsePieceHashes(b []byte) (PieceHashes, error) {
	if len(b)%HashSize != 0 {
		return nil, fmt.Errorf("pieces length %d is not a multiple of %d", len(b), HashSize)
	}
	ret := make(PieceHashes, len(b)/HashSize)
	for i := range ret {
		copy(ret[i][:], b[i*HashSize:])
	}
	return ret, nil
}

func (me PieceHashes) Len() int {
	return len(me)
}

// Panics if i is out of range.
func (me PieceHashes) Get(i int) Hash {
	return me[i]
}

// Bytes is the inverse of ParsePieceHashes.
func (me PieceHashes) Bytes() []byte {
	ret := make([]byte, 0, len(me)*HashSize)
	for _, h := range me {
		ret = append(ret, h[:]...)
	}
	return ret
}
