package torrent

import (
	pp "github.com/anacrolix/leech/peer_protocol"
)

// The largest block we request. Peers commonly drop connections that request more.
const BlockMax = 1 << 14

// A block within a piece.
type ChunkSpec struct {
	Begin, Length pp.Integer
}

// Splits a piece into blocks of blockMax bytes, the last holding the remainder.
func pieceBlocks(pieceSize int64, blockMax pp.Integer) (ret []ChunkSpec) {
	ret = make([]ChunkSpec, 0, (pieceSize+int64(blockMax)-1)/int64(blockMax))
	for begin := int64(0); begin < pieceSize; begin += int64(blockMax) {
		ret = append(ret, ChunkSpec{
			Begin:  pp.Integer(begin),
			Length: pp.Integer(min(int64(blockMax), pieceSize-begin)),
		})
	}
	return
}
