package torrent

import (
	"testing"

	"github.com/stretchr/testify/assert"

	pp "github.com/anacrolix/leech/peer_protocol"
)

func TestPieceBlocks(t *testing.T) {
	for _, _case := range []struct {
		size      int64
		blockMax  pp.Integer
		numBlocks int
		last      pp.Integer
	}{
		{1, BlockMax, 1, 1},
		{BlockMax, BlockMax, 1, BlockMax},
		{BlockMax + 1, BlockMax, 2, 1},
		{4 * BlockMax, BlockMax, 4, BlockMax},
		{10, 4, 3, 2},
		{0, 4, 0, 0},
	} {
		blocks := pieceBlocks(_case.size, _case.blockMax)
		assert.Len(t, blocks, _case.numBlocks)
		var next pp.Integer
		for i, b := range blocks {
			assert.Equal(t, next, b.Begin)
			if i != len(blocks)-1 {
				assert.Equal(t, _case.blockMax, b.Length)
			} else {
				assert.Equal(t, _case.last, b.Length)
			}
			next += b.Length
		}
		assert.EqualValues(t, _case.size, next)
	}
}
