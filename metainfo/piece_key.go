package metainfo

// Uniquely identifies a piece across torrents.
type PieceKey struct {
	InfoHash Hash
	Index    int
}
