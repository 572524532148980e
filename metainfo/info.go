package metainfo

import (
	"crypto/sha1"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/anacrolix/leech/segments"
)

// The info dictionary. See BEP 3.
type Info struct {
	PieceLength int64      `bencode:"piece length"`
	Pieces      []byte     `bencode:"pieces"`
	Name        string     `bencode:"name"`
	Length      int64      `bencode:"length,omitempty"` // Mutually exclusive with Files.
	Private     *bool      `bencode:"private,omitempty"` // BEP 27
	Files       []FileInfo `bencode:"files,omitempty"`   // Mutually exclusive with Length.
}

// The Info.Name field is "advisory". For multi-file torrents it's usually a suggested directory
// name. NoName is used when building from a root that has no usable base name.
const NoName = "-"

var ErrInvalidInfo = errors.New("invalid info dict")

func invalidInfo(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidInfo, fmt.Sprintf(format, args...))
}

// Validate checks the structural rules an info dict must satisfy before it can be downloaded.
func (info *Info) Validate() error {
	if info.PieceLength <= 0 {
		return invalidInfo("piece length %d must be positive", info.PieceLength)
	}
	switch {
	case info.Length != 0 && info.Files != nil:
		return invalidInfo("both length and files are present")
	case info.Files == nil && info.Length < 0:
		return invalidInfo("negative length %d", info.Length)
	case info.Files != nil && len(info.Files) == 0:
		return invalidInfo("files list is empty")
	}
	for i, fi := range info.Files {
		if len(fi.Path) == 0 {
			return invalidInfo("file %d has an empty path", i)
		}
		if fi.Length < 0 {
			return invalidInfo("file %d has negative length %d", i, fi.Length)
		}
	}
	if len(info.Pieces)%HashSize != 0 {
		return invalidInfo("pieces length %d is not a multiple of %d", len(info.Pieces), HashSize)
	}
	expected := (info.TotalLength() + info.PieceLength - 1) / info.PieceLength
	if got := int64(info.NumPieces()); got != expected {
		return invalidInfo("have %d piece hashes, expected %d for total length %d", got, expected, info.TotalLength())
	}
	return nil
}

// This is a helper that sets Files and Pieces from a root path and its children.
func (info *Info) BuildFromFilePath(root string) (err error) {
	info.Name = func() string {
		b := filepath.Base(root)
		switch b {
		case ".", "..", string(filepath.Separator):
			return NoName
		default:
			return b
		}
	}()
	info.Files = nil
	info.Length = 0
	err = filepath.Walk(root, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if fi.IsDir() {
			// Directories are implicit in torrent files.
			return nil
		} else if path == root {
			// The root is a file.
			info.Length = fi.Size()
			return nil
		}
		relPath, err := filepath.Rel(root, path)
		if err != nil {
			return fmt.Errorf("error getting relative path: %s", err)
		}
		info.Files = append(info.Files, FileInfo{
			Path:   strings.Split(relPath, string(filepath.Separator)),
			Length: fi.Size(),
		})
		return nil
	})
	if err != nil {
		return
	}
	sort.Slice(info.Files, func(i, j int) bool {
		l, r := info.Files[i], info.Files[j]
		return strings.Join(l.Path, "/") < strings.Join(r.Path, "/")
	})
	if info.PieceLength == 0 {
		info.PieceLength = ChoosePieceLength(info.TotalLength())
	}
	err = info.GeneratePieces(func(fi FileInfo) (io.ReadCloser, error) {
		if len(info.Files) == 0 {
			return os.Open(root)
		}
		return os.Open(filepath.Join(root, filepath.Join(fi.Path...)))
	})
	if err != nil {
		err = fmt.Errorf("error generating pieces: %s", err)
	}
	return
}

// Concatenates all the files in the torrent into w. open is a function that
// gets at the contents of the given file.
func (info *Info) writeFiles(w io.Writer, open func(fi FileInfo) (io.ReadCloser, error)) error {
	for _, fi := range info.UpvertedFiles() {
		r, err := open(fi)
		if err != nil {
			return fmt.Errorf("error opening %v: %s", fi, err)
		}
		wn, err := io.CopyN(w, r, fi.Length)
		r.Close()
		if wn != fi.Length {
			return fmt.Errorf("error copying %v: %s", fi, err)
		}
	}
	return nil
}

// Sets Pieces (the block of piece hashes in the Info) by using the passed
// function to get at the torrent data.
func (info *Info) GeneratePieces(open func(fi FileInfo) (io.ReadCloser, error)) (err error) {
	if info.PieceLength == 0 {
		return errors.New("piece length must be non-zero")
	}
	pr, pw := io.Pipe()
	go func() {
		err := info.writeFiles(pw, open)
		pw.CloseWithError(err)
	}()
	defer pr.Close()
	info.Pieces, err = GeneratePieces(pr, info.PieceLength)
	return
}

// GeneratePieces hashes r in pieceLength chunks, returning the concatenated digests. The final
// piece may be short.
func GeneratePieces(r io.Reader, pieceLength int64) (pieces []byte, err error) {
	if pieceLength <= 0 {
		return nil, errors.New("piece length must be positive")
	}
	buf := make([]byte, pieceLength)
	for {
		n, readErr := io.ReadFull(r, buf)
		if n > 0 {
			h := sha1.Sum(buf[:n])
			pieces = append(pieces, h[:]...)
		}
		switch readErr {
		case nil:
			continue
		case io.EOF, io.ErrUnexpectedEOF:
			return pieces, nil
		default:
			return nil, readErr
		}
	}
}

// Picks a power of two piece length giving roughly a thousand pieces, clamped between 16 KiB and
// 16 MiB.
func ChoosePieceLength(totalLength int64) (pieceLength int64) {
	const (
		minLength = 16 << 10
		maxLength = 16 << 20
	)
	pieceLength = minLength
	for pieceLength < maxLength && totalLength/pieceLength > 1024 {
		pieceLength *= 2
	}
	return
}

func (info *Info) TotalLength() (ret int64) {
	for _, fi := range info.UpvertedFiles() {
		ret += fi.Length
	}
	return
}

func (info *Info) NumPieces() int {
	return len(info.Pieces) / HashSize
}

// Whether the torrent describes a directory of files, rather than a single file named Info.Name.
func (info *Info) IsDir() bool {
	return len(info.Files) != 0
}

// The files field, converted up from the old single-file in the parent info dict if necessary. This
// is a helper to avoid having to conditionally handle single and multi-file torrent infos.
func (info *Info) UpvertedFiles() (files []FileInfo) {
	if len(info.Files) == 0 {
		return []FileInfo{{
			Length: info.Length,
			// Callers should determine that Info.Name is the basename, and
			// thus a regular file.
			Path: nil,
		}}
	}
	var offset int64
	for _, fi := range info.Files {
		fi.TorrentOffset = offset
		offset += fi.Length
		files = append(files, fi)
	}
	return
}

func (info *Info) Piece(index int) Piece {
	return Piece{info, index}
}

// PieceHashes parses the pieces field.
func (info *Info) PieceHashes() (PieceHashes, error) {
	return ParsePieceHashes(info.Pieces)
}

// Maps torrent offsets onto the files they fall in.
func (info *Info) FileSegmentsIndex() segments.Index {
	var lengths []segments.Length
	for _, fi := range info.UpvertedFiles() {
		lengths = append(lengths, fi.Length)
	}
	return segments.NewIndex(lengths)
}
