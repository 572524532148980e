package metainfo

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/anacrolix/leech/bencode"
)

// MetaInfo is the decoded top level of a .torrent file. The info dict is kept as its canonical
// encoding, so the info hash is stable regardless of how the file was written.
type MetaInfo struct {
	InfoBytes    bencode.Bytes `bencode:"info,omitempty"`
	Announce     string        `bencode:"announce,omitempty"`
	AnnounceList AnnounceList  `bencode:"announce-list,omitempty"` // BEP 12
	CreationDate int64         `bencode:"creation date,omitempty,ignore_unmarshal_type_error"`
	Comment      string        `bencode:"comment,omitempty"`
	CreatedBy    string        `bencode:"created by,omitempty"`
	Encoding     string        `bencode:"encoding,omitempty"`
}

// Load a MetaInfo from an io.Reader. Returns a non-nil error in case of
// failure.
func Load(r io.Reader) (*MetaInfo, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	var mi MetaInfo
	err = bencode.Unmarshal(b, &mi)
	if err != nil {
		return nil, err
	}
	if len(mi.InfoBytes) == 0 {
		return nil, fmt.Errorf("%w: missing info dict", ErrInvalidInfo)
	}
	return &mi, nil
}

// Convenience function for loading a MetaInfo from a file.
func LoadFromFile(filename string) (*MetaInfo, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Load(f)
}

// Decodes and validates the info dict.
func (mi *MetaInfo) UnmarshalInfo() (info Info, err error) {
	err = bencode.Unmarshal(mi.InfoBytes, &info)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrInvalidInfo, err)
		return
	}
	err = checkFileModeKeys(mi.InfoBytes)
	if err != nil {
		return
	}
	err = info.Validate()
	return
}

// An info dict is either single-file, with a length, or multi-file, with a files list. The
// decoded Info can't tell an absent length from a zero one, so this looks at the keys.
func checkFileModeKeys(infoBytes []byte) error {
	v, err := bencode.Decode(infoBytes)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidInfo, err)
	}
	d, ok := v.(bencode.Dict)
	if !ok {
		return invalidInfo("info is not a dict")
	}
	_, hasLength := d["length"]
	_, hasFiles := d["files"]
	switch {
	case hasLength && hasFiles:
		return invalidInfo("both length and files are present")
	case !hasLength && !hasFiles:
		return invalidInfo("neither length nor files is present")
	}
	return nil
}

// The info hash: SHA1 of the canonical info dict encoding.
func (mi *MetaInfo) HashInfoBytes() (infoHash Hash) {
	return HashBytes(mi.InfoBytes)
}

// Encode to bencoded form.
func (mi *MetaInfo) Write(w io.Writer) error {
	return bencode.NewEncoder(w).Encode(mi)
}

// Set good default values in preparation for creating a new MetaInfo file.
func (mi *MetaInfo) SetDefaults() {
	mi.CreatedBy = "github.com/anacrolix/leech"
	mi.CreationDate = time.Now().Unix()
}

// Sets InfoBytes to the canonical encoding of info.
func (mi *MetaInfo) SetInfo(info Info) (err error) {
	mi.InfoBytes, err = bencode.Marshal(info)
	return
}

// Returns the announce-list converted from the old single announce field if necessary.
func (mi *MetaInfo) UpvertedAnnounceList() AnnounceList {
	if mi.AnnounceList.OverridesAnnounce(mi.Announce) {
		return mi.AnnounceList.Clone()
	}
	if mi.Announce != "" {
		return [][]string{{mi.Announce}}
	}
	return nil
}
