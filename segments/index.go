package segments

import (
	"sort"

	g "github.com/anacrolix/generics"
)

// Index maps offsets in a concatenation of segments back onto the segments.
type Index struct {
	segments []Extent
}

// Segments are laid end to end in the order given.
func NewIndex(lengths []Length) (ret Index) {
	var start Length
	for _, l := range lengths {
		ret.segments = append(ret.segments, Extent{start, l})
		start += l
	}
	return
}

func (me Index) Len() int {
	return len(me.segments)
}

func (me Index) Index(i int) Extent {
	return me.segments[i]
}

// The end of the last segment.
func (me Index) Total() Length {
	if len(me.segments) == 0 {
		return 0
	}
	return me.segments[len(me.segments)-1].End()
}

// Calls output for each non-empty overlap of e with a segment, in order. Returns true if the
// callback never stopped early and all of e lies within the index.
func (me Index) Locate(e Extent, output Callback) bool {
	if e.Start < 0 || e.Length < 0 {
		return false
	}
	first := sort.Search(len(me.segments), func(i int) bool {
		return me.segments[i].End() > e.Start
	})
	for i := first; i < len(me.segments) && e.Length > 0; i++ {
		s := me.segments[i]
		if s.Length == 0 {
			continue
		}
		off := e.Start - s.Start
		n := min(e.Length, s.Length-off)
		if !output(i, Extent{off, n}) {
			return false
		}
		e.Start += n
		e.Length -= n
	}
	return e.Length == 0
}

type IndexAndOffset struct {
	Index  int
	Offset int64
}

// Returns the segment containing the given offset, if any.
func (me Index) LocateOffset(off int64) (ret g.Option[IndexAndOffset]) {
	me.Locate(Extent{off, 1}, func(i int, e Extent) bool {
		ret.Set(IndexAndOffset{
			Index:  i,
			Offset: e.Start,
		})
		return false
	})
	return
}
