package segments

type Int = int64

type Length = Int

// A contiguous range of a byte space.
type Extent struct {
	Start, Length Int
}

func (e Extent) End() Int {
	return e.Start + e.Length
}

// Receives the index of a segment and the part of that segment covered, relative to the
// segment's start. Return false to stop.
type Callback = func(segmentIndex int, segmentBounds Extent) bool

type Locater func(Extent, Callback) bool
