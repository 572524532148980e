package tracker

import (
	"fmt"
)

type AnnounceEvent int32

// See BEP 3, "event".
const (
	None      AnnounceEvent = iota
	Completed               // completed
	Started                 // started
	Stopped                 // stopped
)

var announceEventStrings = []string{"", "completed", "started", "stopped"}

func (e AnnounceEvent) String() string {
	// Return a safe default in case event values are not sanitized.
	if e < 0 || int(e) >= len(announceEventStrings) {
		return ""
	}
	return announceEventStrings[e]
}

func (me *AnnounceEvent) UnmarshalText(text []byte) error {
	for key, str := range announceEventStrings {
		if string(text) == str {
			*me = AnnounceEvent(key)
			return nil
		}
	}
	return fmt.Errorf("unknown event %q", text)
}
