package version

import (
	"fmt"
)

// Maps a version component onto a single character: 0-9 as digits, 10 and up as 'A', 'B', ...
func versionToChar(v int) rune {
	switch {
	case v >= 0 && v < 10:
		return rune('0' + v)
	case v >= 10 && v < 36:
		return rune('A' + (v - 10))
	default:
		panic(fmt.Sprintf("version component %d out of range", v))
	}
}

// GenerateFingerprint builds the 8 character Azureus-style peer ID prefix, as in BEP 20.
//
// Example: GenerateFingerprint("LE", 0, 1, 0, 0) → "-LE0100-"
func GenerateFingerprint(name string, major, minor, revision, tag int) string {
	if len(name) < 2 {
		name = "--"
	}
	runes := []rune(name)
	return fmt.Sprintf("-%c%c%c%c%c%c-",
		runes[0],
		runes[1],
		versionToChar(major),
		versionToChar(minor),
		versionToChar(revision),
		versionToChar(tag),
	)
}
