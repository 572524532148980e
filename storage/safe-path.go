package storage

import (
	"errors"
	"path/filepath"
	"strings"
)

// Joins the components of a path from a metainfo, ensuring the result stays relative and beneath
// its root. Metainfos are untrusted input.
func ToSafeFilePath(fileInfoComponents ...string) (string, error) {
	safeComps := make([]string, 0, len(fileInfoComponents))
	for _, comp := range fileInfoComponents {
		safeComps = append(safeComps, filepath.Clean(comp))
	}
	safeFilePath := filepath.Join(safeComps...)
	fc := firstComponent(safeFilePath)
	switch fc {
	case "..":
		return "", errors.New("escapes root dir")
	default:
		return safeFilePath, nil
	}
}

func firstComponent(filePath string) string {
	filePath = filepath.Clean(filePath)
	if filepath.IsAbs(filePath) {
		return string(filepath.Separator)
	}
	before, _, _ := strings.Cut(filePath, string(filepath.Separator))
	return before
}
