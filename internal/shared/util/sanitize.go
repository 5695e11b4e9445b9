package util

import (
	"path"
	"strings"
	"unicode"
)

const fallbackFileName = "file"

// SanitizeFileName reduces name to a single safe path element.
// Directory parts, leading dots, quotes, semicolons and control characters are dropped.
func SanitizeFileName(name string) string {
	s := path.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	s = strings.Map(func(r rune) rune {
		switch {
		case r == '/' || r == '"' || r == ';':
			return '_'
		case unicode.IsControl(r):
			return -1
		}
		return r
	}, s)
	s = strings.TrimSpace(strings.TrimLeft(s, "."))
	if s == "" {
		return fallbackFileName
	}
	return s
}
