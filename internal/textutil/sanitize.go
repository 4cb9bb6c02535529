package textutil

import (
	"strings"
	"unicode"
)

// maxNameBytes keeps staged names well under common filesystem limits once a
// uuid prefix is added.
const maxNameBytes = 180

var fileNameReplacer = strings.NewReplacer(
	"/", "-",
	"\\", "-",
	":", "-",
	"*", "-",
	"?", "",
	"\"", "",
	"<", "",
	">", "",
	"|", "",
)

// SanitizeFileName makes a display name safe to use as a single path element.
// Separators and reserved characters are replaced, control characters and
// leading dots are dropped, runs of whitespace collapse to one space, and the
// result is truncated on a rune boundary.
func SanitizeFileName(name string) string {
	name = fileNameReplacer.Replace(name)
	name = strings.Join(strings.Fields(name), " ")
	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)
	name = strings.TrimLeft(name, ".")
	for len(name) > maxNameBytes {
		runes := []rune(name)
		name = string(runes[:len(runes)-1])
	}
	return strings.TrimSpace(name)
}
