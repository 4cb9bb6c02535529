package language

import (
	"errors"
	"fmt"
	"strings"

	xlanguage "golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// Auto requests language detection.
const Auto = "auto"

// ErrUnsupported is returned for values that do not name a language the
// recognition engine can be asked for.
var ErrUnsupported = errors.New("unsupported language")

// Word forms that language.Parse does not accept.
var byWord = map[string]string{
	"english":    "en",
	"spanish":    "es",
	"french":     "fr",
	"german":     "de",
	"italian":    "it",
	"portuguese": "pt",
	"japanese":   "ja",
	"korean":     "ko",
	"chinese":    "zh",
	"russian":    "ru",
	"ukrainian":  "uk",
	"arabic":     "ar",
	"hindi":      "hi",
	"dutch":      "nl",
	"polish":     "pl",
	"swedish":    "sv",
	"danish":     "da",
	"norwegian":  "no",
	"finnish":    "fi",
	"turkish":    "tr",
}

// Normalize resolves a requested language to "auto" or a two-letter code.
// Empty input is treated as "auto".
func Normalize(value string) (string, error) {
	value = strings.ToLower(strings.TrimSpace(value))
	switch value {
	case "", Auto:
		return Auto, nil
	}
	if code, ok := byWord[value]; ok {
		return code, nil
	}
	tag, err := xlanguage.Parse(value)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrUnsupported, value)
	}
	// Base infers a language for tags like "und" or "und-US"; only an
	// explicit one counts.
	base, confidence := tag.Base()
	code := base.String()
	if confidence != xlanguage.Exact || len(code) != 2 {
		return "", fmt.Errorf("%w: %q", ErrUnsupported, value)
	}
	return code, nil
}

// DisplayName returns the English name for a code, "Auto-detect" for auto,
// or the upper-cased input when the code is unknown.
func DisplayName(code string) string {
	code = strings.TrimSpace(code)
	if code == "" || strings.EqualFold(code, Auto) {
		return "Auto-detect"
	}
	tag, err := xlanguage.Parse(code)
	if err != nil {
		return strings.ToUpper(code)
	}
	if name := display.English.Languages().Name(tag); name != "" {
		return name
	}
	return strings.ToUpper(code)
}
