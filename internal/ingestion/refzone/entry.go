package refzone

import (
	"regexp"
	"strings"
)

var (
	enumeratorRe       = regexp.MustCompile(`^\s*(?:[\x{2022}\x{25CF}\-*\x{2013}\x{2014}]\s*)?(?:\(\s*\d+\s*\)|\[\s*\d+\s*\]|\d+\s*[.)]|\d+\s+)`)
	subheadingMarkerRe = regexp.MustCompile(`(?i)^\s*<ref-?h2>`)
)

// IsNumbered reports a leading reference enumerator: (1), [1], 1., 1) or "1 ",
// optionally after a bullet glyph.
func IsNumbered(text string) bool { return enumeratorRe.MatchString(text) }

// EntryTag is REF-N for numbered reference entries and REF-U for the rest.
func EntryTag(text string) string {
	if IsNumbered(text) {
		return "REF-N"
	}
	return "REF-U"
}

// HasSubheadingMarker reports a leading <ref-h2> marker.
func HasSubheadingMarker(text string) bool { return subheadingMarkerRe.MatchString(text) }

// IsSubheadingStyle reports source paragraph styles that name a reference
// sub-heading, e.g. "REF-H2", "Ref-H2" or "REFH2".
func IsSubheadingStyle(style string) bool {
	s := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(style), " ", ""))
	s = strings.ReplaceAll(s, "_", "-")
	return s == "REF-H2" || s == "REFH2"
}
