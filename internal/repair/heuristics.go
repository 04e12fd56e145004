package repair

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/yungbote/styletag-backend/internal/ingestion/refzone"
)

var (
	bulletGlyphRe  = regexp.MustCompile(`^\s*[\x{2022}\x{25CF}\-*\x{2013}\x{2014}]\s+`)
	yearRe         = regexp.MustCompile(`\b(19|20)\d{2}\b`)
	authorTitleRe  = regexp.MustCompile(`[A-Za-z].*,.+\.`)
	readingListRe  = regexp.MustCompile(`\b(suggested readings|further reading|recommended reading)\b`)
	terminalRe     = regexp.MustCompile(`[.!?;:]\s*$`)
	numericCellRe  = regexp.MustCompile(`^[\d\s,./%\-()+]+$`)
	upperHeadingRe = regexp.MustCompile(`^[A-Z0-9][A-Z0-9\s/&\-]{1,59}$`)
	footnoteMarkRe = regexp.MustCompile(`(?i)^[a-z]\)`)
)

// looksLikeReferenceEntry accepts enumerated or bulleted lines and lines with
// a citation signal and enough punctuation. Reading-list headings are rejected.
func looksLikeReferenceEntry(text string) bool {
	t := strings.TrimSpace(text)
	if t == "" {
		return false
	}
	lower := strings.ToLower(t)
	if readingListRe.MatchString(lower) {
		return false
	}
	if refzone.IsNumbered(t) || bulletGlyphRe.MatchString(t) {
		return true
	}
	punct := strings.Count(t, ".") + strings.Count(t, ";") + strings.Count(t, ":") + strings.Count(t, ",")
	if punct < 2 {
		return false
	}
	if yearRe.MatchString(lower) || strings.Contains(lower, "doi") || strings.Contains(lower, "et al") {
		return true
	}
	return authorTitleRe.MatchString(t)
}

// looksLikeTableHeading reports short title-cased or upper-case cell text.
func looksLikeTableHeading(text string) bool {
	t := strings.TrimSpace(text)
	if t == "" || len(t) > 60 || terminalRe.MatchString(t) || numericCellRe.MatchString(t) {
		return false
	}
	if upperHeadingRe.MatchString(t) {
		return true
	}
	words := strings.Fields(t)
	if len(words) < 2 {
		return false
	}
	titled := 0
	for _, w := range words {
		for _, r := range w {
			if unicode.IsLetter(r) || unicode.IsDigit(r) {
				if unicode.IsUpper(r) {
					titled++
				}
				break
			}
		}
	}
	need := int(0.7 * float64(len(words)))
	if need < 1 {
		need = 1
	}
	return titled >= need
}

func looksLikeTableFootnote(text string) bool {
	t := strings.TrimSpace(text)
	lower := strings.ToLower(t)
	return strings.HasPrefix(lower, "note") ||
		strings.HasPrefix(t, "*") ||
		strings.HasPrefix(t, "†") ||
		footnoteMarkRe.MatchString(t)
}
