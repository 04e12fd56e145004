package rules

import (
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/yungbote/styletag-backend/internal/domain/document"
)

var (
	numberedRe = regexp.MustCompile(`^\s*(\d+[.)]|\(\d+\)|\[\d+\])\s+`)
	letteredRe = regexp.MustCompile(`(?i)^\s*([a-z][.)]|\([a-z]\))\s+`)
	romanRe    = regexp.MustCompile(`(?i)^\s*([ivxlcdm]+[.)]|\([ivxlcdm]+\))\s+`)
	bulletRe   = regexp.MustCompile(`^\s*[\x{2022}\x{25CF}\-*\x{2013}\x{2014}]\s+`)
	allCapsRe  = regexp.MustCompile(`^[A-Z\s\d\-,.:;!?'"]+$`)
	yearRe     = regexp.MustCompile(`\b(19|20)\d{2}\b`)
	terminalRe = regexp.MustCompile(`[.!?]\s*$`)
	footnoteRe = regexp.MustCompile(`^[a-z]\)`)
)

// Boundary tags used for prev/next context at the edges of a document.
const (
	StartTag = "START"
	EndTag   = "END"
)

// FeatureSet holds boolean features as "true" and categorical ones by value.
// False booleans and empty values are absent.
type FeatureSet map[string]string

func (f FeatureSet) setBool(name string, v bool) {
	if v {
		f[name] = "true"
	}
}

func (f FeatureSet) setValue(name, v string) {
	if v != "" {
		f[name] = v
	}
}

// Matches reports whether the condition "name" (boolean) or "name=value" holds.
func (f FeatureSet) Matches(cond string) bool {
	if name, value, ok := strings.Cut(cond, "="); ok {
		return f[name] == value
	}
	return f[cond] == "true"
}

// Conditions lists every condition the set satisfies, sorted.
func (f FeatureSet) Conditions() []string {
	out := make([]string, 0, len(f))
	for k, v := range f {
		if v == "true" {
			out = append(out, k)
			continue
		}
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}

// Features extracts the rule features of one paragraph. prev and next are the
// neighbouring tags when known; empty leaves them out.
func Features(text string, meta document.StructuralMetadata, prev, next string) FeatureSet {
	t := strings.TrimSpace(text)
	lower := strings.ToLower(t)
	f := FeatureSet{}

	f.setBool("is_empty", t == "")
	f.setBool("is_short", len(t) < 50)
	f.setBool("is_long", len(t) > 500)

	f.setBool("has_number_prefix", numberedRe.MatchString(t))
	f.setBool("has_letter_prefix", letteredRe.MatchString(t))
	f.setBool("has_roman_prefix", romanRe.MatchString(t))
	f.setBool("has_bullet", bulletRe.MatchString(t))

	f.setBool("is_all_caps", allCapsRe.MatchString(t))
	f.setBool("starts_with_digit", t != "" && t[0] >= '0' && t[0] <= '9')
	f.setBool("ends_with_period", strings.HasSuffix(t, "."))
	f.setBool("ends_with_colon", strings.HasSuffix(t, ":"))
	f.setBool("has_citation_year", yearRe.MatchString(text))

	f.setBool("looks_like_heading", looksLikeHeading(t))
	f.setBool("looks_like_caption", hasAnyPrefix(lower, "figure", "table", "fig.", "tab."))
	f.setBool("looks_like_reference", looksLikeReference(t))
	f.setBool("looks_like_footnote", hasAnyPrefix(t, "*", "†", "‡") || footnoteRe.MatchString(t))

	zone := meta.Zone
	if zone == "" {
		zone = document.ZoneBody
	}
	f.setValue("zone", string(zone))
	f.setBool("is_in_table", zone == document.ZoneTable)
	f.setBool("is_in_box", zone.IsBox())
	f.setBool("is_in_back_matter", zone == document.ZoneBackMatter)
	f.setValue("list_kind", string(meta.ListKind))
	f.setValue("list_position", string(meta.ListPosition))
	f.setValue("prev_tag", prev)
	f.setValue("next_tag", next)
	return f
}

func hasAnyPrefix(s string, prefixes ...string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

func looksLikeHeading(t string) bool {
	if t == "" || len(t) > 200 || terminalRe.MatchString(t) {
		return false
	}
	words := strings.Fields(t)
	titled := 0
	for _, w := range words {
		for _, r := range w {
			if unicode.IsUpper(r) {
				titled++
			}
			break
		}
	}
	need := int(0.6 * float64(len(words)))
	if need < 1 {
		need = 1
	}
	return titled >= need
}

func looksLikeReference(t string) bool {
	if t == "" {
		return false
	}
	if numberedRe.MatchString(t) || bulletRe.MatchString(t) {
		return true
	}
	lower := strings.ToLower(t)
	signal := yearRe.MatchString(lower) || strings.Contains(lower, "doi") || strings.Contains(lower, "et al")
	punct := strings.Count(t, ".") + strings.Count(t, ";") + strings.Count(t, ":") + strings.Count(t, ",")
	return signal && punct >= 2
}
