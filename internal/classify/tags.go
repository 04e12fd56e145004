package classify

import (
	"regexp"
	"strings"

	"github.com/yungbote/styletag-backend/internal/domain/document"
	"github.com/yungbote/styletag-backend/internal/ingestion/refzone"
	"github.com/yungbote/styletag-backend/internal/styles"
)

var (
	strictTagRe  = regexp.MustCompile(`^[A-Z0-9]+(?:[_-][A-Z0-9]+)*$`)
	extractTagRe = regexp.MustCompile(`[A-Za-z0-9]+(?:[_-][A-Za-z0-9]+)*`)

	bulletLeadRe = regexp.MustCompile(`^\s*[\x{2022}\x{25CF}\-*\x{2013}\x{2014}]\s+`)

	headingTagRe    = regexp.MustCompile(`^H([1-6])$`)
	tableListRe     = regexp.MustCompile(`^TBL-(BL|NL|UL)-(FIRST|MID|LAST)$`)
	numericPrefixRe = regexp.MustCompile(`^(\d+)-(.+)$`)
	listRunRe       = regexp.MustCompile(`^(?:BL|NL|UL)\d?-(FIRST|MID|LAST)$`)
	boxFamilyRe     = regexp.MustCompile(`^(?:NBX|BX\d|EXER|KT|KP|OBJ)\d?-`)
)

var vendorPrefixes = []string{"EFP-", "EYU-"}

// sanitizeTag reduces a raw model tag to one well-formed token. Free text
// around the tag is dropped; nothing usable yields the universal fallback.
func (o *Orchestrator) sanitizeTag(raw string) string {
	s := strings.ToUpper(strings.TrimSpace(raw))
	s = strings.Trim(s, "`'\"<>[]")
	if s == "" {
		return o.tax.UniversalFallback
	}
	if strictTagRe.MatchString(s) {
		return s
	}
	cands := extractTagRe.FindAllString(s, -1)
	for _, c := range cands {
		if o.tax.IsAllowed(c) {
			return c
		}
	}
	if len(cands) > 0 {
		return cands[0]
	}
	return o.tax.UniversalFallback
}

// mapTag turns a sanitized tag into the house spelling for the block's zone.
func (o *Orchestrator) mapTag(raw string, b document.Block) string {
	tag := o.sanitizeTag(raw)
	for _, p := range vendorPrefixes {
		tag = strings.TrimPrefix(tag, p)
	}
	zone := b.Meta.Zone
	prefix := b.Meta.BoxPrefix
	if prefix == "" {
		prefix = zone.BoxPrefix()
	}
	ctx := styles.Context{BoxPrefix: prefix}
	tag = o.tax.Normalize(tag, ctx)

	if m := tableListRe.FindStringSubmatch(tag); m != nil {
		switch m[1] {
		case "BL":
			tag = "TBL-" + m[2]
		default:
			tag = "T" + m[1] + "-" + m[2]
		}
	}

	switch {
	case zone == document.ZoneTable:
		tag = o.mapTableTag(tag, b)
	case b.Meta.IsReferenceZone && (b.Meta.RefHeading || refzone.HasSubheadingMarker(b.Text)):
		tag = "REFH2"
	case b.Meta.IsReferenceZone && listRunRe.MatchString(tag):
		tag = refzone.EntryTag(b.Text)
	case zone.IsBox():
		tag = o.mapBoxTag(tag, prefix)
	case zone == document.ZoneBackMatter:
		tag = o.mapBackMatterTag(tag, b)
	}
	return tag
}

func (o *Orchestrator) mapTableTag(tag string, b document.Block) string {
	if o.tax.Constraints.Allows(string(document.ZoneTable), tag) {
		return tag
	}
	switch {
	case tag == "TTL":
		return "T1"
	case tag == "TYPE":
		return "T"
	case headingTagRe.MatchString(tag):
		if b.Meta.IsHeaderRow {
			return "T2"
		}
		return "TH" + headingTagRe.FindStringSubmatch(tag)[1]
	case boxFamilyRe.MatchString(tag) || strings.HasPrefix(tag, "BL-") || strings.HasPrefix(tag, "UL-"):
		switch {
		case strings.HasSuffix(tag, "-FIRST"):
			return "TBL-FIRST"
		case strings.HasSuffix(tag, "-LAST"):
			return "TBL-LAST"
		case strings.HasSuffix(tag, "-MID") || b.Meta.HasBullet:
			return "TBL-MID"
		}
		return "T"
	case strings.HasPrefix(tag, "NL-"):
		return "TNL-" + strings.TrimPrefix(tag, "NL-")
	}
	return tag
}

func (o *Orchestrator) mapBoxTag(tag, prefix string) string {
	if prefix == "" {
		return tag
	}
	if m := numericPrefixRe.FindStringSubmatch(tag); m != nil {
		if cand := prefix + "-" + m[2]; o.tax.Allowed.Has(cand) {
			return cand
		}
		if cand := "BX" + m[1] + "-" + m[2]; o.tax.Allowed.Has(cand) {
			return cand
		}
	}
	if tag == "TYPE" || tag == "TTL" {
		return prefix + "-" + tag
	}
	if o.tax.Allowed.Has(tag) {
		return tag
	}
	if cand := prefix + "-" + tag; o.tax.Allowed.Has(cand) {
		return cand
	}
	return tag
}

// mapBackMatterTag folds figure, table and heading leakage in back matter
// into reference entries. Inside the reference span a plain heading becomes
// REFH1 or REFH2. Tags the zone accepts are kept.
func (o *Orchestrator) mapBackMatterTag(tag string, b document.Block) string {
	if o.tax.Constraints.Allows(string(document.ZoneBackMatter), tag) {
		return tag
	}
	if m := headingTagRe.FindStringSubmatch(tag); m != nil && b.Meta.IsReferenceZone {
		if m[1] == "1" {
			return "REFH1"
		}
		return "REFH2"
	}
	for _, p := range []string{"FIG-", "T", "REF", "H"} {
		if strings.HasPrefix(tag, p) {
			return refzone.EntryTag(b.Text)
		}
	}
	return tag
}
