package repair

import (
	"strings"

	"github.com/yungbote/styletag-backend/internal/domain/document"
	"github.com/yungbote/styletag-backend/internal/ingestion/refzone"
	"github.com/yungbote/styletag-backend/internal/styles"
)

func canonicalize(in []document.ClassificationResult, c *Context) []document.ClassificationResult {
	out := clone(in)
	for i := range out {
		b := c.Blocks[i]
		tag := c.Taxonomy.Normalize(out[i].Tag, styles.Context{BoxPrefix: c.boxPrefix(b)})
		if tag == "" {
			tag = c.Taxonomy.UniversalFallback
		}
		rewrite(&out[i], tag, "style-canonicalize")
	}
	return out
}

func forceFix(in []document.ClassificationResult, c *Context) []document.ClassificationResult {
	out := clone(in)
	for i := range out {
		if tag, reason, ok := c.forcedTag(c.Blocks[i]); ok {
			rewrite(&out[i], tag, reason)
		}
	}
	return out
}

var headingLevelTags = map[string]string{"H1": "1", "H2": "2", "H3": "3", "H4": "4", "H5": "5", "H6": "6"}

// enforceZones remaps tags that are not valid in their zone: fallback chain
// first, then a zone-specific spelling, then the zone fallback.
func enforceZones(in []document.ClassificationResult, c *Context) []document.ClassificationResult {
	out := clone(in)
	for i := range out {
		b := c.Blocks[i]
		zone := zoneOf(b)
		tag := out[i].Tag
		if want, ok := c.refHeading(i, tag); ok {
			rewrite(&out[i], want, "ref-zone-heading")
			continue
		}
		if !c.Taxonomy.Constraints.Constrained(string(zone)) || c.Taxonomy.Constraints.Allows(string(zone), tag) {
			continue
		}
		if c.isForced(b) && c.Allowed.Has(tag) {
			continue
		}
		if alias, ok := c.zoneAlias(tag, b); ok {
			rewrite(&out[i], alias, "zone-alias")
			continue
		}
		rewrite(&out[i], c.zoneFallback(out[i], b), "zone-fallback")
	}
	return out
}

func (c *Context) zoneAlias(tag string, b document.Block) (string, bool) {
	var cands []string
	zone := zoneOf(b)
	switch {
	case zone == document.ZoneTable:
		if lvl, ok := headingLevelTags[tag]; ok {
			cands = append(cands, "TH"+lvl)
		}
		for _, code := range []string{"BL-", "NL-", "UL-"} {
			if strings.HasPrefix(tag, code) {
				cands = append(cands, "T"+tag)
			}
		}
	case zone.IsBox():
		if p := c.boxPrefix(b); p != "" && !strings.HasPrefix(tag, p+"-") {
			cands = append(cands, p+"-"+tag)
		}
	}
	cands = append(cands, c.Taxonomy.Chains[tag]...)
	for _, cand := range cands {
		if c.valid(b, cand) {
			return cand, true
		}
	}
	return "", false
}

// enforceListPositions aligns list tags with the run positions computed at
// ingestion. An unordered signal never changes the kind of an existing list tag.
func enforceListPositions(in []document.ClassificationResult, c *Context) []document.ClassificationResult {
	out := clone(in)
	for i := range out {
		b := c.Blocks[i]
		if c.inRef[i] || c.isForced(b) {
			continue
		}
		tag := out[i].Tag
		if !c.Taxonomy.Normalizer.IsListTag(tag) && !c.isGeneric(tag) {
			continue
		}
		if want := c.metaListTag(b, tag); want != "" {
			rewrite(&out[i], want, "list-position")
		}
	}
	return out
}

// enforceHeadings walks the plain heading tags in document order. Levels
// above 3 clamp to 3 and no heading may sit more than one level below the
// deepest open one. A level-2 heading without a level-1 before it is promoted,
// or demoted to body text when the model was unsure and the tag is untrusted.
func enforceHeadings(in []document.ClassificationResult, c *Context) []document.ClassificationResult {
	out := clone(in)
	open := 0
	for i := range out {
		lvlStr, ok := headingLevelTags[out[i].Tag]
		if !ok {
			continue
		}
		level := int(lvlStr[0] - '0')
		if level > 3 {
			level = 3
		}
		if level > open+1 {
			if open == 0 && level == 2 && out[i].Confidence < promoteConfidence && !c.trusted(out[i]) {
				rewrite(&out[i], c.Taxonomy.UniversalFallback, "heading-hierarchy")
				continue
			}
			level = open + 1
		}
		rewrite(&out[i], "H"+string(rune('0'+level)), "heading-hierarchy")
		open = level
	}
	return out
}

var referenceHeadingTags = map[string]bool{
	"REFH1": true, "REFH2": true, "SRH1": true, "SR": true, "BM-TTL": true,
}

// refHeading is the heading tag for a block inside the reference span. A
// <ref-h2> marker or ref-heading metadata forces REFH2. A plain heading tag
// on text that does not read as an entry becomes REFH1 for level 1 and REFH2
// below it.
func (c *Context) refHeading(i int, tag string) (string, bool) {
	if !c.inRef[i] {
		return "", false
	}
	b := c.Blocks[i]
	var want string
	if b.Meta.RefHeading || refzone.HasSubheadingMarker(b.Text) {
		want = "REFH2"
	} else if lvl, ok := headingLevelTags[tag]; ok && !looksLikeReferenceEntry(b.Text) {
		want = "REFH2"
		if lvl == "1" {
			want = "REFH1"
		}
	} else {
		return "", false
	}
	if !c.valid(b, want) {
		return "", false
	}
	return want, true
}

// enforceReferenceZone rewrites list-like, generic and reference-like
// paragraphs inside the reference span to REF-N or REF-U. Marked reference
// sub-headings become REFH2; other reference headings stay.
func enforceReferenceZone(in []document.ClassificationResult, c *Context) []document.ClassificationResult {
	out := clone(in)
	for i := range out {
		if !c.inRef[i] {
			continue
		}
		b := c.Blocks[i]
		tag := out[i].Tag
		if want, ok := c.refHeading(i, tag); ok {
			rewrite(&out[i], want, "ref-zone-heading")
			continue
		}
		if referenceHeadingTags[tag] || c.isForced(b) {
			continue
		}
		listLike := c.Taxonomy.Normalizer.IsListTag(tag) || strings.HasPrefix(tag, "REF-")
		if !listLike && !c.isGeneric(tag) && !looksLikeReferenceEntry(b.Text) {
			continue
		}
		if _, heading := headingLevelTags[tag]; heading && !looksLikeReferenceEntry(b.Text) {
			continue
		}
		want := refzone.EntryTag(b.Text)
		if !c.Allowed.Has(want) {
			continue
		}
		rewrite(&out[i], want, "ref-zone")
	}
	return out
}

var (
	dependentTags = map[string]bool{
		"TFN": true, "TFN-FIRST": true, "TFN-MID": true, "TFN-LAST": true,
		"TSN": true, "FIG-SRC": true, "FIG-CRED": true, "UNFIG-SRC": true,
	}
	anchorTags = map[string]bool{
		"FIG-LEG": true, "UNFIG-LEG": true, "T1": true, "T2": true, "T4": true, "T": true, "TD": true,
	}
)

func isAnchor(tag string, b document.Block) bool {
	if b.Meta.IsTable || b.Meta.Caption != document.CaptionNone {
		return true
	}
	return anchorTags[tag] || strings.HasPrefix(tag, "TH") || strings.HasPrefix(tag, "TBL-")
}

// enforceAnchors downgrades footnote and source tags with no caption, figure
// or table tag within anchorWindow paragraphs. Table cells and metadata-driven
// tags are exempt.
func enforceAnchors(in []document.ClassificationResult, c *Context) []document.ClassificationResult {
	out := clone(in)
	for i := range out {
		b := c.Blocks[i]
		if !dependentTags[out[i].Tag] || b.Meta.IsTable || c.isForced(b) {
			continue
		}
		found := false
		lo, hi := i-anchorWindow, i+anchorWindow
		if lo < 0 {
			lo = 0
		}
		if hi > len(out)-1 {
			hi = len(out) - 1
		}
		for j := lo; j <= hi && !found; j++ {
			if j != i && isAnchor(in[j].Tag, c.Blocks[j]) {
				found = true
			}
		}
		if found {
			continue
		}
		want := c.Taxonomy.UniversalFallback
		if !c.valid(b, want) {
			want = c.zoneFallback(out[i], b)
		}
		rewrite(&out[i], want, "anchor-proximity")
	}
	return out
}

// enforceMembership is the backstop: every tag ends in the vocabulary and,
// where the zone is constrained, in the zone.
func enforceMembership(in []document.ClassificationResult, c *Context) []document.ClassificationResult {
	out := clone(in)
	for i := range out {
		b := c.Blocks[i]
		if !c.Allowed.Has(out[i].Tag) {
			tag, _ := c.Taxonomy.EnforceIn(out[i].Tag, c.Allowed)
			rewrite(&out[i], tag, "not-allowed")
		}
		if !c.Taxonomy.Constraints.Allows(string(zoneOf(b)), out[i].Tag) && !c.isForced(b) {
			rewrite(&out[i], c.zoneFallback(out[i], b), "zone-fallback")
		}
	}
	return out
}
