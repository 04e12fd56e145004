// Package repair is the deterministic validator that runs after
// classification. It rewrites tags through a fixed list of pure rules so the
// final output honours the vocabulary, zone constraints, list runs, heading
// hierarchy and reference-zone semantics.
package repair

import (
	"sort"
	"strings"

	"github.com/yungbote/styletag-backend/internal/domain/document"
	"github.com/yungbote/styletag-backend/internal/ingestion/refzone"
	"github.com/yungbote/styletag-backend/internal/styles"
)

const (
	// RepairedConfidenceCap bounds the confidence of any rewritten result.
	RepairedConfidenceCap = 0.80
	// TrustedConfidence marks in-vocabulary tags the heading pass never demotes.
	TrustedConfidence = 0.90
	promoteConfidence = 0.70
	anchorWindow      = 10
	maxPasses         = 4
)

// Options configures one Repair call. Allowed defaults to the taxonomy's vocabulary.
type Options struct {
	Taxonomy *styles.Taxonomy
	Allowed  styles.AllowedSet
	Span     document.ReferenceZoneSpan
}

// Context is the read-only state every rule sees. Blocks is index-aligned with
// the result slice a rule receives.
type Context struct {
	Taxonomy *styles.Taxonomy
	Allowed  styles.AllowedSet
	Blocks   []document.Block
	inRef    []bool
}

// Rule is one pure rewrite step.
type Rule struct {
	Name  string
	Apply func([]document.ClassificationResult, *Context) []document.ClassificationResult
}

// Rules returns the rewrite steps in the order Repair applies them.
func Rules() []Rule {
	return []Rule{
		{Name: "canonicalize", Apply: canonicalize},
		{Name: "force-fix", Apply: forceFix},
		{Name: "zone-constraints", Apply: enforceZones},
		{Name: "list-position", Apply: enforceListPositions},
		{Name: "heading-hierarchy", Apply: enforceHeadings},
		{Name: "reference-zone", Apply: enforceReferenceZone},
		{Name: "anchor-proximity", Apply: enforceAnchors},
		{Name: "membership", Apply: enforceMembership},
	}
}

// Repair returns one result per block in block order. Results for unknown ids
// follow, sorted by id. A block without a result gets the universal fallback at
// zero confidence. The rule list is applied until the output stops changing,
// so repairing the output again is a no-op.
func Repair(results []document.ClassificationResult, blocks []document.Block, opts Options) []document.ClassificationResult {
	if opts.Taxonomy == nil {
		out := make([]document.ClassificationResult, len(results))
		copy(out, results)
		return out
	}
	ctx, cur := newContext(results, blocks, opts)
	rules := Rules()
	for pass := 0; pass < maxPasses; pass++ {
		next := cur
		for _, r := range rules {
			next = r.Apply(next, ctx)
		}
		if equal(next, cur) {
			return next
		}
		cur = next
	}
	return cur
}

func newContext(results []document.ClassificationResult, blocks []document.Block, opts Options) (*Context, []document.ClassificationResult) {
	allowed := opts.Allowed
	if len(allowed) == 0 {
		allowed = opts.Taxonomy.Allowed
	}
	set := document.NewResultSet(results)
	ctx := &Context{Taxonomy: opts.Taxonomy, Allowed: allowed}
	out := make([]document.ClassificationResult, 0, len(blocks)+len(results))
	seen := make(map[int]bool, len(blocks))
	for _, b := range blocks {
		seen[b.ID] = true
		r, ok := set[b.ID]
		if !ok {
			r = document.ClassificationResult{ID: b.ID, Tag: opts.Taxonomy.UniversalFallback, Repaired: true}
			r.AddReason("missing-result")
		}
		ctx.Blocks = append(ctx.Blocks, b)
		out = append(out, r)
	}
	var extra []int
	for id := range set {
		if !seen[id] {
			extra = append(extra, id)
		}
	}
	sort.Ints(extra)
	for _, id := range extra {
		ctx.Blocks = append(ctx.Blocks, document.Block{ID: id})
		out = append(out, set[id])
	}

	span := opts.Span.Set()
	ctx.inRef = make([]bool, len(ctx.Blocks))
	for i, b := range ctx.Blocks {
		ctx.inRef[i] = span[b.ID] || b.Meta.IsReferenceZone
	}
	return ctx, out
}

func equal(a, b []document.ClassificationResult) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func clone(in []document.ClassificationResult) []document.ClassificationResult {
	out := make([]document.ClassificationResult, len(in))
	copy(out, in)
	return out
}

// rewrite sets tag, caps confidence and records reason. It is a no-op when
// the tag is unchanged.
func rewrite(r *document.ClassificationResult, tag, reason string) {
	if r.Tag == tag {
		return
	}
	r.Tag = tag
	r.Repaired = true
	if r.Confidence > RepairedConfidenceCap {
		r.Confidence = RepairedConfidenceCap
	}
	r.AddReason(reason)
}

func zoneOf(b document.Block) document.Zone {
	if b.Meta.Zone == "" {
		return document.ZoneBody
	}
	return b.Meta.Zone
}

func (c *Context) boxPrefix(b document.Block) string {
	if b.Meta.BoxPrefix != "" {
		return b.Meta.BoxPrefix
	}
	if p := zoneOf(b).BoxPrefix(); p != "" {
		return p
	}
	if b.Meta.BoxType != "" {
		return c.Taxonomy.BoxPrefixFor(b.Meta.BoxType)
	}
	return ""
}

// valid reports whether tag is in the vocabulary and allowed in the block's zone.
func (c *Context) valid(b document.Block, tag string) bool {
	return c.Allowed.Has(tag) && c.Taxonomy.Constraints.Allows(string(zoneOf(b)), tag)
}

// trusted reports in-vocabulary tags the model was confident about.
func (c *Context) trusted(r document.ClassificationResult) bool {
	return r.Confidence >= TrustedConfidence && c.Allowed.Has(r.Tag)
}

// forcedTag is the tag structural metadata dictates regardless of the model.
func (c *Context) forcedTag(b document.Block) (string, string, bool) {
	m := b.Meta
	switch {
	case m.BoxMarker == document.MarkerStart || m.BoxMarker == document.MarkerEnd:
		return c.Taxonomy.Sentinel, "box-marker", true
	case zoneOf(b) == document.ZoneMetadata:
		return c.Taxonomy.Sentinel, "metadata-zone", true
	case m.SourceLine:
		return "TSN", "source-line", true
	case m.Caption == document.CaptionTable:
		return "T1", "table-caption", true
	case m.Caption == document.CaptionFigure:
		return "FIG-LEG", "figure-caption", true
	}
	if zoneOf(b).IsBox() {
		prefix := c.boxPrefix(b)
		switch {
		case m.BoxLabel:
			return prefix + "-TYPE", "box-type-label", true
		case m.BoxTitle:
			return prefix + "-TTL", "box-title", true
		}
	}
	return "", "", false
}

func (c *Context) isForced(b document.Block) bool {
	_, _, ok := c.forcedTag(b)
	return ok
}

// listCode is the style code for a list kind.
func listCode(kind document.ListKind) string {
	switch kind {
	case document.ListBullet:
		return "BL"
	case document.ListNumbered:
		return "NL"
	default:
		return "UL"
	}
}

// listFamily is the list base for a block's zone, e.g. TBL, NBX-NL, UL.
func (c *Context) listFamily(b document.Block, kind document.ListKind) string {
	code := listCode(kind)
	zone := zoneOf(b)
	switch {
	case zone == document.ZoneTable:
		return "T" + code
	case zone.IsBox():
		if p := c.boxPrefix(b); p != "" {
			return p + "-" + code
		}
	}
	return code
}

// zoneFallback is the deterministic tag for a block whose tag is not valid in its zone.
func (c *Context) zoneFallback(r document.ClassificationResult, b document.Block) string {
	zone := zoneOf(b)
	var cands []string
	if list := c.metaListTag(b, ""); list != "" {
		cands = append(cands, list)
	}
	switch {
	case zone == document.ZoneTable:
		switch {
		case looksLikeTableFootnote(b.Text):
			cands = append(cands, "TFN")
		case b.Meta.IsHeaderRow:
			cands = append(cands, "T2")
		case b.Meta.IsFirstColumn:
			cands = append(cands, "T4")
		case looksLikeTableHeading(b.Text) && r.Confidence < TrustedConfidence:
			cands = append(cands, "T4")
		}
		cands = append(cands, "T")
	case zone == document.ZoneBackMatter:
		cands = append(cands, refzone.EntryTag(b.Text), "REF-U", "REF-N", "BM-TTL")
	case zone == document.ZoneMetadata:
		cands = append(cands, c.Taxonomy.Sentinel)
	case zone.IsBox():
		if p := c.boxPrefix(b); p != "" {
			cands = append(cands, p+"-TXT")
		}
	}
	cands = append(cands, c.Taxonomy.UniversalFallback)
	for _, cand := range cands {
		if c.valid(b, cand) {
			return cand
		}
	}
	allowed := c.Taxonomy.Constraints.Restrict(string(zone), c.Allowed)
	if len(allowed) == 0 {
		allowed = c.Allowed
	}
	tag, _ := c.Taxonomy.EnforceIn(cands[0], allowed)
	return tag
}

// metaListTag is the list tag the block's metadata implies, or "" when the
// block is not a positioned list item or the tag is unavailable. current keeps
// the family of an existing list tag when the kind signal is ambiguous.
func (c *Context) metaListTag(b document.Block, current string) string {
	kind, pos := b.Meta.ListKind, b.Meta.ListPosition
	if kind == document.ListNone || pos == document.PositionNone {
		return ""
	}
	var cands []string
	if current != "" && c.Taxonomy.Normalizer.IsListTag(current) {
		base := current[:strings.LastIndex(current, "-")]
		if kind == document.ListUnordered {
			cands = append(cands, base+"-"+string(pos))
		} else if swapped, ok := swapListKind(base, listCode(kind)); ok {
			cands = append(cands, swapped+"-"+string(pos))
		}
	}
	cands = append(cands, c.listFamily(b, kind)+"-"+string(pos))
	for _, cand := range cands {
		if c.valid(b, cand) {
			return cand
		}
	}
	return ""
}

// swapListKind replaces the kind code in the last segment of a list base:
// KT-BL with NL gives KT-NL, TBL with NL gives TNL.
func swapListKind(base, code string) (string, bool) {
	prefix, seg := "", base
	if i := strings.LastIndex(base, "-"); i >= 0 {
		prefix, seg = base[:i+1], base[i+1:]
	}
	table := strings.HasPrefix(seg, "T") && len(seg) >= 3
	if table {
		seg = seg[1:]
	}
	if len(seg) < 2 {
		return "", false
	}
	switch seg[:2] {
	case "BL", "NL", "UL":
	default:
		return "", false
	}
	seg = code + seg[2:]
	if table {
		seg = "T" + seg
	}
	return prefix + seg, true
}

// isGeneric reports body-text style tags a structural signal may override.
func (c *Context) isGeneric(tag string) bool {
	switch tag {
	case c.Taxonomy.UniversalFallback, "TXT", "TXT-FLUSH", "T", "TD":
		return true
	}
	return strings.HasSuffix(tag, "-TXT") || strings.HasSuffix(tag, "-TXT-FLUSH")
}
