// Package blocks adds structural features (captions, source lines, box
// markers, list runs) to zone-labelled blocks.
package blocks

import (
	"regexp"
	"strings"

	"github.com/yungbote/styletag-backend/internal/domain/document"
	"github.com/yungbote/styletag-backend/internal/ingestion/zones"
)

func compile(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(exprs))
	for _, e := range exprs {
		out = append(out, regexp.MustCompile(`(?i)`+e))
	}
	return out
}

var (
	figureCaptionRe = compile(`^figure\s*\d`, `^fig\.\s*\d`, `^<fn>`, `^<ft>`)
	tableCaptionRe  = compile(`^table\s*\d`, `^tab\.\s*\d`, `^<tab`, `^<tn>`, `^<tt>`)
	sourceLineRe    = compile(`^source:`, `^adapted from`, `^reproduced from`, `^data from`, `^courtesy of`, `^<cl>`)
	boxTitleRe      = compile(`^<bt>`, `^<bn>`, `^box\s*\d`)

	letteredItemRe = regexp.MustCompile(`^[A-Z]\s+.+`)
)

func matchAny(res []*regexp.Regexp, s string) bool {
	for _, re := range res {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

// CaptionType classifies a caption paragraph.
func CaptionType(text string) document.CaptionType {
	t := strings.TrimSpace(text)
	switch {
	case matchAny(figureCaptionRe, t):
		return document.CaptionFigure
	case matchAny(tableCaptionRe, t):
		return document.CaptionTable
	}
	return document.CaptionNone
}

func IsSourceLine(text string) bool { return matchAny(sourceLineRe, strings.TrimSpace(text)) }
func IsBoxTitle(text string) bool   { return matchAny(boxTitleRe, strings.TrimSpace(text)) }

// IsBoxLabel reports whether the whole paragraph is a box kind name ("Clinical Pearl").
func IsBoxLabel(text string) bool {
	t := strings.ToLower(strings.TrimSpace(text))
	_, ok := zones.DefaultBoxPrefixes[t]
	return ok
}

// Marker reports whether text opens or closes a box.
func Marker(text string) document.BoxMarker {
	switch {
	case zones.BoxStart(text) != "":
		return document.MarkerStart
	case zones.IsBoxEnd(text):
		return document.MarkerEnd
	}
	return document.MarkerNone
}

// Kind derives the list kind from formatting flags. Bullet beats numbered; an
// auto-list with no style hint is unordered, never numbered.
func Kind(meta document.StructuralMetadata, text string) document.ListKind {
	switch {
	case meta.HasBullet:
		return document.ListBullet
	case meta.HasNumbering:
		return document.ListNumbered
	case meta.HasXMLList:
		return document.ListUnordered
	case letteredItemRe.MatchString(strings.TrimSpace(text)):
		return document.ListUnordered
	}
	return document.ListNone
}

type runKey struct {
	kind       document.ListKind
	indent     int
	zone       document.Zone
	isTable    bool
	tableIndex int
	boxType    string
}

func keyOf(meta document.StructuralMetadata, kind document.ListKind) runKey {
	return runKey{
		kind:       kind,
		indent:     meta.Indent,
		zone:       meta.Zone,
		isTable:    meta.IsTable,
		tableIndex: meta.TableIndex,
		boxType:    meta.BoxType,
	}
}

// Extract returns copies of in with structural features set. in is not modified.
func Extract(in []document.Block) []document.Block {
	out := make([]document.Block, len(in))
	copy(out, in)

	for i := range out {
		m := &out[i].Meta
		text := out[i].Text
		m.Caption = CaptionType(text)
		m.SourceLine = IsSourceLine(text)
		m.BoxMarker = Marker(text)
		m.BoxLabel = IsBoxLabel(text)
		m.BoxTitle = IsBoxTitle(text)
		m.ListKind = Kind(*m, text)
		m.ListPosition = document.PositionNone
	}
	assignPositions(out)
	return out
}

// assignPositions labels maximal runs of consecutive list items sharing a run key.
func assignPositions(bs []document.Block) {
	for _, r := range Runs(bs) {
		for k := r[0]; k < r[1]; k++ {
			switch {
			case k == r[0]:
				bs[k].Meta.ListPosition = document.PositionFirst
			case k == r[1]-1:
				bs[k].Meta.ListPosition = document.PositionLast
			default:
				bs[k].Meta.ListPosition = document.PositionMid
			}
		}
	}
}

// Runs returns the [start, end) slice ranges of every list run, in order.
func Runs(bs []document.Block) [][2]int {
	var out [][2]int
	for i := 0; i < len(bs); {
		if bs[i].Meta.ListKind == document.ListNone {
			i++
			continue
		}
		key := keyOf(bs[i].Meta, bs[i].Meta.ListKind)
		j := i + 1
		for j < len(bs) && bs[j].Meta.ListKind != document.ListNone && keyOf(bs[j].Meta, bs[j].Meta.ListKind) == key {
			j++
		}
		out = append(out, [2]int{i, j})
		i = j
	}
	return out
}
