// Package refzone finds the contiguous bibliography span of a document.
package refzone

import (
	"regexp"
	"strings"

	"github.com/yungbote/styletag-backend/internal/domain/document"
)

var (
	inlineTagRe = regexp.MustCompile(`</?[A-Za-z][A-Za-z0-9_-]*>`)
	terminalRe  = regexp.MustCompile(`[.!?;:]\s*$`)

	headingMatches = []string{
		"references",
		"bibliography",
		"annotated bibliography",
		"suggested readings",
		"suggested reading",
		"further reading",
		"works cited",
		"literature cited",
		"cited references",
	}
	secondaryHeadings = map[string]bool{
		"sources":   true,
		"citations": true,
		"endnotes":  true,
	}

	citationStartRe = []*regexp.Regexp{
		regexp.MustCompile(`^\s*\[\s*\d+\s*\]\s*[A-Z]`),
		regexp.MustCompile(`^\s*\d+\.\s+[A-Z][a-z]+,?\s+[A-Z]`),
		regexp.MustCompile(`^\s*[A-Z][a-z]+,\s+[A-Z]\.\s*\(?\d{4}\)?`),
		regexp.MustCompile(`^\s*[A-Z][a-z]+\s+et\s+al\.?\s*\(?\d{4}\)?`),
	}
	referenceFeatureRe = []*regexp.Regexp{
		regexp.MustCompile(`\bet\s+al\.?\b`),
		regexp.MustCompile(`\b(19|20)\d{2}\b`),
		regexp.MustCompile(`(?i)\bdoi[:\s./]`),
		regexp.MustCompile(`(?i)\b(journal|proceedings|conference|press|vol\.|volume)\b`),
		regexp.MustCompile(`[,.;:]{2,}`),
		regexp.MustCompile(`https?://`),
	}

	exitTagRe = regexp.MustCompile(`(?i)<(H[1-6]|BX|NBX|TAB)`)
	refTagRe  = regexp.MustCompile(`(?i)<(REF|SR|BIBLIO)`)

	shortNumberedRe = regexp.MustCompile(`^\d+\.\s+`)
	yearRe          = regexp.MustCompile(`\b(19|20)\d{2}\b`)
	etAlRe          = regexp.MustCompile(`\bet\s+al\.?\b`)
	journalRe       = regexp.MustCompile(`(?i)\b(journal|vol\.|volume|press)\b`)
)

const (
	strongStreak   = 15
	weakStreak     = 12
	secondaryFrom  = 0.75
	densityFrom    = 0.80
	densityWindow  = 20
	densityMinimum = 16
)

// Options tunes detection. The density tier is off unless enabled.
type Options struct {
	EnableDensity bool
}

func stripTags(text string) string {
	return strings.TrimSpace(inlineTagRe.ReplaceAllString(text, ""))
}

// IsHeading reports a primary reference heading, exact or a short variant such as "Chapter References".
func IsHeading(text string) bool {
	cleaned := strings.ToLower(stripTags(text))
	if cleaned == "" {
		return false
	}
	for _, h := range headingMatches {
		if cleaned == h {
			return true
		}
	}
	if len(cleaned) > 80 || terminalRe.MatchString(cleaned) {
		return false
	}
	for _, h := range headingMatches {
		if strings.Contains(cleaned, h) {
			return true
		}
	}
	return false
}

func isSecondaryHeading(text string) bool {
	return secondaryHeadings[strings.ToLower(stripTags(text))]
}

func featureCount(t string) int {
	n := 0
	for _, re := range referenceFeatureRe {
		if re.MatchString(t) {
			n++
		}
	}
	return n
}

// LooksLikeCitation applies the strict (start pattern and two features) or
// relaxed (start pattern or three features) citation check.
func LooksLikeCitation(text string, strict bool) bool {
	t := strings.TrimSpace(text)
	if len(t) < 20 {
		return false
	}
	start := false
	for _, re := range citationStartRe {
		if re.MatchString(t) {
			start = true
			break
		}
	}
	n := featureCount(t)
	if strict {
		return start && n >= 2
	}
	return start || n >= 3
}

func hasAnyFeature(text string) bool {
	t := strings.TrimSpace(text)
	if len(t) < 15 {
		return false
	}
	return featureCount(t) > 0
}

func numberedListNotReference(text string) bool {
	t := strings.TrimSpace(text)
	if len(t) >= 50 || !shortNumberedRe.MatchString(t) {
		return false
	}
	return !(yearRe.MatchString(t) || etAlRe.MatchString(t) ||
		strings.Contains(strings.ToLower(t), "doi") || journalRe.MatchString(t))
}

// IsExitMarker reports a structural opening tag that is not reference-related.
func IsExitMarker(text string) bool {
	t := strings.TrimSpace(text)
	if t == "" {
		return false
	}
	return exitTagRe.MatchString(t) && !refTagRe.MatchString(t)
}

// Detect returns the reference span of blocks. It reads blocks only.
func Detect(blocks []document.Block, opts Options) document.ReferenceZoneSpan {
	total := len(blocks)
	start, trigger := -1, document.TriggerNone

	for i, b := range blocks {
		if IsHeading(b.Text) {
			start, trigger = i, document.TriggerHeadingMatch
			break
		}
	}

	if start < 0 {
		for i := int(float64(total) * secondaryFrom); i < total; i++ {
			if !isSecondaryHeading(blocks[i].Text) {
				continue
			}
			hits := 0
			for k := i + 1; k < total && k <= i+5; k++ {
				if LooksLikeCitation(blocks[k].Text, true) {
					hits++
				}
			}
			if hits >= 3 {
				start, trigger = i, document.TriggerSecondaryHeader
				break
			}
		}
	}

	if start < 0 && opts.EnableDensity {
		start = densityStart(blocks)
		if start >= 0 {
			trigger = document.TriggerCitationDensity
		}
	}

	if start < 0 {
		return document.EmptySpan()
	}
	end := zoneEnd(blocks, start, trigger == document.TriggerHeadingMatch)
	span := document.ReferenceZoneSpan{Trigger: trigger, StartIndex: start, IDs: make([]int, 0, end-start)}
	for _, b := range blocks[start:end] {
		span.IDs = append(span.IDs, b.ID)
	}
	return span
}

func densityStart(blocks []document.Block) int {
	total := len(blocks)
	for center := int(float64(total) * densityFrom); center < total; center++ {
		lo := center - densityWindow/2
		if lo < 0 {
			lo = 0
		}
		hi := lo + densityWindow
		if hi > total {
			hi = total
		}
		hits, falsePositive := 0, false
		for _, b := range blocks[lo:hi] {
			if LooksLikeCitation(b.Text, true) {
				hits++
			}
			if numberedListNotReference(b.Text) {
				falsePositive = true
			}
		}
		if hits >= densityMinimum && !falsePositive {
			return lo
		}
	}
	return -1
}

// zoneEnd returns the index of the first block after start that is outside the zone.
func zoneEnd(blocks []document.Block, start int, strong bool) int {
	threshold := weakStreak
	if strong {
		threshold = strongStreak
	}
	seen, streak := 0, 0
	for i := start + 1; i < len(blocks); i++ {
		t := strings.TrimSpace(blocks[i].Text)
		if IsExitMarker(t) {
			return i
		}
		if len(t) < 10 {
			continue
		}
		var refLike bool
		if strong {
			refLike = hasAnyFeature(t)
		} else {
			refLike = LooksLikeCitation(t, false)
		}
		if refLike {
			seen++
			streak = 0
		} else {
			streak++
		}
		if seen >= 3 && streak >= threshold {
			return i - streak + 1
		}
	}
	return len(blocks)
}

// MarkBlocks returns copies of blocks with IsReferenceZone set from span.
func MarkBlocks(blocks []document.Block, span document.ReferenceZoneSpan) []document.Block {
	in := span.Set()
	out := make([]document.Block, len(blocks))
	for i, b := range blocks {
		b.Meta.IsReferenceZone = in[b.ID]
		out[i] = b
	}
	return out
}
