package refzone

import (
	"fmt"
	"testing"

	"github.com/yungbote/styletag-backend/internal/domain/document"
)

func fromTexts(texts ...string) []document.Block {
	out := make([]document.Block, len(texts))
	for i, t := range texts {
		out[i] = document.Block{ID: i + 1, Text: t, Meta: document.StructuralMetadata{Zone: document.ZoneBody}}
	}
	return out
}

func citation(n int) string {
	return fmt.Sprintf("Smith, J. (20%02d). Study number %d. Journal of Anatomy, 5, 1-10.", n%20, n)
}

func filler(n int) string {
	return fmt.Sprintf("Body paragraph %d discusses anatomy in plain words", n)
}

func assertContiguous(t *testing.T, blocks []document.Block, span document.ReferenceZoneSpan) {
	t.Helper()
	for i, id := range span.IDs {
		if id != blocks[span.StartIndex+i].ID {
			t.Fatalf("span not contiguous at %d: %v", i, span.IDs)
		}
	}
}

func TestHeadingTriggerEndsAtBoxMarker(t *testing.T) {
	blocks := fromTexts(
		"References",
		"Smith, J. (2020). doi:10.1/x",
		"Jones et al. (2019). vol. 5",
		"<BX4-1>",
		"Box text",
	)
	span := Detect(blocks, Options{})
	if span.Trigger != document.TriggerHeadingMatch || span.StartIndex != 0 {
		t.Fatalf("trigger/start: %+v", span)
	}
	want := []int{1, 2, 3}
	if len(span.IDs) != len(want) {
		t.Fatalf("ids: %v", span.IDs)
	}
	for i := range want {
		if span.IDs[i] != want[i] {
			t.Fatalf("ids: %v", span.IDs)
		}
	}
	if span.Contains(4) {
		t.Fatalf("box marker must end the zone")
	}
	assertContiguous(t, blocks, span)
}

func TestNoTrigger(t *testing.T) {
	span := Detect(fromTexts(filler(1), filler(2)), Options{})
	if span.Trigger != document.TriggerNone || span.StartIndex != -1 || len(span.IDs) != 0 {
		t.Fatalf("expected empty span, got %+v", span)
	}
	if span := Detect(nil, Options{EnableDensity: true}); span.StartIndex != -1 {
		t.Fatalf("nil blocks: %+v", span)
	}
}

func TestSecondaryHeadingNeedsCitations(t *testing.T) {
	var texts []string
	for i := 0; i < 20; i++ {
		texts = append(texts, filler(i))
	}
	texts = append(texts, "Sources")
	for i := 0; i < 5; i++ {
		texts = append(texts, citation(i))
	}
	blocks := fromTexts(texts...)
	span := Detect(blocks, Options{})
	if span.Trigger != document.TriggerSecondaryHeader || span.StartIndex != 20 {
		t.Fatalf("secondary trigger: %+v", span)
	}
	if len(span.IDs) != 6 {
		t.Fatalf("ids: %v", span.IDs)
	}

	// Same heading followed by prose is rejected.
	texts = texts[:21]
	for i := 0; i < 5; i++ {
		texts = append(texts, filler(100+i))
	}
	if span := Detect(fromTexts(texts...), Options{}); span.Trigger != document.TriggerNone {
		t.Fatalf("unvalidated secondary heading accepted: %+v", span)
	}
}

func TestStreakEndsStrongZone(t *testing.T) {
	texts := []string{"Bibliography"}
	for i := 0; i < 4; i++ {
		texts = append(texts, citation(i))
	}
	for i := 0; i < 16; i++ {
		texts = append(texts, filler(i))
	}
	blocks := fromTexts(texts...)
	span := Detect(blocks, Options{})
	if span.StartIndex != 0 || len(span.IDs) != 5 {
		t.Fatalf("span: %+v", span)
	}
	assertContiguous(t, blocks, span)
}

func TestDensityTier(t *testing.T) {
	var texts []string
	for i := 0; i < 5; i++ {
		texts = append(texts, filler(i))
	}
	for i := 0; i < 40; i++ {
		texts = append(texts, citation(i))
	}
	blocks := fromTexts(texts...)
	if span := Detect(blocks, Options{}); span.Trigger != document.TriggerNone {
		t.Fatalf("density tier must be off by default: %+v", span)
	}
	span := Detect(blocks, Options{EnableDensity: true})
	if span.Trigger != document.TriggerCitationDensity || span.StartIndex != 26 || len(span.IDs) != 19 {
		t.Fatalf("density span: trigger=%s start=%d n=%d", span.Trigger, span.StartIndex, len(span.IDs))
	}
	assertContiguous(t, blocks, span)
}

func TestExitMarker(t *testing.T) {
	cases := map[string]bool{
		"<H2>Next section": true,
		"<NBX-TTL>":        true,
		"<TAB3.1>":         true,
		"</H1>":            false,
		"<REF-N>":          false,
		"plain text":       false,
	}
	for text, want := range cases {
		if got := IsExitMarker(text); got != want {
			t.Fatalf("IsExitMarker(%q): got %v", text, got)
		}
	}
}

func TestMarkBlocks(t *testing.T) {
	blocks := fromTexts("References", citation(1), "<H1>Appendix")
	span := Detect(blocks, Options{})
	marked := MarkBlocks(blocks, span)
	if !marked[0].Meta.IsReferenceZone || !marked[1].Meta.IsReferenceZone || marked[2].Meta.IsReferenceZone {
		t.Fatalf("marks: %v %v %v", marked[0].Meta.IsReferenceZone, marked[1].Meta.IsReferenceZone, marked[2].Meta.IsReferenceZone)
	}
	if blocks[0].Meta.IsReferenceZone {
		t.Fatalf("input mutated")
	}
}
