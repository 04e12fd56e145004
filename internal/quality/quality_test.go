package quality

import (
	"fmt"
	"math"
	"testing"

	"github.com/yungbote/styletag-backend/internal/domain/document"
	"github.com/yungbote/styletag-backend/internal/styles"
)

func doc(tags []string, conf float64) ([]document.ClassificationResult, []document.Block) {
	results := make([]document.ClassificationResult, len(tags))
	blocks := make([]document.Block, len(tags))
	for i, tag := range tags {
		blocks[i] = document.Block{ID: i + 1, Text: fmt.Sprintf("Para %d", i+1), Meta: document.StructuralMetadata{Zone: document.ZoneBody}}
		results[i] = document.ClassificationResult{ID: i + 1, Tag: tag, Confidence: conf}
	}
	return results, blocks
}

func txtThenH1(total, txt int) []string {
	tags := make([]string, total)
	for i := range tags {
		if i < txt {
			tags[i] = "TXT"
		} else {
			tags[i] = "H1"
		}
	}
	return tags
}

func TestScoreActions(t *testing.T) {
	allowed := styles.NewAllowedSet("TXT", "H1")
	cases := []struct {
		txt    int
		score  int
		action Action
	}{
		{10, 94, ActionPass},
		{30, 82, ActionRetry},
		{80, 52, ActionReview},
	}
	for _, tc := range cases {
		results, blocks := doc(txtThenH1(100, tc.txt), 0.95)
		rep := Score(results, blocks, allowed)
		if rep.Score != tc.score || rep.Action != tc.action {
			t.Fatalf("txt=%d: got %d %s", tc.txt, rep.Score, rep.Action)
		}
	}
}

func TestScoreEmptyAndUnknown(t *testing.T) {
	if rep := Score(nil, nil, nil); rep.Score != 0 || rep.Action != ActionReview {
		t.Fatalf("empty: %+v", rep)
	}
	results, blocks := doc([]string{"H1", "NOT-A-STYLE"}, 0.95)
	rep := Score(results, blocks, styles.NewAllowedSet("TXT", "H1"))
	if rep.Metrics.UnknownStyleCount != 1 {
		t.Fatalf("unknown styles: %+v", rep.Metrics)
	}
}

func TestScoreLowConfidenceAndHeadings(t *testing.T) {
	results, blocks := doc([]string{"H2", "H3", "H1", "H3"}, 0.5)
	rep := Score(results, blocks, nil)
	// H2 before any H1, H3 after a reset by H1.
	if rep.Metrics.HeadingViolations != 2 || rep.Metrics.LowConfRatio != 1 {
		t.Fatalf("metrics: %+v", rep.Metrics)
	}
	if rep.Score != 100-20-10 {
		t.Fatalf("score: %d", rep.Score)
	}
}

func TestScoreBoxIntegrity(t *testing.T) {
	box := document.Zone("BOX_NBX")
	blocks := []document.Block{
		{ID: 1, Meta: document.StructuralMetadata{Zone: box, BoxMarker: document.MarkerStart}},
		{ID: 2, Meta: document.StructuralMetadata{Zone: box}},
		{ID: 3, Meta: document.StructuralMetadata{Zone: box}},
		{ID: 4, Meta: document.StructuralMetadata{Zone: box, BoxMarker: document.MarkerEnd}},
		{ID: 5, Meta: document.StructuralMetadata{Zone: document.ZoneBody}},
	}
	mk := func(tags ...string) []document.ClassificationResult {
		out := make([]document.ClassificationResult, len(tags))
		for i, tag := range tags {
			out[i] = document.ClassificationResult{ID: i + 1, Tag: tag, Confidence: 0.9}
		}
		return out
	}

	if got := Score(mk("PMI", "NBX-TYPE", "NBX-TTL", "PMI", "H1"), blocks, nil).Metrics.BoxIntegrityViolations; got != 0 {
		t.Fatalf("complete box: %d", got)
	}
	if got := Score(mk("PMI", "NBX-TYPE", "NBX-TXT", "PMI", "H1"), blocks, nil).Metrics.BoxIntegrityViolations; got != 1 {
		t.Fatalf("box without title: %d", got)
	}

	merged := append([]document.Block(nil), blocks...)
	merged[2].Meta.BoxLabel = true
	merged[2].Meta.BoxTitle = true
	if got := Score(mk("PMI", "NBX-TYPE", "NBX-TTL", "PMI", "H1"), merged, nil).Metrics.BoxIntegrityViolations; got != 1 {
		t.Fatalf("merged label and title: %d", got)
	}
}

func TestScoreOrphans(t *testing.T) {
	results, blocks := doc([]string{"FIG-LEG", "TXT", "TXT", "TXT", "TXT", "TFN", "TXT"}, 0.9)
	m := Score(results, blocks, nil).Metrics
	if m.FigureIntegrityViolations != 1 || m.TableIntegrityViolations != 1 {
		t.Fatalf("orphans: %+v", m)
	}
	results, blocks = doc([]string{"FIG-LEG", "FIG-SRC", "T", "TFN"}, 0.9)
	m = Score(results, blocks, nil).Metrics
	if m.FigureIntegrityViolations != 0 || m.TableIntegrityViolations != 0 {
		t.Fatalf("anchored: %+v", m)
	}
}

func TestRouteProfile(t *testing.T) {
	block := func(text string, meta document.StructuralMetadata) document.Block {
		return document.Block{Text: text, Meta: meta}
	}
	cases := []struct {
		name   string
		blocks []document.Block
		want   Profile
	}{
		{"reference", []document.Block{
			block("1. Smith et al. (2020). Journal of Testing.", document.StructuralMetadata{}),
			block("[2] Doe, J. doi:10.1000/xyz", document.StructuralMetadata{}),
		}, ProfileReferenceHeavy},
		{"table", []document.Block{
			block("Table 1.1 Sample", document.StructuralMetadata{IsTable: true}),
			block("Cell", document.StructuralMetadata{IsTable: true}),
			block("Cell", document.StructuralMetadata{IsTable: true}),
		}, ProfileTableHeavy},
		{"box", []document.Block{
			block("Box: Clinical Pearl", document.StructuralMetadata{Zone: "BOX_NBX"}),
			block("Key Points", document.StructuralMetadata{}),
		}, ProfileBoxHeavy},
		{"default", []document.Block{
			block("Introduction", document.StructuralMetadata{}),
			block("Body text", document.StructuralMetadata{}),
		}, ProfileDefault},
		{"empty", nil, ProfileDefault},
	}
	for _, tc := range cases {
		if got := RouteProfile(tc.blocks); got != tc.want {
			t.Fatalf("%s: got %s", tc.name, got)
		}
		if tc.want.Hint() == "" {
			t.Fatalf("%s: empty hint", tc.name)
		}
	}
}

func TestSuspicious(t *testing.T) {
	results := []document.ClassificationResult{
		{ID: 1, Tag: "H1", Confidence: 0.9},
		{ID: 2, Tag: "H2", Confidence: 0.4},
		{ID: 3, Tag: "TXT", Confidence: 0.4},
		{ID: 4, Tag: "TXT", Confidence: 0.2},
	}
	blocks := []document.Block{{ID: 3, Text: "  spaced \n text  "}}
	got := Suspicious(results, blocks, 3)
	if len(got) != 3 || got[0].ID != 4 || got[1].ID != 3 || got[2].ID != 2 {
		t.Fatalf("order: %+v", got)
	}
	if got[1].TextPreview != "spaced text" {
		t.Fatalf("preview: %q", got[1].TextPreview)
	}
}

func TestSplitByConfidence(t *testing.T) {
	results := []document.ClassificationResult{
		{ID: 1, Tag: "CN", Confidence: 0.99},
		{ID: 2, Tag: "CT", Confidence: 0.98},
		{ID: 3, Tag: "H1", Confidence: 0.75},
		{ID: 4, Tag: "TXT-FLUSH", Confidence: 0.85},
		{ID: 5, Tag: "BL-FIRST", Confidence: 0.60},
	}
	blocks := []document.Block{{ID: 3, Text: "Overview"}, {ID: 5, Text: "1. First item"}}
	allowed := styles.NewAllowedSet("CN", "CT", "H1", "H2", "TXT-FLUSH", "BL-FIRST")

	got := SplitByConfidence(results, blocks, allowed, 0)
	if got.Threshold != DefaultAutoApplyThreshold {
		t.Fatalf("threshold: %v", got.Threshold)
	}
	if fmt.Sprint(got.AutoApply) != "[1 2 4]" {
		t.Fatalf("auto apply: %v", got.AutoApply)
	}
	if len(got.NeedsReview) != 2 || got.NeedsReview[0].ID != 5 || got.NeedsReview[1].ID != 3 {
		t.Fatalf("review order: %+v", got.NeedsReview)
	}
	if got.NeedsReview[1].TextPreview != "Overview" || fmt.Sprint(got.NeedsReview[1].Alternatives) != "[H2 CT]" {
		t.Fatalf("review item: %+v", got.NeedsReview[1])
	}
	if got.NeedsReview[0].Alternatives != nil {
		t.Fatalf("alternatives outside vocabulary: %v", got.NeedsReview[0].Alternatives)
	}
	s := got.Summary
	if s.Total != 5 || s.AutoApplied != 3 || s.NeedsReview != 2 || s.AutoApplyPercent != 60 {
		t.Fatalf("summary: %+v", s)
	}
	if math.Abs(s.AverageConfidence-0.848) > 1e-9 {
		t.Fatalf("average: %v", s.AverageConfidence)
	}

	strict := SplitByConfidence(results, blocks, allowed, 0.99)
	if strict.Summary.AutoApplied != 1 || strict.Summary.NeedsReview != 4 {
		t.Fatalf("custom threshold: %+v", strict.Summary)
	}
	empty := SplitByConfidence(nil, nil, nil, 0.9)
	if empty.Summary.Total != 0 || empty.Summary.AverageConfidence != 0 || empty.AutoApply == nil {
		t.Fatalf("empty split: %+v", empty)
	}
}
