package classify

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/yungbote/styletag-backend/internal/cache"
	"github.com/yungbote/styletag-backend/internal/domain/document"
	"github.com/yungbote/styletag-backend/internal/platform/llm/llmtest"
	"github.com/yungbote/styletag-backend/internal/platform/logger"
	"github.com/yungbote/styletag-backend/internal/quality"
	"github.com/yungbote/styletag-backend/internal/rules"
	"github.com/yungbote/styletag-backend/internal/styles"
)

const (
	passReply   = `{"items":[{"id":1,"tag":"CN","confidence":99},{"id":2,"tag":"CT","confidence":97},{"id":3,"tag":"H1","confidence":95}]}`
	retryReply  = `{"items":[{"id":1,"tag":"CN","confidence":99},{"id":2,"tag":"CT","confidence":97},{"id":3,"tag":"TXT","confidence":95}]}`
	reviewReply = `{"items":[{"id":1,"tag":"TXT","confidence":90},{"id":2,"tag":"TXT","confidence":90},{"id":3,"tag":"TXT","confidence":90}]}`
)

func newOrchestrator(t *testing.T, cfg Config) *Orchestrator {
	t.Helper()
	tax, err := styles.LoadDefault()
	if err != nil {
		t.Fatalf("LoadDefault: %v", err)
	}
	cfg.Taxonomy = tax
	o, err := New(logger.Nop(), cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return o
}

func chapterBlocks() []document.Block {
	return []document.Block{
		{ID: 1, Text: "1", Meta: document.StructuralMetadata{Zone: document.ZoneFrontMatter}},
		{ID: 2, Text: "The Heart", Meta: document.StructuralMetadata{Zone: document.ZoneFrontMatter}},
		{ID: 3, Text: "Overview", Meta: document.StructuralMetadata{Zone: document.ZoneBody}},
	}
}

func TestDecodeStages(t *testing.T) {
	cases := []struct {
		name  string
		text  string
		stage Stage
		ids   []int
	}{
		{"object", `{"items":[{"id":1,"tag":"H1","confidence":90}]}`, StageDirect, []int{1}},
		{"array", `[{"id":1,"tag":"H1","confidence":90},{"id":2,"tag":"TXT","confidence":80}]`, StageDirect, []int{1, 2}},
		{"prose", "Here you go:\n[{\"id\":\"2\",\"tag\":\"TXT\",\"confidence\":\"80\"}]\nThanks", StageBracket, []int{2}},
		{"truncated", "```json\n[{\"id\":1,\"tag\":\"H1\",\"confidence\":90},{\"id\":2,\"tag\":\"TX", StageTruncation, []int{1}},
		{"salvage", `[{"id": 1, "tag": "H1", "confidence": 88, "reasoning": "unterminated}`, StageSalvage, []int{1}},
	}
	for _, tc := range cases {
		items, stage, err := decode(tc.text)
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if stage != tc.stage {
			t.Fatalf("%s: stage %s, want %s", tc.name, stage, tc.stage)
		}
		if len(items) != len(tc.ids) {
			t.Fatalf("%s: items %+v", tc.name, items)
		}
		for i, id := range tc.ids {
			if items[i].ID != id {
				t.Fatalf("%s: item %d id %d", tc.name, i, items[i].ID)
			}
		}
	}

	items, _, _ := decode(`[{"id":1,"tag":"H1","confidence":90},{"id":2,"tag":"H2","confidence":0.7},{"id":3,"tag":"H3","confidence":150}]`)
	if items[0].Confidence != 0.9 || items[1].Confidence != 0.7 || items[2].Confidence != 1 {
		t.Fatalf("confidence scaling: %+v", items)
	}
	items, _, _ = decode(`[{"id":1,"tag":"TXT","confidence":1},{"id":2,"tag":"TXT","confidence":1.0},{"id":3,"tag":"TXT","confidence":"85%"},{"id":4,"tag":"TXT","confidence":0}]`)
	if items[0].Confidence != 0.01 || items[1].Confidence != 1 || items[2].Confidence != 0.85 || items[3].Confidence != 0 {
		t.Fatalf("integer confidences are percent: %+v", items)
	}
	if items, stage, _ := decode(`[{"id": 5, "tag": "H1", "confidence": 1, "reasoning": "cut`); stage != StageSalvage || items[0].Confidence != 0.01 {
		t.Fatalf("salvaged integer confidence: %s %+v", stage, items)
	}
	for _, bad := range []string{"", "I cannot help with that.", "{\"note\":\"no array\"}"} {
		if _, _, err := decode(bad); !errors.Is(err, ErrUnparseable) {
			t.Fatalf("decode(%q): %v", bad, err)
		}
	}
}

func TestMapTag(t *testing.T) {
	o := newOrchestrator(t, Config{Client: llmtest.Scripted(passReply)})
	ref := document.StructuralMetadata{Zone: document.ZoneBackMatter, IsReferenceZone: true}
	table := document.StructuralMetadata{Zone: document.ZoneTable, IsTable: true}
	header := table
	header.IsHeaderRow = true
	box := document.StructuralMetadata{Zone: document.BoxZone("NBX"), BoxPrefix: "NBX"}

	cases := []struct {
		raw  string
		text string
		meta document.StructuralMetadata
		want string
	}{
		{"tag: h1", "x", document.StructuralMetadata{}, "H1"},
		{"", "x", document.StructuralMetadata{}, "TXT"},
		{"EFP-H1", "x", document.StructuralMetadata{}, "H1"},
		{"UL-MID", "(2) Author. Title.", ref, "REF-N"},
		{"BL-MID", "• Author. Title.", ref, "REF-U"},
		{"H2", "Drug", header, "T2"},
		{"H2", "Dose", table, "TH2"},
		{"NL-MID", "1. step", table, "TNL-MID"},
		{"TBL-NL-MID", "1. step", table, "TNL-MID"},
		{"TTL", "Remember", box, "NBX-TTL"},
		{"1-TXT", "Boxed text", box, "NBX-TXT"},
		{"FIG-LEG", "Smith J. 2020. Title.", document.StructuralMetadata{Zone: document.ZoneBackMatter}, "REF-U"},
		{"FIG-LEG", "[3] Smith J. 2020. Title.", document.StructuralMetadata{Zone: document.ZoneBackMatter}, "REF-N"},
		{"BL-MID", "1) Smith J. Title.", ref, "REF-N"},
		{"H2", "Journal Articles", ref, "REFH2"},
		{"H1", "References", ref, "REFH1"},
		{"REF-N", "<REF-H2>Journal Articles", ref, "REFH2"},
		{"TXT", "Books", document.StructuralMetadata{Zone: document.ZoneBackMatter, IsReferenceZone: true, RefHeading: true}, "REFH2"},
		{"REFH1", "References", document.StructuralMetadata{Zone: document.ZoneBackMatter}, "REFH1"},
	}
	for _, tc := range cases {
		got := o.mapTag(tc.raw, document.Block{ID: 1, Text: tc.text, Meta: tc.meta})
		if got != tc.want {
			t.Fatalf("mapTag(%q, %s): got %s want %s", tc.raw, tc.meta.Zone, got, tc.want)
		}
	}
}

func TestPromptLines(t *testing.T) {
	b := document.Block{ID: 7, Text: "81 mg", Meta: document.StructuralMetadata{
		Zone: document.ZoneTable, IsTable: true, TableIndex: 0, Row: 2, Cell: 1,
		InferredStyle: "T", HasBullet: true,
	}}
	if got := paragraphLine(b); got != "[7] [TABLE | TABLE1,R2C1,likely:T] • 81 mg" {
		t.Fatalf("table line: %q", got)
	}
	plain := document.Block{ID: 2, Text: "Body", Meta: document.StructuralMetadata{Zone: document.ZoneBody}}
	if got := paragraphLine(plain); got != "[2] Body" {
		t.Fatalf("body line: %q", got)
	}

	o := newOrchestrator(t, Config{Client: llmtest.Scripted(passReply)})
	p := o.userPrompt("doc", chapterBlocks(), quality.ProfileTableHeavy)
	for _, want := range []string{"PROFILE: table_heavy", "[1] [FRONT_MATTER] 1", "CONTEXT ZONES DETECTED", "VALID STYLES IN FRONT_MATTER", "If unsure, choose TXT"} {
		if !strings.Contains(p, want) {
			t.Fatalf("prompt missing %q:\n%s", want, p)
		}
	}
}

func TestClassifyPass(t *testing.T) {
	client := llmtest.Scripted(passReply)
	mem := cache.NewMemory(0)
	o := newOrchestrator(t, Config{Client: client, Cache: mem})

	res, err := o.Classify(context.Background(), "doc", chapterBlocks())
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	want := []string{"CN", "CT", "H1"}
	for i, r := range res.Results {
		if r.Tag != want[i] || r.ID != i+1 {
			t.Fatalf("result %d: %+v", i, r)
		}
	}
	if res.Quality.Action != quality.ActionPass || res.Attempts != 1 || res.Review {
		t.Fatalf("quality: %+v attempts=%d", res.Quality, res.Attempts)
	}
	if len(client.Calls()) != 1 || res.Calls != 1 || res.Model != "test-model" {
		t.Fatalf("calls=%d meter=%d model=%s", len(client.Calls()), res.Calls, res.Model)
	}

	p, ok, err := mem.Get(context.Background(), cacheKey("doc", chapterBlocks()[1]))
	if err != nil || !ok || p.Tag != "CT" || p.Model != "test-model" {
		t.Fatalf("write-back: %+v ok=%v err=%v", p, ok, err)
	}
}

func TestClassifyCacheHitSkipsModel(t *testing.T) {
	mem := cache.NewMemory(0)
	blocks := chapterBlocks()
	for i, tag := range []string{"CN", "CT", "H1"} {
		if err := mem.Set(context.Background(), cacheKey("doc", blocks[i]), cache.Prediction{Tag: tag, Confidence: 0.95}); err != nil {
			t.Fatalf("Set: %v", err)
		}
	}
	client := llmtest.Failing(errors.New("model must not be called"))
	o := newOrchestrator(t, Config{Client: client, Cache: mem})

	res, err := o.Classify(context.Background(), "doc", blocks)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if res.CacheHits != 3 || len(client.Calls()) != 0 || res.Attempts != 0 {
		t.Fatalf("hits=%d calls=%d attempts=%d", res.CacheHits, len(client.Calls()), res.Attempts)
	}
	for _, r := range res.Results {
		if !r.Cached {
			t.Fatalf("not marked cached: %+v", r)
		}
	}
}

func TestClassifyRulesBeforeModel(t *testing.T) {
	set := &rules.RuleSet{Rules: []rules.Rule{{Condition: "zone=BACK_MATTER", Tag: "REF-N", Support: 40, Total: 41, Confidence: 0.97}}}
	client := llmtest.Scripted(passReply)
	o := newOrchestrator(t, Config{Client: client, Rules: set})

	blocks := append(chapterBlocks(), document.Block{ID: 4, Text: "1. Smith J. 2020. Title.", Meta: document.StructuralMetadata{Zone: document.ZoneBackMatter}})
	res, err := o.Classify(context.Background(), "doc", blocks)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	last := res.Results[3]
	if last.Tag != "REF-N" || !last.RuleBased || last.Confidence != 0.97 || last.Reasoning != "Rule: zone=BACK_MATTER" {
		t.Fatalf("rule result: %+v", last)
	}
	if res.RuleHits != 1 || strings.Contains(client.Calls()[0].User, "[4]") {
		t.Fatalf("rule-resolved paragraph reached the model")
	}
}

func TestSelfHealReprompt(t *testing.T) {
	bad := strings.Replace(passReply, `"CN"`, `"FOO-BAR"`, 1)
	client := llmtest.Scripted(bad, passReply)
	o := newOrchestrator(t, Config{Client: client})

	res, err := o.Classify(context.Background(), "doc", chapterBlocks())
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	calls := client.Calls()
	if len(calls) != 2 || !strings.Contains(calls[1].User, "INVALID TAGS FOUND: FOO-BAR") {
		t.Fatalf("expected one corrective call, got %d", len(calls))
	}
	if res.Results[0].Tag != "CN" {
		t.Fatalf("healed result: %+v", res.Results[0])
	}
}

func TestSelfHealForceNormalizes(t *testing.T) {
	bad := strings.Replace(passReply, `"CN"`, `"FOO-BAR"`, 1)
	o := newOrchestrator(t, Config{Client: llmtest.Scripted(bad), Options: Options{MaxAttempts: 1}})

	res, err := o.Classify(context.Background(), "doc", chapterBlocks())
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	r := res.Results[0]
	if !o.tax.Allowed.Has(r.Tag) || r.Confidence > healedConfidenceCap {
		t.Fatalf("forced result: %+v", r)
	}
	if !strings.HasPrefix(r.Reasoning, "Normalized 'FOO-BAR' -> '") {
		t.Fatalf("reasoning: %q", r.Reasoning)
	}
	if !o.tax.Constraints.Allows(string(document.ZoneFrontMatter), r.Tag) {
		t.Fatalf("forced tag %s outside the zone", r.Tag)
	}
}

func TestMissingIDsBecomeFallback(t *testing.T) {
	reply := `{"items":[{"id":1,"tag":"CN","confidence":99},{"id":2,"tag":"CT","confidence":97},{"id":99,"tag":"H1","confidence":97}]}`
	o := newOrchestrator(t, Config{Client: llmtest.Scripted(reply), Options: Options{MaxAttempts: 1}})
	res, err := o.Classify(context.Background(), "doc", chapterBlocks())
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if len(res.Results) != 3 {
		t.Fatalf("unknown ids must be dropped: %+v", res.Results)
	}
	r := res.Results[2]
	if r.ID != 3 || r.Tag != "TXT" || r.Confidence != 0 || r.Reasoning != missingReason {
		t.Fatalf("missing id: %+v", r)
	}
}

func TestLadderEscalates(t *testing.T) {
	primary := llmtest.Scripted(retryReply)
	primary.Name = "small"
	big := llmtest.Scripted(passReply)
	big.Name = "big"
	o := newOrchestrator(t, Config{Client: primary, Escalation: big})

	res, err := o.Classify(context.Background(), "doc", chapterBlocks())
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if res.Attempts != 3 || res.Model != "big" || res.Quality.Action != quality.ActionPass {
		t.Fatalf("ladder: attempts=%d model=%s quality=%+v", res.Attempts, res.Model, res.Quality)
	}
	if len(primary.Calls()) != 2 || len(big.Calls()) != 1 {
		t.Fatalf("primary=%d big=%d", len(primary.Calls()), len(big.Calls()))
	}
}

func TestLadderKeepsBestAndStopsOnReview(t *testing.T) {
	o := newOrchestrator(t, Config{Client: llmtest.Scripted(retryReply, reviewReply)})
	res, err := o.Classify(context.Background(), "doc", chapterBlocks())
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if res.Attempts != 2 || !res.Review {
		t.Fatalf("attempts=%d review=%v", res.Attempts, res.Review)
	}
	if res.Quality.Score != 80 || res.Results[0].Tag != "CN" {
		t.Fatalf("best attempt not kept: %+v", res.Quality)
	}
}

func TestRefineSeenByScoring(t *testing.T) {
	refine := func(rs []document.ClassificationResult, _ []document.Block) []document.ClassificationResult {
		out := append([]document.ClassificationResult(nil), rs...)
		for i := range out {
			if out[i].Tag == "TXT" {
				out[i].Tag = "H1"
			}
		}
		return out
	}
	client := llmtest.Scripted(retryReply)
	o := newOrchestrator(t, Config{Client: client, Refine: refine})
	res, err := o.Classify(context.Background(), "doc", chapterBlocks())
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if res.Attempts != 1 || res.Quality.Action != quality.ActionPass {
		t.Fatalf("refined score: %+v", res.Quality)
	}
	if res.Results[2].Tag != "TXT" {
		t.Fatalf("refine must not leak into returned results: %+v", res.Results[2])
	}
}

func TestFallbackReplacesLowConfidence(t *testing.T) {
	low := strings.Replace(passReply, `"confidence":95`, `"confidence":40`, 1)
	fb := llmtest.Scripted(`{"items":[{"id":3,"tag":"H1","confidence":92,"reasoning":"heading"}]}`)
	o := newOrchestrator(t, Config{Client: llmtest.Scripted(low), Fallback: fb})

	res, err := o.Classify(context.Background(), "doc", chapterBlocks())
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	r := res.Results[2]
	if !r.FallbackUsed || r.Confidence != 0.92 || r.OriginalTag != "H1" || r.OriginalConfidence != 0.4 {
		t.Fatalf("fallback result: %+v", r)
	}
	if r.Reasoning != "[fallback] heading" || res.FallbackReplaced != 1 {
		t.Fatalf("reasoning=%q replaced=%d", r.Reasoning, res.FallbackReplaced)
	}
	calls := fb.Calls()
	if len(calls) != 1 || !strings.Contains(calls[0].User, "[ID: 3]") || strings.Contains(calls[0].User, "[ID: 1]") {
		t.Fatalf("fallback prompt: %+v", calls)
	}
	if res.Results[0].FallbackUsed {
		t.Fatalf("confident result went to fallback")
	}
}

func TestFallbackKeepsWorseAnswer(t *testing.T) {
	low := strings.Replace(passReply, `"confidence":95`, `"confidence":40`, 1)
	fb := llmtest.Scripted(`{"items":[{"id":3,"tag":"H1","confidence":30}]}`)
	o := newOrchestrator(t, Config{Client: llmtest.Scripted(low), Fallback: fb})
	res, err := o.Classify(context.Background(), "doc", chapterBlocks())
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if res.Results[2].FallbackUsed || res.Results[2].Confidence != 0.4 {
		t.Fatalf("worse fallback answer replaced the original: %+v", res.Results[2])
	}
}

func TestClassifyFailures(t *testing.T) {
	boom := errors.New("upstream down")
	o := newOrchestrator(t, Config{Client: llmtest.Failing(boom)})
	if _, err := o.Classify(context.Background(), "doc", chapterBlocks()); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped upstream error, got %v", err)
	}

	o = newOrchestrator(t, Config{Client: llmtest.Scripted("I cannot help with that.")})
	if _, err := o.Classify(context.Background(), "doc", chapterBlocks()); !errors.Is(err, ErrUnparseable) {
		t.Fatalf("expected ErrUnparseable, got %v", err)
	}

	low := strings.Replace(passReply, `"confidence":95`, `"confidence":40`, 1)
	o = newOrchestrator(t, Config{Client: llmtest.Scripted(low), Fallback: llmtest.Failing(boom)})
	if _, err := o.Classify(context.Background(), "doc", chapterBlocks()); !errors.Is(err, boom) {
		t.Fatalf("fallback failure must fail the document, got %v", err)
	}

	if _, err := New(logger.Nop(), Config{}); err == nil {
		t.Fatalf("New without taxonomy must fail")
	}
}

func groundTruth() []rules.GroundTruthEntry {
	low := 0.5
	return []rules.GroundTruthEntry{
		{DocID: "book_ch1", Text: "Cardiac output rises during exercise", Zone: "BODY", Tag: "TXT"},
		{DocID: "other_ch3", Text: "Cardiac output rises during exercise", Zone: "BODY", Tag: "TXT-FLUSH"},
		{DocID: "other_ch2", Text: "Introduction", Zone: "BODY", Tag: "H1"},
		{DocID: "other_ch2", Text: "References", Zone: "BACK_MATTER", Tag: "REFH1"},
		{DocID: "book_ch1", Text: "The Heart", Zone: "FRONT_MATTER", Tag: "CT"},
		{DocID: "book_ch1", Text: "Lost paragraph", Zone: "BODY", Tag: "UNMAPPED"},
		{DocID: "book_ch1", Text: "Badly aligned", Zone: "BODY", Tag: "TXT", AlignmentScore: &low},
		{DocID: "book_ch1", Text: "   ", Zone: "BODY", Tag: "TXT"},
	}
}

func TestRetriever(t *testing.T) {
	r := NewRetriever(groundTruth())
	if r.Len() != 5 {
		t.Fatalf("indexed %d examples, want 5", r.Len())
	}

	ms := r.Retrieve("Introduction", 2, document.ZoneBody, "")
	if len(ms) != 2 || ms[0].Tag != "H1" || ms[0].Score < 0.999 || ms[1].Score != 0 {
		t.Fatalf("ranking: %+v", ms)
	}
	if ms := r.Retrieve("References", 5, document.ZoneBackMatter, ""); len(ms) != 1 || ms[0].Tag != "REFH1" {
		t.Fatalf("zone filter: %+v", ms)
	}

	query := "Cardiac output rises during exercise"
	if ms := r.Retrieve(query, 1, document.ZoneBody, "other_ch9"); ms[0].Tag != "TXT-FLUSH" || ms[0].Score <= 1 {
		t.Fatalf("same book boost: %+v", ms)
	}
	if ms := r.Retrieve(query, 1, document.ZoneBody, "book_ch9"); ms[0].Tag != "TXT" {
		t.Fatalf("same book boost: %+v", ms)
	}

	for _, q := range []string{"", "zebra quokka"} {
		ms := r.Retrieve(q, 2, document.ZoneBody, "")
		if len(ms) != 2 || ms[0].Tag != "CT" || ms[1].Tag != "H1" {
			t.Fatalf("diverse examples for %q: %+v", q, ms)
		}
	}

	if m, ok := r.Nearest("Introduction", "", groundedMinScore); !ok || m.Tag != "H1" {
		t.Fatalf("nearest: %+v %v", m, ok)
	}
	if _, ok := r.Nearest("Introduction", document.ZoneBackMatter, groundedMinScore); ok {
		t.Fatalf("nearest crossed zones")
	}
	var none *Retriever
	if none.Len() != 0 || none.Retrieve("Introduction", 3, "", "") != nil {
		t.Fatalf("nil retriever")
	}
	if _, ok := none.Nearest("Introduction", "", groundedMinScore); ok {
		t.Fatalf("nil retriever matched")
	}
}

func TestPromptGroundedExamples(t *testing.T) {
	client := llmtest.Scripted(passReply)
	o := newOrchestrator(t, Config{Client: client, Retriever: NewRetriever(groundTruth())})
	if _, err := o.Classify(context.Background(), "book_ch2", chapterBlocks()); err != nil {
		t.Fatalf("Classify: %v", err)
	}
	p := client.Calls()[0].User
	for _, want := range []string{"GROUND TRUTH EXAMPLES", "1. [book] The Heart => CT [FRONT_MATTER]"} {
		if !strings.Contains(p, want) {
			t.Fatalf("prompt missing %q:\n%s", want, p)
		}
	}
	if strings.Contains(p, "Introduction => H1") {
		t.Fatalf("examples from another zone in prompt:\n%s", p)
	}

	plain := newOrchestrator(t, Config{Client: llmtest.Scripted(passReply)})
	if p := plain.userPrompt("book_ch2", chapterBlocks(), quality.ProfileDefault); strings.Contains(p, "GROUND TRUTH EXAMPLES") {
		t.Fatalf("examples without a retriever:\n%s", p)
	}
}

func TestForceNormalizeUsesGroundedExample(t *testing.T) {
	bad := strings.Replace(passReply, `"CT"`, `"ZZZQQQ"`, 1)
	o := newOrchestrator(t, Config{
		Client:    llmtest.Scripted(bad),
		Retriever: NewRetriever(groundTruth()),
		Options:   Options{MaxAttempts: 1},
	})
	res, err := o.Classify(context.Background(), "doc", chapterBlocks())
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	r := res.Results[1]
	if r.Tag != "CT" || r.Confidence > healedConfidenceCap || !strings.HasPrefix(r.Reasoning, "Grounded 'ZZZQQQ' -> 'CT'") {
		t.Fatalf("grounded result: %+v", r)
	}
}
