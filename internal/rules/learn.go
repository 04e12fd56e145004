package rules

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/yungbote/styletag-backend/internal/domain/document"
)

const (
	DefaultMinSupport    = 10
	DefaultMinConfidence = 0.8
	DefaultFloor         = 0.80
)

// Rule predicts Tag whenever Condition holds.
type Rule struct {
	Condition  string  `json:"condition"`
	Tag        string  `json:"predicted_tag"`
	Support    int     `json:"support"`
	Total      int     `json:"total"`
	Confidence float64 `json:"confidence"`
}

// Example is one labelled paragraph.
type Example struct {
	Features FeatureSet `json:"features"`
	Label    string     `json:"label"`
	DocID    string     `json:"doc_id,omitempty"`
}

// RuleSet is an ordered list of rules, best first. The zero value predicts nothing.
type RuleSet struct {
	Rules    []Rule                    `json:"rules"`
	NumRules int                       `json:"num_rules"`
	TagStats map[string]map[string]int `json:"tag_stats,omitempty"`
}

// LearnOptions bounds which rules survive mining.
type LearnOptions struct {
	MinSupport    int
	MinConfidence float64
}

// GroundTruthEntry is one line of a ground truth JSONL file.
type GroundTruthEntry struct {
	DocID     string `json:"doc_id"`
	ParaIndex int    `json:"para_index"`
	Text      string `json:"text"`
	Zone      string `json:"zone"`
	Tag       string `json:"canonical_gold_tag"`

	// AlignmentScore is how well Text matched its tagged counterpart. Nil
	// means the source recorded no score.
	AlignmentScore *float64 `json:"alignment_score,omitempty"`
}

// ExamplesFromGroundTruth groups entries by document, orders them by paragraph
// index and extracts features with gold prev/next tags.
func ExamplesFromGroundTruth(entries []GroundTruthEntry) []Example {
	byDoc := map[string][]GroundTruthEntry{}
	var docs []string
	for _, e := range entries {
		if e.DocID == "" {
			continue
		}
		if _, ok := byDoc[e.DocID]; !ok {
			docs = append(docs, e.DocID)
		}
		byDoc[e.DocID] = append(byDoc[e.DocID], e)
	}
	sort.Strings(docs)

	var out []Example
	for _, id := range docs {
		list := byDoc[id]
		sort.SliceStable(list, func(i, j int) bool { return list[i].ParaIndex < list[j].ParaIndex })
		for i, e := range list {
			if e.Tag == "" || e.Tag == "UNMAPPED" || strings.TrimSpace(e.Text) == "" {
				continue
			}
			prev, next := StartTag, EndTag
			if i > 0 {
				prev = list[i-1].Tag
			}
			if i < len(list)-1 {
				next = list[i+1].Tag
			}
			zone := document.Zone(e.Zone)
			if zone == "" {
				zone = document.ZoneBody
			}
			out = append(out, Example{
				Features: Features(e.Text, document.StructuralMetadata{Zone: zone}, prev, next),
				Label:    e.Tag,
				DocID:    id,
			})
		}
	}
	return out
}

// TaggedParagraph is a paragraph of a known-good, already tagged document.
type TaggedParagraph struct {
	Text string `json:"text"`
	Tag  string `json:"tag"`
}

// ExamplesFromAlignment labels raw blocks with the tags of the aligned tagged
// document. Unaligned blocks are skipped.
func ExamplesFromAlignment(docID string, raw []document.Block, tagged []TaggedParagraph) []Example {
	rawTexts := make([]string, len(raw))
	for i, b := range raw {
		rawTexts[i] = b.Text
	}
	taggedTexts := make([]string, len(tagged))
	for i, p := range tagged {
		taggedTexts[i] = p.Text
	}
	pairs := Align(rawTexts, taggedTexts)

	out := make([]Example, 0, len(pairs))
	for _, p := range pairs {
		prev, next := StartTag, EndTag
		if p.Tagged > 0 {
			prev = tagged[p.Tagged-1].Tag
		}
		if p.Tagged < len(tagged)-1 {
			next = tagged[p.Tagged+1].Tag
		}
		b := raw[p.Raw]
		out = append(out, Example{
			Features: Features(b.Text, b.Meta, prev, next),
			Label:    tagged[p.Tagged].Tag,
			DocID:    docID,
		})
	}
	return out
}

// Learn mines single-condition rules: for every tag with enough examples, each
// condition seen at least MinSupport times with that tag whose precision
// P(tag | condition) reaches MinConfidence becomes a rule.
func Learn(examples []Example, opts LearnOptions) RuleSet {
	if opts.MinSupport <= 0 {
		opts.MinSupport = DefaultMinSupport
	}
	if opts.MinConfidence <= 0 {
		opts.MinConfidence = DefaultMinConfidence
	}

	byTag := map[string][]Example{}
	conditionTotals := map[string]int{}
	stats := map[string]map[string]int{}
	for _, ex := range examples {
		byTag[ex.Label] = append(byTag[ex.Label], ex)
		for _, c := range ex.Features.Conditions() {
			conditionTotals[c]++
		}
		if stats[ex.Label] == nil {
			stats[ex.Label] = map[string]int{}
		}
		for name, v := range ex.Features {
			if v == "true" {
				stats[ex.Label][name]++
			}
		}
	}

	var rules []Rule
	for tag, list := range byTag {
		if len(list) < opts.MinSupport {
			continue
		}
		counts := map[string]int{}
		for _, ex := range list {
			for _, c := range ex.Features.Conditions() {
				counts[c]++
			}
		}
		for cond, n := range counts {
			if n < opts.MinSupport {
				continue
			}
			total := conditionTotals[cond]
			if total == 0 {
				continue
			}
			conf := float64(n) / float64(total)
			if conf < opts.MinConfidence {
				continue
			}
			rules = append(rules, Rule{Condition: cond, Tag: tag, Support: n, Total: total, Confidence: conf})
		}
	}
	sortRules(rules)
	return RuleSet{Rules: rules, NumRules: len(rules), TagStats: stats}
}

func sortRules(rules []Rule) {
	sort.SliceStable(rules, func(i, j int) bool {
		a, b := rules[i], rules[j]
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		if a.Support != b.Support {
			return a.Support > b.Support
		}
		if a.Condition != b.Condition {
			return a.Condition < b.Condition
		}
		return a.Tag < b.Tag
	})
}

// Predict returns the first rule at or above floor whose condition holds.
func (s *RuleSet) Predict(f FeatureSet, floor float64) (Rule, bool) {
	if s == nil {
		return Rule{}, false
	}
	for _, r := range s.Rules {
		if r.Confidence < floor {
			// Rules are sorted by confidence.
			break
		}
		if f.Matches(r.Condition) {
			return r, true
		}
	}
	return Rule{}, false
}

func (s *RuleSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Rules)
}

// Load reads a rule set written by Save.
func Load(path string) (*RuleSet, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules: %w", err)
	}
	var s RuleSet
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("parse rules %s: %w", path, err)
	}
	for _, r := range s.Rules {
		if r.Condition == "" || r.Tag == "" {
			return nil, errors.New("parse rules: rule with empty condition or tag")
		}
	}
	sortRules(s.Rules)
	s.NumRules = len(s.Rules)
	return &s, nil
}

// Save writes the rule set as indented JSON, creating parent directories.
func (s *RuleSet) Save(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create rules dir: %w", err)
		}
	}
	s.NumRules = len(s.Rules)
	raw, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encode rules: %w", err)
	}
	return os.WriteFile(path, raw, 0o644)
}

// Report renders the top rules and per-tag feature statistics.
func (s *RuleSet) Report() string {
	if s.Len() == 0 {
		return "No rules learned yet."
	}
	var b strings.Builder
	line := strings.Repeat("=", 80)
	sep := strings.Repeat("-", 80)
	fmt.Fprintf(&b, "%s\nLEARNED RULES REPORT\n%s\n\nTotal rules: %d\n\nTop 50 rules by confidence:\n%s\n", line, line, len(s.Rules), sep)
	for i, r := range s.Rules {
		if i == 50 {
			break
		}
		fmt.Fprintf(&b, "%3d. IF %-40s THEN %-15s (conf=%.2f%%, support=%d/%d)\n",
			i+1, r.Condition, r.Tag, r.Confidence*100, r.Support, r.Total)
	}

	type tagTotal struct {
		tag   string
		total int
	}
	var tags []tagTotal
	for tag, st := range s.TagStats {
		n := 0
		for _, c := range st {
			n += c
		}
		tags = append(tags, tagTotal{tag, n})
	}
	sort.Slice(tags, func(i, j int) bool {
		if tags[i].total != tags[j].total {
			return tags[i].total > tags[j].total
		}
		return tags[i].tag < tags[j].tag
	})
	fmt.Fprintf(&b, "\n%s\nTag Statistics:\n%s\n", sep, sep)
	for i, tt := range tags {
		if i == 20 || tt.total == 0 {
			break
		}
		fmt.Fprintf(&b, "\n%s (%d examples):\n", tt.tag, tt.total)
		type fc struct {
			name  string
			count int
		}
		var feats []fc
		for name, c := range s.TagStats[tt.tag] {
			feats = append(feats, fc{name, c})
		}
		sort.Slice(feats, func(i, j int) bool {
			if feats[i].count != feats[j].count {
				return feats[i].count > feats[j].count
			}
			return feats[i].name < feats[j].name
		})
		for k, f := range feats {
			if k == 3 {
				break
			}
			fmt.Fprintf(&b, "  - %s: %d (%.1f%%)\n", f.name, f.count, float64(f.count)*100/float64(tt.total))
		}
	}
	return b.String()
}
