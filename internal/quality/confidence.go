package quality

import (
	"math"
	"sort"

	"github.com/yungbote/styletag-backend/internal/domain/document"
	"github.com/yungbote/styletag-backend/internal/styles"
)

// DefaultAutoApplyThreshold is the confidence at or above which a decision is
// applied without review.
const DefaultAutoApplyThreshold = 0.85

// ReviewItem is a decision under the auto-apply threshold.
type ReviewItem struct {
	ID           int      `json:"id"`
	Tag          string   `json:"tag"`
	Confidence   float64  `json:"confidence"`
	RepairReason string   `json:"repair_reason,omitempty"`
	TextPreview  string   `json:"text_preview"`
	Alternatives []string `json:"alternatives,omitempty"`
}

type ConfidenceSummary struct {
	Total             int     `json:"total_paragraphs"`
	AutoApplied       int     `json:"auto_applied"`
	NeedsReview       int     `json:"needs_review"`
	AutoApplyPercent  float64 `json:"auto_apply_percentage"`
	AverageConfidence float64 `json:"average_confidence"`
}

// ConfidenceSplit partitions decisions into an auto-apply queue (ids in block
// order) and a review queue ordered by ascending confidence.
type ConfidenceSplit struct {
	Threshold   float64           `json:"threshold"`
	Summary     ConfidenceSummary `json:"summary"`
	AutoApply   []int             `json:"auto_apply"`
	NeedsReview []ReviewItem      `json:"needs_review"`
}

// confusable lists tags commonly mistaken for the key tag.
var confusable = map[string][]string{
	"H1":        {"H2", "CT", "SP-H1"},
	"H2":        {"H1", "H3", "REFH2"},
	"H3":        {"H2", "H4"},
	"H4":        {"H3", "H5"},
	"TXT":       {"TXT-FLUSH", "BX1-TXT-FIRST", "CS-TXT"},
	"TXT-FLUSH": {"TXT", "NBX1-TXT-FLUSH"},
	"BL-FIRST":  {"BL-MID", "NBX1-BL-FIRST"},
	"BL-MID":    {"BL-FIRST", "BL-LAST"},
	"BL-LAST":   {"BL-MID", "BL-FIRST"},
	"NL-FIRST":  {"NL-MID", "EOC-NL-FIRST"},
	"NL-MID":    {"NL-FIRST", "NL-LAST"},
	"NL-LAST":   {"NL-MID"},
	"T2":        {"T3", "TBL-MID"},
	"T3":        {"T2", "TBL-MID"},
	"TBL-MID":   {"T2", "T3"},
	"REF-N":     {"NL-FIRST", "NL-MID"},
	"REFH2":     {"H2", "REFH1"},
}

// SplitByConfidence routes each decision by threshold. A threshold outside
// (0,1] falls back to DefaultAutoApplyThreshold. Alternatives are limited to
// tags in allowed; a nil allowed set keeps them all.
func SplitByConfidence(results []document.ClassificationResult, blocks []document.Block, allowed styles.AllowedSet, threshold float64) ConfidenceSplit {
	if threshold <= 0 || threshold > 1 || math.IsNaN(threshold) {
		threshold = DefaultAutoApplyThreshold
	}
	texts := make(map[int]string, len(blocks))
	for _, b := range blocks {
		texts[b.ID] = b.Text
	}

	out := ConfidenceSplit{Threshold: threshold, AutoApply: []int{}, NeedsReview: []ReviewItem{}}
	var sum float64
	for _, r := range results {
		sum += r.Confidence
		if r.Confidence >= threshold {
			out.AutoApply = append(out.AutoApply, r.ID)
			continue
		}
		item := ReviewItem{
			ID:           r.ID,
			Tag:          r.Tag,
			Confidence:   r.Confidence,
			RepairReason: r.RepairReason,
			TextPreview:  preview(texts[r.ID]),
		}
		for _, alt := range confusable[r.Tag] {
			if allowed == nil || allowed.Has(alt) {
				item.Alternatives = append(item.Alternatives, alt)
			}
		}
		out.NeedsReview = append(out.NeedsReview, item)
	}
	sort.SliceStable(out.NeedsReview, func(i, j int) bool {
		return out.NeedsReview[i].Confidence < out.NeedsReview[j].Confidence
	})

	n := len(results)
	out.Summary = ConfidenceSummary{Total: n, AutoApplied: len(out.AutoApply), NeedsReview: len(out.NeedsReview)}
	if n > 0 {
		out.Summary.AutoApplyPercent = math.Round(float64(len(out.AutoApply))/float64(n)*1000) / 10
		out.Summary.AverageConfidence = round4(sum / float64(n))
	}
	return out
}
