package quality

import (
	"regexp"
	"sort"
	"strings"

	"github.com/yungbote/styletag-backend/internal/domain/document"
)

// Profile selects a prompt variant for a document.
type Profile string

const (
	ProfileDefault        Profile = "default"
	ProfileReferenceHeavy Profile = "reference_heavy"
	ProfileTableHeavy     Profile = "table_heavy"
	ProfileBoxHeavy       Profile = "box_heavy"
)

const (
	referenceRatio = 0.06
	tableRatio     = 0.10
	boxRatio       = 0.05
)

var referenceTokenRe = regexp.MustCompile(`(^\d+\.|\[\d+\]|\(\d{4}\))`)

var boxWords = []string{"box", "key points", "clinical pearl", "skill", "case"}

// RouteProfile picks the profile from reference, table and box cue ratios.
// Reference cues win over table cues, which win over box cues.
func RouteProfile(blocks []document.Block) Profile {
	total := len(blocks)
	if total == 0 {
		total = 1
	}
	tables, boxes, refs := 0, 0, 0
	for _, b := range blocks {
		lower := strings.ToLower(b.Text)
		if b.Meta.IsTable {
			tables++
		}
		if b.Meta.Zone.IsBox() || b.Meta.BoxMarker != document.MarkerNone {
			boxes++
		}
		if lower != "" {
			if referenceTokenRe.MatchString(lower) {
				refs++
			}
			if strings.Contains(lower, "doi") || strings.Contains(lower, "et al") || strings.Contains(lower, "journal") {
				refs++
			}
			if strings.Contains(lower, "references") || strings.Contains(lower, "bibliography") {
				refs++
			}
		}
		for _, w := range boxWords {
			if strings.Contains(lower, w) {
				boxes++
				break
			}
		}
	}
	n := float64(total)
	switch {
	case float64(refs)/n >= referenceRatio:
		return ProfileReferenceHeavy
	case float64(tables)/n >= tableRatio:
		return ProfileTableHeavy
	case float64(boxes)/n >= boxRatio:
		return ProfileBoxHeavy
	default:
		return ProfileDefault
	}
}

// Hint is the extra prompt guidance for the profile.
func (p Profile) Hint() string {
	switch p {
	case ProfileReferenceHeavy:
		return "Focus on reference-heavy sections. Prefer REF-* and SR* styles for citations and lists. Do NOT output UL-* styles in reference-heavy content."
	case ProfileTableHeavy:
		return "Focus on table-heavy content. Use T1/T2/T/T4/TBL/TFN/TSN appropriately. Do NOT use BL-* inside table zones."
	case ProfileBoxHeavy:
		return "Focus on boxed content. Use BX*/NBX* styles as applicable. Do NOT map box content to T/T2/T4 table styles."
	default:
		return "Use the default template guidance."
	}
}

// SuspiciousItem is a low-confidence decision packaged for human review.
type SuspiciousItem struct {
	ID           int     `json:"id"`
	Tag          string  `json:"tag"`
	Confidence   float64 `json:"confidence"`
	RepairReason string  `json:"repair_reason,omitempty"`
	TextPreview  string  `json:"text_preview"`
}

const previewLimit = 160

// Suspicious returns up to n decisions ordered by ascending confidence with
// TXT ahead of other tags on ties. n <= 0 returns all of them.
func Suspicious(results []document.ClassificationResult, blocks []document.Block, n int) []SuspiciousItem {
	texts := make(map[int]string, len(blocks))
	for _, b := range blocks {
		texts[b.ID] = b.Text
	}
	items := make([]SuspiciousItem, 0, len(results))
	for _, r := range results {
		items = append(items, SuspiciousItem{
			ID:           r.ID,
			Tag:          r.Tag,
			Confidence:   r.Confidence,
			RepairReason: r.RepairReason,
			TextPreview:  preview(texts[r.ID]),
		})
	}
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Confidence != items[j].Confidence {
			return items[i].Confidence < items[j].Confidence
		}
		return items[i].Tag == "TXT" && items[j].Tag != "TXT"
	})
	if n > 0 && len(items) > n {
		items = items[:n]
	}
	return items
}

func preview(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	r := []rune(text)
	if len(r) <= previewLimit {
		return text
	}
	return string(r[:previewLimit]) + "..."
}
