package document

import (
	"sort"
	"strings"
)

// ClassificationResult is the tag decision for one block. Confidence is in [0,1].
type ClassificationResult struct {
	ID           int     `json:"id"`
	Tag          string  `json:"tag"`
	Confidence   float64 `json:"confidence"`
	Reasoning    string  `json:"reasoning,omitempty"`
	Repaired     bool    `json:"repaired,omitempty"`
	RepairReason string  `json:"repair_reason,omitempty"`
	RuleBased    bool    `json:"rule_based,omitempty"`
	Cached       bool    `json:"cached,omitempty"`

	FallbackUsed       bool    `json:"fallback_used,omitempty"`
	OriginalTag        string  `json:"original_tag,omitempty"`
	OriginalConfidence float64 `json:"original_confidence,omitempty"`
}

// AddReason appends a reason code to the comma-joined repair trace.
func (r *ClassificationResult) AddReason(code string) {
	code = strings.TrimSpace(code)
	if code == "" {
		return
	}
	if r.RepairReason == "" {
		r.RepairReason = code
		return
	}
	for _, existing := range strings.Split(r.RepairReason, ",") {
		if existing == code {
			return
		}
	}
	r.RepairReason += "," + code
}

// Reasons returns the individual reason codes.
func (r ClassificationResult) Reasons() []string {
	if r.RepairReason == "" {
		return nil
	}
	return strings.Split(r.RepairReason, ",")
}

// ResultSet keys results by block id.
type ResultSet map[int]ClassificationResult

func NewResultSet(results []ClassificationResult) ResultSet {
	out := make(ResultSet, len(results))
	for _, r := range results {
		out[r.ID] = r
	}
	return out
}

// Ordered returns results in block order. Blocks without a result are skipped.
func (s ResultSet) Ordered(blocks []Block) []ClassificationResult {
	out := make([]ClassificationResult, 0, len(s))
	for _, b := range blocks {
		if r, ok := s[b.ID]; ok {
			out = append(out, r)
		}
	}
	return out
}

// SortedIDs returns the ids in ascending order.
func (s ResultSet) SortedIDs() []int {
	ids := make([]int, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

type RefTrigger string

const (
	TriggerNone            RefTrigger = "none"
	TriggerHeadingMatch    RefTrigger = "heading_match"
	TriggerSecondaryHeader RefTrigger = "secondary_heading_validated"
	TriggerCitationDensity RefTrigger = "citation_density"
)

// ReferenceZoneSpan is a contiguous run of block ids forming the bibliography.
// StartIndex is the slice position of the first block, or -1.
type ReferenceZoneSpan struct {
	IDs        []int      `json:"ids"`
	Trigger    RefTrigger `json:"trigger"`
	StartIndex int        `json:"start_index"`
}

func EmptySpan() ReferenceZoneSpan {
	return ReferenceZoneSpan{Trigger: TriggerNone, StartIndex: -1}
}

func (s ReferenceZoneSpan) Contains(id int) bool {
	for _, v := range s.IDs {
		if v == id {
			return true
		}
	}
	return false
}

func (s ReferenceZoneSpan) Set() map[int]bool {
	out := make(map[int]bool, len(s.IDs))
	for _, id := range s.IDs {
		out[id] = true
	}
	return out
}
