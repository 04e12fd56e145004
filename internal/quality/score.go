package quality

import (
	"math"
	"strings"

	"github.com/yungbote/styletag-backend/internal/domain/document"
	"github.com/yungbote/styletag-backend/internal/styles"
)

type Action string

const (
	ActionPass   Action = "PASS"
	ActionRetry  Action = "RETRY"
	ActionReview Action = "REVIEW"
)

const (
	passScore    = 85
	retryScore   = 70
	lowConf      = 0.60
	orphanWindow = 3
)

var figureTags = map[string]bool{
	"FIG-LEG":   true,
	"FIG-CRED":  true,
	"FIG-SRC":   true,
	"UNFIG-LEG": true,
	"UNFIG-SRC": true,
}

type Metrics struct {
	Total                     int     `json:"total"`
	TXTRatio                  float64 `json:"txt_ratio"`
	LowConfRatio              float64 `json:"low_conf_ratio"`
	UnknownStyleCount         int     `json:"unknown_style_count"`
	HeadingViolations         int     `json:"heading_violations"`
	BoxIntegrityViolations    int     `json:"box_integrity_violations"`
	FigureIntegrityViolations int     `json:"figure_integrity_violations"`
	TableIntegrityViolations  int     `json:"table_integrity_violations"`
}

type Report struct {
	Score   int     `json:"score"`
	Metrics Metrics `json:"metrics"`
	Action  Action  `json:"action"`
}

// ActionFor maps a score to its action.
func ActionFor(score int) Action {
	switch {
	case score >= passScore:
		return ActionPass
	case score >= retryScore:
		return ActionRetry
	default:
		return ActionReview
	}
}

// Score rates a classified document from 0 to 100. Results are joined to
// blocks by id; a block without a result counts as an empty, zero-confidence tag.
// Tags outside allowed are counted, never rejected. A nil allowed set skips the count.
func Score(results []document.ClassificationResult, blocks []document.Block, allowed styles.AllowedSet) Report {
	total := len(blocks)
	if total == 0 {
		return Report{Score: 0, Action: ActionReview, Metrics: Metrics{TXTRatio: 1, LowConfRatio: 1}}
	}

	set := document.NewResultSet(results)
	tags := make([]string, total)
	var m Metrics
	m.Total = total
	txt, low := 0, 0
	for i, b := range blocks {
		r := set[b.ID]
		tags[i] = strings.TrimSpace(r.Tag)
		if tags[i] == "TXT" {
			txt++
		}
		if r.Confidence < lowConf {
			low++
		}
		if allowed != nil && tags[i] != "" && !allowed.Has(tags[i]) {
			m.UnknownStyleCount++
		}
	}

	m.HeadingViolations = headingViolations(tags)
	m.BoxIntegrityViolations = boxViolations(tags, blocks)
	for i, t := range tags {
		if figureTags[t] && !windowHas(tags, i, orphanWindow, func(x string) bool { return figureTags[x] }) {
			m.FigureIntegrityViolations++
		}
		if strings.HasPrefix(t, "TFN") && !windowHas(tags, i, orphanWindow, isTableTag) {
			m.TableIntegrityViolations++
		}
	}

	m.TXTRatio = round4(float64(txt) / float64(total))
	m.LowConfRatio = round4(float64(low) / float64(total))

	score := 100.0
	score -= float64(txt) / float64(total) * 60
	score -= float64(low) / float64(total) * 20
	score -= float64(m.HeadingViolations) * 5
	score -= float64(m.BoxIntegrityViolations) * 8
	score -= float64(m.FigureIntegrityViolations) * 6
	score -= float64(m.TableIntegrityViolations) * 6
	s := int(math.Round(score))
	if s < 0 {
		s = 0
	}
	if s > 100 {
		s = 100
	}
	return Report{Score: s, Metrics: m, Action: ActionFor(s)}
}

func round4(v float64) float64 { return math.Round(v*10000) / 10000 }

func headingViolations(tags []string) int {
	seenH1, seenH2 := false, false
	n := 0
	for _, t := range tags {
		switch t {
		case "H1":
			seenH1, seenH2 = true, false
		case "H2":
			if !seenH1 {
				n++
			}
			seenH2 = true
		case "H3":
			if !seenH2 {
				n++
			}
		}
	}
	return n
}

// boxViolations counts boxes missing a -TYPE or -TTL part, plus boxes whose
// label and title were merged into a single -TTL paragraph.
func boxViolations(tags []string, blocks []document.Block) int {
	n := 0
	inBox, seenType, seenTTL, merged := false, false, false, false
	closeBox := func() {
		if inBox {
			if !seenType || !seenTTL {
				n++
			}
			if merged {
				n++
			}
		}
		seenType, seenTTL, merged = false, false, false
	}

	for i, b := range blocks {
		boxZone := b.Meta.Zone.IsBox()
		marker := b.Meta.BoxMarker
		if marker == document.MarkerStart || (boxZone && !inBox) {
			closeBox()
			inBox = true
		}
		if inBox && !boxZone && marker != document.MarkerStart {
			closeBox()
			inBox = false
		}
		if inBox {
			if strings.HasSuffix(tags[i], "-TYPE") {
				seenType = true
			}
			if strings.HasSuffix(tags[i], "-TTL") {
				seenTTL = true
				if b.Meta.BoxLabel && b.Meta.BoxTitle {
					merged = true
				}
			}
		}
		if marker == document.MarkerEnd {
			closeBox()
			inBox = false
		}
	}
	closeBox()
	return n
}

// isTableTag matches table styles. TXT shares the T prefix and is excluded.
func isTableTag(t string) bool {
	if strings.HasPrefix(t, "TXT") {
		return false
	}
	for _, p := range []string{"T", "UNT", "UNBX-T", "TBL", "TNL", "TUL"} {
		if strings.HasPrefix(t, p) {
			return true
		}
	}
	return false
}

func windowHas(tags []string, idx, window int, pred func(string) bool) bool {
	start := idx - window
	if start < 0 {
		start = 0
	}
	end := idx + window + 1
	if end > len(tags) {
		end = len(tags)
	}
	for j := start; j < end; j++ {
		if j != idx && pred(tags[j]) {
			return true
		}
	}
	return false
}
