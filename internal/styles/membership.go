package styles

import "strings"

// Step names the resolver step that produced a canonical tag.
type Step string

const (
	StepExact      Step = "exact"
	StepChain      Step = "chain"
	StepFamily     Step = "family"
	StepSimilarity Step = "similarity"
	StepFallback   Step = "fallback"
	StepUnchecked  Step = "unchecked"
)

const similarityThreshold = 0.6

// EnforceMembership resolves tag against the full vocabulary.
func (t *Taxonomy) EnforceMembership(tag string) (string, Step) {
	return t.EnforceIn(tag, t.Allowed)
}

// EnforceIn resolves tag against allowed. An empty allowed set returns tag unchanged.
func (t *Taxonomy) EnforceIn(tag string, allowed AllowedSet) (string, Step) {
	if len(allowed) == 0 {
		return tag, StepUnchecked
	}
	if tag != "" && allowed.Has(tag) {
		return tag, StepExact
	}
	if tag != "" {
		for _, cand := range t.Chains[tag] {
			c := t.Normalizer.Normalize(cand, Context{})
			if allowed.Has(c) {
				return c, StepChain
			}
		}
	}

	sorted := allowed.Sorted()
	if tag != "" {
		if c, ok := familyMatch(tag, sorted); ok {
			return c, StepFamily
		}
		if c, ok := similarMatch(tag, sorted); ok {
			return c, StepSimilarity
		}
	}
	if allowed.Has(t.UniversalFallback) {
		return t.UniversalFallback, StepFallback
	}
	return sorted[0], StepFallback
}

// familyMatch tries progressively shorter dash prefixes of tag and returns the
// shortest allowed tag of the first family that has any member.
func familyMatch(tag string, sorted []string) (string, bool) {
	parts := strings.Split(tag, "-")
	for n := len(parts) - 1; n >= 1; n-- {
		prefix := strings.Join(parts[:n], "-")
		best := ""
		for _, cand := range sorted {
			if cand != prefix && !strings.HasPrefix(cand, prefix+"-") {
				continue
			}
			if best == "" || len(cand) < len(best) {
				best = cand
			}
		}
		if best != "" {
			return best, true
		}
	}
	return "", false
}

func similarMatch(tag string, sorted []string) (string, bool) {
	best, bestRatio := "", 0.0
	for _, cand := range sorted {
		if r := Similarity(tag, cand); r > bestRatio {
			best, bestRatio = cand, r
		}
	}
	if bestRatio >= similarityThreshold {
		return best, true
	}
	return "", false
}

// Similarity is the Ratcliff/Obershelp ratio 2M/T over the two strings.
func Similarity(a, b string) float64 {
	total := len(a) + len(b)
	if total == 0 {
		return 1
	}
	return 2 * float64(matchingChars(a, b)) / float64(total)
}

func matchingChars(a, b string) int {
	if a == "" || b == "" {
		return 0
	}
	i, j, k := longestCommon(a, b)
	if k == 0 {
		return 0
	}
	return k + matchingChars(a[:i], b[:j]) + matchingChars(a[i+k:], b[j+k:])
}

// longestCommon returns the earliest longest common substring as (start in a, start in b, length).
func longestCommon(a, b string) (int, int, int) {
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	bi, bj, bk := 0, 0, 0
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				cur[j] = prev[j-1] + 1
				if cur[j] > bk {
					bi, bj, bk = i-cur[j], j-cur[j], cur[j]
				}
			} else {
				cur[j] = 0
			}
		}
		prev, cur = cur, prev
	}
	return bi, bj, bk
}

// Tags returns the vocabulary in sorted order.
func (t *Taxonomy) Tags() []string { return t.Allowed.Sorted() }
