package rules

import (
	"regexp"
	"strings"

	"github.com/yungbote/styletag-backend/internal/styles"
)

// MinAlignSimilarity is the similarity two paragraphs need to be paired.
const MinAlignSimilarity = 0.85

var spaceRe = regexp.MustCompile(`\s+`)

// Pair links a raw paragraph index to a tagged paragraph index.
type Pair struct {
	Raw    int     `json:"raw"`
	Tagged int     `json:"tagged"`
	Score  float64 `json:"score"`
}

func normalizeText(s string) string {
	s = strings.ReplaceAll(s, "\u00a0", " ")
	return strings.ToLower(strings.TrimSpace(spaceRe.ReplaceAllString(s, " ")))
}

// Align pairs raw and tagged paragraphs with a longest-common-subsequence
// alignment in which two paragraphs "match" when their normalized texts are at
// least MinAlignSimilarity alike. Pairs are returned in document order.
func Align(raw, tagged []string) []Pair {
	a := make([]string, len(raw))
	for i, s := range raw {
		a[i] = normalizeText(s)
	}
	b := make([]string, len(tagged))
	for i, s := range tagged {
		b[i] = normalizeText(s)
	}

	n, m := len(a), len(b)
	score := make([][]float64, n)
	for i := range score {
		score[i] = make([]float64, m)
		for j := range score[i] {
			score[i][j] = matchScore(a[i], b[j])
		}
	}

	// dp[i][j] is the LCS length of a[i:], b[j:].
	dp := make([][]int, n+1)
	for i := range dp {
		dp[i] = make([]int, m+1)
	}
	for i := n - 1; i >= 0; i-- {
		for j := m - 1; j >= 0; j-- {
			switch {
			case score[i][j] >= MinAlignSimilarity:
				dp[i][j] = dp[i+1][j+1] + 1
			case dp[i+1][j] >= dp[i][j+1]:
				dp[i][j] = dp[i+1][j]
			default:
				dp[i][j] = dp[i][j+1]
			}
		}
	}

	var out []Pair
	for i, j := 0, 0; i < n && j < m; {
		switch {
		case score[i][j] >= MinAlignSimilarity && dp[i][j] == dp[i+1][j+1]+1:
			out = append(out, Pair{Raw: i, Tagged: j, Score: score[i][j]})
			i++
			j++
		case dp[i+1][j] >= dp[i][j+1]:
			i++
		default:
			j++
		}
	}
	return out
}

func matchScore(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}
	// 2*min/(la+lb) bounds the ratio from above.
	la, lb := len(a), len(b)
	short := la
	if lb < short {
		short = lb
	}
	if 2*float64(short)/float64(la+lb) < MinAlignSimilarity {
		return 0
	}
	return styles.Similarity(a, b)
}
