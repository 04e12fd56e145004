package cache

import (
	"context"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/zeebo/blake3"
)

const DefaultTTL = 30 * 24 * time.Hour

var (
	inlineTagRe = regexp.MustCompile(`<[^>]+>`)
	spaceRe     = regexp.MustCompile(`\s+`)
)

// Prediction is a cached tag decision for one paragraph.
type Prediction struct {
	Tag        string    `json:"tag"`
	Confidence float64   `json:"confidence"`
	Reasoning  string    `json:"reasoning,omitempty"`
	RuleBased  bool      `json:"rule_based,omitempty"`
	Model      string    `json:"model,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Key identifies a paragraph by document, position, content and zone.
type Key struct {
	DocID       string
	ParagraphID int
	Text        string
	Zone        string
}

// NormalizeText strips inline tags, collapses whitespace and lowercases.
func NormalizeText(s string) string {
	s = inlineTagRe.ReplaceAllString(s, "")
	s = spaceRe.ReplaceAllString(s, " ")
	return strings.ToLower(strings.TrimSpace(s))
}

// Hash is the 64-char hex BLAKE3 digest of the key.
func (k Key) Hash() string {
	raw := fmt.Sprintf("%s\x00%d\x00%s\x00%s", k.DocID, k.ParagraphID, NormalizeText(k.Text), k.Zone)
	sum := blake3.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// Stats reports counters since process start. Entries is -1 when the backend
// cannot count cheaply.
type Stats struct {
	Backend string `json:"backend"`
	Hits    int64  `json:"hits"`
	Misses  int64  `json:"misses"`
	Entries int64  `json:"entries"`
}

// HitRate is hits over lookups, 0 without lookups.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

type Cache interface {
	Get(ctx context.Context, key Key) (Prediction, bool, error)
	Set(ctx context.Context, key Key, p Prediction) error
	Stats(ctx context.Context) (Stats, error)
}
