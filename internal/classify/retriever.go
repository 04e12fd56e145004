package classify

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/yungbote/styletag-backend/internal/domain/document"
	"github.com/yungbote/styletag-backend/internal/rules"
)

const (
	minAlignmentScore = 0.75
	groundedMinScore  = 0.7
	sameBookBoost     = 1.2
	queryBlocks       = 3
	queryRunes        = 200
	exampleRunes      = 150
	bookRunes         = 15
)

var (
	inlineMarkupRe = regexp.MustCompile(`<[^>]+>`)
	wordRe         = regexp.MustCompile(`[\p{L}\p{N}_]+`)
)

// Retriever finds manually tagged paragraphs similar to a query by TF-IDF
// cosine similarity. It is immutable after NewRetriever.
type Retriever struct {
	examples []groundedExample
	idf      map[string]float64
}

type groundedExample struct {
	docID     string
	text      string
	zone      document.Zone
	tag       string
	alignment float64
	vec       map[string]float64
	norm      float64
}

// Match is a retrieved example and its similarity to the query.
type Match struct {
	DocID string        `json:"doc_id"`
	Text  string        `json:"text"`
	Zone  document.Zone `json:"zone"`
	Tag   string        `json:"tag"`
	Score float64       `json:"score"`
}

// NewRetriever indexes ground truth entries. Unmapped, blank and poorly
// aligned entries are skipped; entries without an alignment score are kept.
func NewRetriever(entries []rules.GroundTruthEntry) *Retriever {
	r := &Retriever{idf: map[string]float64{}}
	df := map[string]int{}
	var tokens [][]string
	for _, e := range entries {
		text := strings.TrimSpace(e.Text)
		if e.Tag == "" || e.Tag == "UNMAPPED" || text == "" {
			continue
		}
		align := 1.0
		if e.AlignmentScore != nil {
			if align = *e.AlignmentScore; align < minAlignmentScore {
				continue
			}
		}
		zone := document.Zone(e.Zone)
		if zone == "" {
			zone = document.ZoneBody
		}
		t := tokenize(text)
		seen := map[string]bool{}
		for _, w := range t {
			if !seen[w] {
				seen[w] = true
				df[w]++
			}
		}
		tokens = append(tokens, t)
		r.examples = append(r.examples, groundedExample{docID: e.DocID, text: text, zone: zone, tag: e.Tag, alignment: align})
	}
	n := float64(len(r.examples))
	for w, c := range df {
		r.idf[w] = n / float64(c)
	}
	for i := range r.examples {
		r.examples[i].vec, r.examples[i].norm = r.vector(tokens[i])
	}
	return r
}

func (r *Retriever) Len() int {
	if r == nil {
		return 0
	}
	return len(r.examples)
}

// Retrieve returns up to k examples most similar to text, best first. A
// non-empty zone restricts candidates to that zone. Examples from the same
// book as docID score 20% higher. A query with no indexed words gets one
// example per tag instead.
func (r *Retriever) Retrieve(text string, k int, zone document.Zone, docID string) []Match {
	if r.Len() == 0 || k <= 0 {
		return nil
	}
	qvec, qnorm := r.vector(tokenize(text))
	if qnorm == 0 {
		return r.diverse(k)
	}
	book := bookOf(docID)
	type scored struct {
		i int
		s float64
	}
	var cands []scored
	for i, ex := range r.examples {
		if zone != "" && ex.zone != zone {
			continue
		}
		s := cosine(qvec, qnorm, ex.vec, ex.norm)
		if book != "" && strings.HasPrefix(ex.docID, book) {
			s *= sameBookBoost
		}
		cands = append(cands, scored{i, s})
	}
	sort.SliceStable(cands, func(a, b int) bool { return cands[a].s > cands[b].s })
	if len(cands) > k {
		cands = cands[:k]
	}
	out := make([]Match, len(cands))
	for j, c := range cands {
		out[j] = r.examples[c.i].match(c.s)
	}
	return out
}

// Nearest returns the closest example in zone when its score exceeds floor.
func (r *Retriever) Nearest(text string, zone document.Zone, floor float64) (Match, bool) {
	if zone == "" {
		zone = document.ZoneBody
	}
	ms := r.Retrieve(text, 1, zone, "")
	if len(ms) == 0 || ms[0].Score <= floor {
		return Match{}, false
	}
	return ms[0], true
}

// diverse picks the first example of each tag in tag order, then tops up
// with the best aligned examples.
func (r *Retriever) diverse(k int) []Match {
	first := map[string]int{}
	var tags []string
	for i, ex := range r.examples {
		if _, ok := first[ex.tag]; !ok {
			first[ex.tag] = i
			tags = append(tags, ex.tag)
		}
	}
	sort.Strings(tags)
	used := map[int]bool{}
	var out []Match
	for _, tag := range tags {
		if len(out) == k {
			return out
		}
		i := first[tag]
		used[i] = true
		out = append(out, r.examples[i].match(0))
	}
	order := make([]int, len(r.examples))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return r.examples[order[a]].alignment > r.examples[order[b]].alignment })
	for _, i := range order {
		if len(out) == k {
			break
		}
		if !used[i] {
			out = append(out, r.examples[i].match(0))
		}
	}
	return out
}

func (r *Retriever) vector(tokens []string) (map[string]float64, float64) {
	if r == nil || len(tokens) == 0 {
		return nil, 0
	}
	tf := map[string]int{}
	for _, w := range tokens {
		tf[w]++
	}
	vec := make(map[string]float64, len(tf))
	var sq float64
	for w, c := range tf {
		idf, ok := r.idf[w]
		if !ok {
			continue
		}
		v := float64(c) / float64(len(tokens)) * idf
		vec[w] = v
		sq += v * v
	}
	return vec, math.Sqrt(sq)
}

func (ex groundedExample) match(score float64) Match {
	return Match{DocID: ex.docID, Text: ex.text, Zone: ex.zone, Tag: ex.tag, Score: score}
}

func cosine(a map[string]float64, an float64, b map[string]float64, bn float64) float64 {
	if an == 0 || bn == 0 {
		return 0
	}
	if len(b) < len(a) {
		a, b = b, a
	}
	var dot float64
	for w, v := range a {
		dot += v * b[w]
	}
	return dot / (an * bn)
}

func tokenize(text string) []string {
	return wordRe.FindAllString(strings.ToLower(inlineMarkupRe.ReplaceAllString(text, " ")), -1)
}

// bookOf is the part of a document id before its first underscore.
func bookOf(docID string) string {
	book, _, _ := strings.Cut(docID, "_")
	return book
}

// groundedExamples renders the examples closest to the opening paragraphs of
// a chunk, restricted to the zone of its first block.
func (o *Orchestrator) groundedExamples(docID string, blocks []document.Block) string {
	if o.retriever.Len() == 0 || len(blocks) == 0 {
		return ""
	}
	var sample []string
	for _, b := range blocks[:min(queryBlocks, len(blocks))] {
		sample = append(sample, truncateRunes(b.Text, queryRunes))
	}
	zone := blocks[0].Meta.Zone
	if zone == "" {
		zone = document.ZoneBody
	}
	ms := o.retriever.Retrieve(strings.Join(sample, " "), o.opts.FewShot, zone, docID)
	if len(ms) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("GROUND TRUTH EXAMPLES (manually tagged paragraphs, use them as reference patterns):\n")
	for i, m := range ms {
		book := truncateRunes(bookOf(m.DocID), bookRunes)
		if book == "" {
			book = "?"
		}
		fmt.Fprintf(&sb, "%d. [%s] %s => %s [%s]\n", i+1, book, truncateRunes(m.Text, exampleRunes), m.Tag, m.Zone)
	}
	return sb.String()
}

func truncateRunes(text string, n int) string {
	text = strings.Join(strings.Fields(text), " ")
	if r := []rune(text); len(r) > n {
		return string(r[:n])
	}
	return text
}
