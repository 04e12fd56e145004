package zones

import (
	"regexp"
	"strings"
)

func compileAll(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(exprs))
	for _, e := range exprs {
		out = append(out, regexp.MustCompile(`(?i)`+e))
	}
	return out
}

func anyMatch(res []*regexp.Regexp, s string) bool {
	for _, re := range res {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

var (
	metadataPatterns = compileAll(
		`^book\s*title:`,
		`^chapter\s*#:`,
		`^chapter\s*title:`,
		`^corresponding\s*author:`,
		`^orcid\s*identifier:`,
		`^<metadata>`,
		`^key\s*words:`,
		`^abstract:`,
		`^section:\s*$`,
		`^phone:\s*\(\d{3}\)`,
		`@.*\.(org|com|edu|net)$`,
		`^\d{5}$`,
	)

	chapterOpenerPatterns = compileAll(
		`^<cn>chapter\s+\d+`,
		`^chapter\s+\d+\s*$`,
		`^chapter\s+\d+[:\s]`,
		`^\d+\s*$`,
	)

	bodyStartPatterns = compileAll(
		`^<h1>`,
		`^<h1\s`,
		`^\s*introduction\s*$`,
		`^\s*overview\s*$`,
		`^\s*background\s*$`,
		`^\s*getting\s+started\s*$`,
	)

	backMatterPatterns = compileAll(
		`^<ref>references`,
		`^references\s*$`,
		`^bibliography\s*$`,
		`^index\s*$`,
		`^appendix\s+[a-z]`,
		`^glossary\s*$`,
		`^suggested\s+reading`,
		`^further\s+reading`,
		`^answer\s+key`,
	)
)

// BoxKinds lists the recognised box markers, most specific first.
var BoxKinds = []string{
	"unnumbered box",
	"clinical pearl",
	"red flag",
	"case study",
	"key point",
	"note",
	"box",
	"tip",
	"example",
	"warning",
	"alert",
	"reflection",
	"discussion",
	"practice",
	"important",
	"remember",
}

// DefaultBoxPrefixes maps a box kind to its style prefix.
var DefaultBoxPrefixes = map[string]string{
	"note":           "NBX",
	"tip":            "NBX",
	"key point":      "NBX",
	"important":      "NBX",
	"remember":       "NBX",
	"unnumbered box": "NBX",
	"box":            "NBX",
	"clinical pearl": "BX1",
	"example":        "BX1",
	"red flag":       "BX2",
	"warning":        "BX2",
	"alert":          "BX2",
	"reflection":     "BX3",
	"discussion":     "BX3",
	"case study":     "BX4",
	"practice":       "EXER",
}

type boxPattern struct {
	kind  string
	start *regexp.Regexp
	end   *regexp.Regexp
}

var boxPatterns = func() []boxPattern {
	out := make([]boxPattern, 0, len(BoxKinds))
	for _, k := range BoxKinds {
		body := strings.ReplaceAll(regexp.QuoteMeta(k), " ", `\s*`)
		out = append(out, boxPattern{
			kind:  k,
			start: regexp.MustCompile(`(?i)^<` + body + `>`),
			end:   regexp.MustCompile(`(?i)^</` + body + `>`),
		})
	}
	return out
}()

// BoxStart returns the box kind opened by text, or "".
func BoxStart(text string) string {
	t := strings.TrimSpace(text)
	for _, p := range boxPatterns {
		if p.start.MatchString(t) {
			return p.kind
		}
	}
	return ""
}

// IsBoxEnd reports whether text closes a box.
func IsBoxEnd(text string) bool {
	t := strings.TrimSpace(text)
	for _, p := range boxPatterns {
		if p.end.MatchString(t) {
			return true
		}
	}
	return false
}

func IsMetadata(text string) bool      { return anyMatch(metadataPatterns, norm(text)) }
func IsChapterOpener(text string) bool { return anyMatch(chapterOpenerPatterns, norm(text)) }
func IsBodyStart(text string) bool     { return anyMatch(bodyStartPatterns, norm(text)) }
func IsBackMatter(text string) bool    { return anyMatch(backMatterPatterns, norm(text)) }

func norm(text string) string { return strings.ToLower(strings.TrimSpace(text)) }
