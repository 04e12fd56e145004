package styles

import (
	"regexp"
	"strings"
)

// Context carries what the normalizer may need beyond the raw tag.
type Context struct {
	// BoxPrefix replaces a generic "BX-" placeholder (NBX, BX1..BX4). Empty uses the default.
	BoxPrefix string
}

var (
	wsRe           = regexp.MustCompile(`\s+`)
	vendorBoxRe    = regexp.MustCompile(`^[A-Z]{2,}-?BX-(.+)$`)
	skHeadingRe    = regexp.MustCompile(`^(?:SK_H|TBL-H)([1-6])$`)
	vendorPrefixRe = regexp.MustCompile(`^[A-Z]{2,}_(.+)$`)
	positionSuffix = []string{"-FIRST", "-MID", "-LAST"}
)

// Normalizer maps raw tags to their canonical spelling. It is pure and safe for concurrent use.
type Normalizer struct {
	aliases      map[string]string
	upperAliases map[string]string
	listBaseRe   *regexp.Regexp
	defaultBox   string
}

func newNormalizer(aliases map[string]string, listBases []string, defaultBox string) *Normalizer {
	n := &Normalizer{
		aliases:      make(map[string]string, len(aliases)),
		upperAliases: make(map[string]string, len(aliases)),
		defaultBox:   defaultBox,
	}
	for k, v := range aliases {
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		n.aliases[k] = v
		n.upperAliases[strings.ToUpper(k)] = v
	}
	bases := make([]string, 0, len(listBases))
	for _, b := range listBases {
		if b = strings.TrimSpace(b); b != "" {
			bases = append(bases, regexp.QuoteMeta(strings.ToUpper(b)))
		}
	}
	if len(bases) > 0 {
		n.listBaseRe = regexp.MustCompile(`^(?:` + strings.Join(bases, "|") + `)\d?$`)
	}
	return n
}

// Normalize canonicalizes raw. Calling it on its own output returns the same value.
func (n *Normalizer) Normalize(raw string, ctx Context) string {
	tag := strings.ReplaceAll(raw, "\u00a0", " ")
	tag = strings.TrimSpace(wsRe.ReplaceAllString(tag, " "))
	if tag == "" {
		return ""
	}

	box := strings.TrimSpace(strings.ToUpper(ctx.BoxPrefix))
	if box == "" {
		box = n.defaultBox
	}

	switch {
	case strings.Contains(strings.ToUpper(tag), "BX"):
		tag = strings.ToUpper(strings.ReplaceAll(tag, "_", "-"))
		if m := vendorBoxRe.FindStringSubmatch(tag); m != nil {
			tag = n.defaultBox + "-" + m[1]
		}
	case skHeadingRe.MatchString(strings.ToUpper(tag)):
		tag = "TH" + skHeadingRe.FindStringSubmatch(strings.ToUpper(tag))[1]
	default:
		if m := vendorPrefixRe.FindStringSubmatch(tag); m != nil {
			tag = m[1]
		}
	}

	tag = n.alias(tag)

	if strings.HasPrefix(tag, "BX-") {
		tag = box + tag[2:]
	}
	return n.stripPosition(tag)
}

func (n *Normalizer) alias(tag string) string {
	if v, ok := n.aliases[tag]; ok {
		return v
	}
	if v, ok := n.upperAliases[strings.ToUpper(tag)]; ok {
		return v
	}
	return tag
}

func (n *Normalizer) stripPosition(tag string) string {
	for _, suf := range positionSuffix {
		if !strings.HasSuffix(tag, suf) {
			continue
		}
		base := strings.TrimSuffix(tag, suf)
		if base == "" {
			return tag
		}
		if n.isListBase(base) {
			return tag
		}
		return base
	}
	return tag
}

// isListBase reports whether the last dash segment of base is a list family (BL, NL2, TUL...).
func (n *Normalizer) isListBase(base string) bool {
	if n.listBaseRe == nil {
		return false
	}
	seg := base
	if i := strings.LastIndex(base, "-"); i >= 0 {
		seg = base[i+1:]
	}
	return n.listBaseRe.MatchString(strings.ToUpper(seg))
}

// IsListTag reports whether tag carries a meaningful list position suffix.
func (n *Normalizer) IsListTag(tag string) bool {
	for _, suf := range positionSuffix {
		if strings.HasSuffix(tag, suf) {
			return n.isListBase(strings.TrimSuffix(tag, suf))
		}
	}
	return false
}
