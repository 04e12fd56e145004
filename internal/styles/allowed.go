package styles

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrEmptyVocabulary = errors.New("allowed style vocabulary is empty")
	ErrMissingSentinel = errors.New("allowed style vocabulary is missing the sentinel tag")
)

// AllowedSet is the canonical tag vocabulary.
type AllowedSet map[string]struct{}

// NewAllowedSet builds a set from already-canonical tags.
func NewAllowedSet(tags ...string) AllowedSet {
	out := make(AllowedSet, len(tags))
	for _, t := range tags {
		if t = strings.TrimSpace(t); t != "" {
			out[t] = struct{}{}
		}
	}
	return out
}

func (s AllowedSet) Has(tag string) bool {
	_, ok := s[tag]
	return ok
}

func (s AllowedSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for t := range s {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// ParseAllowed reads one tag per line, normalizes each entry, drops the
// known-invalid labels and requires the sentinel.
func ParseAllowed(raw []byte, norm *Normalizer, sentinel string, invalid []string) (AllowedSet, error) {
	skip := make(map[string]bool, len(invalid))
	for _, v := range invalid {
		skip[strings.TrimSpace(v)] = true
	}

	out := AllowedSet{}
	sc := bufio.NewScanner(bytes.NewReader(raw))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if skip[line] {
			continue
		}
		tag := line
		if norm != nil {
			tag = norm.Normalize(line, Context{})
		}
		if tag == "" || skip[tag] {
			continue
		}
		out[tag] = struct{}{}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan allowed styles: %w", err)
	}
	if len(out) == 0 {
		return nil, ErrEmptyVocabulary
	}
	if sentinel != "" && !out.Has(sentinel) {
		return nil, fmt.Errorf("%w: %s", ErrMissingSentinel, sentinel)
	}
	return out, nil
}
