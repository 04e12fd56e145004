package refzone

import "testing"

func TestEntryTag(t *testing.T) {
	cases := map[string]string{
		"1. Smith J. Title. Lancet. 2019.": "REF-N",
		"1) Smith J. Title.":               "REF-N",
		"(12) Doe A. Book. 2001.":          "REF-N",
		"[3] Roe B. Paper. 2010.":          "REF-N",
		"• 4. Bulleted and numbered.":      "REF-N",
		"14 Smith J. Title.":               "REF-N",
		"Smith J. Title. Lancet. 2019.":    "REF-U",
		"• Doe A. Book. 2001.":             "REF-U",
		"":                                 "REF-U",
	}
	for text, want := range cases {
		if got := EntryTag(text); got != want {
			t.Fatalf("EntryTag(%q) = %s, want %s", text, got, want)
		}
	}
}

func TestSubheadingMarkers(t *testing.T) {
	for _, s := range []string{"<REF-H2>Journal Articles", "<ref-h2>Books", "  <RefH2>Web"} {
		if !HasSubheadingMarker(s) {
			t.Fatalf("missed marker in %q", s)
		}
	}
	for _, s := range []string{"Journal Articles", "See <REF-H2> below", "<REF>Smith"} {
		if HasSubheadingMarker(s) {
			t.Fatalf("false marker in %q", s)
		}
	}
	for _, s := range []string{"REF-H2", "Ref-H2", "refh2", "REF_H2", " REF H2 "} {
		if !IsSubheadingStyle(s) {
			t.Fatalf("style %q not recognised", s)
		}
	}
	for _, s := range []string{"REF-N", "Heading 2", ""} {
		if IsSubheadingStyle(s) {
			t.Fatalf("style %q recognised", s)
		}
	}
}
