package promptstyle

import (
	"strings"
	"testing"
)

func TestApplySystem(t *testing.T) {
	if ApplySystem("  ", "json") != "" {
		t.Fatalf("blank prompt must stay blank")
	}
	got := ApplySystem("Tag each paragraph.", "json")
	if !strings.HasPrefix(got, marker) || !strings.HasSuffix(got, "Tag each paragraph.") || !strings.Contains(got, "Return only JSON") {
		t.Fatalf("unexpected prompt:\n%s", got)
	}
	if ApplySystem(got, "json") != got {
		t.Fatalf("ApplySystem must be idempotent")
	}
	if strings.Contains(ApplySystem("x", "text"), "Return only JSON") {
		t.Fatalf("text mode must not ask for JSON")
	}
}
