package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestReadDocument(t *testing.T) {
	dir := t.TempDir()
	txt := filepath.Join(dir, "ch1.txt")
	if err := os.WriteFile(txt, []byte("Title\n\nBody text.\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	doc, err := readDocument(txt)
	if err != nil || len(doc.Paragraphs) != 2 {
		t.Fatalf("text doc: %+v %v", doc, err)
	}

	js := filepath.Join(dir, "ch2.json")
	if err := os.WriteFile(js, []byte(`{"id":"ch2","paragraphs":[{"text":"A"}]}`), 0o644); err != nil {
		t.Fatal(err)
	}
	doc, err = readDocument(js)
	if err != nil || doc.ID != "ch2" || len(doc.Paragraphs) != 1 {
		t.Fatalf("json doc: %+v %v", doc, err)
	}
}
