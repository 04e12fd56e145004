package ingestion

import (
	"errors"
	"testing"

	"github.com/yungbote/styletag-backend/internal/domain/document"
)

func TestAssembleIDOrder(t *testing.T) {
	doc := Document{
		ID: "doc-1",
		Paragraphs: []Paragraph{
			{Text: "Chapter 1"},
			{Text: "   "},
			{Text: "Introduction"},
			{Text: "<note>"},
			{Text: "• boxed bullet", StyleName: "List Paragraph"},
		},
		Tables: []Table{{Rows: []Row{
			{Cells: []Cell{{Paragraphs: []Paragraph{{Text: "Drug"}}}, {Paragraphs: []Paragraph{{Text: "Dose"}, {Text: ""}}}}},
			{Cells: []Cell{{Paragraphs: []Paragraph{{Text: "Aspirin"}}}, {Paragraphs: []Paragraph{{Text: "• 81 mg"}}}}},
		}}},
	}
	blocks, err := Assembler{}.Assemble(doc)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	wantText := []string{"Chapter 1", "Introduction", "<note>", "• boxed bullet", "Drug", "Dose", "Aspirin", "• 81 mg"}
	if len(blocks) != len(wantText) {
		t.Fatalf("got %d blocks", len(blocks))
	}
	for i, b := range blocks {
		if b.ID != i+1 || b.Text != wantText[i] {
			t.Fatalf("block %d: id=%d text=%q", i, b.ID, b.Text)
		}
	}

	if blocks[0].Meta.Zone != document.ZoneFrontMatter || blocks[1].Meta.Zone != document.ZoneBody {
		t.Fatalf("flow zones: %s %s", blocks[0].Meta.Zone, blocks[1].Meta.Zone)
	}
	if blocks[3].Meta.Zone != "BOX_NBX" || blocks[3].Meta.BoxPrefix != "NBX" || !blocks[3].Meta.HasBullet {
		t.Fatalf("boxed bullet: %+v", blocks[3].Meta)
	}
	// Tables start with no open box even though the body box was never closed.
	for _, b := range blocks[4:] {
		if b.Meta.Zone != document.ZoneTable || !b.Meta.IsTable {
			t.Fatalf("table cell %d: %+v", b.ID, b.Meta)
		}
	}
	if got := blocks[4].Meta.InferredStyle; got != "T2" {
		t.Fatalf("header cell style: %s", got)
	}
	if got := blocks[6].Meta.InferredStyle; got != "T4" {
		t.Fatalf("stub cell style: %s", got)
	}
	if got := blocks[7].Meta.InferredStyle; got != "TBL-MID" {
		t.Fatalf("bullet cell style: %s", got)
	}
	if blocks[7].Meta.Row != 1 || blocks[7].Meta.Cell != 1 || blocks[7].Meta.IsHeaderRow {
		t.Fatalf("cell coordinates: %+v", blocks[7].Meta)
	}
}

func TestFormattingFlags(t *testing.T) {
	cases := []struct {
		p    Paragraph
		want document.StructuralMetadata
	}{
		{Paragraph{Text: "1. First"}, document.StructuralMetadata{HasNumbering: true}},
		{Paragraph{Text: "- dash item"}, document.StructuralMetadata{HasBullet: true}},
		{Paragraph{Text: "auto", NumPr: true, StyleName: "List Bullet"}, document.StructuralMetadata{HasBullet: true}},
		{Paragraph{Text: "auto", NumPr: true, StyleName: "List Number"}, document.StructuralMetadata{HasNumbering: true}},
		{Paragraph{Text: "auto", NumPr: true, StyleName: "List Paragraph"}, document.StructuralMetadata{HasXMLList: true}},
		{Paragraph{Text: "indented", Indent: 0.5}, document.StructuralMetadata{Indent: 2}},
		{Paragraph{Text: "<REF-H2>Journal Articles"}, document.StructuralMetadata{RefHeading: true}},
		{Paragraph{Text: "Books", StyleName: "Ref-H2"}, document.StructuralMetadata{RefHeading: true}},
	}
	for _, tc := range cases {
		if got := formatting(tc.p); got != tc.want {
			t.Fatalf("formatting(%+v): got %+v", tc.p, got)
		}
	}
}

func TestInferTableStyle(t *testing.T) {
	cases := []struct {
		style           string
		text            string
		header, firstCo bool
		want            string
	}{
		{"TableBody", "x", false, true, "T4"},
		{"TableBody", "x", false, false, "T"},
		{"TableHeader", "x", false, false, "T2"},
		{"TBL-MID", "x", false, false, "TBL-MID"},
		{"TableFootnote", "x", false, false, "TFN"},
		{"", "x", true, false, "T2"},
		{"", "○ item", false, false, "TBL-MID"},
		{"", "value", false, false, "T"},
	}
	for _, tc := range cases {
		if got := InferTableStyle(tc.style, tc.text, tc.header, tc.firstCo); got != tc.want {
			t.Fatalf("InferTableStyle(%q, %q): got %s want %s", tc.style, tc.text, got, tc.want)
		}
	}
}

func TestEmptyDocument(t *testing.T) {
	if _, err := (Assembler{}).Assemble(Document{Paragraphs: []Paragraph{{Text: " "}}}); !errors.Is(err, ErrEmptyDocument) {
		t.Fatalf("expected ErrEmptyDocument, got %v", err)
	}
}

func TestFromText(t *testing.T) {
	doc := FromText("d", "Title\n\n  \nBody line\r\n")
	if len(doc.Paragraphs) != 2 || doc.Paragraphs[1].Text != "Body line" {
		t.Fatalf("paragraphs: %+v", doc.Paragraphs)
	}
}
