// Package ingestion turns a raw document description into zone-labelled blocks.
//
// Block ids follow a fixed contract: non-empty body paragraphs first, in order,
// then non-empty table cell paragraphs (table, row, cell, paragraph order),
// numbered 1..N. Renderers re-apply tags by id, so this order must not change.
package ingestion

import (
	"bufio"
	"errors"
	"regexp"
	"strings"

	"github.com/yungbote/styletag-backend/internal/domain/document"
	"github.com/yungbote/styletag-backend/internal/ingestion/refzone"
	"github.com/yungbote/styletag-backend/internal/ingestion/zones"
)

var ErrEmptyDocument = errors.New("document has no non-empty paragraphs")

// Paragraph is one source paragraph with the formatting hints the reader exposes.
type Paragraph struct {
	Text      string  `json:"text"`
	StyleName string  `json:"style_name,omitempty"`
	Indent    float64 `json:"indent,omitempty"` // inches
	NumPr     bool    `json:"num_pr,omitempty"` // automatic list numbering present
}

type Cell struct {
	Paragraphs []Paragraph `json:"paragraphs"`
}

type Row struct {
	Cells []Cell `json:"cells"`
}

type Table struct {
	Rows []Row `json:"rows"`
}

// Document is the ingestion input.
type Document struct {
	ID         string      `json:"id"`
	Paragraphs []Paragraph `json:"paragraphs"`
	Tables     []Table     `json:"tables,omitempty"`
}

// FromText builds a Document with one paragraph per non-blank line.
func FromText(id, text string) Document {
	doc := Document{ID: id}
	sc := bufio.NewScanner(strings.NewReader(text))
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		doc.Paragraphs = append(doc.Paragraphs, Paragraph{Text: line})
	}
	return doc
}

var (
	numberingRe = regexp.MustCompile(`^\d+\.?\s`)
	bulletRe    = regexp.MustCompile(`^[•\-\*]\s`)
)

// Assembler builds blocks. PrefixFor maps a box kind to its style prefix; nil uses the zone defaults.
type Assembler struct {
	PrefixFor func(kind string) string
}

// Assemble returns the blocks of doc in id order.
func (a Assembler) Assemble(doc Document) ([]document.Block, error) {
	det := zones.Detector{Machine: zones.Machine{PrefixFor: a.PrefixFor}}

	var body []Paragraph
	for _, p := range doc.Paragraphs {
		if strings.TrimSpace(p.Text) != "" {
			body = append(body, p)
		}
	}
	texts := make([]string, len(body))
	for i, p := range body {
		texts[i] = strings.TrimSpace(p.Text)
	}
	labels, final := det.Scan(texts)

	out := make([]document.Block, 0, len(body))
	for i, p := range body {
		meta := formatting(p)
		meta.Zone = labels[i].Zone
		meta.BoxType = labels[i].BoxType
		meta.BoxPrefix = labels[i].Zone.BoxPrefix()
		out = append(out, document.Block{ID: len(out) + 1, Text: texts[i], Meta: meta})
	}

	type cellRef struct {
		para             Paragraph
		table, row, cell int
	}
	var cells []cellRef
	for ti, t := range doc.Tables {
		for ri, r := range t.Rows {
			for ci, c := range r.Cells {
				for _, p := range c.Paragraphs {
					if strings.TrimSpace(p.Text) == "" {
						continue
					}
					cells = append(cells, cellRef{para: p, table: ti, row: ri, cell: ci})
				}
			}
		}
	}
	cellTexts := make([]string, len(cells))
	for i, c := range cells {
		cellTexts[i] = strings.TrimSpace(c.para.Text)
	}
	cellLabels := det.ScanTable(final, cellTexts)
	for i, c := range cells {
		meta := formatting(c.para)
		meta.Zone = cellLabels[i].Zone
		meta.BoxType = cellLabels[i].BoxType
		meta.BoxPrefix = cellLabels[i].Zone.BoxPrefix()
		meta.IsTable = true
		meta.TableIndex = c.table
		meta.Row = c.row
		meta.Cell = c.cell
		meta.IsHeaderRow = c.row == 0
		meta.IsFirstColumn = c.cell == 0
		meta.InferredStyle = InferTableStyle(c.para.StyleName, cellTexts[i], c.row == 0, c.cell == 0)
		out = append(out, document.Block{ID: len(out) + 1, Text: cellTexts[i], Meta: meta})
	}

	if len(out) == 0 {
		return nil, ErrEmptyDocument
	}
	return out, nil
}

func formatting(p Paragraph) document.StructuralMetadata {
	text := strings.TrimSpace(p.Text)
	var m document.StructuralMetadata
	m.HasNumbering = numberingRe.MatchString(text)
	m.HasBullet = bulletRe.MatchString(text)
	m.RefHeading = refzone.IsSubheadingStyle(p.StyleName) || refzone.HasSubheadingMarker(text)
	if p.NumPr {
		style := strings.ToLower(p.StyleName)
		switch {
		case strings.Contains(style, "bullet"):
			m.HasBullet = true
		case strings.Contains(style, "number"):
			m.HasNumbering = true
		default:
			m.HasXMLList = true
		}
	}
	if p.Indent > 0 {
		m.Indent = int(p.Indent / 0.25)
	}
	return m
}

// InferTableStyle guesses a cell tag from its paragraph style and grid position.
func InferTableStyle(style, text string, header, firstCol bool) string {
	if s := strings.ToUpper(strings.TrimSpace(style)); s != "" {
		switch {
		case s == "T" || s == "TABLEBODY" || s == "GT":
			if firstCol {
				return "T4"
			}
			return "T"
		case s == "T2" || s == "TABLECOLUMNHEAD1" || s == "TABLEHEADER":
			return "T2"
		case strings.Contains(s, "TBL") || strings.Contains(s, "BULLET"):
			return "TBL-MID"
		case s == "TFN" || s == "TABLEFOOTNOTE":
			return "TFN"
		case strings.HasPrefix(s, "UNT"):
			switch {
			case header:
				return "T2"
			case firstCol:
				return "T4"
			}
			return "T"
		}
	}
	switch {
	case header:
		return "T2"
	case firstCol:
		return "T4"
	}
	for _, glyph := range []string{"•", "-", "●", "○"} {
		if strings.HasPrefix(text, glyph) {
			return "TBL-MID"
		}
	}
	return "T"
}
