package classify

import (
	"fmt"
	"sort"
	"strings"

	"github.com/yungbote/styletag-backend/internal/domain/document"
	"github.com/yungbote/styletag-backend/internal/ingestion/refzone"
	"github.com/yungbote/styletag-backend/internal/quality"
)

const systemPrompt = `You tag manuscript paragraphs with publishing style codes.
Each input line is one paragraph: [id] [context] text.
Context names the document zone, table position, box, list and caption hints.
Return one decision per id with the style tag and a confidence from 0 to 100.`

const fallbackSystemPrompt = `You review low-confidence style tags on manuscript paragraphs.
For each paragraph decide the correct style tag from the allowed list.
Return one decision per id with the style tag and a confidence from 0 to 100.`

// contextParts renders the structural hints of one block.
func contextParts(b document.Block) []string {
	m := b.Meta
	var parts []string
	if m.Zone != "" && m.Zone != document.ZoneBody {
		parts = append(parts, string(m.Zone))
	}
	if m.IsTable {
		pos := fmt.Sprintf("R%dC%d", m.Row, m.Cell)
		switch {
		case m.IsHeaderRow:
			pos = "HEADER_ROW"
		case m.IsFirstColumn:
			pos = "FIRST_COL"
		}
		t := fmt.Sprintf("TABLE%d,%s", m.TableIndex+1, pos)
		if m.InferredStyle != "" {
			t += ",likely:" + m.InferredStyle
		}
		parts = append(parts, t)
	}
	if m.BoxType != "" {
		parts = append(parts, "box:"+m.BoxType)
	}
	if m.HasXMLList {
		parts = append(parts, "LIST_ITEM")
	}
	if m.ListKind != document.ListNone {
		l := "LIST:" + string(m.ListKind)
		if m.ListPosition != document.PositionNone {
			l += "," + string(m.ListPosition)
		}
		parts = append(parts, l)
	}
	if m.Caption != document.CaptionNone {
		parts = append(parts, "CAPTION:"+string(m.Caption))
	}
	if m.SourceLine {
		parts = append(parts, "SOURCE_LINE")
	}
	if m.BoxMarker != document.MarkerNone {
		parts = append(parts, "BOX_MARKER:"+string(m.BoxMarker))
	}
	return parts
}

// promptText prefixes list markers the source formatting implies but the text lacks.
func promptText(b document.Block) string {
	text := strings.TrimSpace(b.Text)
	switch {
	case b.Meta.HasBullet && !bulletLeadRe.MatchString(text):
		return "• " + text
	case b.Meta.HasNumbering && !refzone.IsNumbered(text):
		return "1. " + text
	}
	return text
}

func paragraphLine(b document.Block) string {
	parts := contextParts(b)
	if len(parts) == 0 {
		return fmt.Sprintf("[%d] %s", b.ID, promptText(b))
	}
	return fmt.Sprintf("[%d] [%s] %s", b.ID, strings.Join(parts, " | "), promptText(b))
}

// zoneNotes lists the zones present in the chunk with the tags valid in each.
func (o *Orchestrator) zoneNotes(blocks []document.Block) string {
	counts := map[string]int{}
	for _, b := range blocks {
		if b.Meta.Zone != "" && b.Meta.Zone != document.ZoneBody {
			counts[string(b.Meta.Zone)]++
		}
	}
	if len(counts) == 0 {
		return ""
	}
	zones := make([]string, 0, len(counts))
	for z := range counts {
		zones = append(zones, z)
	}
	sort.Strings(zones)

	var sb strings.Builder
	sb.WriteString("CONTEXT ZONES DETECTED:\n")
	for _, z := range zones {
		fmt.Fprintf(&sb, "- %s: %d paragraphs\n", z, counts[z])
	}
	for _, z := range zones {
		if !o.tax.Constraints.Constrained(z) {
			continue
		}
		valid := o.tax.Constraints.Restrict(z, o.tax.Allowed).Sorted()
		fmt.Fprintf(&sb, "VALID STYLES IN %s: %s\n", z, strings.Join(valid, ", "))
	}
	return sb.String()
}

func (o *Orchestrator) userPrompt(docID string, blocks []document.Block, profile quality.Profile) string {
	var sb strings.Builder
	sb.WriteString("Classify each paragraph.\n")
	if profile != quality.ProfileDefault {
		fmt.Fprintf(&sb, "PROFILE: %s. %s\n", profile, profile.Hint())
	}
	sb.WriteString("\nPARAGRAPHS:\n")
	for _, b := range blocks {
		sb.WriteString(paragraphLine(b))
		sb.WriteByte('\n')
	}
	if notes := o.zoneNotes(blocks); notes != "" {
		sb.WriteString("\n")
		sb.WriteString(notes)
	}
	if examples := o.groundedExamples(docID, blocks); examples != "" {
		sb.WriteString("\n")
		sb.WriteString(examples)
	}
	sb.WriteString("\nReturn ONLY one of these tags exactly:\n")
	sb.WriteString(strings.Join(o.tax.Tags(), ", "))
	sb.WriteString("\nIf unsure, choose TXT.\n")
	sb.WriteString(`
Respond with {"items":[{"id":1,"tag":"CN","confidence":99,"reasoning":"short reason"}]} covering every id.`)
	return sb.String()
}

func correctionSuffix(invalid []string) string {
	return fmt.Sprintf("\n\nINVALID TAGS FOUND: %s\nReturn corrected JSON using ONLY allowed tags.", strings.Join(invalid, ", "))
}

// fallbackPrompt lists each low-confidence paragraph with its neighbours' tags.
func (o *Orchestrator) fallbackPrompt(batch []int, results []document.ClassificationResult, blocks []document.Block) string {
	var sb strings.Builder
	sb.WriteString("Review these paragraphs. Their current tags are uncertain.\n\n")
	for _, idx := range batch {
		b, r := blocks[idx], results[idx]
		zone := b.Meta.Zone
		if zone == "" {
			zone = document.ZoneBody
		}
		fmt.Fprintf(&sb, "[ID: %d]\nZone: %s\nCurrent tag: %s (%.0f%%)\n", b.ID, zone, r.Tag, r.Confidence*100)
		if r.Reasoning != "" {
			fmt.Fprintf(&sb, "Reason: %s\n", r.Reasoning)
		}
		fmt.Fprintf(&sb, "Context BEFORE: %s\n", neighbourTags(results, idx-3, idx))
		fmt.Fprintf(&sb, "Context AFTER: %s\n", neighbourTags(results, idx+1, idx+4))
		fmt.Fprintf(&sb, "Text: %s\n\n", promptText(b))
	}
	sb.WriteString("Return ONLY one of these tags exactly:\n")
	sb.WriteString(strings.Join(o.tax.Tags(), ", "))
	sb.WriteString("\nIf unsure, choose TXT.\n")
	sb.WriteString(`
Respond with {"items":[{"id":1,"tag":"TXT","confidence":80,"reasoning":"short reason"}]} covering every id.`)
	return sb.String()
}

func neighbourTags(results []document.ClassificationResult, from, to int) string {
	if from < 0 {
		from = 0
	}
	if to > len(results) {
		to = len(results)
	}
	if from >= to {
		return "-"
	}
	tags := make([]string, 0, to-from)
	for _, r := range results[from:to] {
		tags = append(tags, r.Tag)
	}
	return strings.Join(tags, ", ")
}
