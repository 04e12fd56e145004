// Package zones labels a paragraph stream with document regions.
//
// The detector is an explicit state machine: State is a value and Next is a
// pure transition. Flow zones move METADATA -> FRONT_MATTER -> BODY ->
// BACK_MATTER; boxes are a stack layered on top and take precedence while open.
package zones

import (
	"strings"

	"github.com/yungbote/styletag-backend/internal/domain/document"
)

// State is the detector state after consuming one paragraph.
type State struct {
	// Zone and BoxType label the paragraph just consumed.
	Zone    document.Zone `json:"zone"`
	BoxType string        `json:"box_type,omitempty"`
	// Flow is the region outside any box.
	Flow document.Zone `json:"flow"`
	// Boxes holds open box kinds, innermost last.
	Boxes []string `json:"boxes,omitempty"`
}

// InBox reports whether a box is open.
func (s State) InBox() bool { return len(s.Boxes) > 0 }

// CloseBoxes drops every open box and relabels the state with its flow zone.
func (s State) CloseBoxes() State {
	return State{Zone: s.Flow, Flow: s.Flow}
}

// Machine holds the box kind to prefix mapping used by transitions.
type Machine struct {
	PrefixFor func(kind string) string
}

// Default uses DefaultBoxPrefixes.
var Default = Machine{}

func (m Machine) boxZone(kind string) document.Zone {
	prefix := ""
	if m.PrefixFor != nil {
		prefix = m.PrefixFor(kind)
	}
	if prefix == "" {
		prefix = DefaultBoxPrefixes[kind]
	}
	if prefix == "" {
		prefix = "NBX"
	}
	return document.BoxZone(prefix)
}

// Initial picks the starting state from the first non-empty paragraph.
func Initial(firstText string) State {
	z := document.ZoneFrontMatter
	switch {
	case strings.TrimSpace(firstText) == "":
	case IsMetadata(firstText):
		z = document.ZoneMetadata
	case IsChapterOpener(firstText):
		z = document.ZoneFrontMatter
	case IsBodyStart(firstText):
		z = document.ZoneBody
	}
	return State{Zone: z, Flow: z}
}

// Next is the transition function for Default.
func Next(s State, text string, inTable bool) State {
	return Default.Next(s, text, inTable)
}

// Next returns the state after consuming text. s is not modified.
func (m Machine) Next(s State, text string, inTable bool) State {
	boxes := append([]string(nil), s.Boxes...)
	out := State{Flow: s.Flow}

	if len(boxes) > 0 && IsBoxEnd(text) {
		top := boxes[len(boxes)-1]
		out.Zone, out.BoxType = m.boxZone(top), top
		out.Boxes = boxes[:len(boxes)-1]
		return out
	}
	if kind := BoxStart(text); kind != "" {
		out.Boxes = append(boxes, kind)
		out.Zone, out.BoxType = m.boxZone(kind), kind
		return out
	}
	if len(boxes) > 0 {
		top := boxes[len(boxes)-1]
		out.Boxes = boxes
		out.Zone, out.BoxType = m.boxZone(top), top
		return out
	}
	if inTable {
		out.Zone = document.ZoneTable
		return out
	}

	out.Flow = nextFlow(s.Flow, text)
	out.Zone = out.Flow
	return out
}

func nextFlow(flow document.Zone, text string) document.Zone {
	switch flow {
	case document.ZoneBody:
		if IsBackMatter(text) {
			return document.ZoneBackMatter
		}
		return flow
	case document.ZoneBackMatter:
		return flow
	}
	if IsBodyStart(text) {
		return document.ZoneBody
	}
	if IsChapterOpener(text) {
		return document.ZoneFrontMatter
	}
	return flow
}

// Label is the zone assignment for one paragraph.
type Label struct {
	Zone    document.Zone
	BoxType string
}

// Detector scans paragraphs in a single pass.
type Detector struct {
	Machine Machine
}

// Scan labels texts in order and returns the labels with the final state.
// Empty texts are labelled with the current zone and do not advance the machine.
func (d Detector) Scan(texts []string) ([]Label, State) {
	out := make([]Label, len(texts))
	first := ""
	for _, t := range texts {
		if strings.TrimSpace(t) != "" {
			first = t
			break
		}
	}
	s := Initial(first)
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			out[i] = Label{Zone: s.Zone, BoxType: s.BoxType}
			continue
		}
		s = d.Machine.Next(s, t, false)
		out[i] = Label{Zone: s.Zone, BoxType: s.BoxType}
	}
	return out, s
}

// ScanTable labels table cell texts starting from the body flow zone with no open boxes.
func (d Detector) ScanTable(after State, texts []string) []Label {
	s := after.CloseBoxes()
	out := make([]Label, len(texts))
	for i, t := range texts {
		s = d.Machine.Next(s, t, true)
		out[i] = Label{Zone: s.Zone, BoxType: s.BoxType}
	}
	return out
}
