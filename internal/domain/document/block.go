package document

type ListKind string

const (
	ListNone      ListKind = ""
	ListBullet    ListKind = "bullet"
	ListNumbered  ListKind = "numbered"
	ListUnordered ListKind = "unordered"
)

type ListPosition string

const (
	PositionNone  ListPosition = ""
	PositionFirst ListPosition = "FIRST"
	PositionMid   ListPosition = "MID"
	PositionLast  ListPosition = "LAST"
)

type CaptionType string

const (
	CaptionNone   CaptionType = ""
	CaptionFigure CaptionType = "figure"
	CaptionTable  CaptionType = "table"
)

type BoxMarker string

const (
	MarkerNone  BoxMarker = ""
	MarkerStart BoxMarker = "start"
	MarkerEnd   BoxMarker = "end"
)

// StructuralMetadata is everything ingestion and feature extraction learned
// about a paragraph's position and shape.
type StructuralMetadata struct {
	Zone      Zone   `json:"context_zone"`
	BoxType   string `json:"box_type,omitempty"`
	BoxPrefix string `json:"box_prefix,omitempty"`

	ListKind     ListKind     `json:"list_kind,omitempty"`
	ListPosition ListPosition `json:"list_position,omitempty"`
	Indent       int          `json:"indent_level,omitempty"`
	HasBullet    bool         `json:"has_bullet,omitempty"`
	HasNumbering bool         `json:"has_numbering,omitempty"`
	HasXMLList   bool         `json:"has_xml_list,omitempty"`

	IsTable       bool   `json:"is_table,omitempty"`
	TableIndex    int    `json:"table_index,omitempty"`
	Row           int    `json:"row_index,omitempty"`
	Cell          int    `json:"cell_index,omitempty"`
	IsHeaderRow   bool   `json:"is_header_row,omitempty"`
	IsFirstColumn bool   `json:"is_first_column,omitempty"`
	InferredStyle string `json:"inferred_style,omitempty"`

	Caption    CaptionType `json:"caption_type,omitempty"`
	SourceLine bool        `json:"source_line,omitempty"`
	BoxMarker  BoxMarker   `json:"box_marker,omitempty"`
	BoxLabel   bool        `json:"box_label,omitempty"`
	BoxTitle   bool        `json:"box_title,omitempty"`

	IsReferenceZone bool `json:"is_reference_zone,omitempty"`
	RefHeading      bool `json:"ref_heading,omitempty"`
}

// Block is one non-empty paragraph. ID is 1-based and is the join key across
// every stage.
type Block struct {
	ID   int                `json:"id"`
	Text string             `json:"text"`
	Meta StructuralMetadata `json:"metadata"`
}

// Index maps block ids to their slice position.
func Index(blocks []Block) map[int]int {
	out := make(map[int]int, len(blocks))
	for i, b := range blocks {
		out[b.ID] = i
	}
	return out
}
