package document

import "strings"

// Zone is the document region a paragraph belongs to.
type Zone string

const (
	ZoneMetadata    Zone = "METADATA"
	ZoneFrontMatter Zone = "FRONT_MATTER"
	ZoneBody        Zone = "BODY"
	ZoneBackMatter  Zone = "BACK_MATTER"
	ZoneTable       Zone = "TABLE"

	boxZonePrefix = "BOX_"
)

// BoxZone returns the zone for a box with the given style prefix (NBX, BX1..BX4, EXER).
func BoxZone(prefix string) Zone {
	return Zone(boxZonePrefix + strings.ToUpper(strings.TrimSpace(prefix)))
}

func (z Zone) IsBox() bool { return strings.HasPrefix(string(z), boxZonePrefix) }

// BoxPrefix returns the style prefix of a box zone, or "" for other zones.
func (z Zone) BoxPrefix() string {
	if !z.IsBox() {
		return ""
	}
	return strings.TrimPrefix(string(z), boxZonePrefix)
}

func (z Zone) String() string { return string(z) }
