package styles

import (
	"sort"
	"strings"
)

type zonePattern struct {
	value  string
	prefix bool
}

func (p zonePattern) match(tag string) bool {
	if p.prefix {
		return strings.HasPrefix(tag, p.value)
	}
	return tag == p.value
}

// ZoneConstraints maps a zone name to the tags valid inside it. A zone with no
// entry, or an empty entry, is unconstrained.
type ZoneConstraints map[string][]zonePattern

func newZoneConstraints(raw map[string][]string) ZoneConstraints {
	out := make(ZoneConstraints, len(raw))
	for zone, entries := range raw {
		if len(entries) == 0 {
			continue
		}
		pats := make([]zonePattern, 0, len(entries))
		for _, e := range entries {
			e = strings.TrimSpace(e)
			if e == "" {
				continue
			}
			if strings.HasSuffix(e, "*") {
				pats = append(pats, zonePattern{value: strings.TrimSuffix(e, "*"), prefix: true})
				continue
			}
			pats = append(pats, zonePattern{value: e})
		}
		out[strings.ToUpper(strings.TrimSpace(zone))] = pats
	}
	return out
}

// Constrained reports whether zone restricts its tags.
func (c ZoneConstraints) Constrained(zone string) bool {
	return len(c[zone]) > 0
}

// Allows reports whether tag is valid in zone.
func (c ZoneConstraints) Allows(zone, tag string) bool {
	pats := c[zone]
	if len(pats) == 0 {
		return true
	}
	for _, p := range pats {
		if p.match(tag) {
			return true
		}
	}
	return false
}

// Restrict returns the members of allowed that are valid in zone.
func (c ZoneConstraints) Restrict(zone string, allowed AllowedSet) AllowedSet {
	if !c.Constrained(zone) {
		return allowed
	}
	out := AllowedSet{}
	for tag := range allowed {
		if c.Allows(zone, tag) {
			out[tag] = struct{}{}
		}
	}
	return out
}

// Zones lists the constrained zones.
func (c ZoneConstraints) Zones() []string {
	out := make([]string, 0, len(c))
	for z := range c {
		out = append(out, z)
	}
	sort.Strings(out)
	return out
}
