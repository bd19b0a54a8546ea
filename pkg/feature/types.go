package feature

import (
	"fmt"
	"strings"
)

// Type is the closed enumeration of machining feature kinds. The numeric
// value of a known type is also its application priority: lower values are
// applied first. Values outside the enumeration are representable and have
// no processor.
type Type int

const (
	TypeContour Type = iota + 1
	TypeCut
	TypeCutout
	TypeNotch
	TypeCoping
	TypeSlot
	TypeDrillPattern
	TypeHole
	TypeTappedHole
	TypeCountersink
	TypeCounterbore
	TypeChamfer
	TypeBevel
	TypeMarking
	TypeText
	TypeWeld
	TypeWeldPrep

	// DSTV-derived extended operations.
	TypeOuterContour
	TypeInnerContour
	TypePunchMark
	TypeBend
	TypeSawCut
	TypeNumbering
	TypePowderMark
	TypeFlangeCut
	TypeWebCut
	TypeEndPrep
	TypeLapJoint
	TypeBoltGroup
	TypeStud
	TypeGroove
	TypeEmbossing

	typeSentinel // keep last
)

// UnknownPriority is the priority of any type outside the enumeration.
const UnknownPriority = 1000

var typeNames = [...]string{
	TypeContour:      "contour",
	TypeCut:          "cut",
	TypeCutout:       "cutout",
	TypeNotch:        "notch",
	TypeCoping:       "coping",
	TypeSlot:         "slot",
	TypeDrillPattern: "drill-pattern",
	TypeHole:         "hole",
	TypeTappedHole:   "tapped-hole",
	TypeCountersink:  "countersink",
	TypeCounterbore:  "counterbore",
	TypeChamfer:      "chamfer",
	TypeBevel:        "bevel",
	TypeMarking:      "marking",
	TypeText:         "text",
	TypeWeld:         "weld",
	TypeWeldPrep:     "weld-prep",
	TypeOuterContour: "outer-contour",
	TypeInnerContour: "inner-contour",
	TypePunchMark:    "punch-mark",
	TypeBend:         "bend",
	TypeSawCut:       "saw-cut",
	TypeNumbering:    "numbering",
	TypePowderMark:   "powder-mark",
	TypeFlangeCut:    "flange-cut",
	TypeWebCut:       "web-cut",
	TypeEndPrep:      "end-prep",
	TypeLapJoint:     "lap-joint",
	TypeBoltGroup:    "bolt-group",
	TypeStud:         "stud",
	TypeGroove:       "groove",
	TypeEmbossing:    "embossing",
}

var typesByName = func() map[string]Type {
	m := make(map[string]Type, len(typeNames))
	for t := TypeContour; t < typeSentinel; t++ {
		m[typeNames[t]] = t
	}
	return m
}()

// Known reports whether t is part of the enumeration.
func (t Type) Known() bool {
	return t >= TypeContour && t < typeSentinel
}

// String returns the kebab-case tag of t, or "type(N)" for unknown values.
func (t Type) String() string {
	if t.Known() {
		return typeNames[t]
	}
	return fmt.Sprintf("type(%d)", int(t))
}

// Priority returns the application order of t.
func (t Type) Priority() int {
	if t.Known() {
		return int(t)
	}
	return UnknownPriority
}

// ParseType resolves a tag such as "tapped-hole". Underscores are accepted in
// place of dashes and case is ignored.
func ParseType(s string) (Type, error) {
	name := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "_", "-")
	if t, ok := typesByName[name]; ok {
		return t, nil
	}
	return 0, fmt.Errorf("feature: unknown type %q", s)
}

// MarshalText encodes t as its tag.
func (t Type) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText decodes a tag produced by MarshalText.
func (t *Type) UnmarshalText(b []byte) error {
	s := string(b)
	var n int
	if _, err := fmt.Sscanf(s, "type(%d)", &n); err == nil {
		*t = Type(n)
		return nil
	}
	parsed, err := ParseType(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Types returns every known type in priority order.
func Types() []Type {
	out := make([]Type, 0, int(typeSentinel)-1)
	for t := TypeContour; t < typeSentinel; t++ {
		out = append(out, t)
	}
	return out
}

// Less orders types by priority, then by numeric tag.
func Less(a, b Type) bool {
	if pa, pb := a.Priority(), b.Priority(); pa != pb {
		return pa < pb
	}
	return a < b
}
