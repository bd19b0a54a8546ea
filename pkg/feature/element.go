package feature

import (
	"fmt"
	"strings"

	"github.com/chazu/kerf/pkg/kernel"
)

// ProfileKind is the cross-section family of an element.
type ProfileKind string

const (
	ProfilePlate   ProfileKind = "plate"
	ProfileIBeam   ProfileKind = "ibeam"
	ProfileChannel ProfileKind = "channel"
	ProfileAngle   ProfileKind = "angle"
	ProfileTube    ProfileKind = "tube"
)

// ParseProfile resolves a profile name. Common aliases ("i-beam", "hea",
// "upn", "l", "rhs") are accepted.
func ParseProfile(s string) (ProfileKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "plate", "pl", "flat":
		return ProfilePlate, nil
	case "ibeam", "i-beam", "i_beam", "hea", "heb", "ipe", "w":
		return ProfileIBeam, nil
	case "channel", "upn", "c":
		return ProfileChannel, nil
	case "angle", "l":
		return ProfileAngle, nil
	case "tube", "rhs", "shs", "hss":
		return ProfileTube, nil
	}
	return "", fmt.Errorf("feature: unknown profile %q", s)
}

// Dimensions of an element in millimetres. Zero means unset; each consumer
// reads the fields it needs.
type Dimensions struct {
	Length          float64 `json:"length,omitempty" yaml:"length,omitempty"`
	Width           float64 `json:"width,omitempty" yaml:"width,omitempty"`
	Height          float64 `json:"height,omitempty" yaml:"height,omitempty"`
	Thickness       float64 `json:"thickness,omitempty" yaml:"thickness,omitempty"`
	FlangeWidth     float64 `json:"flange_width,omitempty" yaml:"flange_width,omitempty"`
	FlangeThickness float64 `json:"flange_thickness,omitempty" yaml:"flange_thickness,omitempty"`
	WebThickness    float64 `json:"web_thickness,omitempty" yaml:"web_thickness,omitempty"`
}

// Extent returns the element size along X (length), Y (height, falling back
// to thickness) and Z (width, falling back to flange width then thickness).
func (d Dimensions) Extent() [3]float64 {
	y := d.Height
	if y == 0 {
		y = d.Thickness
	}
	z := d.Width
	if z == 0 {
		z = d.FlangeWidth
	}
	if z == 0 {
		z = d.Thickness
	}
	return [3]float64{d.Length, y, z}
}

// Bounds returns the element bounding box centered on the origin.
func (d Dimensions) Bounds() kernel.Box {
	e := d.Extent()
	return kernel.CenteredBox(e[0], e[1], e[2])
}

// Element is the structural member a feature set is applied to.
type Element struct {
	ID         string      `json:"id" yaml:"id"`
	Profile    ProfileKind `json:"profile,omitempty" yaml:"profile,omitempty"`
	Dimensions Dimensions  `json:"dimensions" yaml:"dimensions"`
}

// Bounds is shorthand for el.Dimensions.Bounds().
func (el Element) Bounds() kernel.Box {
	return el.Dimensions.Bounds()
}
