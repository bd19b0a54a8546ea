// Package tessellate builds the base mesh of a structural element from its
// profile. Sections are assembled from axis-aligned boxes centered on the
// origin: X runs along the member, Y is the section height and Z its width.
package tessellate

import (
	"fmt"

	"github.com/chazu/kerf/pkg/feature"
	"github.com/chazu/kerf/pkg/kernel"
)

// section is one rectangle of a cross-section in the YZ plane.
type section struct {
	y0, y1, z0, z1 float64
}

// Profile tessellates el. An element without a profile is treated as a
// plate. The mesh is named after the element.
func Profile(el feature.Element) (*kernel.Mesh, error) {
	kind := el.Profile
	if kind == "" {
		kind = feature.ProfilePlate
	}
	d := el.Dimensions
	if d.Length <= 0 {
		return nil, fmt.Errorf("tessellate: element %s: length must be positive, got %g", el.ID, d.Length)
	}

	var (
		parts []section
		err   error
	)
	switch kind {
	case feature.ProfilePlate:
		parts, err = plate(d)
	case feature.ProfileIBeam:
		parts, err = ibeam(d)
	case feature.ProfileChannel:
		parts, err = channel(d)
	case feature.ProfileAngle:
		parts, err = angle(d)
	case feature.ProfileTube:
		parts, err = tube(d)
	default:
		err = fmt.Errorf("unsupported profile %q", kind)
	}
	if err != nil {
		return nil, fmt.Errorf("tessellate: element %s: %w", el.ID, err)
	}

	m := &kernel.Mesh{PartName: el.ID}
	x := d.Length / 2
	for _, p := range parts {
		m.Append(kernel.BoxMesh(kernel.Box{
			Min: [3]float64{-x, p.y0, p.z0},
			Max: [3]float64{x, p.y1, p.z1},
		}))
	}
	return m, nil
}

func plate(d feature.Dimensions) ([]section, error) {
	e := d.Extent()
	if e[1] <= 0 || e[2] <= 0 {
		return nil, fmt.Errorf("plate needs a positive thickness and width, got %gx%g", e[1], e[2])
	}
	return []section{{-e[1] / 2, e[1] / 2, -e[2] / 2, e[2] / 2}}, nil
}

// flanged reads the dimensions shared by ibeam and channel sections.
func flanged(d feature.Dimensions) (h, w, tf, tw float64, err error) {
	e := d.Extent()
	h, w = e[1], e[2]
	tf, tw = d.FlangeThickness, d.WebThickness
	if tf == 0 {
		tf = d.Thickness
	}
	if tw == 0 {
		tw = d.Thickness
	}
	switch {
	case h <= 0 || w <= 0:
		err = fmt.Errorf("height and width must be positive, got %gx%g", h, w)
	case tf <= 0 || tw <= 0:
		err = fmt.Errorf("flange and web thickness must be positive, got %g and %g", tf, tw)
	case 2*tf >= h:
		err = fmt.Errorf("flanges (%g) do not fit height %g", tf, h)
	case tw >= w:
		err = fmt.Errorf("web (%g) does not fit width %g", tw, w)
	}
	return h, w, tf, tw, err
}

func ibeam(d feature.Dimensions) ([]section, error) {
	h, w, tf, tw, err := flanged(d)
	if err != nil {
		return nil, err
	}
	return []section{
		{h/2 - tf, h / 2, -w / 2, w / 2},
		{-h / 2, -h/2 + tf, -w / 2, w / 2},
		{-h/2 + tf, h/2 - tf, -tw / 2, tw / 2},
	}, nil
}

// channel opens towards +Z.
func channel(d feature.Dimensions) ([]section, error) {
	h, w, tf, tw, err := flanged(d)
	if err != nil {
		return nil, err
	}
	return []section{
		{-h / 2, h / 2, -w / 2, -w/2 + tw},
		{h/2 - tf, h / 2, -w/2 + tw, w / 2},
		{-h / 2, -h/2 + tf, -w/2 + tw, w / 2},
	}, nil
}

// angle has its vertical leg at -Z and its horizontal leg at -Y.
func angle(d feature.Dimensions) ([]section, error) {
	h, w, t := d.Height, d.Width, d.Thickness
	if h <= 0 || w <= 0 || t <= 0 {
		return nil, fmt.Errorf("angle needs positive height, width and thickness, got %gx%gx%g", h, w, t)
	}
	if t >= h || t >= w {
		return nil, fmt.Errorf("leg thickness %g does not fit %gx%g", t, h, w)
	}
	return []section{
		{-h / 2, h / 2, -w / 2, -w/2 + t},
		{-h / 2, -h/2 + t, -w/2 + t, w / 2},
	}, nil
}

func tube(d feature.Dimensions) ([]section, error) {
	h, w, t := d.Height, d.Width, d.Thickness
	if h <= 0 || w <= 0 || t <= 0 {
		return nil, fmt.Errorf("tube needs positive height, width and wall thickness, got %gx%gx%g", h, w, t)
	}
	if 2*t >= h || 2*t >= w {
		return nil, fmt.Errorf("wall thickness %g does not fit %gx%g", t, h, w)
	}
	return []section{
		{h/2 - t, h / 2, -w / 2, w / 2},
		{-h / 2, -h/2 + t, -w / 2, w / 2},
		{-h/2 + t, h/2 - t, -w / 2, -w/2 + t},
		{-h/2 + t, h/2 - t, w/2 - t, w / 2},
	}, nil
}
