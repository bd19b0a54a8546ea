package processor

import (
	"fmt"
	"math"

	"github.com/chazu/kerf/pkg/feature"
	"github.com/chazu/kerf/pkg/kernel"
)

// Holes are drilled along "axis" (default y, i.e. from the top face down).
// "depth" <= 0 means through.

// bore is the local-frame cylinder of a hole with radius r.
func (tc *toolContext) bore(f feature.Feature, r float64) kernel.Solid {
	return tc.column(f.Params.FloatOr("depth", 0), func(h float64) kernel.Solid {
		return tc.k.Cylinder(h, r, 0)
	})
}

func holeTool(tc *toolContext, f feature.Feature) (kernel.Solid, error) {
	d, err := requirePositive(f, "diameter")
	if err != nil {
		return nil, err
	}
	return tc.orient(tc.bore(f, d/2), f, "y")
}

// tappedHoleTool drills the minor diameter (nominal minus pitch). The thread
// itself is not modelled.
func tappedHoleTool(tc *toolContext, f feature.Feature) (kernel.Solid, error) {
	d, err := requirePositive(f, "diameter")
	if err != nil {
		return nil, err
	}
	minor := d
	if pitch, ok := f.Params.Float("pitch"); ok && pitch > 0 {
		minor = d - pitch
	} else {
		tc.warn(f, "pitch missing, drilling nominal diameter %g", d)
	}
	if minor <= 0 {
		return nil, fmt.Errorf("%w: pitch must be smaller than diameter %g", ErrNotApplicable, d)
	}
	return tc.orient(tc.bore(f, minor/2), f, "y")
}

// countersinkTool is a hole plus a cone opening to sink_diameter at the
// entry face. angle is the included cone angle in degrees.
func countersinkTool(tc *toolContext, f feature.Feature) (kernel.Solid, error) {
	d, err := requirePositive(f, "diameter")
	if err != nil {
		return nil, err
	}
	sink := f.Params.FloatOr("sink_diameter", 2*d)
	if sink <= d {
		return nil, fmt.Errorf("%w: sink_diameter %g must exceed diameter %g", ErrNotApplicable, sink, d)
	}
	angle := f.Params.FloatOr("angle", 90)
	if angle <= 0 || angle >= 180 {
		return nil, fmt.Errorf("%w: countersink angle %g out of range (0, 180)", ErrNotApplicable, angle)
	}
	h := (sink - d) / 2 / math.Tan(angle*math.Pi/360)
	cone := tc.k.Translate(tc.k.Cone(h, d/2, sink/2), 0, 0, -h/2)
	return tc.orient(tc.k.Union(tc.bore(f, d/2), cone), f, "y")
}

// counterboreTool is a hole plus a flat-bottomed bore of bore_diameter and
// bore_depth at the entry face.
func counterboreTool(tc *toolContext, f feature.Feature) (kernel.Solid, error) {
	d, err := requirePositive(f, "diameter")
	if err != nil {
		return nil, err
	}
	boreD := f.Params.FloatOr("bore_diameter", 1.8*d)
	boreDepth := f.Params.FloatOr("bore_depth", d/2)
	if boreD <= d {
		return nil, fmt.Errorf("%w: bore_diameter %g must exceed diameter %g", ErrNotApplicable, boreD, d)
	}
	if boreDepth <= 0 {
		return nil, fmt.Errorf("%w: bore_depth must be positive, got %g", ErrNotApplicable, boreDepth)
	}
	cb := tc.k.Translate(tc.k.Cylinder(boreDepth, boreD/2, 0), 0, 0, -boreDepth/2)
	return tc.orient(tc.k.Union(tc.bore(f, d/2), cb), f, "y")
}

// maxGridHoles bounds drill patterns.
const maxGridHoles = 400

// gridTool drills rows × cols holes starting at the feature position.
// Columns step by spacing_x along the first in-plane axis, rows by
// spacing_z (or spacing_y) along the second.
func gridTool(tc *toolContext, f feature.Feature) (kernel.Solid, error) {
	d, err := requirePositive(f, "diameter")
	if err != nil {
		return nil, err
	}
	rows := f.Params.IntOr("rows", 1)
	cols := f.Params.IntOr("cols", 1)
	if rows < 1 || cols < 1 {
		return nil, fmt.Errorf("%w: rows and cols must be at least 1", ErrNotApplicable)
	}
	if rows*cols > maxGridHoles {
		return nil, fmt.Errorf("%w: %d holes exceed the pattern limit of %d", ErrNotApplicable, rows*cols, maxGridHoles)
	}
	su := f.Params.FloatOr("spacing_x", 0)
	sv := f.Params.FloatOr("spacing_z", f.Params.FloatOr("spacing_y", 0))
	if (cols > 1 && su <= 0) || (rows > 1 && sv <= 0) {
		return nil, fmt.Errorf("%w: spacing must be positive for multi-hole patterns", ErrNotApplicable)
	}
	axis, sign, err := axisOf(f, "y")
	if err != nil {
		return nil, err
	}

	holes := make([]kernel.Solid, 0, rows*cols)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			u, v := planeToLocal(axis, sign, float64(c)*su, float64(r)*sv)
			holes = append(holes, tc.k.Translate(tc.bore(f, d/2), u, v, 0))
		}
	}
	return tc.orient(tc.k.Union(holes...), f, "y")
}
