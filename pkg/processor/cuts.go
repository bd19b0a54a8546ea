package processor

import (
	"fmt"
	"math"

	"github.com/chazu/kerf/pkg/feature"
	"github.com/chazu/kerf/pkg/kernel"
)

// cutTool removes everything on one side of a plane through the feature
// position. The plane normal is "axis" (default x), tilted by "angle"
// degrees about Y; "side" (+1 or -1, default +1) picks the half removed.
func cutTool(tc *toolContext, f feature.Feature) (kernel.Solid, error) {
	side := f.Params.FloatOr("side", 1)
	switch {
	case side > 0:
		side = 1
	case side < 0:
		side = -1
	default:
		return nil, fmt.Errorf("%w: side must be +1 or -1", ErrNotApplicable)
	}
	axis, _, err := axisOf(f, "x")
	if err != nil {
		return nil, err
	}

	s := tc.through() + 2*tc.tol.Cut
	var offset [3]float64
	offset[axis] = side * s / 2
	half := tc.k.Translate(tc.k.Box(s, s, s), offset[0], offset[1], offset[2])
	if a := tc.angle(f, "angle", 0); a != 0 {
		half = tc.k.Rotate(half, 0, a, 0)
	}
	p := f.Position
	return tc.k.Translate(half, p.X, p.Y, p.Z), nil
}

// notchTool removes a length × depth × width box centered on the feature
// position (X, Y, Z respectively). width defaults to the full element
// width; "radius" rounds the box edges, which copes use for the root fillet.
func notchTool(tc *toolContext, f feature.Feature) (kernel.Solid, error) {
	length, err := requirePositive(f, "length")
	if err != nil {
		return nil, err
	}
	depth, err := requirePositive(f, "depth")
	if err != nil {
		return nil, err
	}
	width := f.Params.FloatOr("width", tc.bounds.Size()[2]+2*tc.tol.Cut)
	if width <= 0 {
		return nil, fmt.Errorf("%w: width must be positive, got %g", ErrNotApplicable, width)
	}
	box := tc.k.RoundBox(length, depth, width, f.Params.FloatOr("radius", 0))
	p := f.Position
	return tc.k.Translate(box, p.X, p.Y, p.Z), nil
}

// edgeTool breaks an edge: a square bar of side size·√2 lying along
// "edge_axis" (default z), centered on the edge at the feature position and
// turned by "angle" degrees (default 45) about its own axis. A 45° turn
// removes a right-angled chamfer with legs of length size.
func edgeTool(tc *toolContext, f feature.Feature) (kernel.Solid, error) {
	size, err := requirePositive(f, "size")
	if err != nil {
		return nil, err
	}
	edge, _, err := parseAxis(f.Params.StringOr("edge_axis", "z"))
	if err != nil {
		return nil, err
	}
	length := f.Params.FloatOr("length", tc.through())
	side := size * math.Sqrt2
	a := tc.angle(f, "angle", 45)

	var bar kernel.Solid
	switch edge {
	case 0:
		bar = tc.k.Rotate(tc.k.Box(length, side, side), a, 0, 0)
	case 1:
		bar = tc.k.Rotate(tc.k.Box(side, length, side), 0, a, 0)
	default:
		bar = tc.k.Rotate(tc.k.Box(side, side, length), 0, 0, a)
	}
	p := f.Position
	return tc.k.Translate(bar, p.X, p.Y, p.Z), nil
}
