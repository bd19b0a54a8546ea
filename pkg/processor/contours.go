package processor

import (
	"fmt"

	"github.com/chazu/kerf/pkg/feature"
	"github.com/chazu/kerf/pkg/kernel"
)

// Contours are closed outlines given as "points" [a0,b0,a1,b1,...] relative
// to the feature position, in the plane perpendicular to "axis" (default
// y): x,z for y; x,y for z; z,y for x.

// prism returns the oriented prism of the feature outline, cut through.
func (tc *toolContext) prism(f feature.Feature) (kernel.Solid, error) {
	pts, ok := f.Params.Floats("points")
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrMissingParam, "points")
	}
	if len(pts)%2 != 0 {
		return nil, fmt.Errorf("%w: points has odd length %d", ErrNotApplicable, len(pts))
	}
	if len(pts) < 6 {
		return nil, fmt.Errorf("%w: contour needs at least 3 points, got %d", ErrNotApplicable, len(pts)/2)
	}
	axis, sign, err := axisOf(f, "y")
	if err != nil {
		return nil, err
	}
	outline := make([][2]float64, 0, len(pts)/2)
	for i := 0; i < len(pts); i += 2 {
		u, v := planeToLocal(axis, sign, pts[i], pts[i+1])
		outline = append(outline, [2]float64{u, v})
	}
	local, err := tc.k.Prism(outline, tc.through())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotApplicable, err)
	}
	return tc.orient(local, f, "y")
}

// contourTool removes the material inside the outline.
func contourTool(tc *toolContext, f feature.Feature) (kernel.Solid, error) {
	return tc.prism(f)
}

// outerContourTool keeps only the material inside the outline.
func outerContourTool(tc *toolContext, f feature.Feature) (kernel.Solid, error) {
	inside, err := tc.prism(f)
	if err != nil {
		return nil, err
	}
	env := tc.bounds.Expand(tc.through())
	size, c := env.Size(), env.Center()
	outside := tc.k.Translate(tc.k.Box(size[0], size[1], size[2]), c[0], c[1], c[2])
	return tc.k.Difference(outside, inside), nil
}
