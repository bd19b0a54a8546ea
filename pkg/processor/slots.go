package processor

import (
	"github.com/chazu/kerf/pkg/feature"
	"github.com/chazu/kerf/pkg/kernel"
)

// defaultGrooveDepth applies when a groove gives no depth.
const defaultGrooveDepth = 2.0

// stadium is a local-frame slot: length along X, width along Y, rounded
// ends, rotated by angle degrees about the tool axis.
func (tc *toolContext) stadium(f feature.Feature, length, width, depth float64) kernel.Solid {
	r := width / 2
	s := tc.column(depth, func(h float64) kernel.Solid {
		if length <= width {
			return tc.k.Cylinder(h, r, 0)
		}
		straight := length - width
		return tc.k.Union(
			tc.k.Box(straight, width, h),
			tc.k.Translate(tc.k.Cylinder(h, r, 0), -straight/2, 0, 0),
			tc.k.Translate(tc.k.Cylinder(h, r, 0), straight/2, 0, 0),
		)
	})
	if a := tc.angle(f, "angle", 0); a != 0 {
		s = tc.k.Rotate(s, 0, 0, a)
	}
	return s
}

func slotTool(tc *toolContext, f feature.Feature) (kernel.Solid, error) {
	length, err := requirePositive(f, "length")
	if err != nil {
		return nil, err
	}
	width, err := requirePositive(f, "width")
	if err != nil {
		return nil, err
	}
	return tc.orient(tc.stadium(f, length, width, f.Params.FloatOr("depth", 0)), f, "y")
}

// grooveTool is a shallow slot.
func grooveTool(tc *toolContext, f feature.Feature) (kernel.Solid, error) {
	length, err := requirePositive(f, "length")
	if err != nil {
		return nil, err
	}
	width, err := requirePositive(f, "width")
	if err != nil {
		return nil, err
	}
	depth := f.Params.FloatOr("depth", defaultGrooveDepth)
	if depth <= 0 {
		depth = defaultGrooveDepth
	}
	return tc.orient(tc.stadium(f, length, width, depth), f, "y")
}
