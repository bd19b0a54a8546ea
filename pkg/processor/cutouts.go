package processor

import (
	"github.com/chazu/kerf/pkg/feature"
	"github.com/chazu/kerf/pkg/kernel"
)

// cutoutTool is a rectangular opening of width × height with corner radius
// "radius", cut through along "axis" (default z, i.e. through the web).
func cutoutTool(tc *toolContext, f feature.Feature) (kernel.Solid, error) {
	w, err := requirePositive(f, "width")
	if err != nil {
		return nil, err
	}
	h, err := requirePositive(f, "height")
	if err != nil {
		return nil, err
	}
	radius := f.Params.FloatOr("radius", 0)
	if radius*2 > w || radius*2 > h {
		tc.warn(f, "radius %g clipped to fit %gx%g opening", radius, w, h)
	}
	local := tc.column(f.Params.FloatOr("depth", 0), func(l float64) kernel.Solid {
		return tc.k.RoundBox(w, h, l, radius)
	})
	if a := tc.angle(f, "angle", 0); a != 0 {
		local = tc.k.Rotate(local, 0, 0, a)
	}
	return tc.orient(local, f, "z")
}
