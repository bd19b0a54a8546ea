package processor

import (
	"fmt"
	"unicode"

	"github.com/chazu/kerf/pkg/feature"
	"github.com/chazu/kerf/pkg/kernel"
)

// markDefaults are the length, width and depth used when a marking omits
// them.
var markDefaults = map[feature.Type][3]float64{
	feature.TypeMarking:   {50, 10, 0.5},
	feature.TypePunchMark: {3, 3, 1},
	feature.TypeEmbossing: {30, 10, 0.5},
}

// markTool engraves a shallow length × width pocket on the face that
// "axis" (default y) points out of.
func markTool(tc *toolContext, f feature.Feature) (kernel.Solid, error) {
	def := markDefaults[f.Type]
	l := f.Params.FloatOr("length", def[0])
	w := f.Params.FloatOr("width", def[1])
	d := f.Params.FloatOr("depth", def[2])
	if l <= 0 || w <= 0 || d <= 0 {
		return nil, fmt.Errorf("%w: length, width and depth must be positive", ErrNotApplicable)
	}
	pocket := tc.k.Translate(tc.k.Box(l, w, d), 0, 0, -d/2)
	if a := tc.angle(f, "angle", 0); a != 0 {
		pocket = tc.k.Rotate(pocket, 0, 0, a)
	}
	return tc.orient(pocket, f, "y")
}

// maxTextRunes bounds the glyph count of one text feature.
const maxTextRunes = 64

// textTool engraves one shallow block per visible rune of "text" (numbering
// also accepts a numeric "number"), laid out along the local X axis from
// the feature position. Glyph shapes are not modelled.
func textTool(tc *toolContext, f feature.Feature) (kernel.Solid, error) {
	text, ok := f.Params.String("text")
	if !ok && f.Type == feature.TypeNumbering {
		if n, isNum := f.Params.Float("number"); isNum {
			text, ok = fmt.Sprintf("%g", n), true
		}
	}
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrMissingParam, "text")
	}
	height := f.Params.FloatOr("height", 10)
	depth := f.Params.FloatOr("depth", 0.5)
	if height <= 0 || depth <= 0 {
		return nil, fmt.Errorf("%w: height and depth must be positive", ErrNotApplicable)
	}

	runes := []rune(text)
	if len(runes) > maxTextRunes {
		tc.warn(f, "text truncated to %d characters", maxTextRunes)
		runes = runes[:maxTextRunes]
	}
	glyphW, pitch := 0.6*height, 0.8*height

	var glyphs []kernel.Solid
	for i, r := range runes {
		if unicode.IsSpace(r) {
			continue
		}
		x := float64(i)*pitch + glyphW/2
		glyphs = append(glyphs, tc.k.Translate(tc.k.Box(glyphW, height, depth), x, 0, -depth/2))
	}
	if len(glyphs) == 0 {
		return nil, fmt.Errorf("%w: text has no visible characters", ErrNotApplicable)
	}
	return tc.orient(tc.k.Union(glyphs...), f, "y")
}
