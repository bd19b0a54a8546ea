package processor

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync/atomic"

	"github.com/chazu/kerf/pkg/feature"
	"github.com/chazu/kerf/pkg/kernel"
)

// ---------------------------------------------------------------------------
// Tool scaffolding shared by the built-in processors
// ---------------------------------------------------------------------------

// toolFunc builds the cutter (or additive body) for one feature.
type toolFunc func(tc *toolContext, f feature.Feature) (kernel.Solid, error)

// toolDef describes one built-in feature type.
type toolDef struct {
	build    toolFunc
	required []string // parameters that must be present and positive
	merge    bool     // add the body instead of carving it
	batch    bool     // union every tool of a group and apply once
}

var builtinDefs = map[feature.Type]toolDef{
	feature.TypeHole:         {build: holeTool, required: []string{"diameter"}, batch: true},
	feature.TypeTappedHole:   {build: tappedHoleTool, required: []string{"diameter"}, batch: true},
	feature.TypeCountersink:  {build: countersinkTool, required: []string{"diameter"}, batch: true},
	feature.TypeCounterbore:  {build: counterboreTool, required: []string{"diameter"}, batch: true},
	feature.TypeDrillPattern: {build: gridTool, required: []string{"diameter"}, batch: true},
	feature.TypeBoltGroup:    {build: gridTool, required: []string{"diameter"}, batch: true},

	feature.TypeSlot:   {build: slotTool, required: []string{"length", "width"}, batch: true},
	feature.TypeGroove: {build: grooveTool, required: []string{"length", "width"}, batch: true},

	feature.TypeCutout: {build: cutoutTool, required: []string{"width", "height"}, batch: true},
	feature.TypeWebCut: {build: cutoutTool, required: []string{"width", "height"}, batch: true},

	feature.TypeContour:      {build: contourTool},
	feature.TypeInnerContour: {build: contourTool},
	feature.TypeOuterContour: {build: outerContourTool},

	feature.TypeCut:    {build: cutTool},
	feature.TypeSawCut: {build: cutTool},

	feature.TypeNotch:     {build: notchTool, required: []string{"length", "depth"}},
	feature.TypeCoping:    {build: notchTool, required: []string{"length", "depth"}},
	feature.TypeFlangeCut: {build: notchTool, required: []string{"length", "depth"}},
	feature.TypeLapJoint:  {build: notchTool, required: []string{"length", "depth"}},

	feature.TypeChamfer:  {build: edgeTool, required: []string{"size"}},
	feature.TypeBevel:    {build: edgeTool, required: []string{"size"}},
	feature.TypeWeldPrep: {build: edgeTool, required: []string{"size"}},
	feature.TypeEndPrep:  {build: edgeTool, required: []string{"size"}},

	feature.TypeMarking:   {build: markTool, batch: true},
	feature.TypePunchMark: {build: markTool, batch: true},
	feature.TypeEmbossing: {build: markTool, batch: true},
	feature.TypeText:      {build: textTool, batch: true},
	feature.TypeNumbering: {build: textTool, batch: true},

	feature.TypeWeld: {build: weldTool, required: []string{"length", "size"}, merge: true},
	feature.TypeStud: {build: studTool, required: []string{"diameter", "height"}, merge: true},
}

// newBuiltin returns the processor for t, or nil if t has none.
func newBuiltin(t feature.Type, k kernel.Kernel, opts Options) Processor {
	if noGeometry(t) {
		return &noopProcessor{typ: t}
	}
	def, ok := builtinDefs[t]
	if !ok {
		return nil
	}
	p := &toolProcessor{typ: t, k: k, opts: opts, def: def}
	if def.batch {
		return &batchToolProcessor{toolProcessor: p}
	}
	return p
}

// toolContext carries per-call state into a toolFunc.
type toolContext struct {
	k        kernel.Kernel
	el       feature.Element
	tol      feature.Tolerances
	bounds   kernel.Box // element bounds merged with the mesh bounds
	warnings []string
}

func (tc *toolContext) warn(f feature.Feature, format string, args ...any) {
	tc.warnings = append(tc.warnings, f.Label()+": "+fmt.Sprintf(format, args...))
}

// through is a tool length that crosses the whole element from any point
// inside it.
func (tc *toolContext) through() float64 {
	s := tc.bounds.Size()
	return 2*math.Max(s[0], math.Max(s[1], s[2])) + 2*tc.tol.Cut + 2
}

// angle converts a degree parameter to degrees, snapping values below the
// angle tolerance (radians) to zero.
func (tc *toolContext) angle(f feature.Feature, key string, def float64) float64 {
	deg := f.Params.FloatOr(key, def)
	if math.Abs(deg*math.Pi/180) < tc.tol.Angle {
		return 0
	}
	return deg
}

// axisOf parses the "axis" parameter of f, falling back to def.
func axisOf(f feature.Feature, def string) (axis int, sign float64, err error) {
	return parseAxis(f.Params.StringOr("axis", def))
}

// parseAxis reads "x", "y" or "z", optionally prefixed by a sign. The sign
// gives the direction the tool's entry face looks at.
func parseAxis(s string) (axis int, sign float64, err error) {
	s = strings.ToLower(strings.TrimSpace(s))
	sign = 1
	if strings.HasPrefix(s, "-") {
		sign = -1
		s = s[1:]
	} else {
		s = strings.TrimPrefix(s, "+")
	}
	switch s {
	case "x":
		return 0, sign, nil
	case "y":
		return 1, sign, nil
	case "z":
		return 2, sign, nil
	}
	return 0, 0, fmt.Errorf("%w: axis %q", ErrNotApplicable, s)
}

// orient maps a tool built in its local frame (entry face at z=0, material
// toward -Z) so that local +Z points along sign·axis, then moves it to the
// feature position.
func (tc *toolContext) orient(local kernel.Solid, f feature.Feature, def string) (kernel.Solid, error) {
	axis, sign, err := axisOf(f, def)
	if err != nil {
		return nil, err
	}
	s := local
	if sign < 0 {
		s = tc.k.Rotate(s, 180, 0, 0)
	}
	switch axis {
	case 0:
		s = tc.k.Rotate(s, 0, 90, 0)
	case 1:
		s = tc.k.Rotate(s, -90, 0, 0)
	}
	p := f.Position
	return tc.k.Translate(s, p.X, p.Y, p.Z), nil
}

// planeToLocal converts a 2D point given in the world plane perpendicular
// to axis (y: x,z; z: x,y; x: z,y) into the local XY frame used by orient.
func planeToLocal(axis int, sign, a, b float64) (u, v float64) {
	switch axis {
	case 0:
		return -a, b * sign
	case 1:
		return a, -b * sign
	default:
		return a, b * sign
	}
}

// column extrudes a cross-section either through the element (depth <= 0)
// or from z=0 down to z=-depth.
func (tc *toolContext) column(depth float64, section func(h float64) kernel.Solid) kernel.Solid {
	if depth <= 0 {
		return section(tc.through())
	}
	return tc.k.Translate(section(depth), 0, 0, -depth/2)
}

// requirePositive returns the named parameter or an error when it is
// missing or not positive.
func requirePositive(f feature.Feature, key string) (float64, error) {
	v, ok := f.Params.Float(key)
	if !ok {
		return 0, fmt.Errorf("%w %q", ErrMissingParam, key)
	}
	if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: %s must be positive, got %g", ErrNotApplicable, key, v)
	}
	return v, nil
}

// ---------------------------------------------------------------------------
// toolProcessor
// ---------------------------------------------------------------------------

type toolProcessor struct {
	typ    feature.Type
	k      kernel.Kernel
	opts   Options
	def    toolDef
	closed atomic.Bool
}

var (
	_ Processor      = (*toolProcessor)(nil)
	_ BatchProcessor = (*batchToolProcessor)(nil)
)

func (p *toolProcessor) Applicable(f feature.Feature, _ feature.Element) error {
	if p.closed.Load() {
		return fmt.Errorf("%w: %s processor is closed", ErrNotApplicable, p.typ)
	}
	if f.Type != p.typ {
		return fmt.Errorf("%w: %s processor cannot apply %s", ErrNotApplicable, p.typ, f.Type)
	}
	for _, key := range p.def.required {
		if _, err := requirePositive(f, key); err != nil {
			return err
		}
	}
	return nil
}

func (p *toolProcessor) context(m *kernel.Mesh, el feature.Element) *toolContext {
	b := el.Bounds()
	if !m.IsEmpty() {
		mb := m.BoundingBox()
		for a := 0; a < 3; a++ {
			b.Min[a] = math.Min(b.Min[a], mb.Min[a])
			b.Max[a] = math.Max(b.Max[a], mb.Max[a])
		}
	}
	return &toolContext{k: p.k, el: el, tol: p.opts.Tolerances, bounds: b}
}

func (p *toolProcessor) Process(ctx context.Context, m *kernel.Mesh, f feature.Feature, el feature.Element) (Result, error) {
	if err := p.Applicable(f, el); err != nil {
		return Result{}, err
	}
	tc := p.context(m, el)
	tool, err := p.def.build(tc, f)
	if err != nil {
		return Result{}, err
	}
	out, err := p.apply(m, []kernel.Solid{tool}, tc.bounds)
	if err != nil {
		return Result{}, err
	}
	p.opts.logger().DebugContext(ctx, "processor: applied", "type", p.typ.String(), "feature", f.ID,
		"triangles", out.TriangleCount())
	return Result{Mesh: out, Warnings: tc.warnings}, nil
}

// skinMargin pushes the clip faces of a carving tool outside the mesh so
// Carve discards them.
const skinMargin = 1.0

// apply carves (or merges) the union of tools into a new mesh.
func (p *toolProcessor) apply(m *kernel.Mesh, tools []kernel.Solid, bounds kernel.Box) (*kernel.Mesh, error) {
	skin := &kernel.Mesh{}
	for _, t := range tools {
		tm, err := p.skinOf(t, bounds)
		if err != nil {
			return nil, fmt.Errorf("processor: tessellate %s tool: %w", p.typ, err)
		}
		skin.Append(tm)
	}
	if p.def.merge {
		return kernel.Merge(m, skin)
	}
	return kernel.Carve(m, p.k.Union(tools...), skin)
}

// skinOf tessellates the part of a carving tool that lies inside bounds, so
// the marching-cubes grid spans the cut region rather than the whole
// through-length of the tool. Additive bodies are tessellated whole.
func (p *toolProcessor) skinOf(t kernel.Solid, bounds kernel.Box) (*kernel.Mesh, error) {
	if p.def.merge {
		return p.k.ToMesh(t)
	}
	region := t.BoundingBox().Intersect(bounds.Expand(skinMargin))
	if region.Volume() <= 0 {
		return &kernel.Mesh{}, nil
	}
	size, c := region.Size(), region.Center()
	clip := p.k.Translate(p.k.Box(size[0], size[1], size[2]), c[0], c[1], c[2])
	return p.k.ToMesh(p.k.Intersection(clip, t))
}

func (p *toolProcessor) Close() error {
	p.closed.Store(true)
	return nil
}

// batchToolProcessor adds group processing to a toolProcessor.
type batchToolProcessor struct {
	*toolProcessor
}

// ProcessBatch builds every tool of the group and applies their union in
// one carve. Any invalid feature fails the whole batch.
func (p *batchToolProcessor) ProcessBatch(ctx context.Context, m *kernel.Mesh, fs []feature.Feature, el feature.Element) (Result, error) {
	if len(fs) == 0 {
		return Result{Mesh: m}, nil
	}
	tc := p.context(m, el)
	tools := make([]kernel.Solid, 0, len(fs))
	for _, f := range fs {
		if err := p.Applicable(f, el); err != nil {
			return Result{}, fmt.Errorf("%s: %w", f.ID, err)
		}
		tool, err := p.def.build(tc, f)
		if err != nil {
			return Result{}, fmt.Errorf("%s: %w", f.ID, err)
		}
		tools = append(tools, tool)
	}
	out, err := p.apply(m, tools, tc.bounds)
	if err != nil {
		return Result{}, err
	}
	p.opts.logger().DebugContext(ctx, "processor: applied batch", "type", p.typ.String(), "count", len(fs),
		"triangles", out.TriangleCount())
	return Result{Mesh: out, Warnings: tc.warnings}, nil
}
