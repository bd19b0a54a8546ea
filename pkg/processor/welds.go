package processor

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/chazu/kerf/pkg/feature"
	"github.com/chazu/kerf/pkg/kernel"
)

// weldTool is an additive bead: a cylinder of diameter "size" and length
// "length" centered on the feature position, running along "axis"
// (default x).
func weldTool(tc *toolContext, f feature.Feature) (kernel.Solid, error) {
	length, err := requirePositive(f, "length")
	if err != nil {
		return nil, err
	}
	size, err := requirePositive(f, "size")
	if err != nil {
		return nil, err
	}
	bead := tc.k.Cylinder(length, size/2, 0)
	return tc.orient(bead, f, "x")
}

// studTool is an additive stud standing on the face "axis" (default y)
// points out of.
func studTool(tc *toolContext, f feature.Feature) (kernel.Solid, error) {
	d, err := requirePositive(f, "diameter")
	if err != nil {
		return nil, err
	}
	h, err := requirePositive(f, "height")
	if err != nil {
		return nil, err
	}
	stud := tc.k.Translate(tc.k.Cylinder(h, d/2, 0), 0, 0, h/2)
	return tc.orient(stud, f, "y")
}

// ---------------------------------------------------------------------------
// Operations without geometry
// ---------------------------------------------------------------------------

func noGeometry(t feature.Type) bool {
	return t == feature.TypeBend || t == feature.TypePowderMark
}

// noopProcessor accepts bend and powder-mark features. The mesh is returned
// unchanged with a warning.
type noopProcessor struct {
	typ    feature.Type
	closed atomic.Bool
}

var _ Processor = (*noopProcessor)(nil)

func (p *noopProcessor) Applicable(f feature.Feature, _ feature.Element) error {
	if p.closed.Load() {
		return fmt.Errorf("%w: %s processor is closed", ErrNotApplicable, p.typ)
	}
	if f.Type != p.typ {
		return fmt.Errorf("%w: %s processor cannot apply %s", ErrNotApplicable, p.typ, f.Type)
	}
	return nil
}

func (p *noopProcessor) Process(_ context.Context, m *kernel.Mesh, f feature.Feature, el feature.Element) (Result, error) {
	if err := p.Applicable(f, el); err != nil {
		return Result{}, err
	}
	return Result{
		Mesh:     m,
		Warnings: []string{f.Label() + ": operation is not modelled geometrically"},
	}, nil
}

func (p *noopProcessor) Close() error {
	p.closed.Store(true)
	return nil
}
