// Package processor holds the per-feature-type geometry processors and the
// registry that maps a feature type to its processor.
//
// Most processors share one scaffold: build a cutter solid for the feature
// with the geometry kernel, tessellate it, and carve it out of the mesh (or
// merge it in, for additive features such as welds). Families that can
// batch union every cutter of a group and carve once.
package processor

import (
	"context"
	"errors"
	"log/slog"

	"github.com/chazu/kerf/pkg/feature"
	"github.com/chazu/kerf/pkg/kernel"
)

var (
	// ErrNotApplicable is returned when a processor cannot handle a feature:
	// wrong type, invalid parameter values, or a closed processor.
	ErrNotApplicable = errors.New("processor: feature not applicable")

	// ErrMissingParam is returned when a required parameter is absent.
	ErrMissingParam = errors.New("processor: missing parameter")
)

// Result is the outcome of one Process or ProcessBatch call. Mesh is newly
// allocated and owned by the caller, except when a processor leaves the
// geometry unchanged and returns its input.
type Result struct {
	Mesh     *kernel.Mesh
	Warnings []string
}

// Processor applies one feature type to a mesh. Implementations must not
// mutate or retain the mesh they are given.
type Processor interface {
	// Applicable reports why f cannot be processed on el, or nil.
	Applicable(f feature.Feature, el feature.Element) error
	// Process applies f to m and returns the new mesh.
	Process(ctx context.Context, m *kernel.Mesh, f feature.Feature, el feature.Element) (Result, error)
	// Close releases processor resources. Further calls fail.
	Close() error
}

// BatchProcessor is implemented by processors that can apply a whole group
// of same-typed features in one step.
type BatchProcessor interface {
	Processor
	ProcessBatch(ctx context.Context, m *kernel.Mesh, fs []feature.Feature, el feature.Element) (Result, error)
}

// Options configure the built-in processors.
type Options struct {
	Tolerances feature.Tolerances
	Logger     *slog.Logger
}

func (o Options) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}
