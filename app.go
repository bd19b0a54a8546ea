package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/chazu/kerf/pkg/config"
	"github.com/chazu/kerf/pkg/engine"
	"github.com/chazu/kerf/pkg/feature"
	"github.com/chazu/kerf/pkg/kernel"
	"github.com/chazu/kerf/pkg/pipeline"
	"github.com/chazu/kerf/pkg/processor"
	"github.com/chazu/kerf/pkg/store"
	"github.com/chazu/kerf/pkg/tessellate"
)

// App wires the script engine, profile tessellation and the feature
// pipeline. Scripts are evaluated one at a time; the engine discards the
// result of an evaluation superseded by a newer one.
type App struct {
	engine   *engine.Engine
	pipeline *pipeline.Pipeline
	logger   *slog.Logger
}

// MeshData is the JSON-serializable mesh written by `apply --mesh`.
type MeshData struct {
	Vertices []float32 `json:"vertices"`
	Normals  []float32 `json:"normals"`
	Indices  []uint32  `json:"indices"`
	PartName string    `json:"partName"`
}

// EvalErrorData is a JSON-serializable error or warning. Line is zero for
// messages that do not come from the script parser.
type EvalErrorData struct {
	Line    int    `json:"line"`
	Col     int    `json:"col"`
	Message string `json:"message"`
}

// EvalResult is the outcome of evaluating and applying one script.
type EvalResult struct {
	Source   string           `json:"source,omitempty"`
	Element  string           `json:"element,omitempty"`
	Features int              `json:"features"`
	Meshes   []MeshData       `json:"meshes"`
	Errors   []EvalErrorData  `json:"errors"`
	Warnings []EvalErrorData  `json:"warnings"`
	Apply    *pipeline.Result `json:"apply,omitempty"`
}

// Failed reports whether r carries any error.
func (r EvalResult) Failed() bool { return len(r.Errors) > 0 }

func newEvalResult(source string) EvalResult {
	return EvalResult{
		Source:   source,
		Meshes:   []MeshData{},
		Errors:   []EvalErrorData{},
		Warnings: []EvalErrorData{},
	}
}

func (r *EvalResult) addError(msg string) {
	r.Errors = append(r.Errors, EvalErrorData{Message: msg})
}

// NewApp builds the pipeline described by cfg. When cfg.Store names a
// database it becomes the persistent tier of the geometry cache.
func NewApp(cfg config.File, logger *slog.Logger, opts ...pipeline.Option) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	opts = append([]pipeline.Option{pipeline.WithLogger(logger)}, opts...)

	if cfg.Store.Enabled() {
		sc := cfg.Store
		sc.Logger = logger.With("component", "store")
		st, err := store.Open(sc)
		if err != nil {
			return nil, err
		}
		opts = append(opts, pipeline.WithCacheBacking(st))
	}

	p, err := pipeline.New(cfg.Pipeline, opts...)
	if err != nil {
		return nil, err
	}
	return &App{engine: engine.NewEngine(), pipeline: p, logger: logger}, nil
}

// Close releases the pipeline and the store.
func (a *App) Close() error {
	return a.pipeline.Close()
}

// Pipeline exposes the underlying pipeline.
func (a *App) Pipeline() *pipeline.Pipeline { return a.pipeline }

// Evaluate runs script source through the engine, tessellates the declared
// element and applies its features.
func (a *App) Evaluate(ctx context.Context, source string) EvalResult {
	s, evalErrs, err := a.engine.Evaluate(source)
	return a.applyScript(ctx, "", s, evalErrs, err)
}

// EvaluateFile is Evaluate for a script or YAML feature file.
func (a *App) EvaluateFile(ctx context.Context, path string) EvalResult {
	s, evalErrs, err := a.engine.EvaluateFile(path)
	return a.applyScript(ctx, path, s, evalErrs, err)
}

func (a *App) applyScript(ctx context.Context, source string, s *engine.Script, evalErrs []engine.EvalError, err error) EvalResult {
	res, job, ok := a.prepare(source, s, evalErrs, err)
	if !ok {
		return res
	}
	applied := a.pipeline.Apply(ctx, job.Base, job.Features, job.Element)
	res.attach(applied)
	return res
}

// EvaluateFiles evaluates every path and applies the resulting jobs with
// at most parallelism concurrent applies. Results follow the input order.
func (a *App) EvaluateFiles(ctx context.Context, paths []string, parallelism int) []EvalResult {
	results := make([]EvalResult, len(paths))
	var (
		jobs  []pipeline.Job
		slots []int
	)
	for i, path := range paths {
		s, evalErrs, err := a.engine.EvaluateFile(path)
		res, job, ok := a.prepare(path, s, evalErrs, err)
		results[i] = res
		if ok {
			jobs = append(jobs, job)
			slots = append(slots, i)
		}
	}
	for j, applied := range a.pipeline.ApplyAll(ctx, jobs, parallelism) {
		results[slots[j]].attach(applied)
	}
	return results
}

// prepare turns an evaluation into a pipeline job. ok is false when there
// is nothing to apply; res then holds the reason, if any.
func (a *App) prepare(source string, s *engine.Script, evalErrs []engine.EvalError, err error) (res EvalResult, job pipeline.Job, ok bool) {
	res = newEvalResult(source)
	if err != nil {
		a.logger.Error("evaluation failed", "source", source, "error", err)
		res.addError(err.Error())
		return res, job, false
	}
	if len(evalErrs) > 0 {
		for _, e := range evalErrs {
			res.Errors = append(res.Errors, EvalErrorData{Line: e.Line, Col: e.Col, Message: e.Message})
		}
		return res, job, false
	}

	res.Features = len(s.Features)
	if s.Element == nil {
		if len(s.Features) > 0 {
			res.addError(errNoElement.Error())
		}
		return res, job, false
	}
	res.Element = s.Element.ID

	base, err := tessellate.Profile(*s.Element)
	if err != nil {
		a.logger.Warn("tessellation failed", "element", s.Element.ID, "error", err)
		res.addError("tessellation failed: " + err.Error())
		return res, job, false
	}
	return res, pipeline.Job{Base: base, Features: s.Features, Element: *s.Element}, true
}

var errNoElement = errors.New("features declared without an element")

func (r *EvalResult) attach(applied pipeline.Result) {
	for _, e := range applied.Errors {
		r.addError(e)
	}
	for _, w := range applied.Warnings {
		r.Warnings = append(r.Warnings, EvalErrorData{Message: w})
	}
	if applied.Mesh != nil {
		r.Meshes = append(r.Meshes, meshData(applied.Mesh))
	}
	r.Apply = &applied
}

func meshData(m *kernel.Mesh) MeshData {
	return MeshData{
		Vertices: m.Vertices,
		Normals:  m.Normals,
		Indices:  m.Indices,
		PartName: m.PartName,
	}
}

// TypeInfo describes one feature type for the `types` command.
type TypeInfo struct {
	Name      string `json:"name"`
	Priority  int    `json:"priority"`
	Processor bool   `json:"processor"`
	Batch     bool   `json:"batch"`
}

// Types lists every known feature type in priority order.
func (a *App) Types() []TypeInfo {
	reg := a.pipeline.Registry()
	out := make([]TypeInfo, 0, len(feature.Types()))
	for _, t := range feature.Types() {
		info := TypeInfo{Name: t.String(), Priority: t.Priority()}
		if p, ok := reg.Get(t); ok {
			info.Processor = true
			_, info.Batch = p.(processor.BatchProcessor)
		}
		out = append(out, info)
	}
	return out
}

// summary is a one-line description of r for text output.
func (r EvalResult) summary() string {
	if r.Apply == nil {
		return fmt.Sprintf("%s: %d errors", r.Source, len(r.Errors))
	}
	tri := 0
	if len(r.Meshes) > 0 {
		tri = len(r.Meshes[0].Indices) / 3
	}
	return fmt.Sprintf("%s: element %s, %d features, %d triangles, success=%t cache_hit=%t",
		r.Source, r.Element, r.Features, tri, r.Apply.Success, r.Apply.CacheHit)
}
