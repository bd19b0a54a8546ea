// Package pipeline applies a feature set to the mesh of one element.
//
// Apply validates the features, groups them by type, runs the groups in
// priority order through the processor registry, optimizes the resulting
// mesh and memoizes it. Per-feature failures never abort an apply: they
// are collected as strings in Result.Errors and the working mesh is left
// as it was before the failing call.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/chazu/kerf/pkg/cache"
	"github.com/chazu/kerf/pkg/feature"
	"github.com/chazu/kerf/pkg/kernel"
	"github.com/chazu/kerf/pkg/kernel/sdfx"
	"github.com/chazu/kerf/pkg/processor"
)

// ErrClosed is reported by Apply after Close.
var ErrClosed = errors.New("pipeline: closed")

// Result is the outcome of one Apply. Mesh is owned by the caller and is
// never the base mesh passed in.
type Result struct {
	Mesh     *kernel.Mesh `json:"-"`
	Bounds   kernel.Box   `json:"bounds"`
	Volume   float64      `json:"volume"` // bounding-box volume
	Success  bool         `json:"success"`
	Errors   []string     `json:"errors,omitempty"`
	Warnings []string     `json:"warnings,omitempty"`
	CacheHit bool         `json:"cache_hit"`
	Key      string       `json:"key,omitempty"`
}

// Job is one input of ApplyAll.
type Job struct {
	Base     *kernel.Mesh
	Features []feature.Feature
	Element  feature.Element
}

// Stats is the observability snapshot returned by Statistics.
type Stats struct {
	CacheSize        int               `json:"cache_size"`
	CacheHitRate     float64           `json:"cache_hit_rate"`
	MostAccessedKeys []cache.KeyAccess `json:"most_accessed_keys"`
	ProcessorCount   int               `json:"processor_count"`
	Config           Config            `json:"config"`
	Cache            cache.Stats       `json:"cache"`
}

// Option configures a Pipeline.
type Option func(*options)

type options struct {
	registry *processor.Registry
	kernel   kernel.Kernel
	logger   *slog.Logger
	mp       metric.MeterProvider
	tp       trace.TracerProvider
	backing  cache.Backing
	clock    func() time.Time
	rules    []feature.ConflictRule
}

// WithRegistry replaces the default registry. The pipeline takes ownership
// and closes it on Close.
func WithRegistry(r *processor.Registry) Option {
	return func(o *options) { o.registry = r }
}

// WithKernel sets the kernel the default processors build tools with.
func WithKernel(k kernel.Kernel) Option {
	return func(o *options) { o.kernel = k }
}

func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMeterProvider sets the metrics provider; the global one by default.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) { o.mp = mp }
}

// WithTracerProvider sets the tracer provider; the global one by default.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) { o.tp = tp }
}

// WithCacheBacking adds a persistent tier under the in-memory cache. If
// the backing implements io.Closer, Close closes it.
func WithCacheBacking(b cache.Backing) Option {
	return func(o *options) { o.backing = b }
}

// WithClock replaces time.Now for cache scoring.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.clock = now }
}

// WithConflictRules adds pairwise validation rules after the hole overlap
// rule.
func WithConflictRules(rules ...feature.ConflictRule) Option {
	return func(o *options) { o.rules = append(o.rules, rules...) }
}

// Pipeline applies feature sets. It is safe for concurrent use.
type Pipeline struct {
	cfg       Config
	registry  *processor.Registry
	validator *feature.Validator
	cache     *cache.Cache // nil when caching is disabled
	backing   cache.Backing
	logger    *slog.Logger
	tel       *telemetry
	flight    singleflight.Group
	closed    atomic.Bool
}

var validate = validator.New()

// New builds a pipeline from cfg.
func New(cfg Config, opts ...Option) (*Pipeline, error) {
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("pipeline: invalid config: %w", err)
	}
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.mp == nil {
		o.mp = otel.GetMeterProvider()
	}
	if o.tp == nil {
		o.tp = otel.GetTracerProvider()
	}

	tel, err := newTelemetry(o.mp, o.tp)
	if err != nil {
		return nil, fmt.Errorf("pipeline: create instruments: %w", err)
	}

	p := &Pipeline{
		cfg:       cfg,
		registry:  o.registry,
		validator: feature.NewValidator(cfg.Tolerances, o.rules...),
		backing:   o.backing,
		logger:    o.logger,
		tel:       tel,
	}
	if p.registry == nil {
		k := o.kernel
		if k == nil {
			k = sdfx.New(sdfx.WithMeshCells(cfg.ToolResolution))
		}
		p.registry = processor.NewDefaultRegistry(k, processor.Options{
			Tolerances: cfg.Tolerances,
			Logger:     o.logger,
		})
	}
	if cfg.CacheEnabled {
		copts := []cache.Option{
			cache.WithLogger(o.logger),
			cache.WithMetrics(tel),
			cache.WithClock(o.clock),
		}
		if o.backing != nil {
			copts = append(copts, cache.WithBacking(o.backing))
		}
		p.cache = cache.New(cfg.CacheMaxEntries, copts...)
	}
	return p, nil
}

// Config returns the configuration the pipeline was built with.
func (p *Pipeline) Config() Config { return p.cfg }

// Registry returns the processor registry. Registering a processor for a
// type replaces (and closes) the previous one.
func (p *Pipeline) Registry() *processor.Registry { return p.registry }

// Apply applies fs to base for element el. base is not modified.
func (p *Pipeline) Apply(ctx context.Context, base *kernel.Mesh, fs []feature.Feature, el feature.Element) Result {
	start := time.Now()
	ctx, span := p.tel.tracer.Start(ctx, "pipeline.apply", trace.WithAttributes(
		attribute.String("element", el.ID),
		attribute.Int("features", len(fs)),
	))
	res := p.apply(ctx, base, fs, el)
	span.SetAttributes(attribute.Bool("cache_hit", res.CacheHit))
	endSpan(span, res.Errors)

	d := time.Since(start)
	p.tel.recordApply(ctx, el.ID, res, d)
	p.logger.DebugContext(ctx, "pipeline: apply finished", "element", el.ID, "count", len(fs),
		"success", res.Success, "cache_hit", res.CacheHit, "duration", d)
	return res
}

func (p *Pipeline) apply(ctx context.Context, base *kernel.Mesh, fs []feature.Feature, el feature.Element) Result {
	if p.closed.Load() {
		return failed(base, ErrClosed.Error())
	}
	if base == nil {
		return failed(nil, "pipeline: nil base mesh")
	}
	if base.Released() {
		return failed(nil, "pipeline: base mesh: "+kernel.ErrReleased.Error())
	}

	if p.cache == nil {
		return p.compute(ctx, base, fs, el, "")
	}
	key, err := cache.Key(el, fs)
	if err != nil {
		p.logger.WarnContext(ctx, "pipeline: cache key failed, not caching", "element", el.ID, "error", err)
		return p.compute(ctx, base, fs, el, "")
	}
	if m, ok := p.cache.Get(key); ok {
		return Result{
			Mesh:     m,
			Bounds:   m.BoundingBox(),
			Volume:   m.BoundingBox().Volume(),
			Success:  true,
			CacheHit: true,
			Key:      key,
		}
	}
	if !p.cfg.DedupeInFlight {
		return p.compute(ctx, base, fs, el, key)
	}

	// The caller that ran the flight owns the computed mesh. The others
	// take their copy from the cache and never touch that mesh.
	leader := false
	v, _, _ := p.flight.Do(key, func() (any, error) {
		leader = true
		return p.compute(ctx, base, fs, el, key), nil
	})
	res := v.(Result)
	if leader {
		return res
	}
	if res.Success {
		if m, ok := p.cache.Get(key); ok {
			res.Mesh = m
			res.CacheHit = true
			res.Errors = nil
			res.Warnings = append([]string(nil), res.Warnings...)
			return res
		}
	}
	// Failed results are not cached; evicted ones are gone.
	return p.compute(ctx, base, fs, el, key)
}

// compute runs the uncached apply. key is empty when the result must not
// be stored.
func (p *Pipeline) compute(ctx context.Context, base *kernel.Mesh, fs []feature.Feature, el feature.Element, key string) Result {
	var errs, warnings []string

	fs, rejected := feature.SplitEncodable(fs)
	for _, r := range rejected {
		errs = append(errs, r.Feature.Label()+": "+r.Err.Error())
	}

	if p.cfg.ValidateFeatures {
		found := p.validator.Validate(fs, el)
		warnings = append(warnings, found...)
		if p.cfg.StrictValidation {
			errs = append(errs, found...)
		}
	}

	groups, err := feature.GroupByType(fs)
	if err != nil {
		errs = append(errs, fmt.Sprintf("pipeline: group features: %v", err))
		return p.finish(ctx, base, base, errs, warnings, "")
	}

	work := base
	for _, g := range groups {
		next, gerrs, gwarn := p.runGroup(ctx, work, g, el)
		if next != work {
			if work != base {
				work.Release()
			}
			work = next
		}
		errs = append(errs, gerrs...)
		warnings = append(warnings, gwarn...)
	}
	return p.finish(ctx, base, work, errs, warnings, key)
}

// runGroup applies one type group to work. It returns the new working mesh
// (work itself when nothing changed) and what the group reported.
func (p *Pipeline) runGroup(ctx context.Context, work *kernel.Mesh, g feature.Group, el feature.Element) (*kernel.Mesh, []string, []string) {
	ctx, span := p.tel.tracer.Start(ctx, "pipeline.group", trace.WithAttributes(
		attribute.String("type", g.Type.String()),
		attribute.Int("count", len(g.Features)),
	))
	var errs, warnings []string
	defer func() { endSpan(span, errs) }()

	proc, ok := p.registry.Get(g.Type)
	if !ok {
		for _, f := range g.Features {
			errs = append(errs, f.Label()+": missing processor")
		}
		p.logger.WarnContext(ctx, "pipeline: no processor", "type", g.Type.String(), "count", len(g.Features))
		return work, errs, nil
	}

	ready := make([]feature.Feature, 0, len(g.Features))
	for _, f := range g.Features {
		if err := applicable(proc, f, el); err != nil {
			errs = append(errs, f.Label()+": "+err.Error())
			continue
		}
		ready = append(ready, f)
	}

	if bp, ok := proc.(processor.BatchProcessor); ok && len(ready) > 1 {
		res, err := processBatch(ctx, bp, work, ready, el)
		if err != nil {
			errs = append(errs, fmt.Sprintf("features %s (%s): %v", ids(ready), g.Type, err))
			p.logger.WarnContext(ctx, "pipeline: batch failed", "type", g.Type.String(), "count", len(ready), "error", err)
			return work, errs, nil
		}
		return res.Mesh, errs, res.Warnings
	}

	// Meshes produced inside the group are released as they are replaced;
	// compute owns the group input.
	in := work
	for _, f := range ready {
		res, err := process(ctx, proc, work, f, el)
		if err != nil {
			errs = append(errs, f.Label()+": "+err.Error())
			p.logger.WarnContext(ctx, "pipeline: feature failed", "feature", f.ID, "type", f.Type.String(), "error", err)
			continue
		}
		if res.Mesh != work && work != in {
			work.Release()
		}
		work = res.Mesh
		warnings = append(warnings, res.Warnings...)
	}
	return work, errs, warnings
}

// finish optimizes work and assembles the result. work may be base, in
// which case it is cloned first.
func (p *Pipeline) finish(ctx context.Context, base, work *kernel.Mesh, errs, warnings []string, key string) Result {
	if work == base {
		work = base.Clone()
	}
	if p.cfg.OptimizeGeometry {
		if p.cfg.MergeVertices {
			work.MergeVertices(mergeTolerance)
		}
		work.ComputeNormals()
	}
	bounds := work.BoundingBox()
	res := Result{
		Mesh:     work,
		Bounds:   bounds,
		Volume:   bounds.Volume(),
		Success:  len(errs) == 0,
		Errors:   errs,
		Warnings: warnings,
		Key:      key,
	}
	if key != "" && res.Success {
		p.cache.Put(key, work)
		p.logger.DebugContext(ctx, "pipeline: cached result", "key", key)
	}
	return res
}

func failed(base *kernel.Mesh, msg string) Result {
	res := Result{Errors: []string{msg}}
	if base != nil && !base.Released() {
		res.Mesh = base.Clone()
		res.Bounds = res.Mesh.BoundingBox()
		res.Volume = res.Bounds.Volume()
	}
	return res
}

// applicable, process and processBatch turn processor panics into errors.

func applicable(proc processor.Processor, f feature.Feature, el feature.Element) (err error) {
	defer recoverInto(&err)
	return proc.Applicable(f, el)
}

func process(ctx context.Context, proc processor.Processor, m *kernel.Mesh, f feature.Feature, el feature.Element) (res processor.Result, err error) {
	defer recoverInto(&err)
	res, err = proc.Process(ctx, m, f, el)
	if err == nil {
		err = checkMesh(res.Mesh)
	}
	return res, err
}

func processBatch(ctx context.Context, bp processor.BatchProcessor, m *kernel.Mesh, fs []feature.Feature, el feature.Element) (res processor.Result, err error) {
	defer recoverInto(&err)
	res, err = bp.ProcessBatch(ctx, m, fs, el)
	if err == nil {
		err = checkMesh(res.Mesh)
	}
	return res, err
}

func checkMesh(m *kernel.Mesh) error {
	if m == nil {
		return errors.New("processor returned no mesh")
	}
	if m.Released() {
		return fmt.Errorf("processor returned a mesh that is %w", kernel.ErrReleased)
	}
	return nil
}

func recoverInto(err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("panic: %v", r)
	}
}

func ids(fs []feature.Feature) string {
	s := make([]string, len(fs))
	for i, f := range fs {
		s[i] = f.ID
	}
	return strings.Join(s, ", ")
}

// ApplyAll runs independent jobs concurrently, at most parallelism at a
// time (GOMAXPROCS when parallelism <= 0). Results are in job order.
func (p *Pipeline) ApplyAll(ctx context.Context, jobs []Job, parallelism int) []Result {
	if parallelism <= 0 {
		parallelism = runtime.GOMAXPROCS(0)
	}
	out := make([]Result, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)
	for i, j := range jobs {
		g.Go(func() error {
			out[i] = p.Apply(gctx, j.Base, j.Features, j.Element)
			return nil
		})
	}
	// Apply never returns an error through the group.
	_ = g.Wait()
	return out
}

// Statistics returns cache and registry counters.
func (p *Pipeline) Statistics() Stats {
	s := Stats{
		ProcessorCount: p.registry.Len(),
		Config:         p.cfg,
	}
	if p.cache != nil {
		cs := p.cache.Stats()
		s.Cache = cs
		s.CacheSize = cs.Entries
		s.CacheHitRate = cs.HitRate
		s.MostAccessedKeys = cs.TopKeys
	}
	return s
}

// ClearCache drops every cached mesh, including the persistent tier.
func (p *Pipeline) ClearCache() {
	if p.cache != nil {
		p.cache.Clear()
	}
}

// Close closes the registry and the cache backing. Cached entries in the
// backing are kept. Later applies fail.
func (p *Pipeline) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	var errs []error
	if err := p.registry.Close(); err != nil {
		errs = append(errs, err)
	}
	if c, ok := p.backing.(io.Closer); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("pipeline: close cache backing: %w", err))
		}
	}
	return errors.Join(errs...)
}
