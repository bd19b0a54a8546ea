package pipeline

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/chazu/kerf/pkg/cache"
)

// instrumentationName names the tracer and meter.
const instrumentationName = "kerf.pipeline"

// telemetry holds the pipeline instruments. It also receives cache events.
type telemetry struct {
	tracer trace.Tracer

	applies     metric.Int64Counter
	featureErrs metric.Int64Counter
	hits        metric.Int64Counter
	misses      metric.Int64Counter
	evictions   metric.Int64Counter
	duration    metric.Float64Histogram
}

var _ cache.Metrics = (*telemetry)(nil)

func newTelemetry(mp metric.MeterProvider, tp trace.TracerProvider) (*telemetry, error) {
	meter := mp.Meter(instrumentationName)
	t := &telemetry{tracer: tp.Tracer(instrumentationName)}

	var err error
	if t.applies, err = meter.Int64Counter("kerf.apply.total",
		metric.WithDescription("Number of Apply calls"),
		metric.WithUnit("{call}"),
	); err != nil {
		return nil, err
	}
	if t.featureErrs, err = meter.Int64Counter("kerf.feature.errors",
		metric.WithDescription("Per-feature errors recorded by Apply"),
		metric.WithUnit("{error}"),
	); err != nil {
		return nil, err
	}
	if t.hits, err = meter.Int64Counter("kerf.cache.hits",
		metric.WithDescription("Geometry cache hits"),
		metric.WithUnit("{hit}"),
	); err != nil {
		return nil, err
	}
	if t.misses, err = meter.Int64Counter("kerf.cache.misses",
		metric.WithDescription("Geometry cache misses"),
		metric.WithUnit("{miss}"),
	); err != nil {
		return nil, err
	}
	if t.evictions, err = meter.Int64Counter("kerf.cache.evictions",
		metric.WithDescription("Geometry cache evictions"),
		metric.WithUnit("{eviction}"),
	); err != nil {
		return nil, err
	}
	if t.duration, err = meter.Float64Histogram("kerf.apply.duration_ms",
		metric.WithDescription("Apply duration in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *telemetry) CacheHit()      { t.hits.Add(context.Background(), 1) }
func (t *telemetry) CacheMiss()     { t.misses.Add(context.Background(), 1) }
func (t *telemetry) CacheEviction() { t.evictions.Add(context.Background(), 1) }

// recordApply records one finished Apply.
func (t *telemetry) recordApply(ctx context.Context, elementID string, res Result, d time.Duration) {
	opt := metric.WithAttributes(
		attribute.String("element", elementID),
		attribute.Bool("cache_hit", res.CacheHit),
		attribute.Bool("success", res.Success),
	)
	t.applies.Add(ctx, 1, opt)
	if n := len(res.Errors); n > 0 {
		t.featureErrs.Add(ctx, int64(n), metric.WithAttributes(attribute.String("element", elementID)))
	}
	t.duration.Record(ctx, float64(d.Microseconds())/1000, opt)
}

// endSpan closes span, marking it failed when errs is non-empty.
func endSpan(span trace.Span, errs []string) {
	if len(errs) > 0 {
		span.SetStatus(codes.Error, errs[0])
		span.SetAttributes(attribute.Int("errors", len(errs)))
	}
	span.End()
}
