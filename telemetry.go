package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/chazu/kerf/pkg/config"
	"github.com/chazu/kerf/pkg/pipeline"
)

// telemetry owns the SDK providers installed by --telemetry.
type telemetry struct {
	tp *sdktrace.TracerProvider
	mp *sdkmetric.MeterProvider
}

// setupTelemetry installs stdout exporters writing to w. With exporters
// disabled it returns no options and a no-op shutdown.
func setupTelemetry(cfg config.TelemetryConfig, w io.Writer) ([]pipeline.Option, func(context.Context) error, error) {
	if !cfg.Stdout {
		return nil, func(context.Context) error { return nil }, nil
	}

	traceOpts := []stdouttrace.Option{stdouttrace.WithWriter(w)}
	metricOpts := []stdoutmetric.Option{stdoutmetric.WithWriter(w)}
	if cfg.Pretty {
		traceOpts = append(traceOpts, stdouttrace.WithPrettyPrint())
		metricOpts = append(metricOpts, stdoutmetric.WithPrettyPrint())
	}

	spanExp, err := stdouttrace.New(traceOpts...)
	if err != nil {
		return nil, nil, fmt.Errorf("telemetry: stdout trace exporter: %w", err)
	}
	metricExp, err := stdoutmetric.New(metricOpts...)
	if err != nil {
		return nil, nil, fmt.Errorf("telemetry: stdout metric exporter: %w", err)
	}

	t := &telemetry{
		tp: sdktrace.NewTracerProvider(sdktrace.WithSyncer(spanExp)),
		mp: sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp))),
	}
	opts := []pipeline.Option{
		pipeline.WithTracerProvider(t.tp),
		pipeline.WithMeterProvider(t.mp),
	}
	return opts, t.shutdown, nil
}

// shutdown flushes pending metrics and spans.
func (t *telemetry) shutdown(ctx context.Context) error {
	return errors.Join(t.mp.Shutdown(ctx), t.tp.Shutdown(ctx))
}
