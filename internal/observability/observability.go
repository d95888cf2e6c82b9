// Package observability wires OpenTelemetry tracing and metrics into the
// guide. A Provider records one span and a set of counters per turn and per
// tool call; with telemetry disabled every instrument is a no-op.
package observability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/deepscifi/guide/internal/events"
	"github.com/deepscifi/guide/internal/tools"
)

const instrumentationName = "github.com/deepscifi/guide"

// Config configures the OpenTelemetry providers.
type Config struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string
	OTLPEndpoint   string  // e.g. "localhost:4317" for gRPC
	Insecure       bool    // plaintext gRPC (dev only)
	SampleRate     float64 // 0.0 to 1.0
	ExportInterval time.Duration
}

// DefaultConfig returns telemetry disabled with local collector defaults.
func DefaultConfig() Config {
	return Config{
		ServiceName:    "guide",
		ServiceVersion: "dev",
		OTLPEndpoint:   "localhost:4317",
		SampleRate:     1.0,
		ExportInterval: 15 * time.Second,
	}
}

// Provider owns the tracer and meter and the guide's instruments.
type Provider struct {
	tracer trace.Tracer
	meter  metric.Meter

	shutdown []func(context.Context) error

	turns       metric.Int64Counter
	turnsActive metric.Int64UpDownCounter
	toolCalls   metric.Int64Counter
	toolLatency metric.Float64Histogram
}

// New builds OTLP/gRPC exporters when cfg.Enabled, and no-op providers
// otherwise. Enabled providers are installed as the otel globals.
func New(ctx context.Context, cfg Config) (*Provider, error) {
	if !cfg.Enabled {
		slog.Info("observability: disabled")
		return NewWithProviders(tracenoop.NewTracerProvider(), metricnoop.NewMeterProvider())
	}
	if cfg.ExportInterval <= 0 {
		cfg.ExportInterval = 15 * time.Second
	}

	res := resource.NewSchemaless(
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.version", cfg.ServiceVersion),
	)

	traceOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint)}
	metricOpts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint)}
	if cfg.Insecure {
		traceOpts = append(traceOpts, otlptracegrpc.WithInsecure())
		metricOpts = append(metricOpts, otlpmetricgrpc.WithInsecure())
	}

	traceExp, err := otlptracegrpc.New(ctx, traceOpts...)
	if err != nil {
		return nil, fmt.Errorf("create trace exporter: %w", err)
	}
	metricExp, err := otlpmetricgrpc.New(ctx, metricOpts...)
	if err != nil {
		_ = traceExp.Shutdown(ctx)
		return nil, fmt.Errorf("create metric exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(traceExp),
		sdktrace.WithSampler(sampler(cfg.SampleRate)),
	)
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp,
			sdkmetric.WithInterval(cfg.ExportInterval),
		)),
	)
	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	p, err := NewWithProviders(tp, mp)
	if err != nil {
		return nil, err
	}
	p.shutdown = []func(context.Context) error{tp.Shutdown, mp.Shutdown}

	slog.Info("observability: initialized",
		"service", cfg.ServiceName,
		"endpoint", cfg.OTLPEndpoint,
		"sample_rate", cfg.SampleRate,
		"insecure", cfg.Insecure,
	)
	return p, nil
}

// NewWithProviders builds the instruments on caller-supplied providers.
func NewWithProviders(tp trace.TracerProvider, mp metric.MeterProvider) (*Provider, error) {
	p := &Provider{
		tracer: tp.Tracer(instrumentationName),
		meter:  mp.Meter(instrumentationName),
	}
	if err := p.initInstruments(); err != nil {
		return nil, fmt.Errorf("init instruments: %w", err)
	}
	return p, nil
}

func (p *Provider) initInstruments() error {
	var err error
	p.turns, err = p.meter.Int64Counter("guide.turns",
		metric.WithDescription("Turns finished, by outcome"),
		metric.WithUnit("{turn}"),
	)
	if err != nil {
		return err
	}
	p.turnsActive, err = p.meter.Int64UpDownCounter("guide.turns.active",
		metric.WithDescription("Turns currently running"),
		metric.WithUnit("{turn}"),
	)
	if err != nil {
		return err
	}
	p.toolCalls, err = p.meter.Int64Counter("guide.tool_calls",
		metric.WithDescription("Tool executions, by tool and outcome"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return err
	}
	p.toolLatency, err = p.meter.Float64Histogram("guide.tool.duration",
		metric.WithDescription("Tool execution latency"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000),
	)
	return err
}

// Shutdown flushes and stops the exporters. It is a no-op for disabled
// telemetry.
func (p *Provider) Shutdown(ctx context.Context) error {
	var errs []error
	for _, fn := range p.shutdown {
		if err := fn(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// TurnStarted opens the guide.turn span. The returned func records the
// turn's outcome and ends the span.
func (p *Provider) TurnStarted(ctx context.Context, runID string) (context.Context, func(events.OutcomeKind)) {
	ctx, span := p.tracer.Start(ctx, "guide.turn",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(attribute.String("guide.run_id", runID)),
	)
	p.turnsActive.Add(ctx, 1)

	return ctx, func(kind events.OutcomeKind) {
		p.turnsActive.Add(ctx, -1)
		p.turns.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", string(kind))))
		span.SetAttributes(attribute.String("guide.outcome", string(kind)))
		if kind.Failed() {
			span.SetStatus(codes.Error, string(kind))
		}
		span.End()
	}
}

// ToolStarted opens a guide.tool/<name> span. The returned func records the
// call's outcome and latency and ends the span.
func (p *Provider) ToolStarted(ctx context.Context, tool string) (context.Context, func(string)) {
	start := time.Now()
	ctx, span := p.tracer.Start(ctx, "guide.tool/"+tool,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String("guide.tool", tool)),
	)

	return ctx, func(outcome string) {
		attrs := metric.WithAttributes(
			attribute.String("tool", tool),
			attribute.String("outcome", outcome),
		)
		p.toolCalls.Add(ctx, 1, attrs)
		p.toolLatency.Record(ctx, float64(time.Since(start).Microseconds())/1000, attrs)
		span.SetAttributes(attribute.String("guide.outcome", outcome))
		if outcome == tools.OutcomeAborted {
			span.SetStatus(codes.Error, outcome)
		}
		span.End()
	}
}

func sampler(rate float64) sdktrace.Sampler {
	switch {
	case rate >= 1.0:
		return sdktrace.AlwaysSample()
	case rate <= 0.0:
		return sdktrace.NeverSample()
	default:
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(rate))
	}
}
