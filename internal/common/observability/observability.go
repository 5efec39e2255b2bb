package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Observability bundles the OTel meter and tracer used by the broadcast core.
type Observability struct {
	meterProvider  *metric.MeterProvider
	tracerProvider *sdktrace.TracerProvider
	tracer         trace.Tracer
	opCounter      otelmetric.Int64Counter
	opDuration     otelmetric.Float64Histogram
}

// New wires a Prometheus-backed meter and, when jaegerEndpoint is set, a
// Jaeger span exporter. Failures degrade to no-op instruments.
func New(serviceName, jaegerEndpoint string) (*Observability, error) {
	o := &Observability{tracer: noop.NewTracerProvider().Tracer(serviceName)}

	exporter, err := prometheus.New()
	if err != nil {
		return o, fmt.Errorf("create prometheus exporter: %w", err)
	}
	o.meterProvider = metric.NewMeterProvider(metric.WithReader(exporter))
	otel.SetMeterProvider(o.meterProvider)

	meter := o.meterProvider.Meter(serviceName)
	o.opCounter, _ = meter.Int64Counter(
		"broadcast.operations",
		otelmetric.WithDescription("Broadcast core operations by outcome"),
	)
	o.opDuration, _ = meter.Float64Histogram(
		"broadcast.operation.duration",
		otelmetric.WithDescription("Broadcast core operation duration"),
		otelmetric.WithUnit("ms"),
	)

	if jaegerEndpoint == "" {
		return o, nil
	}

	spanExporter, err := jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(jaegerEndpoint)))
	if err != nil {
		return o, fmt.Errorf("create jaeger exporter: %w", err)
	}
	o.tracerProvider = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(spanExporter),
		sdktrace.WithResource(resource.NewSchemaless(semconv.ServiceName(serviceName))),
	)
	otel.SetTracerProvider(o.tracerProvider)
	o.tracer = o.tracerProvider.Tracer(serviceName)

	return o, nil
}

// NewNoop returns an Observability whose spans and instruments discard data.
func NewNoop() *Observability {
	return &Observability{tracer: noop.NewTracerProvider().Tracer("noop")}
}

func (o *Observability) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return o.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// RecordOperation counts one operation and its duration.
func (o *Observability) RecordOperation(ctx context.Context, op, outcome string, duration time.Duration) {
	attrs := otelmetric.WithAttributes(
		attribute.String("operation", op),
		attribute.String("outcome", outcome),
	)
	if o.opCounter != nil {
		o.opCounter.Add(ctx, 1, attrs)
	}
	if o.opDuration != nil {
		o.opDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
	}
}

func (o *Observability) Shutdown(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if o.tracerProvider != nil {
		_ = o.tracerProvider.Shutdown(ctx)
	}
	if o.meterProvider != nil {
		_ = o.meterProvider.Shutdown(ctx)
	}
}
