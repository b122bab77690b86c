package tracing

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// shared is the process tracer provider. Each daemon in the process holds a
// reference; the provider is flushed when the last one lets go.
var shared struct {
	mu   sync.Mutex
	tp   *sdktrace.TracerProvider
	refs int
}

// InitOpenTelemetry installs the global tracer provider on first use and takes
// a reference on it. Pair every successful call with ShutdownOpenTelemetry.
func InitOpenTelemetry(serviceName string) error {
	shared.mu.Lock()
	defer shared.mu.Unlock()

	if shared.tp != nil {
		shared.refs++
		return nil
	}

	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		semconv.ServiceName(serviceName),
	))
	if err != nil {
		return err
	}

	shared.tp = sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.AlwaysSample())),
		sdktrace.WithResource(res),
	)
	shared.refs = 1
	otel.SetTracerProvider(shared.tp)
	return nil
}

// ShutdownOpenTelemetry drops a reference and shuts the provider down once
// nothing holds it.
func ShutdownOpenTelemetry(ctx context.Context) error {
	shared.mu.Lock()
	if shared.tp == nil {
		shared.mu.Unlock()
		return nil
	}
	shared.refs--
	if shared.refs > 0 {
		shared.mu.Unlock()
		return nil
	}
	tp := shared.tp
	shared.tp = nil
	shared.mu.Unlock()

	return tp.Shutdown(ctx)
}

// StartSpan opens a span on the named tracer. When ctx has no trace id yet the
// span's own id becomes the log correlation id.
func StartSpan(ctx context.Context, tracerName, spanName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if ctx == nil {
		ctx = context.Background()
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, spanName, trace.WithAttributes(attrs...))
	if GetTraceID(ctx) != "" {
		return ctx, span
	}
	if sc := span.SpanContext(); sc.HasTraceID() {
		ctx = WithTraceID(ctx, sc.TraceID().String())
	}
	return ctx, span
}

// FailSpan records err on span and marks it failed. A nil err is a no-op.
func FailSpan(span trace.Span, err error) {
	if span == nil || err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
