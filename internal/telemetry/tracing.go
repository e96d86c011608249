package telemetry

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// tracerSetup remembers the outcome of the first initialisation.
type tracerSetup struct {
	once     sync.Once
	shutdown func(context.Context) error
	err      error
}

var tracing tracerSetup

// InitTracing installs the global tracer provider. exporter is "none", "stdout" or
// "otlp"; endpoint is only read for otlp. The returned func flushes and stops the provider.
// Only the first call configures anything; later calls return its result, error included.
func InitTracing(service, exporter, endpoint string) (func(context.Context) error, error) {
	return tracing.init(service, exporter, endpoint)
}

func (t *tracerSetup) init(service, exporter, endpoint string) (func(context.Context) error, error) {
	t.once.Do(func() {
		t.shutdown = func(context.Context) error { return nil }
		name := strings.ToLower(strings.TrimSpace(exporter))
		if name == "" || name == "none" {
			otel.SetTracerProvider(noop.NewTracerProvider())
			return
		}

		exp, err := buildExporter(context.Background(), name, endpoint)
		if err != nil {
			t.err = fmt.Errorf("trace exporter: %w", err)
			return
		}
		res, err := resource.New(context.Background(),
			resource.WithAttributes(semconv.ServiceNameKey.String(service)),
		)
		if err != nil {
			t.err = fmt.Errorf("trace resource: %w", err)
			return
		}
		tp := sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exp),
			sdktrace.WithResource(res),
		)
		otel.SetTracerProvider(tp)
		otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		))
		t.shutdown = tp.Shutdown
	})
	return t.shutdown, t.err
}

// StartSpan starts a span on the pipeline tracer.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer("candidate-pipeline").Start(ctx, name, trace.WithAttributes(attrs...))
}

func buildExporter(ctx context.Context, name, endpoint string) (sdktrace.SpanExporter, error) {
	switch name {
	case "stdout":
		return stdouttrace.New(stdouttrace.WithWriter(os.Stdout))
	case "otlp":
		opts := []otlptracehttp.Option{otlptracehttp.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlptracehttp.WithEndpoint(endpoint))
		}
		return otlptracehttp.New(ctx, opts...)
	}
	return nil, fmt.Errorf("unknown trace exporter %q", name)
}
