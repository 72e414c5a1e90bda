package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation name of the tracer Tracer returns.
// The ingestion and mapping pipelines do not start spans with it.
const TracerName = "github.com/healthtax/taxcore"

// NewTracerProvider builds a stdout-exporting tracer provider suitable
// for local/dev use; production deployments swap the exporter via the
// same SDK without touching pipeline code, since callers only ever
// hold a trace.Tracer obtained through otel.Tracer.
func NewTracerProvider(ctx context.Context, serviceName string) (*sdktrace.TracerProvider, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, err
	}

	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		attribute.String("service.name", serviceName),
	))
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	return tp, nil
}

// Tracer returns the package-wide tracer for pipeline spans.
func Tracer() trace.Tracer {
	return otel.Tracer(TracerName)
}
