// Package tracing installs the process-wide OpenTelemetry tracer provider.
package tracing

import (
	"context"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/cockroachdb/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

const shutdownTimeout = 5 * time.Second

// Setup installs an SDK tracer provider as the global provider. When
// endpoint is set, spans are batched to it over OTLP/HTTP; otherwise they
// are recorded but not exported. The returned func flushes and shuts the
// provider down.
//
// Expected usage:
//
//	shutdown, err := tracing.Setup(ctx, endpoint)
//	...
//	defer shutdown()
func Setup(ctx context.Context, endpoint string) (func(), error) {
	logger := clog.FromContext(ctx)

	options := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(resource.Default()),
	}
	if endpoint != "" {
		exporter, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(endpoint))
		if err != nil {
			return nil, errors.Wrapf(err, "creating trace exporter for %s", endpoint)
		}
		options = append(options, sdktrace.WithBatcher(exporter))
		logger.Infof("exporting traces to %s", endpoint)
	}

	tp := sdktrace.NewTracerProvider(options...)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.Infof("Error shutting down tracer provider: %v", err)
		}
	}, nil
}
