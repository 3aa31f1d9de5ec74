package tracing

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func restoreGlobal(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })
}

func TestSetup_InstallsRecordingProvider(t *testing.T) {
	restoreGlobal(t)

	shutdown, err := Setup(context.Background(), "")
	if err != nil {
		t.Fatalf("Setup() = %v", err)
	}
	defer shutdown()

	if _, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider); !ok {
		t.Fatalf("global provider = %T, want *trace.TracerProvider", otel.GetTracerProvider())
	}

	_, span := otel.Tracer("test").Start(context.Background(), "op")
	defer span.End()
	if !span.IsRecording() {
		t.Error("span is not recording")
	}
}

func TestSetup_WithEndpoint(t *testing.T) {
	restoreGlobal(t)

	// The exporter connects lazily, so an unreachable endpoint is fine
	// as long as no spans are flushed.
	shutdown, err := Setup(context.Background(), "http://127.0.0.1:1/v1/traces")
	if err != nil {
		t.Fatalf("Setup() = %v", err)
	}
	shutdown()
}
