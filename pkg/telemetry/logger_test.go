package telemetry

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestFromContext(t *testing.T) {
	// No logger attached: a no-op logger, never nil.
	FromContext(context.Background()).Info("dropped")

	var buf bytes.Buffer
	tel := &Telemetry{Logger: NewLoggerWithWriter(LoggingConfig{Level: "info", Format: "json"}, &buf)}
	ctx := tel.WithContext(context.Background())

	FromContext(ctx).WithRunID("run-1").Info("from context")

	out := buf.String()
	if !strings.Contains(out, `"message":"from context"`) || !strings.Contains(out, `"run_id":"run-1"`) {
		t.Errorf("log output = %s", out)
	}
}

func TestTraceID(t *testing.T) {
	if id := TraceID(context.Background()); id != "" {
		t.Errorf("TraceID() without span = %q", id)
	}

	tracer, err := NewTracer(TracingConfig{}, "cloudcycle", "test", "test")
	if err != nil {
		t.Fatalf("NewTracer() error = %v", err)
	}
	ctx, span := tracer.StartSpan(context.Background(), "run")
	defer span.End()

	if id := TraceID(ctx); id != span.SpanContext().TraceID().String() || len(id) != 32 {
		t.Errorf("TraceID() = %q", id)
	}
}
