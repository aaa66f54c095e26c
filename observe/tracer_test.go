package observe

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// TestMeta_SpanName verifies span naming across meta shapes.
func TestMeta_SpanName(t *testing.T) {
	tests := []struct {
		name     string
		meta     Meta
		expected string
	}{
		{
			name:     "component and resource",
			meta:     Meta{Component: "swr", Resource: "rentals"},
			expected: "sync.swr.rentals",
		},
		{
			name:     "component only",
			meta:     Meta{Component: "realtime"},
			expected: "sync.realtime",
		},
		{
			name:     "empty component defaults to swr",
			meta:     Meta{Resource: "chats"},
			expected: "sync.swr.chats",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.meta.SpanName(); got != tc.expected {
				t.Errorf("expected %q, got %q", tc.expected, got)
			}
		})
	}
}

// TestTracer_SpanAttributes verifies sync attributes are present on span.
func TestTracer_SpanAttributes(t *testing.T) {
	// Set up in-memory span recorder
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	tr := NewTracer(tp.Tracer("test"))
	meta := Meta{
		Component: "swr",
		Resource:  "rentals",
		Trigger:   "interval",
	}

	_, span := tr.StartSpan(context.Background(), meta)
	tr.EndSpan(span, nil)

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}

	ended := spans[0]
	if ended.Name() != "sync.swr.rentals" {
		t.Errorf("expected span name 'sync.swr.rentals', got %q", ended.Name())
	}

	attrs := make(map[attribute.Key]attribute.Value)
	for _, kv := range ended.Attributes() {
		attrs[kv.Key] = kv.Value
	}

	if v, ok := attrs["sync.resource"]; !ok || v.AsString() != "rentals" {
		t.Errorf("expected sync.resource='rentals', got %v", v)
	}
	if v, ok := attrs["sync.trigger"]; !ok || v.AsString() != "interval" {
		t.Errorf("expected sync.trigger='interval', got %v", v)
	}
	if v, ok := attrs["sync.error"]; !ok || v.AsBool() {
		t.Errorf("expected sync.error=false, got %v", v)
	}
}

// TestTracer_EndSpanWithError verifies error status and attribute.
func TestTracer_EndSpanWithError(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	tr := NewTracer(tp.Tracer("test"))
	_, span := tr.StartSpan(context.Background(), Meta{Component: "swr", Resource: "chats"})
	tr.EndSpan(span, errors.New("transport failed"))

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}

	ended := spans[0]
	if ended.Status().Code != codes.Error {
		t.Errorf("expected error status, got %v", ended.Status().Code)
	}

	var foundErrAttr bool
	for _, kv := range ended.Attributes() {
		if kv.Key == "sync.error" && kv.Value.AsBool() {
			foundErrAttr = true
		}
	}
	if !foundErrAttr {
		t.Error("expected sync.error=true attribute after failed span")
	}
}

// TestNopTracer verifies the no-op tracer produces usable spans.
func TestNopTracer(t *testing.T) {
	tr := NopTracer()
	ctx, span := tr.StartSpan(context.Background(), Meta{Component: "presence"})
	if ctx == nil || span == nil {
		t.Fatal("expected non-nil ctx and span from nop tracer")
	}
	tr.EndSpan(span, nil)
}
