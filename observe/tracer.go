package observe

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// Meta describes the sync operation being observed.
type Meta struct {
	Component string // Engine component (swr, realtime, presence, cachestore)
	Resource  string // Logical resource name (rentals, chats, accounts)
	Trigger   string // What started the operation (mount, interval, manual, visibility, online, realtime)
}

// SpanName returns the deterministic span name for this operation.
// Format: sync.<component>.<resource> or sync.<component>
func (m Meta) SpanName() string {
	component := m.Component
	if component == "" {
		component = "swr"
	}
	if m.Resource != "" {
		return "sync." + component + "." + m.Resource
	}
	return "sync." + component
}

// Tracer wraps OpenTelemetry tracing with sync-specific span management.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Context: StartSpan must honor cancellation/deadlines and return ctx.Err() when canceled.
// - Errors: EndSpan must be best-effort and must not panic.
type Tracer interface {
	// StartSpan starts a new span for a sync operation.
	StartSpan(ctx context.Context, meta Meta) (context.Context, trace.Span)

	// EndSpan ends the span, recording any error.
	EndSpan(span trace.Span, err error)
}

// tracerImpl is the concrete implementation of Tracer.
type tracerImpl struct {
	tracer trace.Tracer
}

// NewTracer creates a new Tracer wrapping the given OpenTelemetry tracer.
func NewTracer(t trace.Tracer) Tracer {
	return &tracerImpl{tracer: t}
}

// StartSpan starts a new span with sync metadata as attributes.
func (t *tracerImpl) StartSpan(ctx context.Context, meta Meta) (context.Context, trace.Span) {
	spanName := meta.SpanName()

	// Build attributes
	attrs := []attribute.KeyValue{
		attribute.Bool("sync.error", false), // Will be updated in EndSpan if error
	}
	if meta.Component != "" {
		attrs = append(attrs, attribute.String("sync.component", meta.Component))
	}
	if meta.Resource != "" {
		attrs = append(attrs, attribute.String("sync.resource", meta.Resource))
	}
	if meta.Trigger != "" {
		attrs = append(attrs, attribute.String("sync.trigger", meta.Trigger))
	}

	ctx, span := t.tracer.Start(ctx, spanName,
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindInternal),
	)

	return ctx, span
}

// EndSpan ends the span and records the error status if present.
func (t *tracerImpl) EndSpan(span trace.Span, err error) {
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.Bool("sync.error", true))
		span.RecordError(err)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// NopTracer creates a no-op tracer.
func NopTracer() Tracer {
	return &noopTracer{
		noop: tracenoop.NewTracerProvider().Tracer("noop"),
	}
}

// noopTracer is a tracer that does nothing.
type noopTracer struct {
	noop trace.Tracer
}

func (t *noopTracer) StartSpan(ctx context.Context, meta Meta) (context.Context, trace.Span) {
	return t.noop.Start(ctx, meta.SpanName())
}

func (t *noopTracer) EndSpan(span trace.Span, err error) {
	span.End()
}
