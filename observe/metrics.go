package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Revalidation outcomes recorded by Metrics.
const (
	OutcomeOK          = "ok"
	OutcomeNotModified = "not_modified"
	OutcomeError       = "error"
	OutcomeThrottled   = "throttled"
	OutcomeOffline     = "offline"
	OutcomeDedup       = "dedup"
)

// Metrics records sync engine activity.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Context: must honor cancellation/deadlines and return quickly.
// - Errors: implementations must not panic.
type Metrics interface {
	// RecordCacheRead records a cache store read and its verdict.
	RecordCacheRead(ctx context.Context, resource string, hit, stale bool)

	// RecordRevalidation records a revalidation attempt with its outcome.
	RecordRevalidation(ctx context.Context, meta Meta, duration time.Duration, outcome string)

	// RecordTransportChange records a realtime transport state transition.
	RecordTransportChange(ctx context.Context, transport, state string)

	// RecordPresencePoll records one presence status fetch.
	RecordPresencePoll(ctx context.Context, duration time.Duration, err error)
}

// metricsImpl is the concrete implementation of Metrics.
type metricsImpl struct {
	meter         metric.Meter
	cacheReads    metric.Int64Counter
	revalTotal    metric.Int64Counter
	revalDuration metric.Float64Histogram
	transportNow  metric.Int64Counter
	presenceTotal metric.Int64Counter
	presenceErrs  metric.Int64Counter
	presenceDur   metric.Float64Histogram
}

// NewMetrics creates a new Metrics instance with the given meter.
func NewMetrics(meter metric.Meter) (Metrics, error) {
	cacheReads, err := meter.Int64Counter(
		"sync.cache.reads",
		metric.WithDescription("Total cache store reads, by hit/stale verdict"),
		metric.WithUnit("{read}"),
	)
	if err != nil {
		return nil, err
	}

	revalTotal, err := meter.Int64Counter(
		"sync.revalidation.total",
		metric.WithDescription("Total revalidation attempts, by outcome"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, err
	}

	revalDuration, err := meter.Float64Histogram(
		"sync.revalidation.duration_ms",
		metric.WithDescription("Revalidation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	transportNow, err := meter.Int64Counter(
		"sync.realtime.transitions",
		metric.WithDescription("Realtime transport state transitions"),
		metric.WithUnit("{transition}"),
	)
	if err != nil {
		return nil, err
	}

	presenceTotal, err := meter.Int64Counter(
		"sync.presence.polls",
		metric.WithDescription("Total presence status fetches"),
		metric.WithUnit("{fetch}"),
	)
	if err != nil {
		return nil, err
	}

	presenceErrs, err := meter.Int64Counter(
		"sync.presence.errors",
		metric.WithDescription("Failed presence status fetches"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	presenceDur, err := meter.Float64Histogram(
		"sync.presence.duration_ms",
		metric.WithDescription("Presence status fetch duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return &metricsImpl{
		meter:         meter,
		cacheReads:    cacheReads,
		revalTotal:    revalTotal,
		revalDuration: revalDuration,
		transportNow:  transportNow,
		presenceTotal: presenceTotal,
		presenceErrs:  presenceErrs,
		presenceDur:   presenceDur,
	}, nil
}

// RecordCacheRead records one cache read with its verdict.
func (m *metricsImpl) RecordCacheRead(ctx context.Context, resource string, hit, stale bool) {
	m.cacheReads.Add(ctx, 1, metric.WithAttributes(
		attribute.String("sync.resource", resource),
		attribute.Bool("sync.hit", hit),
		attribute.Bool("sync.stale", stale),
	))
}

// RecordRevalidation records one revalidation attempt.
func (m *metricsImpl) RecordRevalidation(ctx context.Context, meta Meta, duration time.Duration, outcome string) {
	attrs := []attribute.KeyValue{
		attribute.String("sync.resource", meta.Resource),
		attribute.String("sync.outcome", outcome),
	}
	if meta.Trigger != "" {
		attrs = append(attrs, attribute.String("sync.trigger", meta.Trigger))
	}

	opt := metric.WithAttributes(attrs...)
	m.revalTotal.Add(ctx, 1, opt)

	// Short-circuited attempts (throttled, offline, dedup) have no meaningful duration
	if outcome == OutcomeOK || outcome == OutcomeNotModified || outcome == OutcomeError {
		m.revalDuration.Record(ctx, float64(duration.Milliseconds()), opt)
	}
}

// RecordTransportChange records one realtime transport transition.
func (m *metricsImpl) RecordTransportChange(ctx context.Context, transport, state string) {
	m.transportNow.Add(ctx, 1, metric.WithAttributes(
		attribute.String("sync.transport", transport),
		attribute.String("sync.state", state),
	))
}

// RecordPresencePoll records one presence fetch.
func (m *metricsImpl) RecordPresencePoll(ctx context.Context, duration time.Duration, err error) {
	m.presenceTotal.Add(ctx, 1)
	if err != nil {
		m.presenceErrs.Add(ctx, 1)
	}
	m.presenceDur.Record(ctx, float64(duration.Milliseconds()))
}

// NopMetrics returns a metrics implementation that does nothing.
func NopMetrics() Metrics {
	return &noopMetrics{}
}

// noopMetrics is a metrics implementation that does nothing.
type noopMetrics struct{}

func (m *noopMetrics) RecordCacheRead(ctx context.Context, resource string, hit, stale bool) {}
func (m *noopMetrics) RecordRevalidation(ctx context.Context, meta Meta, duration time.Duration, outcome string) {
}
func (m *noopMetrics) RecordTransportChange(ctx context.Context, transport, state string)        {}
func (m *noopMetrics) RecordPresencePoll(ctx context.Context, duration time.Duration, err error) {}
