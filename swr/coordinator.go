package swr

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jonwraymond/rentsync/cachestore"
	"github.com/jonwraymond/rentsync/observe"
	"github.com/jonwraymond/rentsync/session"
)

// Trigger identifies what started a coordinator call. Manual, visibility and
// online triggers are subject to the per-key throttle (user actions and
// environment events can burst); mount and interval triggers rely on the
// scheduler's own cadence.
type Trigger string

const (
	TriggerMount      Trigger = "mount"
	TriggerInterval   Trigger = "interval"
	TriggerManual     Trigger = "manual"
	TriggerVisibility Trigger = "visibility"
	TriggerOnline     Trigger = "online"
	TriggerRealtime   Trigger = "realtime"
)

// throttled reports whether calls with this trigger consult the per-key
// revalidation guard.
func (t Trigger) throttled() bool {
	return t == TriggerManual || t == TriggerVisibility || t == TriggerOnline
}

// Request describes one coordinator call.
type Request struct {
	// Resource is the logical resource name (rentals, chats, accounts).
	Resource string

	// Locator names the REST endpoint to revalidate against.
	Locator Locator

	// Key overrides the derived cache key. Leave empty to derive it from
	// Resource, the active scope, and the locator's query.
	Key string

	// TTL is the freshness window. Zero means the entry is never fresh and
	// every call revalidates.
	TTL time.Duration

	// Revalidate forces a revalidation attempt even when the cached entry
	// is fresh.
	Revalidate bool

	// Trigger is recorded in telemetry and selects throttle behavior.
	Trigger Trigger

	// Map normalizes the raw response payload into the cached shape.
	// Nil caches the payload as received.
	Map func(raw json.RawMessage) (json.RawMessage, error)

	// Deliver hands a value to the view. final is true when no further
	// delivery will follow for this call.
	Deliver func(data json.RawMessage, final bool)

	// SetLoading clears the view's loading indicator when the call settles.
	SetLoading func(loading bool)
}

// errNotModified is returned by a revalidation that got a 304 with no cached
// entry left to refresh. Internal; absorbed like any transport failure.
var errNotModified = errors.New("swr: not modified but cache entry missing")

// Fetch serves the best available value for the request immediately and
// optionally schedules exactly one network revalidation.
//
// The returned error reports request misuse only. Transport and storage
// failures are absorbed: the last cached value stays authoritative and the
// loading indicator is cleared.
func (sc *SyncContext) Fetch(ctx context.Context, req Request) error {
	if req.Resource == "" {
		return ErrNoResource
	}
	if req.Locator.Path == "" {
		return ErrNoLocator
	}

	guard := sc.epoch.Guard()
	key := req.Key
	if key == "" {
		key = keyFor(req, guard.Scope())
	}
	meta := observe.Meta{Component: "swr", Resource: req.Resource, Trigger: string(req.Trigger)}

	// Deliveries cross async gaps; both callbacks re-check the guard so a
	// slow request started under one session never touches the next.
	deliver := func(data json.RawMessage, final bool) {
		if req.Deliver != nil && guard.Valid() {
			req.Deliver(data, final)
		}
	}
	settle := func() {
		if req.SetLoading != nil && guard.Valid() {
			req.SetLoading(false)
		}
	}

	snap, ok := sc.store.Read(ctx, key, req.TTL)
	sc.metrics.RecordCacheRead(ctx, req.Resource, ok, ok && snap.Stale)

	revalidate := req.Revalidate || !ok || snap.Stale || req.TTL <= 0
	if revalidate && !sc.online() {
		// Offline does not count as an attempt; stale data is final.
		sc.metrics.RecordRevalidation(ctx, meta, 0, observe.OutcomeOffline)
		sc.logger.Debug(ctx, "offline, serving cache as final",
			observe.Field{Key: "resource", Value: req.Resource})
		revalidate = false
	}

	if ok {
		deliver(snap.Data, !revalidate)
	}
	if !revalidate {
		settle()
		return nil
	}

	if req.Trigger.throttled() && !sc.guard.allow(key) {
		sc.metrics.RecordRevalidation(ctx, meta, 0, observe.OutcomeThrottled)
		settle()
		return nil
	}

	ran := false
	value, err, _ := sc.inflight.Do(key, func() (any, error) {
		ran = true
		return sc.revalidate(ctx, key, req, guard, meta)
	})
	if !ran {
		// Joined an in-flight revalidation; the original requester already
		// wrote the cache and recorded the attempt.
		sc.metrics.RecordRevalidation(ctx, meta, 0, observe.OutcomeDedup)
	}

	if err != nil {
		settle()
		return nil
	}
	deliver(value.(json.RawMessage), true)
	settle()
	return nil
}

// revalidate runs inside the in-flight registry: one execution per key at a
// time, joiners share its outcome.
func (sc *SyncContext) revalidate(ctx context.Context, key string, req Request, guard session.Guard, meta observe.Meta) (json.RawMessage, error) {
	ctx, span := sc.tracer.StartSpan(ctx, meta)

	// Re-read the etag inside the registry; a write may have landed while
	// this call waited its turn.
	etag := ""
	if snap, ok := sc.store.Read(ctx, key, 0); ok {
		etag = snap.ETag
	}

	start := time.Now()
	res, err := sc.fetcher.Fetch(ctx, req.Locator, etag)
	elapsed := time.Since(start)
	if err != nil {
		sc.metrics.RecordRevalidation(ctx, meta, elapsed, observe.OutcomeError)
		sc.logger.Warn(ctx, "revalidation failed",
			observe.Field{Key: "resource", Value: req.Resource},
			observe.Field{Key: "error", Value: err.Error()})
		sc.tracer.EndSpan(span, err)
		return nil, err
	}

	if res.NotModified {
		if !sc.store.Touch(ctx, key) {
			sc.tracer.EndSpan(span, errNotModified)
			return nil, errNotModified
		}
		snap, _ := sc.store.Read(ctx, key, 0)
		sc.metrics.RecordRevalidation(ctx, meta, elapsed, observe.OutcomeNotModified)
		sc.tracer.EndSpan(span, nil)
		return snap.Data, nil
	}

	data := json.RawMessage(res.Body)
	if req.Map != nil {
		data, err = req.Map(data)
		if err != nil {
			sc.metrics.RecordRevalidation(ctx, meta, elapsed, observe.OutcomeError)
			sc.logger.Warn(ctx, "response mapping failed",
				observe.Field{Key: "resource", Value: req.Resource},
				observe.Field{Key: "error", Value: err.Error()})
			sc.tracer.EndSpan(span, err)
			return nil, err
		}
	}

	// The session may have ended while the fetch ran. EndSession purges both
	// cache tiers; writing now would resurrect the old session's payload on
	// disk, so a stale guard skips the write entirely.
	if !guard.Valid() {
		sc.logger.Debug(ctx, "session changed, discarding revalidation",
			observe.Field{Key: "resource", Value: req.Resource})
		sc.tracer.EndSpan(span, nil)
		return data, nil
	}

	sc.store.Write(ctx, key, data, res.ETag)
	sc.metrics.RecordRevalidation(ctx, meta, elapsed, observe.OutcomeOK)
	sc.logger.Debug(ctx, "revalidated",
		observe.Field{Key: "resource", Value: req.Resource},
		observe.Field{Key: "elapsed_ms", Value: elapsed.Milliseconds()})
	sc.tracer.EndSpan(span, nil)
	return data, nil
}

// keyFor derives the cache key from the request and scope. The locator's
// query is folded in so distinct searches never share an entry.
func keyFor(req Request, scope session.Scope) string {
	if len(req.Locator.Query) > 0 {
		return cachestore.Key(req.Resource, scope, req.Locator.Query.Encode())
	}
	return cachestore.Key(req.Resource, scope)
}
