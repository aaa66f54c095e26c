package swr

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/jonwraymond/rentsync/cachestore"
	"github.com/jonwraymond/rentsync/observe"
	"github.com/jonwraymond/rentsync/session"
)

// Sentinel errors for coordinator misuse. Transport and storage failures
// are never returned; they are absorbed per the read-path contract.
var (
	ErrNilStore   = errors.New("swr: store is nil")
	ErrNilFetcher = errors.New("swr: fetcher is nil")
	ErrNoResource = errors.New("swr: request resource is empty")
	ErrNoLocator  = errors.New("swr: request locator is empty")
)

// DefaultThrottleWindow is the minimum interval between manual
// revalidations of one key.
const DefaultThrottleWindow = 4 * time.Second

// Config configures a SyncContext.
type Config struct {
	// Store is the two-tier cache store. Required.
	Store *cachestore.Store

	// Fetcher is the REST boundary. Required.
	Fetcher Fetcher

	// Epoch tracks the active session scope. If nil, a fresh anonymous
	// epoch is created.
	Epoch *session.Epoch

	// Online reports network availability. If nil, the engine assumes it
	// is always online.
	Online func() bool

	// ThrottleWindow is the manual-revalidation throttle.
	// Default: DefaultThrottleWindow.
	ThrottleWindow time.Duration

	// Logger, Metrics and Tracer are optional; nil disables each.
	Logger  observe.Logger
	Metrics observe.Metrics
	Tracer  observe.Tracer
}

// SyncContext owns the process-wide shared state of the coordinator.
//
// One SyncContext is shared by every view so that two panels requesting the
// same resource collapse into one network call. All methods are safe for
// concurrent use.
type SyncContext struct {
	store    *cachestore.Store
	fetcher  Fetcher
	epoch    *session.Epoch
	online   func() bool
	inflight singleflight.Group
	guard    *throttle
	logger   observe.Logger
	metrics  observe.Metrics
	tracer   observe.Tracer
}

// NewSyncContext creates the shared coordinator state.
func NewSyncContext(cfg Config) (*SyncContext, error) {
	if cfg.Store == nil {
		return nil, ErrNilStore
	}
	if cfg.Fetcher == nil {
		return nil, ErrNilFetcher
	}

	// Apply defaults
	if cfg.Epoch == nil {
		cfg.Epoch = session.NewEpoch(session.Anonymous)
	}
	if cfg.Online == nil {
		cfg.Online = func() bool { return true }
	}
	if cfg.ThrottleWindow <= 0 {
		cfg.ThrottleWindow = DefaultThrottleWindow
	}
	if cfg.Logger == nil {
		cfg.Logger = observe.NopLogger()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.NopMetrics()
	}
	if cfg.Tracer == nil {
		cfg.Tracer = observe.NopTracer()
	}

	return &SyncContext{
		store:   cfg.Store,
		fetcher: cfg.Fetcher,
		epoch:   cfg.Epoch,
		online:  cfg.Online,
		guard:   newThrottle(cfg.ThrottleWindow),
		logger:  cfg.Logger.WithMeta(observe.Meta{Component: "swr"}),
		metrics: cfg.Metrics,
		tracer:  cfg.Tracer,
	}, nil
}

// Store exposes the underlying cache store for out-of-band invalidation
// (used by the realtime channel).
func (sc *SyncContext) Store() *cachestore.Store {
	return sc.store
}

// Epoch exposes the session epoch for guard capture by collaborators.
func (sc *SyncContext) Epoch() *session.Epoch {
	return sc.epoch
}

// Scope returns the currently active session scope.
func (sc *SyncContext) Scope() session.Scope {
	return sc.epoch.Scope()
}

// SwitchSession activates a new scope. Outstanding deliveries guarded under
// the old scope become no-ops; cached entries are kept (they are scope-keyed
// and simply unreachable from the new scope).
func (sc *SyncContext) SwitchSession(ctx context.Context, scope session.Scope) {
	sc.epoch.Begin(scope)
	sc.guard.clear()
	sc.store.RememberScope(ctx, string(scope))
	sc.logger.Info(ctx, "session switched")
}

// LastKnownScope returns the scope persisted by the previous process run,
// for optimistic warm starts. Anonymous when nothing was persisted.
func (sc *SyncContext) LastKnownScope(ctx context.Context) session.Scope {
	return session.Scope(sc.store.LastKnownScope(ctx))
}

// EndSession drops back to the anonymous scope and clears both cache tiers.
func (sc *SyncContext) EndSession(ctx context.Context) {
	sc.epoch.Begin(session.Anonymous)
	sc.guard.clear()
	sc.store.Clear(ctx)
	sc.logger.Info(ctx, "session ended, cache cleared")
}
