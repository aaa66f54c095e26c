package connectivity

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonwraymond/rentsync/observe"
)

// ErrNilProber is returned when a Monitor is created without a prober.
var ErrNilProber = errors.New("connectivity: prober is nil")

// DefaultInterval is the default probe interval.
const DefaultInterval = 30 * time.Second

// Config configures a Monitor.
type Config struct {
	// Prober answers reachability. Required.
	Prober Prober

	// Interval between probes. Default: DefaultInterval.
	Interval time.Duration

	// Logger is optional; nil disables logging.
	Logger observe.Logger
}

// Monitor maintains the online/offline verdict.
//
// Contract:
// - Concurrency: safe for concurrent use.
// - The monitor starts optimistically online; the first probe corrects it.
type Monitor struct {
	prober   Prober
	interval time.Duration
	logger   observe.Logger

	mu     sync.Mutex
	online bool
	subs   map[int]func(online bool)
	nextID int

	stopOnce sync.Once
	stop     chan struct{}
}

// NewMonitor creates a Monitor with the given configuration.
func NewMonitor(cfg Config) (*Monitor, error) {
	if cfg.Prober == nil {
		return nil, ErrNilProber
	}

	// Apply defaults
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = observe.NopLogger()
	}

	return &Monitor{
		prober:   cfg.Prober,
		interval: cfg.Interval,
		logger:   cfg.Logger.WithMeta(observe.Meta{Component: "connectivity"}),
		online:   true,
		subs:     make(map[int]func(bool)),
		stop:     make(chan struct{}),
	}, nil
}

// Online reports the current verdict.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// SetOnline applies an external signal, such as a platform online/offline
// event, overriding the last probe result.
func (m *Monitor) SetOnline(ctx context.Context, online bool) {
	m.transition(ctx, online)
}

// Subscribe registers a transition callback and returns a cancel function.
// The callback fires only on changes, never on repeated identical verdicts.
func (m *Monitor) Subscribe(fn func(online bool)) (cancel func()) {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.subs[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
	}
}

// Start probes immediately and then on the configured interval until Stop is
// called or ctx is canceled.
func (m *Monitor) Start(ctx context.Context) {
	go m.run(ctx)
}

// Stop halts the probe loop. Safe to call more than once.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })
}

func (m *Monitor) run(ctx context.Context) {
	m.probe(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.probe(ctx)
		case <-m.stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (m *Monitor) probe(ctx context.Context) {
	err := m.prober.Probe(ctx)
	if err != nil {
		m.logger.Debug(ctx, "probe failed",
			observe.Field{Key: "error", Value: err.Error()})
	}
	m.transition(ctx, err == nil)
}

// transition applies a new verdict and notifies subscribers on change.
// Callbacks run outside the lock so a subscriber may re-enter the monitor.
func (m *Monitor) transition(ctx context.Context, online bool) {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	subs := make([]func(bool), 0, len(m.subs))
	for _, fn := range m.subs {
		subs = append(subs, fn)
	}
	m.mu.Unlock()

	if online {
		m.logger.Info(ctx, "network restored")
	} else {
		m.logger.Warn(ctx, "network lost")
	}
	for _, fn := range subs {
		fn(online)
	}
}
