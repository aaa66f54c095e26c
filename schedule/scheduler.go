package schedule

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonwraymond/rentsync/connectivity"
	"github.com/jonwraymond/rentsync/observe"
	"github.com/jonwraymond/rentsync/swr"
)

// Sentinel errors for scheduler misuse.
var (
	ErrNilCoordinator = errors.New("schedule: coordinator is nil")
	ErrNoSectionName  = errors.New("schedule: section name is empty")
	ErrNoRequests     = errors.New("schedule: section has no request source")
)

// Interval bounds. Sections outside this range are clamped; volatility
// dictates where inside it a resource sits.
const (
	MinInterval     = 15 * time.Second
	MaxInterval     = 120 * time.Second
	DefaultInterval = 60 * time.Second

	// DefaultInitialDelay is the gap between first paint and the first
	// authoritative refresh.
	DefaultInitialDelay = 700 * time.Millisecond
)

// Coordinator is the slice of the sync context the scheduler drives.
type Coordinator interface {
	Fetch(ctx context.Context, req swr.Request) error
}

// Section describes one dashboard section's refresh policy.
type Section struct {
	// Name identifies the section in logs.
	Name string

	// Interval between revalidations while the section stays active.
	// Clamped to [MinInterval, MaxInterval]; zero means DefaultInterval.
	Interval time.Duration

	// Requests returns the coordinator requests that populate the section.
	// Called per trigger so delivery closures bind to the live view.
	Requests func() []swr.Request
}

// Config configures a Scheduler.
type Config struct {
	// Coordinator executes the fetches. Required.
	Coordinator Coordinator

	// InitialDelay before the post-paint refresh.
	// Default: DefaultInitialDelay.
	InitialDelay time.Duration

	// Logger is optional; nil disables logging.
	Logger observe.Logger
}

// Scheduler drives revalidation triggers for the active section.
//
// Contract:
// - Concurrency: safe for concurrent use.
// - At most one section is active at a time; Activate replaces the previous.
type Scheduler struct {
	coordinator  Coordinator
	initialDelay time.Duration
	logger       observe.Logger

	mu      sync.Mutex
	section Section
	active  bool
	stop    chan struct{}
}

// NewScheduler creates a Scheduler with the given configuration.
func NewScheduler(cfg Config) (*Scheduler, error) {
	if cfg.Coordinator == nil {
		return nil, ErrNilCoordinator
	}

	// Apply defaults
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = DefaultInitialDelay
	}
	if cfg.Logger == nil {
		cfg.Logger = observe.NopLogger()
	}

	return &Scheduler{
		coordinator:  cfg.Coordinator,
		initialDelay: cfg.InitialDelay,
		logger:       cfg.Logger.WithMeta(observe.Meta{Component: "schedule"}),
	}, nil
}

// Activate makes section the active one, replacing any previous section, and
// starts its trigger loop: an immediate cache-or-fetch, a post-paint forced
// refresh, then interval refreshes until Deactivate or ctx cancellation.
func (s *Scheduler) Activate(ctx context.Context, section Section) error {
	if section.Name == "" {
		return ErrNoSectionName
	}
	if section.Requests == nil {
		return ErrNoRequests
	}
	if section.Interval <= 0 {
		section.Interval = DefaultInterval
	} else if section.Interval < MinInterval {
		section.Interval = MinInterval
	} else if section.Interval > MaxInterval {
		section.Interval = MaxInterval
	}

	s.mu.Lock()
	if s.active {
		close(s.stop)
	}
	s.section = section
	s.active = true
	stop := make(chan struct{})
	s.stop = stop
	s.mu.Unlock()

	s.logger.Info(ctx, "section activated",
		observe.Field{Key: "section", Value: section.Name})

	s.fire(ctx, section, swr.TriggerMount, false)
	go s.run(ctx, section, stop)
	return nil
}

// Deactivate stops the active section's trigger loop. Idempotent.
func (s *Scheduler) Deactivate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return
	}
	close(s.stop)
	s.active = false
}

// Active returns the name of the active section, or "".
func (s *Scheduler) Active() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return ""
	}
	return s.section.Name
}

// NotifyVisible revalidates the active section after the page regains
// foreground visibility.
func (s *Scheduler) NotifyVisible(ctx context.Context) {
	s.notify(ctx, swr.TriggerVisibility)
}

// NotifyOnline revalidates the active section after connectivity returns.
func (s *Scheduler) NotifyOnline(ctx context.Context) {
	s.notify(ctx, swr.TriggerOnline)
}

// Watch subscribes the scheduler to a connectivity monitor so regained
// connectivity revalidates the active section. Returns the subscription's
// cancel function.
func (s *Scheduler) Watch(ctx context.Context, monitor *connectivity.Monitor) (cancel func()) {
	return monitor.Subscribe(func(online bool) {
		if online {
			s.NotifyOnline(ctx)
		}
	})
}

func (s *Scheduler) notify(ctx context.Context, trigger swr.Trigger) {
	s.mu.Lock()
	section, active := s.section, s.active
	s.mu.Unlock()
	if !active {
		return
	}
	s.fire(ctx, section, trigger, true)
}

func (s *Scheduler) run(ctx context.Context, section Section, stop chan struct{}) {
	delay := time.NewTimer(s.initialDelay)
	defer delay.Stop()

	select {
	case <-delay.C:
		s.fire(ctx, section, swr.TriggerMount, true)
	case <-stop:
		return
	case <-ctx.Done():
		return
	}

	ticker := time.NewTicker(section.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.fire(ctx, section, swr.TriggerInterval, true)
		case <-stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) fire(ctx context.Context, section Section, trigger swr.Trigger, revalidate bool) {
	for _, req := range section.Requests() {
		req.Trigger = trigger
		req.Revalidate = revalidate
		if err := s.coordinator.Fetch(ctx, req); err != nil {
			s.logger.Warn(ctx, "fetch rejected",
				observe.Field{Key: "section", Value: section.Name},
				observe.Field{Key: "resource", Value: req.Resource},
				observe.Field{Key: "error", Value: err.Error()})
		}
	}
}
