package presence

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/jonwraymond/rentsync/observe"
	"github.com/jonwraymond/rentsync/session"
)

// ErrNilClient is returned when a Poller is created without a status client.
var ErrNilClient = errors.New("presence: status client is nil")

// Defaults for the refresh policy.
const (
	DefaultWorkers   = 4
	DefaultFreshness = 15 * time.Second
)

// Config configures a Poller.
type Config struct {
	// Client fetches live status. Required.
	Client StatusClient

	// Workers caps concurrent status requests. Default: DefaultWorkers.
	Workers int64

	// Freshness is how long a fetched status stays current.
	// Default: DefaultFreshness.
	Freshness time.Duration

	// Epoch guards result merges across session switches. Nil disables
	// the guard.
	Epoch *session.Epoch

	// Logger and Metrics are optional; nil disables each.
	Logger  observe.Logger
	Metrics observe.Metrics
}

// entry is one freshness-table row.
type entry struct {
	status    Status
	fetchedAt time.Time
}

// Poller maintains the identifier -> status side table.
//
// Contract:
//   - Concurrency: safe for concurrent use; Refresh may run while readers
//     call Get.
//   - A failed fetch leaves its identifier due, never a partial entry.
type Poller struct {
	client    StatusClient
	workers   int64
	freshness time.Duration
	epoch     *session.Epoch
	sem       *semaphore.Weighted
	logger    observe.Logger
	metrics   observe.Metrics

	mu    sync.RWMutex
	table map[string]entry
}

// NewPoller creates a Poller with the given configuration.
func NewPoller(cfg Config) (*Poller, error) {
	if cfg.Client == nil {
		return nil, ErrNilClient
	}

	// Apply defaults
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.Freshness <= 0 {
		cfg.Freshness = DefaultFreshness
	}
	if cfg.Logger == nil {
		cfg.Logger = observe.NopLogger()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.NopMetrics()
	}

	return &Poller{
		client:    cfg.Client,
		workers:   cfg.Workers,
		freshness: cfg.Freshness,
		epoch:     cfg.Epoch,
		sem:       semaphore.NewWeighted(cfg.Workers),
		logger:    cfg.Logger.WithMeta(observe.Meta{Component: "presence"}),
		metrics:   cfg.Metrics,
	}, nil
}

// Get returns the cached status for id, if any. The second return reports
// presence in the table regardless of freshness; callers display the last
// known value even when a refresh is overdue.
func (p *Poller) Get(id string) (Status, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	e, ok := p.table[id]
	return e.status, ok
}

// Refresh fetches every due identifier from ids: those with no table entry
// or one older than the freshness window. At most the configured worker
// count runs at once; a finishing fetch immediately frees its slot for the
// next due identifier. Returns when every due identifier has been attempted
// or ctx is canceled.
func (p *Poller) Refresh(ctx context.Context, ids []string) {
	due := p.due(ids)
	if len(due) == 0 {
		return
	}

	var guard session.Guard
	if p.epoch != nil {
		guard = p.epoch.Guard()
	}

	var wg sync.WaitGroup
	for _, id := range due {
		if err := p.sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			defer p.sem.Release(1)
			p.fetch(ctx, id, guard)
		}(id)
	}
	wg.Wait()
}

// Start refreshes on an interval until ctx is canceled. source supplies the
// working set per pass.
func (p *Poller) Start(ctx context.Context, interval time.Duration, source func() []string) {
	if interval <= 0 {
		interval = p.freshness
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				p.Refresh(ctx, source())
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Clear drops the freshness table, for session switches.
func (p *Poller) Clear() {
	p.mu.Lock()
	p.table = nil
	p.mu.Unlock()
}

// due returns the distinct identifiers needing refresh.
func (p *Poller) due(ids []string) []string {
	now := time.Now()
	seen := make(map[string]struct{}, len(ids))

	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if e, ok := p.table[id]; ok && now.Sub(e.fetchedAt) <= p.freshness {
			continue
		}
		out = append(out, id)
	}
	return out
}

// fetch retrieves one identifier's status and merges it into the table.
// Failures are isolated: the identifier stays due and nothing else is
// affected. Results arriving after a session switch are discarded.
func (p *Poller) fetch(ctx context.Context, id string, guard session.Guard) {
	start := time.Now()
	status, err := p.client.Status(ctx, id)
	elapsed := time.Since(start)
	p.metrics.RecordPresencePoll(ctx, elapsed, err)
	if err != nil {
		p.logger.Debug(ctx, "status fetch failed",
			observe.Field{Key: "id", Value: id},
			observe.Field{Key: "error", Value: err.Error()})
		return
	}
	if p.epoch != nil && !guard.Valid() {
		return
	}

	p.mu.Lock()
	if p.table == nil {
		p.table = make(map[string]entry)
	}
	p.table[id] = entry{status: status, fetchedAt: time.Now()}
	p.mu.Unlock()
}
