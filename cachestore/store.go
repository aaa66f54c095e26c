package cachestore

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/jonwraymond/rentsync/observe"
)

// Config configures a Store.
type Config struct {
	// Durable is the persisted tier. Nil disables persistence.
	Durable Durable

	// Logger receives debug records for swallowed durable-tier errors.
	// Nil disables logging.
	Logger observe.Logger
}

// Store is the two-tier snapshot store.
//
// Contract:
// - Concurrency: safe for concurrent use.
// - Errors: methods never fail; durable-tier errors degrade to memory-only.
// - WrittenAt is monotonically non-decreasing per key.
type Store struct {
	mu      sync.RWMutex
	entries map[string]Entry
	durable Durable
	logger  observe.Logger
}

// New creates a Store with the given configuration.
func New(cfg Config) *Store {
	if cfg.Durable == nil {
		cfg.Durable = NopDurable{}
	}
	if cfg.Logger == nil {
		cfg.Logger = observe.NopLogger()
	}
	return &Store{
		entries: make(map[string]Entry),
		durable: cfg.Durable,
		logger:  cfg.Logger.WithMeta(observe.Meta{Component: "cachestore"}),
	}
}

// Read returns the newest snapshot for key from either tier.
//
// maxAge > 0 opts into staleness evaluation: the snapshot is stale when its
// age exceeds maxAge. maxAge <= 0 means the caller applies no freshness
// policy and the snapshot is never stale.
//
// A durable-tier entry newer than the in-memory one is promoted into memory
// as a side effect.
func (s *Store) Read(ctx context.Context, key string, maxAge time.Duration) (Snapshot, bool) {
	s.mu.RLock()
	mem, memOK := s.entries[key]
	s.mu.RUnlock()

	disk, diskOK, err := s.durable.Load(key)
	if err != nil {
		s.logger.Debug(ctx, "durable read failed", observe.Field{Key: "key", Value: key}, observe.Field{Key: "error", Value: err.Error()})
		diskOK = false
	}

	var winner Entry
	switch {
	case memOK && diskOK:
		// Larger WrittenAt wins the reconciliation.
		if disk.WrittenAt.After(mem.WrittenAt) {
			winner = disk
			s.promote(key, disk)
		} else {
			winner = mem
		}
	case memOK:
		winner = mem
	case diskOK:
		winner = disk
		s.promote(key, disk)
	default:
		return Snapshot{}, false
	}

	stale := maxAge > 0 && time.Since(winner.WrittenAt) > maxAge
	return Snapshot{
		Data:      winner.Data,
		WrittenAt: winner.WrittenAt,
		ETag:      winner.ETag,
		Stale:     stale,
	}, true
}

// Write stores data under key in both tiers. Memory is updated first, so a
// concurrent reader never observes the durable tier ahead of memory.
func (s *Store) Write(ctx context.Context, key string, data json.RawMessage, etag string) {
	now := time.Now()

	s.mu.Lock()
	if prev, ok := s.entries[key]; ok && now.Before(prev.WrittenAt) {
		now = prev.WrittenAt
	}
	entry := Entry{Data: data, WrittenAt: now, ETag: etag}
	s.entries[key] = entry
	s.mu.Unlock()

	if err := s.durable.Store(key, entry); err != nil {
		s.logger.Debug(ctx, "durable write failed", observe.Field{Key: "key", Value: key}, observe.Field{Key: "error", Value: err.Error()})
	}
}

// Touch refreshes WrittenAt for key without changing data, for conditional
// revalidations answered with "not modified". Returns false when the key is
// absent from both tiers.
func (s *Store) Touch(ctx context.Context, key string) bool {
	snap, ok := s.Read(ctx, key, 0)
	if !ok {
		return false
	}
	s.Write(ctx, key, snap.Data, snap.ETag)
	return true
}

// Expire marks key stale-by-construction: its WrittenAt is zeroed so any
// freshness window treats it as stale. The data itself is kept.
func (s *Store) Expire(ctx context.Context, key string) {
	s.mu.Lock()
	entry, ok := s.entries[key]
	if ok {
		entry.WrittenAt = time.Time{}
		s.entries[key] = entry
	}
	s.mu.Unlock()

	if !ok {
		var err error
		if entry, ok, err = s.durable.Load(key); err != nil || !ok {
			return
		}
		entry.WrittenAt = time.Time{}
	}

	if err := s.durable.Store(key, entry); err != nil {
		s.logger.Debug(ctx, "durable expire failed", observe.Field{Key: "key", Value: key}, observe.Field{Key: "error", Value: err.Error()})
	}
}

// Clear drops every entry from both tiers. Used on logout/session switch.
func (s *Store) Clear(ctx context.Context) {
	s.mu.Lock()
	s.entries = make(map[string]Entry)
	s.mu.Unlock()

	if err := s.durable.Clear(); err != nil {
		s.logger.Debug(ctx, "durable clear failed", observe.Field{Key: "error", Value: err.Error()})
	}
}

// RememberScope persists scope as the last known session scope when the
// durable tier supports it. Used to warm-start a view optimistically before
// the session is reconfirmed. Errors are swallowed like any durable failure.
func (s *Store) RememberScope(ctx context.Context, scope string) {
	rec, ok := s.durable.(ScopeRecorder)
	if !ok {
		return
	}
	if err := rec.SaveLastScope(scope); err != nil {
		s.logger.Debug(ctx, "scope persist failed", observe.Field{Key: "error", Value: err.Error()})
	}
}

// LastKnownScope returns the persisted session scope, or "" when the durable
// tier has none or does not record scopes.
func (s *Store) LastKnownScope(ctx context.Context) string {
	rec, ok := s.durable.(ScopeRecorder)
	if !ok {
		return ""
	}
	scope, err := rec.LastScope()
	if err != nil {
		s.logger.Debug(ctx, "scope load failed", observe.Field{Key: "error", Value: err.Error()})
		return ""
	}
	return scope
}

// promote copies a durable-tier entry into memory unless memory already
// holds something newer.
func (s *Store) promote(key string, entry Entry) {
	s.mu.Lock()
	if cur, ok := s.entries[key]; !ok || entry.WrittenAt.After(cur.WrittenAt) {
		s.entries[key] = entry
	}
	s.mu.Unlock()
}
