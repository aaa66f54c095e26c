package presence

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonwraymond/rentsync/session"
)

// countingClient records per-id attempts and peak concurrency.
type countingClient struct {
	mu       sync.Mutex
	attempts map[string]int
	active   int32
	peak     int32
	delay    time.Duration
	failFor  map[string]bool
}

func newCountingClient(delay time.Duration) *countingClient {
	return &countingClient{
		attempts: make(map[string]int),
		failFor:  make(map[string]bool),
		delay:    delay,
	}
}

func (c *countingClient) Status(ctx context.Context, id string) (Status, error) {
	active := atomic.AddInt32(&c.active, 1)
	defer atomic.AddInt32(&c.active, -1)
	for {
		peak := atomic.LoadInt32(&c.peak)
		if active <= peak || atomic.CompareAndSwapInt32(&c.peak, peak, active) {
			break
		}
	}

	c.mu.Lock()
	c.attempts[id]++
	fail := c.failFor[id]
	c.mu.Unlock()

	if c.delay > 0 {
		time.Sleep(c.delay)
	}
	if fail {
		return Status{}, errors.New("status service unavailable")
	}
	return Status{ID: id, InMatch: true, ElapsedSeconds: 42}, nil
}

func (c *countingClient) attemptCount(id string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts[id]
}

func (c *countingClient) totalAttempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := 0
	for _, n := range c.attempts {
		total += n
	}
	return total
}

func ids(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = string(rune('a' + i))
	}
	return out
}

func TestNewPoller_RequiresClient(t *testing.T) {
	if _, err := NewPoller(Config{}); !errors.Is(err, ErrNilClient) {
		t.Errorf("expected ErrNilClient, got %v", err)
	}
}

func TestRefresh_ConcurrencyBound(t *testing.T) {
	client := newCountingClient(20 * time.Millisecond)
	p, err := NewPoller(Config{Client: client, Workers: 4})
	if err != nil {
		t.Fatalf("NewPoller: %v", err)
	}

	p.Refresh(context.Background(), ids(10))

	if peak := atomic.LoadInt32(&client.peak); peak > 4 {
		t.Errorf("peak concurrency = %d, want <= 4", peak)
	}
	if total := client.totalAttempts(); total != 10 {
		t.Errorf("attempts = %d, want each of 10 ids attempted exactly once", total)
	}
	for _, id := range ids(10) {
		if n := client.attemptCount(id); n != 1 {
			t.Errorf("id %q attempted %d times, want 1", id, n)
		}
		if _, ok := p.Get(id); !ok {
			t.Errorf("id %q missing from table", id)
		}
	}
}

func TestRefresh_FreshEntriesSkipped(t *testing.T) {
	client := newCountingClient(0)
	p, err := NewPoller(Config{Client: client, Freshness: time.Minute})
	if err != nil {
		t.Fatalf("NewPoller: %v", err)
	}
	ctx := context.Background()

	p.Refresh(ctx, []string{"a", "b"})
	p.Refresh(ctx, []string{"a", "b"})

	if total := client.totalAttempts(); total != 2 {
		t.Errorf("attempts = %d, fresh entries must not refetch", total)
	}
}

func TestRefresh_StaleEntriesRefetched(t *testing.T) {
	client := newCountingClient(0)
	p, err := NewPoller(Config{Client: client, Freshness: 10 * time.Millisecond})
	if err != nil {
		t.Fatalf("NewPoller: %v", err)
	}
	ctx := context.Background()

	p.Refresh(ctx, []string{"a"})
	time.Sleep(20 * time.Millisecond)
	p.Refresh(ctx, []string{"a"})

	if n := client.attemptCount("a"); n != 2 {
		t.Errorf("attempts = %d, stale entry must refetch", n)
	}
}

func TestRefresh_DuplicateIDsCollapsed(t *testing.T) {
	client := newCountingClient(0)
	p, err := NewPoller(Config{Client: client})
	if err != nil {
		t.Fatalf("NewPoller: %v", err)
	}

	p.Refresh(context.Background(), []string{"a", "a", "", "a"})
	if n := client.attemptCount("a"); n != 1 {
		t.Errorf("attempts = %d, duplicates must collapse", n)
	}
}

func TestRefresh_FailureIsolated(t *testing.T) {
	client := newCountingClient(0)
	client.failFor["b"] = true
	p, err := NewPoller(Config{Client: client})
	if err != nil {
		t.Fatalf("NewPoller: %v", err)
	}
	ctx := context.Background()

	p.Refresh(ctx, []string{"a", "b", "c"})

	if _, ok := p.Get("a"); !ok {
		t.Error("healthy id a missing from table")
	}
	if _, ok := p.Get("c"); !ok {
		t.Error("healthy id c missing from table")
	}
	if _, ok := p.Get("b"); ok {
		t.Error("failed fetch must not populate the table")
	}

	// The failed identifier stays due and retries next pass; the healthy
	// ones are fresh and skipped.
	p.Refresh(ctx, []string{"a", "b", "c"})
	if n := client.attemptCount("b"); n != 2 {
		t.Errorf("failed id attempts = %d, want retry on next pass", n)
	}
	if n := client.attemptCount("a"); n != 1 {
		t.Errorf("fresh id refetched, attempts = %d", n)
	}
}

func TestRefresh_SessionSwitchDiscardsResults(t *testing.T) {
	client := newCountingClient(30 * time.Millisecond)
	epoch := session.NewEpoch(session.NewScope("alice", ""))
	p, err := NewPoller(Config{Client: client, Epoch: epoch})
	if err != nil {
		t.Fatalf("NewPoller: %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		p.Refresh(context.Background(), []string{"a", "b"})
	}()
	time.Sleep(10 * time.Millisecond)
	epoch.Begin(session.NewScope("bob", ""))
	<-done

	if _, ok := p.Get("a"); ok {
		t.Error("results landing after a session switch must be discarded")
	}
	if total := client.totalAttempts(); total != 2 {
		t.Errorf("in-flight fetches run to completion, attempts = %d", total)
	}
}

func TestPoller_Clear(t *testing.T) {
	client := newCountingClient(0)
	p, err := NewPoller(Config{Client: client})
	if err != nil {
		t.Fatalf("NewPoller: %v", err)
	}

	p.Refresh(context.Background(), []string{"a"})
	p.Clear()
	if _, ok := p.Get("a"); ok {
		t.Error("Clear must drop the table")
	}
}

func TestHTTPStatusClient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/status/acc-1" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`{"in_match":true,"elapsed_seconds":900}`))
	}))
	defer server.Close()

	client := NewHTTPStatusClient(HTTPStatusClientConfig{BaseURL: server.URL})

	status, err := client.Status(context.Background(), "acc-1")
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.ID != "acc-1" || !status.InMatch || status.ElapsedSeconds != 900 {
		t.Errorf("status = %+v", status)
	}

	if _, err := client.Status(context.Background(), "missing"); err == nil {
		t.Error("expected error for 404")
	}
}
