package swr

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonwraymond/rentsync/cachestore"
	"github.com/jonwraymond/rentsync/session"
)

func TestHTTPFetcher_ConditionalGet(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		w.Write([]byte(`{"items":[]}`))
	}))
	defer server.Close()

	fetcher := NewHTTPFetcher(HTTPFetcherConfig{BaseURL: server.URL})
	ctx := context.Background()

	res, err := fetcher.Fetch(ctx, Locator{Path: "/rentals"}, "")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if res.NotModified {
		t.Fatal("unconditional fetch reported NotModified")
	}
	if res.ETag != `"v1"` {
		t.Errorf("ETag = %q, want %q", res.ETag, `"v1"`)
	}
	if string(res.Body) != `{"items":[]}` {
		t.Errorf("Body = %s", res.Body)
	}

	res, err = fetcher.Fetch(ctx, Locator{Path: "/rentals"}, `"v1"`)
	if err != nil {
		t.Fatalf("conditional Fetch: %v", err)
	}
	if !res.NotModified {
		t.Error("matching etag must yield NotModified")
	}
	if len(res.Body) != 0 {
		t.Errorf("304 body must be empty, got %s", res.Body)
	}
	if hits.Load() != 2 {
		t.Errorf("server hits = %d, want 2", hits.Load())
	}
}

func TestHTTPFetcher_AuthorizationAndQuery(t *testing.T) {
	var gotAuth, gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotQuery = r.URL.RawQuery
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	fetcher := NewHTTPFetcher(HTTPFetcherConfig{
		BaseURL:       server.URL,
		Authorization: func() string { return "Bearer tok123" },
	})
	_, err := fetcher.Fetch(context.Background(), Locator{
		Path:  "/accounts",
		Query: url.Values{"q": {"dota"}},
	}, "")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if gotAuth != "Bearer tok123" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotQuery != "q=dota" {
		t.Errorf("query = %q", gotQuery)
	}
}

func TestHTTPFetcher_NonSuccessStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer server.Close()

	fetcher := NewHTTPFetcher(HTTPFetcherConfig{BaseURL: server.URL})
	if _, err := fetcher.Fetch(context.Background(), Locator{Path: "/rentals"}, ""); err == nil {
		t.Error("expected error for 502 response")
	}
}

// Exercises the full rental-list lifecycle: populate, serve from cache, then
// conditionally revalidate with a 304.
func TestEndToEnd_RentalList(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.Header.Get("If-None-Match") == `"r1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"r1"`)
		w.Write([]byte(`{"items":[{"id":1},{"id":2},{"id":3}]}`))
	}))
	defer server.Close()

	sc, err := NewSyncContext(Config{
		Store:   cachestore.New(cachestore.Config{}),
		Fetcher: NewHTTPFetcher(HTTPFetcherConfig{BaseURL: server.URL}),
		Epoch:   session.NewEpoch(session.NewScope("alice", "")),
	})
	if err != nil {
		t.Fatalf("NewSyncContext: %v", err)
	}
	ctx := context.Background()

	mapRows := func(raw json.RawMessage) (json.RawMessage, error) {
		var payload struct {
			Items []json.RawMessage `json:"items"`
		}
		if err := json.Unmarshal(raw, &payload); err != nil {
			return nil, err
		}
		return json.Marshal(payload.Items)
	}

	var rows []json.RawMessage
	deliver := func(data json.RawMessage, final bool) {
		rows = nil
		if err := json.Unmarshal(data, &rows); err != nil {
			t.Errorf("unmarshal delivery: %v", err)
		}
	}

	req := Request{
		Resource: "rentals",
		Locator:  Locator{Path: "/rentals"},
		TTL:      time.Minute,
		Map:      mapRows,
		Deliver:  deliver,
	}
	if err := sc.Fetch(ctx, req); err != nil {
		t.Fatalf("initial fetch: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 mapped rows, got %d", len(rows))
	}

	key := keyFor(req, sc.Scope())
	snap, ok := sc.Store().Read(ctx, key, 0)
	if !ok || snap.ETag != `"r1"` {
		t.Fatalf("cached etag = %q, want %q", snap.ETag, `"r1"`)
	}

	// Within TTL: served from cache, zero network calls.
	rows = nil
	_ = sc.Fetch(ctx, req)
	if hits.Load() != 1 {
		t.Errorf("fresh fetch hit the network, hits = %d", hits.Load())
	}
	if len(rows) != 3 {
		t.Errorf("cached delivery rows = %d, want 3", len(rows))
	}

	// Forced: conditional GET answered 304, rows preserved.
	rows = nil
	req.Revalidate = true
	_ = sc.Fetch(ctx, req)
	if hits.Load() != 2 {
		t.Errorf("forced fetch hits = %d, want 2", hits.Load())
	}
	if len(rows) != 3 {
		t.Errorf("rows after 304 = %d, want 3", len(rows))
	}
	snap, _ = sc.Store().Read(ctx, key, 0)
	if snap.ETag != `"r1"` {
		t.Errorf("etag after 304 = %q, want %q", snap.ETag, `"r1"`)
	}
}
