package swr

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Locator names a REST resource to revalidate against.
type Locator struct {
	// Path is an absolute URL, or a path joined to the fetcher's base URL.
	Path string

	// Query is the optional query string. Callers that vary it must fold
	// Locator.String into the cache key.
	Query url.Values
}

// String renders the locator for cache-key derivation.
func (l Locator) String() string {
	if len(l.Query) == 0 {
		return l.Path
	}
	return l.Path + "?" + l.Query.Encode()
}

// Result is the outcome of one conditional fetch.
type Result struct {
	// NotModified is true for a 304: the cached value is current.
	NotModified bool

	// Body is the raw response payload (empty on NotModified).
	Body []byte

	// ETag is the response's version tag, if the server sent one.
	ETag string
}

// Fetcher is the REST boundary consumed by the coordinator.
//
// Contract:
//   - Concurrency: implementations must be safe for concurrent use.
//   - Context: must honor cancellation/deadlines.
//   - Errors: any non-2xx/304 outcome is an error; the coordinator treats
//     every error as a recoverable transport failure.
type Fetcher interface {
	Fetch(ctx context.Context, loc Locator, etag string) (Result, error)
}

// HTTPFetcherConfig configures the HTTP fetcher.
type HTTPFetcherConfig struct {
	// BaseURL is prepended to relative locator paths.
	BaseURL string

	// Client is the HTTP client to use for requests.
	// If nil, a default client with 30s timeout is used.
	Client *http.Client

	// Authorization, when set, supplies the Authorization header value per
	// request (tokens rotate, so it is a func rather than a string).
	Authorization func() string
}

// HTTPFetcher performs conditional GETs with If-None-Match revalidation.
type HTTPFetcher struct {
	config HTTPFetcherConfig
}

// NewHTTPFetcher creates a new HTTP fetcher.
func NewHTTPFetcher(config HTTPFetcherConfig) *HTTPFetcher {
	// Apply defaults
	if config.Client == nil {
		config.Client = &http.Client{
			Timeout: 30 * time.Second,
		}
	}
	return &HTTPFetcher{config: config}
}

// Fetch issues a GET for the locator, attaching If-None-Match when a cached
// etag exists.
func (f *HTTPFetcher) Fetch(ctx context.Context, loc Locator, etag string) (Result, error) {
	target := loc.Path
	if !strings.HasPrefix(target, "http://") && !strings.HasPrefix(target, "https://") {
		target = strings.TrimSuffix(f.config.BaseURL, "/") + "/" + strings.TrimPrefix(target, "/")
	}
	if len(loc.Query) > 0 {
		target += "?" + loc.Query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return Result{}, fmt.Errorf("swr: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
	}
	if f.config.Authorization != nil {
		if v := f.config.Authorization(); v != "" {
			req.Header.Set("Authorization", v)
		}
	}

	resp, err := f.config.Client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("swr: fetch %s: %w", loc.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotModified {
		return Result{NotModified: true, ETag: etag}, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Result{}, fmt.Errorf("swr: unexpected status: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, fmt.Errorf("swr: read body: %w", err)
	}

	return Result{Body: body, ETag: resp.Header.Get("ETag")}, nil
}

// Ensure HTTPFetcher implements Fetcher
var _ Fetcher = (*HTTPFetcher)(nil)
