package connectivity

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// Prober answers one reachability question: can the backend be reached
// right now.
type Prober interface {
	// Probe returns nil when the network is reachable.
	Probe(ctx context.Context) error
}

// ProberFunc is an adapter to allow ordinary functions to be used as Probers.
type ProberFunc func(ctx context.Context) error

// Probe calls f.
func (f ProberFunc) Probe(ctx context.Context) error {
	return f(ctx)
}

// HTTPProberConfig configures an HTTPProber.
type HTTPProberConfig struct {
	// URL is the reachability endpoint, typically a cheap health route.
	URL string

	// Client is the HTTP client to use.
	// If nil, a default client with 5s timeout is used.
	Client *http.Client
}

// HTTPProber reports reachability by issuing a HEAD request. Any response,
// including an error status, proves the network path; only a transport-level
// failure counts as unreachable.
type HTTPProber struct {
	config HTTPProberConfig
}

// NewHTTPProber creates a new HTTP prober.
func NewHTTPProber(config HTTPProberConfig) *HTTPProber {
	// Apply defaults
	if config.Client == nil {
		config.Client = &http.Client{
			Timeout: 5 * time.Second,
		}
	}
	return &HTTPProber{config: config}
}

// Probe issues the HEAD request.
func (p *HTTPProber) Probe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.config.URL, nil)
	if err != nil {
		return fmt.Errorf("connectivity: create request: %w", err)
	}
	resp, err := p.config.Client.Do(req)
	if err != nil {
		return fmt.Errorf("connectivity: probe %s: %w", p.config.URL, err)
	}
	_ = resp.Body.Close()
	return nil
}

// Ensure HTTPProber implements Prober
var _ Prober = (*HTTPProber)(nil)
var _ Prober = (ProberFunc)(nil)
