package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Status is one rental's live state as reported by the status service.
type Status struct {
	ID             string `json:"id"`
	InMatch        bool   `json:"in_match"`
	ElapsedSeconds int64  `json:"elapsed_seconds"`
}

// StatusClient is the status-service boundary.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Context: must honor cancellation/deadlines.
type StatusClient interface {
	Status(ctx context.Context, id string) (Status, error)
}

// HTTPStatusClientConfig configures the HTTP status client.
type HTTPStatusClientConfig struct {
	// BaseURL of the status service.
	BaseURL string

	// Client is the HTTP client to use.
	// If nil, a default client with 10s timeout is used.
	Client *http.Client

	// Authorization, when set, supplies the Authorization header value.
	Authorization func() string
}

// HTTPStatusClient fetches status from GET <base>/status/<id>.
type HTTPStatusClient struct {
	config HTTPStatusClientConfig
}

// NewHTTPStatusClient creates a new HTTP status client.
func NewHTTPStatusClient(config HTTPStatusClientConfig) *HTTPStatusClient {
	// Apply defaults
	if config.Client == nil {
		config.Client = &http.Client{
			Timeout: 10 * time.Second,
		}
	}
	return &HTTPStatusClient{config: config}
}

// Status fetches one identifier's live state.
func (c *HTTPStatusClient) Status(ctx context.Context, id string) (Status, error) {
	target := fmt.Sprintf("%s/status/%s", c.config.BaseURL, url.PathEscape(id))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return Status{}, fmt.Errorf("presence: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.config.Authorization != nil {
		if v := c.config.Authorization(); v != "" {
			req.Header.Set("Authorization", v)
		}
	}

	resp, err := c.config.Client.Do(req)
	if err != nil {
		return Status{}, fmt.Errorf("presence: fetch status %s: %w", id, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return Status{}, fmt.Errorf("presence: unexpected status: %d", resp.StatusCode)
	}

	var status Status
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return Status{}, fmt.Errorf("presence: decode status: %w", err)
	}
	status.ID = id
	return status, nil
}

// Ensure HTTPStatusClient implements StatusClient
var _ StatusClient = (*HTTPStatusClient)(nil)
