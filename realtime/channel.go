package realtime

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jonwraymond/rentsync/observe"
	"github.com/jonwraymond/rentsync/session"
)

// State enumerates the socket path's lifecycle. The stream path mirrors it
// with its own independent value.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// Sentinel errors for channel misuse and send failures.
var (
	ErrNoSocketURL  = errors.New("realtime: socket url is empty")
	ErrNilSink      = errors.New("realtime: sink is nil")
	ErrNotConnected = errors.New("realtime: socket not connected")
)

// DefaultPingInterval is the heartbeat cadence on a connected socket.
const DefaultPingInterval = 15 * time.Second

// Config configures a Channel.
type Config struct {
	// SocketURL is the bidirectional socket endpoint (ws:// or wss://).
	// Required.
	SocketURL string

	// StreamURL is the one-way event stream endpoint used while the socket
	// is down. Empty disables the fallback path.
	StreamURL string

	// Sink consumes traffic for the active conversation. Required.
	Sink Sink

	// Invalidate is called with a conversation id whose traffic arrived
	// while it was not active, so its cache entry can be expired.
	// Nil disables invalidation.
	Invalidate func(resourceID string)

	// Epoch guards deliveries across session switches. Nil disables the
	// guard.
	Epoch *session.Epoch

	// Dialer for the socket path. If nil, a default dialer with 10s
	// handshake timeout is used.
	Dialer *websocket.Dialer

	// Client for the stream path. If nil, http.DefaultClient is used
	// (streams are long-lived, so no timeout is applied).
	Client *http.Client

	// Authorization, when set, supplies the Authorization header for both
	// transports.
	Authorization func() string

	// PingInterval is the heartbeat cadence. Default: DefaultPingInterval.
	PingInterval time.Duration

	// ReconnectInitial and ReconnectMax bound the reconnect backoff.
	// Defaults: 500ms and 30s.
	ReconnectInitial time.Duration
	ReconnectMax     time.Duration

	// Logger and Metrics are optional; nil disables each.
	Logger  observe.Logger
	Metrics observe.Metrics
}

// Channel is the dual-transport realtime update channel.
//
// Contract:
//   - Concurrency: safe for concurrent use.
//   - Exactly one conversation is active at a time; SetActive replaces it.
//   - One transport delivers at a time: the stream is torn down while the
//     socket is connected.
type Channel struct {
	config Config

	mu          sync.Mutex
	socketState State
	streamState State
	active      string
	subscribed  map[string]time.Time
	writer      *socketWriter
	streamStop  chan struct{}
	guard       session.Guard
	started     bool

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}

	logger  observe.Logger
	metrics observe.Metrics
}

// NewChannel creates a Channel with the given configuration.
func NewChannel(cfg Config) (*Channel, error) {
	if cfg.SocketURL == "" {
		return nil, ErrNoSocketURL
	}
	if cfg.Sink == nil {
		return nil, ErrNilSink
	}

	// Apply defaults
	if cfg.Dialer == nil {
		cfg.Dialer = &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
		}
	}
	if cfg.Client == nil {
		cfg.Client = http.DefaultClient
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = DefaultPingInterval
	}
	if cfg.ReconnectInitial <= 0 {
		cfg.ReconnectInitial = 500 * time.Millisecond
	}
	if cfg.ReconnectMax <= 0 {
		cfg.ReconnectMax = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = observe.NopLogger()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.NopMetrics()
	}

	return &Channel{
		config:  cfg,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
		logger:  cfg.Logger.WithMeta(observe.Meta{Component: "realtime"}),
		metrics: cfg.Metrics,
	}, nil
}

// Start launches the socket supervisor. Call once.
func (c *Channel) Start(ctx context.Context) {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return
	}
	c.started = true
	if c.config.Epoch != nil {
		c.guard = c.config.Epoch.Guard()
	}
	c.mu.Unlock()

	go c.supervise(ctx)
}

// Stop closes the channel and both transports. Safe to call more than once.
func (c *Channel) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
	c.mu.Lock()
	started := c.started
	c.mu.Unlock()
	if started {
		<-c.done
	}
}

// SocketState returns the socket path's current state.
func (c *Channel) SocketState() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.socketState
}

// StreamState returns the fallback path's current state.
func (c *Channel) StreamState() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.streamState
}

// SetActive switches the active conversation. While connected, the previous
// id is unsubscribed and the new one subscribed, both best-effort; while
// disconnected only the recorded id changes, and the next connect
// re-establishes subscription state.
func (c *Channel) SetActive(resourceID string) {
	c.mu.Lock()
	prev := c.active
	c.active = resourceID
	writer := c.writer
	if writer != nil {
		if prev != "" {
			delete(c.subscribed, prev)
		}
		if resourceID != "" {
			c.subscribed[resourceID] = time.Now()
		}
	}
	c.mu.Unlock()

	if writer == nil || prev == resourceID {
		return
	}
	if prev != "" {
		// Best-effort; a failed send is repaired on the next reconnect.
		_ = writer.write(Outbound{Type: TypeUnsubscribe, ResourceID: prev})
	}
	if resourceID != "" {
		_ = writer.write(Outbound{Type: TypeSubscribe, ResourceID: resourceID})
	}
}

// Active returns the active conversation id, or "".
func (c *Channel) Active() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// dispatch routes one inbound frame. Traffic for a non-active conversation
// is not delivered to the sink but still invalidates that conversation's
// cache entry.
func (c *Channel) dispatch(msg Inbound) {
	c.mu.Lock()
	active := c.active
	guard := c.guard
	c.mu.Unlock()

	if c.config.Epoch != nil && !guard.Valid() {
		return
	}

	switch msg.Type {
	case TypeListSnapshot:
		c.config.Sink.ApplyListSnapshot(msg.Items)
	case TypeItemUpdate:
		c.config.Sink.ApplyItemUpdate(msg.Item)
	case TypeHistorySnapshot:
		if msg.ResourceID == active {
			c.config.Sink.ApplyHistorySnapshot(msg.ResourceID, msg.Messages)
		} else {
			c.invalidate(msg.ResourceID)
		}
	case TypeMessageAppend:
		if msg.ResourceID == active {
			c.config.Sink.AppendMessage(msg.ResourceID, msg.Item)
		} else {
			c.invalidate(msg.ResourceID)
		}
	}
}

// recaptureGuard pins deliveries to the session active at connect time. Each
// successful transport connect re-captures it, so a channel that outlives a
// session switch resumes delivering for the new session on its next
// (re)connect instead of dropping frames forever.
func (c *Channel) recaptureGuard() {
	if c.config.Epoch == nil {
		return
	}
	guard := c.config.Epoch.Guard()
	c.mu.Lock()
	c.guard = guard
	c.mu.Unlock()
}

func (c *Channel) invalidate(resourceID string) {
	if c.config.Invalidate != nil {
		c.config.Invalidate(resourceID)
	}
}

func (c *Channel) setSocketState(ctx context.Context, state State) {
	c.mu.Lock()
	changed := c.socketState != state
	c.socketState = state
	c.mu.Unlock()
	if changed {
		c.metrics.RecordTransportChange(ctx, "socket", state.String())
	}
}

func (c *Channel) setStreamState(ctx context.Context, state State) {
	c.mu.Lock()
	changed := c.streamState != state
	c.streamState = state
	c.mu.Unlock()
	if changed {
		c.metrics.RecordTransportChange(ctx, "stream", state.String())
	}
}
