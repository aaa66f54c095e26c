package realtime

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/jonwraymond/rentsync/observe"
)

// socketWriter serializes writes to one socket connection; the heartbeat,
// subscription changes, and Send all share it.
type socketWriter struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (w *socketWriter) write(msg Outbound) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.WriteJSON(msg)
}

// Send delivers a chat message over the connected socket and returns the
// optimistic client id attached to it. Unlike inbound handling, send
// failures are reported: composing is a mutation, not a read.
func (c *Channel) Send(resourceID, text string) (clientID string, err error) {
	c.mu.Lock()
	writer := c.writer
	c.mu.Unlock()
	if writer == nil {
		return "", ErrNotConnected
	}

	clientID = uuid.NewString()
	err = writer.write(Outbound{
		Type:       TypeSend,
		ResourceID: resourceID,
		Text:       text,
		ClientID:   clientID,
	})
	if err != nil {
		return "", err
	}
	return clientID, nil
}

// supervise owns the socket path: dial, run, tear down, back off, repeat.
// The fallback stream activates whenever the socket is not connected.
func (c *Channel) supervise(ctx context.Context) {
	defer close(c.done)
	defer c.stopStream()

	retry := newBackoff(c.config.ReconnectInitial, c.config.ReconnectMax)

	for {
		select {
		case <-c.stop:
			return
		case <-ctx.Done():
			return
		default:
		}

		c.setSocketState(ctx, StateConnecting)
		conn, err := c.dial(ctx)
		if err != nil {
			c.setSocketState(ctx, StateDisconnected)
			c.logger.Debug(ctx, "socket dial failed",
				observe.Field{Key: "error", Value: err.Error()})
			c.ensureStream(ctx)
			if !c.sleep(ctx, retry.next()) {
				return
			}
			continue
		}

		retry.reset()
		c.stopStream()
		c.attach(conn)
		c.setSocketState(ctx, StateConnected)
		c.logger.Info(ctx, "socket connected")

		c.runSocket(ctx, conn)

		c.detach()
		c.setSocketState(ctx, StateDisconnected)
		c.logger.Info(ctx, "socket disconnected")
		c.ensureStream(ctx)
		if !c.sleep(ctx, retry.next()) {
			return
		}
	}
}

func (c *Channel) dial(ctx context.Context) (*websocket.Conn, error) {
	var header http.Header
	if c.config.Authorization != nil {
		if v := c.config.Authorization(); v != "" {
			header = http.Header{"Authorization": {v}}
		}
	}
	conn, resp, err := c.config.Dialer.DialContext(ctx, c.config.SocketURL, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	return conn, err
}

// attach installs the connection and re-establishes subscription state for
// the active conversation.
func (c *Channel) attach(conn *websocket.Conn) {
	writer := &socketWriter{conn: conn}

	c.recaptureGuard()
	c.mu.Lock()
	c.writer = writer
	c.subscribed = make(map[string]time.Time)
	active := c.active
	if active != "" {
		c.subscribed[active] = time.Now()
	}
	c.mu.Unlock()

	if active != "" {
		_ = writer.write(Outbound{Type: TypeSubscribe, ResourceID: active})
	}
}

// detach drops the connection's subscription state.
func (c *Channel) detach() {
	c.mu.Lock()
	c.writer = nil
	c.subscribed = nil
	c.mu.Unlock()
}

// runSocket reads frames until the connection fails or the channel stops.
// A heartbeat keeps the connection alive while reading.
func (c *Channel) runSocket(ctx context.Context, conn *websocket.Conn) {
	defer func() { _ = conn.Close() }()

	connDone := make(chan struct{})
	defer close(connDone)
	go c.heartbeat(ctx, connDone)

	// Unblock the reader when the channel stops.
	go func() {
		select {
		case <-c.stop:
			_ = conn.Close()
		case <-ctx.Done():
			_ = conn.Close()
		case <-connDone:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		msg, err := ParseInbound(data)
		if err != nil {
			// One bad frame must not close the channel.
			c.logger.Debug(ctx, "skipping malformed frame",
				observe.Field{Key: "error", Value: err.Error()})
			continue
		}
		c.dispatch(msg)
	}
}

func (c *Channel) heartbeat(ctx context.Context, connDone chan struct{}) {
	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.mu.Lock()
			writer := c.writer
			c.mu.Unlock()
			if writer == nil {
				return
			}
			if err := writer.write(Outbound{Type: TypePing}); err != nil {
				return
			}
		case <-connDone:
			return
		case <-c.stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (c *Channel) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-c.stop:
		return false
	case <-ctx.Done():
		return false
	}
}
