package realtime

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jonwraymond/rentsync/observe"
)

// ensureStream activates the fallback path if it is configured and not
// already running. The stream reconnects on its own cadence until
// stopStream or channel shutdown.
func (c *Channel) ensureStream(ctx context.Context) {
	if c.config.StreamURL == "" {
		return
	}
	c.mu.Lock()
	if c.streamStop != nil {
		c.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	c.streamStop = stop
	c.mu.Unlock()

	go c.runStream(ctx, stop)
}

// stopStream tears the fallback path down; called when the socket connects
// and on shutdown.
func (c *Channel) stopStream() {
	c.mu.Lock()
	stop := c.streamStop
	c.streamStop = nil
	c.mu.Unlock()
	if stop != nil {
		close(stop)
	}
}

func (c *Channel) runStream(ctx context.Context, stop chan struct{}) {
	retry := newBackoff(c.config.ReconnectInitial, c.config.ReconnectMax)

	for {
		select {
		case <-stop:
			c.setStreamState(ctx, StateDisconnected)
			return
		case <-c.stop:
			c.setStreamState(ctx, StateDisconnected)
			return
		case <-ctx.Done():
			c.setStreamState(ctx, StateDisconnected)
			return
		default:
		}

		c.setStreamState(ctx, StateConnecting)
		err := c.consumeStream(ctx, stop)
		c.setStreamState(ctx, StateDisconnected)
		if err != nil {
			c.logger.Debug(ctx, "stream interrupted",
				observe.Field{Key: "error", Value: err.Error()})
		}

		if !c.sleepStream(ctx, stop, retry.next()) {
			return
		}
	}
}

func (c *Channel) sleepStream(ctx context.Context, stop chan struct{}, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-stop:
		return false
	case <-c.stop:
		return false
	case <-ctx.Done():
		return false
	}
}

// consumeStream connects once and reads events until the connection fails
// or the stream is stopped. The consumer drives reconnection, not the
// stream itself.
func (c *Channel) consumeStream(ctx context.Context, stop chan struct{}) error {
	reqCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-stop:
			cancel()
		case <-c.stop:
			cancel()
		case <-reqCtx.Done():
		}
	}()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, c.config.StreamURL, nil)
	if err != nil {
		return fmt.Errorf("realtime: create stream request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if c.config.Authorization != nil {
		if v := c.config.Authorization(); v != "" {
			req.Header.Set("Authorization", v)
		}
	}

	resp, err := c.config.Client.Do(req)
	if err != nil {
		return fmt.Errorf("realtime: stream connect: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("realtime: stream status: %d", resp.StatusCode)
	}

	c.recaptureGuard()
	c.setStreamState(ctx, StateConnected)
	c.logger.Info(ctx, "stream connected")

	var event, data string
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if data != "" {
				c.dispatchStreamEvent(ctx, event, data)
			}
			event, data = "", ""
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data += strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		case strings.HasPrefix(line, ":"):
			// Comment/keepalive line.
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("realtime: stream read: %w", err)
	}
	return nil
}

// dispatchStreamEvent adapts a named stream event into an inbound frame.
// The stream carries the same snapshot payload shapes under its event
// names, with the type implied by the event rather than a field; anything
// it cannot parse is skipped individually.
func (c *Channel) dispatchStreamEvent(ctx context.Context, event, data string) {
	switch MessageType(event) {
	case TypeListSnapshot, TypeHistorySnapshot:
	default:
		c.logger.Debug(ctx, "skipping stream event",
			observe.Field{Key: "event", Value: event})
		return
	}

	var msg Inbound
	if err := json.Unmarshal([]byte(data), &msg); err != nil {
		c.logger.Debug(ctx, "skipping malformed stream event",
			observe.Field{Key: "error", Value: err.Error()})
		return
	}
	msg.Type = MessageType(event)
	if msg.Type == TypeHistorySnapshot && msg.ResourceID == "" {
		return
	}
	c.dispatch(msg)
}
