package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MessageType tags every frame on the channel, in both directions.
type MessageType string

const (
	// Outbound.
	TypePing        MessageType = "ping"
	TypeSubscribe   MessageType = "subscribe"
	TypeUnsubscribe MessageType = "unsubscribe"
	TypeSend        MessageType = "send"

	// Inbound.
	TypeListSnapshot    MessageType = "list_snapshot"
	TypeItemUpdate      MessageType = "item_update"
	TypeHistorySnapshot MessageType = "history_snapshot"
	TypeMessageAppend   MessageType = "message_append"
)

// ErrMalformedMessage reports an inbound frame that could not be parsed.
// The channel skips such frames; it never closes over one.
var ErrMalformedMessage = errors.New("realtime: malformed message")

// Outbound is a client-to-server frame.
type Outbound struct {
	Type       MessageType `json:"type"`
	ResourceID string      `json:"resource_id,omitempty"`
	Text       string      `json:"text,omitempty"`

	// ClientID is a client-generated id attached to sends so a later
	// snapshot can be merged against the optimistic local entry.
	ClientID string `json:"client_id,omitempty"`
}

// Inbound is a server-to-client frame. Which payload field is populated
// depends on Type.
type Inbound struct {
	Type       MessageType `json:"type"`
	ResourceID string      `json:"resource_id,omitempty"`

	// Items is the full collection for a list snapshot.
	Items json.RawMessage `json:"items,omitempty"`

	// Item is the single entity for an item update or message append.
	Item json.RawMessage `json:"item,omitempty"`

	// Messages is the conversation history for a history snapshot.
	Messages json.RawMessage `json:"messages,omitempty"`
}

// ParseInbound decodes one inbound frame. Unknown types and frames missing
// a required resource id are malformed.
func ParseInbound(data []byte) (Inbound, error) {
	var msg Inbound
	if err := json.Unmarshal(data, &msg); err != nil {
		return Inbound{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	switch msg.Type {
	case TypeListSnapshot, TypeItemUpdate:
	case TypeHistorySnapshot, TypeMessageAppend:
		if msg.ResourceID == "" {
			return Inbound{}, fmt.Errorf("%w: %s without resource_id", ErrMalformedMessage, msg.Type)
		}
	default:
		return Inbound{}, fmt.Errorf("%w: unknown type %q", ErrMalformedMessage, msg.Type)
	}
	return msg, nil
}

// Sink consumes channel traffic for the active conversation. Implementations
// own the view-side merge rules; the channel only routes.
//
// Contract:
//   - Concurrency: methods are called from the channel's reader goroutines;
//     implementations must synchronize with their own state.
//   - Errors: implementations must not panic.
type Sink interface {
	// ApplyListSnapshot replaces the local collection, merging any locally
	// pending optimistic entries by client id.
	ApplyListSnapshot(items json.RawMessage)

	// ApplyItemUpdate patches the matching item in place.
	ApplyItemUpdate(item json.RawMessage)

	// ApplyHistorySnapshot replaces the active conversation's history.
	ApplyHistorySnapshot(resourceID string, messages json.RawMessage)

	// AppendMessage appends one message to the active conversation,
	// or patches the optimistic entry carrying the same client id.
	AppendMessage(resourceID string, item json.RawMessage)
}
