package realtime

import (
	"errors"
	"testing"
)

func TestParseInbound(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    MessageType
		wantErr bool
	}{
		{
			name:    "list snapshot",
			payload: `{"type":"list_snapshot","items":[{"id":"1"}]}`,
			want:    TypeListSnapshot,
		},
		{
			name:    "item update",
			payload: `{"type":"item_update","item":{"id":"1","status":"frozen"}}`,
			want:    TypeItemUpdate,
		},
		{
			name:    "history snapshot",
			payload: `{"type":"history_snapshot","resource_id":"chat-9","messages":[]}`,
			want:    TypeHistorySnapshot,
		},
		{
			name:    "message append",
			payload: `{"type":"message_append","resource_id":"chat-9","item":{"text":"hi"}}`,
			want:    TypeMessageAppend,
		},
		{
			name:    "history without resource id",
			payload: `{"type":"history_snapshot","messages":[]}`,
			wantErr: true,
		},
		{
			name:    "append without resource id",
			payload: `{"type":"message_append","item":{}}`,
			wantErr: true,
		},
		{
			name:    "unknown type",
			payload: `{"type":"mystery"}`,
			wantErr: true,
		},
		{
			name:    "not json",
			payload: `<html>`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := ParseInbound([]byte(tt.payload))
			if tt.wantErr {
				if !errors.Is(err, ErrMalformedMessage) {
					t.Errorf("expected ErrMalformedMessage, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseInbound: %v", err)
			}
			if msg.Type != tt.want {
				t.Errorf("type = %s, want %s", msg.Type, tt.want)
			}
		})
	}
}

func TestBackoff_GrowsAndResets(t *testing.T) {
	b := newBackoff(100, 800)

	first := b.next()
	if first < 100 || first > 125 {
		t.Errorf("first delay = %d, want 100..125", first)
	}

	for i := 0; i < 10; i++ {
		if d := b.next(); d > 1000 {
			t.Fatalf("delay %d exceeds cap with jitter", d)
		}
	}

	b.reset()
	if d := b.next(); d > 125 {
		t.Errorf("delay after reset = %d, want 100..125", d)
	}
}
