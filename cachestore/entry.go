package cachestore

import (
	"encoding/json"
	"time"
)

// Entry is one cached snapshot as held in either tier.
// This is also the durable-tier JSON layout.
type Entry struct {
	Data      json.RawMessage `json:"data"`
	WrittenAt time.Time       `json:"writtenAt"`
	ETag      string          `json:"etag,omitempty"`
}

// Snapshot is the result of a read: the winning entry plus its staleness
// verdict under the caller's freshness window.
type Snapshot struct {
	Data      json.RawMessage
	WrittenAt time.Time
	ETag      string
	Stale     bool
}

// Age returns how long ago the snapshot was written.
func (s Snapshot) Age() time.Duration {
	return time.Since(s.WrittenAt)
}
