package model

import "time"

// KeyStats is the counters read model served to the site front end.
// It is recomputed from the store instead of being kept in process memory.
// The site front end reads these camelCase names.
type KeyStats struct {
	KeysIssued   int64     `json:"keysGenerated"`
	LiveKeys     int64     `json:"liveKeys"`
	BoundDevices int64     `json:"boundDevices"`
	ComputedAt   time.Time `json:"computedAt"`
}

// Event types published on the key event bus.
const (
	EventKeyIssued   = "key.issued"
	EventKeysSwept   = "keys.swept"
	EventDeviceBound = "device.bound"
)

// KeyEvent is a notification that key state changed.
// It never carries key material.
type KeyEvent struct {
	Type       string    `json:"type"`
	UserID     string    `json:"user_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}
