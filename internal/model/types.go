package model

import "time"

// Hit is one recorded event. Timestamp is whole seconds supplied by the
// caller; the engine never reads a wall clock. User may be empty.
type Hit struct {
	Timestamp int64  `json:"ts"`
	Group     string `json:"group"`
	User      string `json:"user,omitempty"`
	Source    string `json:"source,omitempty"`
}

// UserCount is one entry of a per-user breakdown, ordered by User.
type UserCount struct {
	User  string `json:"user"`
	Count int    `json:"count"`
}

// GroupSnapshot is the last observed in-window count for one group.
type GroupSnapshot struct {
	Group     string `json:"group"`
	Count     int    `json:"count"`
	WindowSec int64  `json:"window_sec"`
	AsOf      int64  `json:"as_of"`
}

// AuditEntry pairs a hit with the wall-clock moment it was accepted.
type AuditEntry struct {
	ReceivedAt time.Time `json:"received_at"`
	Hit        Hit       `json:"hit"`
}
