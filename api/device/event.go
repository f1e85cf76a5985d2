package device

import (
	"time"

	"github.com/google/uuid"
)

// StatusEvent is emitted on every session state transition.
type StatusEvent struct {
	Session  uuid.UUID `json:"session"`
	Status   Status    `json:"status"`
	Identity Identity  `json:"identity,omitempty"`
	Err      error     `json:"-"`
	At       time.Time `json:"at"`
}

// ProgressEvent is emitted while a file transfer is in progress.
type ProgressEvent struct {
	Session  uuid.UUID `json:"session"`
	Task     uint64    `json:"task"`
	Index    uint16    `json:"index"`
	Fraction float64   `json:"fraction"`
}

// TaskEvent is emitted when a queued operation completes or fails.
type TaskEvent struct {
	Session  uuid.UUID     `json:"session"`
	Task     uint64        `json:"task"`
	Op       string        `json:"op"`
	Err      error         `json:"-"`
	Duration time.Duration `json:"duration"`
}
