package chainlog

import (
	"context"
	"time"
)

// Entry is a single record on the log. Sequence numbers start at 1 and
// strictly increase in append order.
type Entry struct {
	Sequence  uint64    `json:"sequence"`
	Timestamp time.Time `json:"timestamp"`
	Payload   []byte    `json:"payload"`
}

// Log is an append-only, sequence-ordered record log.
type Log interface {
	// Append adds a payload to the log and returns the stored entry with
	// its assigned sequence number and timestamp.
	Append(ctx context.Context, payload []byte) (Entry, error)

	// ReadAll returns every entry currently on the log in sequence order.
	// Implementations may serve reads from a snapshot; callers must dedup
	// by sequence number across calls.
	ReadAll(ctx context.Context) ([]Entry, error)
}
