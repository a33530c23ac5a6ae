package progress

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// State is the persisted lifecycle of one row. in_flight exists only in
// scheduler memory: a crash mid-request must surface the row as pending
// on the next load, never as silently lost.
type State string

const (
	StatePending State = "pending"
	StateDone    State = "done"
	StateFailed  State = "failed"
)

// RowStatus is the durable record for one row.
type RowStatus struct {
	State          State      `json:"state"`
	Reasoning      string     `json:"reasoning,omitempty"`
	Classification string     `json:"classification,omitempty"`
	Degraded       bool       `json:"degraded,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	LastError      string     `json:"last_error,omitempty"`
	Attempts       int        `json:"attempts,omitempty"`
}

// Meta identifies the run a progress record belongs to.
type Meta struct {
	RunID     string    `json:"run_id"`
	InputFile string    `json:"input_file"`
	Model     string    `json:"model"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store is the durable per-row completion tracker. Record must be safe for
// concurrent callers; updates to different rows must not be lost. Reset
// clears everything.
type Store interface {
	Load(ctx context.Context) (map[int]RowStatus, error)
	Record(ctx context.Context, rowID int, st RowStatus) error
	Reset(ctx context.Context) error
	Close() error
}

// PersistenceError wraps a failed store read or write. Fatal for the run:
// without durable progress, resumability cannot be guaranteed.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("progress store %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Open selects the store implementation from the progress reference: a
// redis:// URL gets the Redis store, anything else is a local JSON file.
func Open(ref string, meta Meta) (Store, error) {
	if strings.HasPrefix(ref, "redis://") || strings.HasPrefix(ref, "rediss://") {
		return NewRedisStore(ref, meta)
	}
	return NewFileStore(ref, meta)
}

// normalize maps any non-terminal or unknown persisted state to pending so
// interrupted rows are re-dispatched (at-least-once).
func normalize(st RowStatus) RowStatus {
	switch st.State {
	case StateDone, StateFailed:
	default:
		st.State = StatePending
	}
	return st
}
