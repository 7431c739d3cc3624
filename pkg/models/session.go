package models

import "time"

// SessionStatus represents the status of a session.
type SessionStatus string

const (
	// SessionActive indicates the session is the current one.
	SessionActive SessionStatus = "active"
	// SessionCheckpointed indicates the session serialized its state and ended.
	// A session transitions to this status exactly once, immediately before
	// the process terminates.
	SessionCheckpointed SessionStatus = "checkpointed"
	// SessionClosed indicates the session ended with its task in a terminal state.
	SessionClosed SessionStatus = "closed"
)

// Valid returns true if the status is a known value.
func (s SessionStatus) Valid() bool {
	switch s {
	case SessionActive, SessionCheckpointed, SessionClosed:
		return true
	default:
		return false
	}
}

// Session represents one bounded-context execution window.
// Exactly one session is active at a time.
type Session struct {
	// ID is the unique identifier for this session.
	ID string `json:"id"`
	// TaskID is the task active in this session.
	TaskID string `json:"task_id"`
	// ContextUsed is the cumulative context-usage estimate (0-100 percent).
	ContextUsed float64 `json:"context_used"`
	// Status is the current state of the session.
	Status SessionStatus `json:"status"`
	// StartedAt is when the session began.
	StartedAt time.Time `json:"started_at"`
	// CheckpointedAt is when the session was checkpointed, if it was.
	CheckpointedAt *time.Time `json:"checkpointed_at,omitempty"`
}
