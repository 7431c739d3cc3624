package engine

import (
	"errors"
	"fmt"
)

// TransientAgentError marks an implementer or scorer call that failed in
// a way worth retrying within the same turn: timeouts, transport
// resets, throttling. Anything else is treated as permanent.
type TransientAgentError struct {
	// Op names the failed call ("generate" or "score").
	Op string
	// Err is the underlying failure.
	Err error
}

func (e *TransientAgentError) Error() string {
	return fmt.Sprintf("transient %s failure: %v", e.Op, e.Err)
}

func (e *TransientAgentError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is retryable within the current turn.
func IsTransient(err error) bool {
	var transient *TransientAgentError
	return errors.As(err, &transient)
}

// BudgetExhaustedError signals that a task spent its full turn budget,
// grace extension included. It routes to escalation, not to a crash.
type BudgetExhaustedError struct {
	// TaskID is the exhausted task.
	TaskID string
	// TurnCount is the number of turns consumed.
	TurnCount int
	// TurnBudget is the final budget, after any grace extension.
	TurnBudget int
}

func (e *BudgetExhaustedError) Error() string {
	return fmt.Sprintf("task %s exhausted turn budget (%d of %d turns, grace extension spent)",
		e.TaskID, e.TurnCount, e.TurnBudget)
}
