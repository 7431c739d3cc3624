package models

import "time"

// TaskStatus represents the current state of a task.
type TaskStatus string

const (
	// TaskStatusPending indicates the task has not started.
	TaskStatusPending TaskStatus = "pending"
	// TaskStatusRunning indicates the task is being worked on.
	TaskStatusRunning TaskStatus = "running"
	// TaskStatusAccepted indicates the task output was accepted.
	TaskStatusAccepted TaskStatus = "accepted"
	// TaskStatusFailed indicates the task failed.
	TaskStatusFailed TaskStatus = "failed"
	// TaskStatusEscalated indicates the task is waiting on a human decision.
	TaskStatusEscalated TaskStatus = "escalated"
)

// Valid returns true if the status is a known value.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusPending, TaskStatusRunning, TaskStatusAccepted, TaskStatusFailed, TaskStatusEscalated:
		return true
	default:
		return false
	}
}

// Terminal returns true if the status is a final state.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusAccepted || s == TaskStatusFailed
}

// TaskType categorizes the kind of work a task represents.
type TaskType string

const (
	// TaskTypePlanning indicates a planning or design task.
	TaskTypePlanning TaskType = "planning"
	// TaskTypeCodegen indicates a code-generation task.
	TaskTypeCodegen TaskType = "codegen"
)

// Task represents a unit of iterative work driven to completion by the engine.
type Task struct {
	// ID is the unique identifier for this task.
	ID string `json:"id"`
	// ProjectID is the identifier of the owning project.
	ProjectID string `json:"project_id"`
	// Description is the natural-language description of the work.
	Description string `json:"description"`
	// Type is the kind of work this task represents.
	Type TaskType `json:"type"`
	// Status is the current state of the task.
	Status TaskStatus `json:"status"`
	// TurnCount is the number of scored turns consumed so far. Never decreases.
	TurnCount int `json:"turn_count"`
	// TurnBudget is the maximum scored turns allowed. It grows at most once,
	// via the grace extension, and never shrinks.
	TurnBudget int `json:"turn_budget"`
	// GraceExtensionUsed records whether the one-time budget doubling happened.
	GraceExtensionUsed bool `json:"grace_extension_used"`
	// Verdicts is the append-only history of quality verdicts, oldest first.
	Verdicts []QualityVerdict `json:"verdicts,omitempty"`
	// CreatedAt is when the task was created.
	CreatedAt time.Time `json:"created_at"`
	// CompletedAt is when the task reached a terminal state, if it has.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	// Error contains the failure message if the task failed.
	Error string `json:"error,omitempty"`
}

// AppendVerdict adds a verdict to the task's history. History is append-only;
// existing entries are never modified.
func (t *Task) AppendVerdict(v QualityVerdict) {
	t.Verdicts = append(t.Verdicts, v)
}

// LastVerdict returns the most recent verdict, or nil if none exist.
func (t *Task) LastVerdict() *QualityVerdict {
	if len(t.Verdicts) == 0 {
		return nil
	}
	return &t.Verdicts[len(t.Verdicts)-1]
}
