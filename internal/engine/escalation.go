package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ShayCichocki/baton/pkg/models"
)

// EscalationAction is the operator's choice for an escalated task.
type EscalationAction string

const (
	// EscalationAccept accepts the current output despite the verdicts.
	EscalationAccept EscalationAction = "accept"
	// EscalationFail abandons the task as failed.
	EscalationFail EscalationAction = "fail"
	// EscalationDefer leaves the task escalated and checkpoints it for a
	// later session.
	EscalationDefer EscalationAction = "defer"
)

// EscalationRequest is written for the operator when a task escalates.
type EscalationRequest struct {
	// TaskID is the escalated task.
	TaskID string `json:"task_id"`
	// TurnCount is how many turns were consumed.
	TurnCount int `json:"turn_count"`
	// TurnBudget is the final budget, grace extension included.
	TurnBudget int `json:"turn_budget"`
	// Reason summarizes why the task escalated.
	Reason string `json:"reason"`
	// LastRationale is the scorer's most recent rationale, if any.
	LastRationale string `json:"last_rationale,omitempty"`
	// EscalatedAt is when the escalation was raised.
	EscalatedAt time.Time `json:"escalated_at"`
}

// EscalationResponse is the operator's reply, read from the response file.
type EscalationResponse struct {
	// Action is the chosen action: accept, fail, or defer.
	Action EscalationAction `json:"action"`
	// Message carries any operator note.
	Message string `json:"message,omitempty"`
}

// EscalationWaiter raises escalations through the filesystem and waits,
// bounded, for an operator response. The request is written to
// <dir>/<task-id>.request.json and the response is read from
// <dir>/<task-id>.json, watched for with fsnotify.
type EscalationWaiter struct {
	dir     string
	timeout time.Duration
	logger  *DebugLogger
}

// NewEscalationWaiter creates a waiter over the given escalation
// directory.
func NewEscalationWaiter(dir string, timeout time.Duration, logger *DebugLogger) *EscalationWaiter {
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}
	return &EscalationWaiter{dir: dir, timeout: timeout, logger: logger}
}

// requestPath is where the escalation request is published.
func (w *EscalationWaiter) requestPath(taskID string) string {
	return filepath.Join(w.dir, taskID+".request.json")
}

// responsePath is where the operator response is expected.
func (w *EscalationWaiter) responsePath(taskID string) string {
	return filepath.Join(w.dir, taskID+".json")
}

// Raise publishes an escalation request for the task.
func (w *EscalationWaiter) Raise(task *models.Task, reason string) error {
	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return fmt.Errorf("create escalation directory: %w", err)
	}

	req := EscalationRequest{
		TaskID:      task.ID,
		TurnCount:   task.TurnCount,
		TurnBudget:  task.TurnBudget,
		Reason:      reason,
		EscalatedAt: time.Now().UTC(),
	}
	if last := task.LastVerdict(); last != nil {
		req.LastRationale = last.Rationale
	}

	data, err := json.MarshalIndent(req, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal escalation request: %w", err)
	}
	if err := os.WriteFile(w.requestPath(task.ID), data, 0644); err != nil {
		return fmt.Errorf("write escalation request: %w", err)
	}

	w.logger.Log("[escalation] task %s escalated: %s (respond at %s)", task.ID, reason, w.responsePath(task.ID))
	return nil
}

// Await blocks until an operator response appears, the bounded wait
// elapses, or the context is cancelled. A nil response with nil error
// means the wait timed out without an answer.
func (w *EscalationWaiter) Await(ctx context.Context, taskID string) (*EscalationResponse, error) {
	// The response may already be on disk, written before the watch began.
	if resp, err := w.readResponse(taskID); err != nil {
		return nil, err
	} else if resp != nil {
		return resp, nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return w.pollResponse(ctx, taskID)
	}
	defer watcher.Close()

	if err := watcher.Add(w.dir); err != nil {
		return w.pollResponse(ctx, taskID)
	}

	// Re-check after the watch is established to close the race between
	// the first stat and watcher.Add.
	if resp, err := w.readResponse(taskID); err != nil {
		return nil, err
	} else if resp != nil {
		return resp, nil
	}

	deadline := time.NewTimer(w.timeout)
	defer deadline.Stop()

	want := w.responsePath(taskID)
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			w.logger.Log("[escalation] task %s: no response within %v", taskID, w.timeout)
			return nil, nil
		case event, ok := <-watcher.Events:
			if !ok {
				return w.pollResponse(ctx, taskID)
			}
			if event.Name != want {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			resp, err := w.readResponse(taskID)
			if err != nil {
				return nil, err
			}
			if resp != nil {
				return resp, nil
			}
		case <-watcher.Errors:
			// Keep watching; the timeout still bounds the wait.
		}
	}
}

// pollResponse is the fallback when a watcher cannot be established.
func (w *EscalationWaiter) pollResponse(ctx context.Context, taskID string) (*EscalationResponse, error) {
	deadline := time.NewTimer(w.timeout)
	defer deadline.Stop()
	tick := time.NewTicker(time.Second)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			return nil, nil
		case <-tick.C:
			resp, err := w.readResponse(taskID)
			if err != nil {
				return nil, err
			}
			if resp != nil {
				return resp, nil
			}
		}
	}
}

// readResponse loads and validates the response file, if present.
func (w *EscalationWaiter) readResponse(taskID string) (*EscalationResponse, error) {
	data, err := os.ReadFile(w.responsePath(taskID))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read escalation response: %w", err)
	}

	var resp EscalationResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("parse escalation response: %w", err)
	}
	switch resp.Action {
	case EscalationAccept, EscalationFail, EscalationDefer:
		return &resp, nil
	default:
		return nil, fmt.Errorf("unknown escalation action %q", resp.Action)
	}
}

// Clear removes the request and response files for a task.
func (w *EscalationWaiter) Clear(taskID string) {
	os.Remove(w.requestPath(taskID))
	os.Remove(w.responsePath(taskID))
}
